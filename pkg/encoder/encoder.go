// Package encoder turns an allocated, frame-complete asm.Program into a
// flat binary image: x86-64 machine code for every function body, raw
// initializer bytes for every global, and a symbol table resolving each
// global and function-entry label to its final address. Addresses are
// flat-image relative (.text at 0, .data immediately after, .bss after
// that) rather than ELF relocations — see the open question decision on
// output format recorded in DESIGN.md.
package encoder

import (
	"fmt"

	"github.com/nccback/nccback/pkg/asm"
)

// Section is the section tag a symbol table entry carries, per spec.md
// section 6: TEXT, DATA, BSS, or UNDEF (an unresolved cross-unit reference).
type Section int

const (
	SectionText Section = iota
	SectionData
	SectionBSS
	SectionUndef
)

func (s Section) String() string {
	switch s {
	case SectionText:
		return "TEXT"
	case SectionData:
		return "DATA"
	case SectionBSS:
		return "BSS"
	default:
		return "UNDEF"
	}
}

// Symbol is a resolved name: its final address in the flat image, which
// section it belongs to, and whether it's externally visible (affects
// nothing here, but the linker step a full toolchain would add needs it,
// so it's carried through). Index is the symbol's stable 1-based position
// in table-assignment order.
type Symbol struct {
	Addr    int64
	Size    int64
	Global  bool
	Section Section
	Index   int
}

// Image is the encoder's output: machine code, data, and a symbol table.
// A loader maps Text at some base address, Data immediately after (padded
// to 8 bytes), and reserves BSSSize zeroed bytes after that; Symbol.Addr
// values already assume that exact layout starting at address 0.
type Image struct {
	Text      []byte
	Data      []byte
	BSSSize   int64
	Symbols   map[string]Symbol
	nextIndex int
}

// addSymbol records sym under name, stamping it with the next stable index.
func (img *Image) addSymbol(name string, sym Symbol) {
	img.nextIndex++
	sym.Index = img.nextIndex
	img.Symbols[name] = sym
}

type fixupKind int

const (
	fixupRelative fixupKind = iota
	fixupAbsolute
)

// fixup is a deferred patch: a field in Text that names a symbol by string
// rather than a resolved address, because the symbol's address (a forward
// label, or any global, whose final address depends on the full text
// length) isn't known yet when the field is written.
type fixup struct {
	offset    int64 // byte offset of the field within Text
	size      int   // 4 (rel32/disp32) or 8 (abs64 immediate)
	kind      fixupKind
	target    string
	addend    int64
	endOffset int64 // offset just past the fully-encoded instruction
}

// Encode lays out prog's globals and functions into a single flat image
// and resolves every fixup against the final symbol table.
func Encode(prog *asm.Program) (*Image, error) {
	img := &Image{Symbols: make(map[string]Symbol)}
	var fixups []fixup

	for _, fn := range prog.Functions {
		if err := encodeFunction(fn, img, &fixups); err != nil {
			return nil, fmt.Errorf("encoder: function %s: %w", fn.Name, err)
		}
	}

	dataBase := align8(int64(len(img.Text)))
	for _, g := range prog.Globals {
		if g.Init == nil {
			continue
		}
		off := align(int64(len(img.Data)), int64(g.Align))
		if pad := off - int64(len(img.Data)); pad > 0 {
			img.Data = append(img.Data, make([]byte, pad)...)
		}
		img.addSymbol(g.Name, Symbol{Addr: dataBase + off, Size: g.Size, Global: true, Section: SectionData})
		img.Data = append(img.Data, g.Init...)
	}
	bssBase := dataBase + int64(len(img.Data))
	for _, g := range prog.Globals {
		if g.Init != nil {
			continue
		}
		off := align(img.BSSSize, int64(g.Align))
		img.addSymbol(g.Name, Symbol{Addr: bssBase + off, Size: g.Size, Global: true, Section: SectionBSS})
		img.BSSSize = off + g.Size
	}
	// globals land after every function's labels have already claimed their
	// text-relative (and therefore final, since .text starts at 0) address.

	for _, fx := range fixups {
		sym, ok := img.Symbols[fx.target]
		if !ok {
			return nil, fmt.Errorf("encoder: undefined symbol %q", fx.target)
		}
		var value int64
		if fx.kind == fixupRelative {
			value = sym.Addr + fx.addend - fx.endOffset
		} else {
			value = sym.Addr + fx.addend
		}
		putSigned(img.Text[fx.offset:fx.offset+int64(fx.size)], value)
	}
	return img, nil
}

func align(off, a int64) int64 {
	if a <= 1 {
		return off
	}
	if rem := off % a; rem != 0 {
		return off + (a - rem)
	}
	return off
}

func align8(off int64) int64 { return align(off, 8) }

func putSigned(dst []byte, v int64) {
	for i := range dst {
		dst[i] = byte(v)
		v >>= 8
	}
}

// encodeFunction appends a function's prologue, body, and epilogue to
// img.Text in order, recording every label's final address as it's reached
// and queuing a fixup for every operand that names a symbol or label.
func encodeFunction(fn *asm.Function, img *Image, fixups *[]fixup) error {
	img.addSymbol(fn.Name, Symbol{Addr: int64(len(img.Text)), Global: true, Section: SectionText})
	for _, instr := range fn.AllInstrs() {
		if instr.Label != "" && string(instr.Label) != fn.Name {
			img.addSymbol(string(instr.Label), Symbol{Addr: int64(len(img.Text)), Section: SectionText})
		}
		if err := encodeInstr(instr, img, fixups); err != nil {
			return err
		}
	}
	return nil
}
