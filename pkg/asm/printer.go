package asm

import (
	"fmt"
	"io"
)

// Printer outputs x86-64 assembly in GNU as (AT&T) syntax, used for the
// deterministic golden-file dumps spec section 8 calls dump_asm.
type Printer struct {
	w io.Writer
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) PrintProgram(prog *Program) {
	if len(prog.Globals) > 0 {
		fmt.Fprintf(p.w, "\t.data\n")
		for _, g := range prog.Globals {
			p.printGlobal(g)
		}
		fmt.Fprintf(p.w, "\n")
	}
	fmt.Fprintf(p.w, "\t.text\n")
	for _, fn := range prog.Functions {
		p.printFunction(fn)
	}
}

func (p *Printer) printGlobal(g GlobVar) {
	fmt.Fprintf(p.w, "\t.globl\t%s\n", g.Name)
	if g.Align > 1 {
		fmt.Fprintf(p.w, "\t.align\t%d\n", g.Align)
	}
	fmt.Fprintf(p.w, "%s:\n", g.Name)
	if len(g.Init) > 0 {
		for _, b := range g.Init {
			fmt.Fprintf(p.w, "\t.byte\t%d\n", b)
		}
	} else if g.Size > 0 {
		fmt.Fprintf(p.w, "\t.zero\t%d\n", g.Size)
	}
}

func (p *Printer) printFunction(f *Function) {
	fmt.Fprintf(p.w, "\t.globl\t%s\n", f.Name)
	fmt.Fprintf(p.w, "\t.type\t%s, @function\n", f.Name)
	fmt.Fprintf(p.w, "%s:\n", f.Name)
	for _, instr := range f.Prologue {
		p.printInstr(instr)
	}
	for _, instr := range f.Body {
		p.printInstr(instr)
	}
	for _, instr := range f.Epilogue {
		p.printInstr(instr)
	}
	fmt.Fprintf(p.w, "\t.size\t%s, .-%s\n\n", f.Name, f.Name)
}

func regSizedName(r PhysReg, width int) string {
	names64 := []string{"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
		"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15"}
	names32 := []string{"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi",
		"r8d", "r9d", "r10d", "r11d", "r12d", "r13d", "r14d", "r15d"}
	names16 := []string{"ax", "cx", "dx", "bx", "sp", "bp", "si", "di",
		"r8w", "r9w", "r10w", "r11w", "r12w", "r13w", "r14w", "r15w"}
	names8 := []string{"al", "cl", "dl", "bl", "spl", "bpl", "sil", "dil",
		"r8b", "r9b", "r10b", "r11b", "r12b", "r13b", "r14b", "r15b"}
	idx := int(r)
	if idx < 0 || idx >= 16 {
		return "?"
	}
	switch width {
	case 1:
		return names8[idx]
	case 2:
		return names16[idx]
	case 4:
		return names32[idx]
	default:
		return names64[idx]
	}
}

func regOperandName(r Reg) string {
	if r.Virtual {
		return fmt.Sprintf("%%v%d", r.VReg)
	}
	return "%" + regSizedName(r.Phys, r.Width)
}

func (p *Printer) operandString(o Operand) string {
	switch o.Kind {
	case OpReg:
		name := regOperandName(o.Reg)
		if o.Deref {
			return "(" + name + ")"
		}
		return name
	case OpMem:
		if o.Symbol != "" {
			if o.Offset != 0 {
				return fmt.Sprintf("%s+%d(%%rip)", o.Symbol, o.Offset)
			}
			return fmt.Sprintf("%s(%%rip)", o.Symbol)
		}
		base := regOperandName(o.Reg)
		if o.Offset == 0 {
			return "(" + base + ")"
		}
		return fmt.Sprintf("%d(%s)", o.Offset, base)
	case OpImm:
		return fmt.Sprintf("$%d", int64(o.Imm))
	case OpSym:
		if o.Offset != 0 {
			return fmt.Sprintf("%s+%d", o.Symbol, o.Offset)
		}
		return o.Symbol
	case OpLabelRef:
		return string(o.Label)
	}
	return "?"
}

func (p *Printer) printInstr(i Instr) {
	if i.Label != "" {
		fmt.Fprintf(p.w, "%s:\n", i.Label)
	}
	mnemonic := i.Op.String()
	if i.Op == OpSETcc {
		mnemonic += i.Cond.String()
	}
	if i.Op == OpJcc {
		mnemonic += i.Cond.String()
	}
	switch len(i.Operands) {
	case 0:
		fmt.Fprintf(p.w, "\t%s\n", mnemonic)
	case 1:
		fmt.Fprintf(p.w, "\t%s\t%s\n", mnemonic, p.operandString(i.Operands[0]))
	case 2:
		// AT&T order is src, dst; Instr stores operands dst-first to match
		// the spec's emitN(op, args...) builder order, so flip on print.
		fmt.Fprintf(p.w, "\t%s\t%s, %s\n", mnemonic, p.operandString(i.Operands[1]), p.operandString(i.Operands[0]))
	case 3:
		fmt.Fprintf(p.w, "\t%s\t%s, %s, %s\n", mnemonic,
			p.operandString(i.Operands[2]), p.operandString(i.Operands[1]), p.operandString(i.Operands[0]))
	}
}
