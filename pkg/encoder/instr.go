package encoder

import (
	"fmt"

	"github.com/nccback/nccback/pkg/asm"
)

const (
	rexW byte = 1 << 3
	rexR byte = 1 << 2
	rexX byte = 1 << 1
	rexB byte = 1 << 0
)

type pendingFixup struct {
	pos    int // byte offset within the instruction's body, pre-REX
	size   int
	kind   fixupKind
	target string
	addend int64
}

// instrBuilder accumulates one instruction's opcode/ModRM/SIB/displacement/
// immediate bytes before the REX prefix (if any) is known, since REX bits
// depend on which registers the ModRM/SIB/opcode-extension fields name.
type instrBuilder struct {
	body    []byte
	rex     byte
	pending []pendingFixup
}

func (b *instrBuilder) b(v byte)        { b.body = append(b.body, v) }
func (b *instrBuilder) bytes(v ...byte) { b.body = append(b.body, v...) }
func (b *instrBuilder) le32(v int32)    { b.bytes(byte(v), byte(v>>8), byte(v>>16), byte(v>>24)) }
func (b *instrBuilder) le64(v uint64) {
	for i := 0; i < 8; i++ {
		b.b(byte(v))
		v >>= 8
	}
}
func (b *instrBuilder) reserve32() int { pos := len(b.body); b.bytes(0, 0, 0, 0); return pos }
func (b *instrBuilder) reserve64() int {
	pos := len(b.body)
	for i := 0; i < 8; i++ {
		b.b(0)
	}
	return pos
}

func regnum(r asm.PhysReg) int { return int(r) }

func modrmByte(mod, reg, rm byte) byte { return mod<<6 | (reg&7)<<3 | (rm & 7) }
func sibByte(scale, index, base byte) byte { return scale<<6 | (index&7)<<3 | (base & 7) }

func operandWidth(o asm.Operand) int {
	if o.Kind == asm.OpReg {
		return o.Reg.Width
	}
	return o.Width
}

func fitsInt8(v int64) bool { return v >= -128 && v <= 127 }

// encodeModRM writes the ModRM (+SIB, +displacement fixup) bytes addressing
// rm, with regField occupying the ModRM.reg slot — either a real register
// number (reg-to-reg/mem forms) or a fixed opcode-extension digit (group1/
// group3 immediate forms). It mirrors add_mod_rm_arg in the reference
// encoder: register-direct is mod=3; [RSP]/[R12] need a SIB byte with no
// index; [RBP]/[R13] with a zero offset still need an explicit 8-bit
// displacement, since mod=0/rm=5 means RIP-relative instead.
func (b *instrBuilder) encodeModRM(regField int, rm asm.Operand) error {
	switch rm.Kind {
	case asm.OpReg:
		n := regnum(rm.Reg.Phys)
		if n >= 8 {
			b.rex |= rexB
		}
		if !rm.Deref {
			b.b(modrmByte(3, byte(regField), byte(n)))
			return nil
		}
		switch rm.Reg.Phys {
		case asm.RSP, asm.R12:
			b.b(modrmByte(0, byte(regField), 4))
			b.b(sibByte(0, 4, byte(n)))
		case asm.RBP, asm.R13:
			b.b(modrmByte(1, byte(regField), byte(n)))
			b.b(0)
		default:
			b.b(modrmByte(0, byte(regField), byte(n)))
		}
		return nil
	case asm.OpMem:
		if rm.Symbol != "" {
			b.b(modrmByte(0, byte(regField), 5))
			pos := b.reserve32()
			b.pending = append(b.pending, pendingFixup{pos: pos, size: 4, kind: fixupRelative, target: rm.Symbol, addend: rm.Offset})
			return nil
		}
		n := regnum(rm.Reg.Phys)
		if n >= 8 {
			b.rex |= rexB
		}
		needSIB := rm.Reg.Phys == asm.RSP || rm.Reg.Phys == asm.R12
		mod := byte(0)
		wantDisp8, wantDisp32 := false, false
		switch {
		case rm.Offset == 0 && rm.Reg.Phys != asm.RBP && rm.Reg.Phys != asm.R13:
			mod = 0
		case fitsInt8(rm.Offset):
			mod, wantDisp8 = 1, true
		default:
			mod, wantDisp32 = 2, true
		}
		if needSIB {
			b.b(modrmByte(mod, byte(regField), 4))
			b.b(sibByte(0, 4, byte(n)))
		} else {
			b.b(modrmByte(mod, byte(regField), byte(n)))
		}
		if wantDisp8 {
			b.b(byte(int8(rm.Offset)))
		} else if wantDisp32 {
			b.le32(int32(rm.Offset))
		}
		return nil
	}
	return fmt.Errorf("encoder: operand kind %v cannot address memory", rm.Kind)
}

type arithOp struct {
	ext              byte
	rm8, rm32        byte // "op r/m, reg" forms
	reg8, reg32      byte // "op reg, r/m" forms
}

var arithOps = map[asm.Opcode]arithOp{
	asm.OpADD: {0, 0x00, 0x01, 0x02, 0x03},
	asm.OpOR:  {1, 0x08, 0x09, 0x0A, 0x0B},
	asm.OpADC: {2, 0x10, 0x11, 0x12, 0x13},
	asm.OpSBB: {3, 0x18, 0x19, 0x1A, 0x1B},
	asm.OpAND: {4, 0x20, 0x21, 0x22, 0x23},
	asm.OpSUB: {5, 0x28, 0x29, 0x2A, 0x2B},
	asm.OpXOR: {6, 0x30, 0x31, 0x32, 0x33},
	asm.OpCMP: {7, 0x38, 0x39, 0x3A, 0x3B},
}

var jccOpcode = map[asm.CondCode]byte{
	asm.CondE: 0x84, asm.CondNE: 0x85, asm.CondL: 0x8C,
	asm.CondLE: 0x8E, asm.CondG: 0x8F, asm.CondGE: 0x8D,
}

var setccOpcode = map[asm.CondCode]byte{
	asm.CondE: 0x94, asm.CondNE: 0x95, asm.CondL: 0x9C,
	asm.CondLE: 0x9E, asm.CondG: 0x9F, asm.CondGE: 0x9D,
}

// encodeInstr appends instr's machine code to img.Text, queuing a fixup for
// any operand naming a symbol or label whose address isn't known yet.
func encodeInstr(instr asm.Instr, img *Image, fixups *[]fixup) error {
	b := &instrBuilder{}
	if err := buildInstr(b, instr); err != nil {
		return err
	}
	full := b.body
	adjust := 0
	if b.rex != 0 {
		full = append([]byte{0x40 | b.rex}, b.body...)
		adjust = 1
	}
	start := int64(len(img.Text))
	img.Text = append(img.Text, full...)
	end := int64(len(img.Text))
	for _, pf := range b.pending {
		*fixups = append(*fixups, fixup{
			offset:    start + int64(pf.pos+adjust),
			size:      pf.size,
			kind:      pf.kind,
			target:    pf.target,
			addend:    pf.addend,
			endOffset: end,
		})
	}
	return nil
}

func buildInstr(b *instrBuilder, instr asm.Instr) error {
	switch instr.Op {
	case asm.OpMOV:
		return buildMov(b, instr)
	case asm.OpMOVZX:
		return buildMovx(b, instr, false)
	case asm.OpMOVSX:
		return buildMovx(b, instr, true)
	case asm.OpADD, asm.OpOR, asm.OpADC, asm.OpSBB, asm.OpAND, asm.OpSUB, asm.OpXOR, asm.OpCMP:
		return buildArith(b, instr)
	case asm.OpTEST:
		return buildTest(b, instr)
	case asm.OpNOT, asm.OpNEG:
		return buildGroup3Unary(b, instr)
	case asm.OpSHL, asm.OpSHR:
		return buildShift(b, instr)
	case asm.OpIMUL:
		return buildImul(b, instr)
	case asm.OpIDIV:
		return buildIdiv(b, instr)
	case asm.OpCDQ:
		b.b(0x99)
		return nil
	case asm.OpPUSH:
		return buildPushPop(b, instr, 0x50)
	case asm.OpPOP:
		return buildPushPop(b, instr, 0x58)
	case asm.OpCALL:
		return buildCall(b, instr)
	case asm.OpJMP:
		b.b(0xE9)
		pos := b.reserve32()
		b.pending = append(b.pending, pendingFixup{pos: pos, size: 4, kind: fixupRelative, target: string(instr.Operands[0].Label)})
		return nil
	case asm.OpJcc:
		b.b(0x0F)
		b.b(jccOpcode[instr.Cond])
		pos := b.reserve32()
		b.pending = append(b.pending, pendingFixup{pos: pos, size: 4, kind: fixupRelative, target: string(instr.Operands[0].Label)})
		return nil
	case asm.OpSETcc:
		b.b(0x0F)
		b.b(setccOpcode[instr.Cond])
		return b.encodeModRM(0, instr.Operands[0])
	case asm.OpRET:
		b.b(0xC3)
		return nil
	}
	return fmt.Errorf("encoder: unhandled opcode %s", instr.Op)
}

// buildMov handles all three shapes asmgen emits: store-immediate
// (r/m, imm), and register-involving loads/stores ("reg, r/m" /
// "r/m, reg", picking direction by which side is the register).
// buildMovRegImm picks the compact reg-immediate opcode (0xB0+r for 8-bit,
// 0xB8+r otherwise) over the ModRM immediate form (0xC6/0xC7) whenever the
// destination is a bare register — the encoding a real assembler emits for
// e.g. MOV EAX, 42, and the one required for a 64-bit immediate (0xC7's
// immediate field is only ever 32 bits, sign-extended, so it can't carry an
// arbitrary 64-bit constant at all).
func buildMovRegImm(b *instrBuilder, dst, src asm.Operand, width int) error {
	n := regnum(dst.Reg.Phys)
	if n >= 8 {
		b.rex |= rexB
	}
	if width == 1 {
		b.b(0xB0 + byte(n&7))
		b.b(byte(src.Imm))
		return nil
	}
	b.b(0xB8 + byte(n&7))
	if width == 8 {
		b.le64(src.Imm)
		return nil
	}
	b.le32(int32(src.Imm))
	return nil
}

func buildMov(b *instrBuilder, instr asm.Instr) error {
	dst, src := instr.Operands[0], instr.Operands[1]
	width := operandWidth(dst)
	if width == 8 {
		b.rex |= rexW
	}
	if src.Kind == asm.OpImm {
		if dst.Kind == asm.OpReg && !dst.Deref {
			return buildMovRegImm(b, dst, src, width)
		}
		if width == 1 {
			b.b(0xC6)
		} else {
			b.b(0xC7)
		}
		if err := b.encodeModRM(0, dst); err != nil {
			return err
		}
		if width == 1 {
			b.b(byte(src.Imm))
		} else {
			b.le32(int32(src.Imm))
		}
		return nil
	}
	if src.Kind == asm.OpSym {
		// Materializing a function/global address as a 64-bit immediate
		// value (pkg/asmgen's asValue GlobalValue/LocalOp/FieldOp case).
		b.rex |= rexW
		n := regnum(dst.Reg.Phys)
		if n >= 8 {
			b.rex |= rexB
		}
		b.b(0xB8 + byte(n&7))
		pos := b.reserve64()
		b.pending = append(b.pending, pendingFixup{pos: pos, size: 8, kind: fixupAbsolute, target: src.Symbol, addend: src.Offset})
		return nil
	}
	if dst.Kind == asm.OpReg && !dst.Deref {
		if width == 1 {
			b.b(0x8A)
		} else {
			b.b(0x8B)
		}
		regField := regnum(dst.Reg.Phys)
		if regField >= 8 {
			b.rex |= rexR
		}
		return b.encodeModRM(regField, src)
	}
	if width == 1 {
		b.b(0x88)
	} else {
		b.b(0x89)
	}
	regField := regnum(src.Reg.Phys)
	if regField >= 8 {
		b.rex |= rexR
	}
	return b.encodeModRM(regField, dst)
}

// buildMovx handles MOVZX/MOVSX, including the two cases that aren't a
// literal 0F B6/B7/BE/BF two-byte opcode: 32-to-64 zero-extension, which
// x86-64 performs implicitly on any plain 32-bit write, and 32-to-64
// sign-extension, which needs the dedicated MOVSXD (0x63) opcode.
func buildMovx(b *instrBuilder, instr asm.Instr, signed bool) error {
	dst, src := instr.Operands[0], instr.Operands[1]
	srcWidth := operandWidth(src)
	dstWidth := operandWidth(dst)
	regField := regnum(dst.Reg.Phys)
	if regField >= 8 {
		b.rex |= rexR
	}
	if srcWidth == 4 && dstWidth == 8 {
		if signed {
			b.rex |= rexW
			b.b(0x63)
			return b.encodeModRM(regField, src)
		}
		// zero-extension to 64 bits is automatic on a 32-bit write.
		b.b(0x8B)
		return b.encodeModRM(regField, src)
	}
	if dstWidth == 8 {
		b.rex |= rexW
	}
	b.b(0x0F)
	switch {
	case !signed && srcWidth == 1:
		b.b(0xB6)
	case !signed && srcWidth == 2:
		b.b(0xB7)
	case signed && srcWidth == 1:
		b.b(0xBE)
	case signed && srcWidth == 2:
		b.b(0xBF)
	default:
		return fmt.Errorf("encoder: unsupported movzx/movsx width pair %d -> %d", srcWidth, dstWidth)
	}
	return b.encodeModRM(regField, src)
}

func buildArith(b *instrBuilder, instr asm.Instr) error {
	dst, src := instr.Operands[0], instr.Operands[1]
	width := operandWidth(dst)
	info := arithOps[instr.Op]
	if width == 8 {
		b.rex |= rexW
	}
	if src.Kind == asm.OpImm {
		if width == 1 {
			b.b(0x80)
		} else {
			b.b(0x81)
		}
		if err := b.encodeModRM(int(info.ext), dst); err != nil {
			return err
		}
		if width == 1 {
			b.b(byte(src.Imm))
		} else {
			b.le32(int32(src.Imm))
		}
		return nil
	}
	if dst.Kind == asm.OpReg && !dst.Deref {
		if width == 1 {
			b.b(info.reg8)
		} else {
			b.b(info.reg32)
		}
		regField := regnum(dst.Reg.Phys)
		if regField >= 8 {
			b.rex |= rexR
		}
		return b.encodeModRM(regField, src)
	}
	if width == 1 {
		b.b(info.rm8)
	} else {
		b.b(info.rm32)
	}
	regField := regnum(src.Reg.Phys)
	if regField >= 8 {
		b.rex |= rexR
	}
	return b.encodeModRM(regField, dst)
}

func buildTest(b *instrBuilder, instr asm.Instr) error {
	dst, src := instr.Operands[0], instr.Operands[1]
	width := operandWidth(dst)
	if width == 8 {
		b.rex |= rexW
	}
	if src.Kind == asm.OpImm {
		if width == 1 {
			b.b(0xF6)
		} else {
			b.b(0xF7)
		}
		if err := b.encodeModRM(0, dst); err != nil {
			return err
		}
		if width == 1 {
			b.b(byte(src.Imm))
		} else {
			b.le32(int32(src.Imm))
		}
		return nil
	}
	if width == 1 {
		b.b(0x84)
	} else {
		b.b(0x85)
	}
	regField := regnum(src.Reg.Phys)
	if regField >= 8 {
		b.rex |= rexR
	}
	return b.encodeModRM(regField, dst)
}

func buildGroup3Unary(b *instrBuilder, instr asm.Instr) error {
	rm := instr.Operands[0]
	width := operandWidth(rm)
	if width == 8 {
		b.rex |= rexW
	}
	ext := 2
	if instr.Op == asm.OpNEG {
		ext = 3
	}
	if width == 1 {
		b.b(0xF6)
	} else {
		b.b(0xF7)
	}
	return b.encodeModRM(ext, rm)
}

func buildShift(b *instrBuilder, instr asm.Instr) error {
	dst, count := instr.Operands[0], instr.Operands[1]
	width := operandWidth(dst)
	if width == 8 {
		b.rex |= rexW
	}
	ext := 4
	if instr.Op == asm.OpSHR {
		ext = 5
	}
	if count.Kind != asm.OpImm {
		return fmt.Errorf("encoder: only immediate shift counts are supported")
	}
	if width == 1 {
		b.b(0xC0)
	} else {
		b.b(0xC1)
	}
	if err := b.encodeModRM(ext, dst); err != nil {
		return err
	}
	b.b(byte(count.Imm))
	return nil
}

// buildImul covers the two forms pkg/asmgen emits: two-operand (reg *=
// r/m) via the 0F AF two-byte opcode, and three-operand (reg = r/m * imm)
// via 0x69 id. The reference encoder picks an 8-bit immediate opcode when
// the constant fits; this always takes the imm32 form for simplicity.
func buildImul(b *instrBuilder, instr asm.Instr) error {
	dst := instr.Operands[0]
	width := operandWidth(dst)
	if width == 8 {
		b.rex |= rexW
	}
	regField := regnum(dst.Reg.Phys)
	if regField >= 8 {
		b.rex |= rexR
	}
	if len(instr.Operands) == 3 {
		rm, imm := instr.Operands[1], instr.Operands[2]
		b.b(0x69)
		if err := b.encodeModRM(regField, rm); err != nil {
			return err
		}
		b.le32(int32(imm.Imm))
		return nil
	}
	b.b(0x0F)
	b.b(0xAF)
	return b.encodeModRM(regField, instr.Operands[1])
}

func buildIdiv(b *instrBuilder, instr asm.Instr) error {
	rm := instr.Operands[0]
	width := operandWidth(rm)
	if width == 8 {
		b.rex |= rexW
	}
	b.b(0xF7)
	return b.encodeModRM(7, rm)
}

func buildPushPop(b *instrBuilder, instr asm.Instr, base byte) error {
	reg := instr.Operands[0]
	n := regnum(reg.Reg.Phys)
	if n >= 8 {
		b.rex |= rexB
	}
	b.b(base + byte(n&7))
	return nil
}

func buildCall(b *instrBuilder, instr asm.Instr) error {
	target := instr.Operands[0]
	if target.Kind == asm.OpSym {
		b.b(0xE8)
		pos := b.reserve32()
		b.pending = append(b.pending, pendingFixup{pos: pos, size: 4, kind: fixupRelative, target: target.Symbol, addend: target.Offset})
		return nil
	}
	b.b(0xFF)
	return b.encodeModRM(2, target)
}
