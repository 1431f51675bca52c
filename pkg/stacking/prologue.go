// Package stacking synthesizes each function's prologue and epilogue once
// register allocation has fixed every virtual register to a physical one,
// computing the final frame size and which callee-save registers the
// function actually touched.
package stacking

import "github.com/nccback/nccback/pkg/asm"

// SynthesizeFrame builds fn.Prologue/fn.Epilogue around the already-
// allocated fn.Body: PUSH RBP; MOV RBP, RSP; PUSH each used callee-save;
// SUB RSP, frame, followed on the way out by the mirror image ending in
// RET. The SUB/ADD pair is omitted when the frame is 0. The entry label pkg/asmgen placed on Body's first instruction moves
// to the new Prologue's first instruction, since Prologue, not Body, is now
// the function's actual first emitted block.
func SynthesizeFrame(fn *asm.Function) {
	used := usedCalleeSaved(fn)
	frame := alignFrame(fn.LocalStackUsage, len(used))

	entryLabel := asm.Label(fn.Name)
	if len(fn.Body) > 0 && fn.Body[0].Label == entryLabel {
		fn.Body[0].Label = ""
	}

	rbp := asm.Register(asm.PhysicalReg(asm.RBP, 8))
	rsp := asm.Register(asm.PhysicalReg(asm.RSP, 8))

	prologue := []asm.Instr{
		asm.Emit1(asm.OpPUSH, rbp).WithLabel(entryLabel),
		asm.Emit2(asm.OpMOV, rbp, rsp),
	}
	for _, r := range used {
		prologue = append(prologue, asm.Emit1(asm.OpPUSH, asm.Register(asm.PhysicalReg(r, 8))))
	}
	if frame > 0 {
		prologue = append(prologue, asm.Emit2(asm.OpSUB, rsp, asm.Imm(uint64(frame))))
	}
	fn.Prologue = prologue

	var epilogue []asm.Instr
	if frame > 0 {
		epilogue = append(epilogue, asm.Emit2(asm.OpADD, rsp, asm.Imm(uint64(frame))))
	}
	for i := len(used) - 1; i >= 0; i-- {
		epilogue = append(epilogue, asm.Emit1(asm.OpPOP, asm.Register(asm.PhysicalReg(used[i], 8))))
	}
	epilogue = append(epilogue, asm.Emit1(asm.OpPOP, rbp))
	epilogue = append(epilogue, asm.Emit0(asm.OpRET))
	epilogue[0] = epilogue[0].WithLabel(fn.RetLabel)
	fn.Epilogue = epilogue

	fn.LocalStackUsage = frame
}

// alignFrame rounds raw up to a 16-byte multiple, then — since RSP is
// exactly 16-aligned right after PUSH RBP — adds one more 8-byte pad if the
// numPushed callee-save pushes that follow would otherwise leave RSP
// mis-aligned for any CALL the body makes (open question decision 4).
func alignFrame(raw int64, numPushed int) int64 {
	padded := raw
	if rem := padded % 16; rem != 0 {
		padded += 16 - rem
	}
	if (padded+int64(numPushed)*8)%16 != 0 {
		padded += 8
	}
	return padded
}

func usedCalleeSaved(fn *asm.Function) []asm.PhysReg {
	touched := make(map[asm.PhysReg]bool)
	mark := func(r asm.Reg) {
		if !r.Virtual {
			touched[r.Phys] = true
		}
	}
	for _, instr := range fn.Body {
		for _, o := range instr.Operands {
			if o.Kind == asm.OpReg || (o.Kind == asm.OpMem && o.Symbol == "") {
				mark(o.Reg)
			}
		}
		for _, r := range instr.ExtraUse {
			mark(r)
		}
		for _, r := range instr.ExtraDef {
			mark(r)
		}
	}
	var used []asm.PhysReg
	for _, r := range asm.CalleeSaved {
		if touched[r] {
			used = append(used, r)
		}
	}
	return used
}
