package stacking

import (
	"strings"
	"testing"

	"github.com/nccback/nccback/pkg/asm"
)

func dumpFunc(fn *asm.Function) string {
	var sb strings.Builder
	asm.NewPrinter(&sb).PrintProgram(&asm.Program{Functions: []*asm.Function{fn}})
	return sb.String()
}

func TestSynthesizeFrameNoLocalsNoCalleeSaved(t *testing.T) {
	fn := asm.NewFunction("f")
	rax := asm.PhysicalReg(asm.RAX, 4)
	fn.Body = []asm.Instr{
		asm.Emit2(asm.OpMOV, asm.Register(rax), asm.Imm(0)),
		asm.Emit1(asm.OpJMP, asm.LabelOperand(fn.RetLabel)),
	}
	SynthesizeFrame(fn)

	if len(fn.Prologue) != 2 {
		t.Fatalf("expected push rbp + mov rbp,rsp only, got %#v", fn.Prologue)
	}
	if fn.Prologue[0].Op != asm.OpPUSH || fn.Prologue[0].Label != "f" {
		t.Fatalf("expected the entry label on the first prologue instruction, got %#v", fn.Prologue[0])
	}
	if fn.Body[0].Label != "" {
		t.Fatalf("expected the placeholder entry label removed from Body, got %#v", fn.Body[0])
	}
	last := fn.Epilogue[len(fn.Epilogue)-1]
	if last.Op != asm.OpRET {
		t.Fatalf("expected the epilogue to end in ret, got %#v", last)
	}
	if fn.Epilogue[0].Label != fn.RetLabel {
		t.Fatalf("expected the ret label on the first epilogue instruction, got %#v", fn.Epilogue[0])
	}
}

func TestSynthesizeFrameLocalsAlignedTo16(t *testing.T) {
	fn := asm.NewFunction("f")
	fn.LocalStackUsage = 4
	fn.Body = []asm.Instr{asm.Emit1(asm.OpJMP, asm.LabelOperand(fn.RetLabel))}
	SynthesizeFrame(fn)

	if fn.LocalStackUsage != 16 {
		t.Fatalf("expected the frame padded up to 16, got %d", fn.LocalStackUsage)
	}
	out := dumpFunc(fn)
	if !strings.Contains(out, "sub\t$16, %rsp") {
		t.Fatalf("expected a sub $16, %%rsp in the prologue, got:\n%s", out)
	}
	if !strings.Contains(out, "add\t$16, %rsp") {
		t.Fatalf("expected a matching add $16, %%rsp in the epilogue, got:\n%s", out)
	}
}

func TestSynthesizeFramePreservesUsedCalleeSaved(t *testing.T) {
	fn := asm.NewFunction("f")
	rbx := asm.PhysicalReg(asm.RBX, 8)
	fn.Body = []asm.Instr{
		asm.Emit2(asm.OpMOV, asm.Register(rbx), asm.Imm(1)),
		asm.Emit1(asm.OpJMP, asm.LabelOperand(fn.RetLabel)),
	}
	SynthesizeFrame(fn)

	out := dumpFunc(fn)
	if !strings.Contains(out, "push\t%rbx") {
		t.Fatalf("expected rbx pushed in the prologue, got:\n%s", out)
	}
	if !strings.Contains(out, "pop\t%rbx") {
		t.Fatalf("expected rbx popped in the epilogue, got:\n%s", out)
	}
	// rbx pushed after rbp -> one used callee-save -> (16 + 8) % 16 != 0, so
	// an extra 8 bytes of padding is needed to keep rsp 16-aligned at calls.
	if fn.LocalStackUsage != 8 {
		t.Fatalf("expected an 8-byte pad frame to re-align rsp around the rbx push, got %d", fn.LocalStackUsage)
	}
}

func TestSynthesizeFrameEpilogueRestoresInReverseOrder(t *testing.T) {
	fn := asm.NewFunction("f")
	rbx := asm.PhysicalReg(asm.RBX, 8)
	r12 := asm.PhysicalReg(asm.R12, 8)
	fn.Body = []asm.Instr{
		asm.Emit2(asm.OpMOV, asm.Register(rbx), asm.Imm(1)),
		asm.Emit2(asm.OpMOV, asm.Register(r12), asm.Imm(2)),
		asm.Emit1(asm.OpJMP, asm.LabelOperand(fn.RetLabel)),
	}
	SynthesizeFrame(fn)

	pushRBX, pushR12 := -1, -1
	for i, instr := range fn.Prologue {
		if instr.Op == asm.OpPUSH && instr.Operands[0].Reg.Phys == asm.RBX {
			pushRBX = i
		}
		if instr.Op == asm.OpPUSH && instr.Operands[0].Reg.Phys == asm.R12 {
			pushR12 = i
		}
	}
	if pushRBX == -1 || pushR12 == -1 || pushRBX > pushR12 {
		t.Fatalf("expected rbx pushed before r12 in the prologue, got %#v", fn.Prologue)
	}
	popRBX, popR12 := -1, -1
	for i, instr := range fn.Epilogue {
		if instr.Op == asm.OpPOP && instr.Operands[0].Reg.Phys == asm.RBX {
			popRBX = i
		}
		if instr.Op == asm.OpPOP && instr.Operands[0].Reg.Phys == asm.R12 {
			popR12 = i
		}
	}
	if popRBX == -1 || popR12 == -1 || popR12 > popRBX {
		t.Fatalf("expected r12 popped before rbx in the epilogue (reverse order), got %#v", fn.Epilogue)
	}
}
