package regalloc

import (
	"testing"

	"github.com/nccback/nccback/pkg/asm"
)

func TestAllocateSimpleChain(t *testing.T) {
	fn := asm.NewFunction("f")
	a := fn.NewVReg(4)
	b := fn.NewVReg(4)
	c := fn.NewVReg(4)
	fn.Body = []asm.Instr{
		asm.Emit2(asm.OpMOV, asm.Register(a), asm.Imm(1)),
		asm.Emit2(asm.OpMOV, asm.Register(b), asm.Imm(2)),
		asm.Emit2(asm.OpMOV, asm.Register(c), asm.Register(a)),
		asm.Emit2(asm.OpADD, asm.Register(c), asm.Register(b)),
	}
	Allocate(fn)

	for i, instr := range fn.Body {
		for _, o := range instr.Operands {
			if o.Kind == asm.OpReg && o.Reg.Virtual {
				t.Fatalf("instruction %d still references virtual register %#v", i, o.Reg)
			}
		}
	}
}

func TestAllocateReusesExpiredRegister(t *testing.T) {
	fn := asm.NewFunction("f")
	a := fn.NewVReg(4) // dead after instruction 0
	b := fn.NewVReg(4) // live from 1 to end
	fn.Body = []asm.Instr{
		asm.Emit2(asm.OpMOV, asm.Register(a), asm.Imm(1)),
		asm.Emit2(asm.OpMOV, asm.Register(b), asm.Register(a)),
		asm.Emit2(asm.OpADD, asm.Register(b), asm.Imm(1)),
	}
	Allocate(fn)
	if fn.VRegs[0].AssignedPhysical == asm.NoPhysReg || fn.VRegs[1].AssignedPhysical == asm.NoPhysReg {
		t.Fatal("expected both vregs to receive a physical register")
	}
}

func TestAllocatePreColoredClaimsItsRegister(t *testing.T) {
	fn := asm.NewFunction("f")
	arg := fn.NewPreColoredVReg(4, asm.RDI)
	dst := fn.NewVReg(4)
	fn.Body = []asm.Instr{
		asm.Emit2(asm.OpMOV, asm.Register(dst), asm.Register(arg)),
	}
	Allocate(fn)
	if fn.VRegs[1].AssignedPhysical == asm.RDI {
		t.Fatalf("expected the non-precolored vreg to avoid RDI, got %v", fn.VRegs[1].AssignedPhysical)
	}
}

func TestAllocateInsertsCallerSaveSpillsAcrossCall(t *testing.T) {
	fn := asm.NewFunction("f")
	live := fn.NewVReg(8) // must survive the call
	argReg := fn.NewPreColoredVReg(8, asm.RDI)
	resultReg := fn.NewPreColoredVReg(8, asm.RAX)
	fn.Body = []asm.Instr{
		asm.Emit2(asm.OpMOV, asm.Register(live), asm.Imm(42)),
		asm.Emit2(asm.OpMOV, asm.Register(argReg), asm.Imm(1)),
		{
			Op:       asm.OpCALL,
			Operands: []asm.Operand{asm.Sym("g", true)},
			ExtraUse: []asm.Reg{argReg},
			ExtraDef: []asm.Reg{resultReg},
		},
		asm.Emit2(asm.OpADD, asm.Register(live), asm.Register(resultReg)),
	}
	Allocate(fn)

	var sawPush, sawPop, sawCall bool
	for i, instr := range fn.Body {
		switch instr.Op {
		case asm.OpPUSH:
			sawPush = true
		case asm.OpCALL:
			sawCall = true
			if !sawPush {
				t.Fatalf("expected any caller-save push before the call, instruction %d", i)
			}
		case asm.OpPOP:
			if sawCall {
				sawPop = true
			}
		}
	}
	if !sawPush || !sawPop {
		t.Fatalf("expected push/pop to bracket the call, got:\n%#v", fn.Body)
	}
}

func TestClassifyMovDestinationIsDefOnly(t *testing.T) {
	r := asm.VirtualReg(0, 4)
	src := asm.VirtualReg(1, 4)
	defs, uses := classify(asm.Emit2(asm.OpMOV, asm.Register(r), asm.Register(src)))
	if len(defs) != 1 || defs[0] != r {
		t.Fatalf("expected dst as the sole def, got %#v", defs)
	}
	if len(uses) != 1 || uses[0] != src {
		t.Fatalf("expected src as the sole use, got %#v", uses)
	}
}

func TestClassifyAddIsReadModifyWrite(t *testing.T) {
	dst := asm.VirtualReg(0, 4)
	src := asm.VirtualReg(1, 4)
	defs, uses := classify(asm.Emit2(asm.OpADD, asm.Register(dst), asm.Register(src)))
	if len(defs) != 1 || defs[0] != dst {
		t.Fatalf("expected dst as a def, got %#v", defs)
	}
	if len(uses) != 2 {
		t.Fatalf("expected dst and src both as uses, got %#v", uses)
	}
}
