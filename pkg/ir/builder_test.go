package ir

import (
	"strings"
	"testing"
)

func i32() Type { return Tint{Width: 32} }

func TestBuildReturnConstant(t *testing.T) {
	// int f(void) { return 42; }
	b := NewBuilder()
	g := b.AddFunction("f", i32(), nil)
	b.SetFunction(g.Function)
	entry := b.NewBlock("entry")
	b.SetBlock(entry)
	b.BuildRet(b.ValueConst(i32(), 42))

	if !g.Defined {
		t.Fatal("function should be marked defined once it has a block")
	}
	if len(g.Function.Blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(g.Function.Blocks))
	}
	block := g.Function.Blocks[0]
	if len(block.Instrs) != 1 {
		t.Fatalf("expected 1 instruction, got %d", len(block.Instrs))
	}
	if !block.IsTerminated() {
		t.Fatal("block should be terminated")
	}
	ret, ok := block.Instrs[0].Op.(RetOp)
	if !ok {
		t.Fatalf("expected RetOp, got %T", block.Instrs[0].Op)
	}
	c, ok := IsConst(ret.Value)
	if !ok || c.Payload != 42 {
		t.Fatalf("expected constant 42, got %+v", ret.Value)
	}
}

func TestBuildLocalAndArithmetic(t *testing.T) {
	// int f(int a, int b) { int c = a + b; return c; }
	b := NewBuilder()
	g := b.AddFunction("f", i32(), []Type{i32(), i32()})
	b.SetFunction(g.Function)
	entry := b.NewBlock("entry")
	b.SetBlock(entry)

	slot := b.BuildLocal(i32())
	argA := b.ValueArg(i32(), 0)
	argB := b.ValueArg(i32(), 1)
	b.BuildStore(slot, argA, i32())
	_ = argB

	loaded := b.BuildLoad(slot, i32())
	sum := b.BuildAdd(loaded, argB)
	b.BuildStore(slot, sum, i32())
	reloaded := b.BuildLoad(slot, i32())
	b.BuildRet(reloaded)

	if len(entry.Instrs) != 7 {
		t.Fatalf("expected 7 instructions, got %d", len(entry.Instrs))
	}
	if _, ok := entry.Instrs[0].Op.(LocalOp); !ok {
		t.Fatalf("expected first instr to be LOCAL, got %T", entry.Instrs[0].Op)
	}
}

func TestConstantFoldingArithmetic(t *testing.T) {
	b := NewBuilder()
	a := b.ValueConst(i32(), 10)
	c := b.ValueConst(i32(), 3)

	sum := b.BuildAdd(a, c)
	if v, ok := IsConst(sum); !ok || v.Payload != 13 {
		t.Fatalf("10 + 3 should fold to 13, got %+v", sum)
	}

	diff := b.BuildSub(b.ValueConst(i32(), 1), b.ValueConst(i32(), 2))
	v, ok := IsConst(diff)
	if !ok {
		t.Fatal("1 - 2 should fold to a constant")
	}
	want := ^uint64(0) // 1 - 2 wraps to 0xFFFFFFFFFFFFFFFF
	if v.Payload != want {
		t.Fatalf("1 - 2 should wrap to %d, got %d", want, v.Payload)
	}

	eq := b.BuildEq(b.ValueConst(i32(), 5), b.ValueConst(i32(), 5))
	if v, ok := IsConst(eq); !ok || v.Payload != 1 {
		t.Fatalf("5 == 5 should fold to 1, got %+v", eq)
	}

	neq := b.BuildNeq(b.ValueConst(i32(), 5), b.ValueConst(i32(), 6))
	if v, ok := IsConst(neq); !ok || v.Payload != 1 {
		t.Fatalf("5 != 6 should fold to 1, got %+v", neq)
	}
}

func TestConstantFoldingDoesNotApplyToNonConstants(t *testing.T) {
	b := NewBuilder()
	g := b.AddFunction("f", i32(), []Type{i32()})
	b.SetFunction(g.Function)
	entry := b.NewBlock("entry")
	b.SetBlock(entry)

	sum := b.BuildAdd(b.ValueArg(i32(), 0), b.ValueConst(i32(), 1))
	if _, ok := IsConst(sum); ok {
		t.Fatal("arg + const should not fold")
	}
	if _, ok := sum.(InstrValue); !ok {
		t.Fatalf("expected an instruction reference, got %T", sum)
	}
}

func TestBuildBinaryTypeMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic on mismatched operand types")
		}
	}()
	b := NewBuilder()
	b.BuildAdd(b.ValueConst(i32(), 1), b.ValueConst(Tint{Width: 64}, 1))
}

func TestDoubleTerminatorPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic when emitting after a terminator")
		}
	}()
	b := NewBuilder()
	g := b.AddFunction("f", Tvoid{}, nil)
	b.SetFunction(g.Function)
	entry := b.NewBlock("entry")
	b.SetBlock(entry)
	b.BuildRetVoid()
	b.BuildRetVoid()
}

func TestStructLayout(t *testing.T) {
	b := NewBuilder()
	s := b.AddStruct("point", 3)
	b.SetField(s, 0, Tint{Width: 8})
	b.SetField(s, 1, i32())
	b.SetField(s, 2, Tint{Width: 64})
	b.CompleteStruct(s)

	if s.Fields[0].Offset != 0 || s.Fields[1].Offset != 4 || s.Fields[2].Offset != 8 {
		t.Fatalf("unexpected field offsets: %+v", s.Fields)
	}
	if s.Size != 16 {
		t.Fatalf("expected size 16, got %d", s.Size)
	}
	if s.Align != 8 {
		t.Fatalf("expected alignment 8, got %d", s.Align)
	}
}

func TestFieldInstruction(t *testing.T) {
	b := NewBuilder()
	s := b.AddStruct("p", 2)
	b.SetField(s, 0, i32())
	b.SetField(s, 1, i32())
	b.CompleteStruct(s)

	g := b.AddFunction("f", i32(), []Type{Tpointer{}})
	b.SetFunction(g.Function)
	entry := b.NewBlock("entry")
	b.SetBlock(entry)

	ptr := b.ValueArg(Tpointer{}, 0)
	fx := b.BuildField(ptr, s, 0)
	fy := b.BuildField(ptr, s, 1)
	x := b.BuildLoad(fx, i32())
	y := b.BuildLoad(fy, i32())
	b.BuildRet(b.BuildAdd(x, y))

	if len(entry.Instrs) != 5 {
		t.Fatalf("expected 5 instructions, got %d", len(entry.Instrs))
	}
	field0 := entry.Instrs[0].Op.(FieldOp)
	if field0.FieldIndex != 0 || field0.StructType != s {
		t.Fatalf("unexpected field op: %+v", field0)
	}
}

func TestDumpTransUnitDeterministic(t *testing.T) {
	build := func() *TransUnit {
		b := NewBuilder()
		g := b.AddFunction("f", i32(), nil)
		b.SetFunction(g.Function)
		entry := b.NewBlock("entry")
		b.SetBlock(entry)
		b.BuildRet(b.ValueConst(i32(), 42))
		return b.TU
	}

	var buf1, buf2 strings.Builder
	DumpTransUnit(&buf1, build())
	DumpTransUnit(&buf2, build())

	if buf1.String() != buf2.String() {
		t.Fatal("dump should be deterministic across identical builds")
	}
	if !strings.Contains(buf1.String(), "ret(42)") {
		t.Fatalf("expected dump to contain ret(42), got:\n%s", buf1.String())
	}
	if !strings.Contains(buf1.String(), "entry:") {
		t.Fatalf("expected dump to contain block label, got:\n%s", buf1.String())
	}
}
