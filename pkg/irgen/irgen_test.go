package irgen

import (
	"strings"
	"testing"

	"github.com/nccback/nccback/pkg/ir"
	"github.com/nccback/nccback/pkg/parser"
)

func lowerSource(t *testing.T, src string) *ir.TransUnit {
	t.Helper()
	tu, err := parser.ParseString(src)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return Lower(tu)
}

func dump(tu *ir.TransUnit) string {
	var sb strings.Builder
	ir.DumpTransUnit(&sb, tu)
	return sb.String()
}

func findFunction(t *testing.T, tu *ir.TransUnit, name string) *ir.Function {
	t.Helper()
	g := tu.FindGlobal(name)
	if g == nil || g.Function == nil {
		t.Fatalf("no function named %q in lowered module", name)
	}
	return g.Function
}

func TestLowerReturnConstant(t *testing.T) {
	tu := lowerSource(t, `int f(void) { return 42; }`)
	fn := findFunction(t, tu, "f")
	if len(fn.Blocks) != 1 {
		t.Fatalf("expected a single block, got %d", len(fn.Blocks))
	}
	entry := fn.Entry()
	if !entry.IsTerminated() {
		t.Fatalf("entry block is not terminated")
	}
	ret, ok := entry.Terminator().Op.(ir.RetOp)
	if !ok {
		t.Fatalf("expected a RET terminator, got %T", entry.Terminator().Op)
	}
	cv, ok := ir.IsConst(ret.Value)
	if !ok || cv.Payload != 42 {
		t.Fatalf("expected the constant 42, got %#v", ret.Value)
	}
}

func TestLowerLocalsAndArithmetic(t *testing.T) {
	tu := lowerSource(t, `
		int add(void) {
			int a;
			int b;
			a = 2;
			b = 3;
			return a + b;
		}
	`)
	fn := findFunction(t, tu, "add")
	entry := fn.Entry()
	if !entry.IsTerminated() {
		t.Fatalf("entry block not terminated")
	}
	foundAdd := false
	for _, instr := range entry.Instrs {
		if instr.Opcode() == ir.OpAdd {
			foundAdd = true
		}
	}
	if !foundAdd {
		t.Fatalf("expected an ADD instruction in the lowered body, got:\n%s", dump(tu))
	}
}

func TestLowerIfElse(t *testing.T) {
	tu := lowerSource(t, `
		int choose(int x) {
			if (x) {
				return 1;
			} else {
				return 0;
			}
		}
	`)
	fn := findFunction(t, tu, "choose")
	if len(fn.Blocks) != 4 {
		t.Fatalf("expected four blocks (entry, then, else, after-unreachable), got %d:\n%s", len(fn.Blocks), dump(tu))
	}
	entry := fn.Entry()
	if _, ok := entry.Terminator().Op.(ir.CondOp); !ok {
		t.Fatalf("expected entry to terminate with COND, got %T", entry.Terminator().Op)
	}
	after := fn.Blocks[3]
	if after.IsTerminated() {
		t.Fatalf("after block should be left unreachable/unterminated when both branches return")
	}
}

func TestLowerWhileWithBreak(t *testing.T) {
	tu := lowerSource(t, `
		int countdown(int n) {
			while (n) {
				if (n) {
					break;
				}
				n = n - 1;
			}
			return n;
		}
	`)
	fn := findFunction(t, tu, "countdown")
	var sawCond, sawBranchBack bool
	for _, b := range fn.Blocks {
		if term := b.Terminator(); term != nil {
			if _, ok := term.Op.(ir.CondOp); ok {
				sawCond = true
			}
			if br, ok := term.Op.(ir.BranchOp); ok && br.Target.Name == "while.cond" {
				sawBranchBack = true
			}
		}
	}
	if !sawCond {
		t.Fatalf("expected a COND terminator for the loop test, got:\n%s", dump(tu))
	}
	if !sawBranchBack {
		t.Fatalf("expected a branch back to the loop header, got:\n%s", dump(tu))
	}
}

func TestLowerStructFieldAccess(t *testing.T) {
	tu := lowerSource(t, `
		struct point { int x; int y; };
		int sum(struct point *p) {
			return p->x + p->y;
		}
	`)
	if len(tu.Structs) != 1 || tu.Structs[0].Name != "point" {
		t.Fatalf("expected one struct named point, got %#v", tu.Structs)
	}
	fn := findFunction(t, tu, "sum")
	var sawField int
	for _, instr := range fn.Entry().Instrs {
		if instr.Opcode() == ir.OpField {
			sawField++
		}
	}
	if sawField != 2 {
		t.Fatalf("expected two FIELD instructions (one per member access), got %d:\n%s", sawField, dump(tu))
	}
}

func TestLowerFunctionCall(t *testing.T) {
	tu := lowerSource(t, `
		int square(int x) {
			return x * x;
		}
		int apply(int v) {
			return square(v);
		}
	`)
	fn := findFunction(t, tu, "apply")
	var sawCall bool
	for _, instr := range fn.Entry().Instrs {
		if call, ok := instr.Op.(ir.CallOp); ok {
			sawCall = true
			gv, ok := call.Callee.(ir.GlobalValue)
			if !ok || gv.Global.Name != "square" {
				t.Fatalf("expected a call to square, got %#v", call.Callee)
			}
		}
	}
	if !sawCall {
		t.Fatalf("expected a CALL instruction, got:\n%s", dump(tu))
	}
}

func TestLowerPointerArithmeticAndIndex(t *testing.T) {
	tu := lowerSource(t, `
		int first(int *a) {
			return a[0];
		}
		int second(int *a) {
			return *(a + 1);
		}
	`)
	firstFn := findFunction(t, tu, "first")
	secondFn := findFunction(t, tu, "second")
	for name, fn := range map[string]*ir.Function{"first": firstFn, "second": secondFn} {
		var sawLoad bool
		for _, instr := range fn.Entry().Instrs {
			if instr.Opcode() == ir.OpLoad {
				sawLoad = true
			}
		}
		if !sawLoad {
			t.Fatalf("%s: expected a LOAD from the computed address, got:\n%s", name, dump(tu))
		}
	}
}

func TestLowerForLoop(t *testing.T) {
	tu := lowerSource(t, `
		int sumTo(int n) {
			int total;
			total = 0;
			for (int i = 0; i < n; i = i + 1) {
				total = total + i;
			}
			return total;
		}
	`)
	fn := findFunction(t, tu, "sumTo")
	var names []string
	for _, b := range fn.Blocks {
		names = append(names, b.Name)
	}
	found := map[string]bool{}
	for _, n := range names {
		found[n] = true
	}
	for _, want := range []string{"for.cond", "for.body", "for.after"} {
		if !found[want] {
			t.Fatalf("expected block %q among %v", want, names)
		}
	}
}

func TestLowerGlobalVariableWithInitializer(t *testing.T) {
	tu := lowerSource(t, `int counter = 7;`)
	g := tu.FindGlobal("counter")
	if g == nil {
		t.Fatalf("expected global named counter")
	}
	if g.Init == nil || g.Init.Payload != 7 {
		t.Fatalf("expected initializer 7, got %#v", g.Init)
	}
}

func TestLowerShiftOperatorPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic lowering a shift operator")
		}
	}()
	lowerSource(t, `int f(int x) { return x << 1; }`)
}
