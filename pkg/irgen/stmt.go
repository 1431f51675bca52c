package irgen

import (
	"github.com/nccback/nccback/pkg/cabs"
	"github.com/nccback/nccback/pkg/ir"
)

func (g *Generator) lowerStmt(s cabs.Stmt) {
	switch st := s.(type) {
	case *cabs.CompoundStmt:
		g.lowerCompoundStmt(st)
	case cabs.DeclStmt:
		g.lowerLocalDecl(st.Decl)
	case cabs.ExprStmt:
		if st.Expr != nil {
			g.lowerExprRV(st.Expr)
		}
	case cabs.ReturnStmt:
		g.lowerReturnStmt(st)
	case cabs.IfStmt:
		g.lowerIfStmt(st)
	case cabs.WhileStmt:
		g.lowerWhileStmt(st)
	case cabs.ForStmt:
		g.lowerForStmt(st)
	case cabs.BreakStmt:
		g.lowerBreakStmt()
	default:
		panic("irgen: unrecognized statement form")
	}
}

// lowerCompoundStmt lowers a `{ ... }` block in its own value scope,
// stopping as soon as the current block gains a terminator (a return or
// break makes the rest of the block dead code, which is left unlowered
// rather than appended after a terminator).
func (g *Generator) lowerCompoundStmt(cs *cabs.CompoundStmt) {
	g.pushValueScope()
	defer g.popValueScope()
	for _, item := range cs.Items {
		if g.builder.CurrentBlock.IsTerminated() {
			break
		}
		g.lowerStmt(item)
	}
}

func (g *Generator) lowerReturnStmt(st cabs.ReturnStmt) {
	if st.Expr == nil {
		g.builder.BuildRetVoid()
		return
	}
	val, _ := g.lowerExprRV(st.Expr)
	val = g.coerceToType(val, g.returnCType)
	g.builder.BuildRet(val)
}

// lowerIfStmt builds then/[else]/after blocks up front, lowers each branch
// into its block, and only afterward returns to the pre-existing block to
// emit the COND — matching the construction order spec.md section 4.2
// describes. A branch that already falls through a return/break does not
// get a redundant branch-to-after appended; if both branches terminate, the
// after block is created but left unreachable, which is expected (it is
// simply never branched into).
func (g *Generator) lowerIfStmt(st cabs.IfStmt) {
	condBlock := g.builder.CurrentBlock

	thenBlock := g.builder.NewBlock("if.then")
	var elseBlock *ir.Block
	if st.Else != nil {
		elseBlock = g.builder.NewBlock("if.else")
	}
	afterBlock := g.builder.NewBlock("if.after")

	g.builder.SetBlock(thenBlock)
	g.lowerStmt(st.Then)
	if !g.builder.CurrentBlock.IsTerminated() {
		g.builder.BuildBranch(afterBlock)
	}

	elseTarget := afterBlock
	if elseBlock != nil {
		elseTarget = elseBlock
		g.builder.SetBlock(elseBlock)
		g.lowerStmt(st.Else)
		if !g.builder.CurrentBlock.IsTerminated() {
			g.builder.BuildBranch(afterBlock)
		}
	}

	g.builder.SetBlock(condBlock)
	cond, _ := g.lowerExprRV(st.Cond)
	g.builder.BuildCond(g.truthValueAsI32(cond), thenBlock, elseTarget)

	g.builder.SetBlock(afterBlock)
}

// lowerWhileStmt builds a condition block re-entered on every iteration, a
// body block, and an after block; break targets the after block.
func (g *Generator) lowerWhileStmt(st cabs.WhileStmt) {
	condBlock := g.builder.NewBlock("while.cond")
	bodyBlock := g.builder.NewBlock("while.body")
	afterBlock := g.builder.NewBlock("while.after")

	g.builder.BuildBranch(condBlock)

	g.builder.SetBlock(condBlock)
	cond, _ := g.lowerExprRV(st.Cond)
	g.builder.BuildCond(g.truthValueAsI32(cond), bodyBlock, afterBlock)

	g.builder.SetBlock(bodyBlock)
	g.breakTargets = append(g.breakTargets, afterBlock)
	g.lowerStmt(st.Body)
	g.breakTargets = g.breakTargets[:len(g.breakTargets)-1]
	if !g.builder.CurrentBlock.IsTerminated() {
		g.builder.BuildBranch(condBlock)
	}

	g.builder.SetBlock(afterBlock)
}

// lowerForStmt mirrors lowerWhileStmt, with the init clause lowered into the
// pre-existing block (in its own value scope, so a declared loop variable
// does not leak past the loop) and the post clause appended to the end of
// the body before looping back.
func (g *Generator) lowerForStmt(st cabs.ForStmt) {
	g.pushValueScope()
	defer g.popValueScope()

	if st.Init != nil {
		g.lowerStmt(st.Init)
	}

	condBlock := g.builder.NewBlock("for.cond")
	bodyBlock := g.builder.NewBlock("for.body")
	afterBlock := g.builder.NewBlock("for.after")

	g.builder.BuildBranch(condBlock)

	g.builder.SetBlock(condBlock)
	if st.Cond != nil {
		cond, _ := g.lowerExprRV(st.Cond)
		g.builder.BuildCond(g.truthValueAsI32(cond), bodyBlock, afterBlock)
	} else {
		g.builder.BuildBranch(bodyBlock)
	}

	g.builder.SetBlock(bodyBlock)
	g.breakTargets = append(g.breakTargets, afterBlock)
	g.lowerStmt(st.Body)
	g.breakTargets = g.breakTargets[:len(g.breakTargets)-1]
	if !g.builder.CurrentBlock.IsTerminated() {
		if st.Post != nil {
			g.lowerExprRV(st.Post)
		}
		g.builder.BuildBranch(condBlock)
	}

	g.builder.SetBlock(afterBlock)
}

func (g *Generator) lowerBreakStmt() {
	if len(g.breakTargets) == 0 {
		panic("irgen: break statement outside of a loop")
	}
	g.builder.BuildBranch(g.breakTargets[len(g.breakTargets)-1])
}
