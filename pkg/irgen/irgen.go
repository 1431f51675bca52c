// Package irgen lowers a parsed translation unit (pkg/cabs) into the typed
// IR (pkg/ir), resolving C types against pkg/ctypes along the way.
package irgen

import (
	"github.com/nccback/nccback/pkg/cabs"
	"github.com/nccback/nccback/pkg/ctypes"
	"github.com/nccback/nccback/pkg/ir"
)

// Generator holds the state threaded through one translation unit's
// lowering: the IR builder, the current type/value environments, the
// named-struct cache, and the loop-break target stack.
type Generator struct {
	builder     *ir.Builder
	typeEnv     *typeScope
	valueEnv    *valueScope
	structCache map[string]*ir.Tstruct

	breakTargets []*ir.Block
	returnCType  ctypes.Type
}

// NewGenerator creates a Generator with an empty top-level environment.
func NewGenerator() *Generator {
	builder := ir.NewBuilder()
	return &Generator{
		builder:     builder,
		typeEnv:     newTypeScope(nil),
		valueEnv:    newValueScope(nil),
		structCache: make(map[string]*ir.Tstruct),
	}
}

// Lower translates a parsed translation unit into the IR module.
func Lower(tu *cabs.TranslationUnit) *ir.TransUnit {
	g := NewGenerator()
	for _, decl := range tu.Decls {
		g.lowerExternalDecl(decl)
	}
	return g.builder.TU
}

func (g *Generator) lowerExternalDecl(decl cabs.ExternalDecl) {
	switch d := decl.(type) {
	case cabs.FuncDef:
		g.lowerFuncDef(d)
	case cabs.VarDecl:
		g.lowerTopVarDecl(d)
	case cabs.TypedefDecl:
		g.typeEnv.typedefs[d.Declarator.Name()] = g.resolveDeclaredType(d.Spec, d.Declarator)
	}
}

// lowerTopVarDecl handles a file-scope declaration: a tag-only
// struct/union (Declarator is the zero value, no name), a function
// prototype with no body, or a variable definition/declaration.
func (g *Generator) lowerTopVarDecl(d cabs.VarDecl) {
	name := d.Declarator.Name()
	if name == "" {
		g.registerTagOnly(d.Spec)
		return
	}
	ct := g.resolveDeclaredType(d.Spec, d.Declarator)
	if ft, ok := ct.(ctypes.Tfunction); ok {
		g.declareFunction(name, ft)
		return
	}
	global := g.builder.AddVar(name, g.irTypeOf(ct))
	if d.Init != nil {
		g.builder.SetInitializer(global, g.lowerConstExpr(d.Init, ct))
	}
	g.valueEnv.vars[name] = valueBinding{ctype: ct, addr: ir.GlobalRef(global), global: global}
}

func (g *Generator) declareFunction(name string, ft ctypes.Tfunction) *ir.Global {
	if existing, ok := g.valueEnv.lookup(name); ok && existing.isFunc {
		return existing.global
	}
	paramTypes := make([]ir.Type, len(ft.Params))
	for i, p := range ft.Params {
		paramTypes[i] = g.irTypeOf(p)
	}
	global := g.builder.AddFunction(name, g.irTypeOf(ft.Return), paramTypes)
	g.valueEnv.vars[name] = valueBinding{ctype: ft, addr: ir.GlobalRef(global), global: global, isFunc: true}
	return global
}

func (g *Generator) lowerFuncDef(d cabs.FuncDef) {
	name := d.Declarator.Name()
	ft, ok := g.resolveDeclaredType(d.Spec, d.Declarator).(ctypes.Tfunction)
	if !ok {
		panic("irgen: function definition with non-function type for " + name)
	}
	global := g.declareFunction(name, ft)
	g.builder.SetFunction(global.Function)

	entry := g.builder.NewBlock("entry")
	g.builder.SetBlock(entry)

	g.pushValueScope()
	g.pushTypeScope()
	g.returnCType = ft.Return
	defer func() {
		g.returnCType = nil
		g.popTypeScope()
		g.popValueScope()
	}()

	params := funcDeclParams(d.Declarator.Direct)
	for i, p := range params {
		pname := p.Name()
		if pname == "" {
			continue
		}
		pct := decayParam(g.resolveDeclaredType(p.Spec, p.Declarator))
		slot := g.builder.BuildLocal(g.irTypeOf(pct))
		g.builder.BuildStore(slot, ir.Arg(g.irTypeOf(pct), i), g.irTypeOf(pct))
		g.bindVar(pname, pct, slot)
	}

	g.lowerCompoundStmt(d.Body)
}

func funcDeclParams(d cabs.DirectDeclarator) []cabs.Param {
	if fd, ok := d.(cabs.FuncDeclarator); ok {
		return fd.Params
	}
	panic("irgen: function definition declarator is not a function declarator")
}

func (g *Generator) bindVar(name string, ct ctypes.Type, addr ir.Value) {
	g.valueEnv.vars[name] = valueBinding{ctype: ct, addr: addr}
}

func (g *Generator) pushValueScope() { g.valueEnv = newValueScope(g.valueEnv) }
func (g *Generator) popValueScope()  { g.valueEnv = g.valueEnv.parent }
func (g *Generator) pushTypeScope()  { g.typeEnv = newTypeScope(g.typeEnv) }
func (g *Generator) popTypeScope()   { g.typeEnv = g.typeEnv.parent }

// lowerLocalDecl handles a block-scope VarDecl/TypedefDecl, as wrapped in a
// cabs.DeclStmt.
func (g *Generator) lowerLocalDecl(decl cabs.ExternalDecl) {
	switch d := decl.(type) {
	case cabs.TypedefDecl:
		g.typeEnv.typedefs[d.Declarator.Name()] = g.resolveDeclaredType(d.Spec, d.Declarator)
	case cabs.VarDecl:
		name := d.Declarator.Name()
		if name == "" {
			g.registerTagOnly(d.Spec)
			return
		}
		ct := g.resolveDeclaredType(d.Spec, d.Declarator)
		slot := g.builder.BuildLocal(g.irTypeOf(ct))
		g.bindVar(name, ct, slot)
		if d.Init != nil {
			val, _ := g.lowerExprRV(d.Init)
			val = g.coerceToType(val, ct)
			g.builder.BuildStore(slot, val, g.irTypeOf(ct))
		}
	}
}

// lowerConstExpr lowers a global initializer, which must be a compile-time
// constant; non-constant global initializers are out of scope.
func (g *Generator) lowerConstExpr(e cabs.Expr, target ctypes.Type) ir.ConstValue {
	switch ex := e.(type) {
	case cabs.IntLit:
		return ir.Const(g.irTypeOf(target), ex.Value)
	case cabs.Unary:
		if ex.Op == cabs.UnNeg {
			inner := g.lowerConstExpr(ex.Operand, target)
			return ir.Const(g.irTypeOf(target), -inner.Payload)
		}
	}
	panic("irgen: global initializer is not a compile-time constant")
}
