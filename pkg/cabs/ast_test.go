package cabs

import "testing"

func TestParamName(t *testing.T) {
	cases := []struct {
		name string
		d    DirectDeclarator
		want string
	}{
		{"plain", IdentDeclarator{Name: "x"}, "x"},
		{"array", ArrayDeclarator{Of: IdentDeclarator{Name: "arr"}, Size: 4}, "arr"},
		{"func", FuncDeclarator{Of: IdentDeclarator{Name: "f"}}, "f"},
		{"array of func param (decayed)", ArrayDeclarator{Of: IdentDeclarator{Name: "buf"}, Size: -1}, "buf"},
	}
	for _, c := range cases {
		p := Param{Declarator: Declarator{Direct: c.d}}
		if got := p.Name(); got != c.want {
			t.Errorf("%s: Name() = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestExternalDeclVariants(t *testing.T) {
	var decls []ExternalDecl
	decls = append(decls, FuncDef{
		Spec:       DeclSpec{Base: SpecInt},
		Declarator: Declarator{Direct: FuncDeclarator{Of: IdentDeclarator{Name: "main"}, IsVoid: true}},
		Body:       &CompoundStmt{},
	})
	decls = append(decls, VarDecl{
		Spec:       DeclSpec{Base: SpecInt},
		Declarator: Declarator{Direct: IdentDeclarator{Name: "g"}},
	})
	decls = append(decls, TypedefDecl{
		Spec:       DeclSpec{Base: SpecInt},
		Declarator: Declarator{Direct: IdentDeclarator{Name: "myint"}},
	})
	if len(decls) != 3 {
		t.Fatalf("expected 3 decls, got %d", len(decls))
	}
	if _, ok := decls[0].(FuncDef); !ok {
		t.Error("expected FuncDef at index 0")
	}
}

func TestStmtVariantsImplementStmt(t *testing.T) {
	var stmts []Stmt
	stmts = append(stmts,
		&CompoundStmt{},
		DeclStmt{},
		ExprStmt{},
		ReturnStmt{},
		IfStmt{},
		WhileStmt{},
		ForStmt{},
		BreakStmt{},
	)
	if len(stmts) != 8 {
		t.Fatalf("expected 8 statement variants, got %d", len(stmts))
	}
}

func TestExprVariantsImplementExpr(t *testing.T) {
	var exprs []Expr
	exprs = append(exprs,
		IntLit{Value: 1},
		Ident{Name: "x"},
		Member{Base: Ident{Name: "s"}, Field: "f"},
		Index{Base: Ident{Name: "a"}, Index: IntLit{Value: 0}},
		Call{Callee: Ident{Name: "f"}},
		Unary{Op: UnNeg, Operand: IntLit{Value: 1}},
		Binary{Op: BinAdd, Left: IntLit{Value: 1}, Right: IntLit{Value: 2}},
		Assign{Left: Ident{Name: "x"}, Right: IntLit{Value: 1}},
		Comma{Left: IntLit{Value: 1}, Right: IntLit{Value: 2}},
		Ternary{Cond: IntLit{Value: 1}, Then: IntLit{Value: 2}, Else: IntLit{Value: 3}},
	)
	if len(exprs) != 10 {
		t.Fatalf("expected 10 expression variants, got %d", len(exprs))
	}
}

func TestCompoundAssignCarriesOperator(t *testing.T) {
	op := BinAdd
	a := Assign{Left: Ident{Name: "x"}, Compound: &op, Right: IntLit{Value: 1}}
	if a.Compound == nil || *a.Compound != BinAdd {
		t.Fatalf("expected compound op BinAdd, got %#v", a.Compound)
	}
	plain := Assign{Left: Ident{Name: "x"}, Right: IntLit{Value: 1}}
	if plain.Compound != nil {
		t.Fatal("plain assignment should have a nil Compound")
	}
}

func TestIncompleteArraySize(t *testing.T) {
	d := ArrayDeclarator{Of: IdentDeclarator{Name: "p"}, Size: -1}
	if d.Size >= 0 {
		t.Fatal("incomplete array declarator should carry a negative size")
	}
}
