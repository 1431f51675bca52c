// Package cabs defines the C abstract syntax tree the parser produces and
// irgen consumes: declarations, declarators, statements, and expressions,
// expressed as Go sum types via the tagged-union-via-interface convention
// used throughout this backend.
package cabs

// TypeSpec names a base type in a declaration's specifier list.
type TypeSpec int

const (
	SpecVoid TypeSpec = iota
	SpecChar
	SpecShort
	SpecInt
	SpecLong
	SpecStruct
	SpecUnion
	SpecTypedefName
)

// DeclSpec is a declaration's specifier: a base type plus qualifiers that
// matter to this backend (unsigned-ness; storage class is tracked only to
// recognize typedef).
type DeclSpec struct {
	Base       TypeSpec
	Unsigned   bool
	TagName    string // struct/union tag, or typedef name when Base == SpecTypedefName
	IsTypedef  bool
	StructDef  *StructDef // non-nil when this specifier also defines the struct/union
}

// StructDef is an inline struct/union definition (`struct S { ... }`).
type StructDef struct {
	IsUnion bool
	Name    string
	Fields  []Param // reuses Param's (name, declarator) shape for field lists
}

// Declarator is the name/shape half of a declaration: zero or more pointer
// levels wrapping a direct declarator (identifier, array, or function).
type Declarator struct {
	Pointers int // number of '*' levels wrapping Direct
	Direct   DirectDeclarator
}

// DirectDeclarator is one of: a bare identifier, an array of another
// declarator, or a function returning another declarator.
type DirectDeclarator interface {
	implDirectDeclarator()
}

// IdentDeclarator is a bare name.
type IdentDeclarator struct {
	Name string
}

// ArrayDeclarator wraps Of in an array; Size < 0 means an incomplete array
// (legal only as a function parameter, where it decays to a pointer).
type ArrayDeclarator struct {
	Of   DirectDeclarator
	Size int64
}

// FuncDeclarator wraps Of in a function type with the given parameters.
type FuncDeclarator struct {
	Of     DirectDeclarator
	Params []Param
	IsVoid bool // explicit `(void)` parameter list
}

func (IdentDeclarator) implDirectDeclarator() {}
func (ArrayDeclarator) implDirectDeclarator() {}
func (FuncDeclarator) implDirectDeclarator()  {}

// Param is a single function parameter or struct field: a specifier plus a
// declarator.
type Param struct {
	Spec       DeclSpec
	Declarator Declarator
}

// Name returns the identifier this parameter/field ultimately declares.
func (p Param) Name() string {
	return declaratorName(p.Declarator.Direct)
}

// Name returns the identifier a declarator ultimately declares, looking
// through any array/function wrapping.
func (d Declarator) Name() string {
	return declaratorName(d.Direct)
}

func declaratorName(d DirectDeclarator) string {
	switch dd := d.(type) {
	case IdentDeclarator:
		return dd.Name
	case ArrayDeclarator:
		return declaratorName(dd.Of)
	case FuncDeclarator:
		return declaratorName(dd.Of)
	}
	return ""
}

// ExternalDecl is a top-level declaration: a function definition, a
// variable/function declaration, or a typedef.
type ExternalDecl interface {
	implExternalDecl()
}

// FuncDef is a function definition with a body.
type FuncDef struct {
	Spec       DeclSpec
	Declarator Declarator // FuncDeclarator at its Direct
	Body       *CompoundStmt
}

// VarDecl is a top-level (or block-scope) variable or function declaration
// with no body; Init is non-nil for `T x = expr;`.
type VarDecl struct {
	Spec       DeclSpec
	Declarator Declarator
	Init       Expr
	IsExtern   bool
}

// TypedefDecl is `typedef <spec> <declarator>;`.
type TypedefDecl struct {
	Spec       DeclSpec
	Declarator Declarator
}

func (FuncDef) implExternalDecl()     {}
func (VarDecl) implExternalDecl()     {}
func (TypedefDecl) implExternalDecl() {}

// TranslationUnit is an ordered list of top-level declarations.
type TranslationUnit struct {
	Decls []ExternalDecl
}

// --- Statements ---

// Stmt is the interface for all statement forms.
type Stmt interface {
	implStmt()
}

// CompoundStmt is a `{ ... }` block; each item is either a statement or a
// local declaration (VarDecl/TypedefDecl), interleaved in source order.
type CompoundStmt struct {
	Items []Stmt
}

// DeclStmt wraps a local declaration so it can appear in a CompoundStmt's
// item list alongside ordinary statements.
type DeclStmt struct {
	Decl ExternalDecl // VarDecl or TypedefDecl
}

// ExprStmt is a bare expression statement (`e;`).
type ExprStmt struct {
	Expr Expr
}

// ReturnStmt is `return e;` or `return;` (Expr == nil).
type ReturnStmt struct {
	Expr Expr
}

// IfStmt is `if (Cond) Then [else Else]`.
type IfStmt struct {
	Cond Expr
	Then Stmt
	Else Stmt // nil if no else clause
}

// WhileStmt is `while (Cond) Body`.
type WhileStmt struct {
	Cond Expr
	Body Stmt
}

// ForStmt is `for (Init; Cond; Post) Body`. Init may be an ExprStmt or a
// DeclStmt; any of Init/Cond/Post may be nil.
type ForStmt struct {
	Init Stmt
	Cond Expr
	Post Expr
	Body Stmt
}

// BreakStmt is `break;`.
type BreakStmt struct{}

func (*CompoundStmt) implStmt() {}
func (DeclStmt) implStmt()      {}
func (ExprStmt) implStmt()      {}
func (ReturnStmt) implStmt()    {}
func (IfStmt) implStmt()        {}
func (WhileStmt) implStmt()     {}
func (ForStmt) implStmt()       {}
func (BreakStmt) implStmt()     {}

// --- Expressions ---

// Expr is the interface for all expression forms.
type Expr interface {
	implExpr()
}

// IntLit is an integer literal.
type IntLit struct {
	Value uint64
}

// Ident is an identifier reference.
type Ident struct {
	Name string
}

// Member is `e.f` (Arrow == false) or `e->f` (Arrow == true).
type Member struct {
	Base  Expr
	Field string
	Arrow bool
}

// Index is `e[i]`.
type Index struct {
	Base  Expr
	Index Expr
}

// Call is `callee(args...)`.
type Call struct {
	Callee Expr
	Args   []Expr
}

// UnaryOp identifies a prefix unary operator.
type UnaryOp int

const (
	UnAddr   UnaryOp = iota // &e
	UnDeref                 // *e
	UnPlus                  // +e
	UnNeg                   // -e
	UnBitNot                // ~e
	UnLogNot                // !e
)

// Unary is a prefix unary expression.
type Unary struct {
	Op      UnaryOp
	Operand Expr
}

// BinaryOp identifies a binary operator.
type BinaryOp int

const (
	BinAdd BinaryOp = iota
	BinSub
	BinMul
	BinDiv
	BinMod
	BinShl
	BinShr
	BinLt
	BinGt
	BinLe
	BinGe
	BinEq
	BinNe
	BinBitAnd
	BinBitXor
	BinBitOr
	BinLogAnd
	BinLogOr
)

// Binary is a binary expression.
type Binary struct {
	Op          BinaryOp
	Left, Right Expr
}

// Assign is a simple or compound assignment (`=`, `+=`, ...). Compound is
// nil for a plain `=`; otherwise it names the operator applied before
// storing (`Left Compound= Right` desugars to `Left = Left Compound Right`).
type Assign struct {
	Left     Expr
	Compound *BinaryOp
	Right    Expr
}

// Comma is the sequencing operator `a, b`.
type Comma struct {
	Left, Right Expr
}

// Ternary is `Cond ? Then : Else`.
type Ternary struct {
	Cond, Then, Else Expr
}

func (IntLit) implExpr()  {}
func (Ident) implExpr()   {}
func (Member) implExpr()  {}
func (Index) implExpr()   {}
func (Call) implExpr()    {}
func (Unary) implExpr()   {}
func (Binary) implExpr()  {}
func (Assign) implExpr()  {}
func (Comma) implExpr()   {}
func (Ternary) implExpr() {}
