// Package parser implements a recursive-descent, Pratt-expression parser
// for the C subset irgen consumes: declaration specifiers, declarators,
// the statement and expression forms spec.md section 6 names.
package parser

import (
	"fmt"

	"github.com/nccback/nccback/pkg/cabs"
	"github.com/nccback/nccback/pkg/lexer"
)

// Precedence levels for Pratt parsing of expressions, lowest to highest.
const (
	precLowest = iota
	precComma
	precAssign
	precTernary
	precLogOr
	precLogAnd
	precBitOr
	precBitXor
	precBitAnd
	precEquality
	precRelational
	precShift
	precAdditive
	precMultiplicative
	precUnary
	precPostfix
)

var binaryPrec = map[lexer.TokenType]int{
	lexer.TokenOr:        precLogOr,
	lexer.TokenAnd:       precLogAnd,
	lexer.TokenPipe:      precBitOr,
	lexer.TokenCaret:     precBitXor,
	lexer.TokenAmpersand: precBitAnd,
	lexer.TokenEq:        precEquality,
	lexer.TokenNe:        precEquality,
	lexer.TokenLt:        precRelational,
	lexer.TokenLe:        precRelational,
	lexer.TokenGt:        precRelational,
	lexer.TokenGe:        precRelational,
	lexer.TokenShl:       precShift,
	lexer.TokenShr:       precShift,
	lexer.TokenPlus:      precAdditive,
	lexer.TokenMinus:     precAdditive,
	lexer.TokenStar:      precMultiplicative,
	lexer.TokenSlash:     precMultiplicative,
	lexer.TokenPercent:   precMultiplicative,
}

var binaryOps = map[lexer.TokenType]cabs.BinaryOp{
	lexer.TokenOr:        cabs.BinLogOr,
	lexer.TokenAnd:       cabs.BinLogAnd,
	lexer.TokenPipe:      cabs.BinBitOr,
	lexer.TokenCaret:     cabs.BinBitXor,
	lexer.TokenAmpersand: cabs.BinBitAnd,
	lexer.TokenEq:        cabs.BinEq,
	lexer.TokenNe:        cabs.BinNe,
	lexer.TokenLt:        cabs.BinLt,
	lexer.TokenLe:        cabs.BinLe,
	lexer.TokenGt:        cabs.BinGt,
	lexer.TokenGe:        cabs.BinGe,
	lexer.TokenShl:       cabs.BinShl,
	lexer.TokenShr:       cabs.BinShr,
	lexer.TokenPlus:      cabs.BinAdd,
	lexer.TokenMinus:     cabs.BinSub,
	lexer.TokenStar:      cabs.BinMul,
	lexer.TokenSlash:     cabs.BinDiv,
	lexer.TokenPercent:   cabs.BinMod,
}

var compoundAssignOps = map[lexer.TokenType]cabs.BinaryOp{
	lexer.TokenPlusAssign:    cabs.BinAdd,
	lexer.TokenMinusAssign:   cabs.BinSub,
	lexer.TokenStarAssign:    cabs.BinMul,
	lexer.TokenSlashAssign:   cabs.BinDiv,
	lexer.TokenPercentAssign: cabs.BinMod,
	lexer.TokenAndAssign:     cabs.BinBitAnd,
	lexer.TokenOrAssign:      cabs.BinBitOr,
	lexer.TokenXorAssign:     cabs.BinBitXor,
	lexer.TokenShlAssign:     cabs.BinShl,
	lexer.TokenShrAssign:     cabs.BinShr,
}

// typeSpecTokens recognizes the start of a declaration.
var typeSpecTokens = map[lexer.TokenType]bool{
	lexer.TokenVoid: true, lexer.TokenChar: true, lexer.TokenShort: true,
	lexer.TokenInt_: true, lexer.TokenLong: true, lexer.TokenUnsigned: true,
	lexer.TokenSigned: true, lexer.TokenStruct: true, lexer.TokenUnion: true,
	lexer.TokenConst: true, lexer.TokenVolatile: true,
}

// Parser parses C source into a cabs.TranslationUnit. Parse errors are
// fatal (spec.md section 7: illegal input is out of scope for graceful
// diagnostics) and surface as a panic; ParseString recovers it into an
// error, while direct callers of ParseTranslationUnit recover it themselves.
type Parser struct {
	l         *lexer.Lexer
	cur, peek lexer.Token
	typedefs  map[string]bool
}

// New creates a Parser over l.
func New(l *lexer.Lexer) *Parser {
	p := &Parser{l: l, typedefs: make(map[string]bool)}
	p.next()
	p.next()
	return p
}

func (p *Parser) next() {
	p.cur = p.peek
	p.peek = p.l.NextToken()
}

func (p *Parser) fail(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	panic(fmt.Sprintf("parse error at line %d, col %d: %s", p.cur.Line, p.cur.Column, msg))
}

func (p *Parser) expect(t lexer.TokenType) lexer.Token {
	if p.cur.Type != t {
		p.fail("expected %s, got %s (%q)", t, p.cur.Type, p.cur.Literal)
	}
	tok := p.cur
	p.next()
	return tok
}

func (p *Parser) curIs(t lexer.TokenType) bool  { return p.cur.Type == t }
func (p *Parser) peekIs(t lexer.TokenType) bool { return p.peek.Type == t }

func (p *Parser) isTypeStart() bool {
	if typeSpecTokens[p.cur.Type] {
		return true
	}
	return p.cur.Type == lexer.TokenIdent && p.typedefs[p.cur.Literal]
}

// ParseTranslationUnit parses a whole file.
func (p *Parser) ParseTranslationUnit() *cabs.TranslationUnit {
	tu := &cabs.TranslationUnit{}
	for !p.curIs(lexer.TokenEOF) {
		tu.Decls = append(tu.Decls, p.parseExternalDecl())
	}
	return tu
}

// ParseString is a convenience entry point: lex and parse src in one call.
func ParseString(src string) (tu *cabs.TranslationUnit, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	l := lexer.New(src)
	p := New(l)
	tu = p.ParseTranslationUnit()
	return tu, nil
}

// --- declarations ---

func (p *Parser) parseDeclSpec() cabs.DeclSpec {
	spec := cabs.DeclSpec{Base: cabs.SpecInt}
	sawBase := false
	for {
		switch p.cur.Type {
		case lexer.TokenConst, lexer.TokenVolatile, lexer.TokenRestrict,
			lexer.TokenStatic, lexer.TokenExtern, lexer.TokenAuto, lexer.TokenRegister:
			p.next()
			continue
		case lexer.TokenTypedef:
			spec.IsTypedef = true
			p.next()
			continue
		case lexer.TokenVoid:
			spec.Base = cabs.SpecVoid
			sawBase = true
			p.next()
			continue
		case lexer.TokenChar:
			spec.Base = cabs.SpecChar
			sawBase = true
			p.next()
			continue
		case lexer.TokenShort:
			spec.Base = cabs.SpecShort
			sawBase = true
			p.next()
			continue
		case lexer.TokenInt_:
			// `short int` / `long int` keep the short/long base; bare `int`
			// sets it.
			if spec.Base != cabs.SpecShort && spec.Base != cabs.SpecLong {
				spec.Base = cabs.SpecInt
			}
			sawBase = true
			p.next()
			continue
		case lexer.TokenLong:
			spec.Base = cabs.SpecLong
			sawBase = true
			p.next()
			continue
		case lexer.TokenSigned:
			p.next()
			continue
		case lexer.TokenUnsigned:
			spec.Unsigned = true
			p.next()
			continue
		case lexer.TokenStruct, lexer.TokenUnion:
			isUnion := p.cur.Type == lexer.TokenUnion
			p.next()
			name := ""
			if p.curIs(lexer.TokenIdent) {
				name = p.cur.Literal
				p.next()
			}
			var def *cabs.StructDef
			if p.curIs(lexer.TokenLBrace) {
				def = p.parseStructBody(name, isUnion)
			}
			if isUnion {
				spec.Base = cabs.SpecUnion
			} else {
				spec.Base = cabs.SpecStruct
			}
			spec.TagName = name
			spec.StructDef = def
			sawBase = true
			return spec
		case lexer.TokenIdent:
			if !sawBase && p.typedefs[p.cur.Literal] {
				spec.Base = cabs.SpecTypedefName
				spec.TagName = p.cur.Literal
				p.next()
				sawBase = true
				return spec
			}
			return spec
		default:
			return spec
		}
	}
}

func (p *Parser) parseStructBody(name string, isUnion bool) *cabs.StructDef {
	p.expect(lexer.TokenLBrace)
	def := &cabs.StructDef{IsUnion: isUnion, Name: name}
	for !p.curIs(lexer.TokenRBrace) {
		fieldSpec := p.parseDeclSpec()
		decl := p.parseDeclarator()
		def.Fields = append(def.Fields, cabs.Param{Spec: fieldSpec, Declarator: decl})
		for p.curIs(lexer.TokenComma) {
			p.next()
			decl := p.parseDeclarator()
			def.Fields = append(def.Fields, cabs.Param{Spec: fieldSpec, Declarator: decl})
		}
		p.expect(lexer.TokenSemicolon)
	}
	p.expect(lexer.TokenRBrace)
	return def
}

// parseDeclarator parses `*...*direct`.
func (p *Parser) parseDeclarator() cabs.Declarator {
	pointers := 0
	for p.curIs(lexer.TokenStar) {
		pointers++
		p.next()
		for p.curIs(lexer.TokenConst) || p.curIs(lexer.TokenVolatile) || p.curIs(lexer.TokenRestrict) {
			p.next()
		}
	}
	direct := p.parseDirectDeclarator()
	return cabs.Declarator{Pointers: pointers, Direct: direct}
}

func (p *Parser) parseDirectDeclarator() cabs.DirectDeclarator {
	var d cabs.DirectDeclarator
	if p.curIs(lexer.TokenLParen) {
		p.next()
		inner := p.parseDeclarator()
		p.expect(lexer.TokenRParen)
		// Only plain identifiers are wrapped in parens in this subset.
		d = inner.Direct
	} else {
		name := p.expect(lexer.TokenIdent).Literal
		d = cabs.IdentDeclarator{Name: name}
	}

	for {
		switch p.cur.Type {
		case lexer.TokenLBracket:
			p.next()
			size := int64(-1)
			if !p.curIs(lexer.TokenRBracket) {
				size = int64(p.parseIntLiteral())
			}
			p.expect(lexer.TokenRBracket)
			d = cabs.ArrayDeclarator{Of: d, Size: size}
		case lexer.TokenLParen:
			p.next()
			params, isVoid := p.parseParamList()
			p.expect(lexer.TokenRParen)
			d = cabs.FuncDeclarator{Of: d, Params: params, IsVoid: isVoid}
		default:
			return d
		}
	}
}

func (p *Parser) parseParamList() ([]cabs.Param, bool) {
	var params []cabs.Param
	if p.curIs(lexer.TokenRParen) {
		return nil, false
	}
	if p.curIs(lexer.TokenVoid) && p.peekIs(lexer.TokenRParen) {
		p.next()
		return nil, true
	}
	for {
		spec := p.parseDeclSpec()
		var decl cabs.Declarator
		if p.curIs(lexer.TokenComma) || p.curIs(lexer.TokenRParen) {
			decl = cabs.Declarator{Direct: cabs.IdentDeclarator{Name: ""}}
		} else {
			decl = p.parseDeclarator()
		}
		params = append(params, cabs.Param{Spec: spec, Declarator: decl})
		if p.curIs(lexer.TokenComma) {
			p.next()
			continue
		}
		break
	}
	return params, false
}

func (p *Parser) parseIntLiteral() uint64 {
	tok := p.expect(lexer.TokenInt)
	var v uint64
	fmt.Sscanf(tok.Literal, "%d", &v)
	return v
}

// parseExternalDecl parses one top-level declaration or function definition.
func (p *Parser) parseExternalDecl() cabs.ExternalDecl {
	spec := p.parseDeclSpec()

	// A struct/union tag definition with no variable name: `struct S {...};`.
	if p.curIs(lexer.TokenSemicolon) && (spec.Base == cabs.SpecStruct || spec.Base == cabs.SpecUnion) {
		p.next()
		return cabs.VarDecl{Spec: spec}
	}

	decl := p.parseDeclarator()

	if _, isFunc := decl.Direct.(cabs.FuncDeclarator); isFunc && p.curIs(lexer.TokenLBrace) {
		body := p.parseCompoundStmt()
		return cabs.FuncDef{Spec: spec, Declarator: decl, Body: body}
	}

	if spec.IsTypedef {
		p.registerTypedefNameDeep(decl)
		p.expect(lexer.TokenSemicolon)
		return cabs.TypedefDecl{Spec: spec, Declarator: decl}
	}

	var init cabs.Expr
	if p.curIs(lexer.TokenAssign) {
		p.next()
		init = p.parseAssignExpr()
	}
	p.expect(lexer.TokenSemicolon)
	return cabs.VarDecl{Spec: spec, Declarator: decl, Init: init}
}

// registerTypedefNameDeep registers the declared name even when it sits
// beneath array/function wrapping (`typedef int IntArray[4];`).
func (p *Parser) registerTypedefNameDeep(decl cabs.Declarator) {
	name := declaratorNameOf(decl.Direct)
	if name != "" {
		p.typedefs[name] = true
	}
}

func declaratorNameOf(d cabs.DirectDeclarator) string {
	switch dd := d.(type) {
	case cabs.IdentDeclarator:
		return dd.Name
	case cabs.ArrayDeclarator:
		return declaratorNameOf(dd.Of)
	case cabs.FuncDeclarator:
		return declaratorNameOf(dd.Of)
	}
	return ""
}

// --- statements ---

func (p *Parser) parseCompoundStmt() *cabs.CompoundStmt {
	p.expect(lexer.TokenLBrace)
	block := &cabs.CompoundStmt{}
	for !p.curIs(lexer.TokenRBrace) {
		block.Items = append(block.Items, p.parseBlockItem())
	}
	p.expect(lexer.TokenRBrace)
	return block
}

func (p *Parser) parseBlockItem() cabs.Stmt {
	if p.isTypeStart() || p.curIs(lexer.TokenTypedef) {
		return p.parseLocalDecl()
	}
	return p.parseStmt()
}

func (p *Parser) parseLocalDecl() cabs.Stmt {
	spec := p.parseDeclSpec()

	if p.curIs(lexer.TokenSemicolon) && (spec.Base == cabs.SpecStruct || spec.Base == cabs.SpecUnion) {
		p.next()
		return cabs.DeclStmt{Decl: cabs.VarDecl{Spec: spec}}
	}

	decl := p.parseDeclarator()
	if spec.IsTypedef {
		p.registerTypedefNameDeep(decl)
		p.expect(lexer.TokenSemicolon)
		return cabs.DeclStmt{Decl: cabs.TypedefDecl{Spec: spec, Declarator: decl}}
	}
	var init cabs.Expr
	if p.curIs(lexer.TokenAssign) {
		p.next()
		init = p.parseAssignExpr()
	}
	p.expect(lexer.TokenSemicolon)
	return cabs.DeclStmt{Decl: cabs.VarDecl{Spec: spec, Declarator: decl, Init: init}}
}

func (p *Parser) parseStmt() cabs.Stmt {
	switch p.cur.Type {
	case lexer.TokenLBrace:
		return p.parseCompoundStmt()
	case lexer.TokenReturn:
		p.next()
		if p.curIs(lexer.TokenSemicolon) {
			p.next()
			return cabs.ReturnStmt{}
		}
		e := p.parseExpr()
		p.expect(lexer.TokenSemicolon)
		return cabs.ReturnStmt{Expr: e}
	case lexer.TokenIf:
		p.next()
		p.expect(lexer.TokenLParen)
		cond := p.parseExpr()
		p.expect(lexer.TokenRParen)
		then := p.parseStmt()
		var els cabs.Stmt
		if p.curIs(lexer.TokenElse) {
			p.next()
			els = p.parseStmt()
		}
		return cabs.IfStmt{Cond: cond, Then: then, Else: els}
	case lexer.TokenWhile:
		p.next()
		p.expect(lexer.TokenLParen)
		cond := p.parseExpr()
		p.expect(lexer.TokenRParen)
		body := p.parseStmt()
		return cabs.WhileStmt{Cond: cond, Body: body}
	case lexer.TokenFor:
		return p.parseFor()
	case lexer.TokenBreak:
		p.next()
		p.expect(lexer.TokenSemicolon)
		return cabs.BreakStmt{}
	case lexer.TokenSemicolon:
		p.next()
		return cabs.ExprStmt{}
	default:
		e := p.parseExpr()
		p.expect(lexer.TokenSemicolon)
		return cabs.ExprStmt{Expr: e}
	}
}

func (p *Parser) parseFor() cabs.Stmt {
	p.expect(lexer.TokenFor)
	p.expect(lexer.TokenLParen)

	var init cabs.Stmt
	if p.isTypeStart() {
		init = p.parseLocalDecl()
	} else if !p.curIs(lexer.TokenSemicolon) {
		init = cabs.ExprStmt{Expr: p.parseExpr()}
		p.expect(lexer.TokenSemicolon)
	} else {
		p.expect(lexer.TokenSemicolon)
	}

	var cond cabs.Expr
	if !p.curIs(lexer.TokenSemicolon) {
		cond = p.parseExpr()
	}
	p.expect(lexer.TokenSemicolon)

	var post cabs.Expr
	if !p.curIs(lexer.TokenRParen) {
		post = p.parseExpr()
	}
	p.expect(lexer.TokenRParen)

	body := p.parseStmt()
	return cabs.ForStmt{Init: init, Cond: cond, Post: post, Body: body}
}

// --- expressions ---

func (p *Parser) parseExpr() cabs.Expr {
	e := p.parseAssignExpr()
	for p.curIs(lexer.TokenComma) {
		p.next()
		rhs := p.parseAssignExpr()
		e = cabs.Comma{Left: e, Right: rhs}
	}
	return e
}

func (p *Parser) parseAssignExpr() cabs.Expr {
	left := p.parseTernary()
	switch p.cur.Type {
	case lexer.TokenAssign:
		p.next()
		right := p.parseAssignExpr()
		return cabs.Assign{Left: left, Right: right}
	default:
		if op, ok := compoundAssignOps[p.cur.Type]; ok {
			p.next()
			right := p.parseAssignExpr()
			opCopy := op
			return cabs.Assign{Left: left, Compound: &opCopy, Right: right}
		}
	}
	return left
}

func (p *Parser) parseTernary() cabs.Expr {
	cond := p.parseBinary(precLogOr)
	if p.curIs(lexer.TokenQuestion) {
		p.next()
		then := p.parseExpr()
		p.expect(lexer.TokenColon)
		els := p.parseAssignExpr()
		return cabs.Ternary{Cond: cond, Then: then, Else: els}
	}
	return cond
}

func (p *Parser) parseBinary(minPrec int) cabs.Expr {
	left := p.parseUnary()
	for {
		prec, ok := binaryPrec[p.cur.Type]
		if !ok || prec < minPrec {
			return left
		}
		op := binaryOps[p.cur.Type]
		p.next()
		right := p.parseBinary(prec + 1)
		left = cabs.Binary{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseUnary() cabs.Expr {
	switch p.cur.Type {
	case lexer.TokenAmpersand:
		p.next()
		return cabs.Unary{Op: cabs.UnAddr, Operand: p.parseUnary()}
	case lexer.TokenStar:
		p.next()
		return cabs.Unary{Op: cabs.UnDeref, Operand: p.parseUnary()}
	case lexer.TokenPlus:
		p.next()
		return cabs.Unary{Op: cabs.UnPlus, Operand: p.parseUnary()}
	case lexer.TokenMinus:
		p.next()
		return cabs.Unary{Op: cabs.UnNeg, Operand: p.parseUnary()}
	case lexer.TokenTilde:
		p.next()
		return cabs.Unary{Op: cabs.UnBitNot, Operand: p.parseUnary()}
	case lexer.TokenNot:
		p.next()
		return cabs.Unary{Op: cabs.UnLogNot, Operand: p.parseUnary()}
	default:
		return p.parsePostfix()
	}
}

func (p *Parser) parsePostfix() cabs.Expr {
	e := p.parsePrimary()
	for {
		switch p.cur.Type {
		case lexer.TokenDot:
			p.next()
			name := p.expect(lexer.TokenIdent).Literal
			e = cabs.Member{Base: e, Field: name}
		case lexer.TokenArrow:
			p.next()
			name := p.expect(lexer.TokenIdent).Literal
			e = cabs.Member{Base: e, Field: name, Arrow: true}
		case lexer.TokenLBracket:
			p.next()
			idx := p.parseExpr()
			p.expect(lexer.TokenRBracket)
			e = cabs.Index{Base: e, Index: idx}
		case lexer.TokenLParen:
			p.next()
			var args []cabs.Expr
			if !p.curIs(lexer.TokenRParen) {
				args = append(args, p.parseAssignExpr())
				for p.curIs(lexer.TokenComma) {
					p.next()
					args = append(args, p.parseAssignExpr())
				}
			}
			p.expect(lexer.TokenRParen)
			e = cabs.Call{Callee: e, Args: args}
		default:
			return e
		}
	}
}

func (p *Parser) parsePrimary() cabs.Expr {
	switch p.cur.Type {
	case lexer.TokenInt:
		v := p.parseIntLiteral()
		return cabs.IntLit{Value: v}
	case lexer.TokenIdent:
		name := p.cur.Literal
		p.next()
		return cabs.Ident{Name: name}
	case lexer.TokenLParen:
		p.next()
		e := p.parseExpr()
		p.expect(lexer.TokenRParen)
		return e
	default:
		p.fail("unexpected token %s (%q) in expression", p.cur.Type, p.cur.Literal)
		return nil
	}
}
