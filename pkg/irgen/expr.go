package irgen

import (
	"github.com/nccback/nccback/pkg/cabs"
	"github.com/nccback/nccback/pkg/ctypes"
	"github.com/nccback/nccback/pkg/ir"
)

// lowerExprRV lowers e to a value usable in an rvalue context: identifiers
// of function, array, struct, or union type decay to their address rather
// than being loaded, matching the lvalue/rvalue discipline spec.md section
// 4.2 describes for this dialect.
func (g *Generator) lowerExprRV(e cabs.Expr) (ir.Value, ctypes.Type) {
	switch ex := e.(type) {
	case cabs.IntLit:
		return ir.Const(g.irTypeOf(ctypes.Int()), ex.Value), ctypes.Int()
	case cabs.Ident:
		b, ok := g.valueEnv.lookup(ex.Name)
		if !ok {
			panic("irgen: reference to undeclared identifier " + ex.Name)
		}
		if b.isFunc {
			return b.addr, ctypes.Pointer(b.ctype)
		}
		return g.rvalueFromAddr(b.addr, b.ctype)
	case cabs.Member:
		addr, ct := g.lowerMemberLV(ex)
		return g.rvalueFromAddr(addr, ct)
	case cabs.Index:
		addr, ct := g.lowerIndexLV(ex)
		return g.rvalueFromAddr(addr, ct)
	case cabs.Call:
		return g.lowerCall(ex)
	case cabs.Unary:
		return g.lowerUnary(ex)
	case cabs.Binary:
		return g.lowerBinaryExpr(ex)
	case cabs.Assign:
		return g.lowerAssign(ex)
	case cabs.Comma:
		g.lowerExprRV(ex.Left)
		return g.lowerExprRV(ex.Right)
	case cabs.Ternary:
		return g.lowerTernary(ex)
	}
	panic("irgen: unhandled expression form in value position")
}

// lowerExprLV lowers e to the address of its storage. Only identifiers,
// dereferences, subscripts, and member accesses are lvalues.
func (g *Generator) lowerExprLV(e cabs.Expr) (ir.Value, ctypes.Type) {
	switch ex := e.(type) {
	case cabs.Ident:
		b, ok := g.valueEnv.lookup(ex.Name)
		if !ok {
			panic("irgen: reference to undeclared identifier " + ex.Name)
		}
		if b.isFunc {
			panic("irgen: function designator used where an lvalue is required")
		}
		return b.addr, b.ctype
	case cabs.Unary:
		if ex.Op != cabs.UnDeref {
			panic("irgen: expression is not an lvalue")
		}
		ptrVal, ptrCType := g.lowerExprRV(ex.Operand)
		elem, ok := ptrElemType(ptrCType)
		if !ok {
			panic("irgen: dereference of a non-pointer expression")
		}
		return ptrVal, elem
	case cabs.Index:
		return g.lowerIndexLV(ex)
	case cabs.Member:
		return g.lowerMemberLV(ex)
	}
	panic("irgen: expression is not an lvalue")
}

func (g *Generator) rvalueFromAddr(addr ir.Value, ct ctypes.Type) (ir.Value, ctypes.Type) {
	switch ct.(type) {
	case ctypes.Tarray, ctypes.Tfunction, ctypes.Tstruct, ctypes.Tunion:
		return addr, ct
	}
	return g.builder.BuildLoad(addr, g.irTypeOf(ct)), ct
}

func (g *Generator) lowerMemberLV(ex cabs.Member) (ir.Value, ctypes.Type) {
	var baseAddr ir.Value
	structLike := ctypes.Type(nil)

	if ex.Arrow {
		ptrVal, ptrCType := g.lowerExprRV(ex.Base)
		ptr, ok := ptrCType.(ctypes.Tpointer)
		if !ok {
			panic("irgen: -> applied to a non-pointer expression")
		}
		baseAddr = ptrVal
		structLike = ptr.Elem
	} else {
		addr, ct := g.lowerExprLV(ex.Base)
		baseAddr = addr
		structLike = ct
	}

	switch st := structLike.(type) {
	case ctypes.Tstruct:
		field, idx, ok := st.FieldByName(ex.Field)
		if !ok {
			panic("irgen: struct " + st.Name + " has no field named " + ex.Field)
		}
		irStruct := g.irStructOf(st)
		addr := g.builder.BuildField(baseAddr, irStruct, idx)
		return addr, field.Type
	case ctypes.Tunion:
		field, _, ok := st.FieldByName(ex.Field)
		if !ok {
			panic("irgen: union " + st.Name + " has no field named " + ex.Field)
		}
		// Every union member starts at offset 0, so the base pointer is
		// simply reinterpreted at the requested field's own type.
		return baseAddr, field.Type
	}
	panic("irgen: member access on a type with no fields")
}

func (g *Generator) lowerIndexLV(ex cabs.Index) (ir.Value, ctypes.Type) {
	baseVal, baseCType := g.lowerExprRV(ex.Base)
	elemType, ok := ptrElemType(baseCType)
	if !ok {
		panic("irgen: subscript applied to a non-pointer, non-array expression")
	}
	idxVal, idxCType := g.lowerExprRV(ex.Index)
	addr := g.pointerAdd(baseVal, elemType, idxVal, idxCType, false)
	return addr, elemType
}

// pointerAdd computes ptr +/- idx*sizeof(elemType), the shared arithmetic
// behind `p+i`, `p-i`, and `p[i]`.
func (g *Generator) pointerAdd(ptr ir.Value, elemType ctypes.Type, idx ir.Value, idxCType ctypes.Type, negate bool) ir.Value {
	idx64 := g.toI64(idx, idxCType)
	size := ir.Const(ir.Tint{Width: 64}, uint64(ctypes.Sizeof(elemType)))
	scaled := g.builder.BuildMul(idx64, size)
	ptrAsInt := g.builder.BuildCast(ptr, ir.Tint{Width: 64})
	var result ir.Value
	if negate {
		result = g.builder.BuildSub(ptrAsInt, scaled)
	} else {
		result = g.builder.BuildAdd(ptrAsInt, scaled)
	}
	return g.builder.BuildCast(result, ir.Tpointer{})
}

// toI64 widens v (of C type ct) to a 64-bit integer, sign- or zero-extending
// according to ct's signedness.
func (g *Generator) toI64(v ir.Value, ct ctypes.Type) ir.Value {
	it, ok := v.Type().(ir.Tint)
	if !ok {
		return g.builder.BuildCast(v, ir.Tint{Width: 64})
	}
	if it.Width == 64 {
		return v
	}
	if cit, ok := ct.(ctypes.Tint); ok && cit.Sign == ctypes.Unsigned {
		return g.builder.BuildZext(v, ir.Tint{Width: 64})
	}
	return g.builder.BuildSext(v, ir.Tint{Width: 64})
}

func (g *Generator) lowerUnary(ex cabs.Unary) (ir.Value, ctypes.Type) {
	switch ex.Op {
	case cabs.UnAddr:
		addr, ct := g.lowerExprLV(ex.Operand)
		return addr, ctypes.Pointer(ct)
	case cabs.UnDeref:
		ptrVal, ptrCType := g.lowerExprRV(ex.Operand)
		elem, ok := ptrElemType(ptrCType)
		if !ok {
			panic("irgen: dereference of a non-pointer expression")
		}
		return g.rvalueFromAddr(ptrVal, elem)
	case cabs.UnPlus:
		return g.lowerExprRV(ex.Operand)
	case cabs.UnNeg:
		val, ct := g.lowerExprRV(ex.Operand)
		zero := ir.Const(val.Type(), 0)
		return g.builder.BuildSub(zero, val), ct
	case cabs.UnBitNot:
		val, ct := g.lowerExprRV(ex.Operand)
		return g.builder.BuildBitNot(val), ct
	case cabs.UnLogNot:
		val, _ := g.lowerExprRV(ex.Operand)
		return g.builder.BuildLogNot(val), ctypes.Int()
	}
	panic("irgen: unrecognized unary operator")
}

func isComparisonOp(op cabs.BinaryOp) bool {
	switch op {
	case cabs.BinLt, cabs.BinGt, cabs.BinLe, cabs.BinGe, cabs.BinEq, cabs.BinNe:
		return true
	}
	return false
}

func (g *Generator) lowerBinaryExpr(ex cabs.Binary) (ir.Value, ctypes.Type) {
	switch ex.Op {
	case cabs.BinLogAnd, cabs.BinLogOr:
		return g.lowerLogical(ex), ctypes.Int()
	case cabs.BinShl, cabs.BinShr:
		panic("irgen: shift operators have no corresponding IR opcode in this tier")
	}

	lhsVal, lhsCType := g.lowerExprRV(ex.Left)
	rhsVal, rhsCType := g.lowerExprRV(ex.Right)

	if ex.Op == cabs.BinAdd || ex.Op == cabs.BinSub {
		if v, ct, ok := g.tryPointerArith(ex.Op, lhsVal, lhsCType, rhsVal, rhsCType); ok {
			return v, ct
		}
	}

	if ex.Op == cabs.BinMod {
		quot := g.builder.BuildDiv(lhsVal, rhsVal)
		prod := g.builder.BuildMul(quot, rhsVal)
		return g.builder.BuildSub(lhsVal, prod), lhsCType
	}

	resultVal := g.arith(ex.Op, lhsVal, rhsVal)
	if isComparisonOp(ex.Op) {
		return resultVal, ctypes.Int()
	}
	return resultVal, lhsCType
}

// tryPointerArith handles `p + i`, `i + p`, and `p - i`; it does not handle
// `p - p` (pointer difference is not part of this tier).
func (g *Generator) tryPointerArith(op cabs.BinaryOp, lhs ir.Value, lhsCType ctypes.Type, rhs ir.Value, rhsCType ctypes.Type) (ir.Value, ctypes.Type, bool) {
	if lhsElem, ok := ptrElemType(lhsCType); ok {
		if _, rhsIsPtr := ptrElemType(rhsCType); !rhsIsPtr {
			return g.pointerAdd(lhs, lhsElem, rhs, rhsCType, op == cabs.BinSub), ctypes.Pointer(lhsElem), true
		}
		return nil, nil, false
	}
	if rhsElem, ok := ptrElemType(rhsCType); ok && op == cabs.BinAdd {
		return g.pointerAdd(rhs, rhsElem, lhs, lhsCType, false), ctypes.Pointer(rhsElem), true
	}
	return nil, nil, false
}

func (g *Generator) arith(op cabs.BinaryOp, lhs, rhs ir.Value) ir.Value {
	switch op {
	case cabs.BinAdd:
		return g.builder.BuildAdd(lhs, rhs)
	case cabs.BinSub:
		return g.builder.BuildSub(lhs, rhs)
	case cabs.BinMul:
		return g.builder.BuildMul(lhs, rhs)
	case cabs.BinDiv:
		return g.builder.BuildDiv(lhs, rhs)
	case cabs.BinBitAnd:
		return g.builder.BuildBitAnd(lhs, rhs)
	case cabs.BinBitOr:
		return g.builder.BuildBitOr(lhs, rhs)
	case cabs.BinBitXor:
		return g.builder.BuildBitXor(lhs, rhs)
	case cabs.BinEq:
		return g.builder.BuildEq(lhs, rhs)
	case cabs.BinNe:
		return g.builder.BuildNeq(lhs, rhs)
	case cabs.BinGt:
		return g.builder.BuildGt(lhs, rhs)
	case cabs.BinGe:
		return g.builder.BuildGte(lhs, rhs)
	case cabs.BinLt:
		return g.builder.BuildLt(lhs, rhs)
	case cabs.BinLe:
		return g.builder.BuildLte(lhs, rhs)
	}
	panic("irgen: unrecognized binary operator")
}

// coerceToType casts/extends val (already lowered) so it can be stored into
// or returned as a slot of C type target, widening by sign according to
// target's signedness and truncating via CAST when narrowing.
func (g *Generator) coerceToType(val ir.Value, target ctypes.Type) ir.Value {
	targetIR := g.irTypeOf(target)
	srcIT, srcOK := val.Type().(ir.Tint)
	dstIT, dstOK := targetIR.(ir.Tint)
	if !srcOK || !dstOK {
		if ir.TypeEqual(val.Type(), targetIR) {
			return val
		}
		return g.builder.BuildCast(val, targetIR)
	}
	if srcIT.Width == dstIT.Width {
		return val
	}
	if srcIT.Width > dstIT.Width {
		return g.builder.BuildCast(val, targetIR)
	}
	if cit, ok := target.(ctypes.Tint); ok && cit.Sign == ctypes.Unsigned {
		return g.builder.BuildZext(val, targetIR)
	}
	return g.builder.BuildSext(val, targetIR)
}

// lowerLogical lowers `&&`/`||` via explicit branching, since the IR has no
// short-circuit logical opcode. A local slot (allocated before any branch,
// so both paths can legally reach it) carries the result: the short-circuit
// path stores the operator's identity constant without evaluating the right
// operand, the other path evaluates it and stores its truth value.
func (g *Generator) lowerLogical(ex cabs.Binary) ir.Value {
	resultIRType := g.irTypeOf(ctypes.Int())
	resultSlot := g.builder.BuildLocal(resultIRType)

	rhsBlock := g.builder.NewBlock("logic.rhs")
	shortBlock := g.builder.NewBlock("logic.short")
	afterBlock := g.builder.NewBlock("logic.after")

	lhsVal, _ := g.lowerExprRV(ex.Left)
	lhsBool := g.truthValueAsI32(lhsVal)

	if ex.Op == cabs.BinLogAnd {
		g.builder.BuildCond(lhsBool, rhsBlock, shortBlock)
	} else {
		g.builder.BuildCond(lhsBool, shortBlock, rhsBlock)
	}

	var shortValue uint64
	if ex.Op == cabs.BinLogOr {
		shortValue = 1
	}
	g.builder.SetBlock(shortBlock)
	g.builder.BuildStore(resultSlot, ir.Const(resultIRType, shortValue), resultIRType)
	g.builder.BuildBranch(afterBlock)

	g.builder.SetBlock(rhsBlock)
	rhsVal, _ := g.lowerExprRV(ex.Right)
	rhsBool := g.truthValueAsI32(rhsVal)
	g.builder.BuildStore(resultSlot, rhsBool, resultIRType)
	g.builder.BuildBranch(afterBlock)

	g.builder.SetBlock(afterBlock)
	return g.builder.BuildLoad(resultSlot, resultIRType)
}

// truthValueAsI32 normalizes any scalar to a 0/1 32-bit int: compare against
// the type's own zero value, then reinterpret the (already 0/1) result in a
// plain int's width so callers can freely store/branch on it regardless of
// the operand's original width.
func (g *Generator) truthValueAsI32(v ir.Value) ir.Value {
	zero := ir.Const(v.Type(), 0)
	neq := g.builder.BuildNeq(v, zero)
	return g.builder.BuildCast(neq, g.irTypeOf(ctypes.Int()))
}

func (g *Generator) lowerCall(ex cabs.Call) (ir.Value, ctypes.Type) {
	calleeVal, calleeCType := g.lowerExprRV(ex.Callee)
	ft, ok := underlyingFunctionType(calleeCType)
	if !ok {
		panic("irgen: call target is not a function")
	}
	args := make([]ir.Value, len(ex.Args))
	for i, a := range ex.Args {
		val, _ := g.lowerExprRV(a)
		if i < len(ft.Params) {
			val = g.coerceToType(val, ft.Params[i])
		}
		args[i] = val
	}
	result := g.builder.BuildCall(calleeVal, args, g.irTypeOf(ft.Return))
	return result, ft.Return
}

func (g *Generator) lowerTernary(ex cabs.Ternary) (ir.Value, ctypes.Type) {
	thenBlock := g.builder.NewBlock("ternary.then")
	elseBlock := g.builder.NewBlock("ternary.else")
	afterBlock := g.builder.NewBlock("ternary.after")

	// The result slot is reserved here, in the predecessor block, before the
	// COND branch — matching lowerLogical. Its type isn't known yet (the
	// ternary's result type is whichever arm actually runs), so it's
	// patched via SetLocalSlotType once the then-arm is lowered; the slot
	// itself is a compile-time frame reservation, not a runtime effect, so
	// reserving it ahead of its type being known is safe.
	slot := g.builder.BuildLocal(ir.Tpointer{})

	condVal, _ := g.lowerExprRV(ex.Cond)
	g.builder.BuildCond(g.truthValueAsI32(condVal), thenBlock, elseBlock)

	g.builder.SetBlock(thenBlock)
	thenVal, thenCType := g.lowerExprRV(ex.Then)
	resultIRType := g.irTypeOf(thenCType)
	g.builder.SetLocalSlotType(slot, resultIRType)
	g.builder.BuildStore(slot, thenVal, resultIRType)
	g.builder.BuildBranch(afterBlock)

	g.builder.SetBlock(elseBlock)
	elseVal, _ := g.lowerExprRV(ex.Else)
	g.builder.BuildStore(slot, g.coerceToType(elseVal, thenCType), resultIRType)
	g.builder.BuildBranch(afterBlock)

	g.builder.SetBlock(afterBlock)
	return g.builder.BuildLoad(slot, resultIRType), thenCType
}

func (g *Generator) lowerAssign(ex cabs.Assign) (ir.Value, ctypes.Type) {
	addr, ct := g.lowerExprLV(ex.Left)

	if ex.Compound == nil {
		val, _ := g.lowerExprRV(ex.Right)
		val = g.coerceToType(val, ct)
		g.builder.BuildStore(addr, val, g.irTypeOf(ct))
		return val, ct
	}

	current, _ := g.rvalueFromAddr(addr, ct)
	rhsVal, rhsCType := g.lowerExprRV(ex.Right)

	var result ir.Value
	switch *ex.Compound {
	case cabs.BinAdd, cabs.BinSub:
		if v, _, ok := g.tryPointerArith(*ex.Compound, current, ct, rhsVal, rhsCType); ok {
			result = v
		} else {
			result = g.arith(*ex.Compound, current, rhsVal)
		}
	case cabs.BinMod:
		quot := g.builder.BuildDiv(current, rhsVal)
		prod := g.builder.BuildMul(quot, rhsVal)
		result = g.builder.BuildSub(current, prod)
	default:
		result = g.arith(*ex.Compound, current, rhsVal)
	}
	result = g.coerceToType(result, ct)
	g.builder.BuildStore(addr, result, g.irTypeOf(ct))
	return result, ct
}
