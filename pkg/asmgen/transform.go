// Package asmgen selects x86-64 instructions for a translation unit's IR,
// turning each ir.Function into an asm.Function with virtual registers in
// place of physical ones. Register allocation and frame layout happen in
// later passes (pkg/regalloc, pkg/stacking).
package asmgen

import (
	"fmt"

	"github.com/nccback/nccback/pkg/asm"
	"github.com/nccback/nccback/pkg/ir"
)

// TransformTransUnit selects instructions for every defined function in tu
// and carries every variable global over as data,
// producing the assembly program the register allocator consumes next.
func TransformTransUnit(tu *ir.TransUnit) *asm.Program {
	prog := &asm.Program{}
	for _, g := range tu.Globals {
		if g.IsFunction() {
			if g.Defined {
				prog.Functions = append(prog.Functions, translateFunction(g))
			}
			continue
		}
		prog.Globals = append(prog.Globals, translateGlobalVar(g))
	}
	return prog
}

func translateGlobalVar(g *ir.Global) asm.GlobVar {
	gv := asm.GlobVar{
		Name:  g.Name,
		Size:  ir.Sizeof(g.Typ),
		Align: int(ir.Alignof(g.Typ)),
	}
	if g.Init != nil {
		gv.Init = initBytes(*g.Init, g.Typ)
	}
	return gv
}

// initBytes flattens a (possibly aggregate) constant initializer into its
// little-endian byte image, padding scalar payloads out to the type's size.
func initBytes(c ir.ConstValue, t ir.Type) []byte {
	if c.Elems != nil {
		out := make([]byte, 0, ir.Sizeof(t))
		elemType := elementTypeOf(t)
		for _, e := range c.Elems {
			out = append(out, initBytes(e, elemType)...)
		}
		return out
	}
	size := ir.Sizeof(t)
	out := make([]byte, size)
	v := c.Payload
	for i := int64(0); i < size; i++ {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

func elementTypeOf(t ir.Type) ir.Type {
	switch ty := t.(type) {
	case ir.Tarray:
		return ty.Elem
	case *ir.Tstruct:
		if len(ty.Fields) > 0 {
			return ty.Fields[0].Type
		}
	}
	return ir.Tint{Width: 8}
}

// funcCtx is the per-function translation state: the output function being
// built, the stack slot assigned to each LOCAL instruction, the virtual
// register holding each value-producing instruction's result, and the
// pre-colored argument registers for the function's own parameters.
type funcCtx struct {
	fn       *ir.Function
	out      *asm.Function
	local    map[*ir.Instr]int64
	vreg     map[*ir.Instr]asm.Reg
	argRegs  []asm.Reg
	label    map[*ir.Block]asm.Label
	stackUse int64
}

func translateFunction(g *ir.Global) *asm.Function {
	fn := g.Function
	ctx := &funcCtx{
		fn:    fn,
		out:   asm.NewFunction(g.Name),
		local: make(map[*ir.Instr]int64),
		vreg:  make(map[*ir.Instr]asm.Reg),
		label: make(map[*ir.Block]asm.Label),
	}
	for i, pt := range fn.ParamTypes {
		ctx.argRegs = append(ctx.argRegs, ctx.out.NewPreColoredVReg(widthOf(pt), asm.ArgRegs[i]))
	}
	for _, b := range fn.Blocks {
		ctx.label[b] = asm.Label(fmt.Sprintf("%s.%s.%d", g.Name, b.Name, b.ID))
	}
	for bi, b := range fn.Blocks {
		start := len(ctx.out.Body)
		for _, instr := range b.Instrs {
			ctx.translateInstr(instr)
		}
		switch {
		case bi == 0:
			// the function's entry label: external callers and CALL sites
			// jump here by the function's own name, not a block label.
			ctx.out.Body[0].Label = asm.Label(g.Name)
		case ctx.out.Body[start].Label == "":
			ctx.out.Body[start] = ctx.out.Body[start].WithLabel(ctx.label[b])
		}
	}
	ctx.out.LocalStackUsage = ctx.stackUse
	return ctx.out
}

func (c *funcCtx) emit(i asm.Instr) { c.out.Body = append(c.out.Body, i) }

// allocSlot reserves t's bytes in the frame (aligned to t's natural
// alignment) and returns the RBP-relative offset assigned to it.
func (c *funcCtx) allocSlot(t ir.Type) int64 {
	size := ir.Sizeof(t)
	align := ir.Alignof(t)
	if align < 1 {
		align = 1
	}
	c.stackUse += size
	if rem := c.stackUse % align; rem != 0 {
		c.stackUse += align - rem
	}
	return -c.stackUse
}

func widthOf(t ir.Type) int {
	switch ty := t.(type) {
	case ir.Tint:
		return ty.Width / 8
	case ir.Tvoid:
		return 0
	default:
		return 8
	}
}

// resolveAddress turns a pointer-typed IR value into a memory operand,
// tracing LOCAL/FIELD chains back to a stack slot or global symbol directly
// rather than paying for a register move, and falling back to materializing
// any other pointer-valued expression (a loaded pointer, a call result, a
// cast) into a register and dereferencing that.
func (c *funcCtx) resolveAddress(v ir.Value, width int) asm.Operand {
	switch val := v.(type) {
	case ir.InstrValue:
		switch op := val.Instr.Op.(type) {
		case ir.LocalOp:
			off, ok := c.local[val.Instr]
			if !ok {
				off = c.allocSlot(op.SlotType)
				c.local[val.Instr] = off
			}
			return asm.OffsetRegWidth(asm.PhysicalReg(asm.RBP, 8), off, width)
		case ir.FieldOp:
			base := c.resolveAddress(op.StructPtr, 8)
			base.Offset += op.StructType.Fields[op.FieldIndex].Offset
			base.Width = width
			return base
		}
	case ir.GlobalValue:
		return asm.SymbolMem(val.Global.Name, val.Global.Link == ir.LinkageGlobal, width)
	}
	reg := c.asValue(v)
	if reg.Kind != asm.OpReg {
		panic("asmgen: pointer operand did not resolve to an address or a register")
	}
	return asm.OffsetRegWidth(reg.Reg, 0, width)
}

// asValue resolves any IR value to the register or immediate operand that
// holds it, materializing addresses (LOCAL/FIELD chains, global symbols)
// into a fresh register via MOV(+ADD) when they're consumed as a value
// rather than as the target of a LOAD/STORE/FIELD.
func (c *funcCtx) asValue(v ir.Value) asm.Operand {
	switch val := v.(type) {
	case ir.ConstValue:
		return asm.ImmWidth(val.Payload, widthOf(val.Typ))
	case ir.ArgValue:
		return asm.Register(c.argRegs[val.Index])
	case ir.GlobalValue:
		if val.Global.IsFunction() {
			return asm.Sym(val.Global.Name, val.Global.Link == ir.LinkageGlobal)
		}
		dst := c.out.NewVReg(8)
		c.emit(asm.Emit2(asm.OpMOV, asm.Register(dst), asm.Sym(val.Global.Name, val.Global.Link == ir.LinkageGlobal)))
		return asm.Register(dst)
	case ir.InstrValue:
		switch val.Instr.Op.(type) {
		case ir.LocalOp, ir.FieldOp:
			addr := c.resolveAddress(val, 8)
			dst := c.out.NewVReg(8)
			if addr.Symbol != "" {
				sym := asm.Sym(addr.Symbol, addr.Global)
				sym.Offset = addr.Offset
				c.emit(asm.Emit2(asm.OpMOV, asm.Register(dst), sym))
			} else {
				c.emit(asm.Emit2(asm.OpMOV, asm.Register(dst), asm.Register(addr.Reg)))
				if addr.Offset != 0 {
					c.emit(asm.Emit2(asm.OpADD, asm.Register(dst), asm.Imm(uint64(addr.Offset))))
				}
			}
			return asm.Register(dst)
		}
		reg, ok := c.vreg[val.Instr]
		if !ok {
			panic(fmt.Sprintf("asmgen: value referenced before its defining instruction was translated (%s)", val.Instr.Opcode()))
		}
		return asm.Register(reg)
	}
	panic(fmt.Sprintf("asmgen: unhandled IR value kind %T", v))
}

func (c *funcCtx) translateInstr(instr *ir.Instr) {
	switch op := instr.Op.(type) {
	case ir.LocalOp:
		if _, ok := c.local[instr]; !ok {
			c.local[instr] = c.allocSlot(op.SlotType)
		}
	case ir.FieldOp:
		// address computed lazily wherever the field value is consumed.
	case ir.LoadOp:
		width := widthOf(op.AccessType)
		addr := c.resolveAddress(op.Pointer, width)
		dst := c.out.NewVReg(width)
		c.emit(asm.Emit2(asm.OpMOV, asm.Register(dst), addr))
		c.vreg[instr] = dst
	case ir.StoreOp:
		width := widthOf(op.AccessType)
		addr := c.resolveAddress(op.Pointer, width)
		val := c.asValue(op.StoreValue)
		c.emit(asm.Emit2(asm.OpMOV, addr, val))
	case ir.CastOp:
		width := widthOf(instr.Typ)
		val := c.asValue(op.Operand)
		dst := c.out.NewVReg(width)
		c.emit(asm.Emit2(asm.OpMOV, asm.Register(dst), val))
		c.vreg[instr] = dst
	case ir.ZextOp:
		val := c.asValue(op.Operand)
		dst := c.out.NewVReg(widthOf(instr.Typ))
		c.emit(asm.Emit2(asm.OpMOVZX, asm.Register(dst), val))
		c.vreg[instr] = dst
	case ir.SextOp:
		val := c.asValue(op.Operand)
		dst := c.out.NewVReg(widthOf(instr.Typ))
		c.emit(asm.Emit2(asm.OpMOVSX, asm.Register(dst), val))
		c.vreg[instr] = dst
	case ir.BranchOp:
		c.emit(asm.Emit1(asm.OpJMP, asm.LabelOperand(c.label[op.Target])))
	case ir.CondOp:
		cond := c.asValue(op.Cond)
		c.emit(asm.Emit2(asm.OpCMP, cond, asm.Imm(0)))
		c.emit(asm.Instr{Op: asm.OpJcc, Cond: asm.CondE, Operands: []asm.Operand{asm.LabelOperand(c.label[op.Else])}})
		c.emit(asm.Emit1(asm.OpJMP, asm.LabelOperand(c.label[op.Then])))
	case ir.RetOp:
		width := widthOf(op.Value.Type())
		val := c.asValue(op.Value)
		rax := c.out.NewPreColoredVReg(width, asm.RAX)
		c.emit(asm.Emit2(asm.OpMOV, asm.Register(rax), val))
		c.emit(asm.Emit1(asm.OpJMP, asm.LabelOperand(c.out.RetLabel)))
	case ir.RetVoidOp:
		c.emit(asm.Emit1(asm.OpJMP, asm.LabelOperand(c.out.RetLabel)))
	case ir.CallOp:
		c.translateCall(instr, op)
	case ir.BinOp:
		c.translateBinOp(instr, op)
	case ir.UnOp:
		c.translateUnOp(instr, op)
	default:
		panic(fmt.Sprintf("asmgen: unhandled IR opcode %s", instr.Opcode()))
	}
}

func (c *funcCtx) translateCall(instr *ir.Instr, op ir.CallOp) {
	if len(op.Args) > len(asm.ArgRegs) {
		panic("asmgen: call arity exceeds the System V register-argument limit")
	}
	argRegs := make([]asm.Reg, len(op.Args))
	for i, a := range op.Args {
		val := c.asValue(a)
		argRegs[i] = c.out.NewPreColoredVReg(widthOf(a.Type()), asm.ArgRegs[i])
		c.emit(asm.Emit2(asm.OpMOV, asm.Register(argRegs[i]), val))
	}
	var callee asm.Operand
	if g, ok := op.Callee.(ir.GlobalValue); ok && g.Global.IsFunction() {
		callee = asm.Sym(g.Global.Name, g.Global.Link == ir.LinkageGlobal)
	} else {
		callee = c.asValue(op.Callee)
	}
	call := asm.Emit1(asm.OpCALL, callee)
	call.ExtraUse = argRegs
	if _, isVoid := instr.Typ.(ir.Tvoid); !isVoid {
		result := c.out.NewPreColoredVReg(widthOf(instr.Typ), asm.RAX)
		call.ExtraDef = []asm.Reg{result}
		c.emit(call)
		c.vreg[instr] = result
		return
	}
	c.emit(call)
}

var binOpcode = map[ir.Opcode]asm.Opcode{
	ir.OpBitXor: asm.OpXOR,
	ir.OpBitAnd: asm.OpAND,
	ir.OpBitOr:  asm.OpOR,
	ir.OpAdd:    asm.OpADD,
	ir.OpSub:    asm.OpSUB,
}

var condOpcode = map[ir.Opcode]asm.CondCode{
	ir.OpEq:  asm.CondE,
	ir.OpNeq: asm.CondNE,
	ir.OpGt:  asm.CondG,
	ir.OpGte: asm.CondGE,
	ir.OpLt:  asm.CondL,
	ir.OpLte: asm.CondLE,
}

func (c *funcCtx) translateBinOp(instr *ir.Instr, op ir.BinOp) {
	width := widthOf(instr.Typ)
	if opc, ok := binOpcode[op.Kind]; ok {
		a := c.asValue(op.LHS)
		b := c.asValue(op.RHS)
		dst := c.out.NewVReg(width)
		c.emit(asm.Emit2(asm.OpMOV, asm.Register(dst), a))
		c.emit(asm.Emit2(opc, asm.Register(dst), b))
		c.vreg[instr] = dst
		return
	}
	switch op.Kind {
	case ir.OpMul:
		c.translateMul(instr, op, width)
	case ir.OpDiv:
		c.translateDiv(instr, op, width)
	default:
		if _, ok := condOpcode[op.Kind]; ok {
			c.translateCompare(instr, op)
			return
		}
		panic(fmt.Sprintf("asmgen: unhandled binary opcode %s", op.Kind))
	}
}

func (c *funcCtx) translateMul(instr *ir.Instr, op ir.BinOp, width int) {
	dst := c.out.NewVReg(width)
	if rc, ok := ir.IsConst(op.RHS); ok {
		a := c.asValue(op.LHS)
		c.emit(asm.Emit3(asm.OpIMUL, asm.Register(dst), a, asm.ImmWidth(rc.Payload, width)))
	} else if lc, ok := ir.IsConst(op.LHS); ok {
		b := c.asValue(op.RHS)
		c.emit(asm.Emit3(asm.OpIMUL, asm.Register(dst), b, asm.ImmWidth(lc.Payload, width)))
	} else {
		a := c.asValue(op.LHS)
		b := c.asValue(op.RHS)
		c.emit(asm.Emit2(asm.OpMOV, asm.Register(dst), a))
		c.emit(asm.Emit2(asm.OpIMUL, asm.Register(dst), b))
	}
	c.vreg[instr] = dst
}

// translateDiv lowers IR division to IDIV, always as a signed divide: the
// IR carries no signedness (that lives one layer up, in ctypes), so
// unsigned division is a known gap rather than a silent miscompile — no
// seed scenario exercises it.
func (c *funcCtx) translateDiv(instr *ir.Instr, op ir.BinOp, width int) {
	a := c.asValue(op.LHS)
	rax := c.out.NewPreColoredVReg(width, asm.RAX)
	c.emit(asm.Emit2(asm.OpMOV, asm.Register(rax), a))
	rdx := c.out.NewPreColoredVReg(width, asm.RDX)
	cdq := asm.Emit0(asm.OpCDQ)
	cdq.ExtraUse = []asm.Reg{rax}
	cdq.ExtraDef = []asm.Reg{rdx}
	c.emit(cdq)
	b := c.asValue(op.RHS)
	if b.Kind == asm.OpImm {
		tmp := c.out.NewVReg(width)
		c.emit(asm.Emit2(asm.OpMOV, asm.Register(tmp), b))
		b = asm.Register(tmp)
	}
	div := asm.Emit1(asm.OpIDIV, b)
	div.ExtraUse = []asm.Reg{rax, rdx}
	div.ExtraDef = []asm.Reg{rax, rdx}
	c.emit(div)
	dst := c.out.NewVReg(width)
	c.emit(asm.Emit2(asm.OpMOV, asm.Register(dst), asm.Register(rax)))
	c.vreg[instr] = dst
}

func (c *funcCtx) translateCompare(instr *ir.Instr, op ir.BinOp) {
	a := c.asValue(op.LHS)
	b := c.asValue(op.RHS)
	c.emit(asm.Emit2(asm.OpCMP, a, b))
	dst8 := c.out.NewVReg(1)
	c.emit(asm.Instr{Op: asm.OpSETcc, Cond: condOpcode[op.Kind], Operands: []asm.Operand{asm.Register(dst8)}})
	dst := c.out.NewVReg(widthOf(instr.Typ))
	c.emit(asm.Emit2(asm.OpMOVZX, asm.Register(dst), asm.Register(dst8)))
	c.vreg[instr] = dst
}

func (c *funcCtx) translateUnOp(instr *ir.Instr, op ir.UnOp) {
	width := widthOf(instr.Typ)
	a := c.asValue(op.Operand)
	switch op.Kind {
	case ir.OpBitNot:
		dst := c.out.NewVReg(width)
		c.emit(asm.Emit2(asm.OpMOV, asm.Register(dst), a))
		c.emit(asm.Emit1(asm.OpNOT, asm.Register(dst)))
		c.vreg[instr] = dst
	case ir.OpLogNot:
		c.emit(asm.Emit2(asm.OpCMP, a, asm.Imm(0)))
		dst8 := c.out.NewVReg(1)
		c.emit(asm.Instr{Op: asm.OpSETcc, Cond: asm.CondE, Operands: []asm.Operand{asm.Register(dst8)}})
		dst := c.out.NewVReg(width)
		c.emit(asm.Emit2(asm.OpMOVZX, asm.Register(dst), asm.Register(dst8)))
		c.vreg[instr] = dst
	default:
		panic(fmt.Sprintf("asmgen: unhandled unary opcode %s", op.Kind))
	}
}
