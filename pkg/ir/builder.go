package ir

// Builder is the IR construction API: it tracks the translation unit being
// built, the function currently being lowered into, and the block
// instructions are currently appended to. irgen drives one Builder per
// translation unit, retargeting CurrentFunc/CurrentBlock as it walks
// the AST.
type Builder struct {
	TU           *TransUnit
	CurrentFunc  *Function
	CurrentBlock *Block
	nextBlockID  int
}

// NewBuilder creates a builder over a fresh translation unit.
func NewBuilder() *Builder {
	return &Builder{TU: NewTransUnit()}
}

// SetFunction retargets the builder at fn; it does not change the current
// block, which the caller must set explicitly (typically to fn's entry
// block once created with NewBlock).
func (b *Builder) SetFunction(fn *Function) {
	b.CurrentFunc = fn
}

// SetBlock retargets instruction emission at block.
func (b *Builder) SetBlock(block *Block) {
	b.CurrentBlock = block
}

// AddFunction appends a function global to the translation unit and returns
// it. The function starts with no blocks; callers build its body with
// NewBlock/SetBlock/SetFunction before moving on to the next global.
func (b *Builder) AddFunction(name string, returnType Type, paramTypes []Type) *Global {
	fn := &Function{ParamTypes: paramTypes, ReturnType: returnType}
	g := &Global{
		Name:    name,
		Typ:     Tfunction{Params: paramTypes, Return: returnType},
		ID:      b.TU.allocGlobalID(),
		Defined: false,
		Link:    LinkageGlobal,
	}
	fn.Global = g
	g.Function = fn
	b.TU.Globals = append(b.TU.Globals, g)
	return g
}

// AddVar appends a variable global to the translation unit and returns it.
func (b *Builder) AddVar(name string, typ Type) *Global {
	g := &Global{
		Name: name,
		Typ:  typ,
		ID:   b.TU.allocGlobalID(),
		Link: LinkageGlobal,
	}
	b.TU.Globals = append(b.TU.Globals, g)
	return g
}

// SetInitializer marks a variable global as defined with the given constant
// (scalar or aggregate) initializer.
func (b *Builder) SetInitializer(g *Global, init ConstValue) {
	g.Defined = true
	g.Init = &init
}

// NewBlock allocates a block from the pool, names it, appends it to the
// current function's block list, and returns it. It does not retarget the
// builder — call SetBlock explicitly.
func (b *Builder) NewBlock(name string) *Block {
	if b.CurrentFunc == nil {
		panic("ir: NewBlock called with no current function")
	}
	block := b.TU.Pool.NewBlock()
	block.Name = name
	block.ID = b.nextBlockID
	b.nextBlockID++
	block.Function = b.CurrentFunc
	b.CurrentFunc.Blocks = append(b.CurrentFunc.Blocks, block)
	b.CurrentFunc.Global.Defined = true
	return block
}

// AddStruct reserves a named struct type with numFields fields, to be filled
// in with SetField and finalized with CompleteStruct — mirroring the
// reference builder's two-step add_struct/fill-fields-in protocol.
func (b *Builder) AddStruct(name string, numFields int) *Tstruct {
	s := b.TU.Pool.NewStructType()
	s.Name = name
	s.Fields = make([]StructField, numFields)
	b.TU.Structs = append(b.TU.Structs, s)
	return s
}

// SetField assigns the type of struct field index before the struct is
// completed. Offsets are not valid until CompleteStruct runs.
func (b *Builder) SetField(s *Tstruct, index int, fieldType Type) {
	s.Fields[index].Type = fieldType
}

// CompleteStruct computes field offsets, total size, and alignment from the
// field types set via SetField, using each field's natural alignment with
// no trailing padding.
func (b *Builder) CompleteStruct(s *Tstruct) {
	types := make([]Type, len(s.Fields))
	for i, f := range s.Fields {
		types[i] = f.Type
	}
	fields, size, align := layoutFields(types)
	s.Fields = fields
	s.Size = size
	s.Align = align
}

// ValueConst constructs a scalar constant value without emitting an
// instruction.
func (b *Builder) ValueConst(t Type, payload uint64) Value { return Const(t, payload) }

// ValueArg constructs an argument-reference value without emitting an
// instruction.
func (b *Builder) ValueArg(t Type, index int) Value { return Arg(t, index) }

// ValueGlobal constructs a global-reference value without emitting an
// instruction.
func (b *Builder) ValueGlobal(g *Global) Value { return GlobalRef(g) }

// emit appends a new instruction with the given opcode payload and result
// type to the current block, enforcing that no instruction follows a
// terminator and that every instruction belongs to exactly one block.
func (b *Builder) emit(op InstrOp, typ Type) *Instr {
	if b.CurrentBlock == nil {
		panic("ir: instruction emitted with no current block")
	}
	if b.CurrentBlock.IsTerminated() {
		panic("ir: instruction emitted after block terminator in block " + b.CurrentBlock.Name)
	}
	instr := b.TU.Pool.NewInstr()
	instr.ID = len(b.CurrentBlock.Instrs)
	instr.Typ = typ
	instr.Block = b.CurrentBlock
	instr.Op = op
	b.CurrentBlock.Instrs = append(b.CurrentBlock.Instrs, instr)
	return instr
}

// BuildLocal reserves a stack slot of slotType and returns its address.
func (b *Builder) BuildLocal(slotType Type) Value {
	return b.emit(LocalOp{SlotType: slotType}, Tpointer{}).Value()
}

// SetLocalSlotType patches the slot type of a LOCAL instruction built
// earlier by BuildLocal. It exists for callers that must reserve a slot in
// a predecessor block, before a branch, but only learn the slot's type
// once control reaches one of the branch's arms (the ternary operator:
// its result type depends on the taken arm, so the slot can't be correctly
// sized until that arm is lowered). The slot's address type never changes
// (it's always a pointer); only the frame-allocation size/type recorded in
// LocalOp.SlotType is rewritten.
func (b *Builder) SetLocalSlotType(v Value, slotType Type) {
	instr, ok := v.(InstrValue)
	if !ok {
		panic("ir: SetLocalSlotType called on a non-instruction value")
	}
	local, ok := instr.Instr.Op.(LocalOp)
	if !ok {
		panic("ir: SetLocalSlotType called on a non-LOCAL instruction")
	}
	local.SlotType = slotType
	instr.Instr.Op = local
}

// BuildField computes the address of a field within a struct pointer.
func (b *Builder) BuildField(structPtr Value, structType *Tstruct, fieldIndex int) Value {
	return b.emit(FieldOp{StructPtr: structPtr, StructType: structType, FieldIndex: fieldIndex}, Tpointer{}).Value()
}

// BuildLoad reads accessType from pointer.
func (b *Builder) BuildLoad(pointer Value, accessType Type) Value {
	return b.emit(LoadOp{Pointer: pointer, AccessType: accessType}, accessType).Value()
}

// BuildStore writes value (of accessType) to pointer.
func (b *Builder) BuildStore(pointer, value Value, accessType Type) {
	b.emit(StoreOp{Pointer: pointer, StoreValue: value, AccessType: accessType}, Tvoid{})
}

// BuildCast reinterprets operand's bits as resultType without changing
// width. Folds immediately when operand is a scalar constant.
func (b *Builder) BuildCast(operand Value, resultType Type) Value {
	if c, ok := IsConst(operand); ok {
		return Const(resultType, c.Payload)
	}
	return b.emit(CastOp{Operand: operand}, resultType).Value()
}

// BuildZext zero-extends operand to resultType.
func (b *Builder) BuildZext(operand Value, resultType Type) Value {
	if c, ok := IsConst(operand); ok {
		width := widthOf(operand.Type())
		return Const(resultType, maskToWidth(c.Payload, width))
	}
	return b.emit(ZextOp{Operand: operand}, resultType).Value()
}

// BuildSext sign-extends operand to resultType.
func (b *Builder) BuildSext(operand Value, resultType Type) Value {
	if c, ok := IsConst(operand); ok {
		width := widthOf(operand.Type())
		return Const(resultType, signExtend(c.Payload, width))
	}
	return b.emit(SextOp{Operand: operand}, resultType).Value()
}

func widthOf(t Type) int {
	if i, ok := t.(Tint); ok {
		return i.Width
	}
	return 64
}

// BuildBranch unconditionally transfers control to target, terminating the
// current block.
func (b *Builder) BuildBranch(target *Block) {
	b.emit(BranchOp{Target: target}, Tvoid{})
}

// BuildCond transfers control to then if cond is nonzero, else to els,
// terminating the current block.
func (b *Builder) BuildCond(cond Value, then, els *Block) {
	b.emit(CondOp{Cond: cond, Then: then, Else: els}, Tvoid{})
}

// BuildRet returns value from the enclosing function, terminating the
// current block.
func (b *Builder) BuildRet(value Value) {
	b.emit(RetOp{Value: value}, Tvoid{})
}

// BuildRetVoid returns with no value, terminating the current block.
func (b *Builder) BuildRetVoid() {
	b.emit(RetVoidOp{}, Tvoid{})
}

// BuildCall invokes callee with args, producing a value of resultType.
func (b *Builder) BuildCall(callee Value, args []Value, resultType Type) Value {
	if len(args) > 6 {
		panic("ir: call with more than 6 arguments is not supported in this tier")
	}
	return b.emit(CallOp{Callee: callee, Args: args}, resultType).Value()
}

// buildBinary is the shared path for every two-operand arithmetic/bitwise/
// comparison opcode: both operands must share an IR type, and the
// instruction folds to a constant when both operands already are one.
func (b *Builder) buildBinary(op Opcode, lhs, rhs Value) Value {
	if !TypeEqual(lhs.Type(), rhs.Type()) {
		panic("ir: binary operand type mismatch in " + op.String())
	}
	resultType := lhs.Type()
	if cl, ok := IsConst(lhs); ok {
		if cr, ok := IsConst(rhs); ok && foldableBinary(op) {
			return Const(resultType, foldBinary(op, cl.Payload, cr.Payload))
		}
	}
	return b.emit(BinOp{Kind: op, LHS: lhs, RHS: rhs}, resultType).Value()
}

func (b *Builder) buildUnary(op Opcode, operand Value) Value {
	resultType := operand.Type()
	if c, ok := IsConst(operand); ok && foldableUnary(op) {
		return Const(resultType, foldUnary(op, c.Payload))
	}
	return b.emit(UnOp{Kind: op, Operand: operand}, resultType).Value()
}

func (b *Builder) BuildBitXor(lhs, rhs Value) Value { return b.buildBinary(OpBitXor, lhs, rhs) }
func (b *Builder) BuildBitAnd(lhs, rhs Value) Value { return b.buildBinary(OpBitAnd, lhs, rhs) }
func (b *Builder) BuildBitOr(lhs, rhs Value) Value  { return b.buildBinary(OpBitOr, lhs, rhs) }
func (b *Builder) BuildMul(lhs, rhs Value) Value    { return b.buildBinary(OpMul, lhs, rhs) }
func (b *Builder) BuildDiv(lhs, rhs Value) Value    { return b.buildBinary(OpDiv, lhs, rhs) }
func (b *Builder) BuildAdd(lhs, rhs Value) Value    { return b.buildBinary(OpAdd, lhs, rhs) }
func (b *Builder) BuildSub(lhs, rhs Value) Value    { return b.buildBinary(OpSub, lhs, rhs) }
func (b *Builder) BuildEq(lhs, rhs Value) Value     { return b.buildBinary(OpEq, lhs, rhs) }
func (b *Builder) BuildNeq(lhs, rhs Value) Value    { return b.buildBinary(OpNeq, lhs, rhs) }
func (b *Builder) BuildGt(lhs, rhs Value) Value     { return b.buildBinary(OpGt, lhs, rhs) }
func (b *Builder) BuildGte(lhs, rhs Value) Value    { return b.buildBinary(OpGte, lhs, rhs) }
func (b *Builder) BuildLt(lhs, rhs Value) Value     { return b.buildBinary(OpLt, lhs, rhs) }
func (b *Builder) BuildLte(lhs, rhs Value) Value    { return b.buildBinary(OpLte, lhs, rhs) }

func (b *Builder) BuildBitNot(operand Value) Value { return b.buildUnary(OpBitNot, operand) }
func (b *Builder) BuildLogNot(operand Value) Value { return b.buildUnary(OpLogNot, operand) }
