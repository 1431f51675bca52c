package ir

// Value is a pure handle to something an instruction can operate on: a
// constant, an incoming argument, the result of another instruction, or a
// global's address. Values never carry ownership; mutation happens only by
// constructing new instructions.
type Value interface {
	implValue()
	Type() Type
}

// ConstValue is a constant operand. For scalar constants Payload holds the
// raw bit pattern (unsigned 64-bit, per spec). Aggregate initializers for
// globals use Elems instead, recursively, and leave Payload unused — this
// lifts the scalar-only restriction the distilled spec leaves implicit by
// following ir.c's dump_const, which already handles nested array/struct
// initializers.
type ConstValue struct {
	Typ     Type
	Payload uint64
	Elems   []ConstValue
}

// ArgValue refers to the Index-th incoming argument of the current function.
type ArgValue struct {
	Typ   Type
	Index int
}

// InstrValue refers to the result of a previously built instruction.
type InstrValue struct {
	Instr *Instr
}

// GlobalValue refers to a global's address. Its type is always a pointer.
type GlobalValue struct {
	Global *Global
}

func (ConstValue) implValue()  {}
func (ArgValue) implValue()    {}
func (InstrValue) implValue()  {}
func (GlobalValue) implValue() {}

func (v ConstValue) Type() Type { return v.Typ }
func (v ArgValue) Type() Type   { return v.Typ }
func (v InstrValue) Type() Type { return v.Instr.Typ }
func (GlobalValue) Type() Type  { return Tpointer{} }

// Const builds a scalar constant value.
func Const(t Type, payload uint64) ConstValue {
	return ConstValue{Typ: t, Payload: payload}
}

// Arg builds an argument-reference value.
func Arg(t Type, index int) ArgValue {
	return ArgValue{Typ: t, Index: index}
}

// GlobalRef builds a global-reference value.
func GlobalRef(g *Global) GlobalValue {
	return GlobalValue{Global: g}
}

// IsConst reports whether v is a scalar constant, the precondition for
// constant folding (fold.go).
func IsConst(v Value) (ConstValue, bool) {
	c, ok := v.(ConstValue)
	return c, ok && c.Elems == nil
}
