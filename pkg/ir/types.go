// Package ir defines the typed intermediate representation produced by
// irgen and consumed by asmgen: values, instructions, blocks, functions,
// globals, and a translation unit backed by a pool allocator. It mirrors
// ir.c/ir.h from the naive compiler this backend replaces, expressed as Go
// sum types instead of tagged unions.
package ir

// Type is one of the IR's six type kinds: integer, pointer, function,
// struct, array, or void. Integer signedness lives one layer up, in ctypes; the IR
// itself only tracks bit width, since every integer IR opcode is
// sign-agnostic (ir.c never branches on signedness of an IrType).
type Type interface {
	implType()
	String() string
}

// Tint is an integer type of the given bit width. Width must be one of
// 8, 16, 32, 64.
type Tint struct {
	Width int
}

// Tpointer is an opaque 8-byte pointer type.
type Tpointer struct{}

// Tfunction is a function's type: ordered parameter types and a return type.
type Tfunction struct {
	Params []Type
	Return Type
}

// Tstruct is a named aggregate type with fields laid out at fixed byte
// offsets. Size and Align are computed once, when the struct is completed
// (see Builder.CompleteStruct), and never recomputed.
type Tstruct struct {
	Name   string
	Fields []StructField
	Size   int64
	Align  int64
}

// StructField is one field of a struct type.
type StructField struct {
	Type   Type
	Offset int64
}

// Tvoid is the type of side-effect-only instructions and of function
// results that return nothing.
type Tvoid struct{}

// Tarray is a fixed-count array of a single element type.
type Tarray struct {
	Elem  Type
	Count int64
}

func (Tint) implType()      {}
func (Tpointer) implType()  {}
func (Tfunction) implType() {}
func (*Tstruct) implType()  {}
func (Tvoid) implType()     {}
func (Tarray) implType()    {}

func (t Tint) String() string { return intName(t.Width) }

func intName(width int) string {
	switch width {
	case 8:
		return "i8"
	case 16:
		return "i16"
	case 32:
		return "i32"
	case 64:
		return "i64"
	}
	return "i?"
}

func (Tpointer) String() string { return "ptr" }

func (t Tfunction) String() string { return "fn" }

func (t *Tstruct) String() string {
	if t.Name == "" {
		return "struct.anon"
	}
	return "struct." + t.Name
}

func (Tvoid) String() string { return "void" }

func (t Tarray) String() string {
	return "array"
}

// Sizeof returns the byte size of an IR type.
func Sizeof(t Type) int64 {
	switch ty := t.(type) {
	case Tint:
		return int64(ty.Width) / 8
	case Tpointer, Tfunction:
		return 8
	case *Tstruct:
		return ty.Size
	case Tarray:
		return ty.Count * Sizeof(ty.Elem)
	case Tvoid:
		return 0
	}
	return 0
}

// Alignof returns the natural alignment of an IR type: a struct's alignment
// is its max field alignment (computed at completion time); an array
// collapses to its element type's alignment; everything else aligns to its
// own size.
func Alignof(t Type) int64 {
	switch ty := t.(type) {
	case *Tstruct:
		return ty.Align
	case Tarray:
		return Alignof(ty.Elem)
	default:
		return Sizeof(t)
	}
}

// TypeEqual is structural for int/pointer/function, by-name for struct.
func TypeEqual(a, b Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	switch ta := a.(type) {
	case Tint:
		tb, ok := b.(Tint)
		return ok && ta.Width == tb.Width
	case Tpointer:
		_, ok := b.(Tpointer)
		return ok
	case Tvoid:
		_, ok := b.(Tvoid)
		return ok
	case *Tstruct:
		tb, ok := b.(*Tstruct)
		return ok && ta.Name == tb.Name
	case Tarray:
		tb, ok := b.(Tarray)
		return ok && ta.Count == tb.Count && TypeEqual(ta.Elem, tb.Elem)
	case Tfunction:
		tb, ok := b.(Tfunction)
		if !ok || len(ta.Params) != len(tb.Params) || !TypeEqual(ta.Return, tb.Return) {
			return false
		}
		for i, p := range ta.Params {
			if !TypeEqual(p, tb.Params[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// layoutFields computes field offsets and total size/alignment using each
// field's natural alignment, with arrays collapsing to their element's
// alignment and no trailing padding — ir.c's align_of_ir_type/size_of_ir_type.
func layoutFields(types []Type) ([]StructField, int64, int64) {
	fields := make([]StructField, len(types))
	var offset, maxAlign int64 = 0, 1
	for i, t := range types {
		align := Alignof(t)
		if align < 1 {
			align = 1
		}
		if rem := offset % align; rem != 0 {
			offset += align - rem
		}
		fields[i] = StructField{Type: t, Offset: offset}
		offset += Sizeof(t)
		if align > maxAlign {
			maxAlign = align
		}
	}
	return fields, offset, maxAlign
}
