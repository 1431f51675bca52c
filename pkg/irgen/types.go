package irgen

import (
	"github.com/nccback/nccback/pkg/cabs"
	"github.com/nccback/nccback/pkg/ctypes"
	"github.com/nccback/nccback/pkg/ir"
)

// resolveDeclaredType computes the C type a declarator names given the
// declaration specifier it appears under. Pointers attach to the
// identifier at the core of the declarator, exactly as C's grammar writes
// them (`int *a[5]` is an array of pointers, `int *f(void)` is a function
// returning a pointer), so they are folded into the leaf type before the
// array/function wrapping in Direct is applied outward from there.
func (g *Generator) resolveDeclaredType(spec cabs.DeclSpec, decl cabs.Declarator) ctypes.Type {
	leaf := g.baseTypeFromSpec(spec)
	for i := 0; i < decl.Pointers; i++ {
		leaf = ctypes.Pointer(leaf)
	}
	return g.resolveDirect(decl.Direct, leaf)
}

// resolveParamType is resolveDeclaredType with the function-parameter
// decay rule applied: an array parameter decays to a pointer to its
// element type.
func (g *Generator) resolveParamType(p cabs.Param) ctypes.Type {
	return decayParam(g.resolveDeclaredType(p.Spec, p.Declarator))
}

func decayParam(ct ctypes.Type) ctypes.Type {
	if arr, ok := ct.(ctypes.Tarray); ok {
		return ctypes.Pointer(arr.Elem)
	}
	return ct
}

func (g *Generator) resolveDirect(d cabs.DirectDeclarator, leaf ctypes.Type) ctypes.Type {
	switch dd := d.(type) {
	case cabs.IdentDeclarator:
		return leaf
	case cabs.ArrayDeclarator:
		inner := g.resolveDirect(dd.Of, leaf)
		return ctypes.Array(inner, dd.Size)
	case cabs.FuncDeclarator:
		params := make([]ctypes.Type, 0, len(dd.Params))
		for _, p := range dd.Params {
			params = append(params, g.resolveParamType(p))
		}
		ret := g.resolveDirect(dd.Of, leaf)
		return ctypes.Tfunction{Params: params, Return: ret}
	}
	panic("irgen: unresolvable declarator shape")
}

func (g *Generator) baseTypeFromSpec(spec cabs.DeclSpec) ctypes.Type {
	switch spec.Base {
	case cabs.SpecVoid:
		return ctypes.Void()
	case cabs.SpecChar:
		if spec.Unsigned {
			return ctypes.UChar()
		}
		return ctypes.Char()
	case cabs.SpecShort:
		if spec.Unsigned {
			return ctypes.UShort()
		}
		return ctypes.Short()
	case cabs.SpecInt:
		if spec.Unsigned {
			return ctypes.UInt()
		}
		return ctypes.Int()
	case cabs.SpecLong:
		if spec.Unsigned {
			return ctypes.ULong()
		}
		return ctypes.Long()
	case cabs.SpecStruct:
		return g.resolveStructSpec(spec, false)
	case cabs.SpecUnion:
		return g.resolveStructSpec(spec, true)
	case cabs.SpecTypedefName:
		if t, ok := g.typeEnv.lookupTypedef(spec.TagName); ok {
			return t
		}
		panic("irgen: unknown typedef name " + spec.TagName)
	}
	return ctypes.Int()
}

// resolveStructSpec either lays out a fresh struct/union from an inline
// definition (`struct S { ... }`) or looks one up by tag from an earlier
// definition (`struct S`). Named definitions are registered in the
// innermost type scope as they are laid out.
func (g *Generator) resolveStructSpec(spec cabs.DeclSpec, isUnion bool) ctypes.Type {
	if spec.StructDef != nil {
		fieldNames := make([]string, len(spec.StructDef.Fields))
		fieldTypes := make([]ctypes.Type, len(spec.StructDef.Fields))
		for i, f := range spec.StructDef.Fields {
			fieldNames[i] = f.Name()
			fieldTypes[i] = g.resolveDeclaredType(f.Spec, f.Declarator)
		}
		if isUnion {
			u := ctypes.NewUnion(spec.StructDef.Name, fieldNames, fieldTypes)
			if u.Name != "" {
				g.typeEnv.unions[u.Name] = u
			}
			return u
		}
		s := ctypes.NewStruct(spec.StructDef.Name, fieldNames, fieldTypes)
		if s.Name != "" {
			g.typeEnv.structs[s.Name] = s
		}
		return s
	}
	if isUnion {
		if u, ok := g.typeEnv.lookupUnion(spec.TagName); ok {
			return u
		}
		panic("irgen: reference to undefined union " + spec.TagName)
	}
	if s, ok := g.typeEnv.lookupStruct(spec.TagName); ok {
		return s
	}
	panic("irgen: reference to undefined struct " + spec.TagName)
}

// registerTagOnly processes a bare `struct S { ... };` or `union U { ... };`
// declaration, whose only effect is registering the tag.
func (g *Generator) registerTagOnly(spec cabs.DeclSpec) {
	switch spec.Base {
	case cabs.SpecStruct, cabs.SpecUnion:
		g.baseTypeFromSpec(spec)
	}
}

// irTypeOf lowers a C type to its IR type, building (and caching) the IR
// struct type the first time a named struct is encountered. Unions have no
// IR-level representation (spec.md section 3 lists no union IR type), so
// they lower to an opaque byte array of the union's size; field access into
// a union reads/writes directly through the base pointer since every union
// member sits at offset 0.
func (g *Generator) irTypeOf(t ctypes.Type) ir.Type {
	switch ty := t.(type) {
	case ctypes.Tvoid:
		return ir.Tvoid{}
	case ctypes.Tint:
		return ir.Tint{Width: ty.Size.Bits()}
	case ctypes.Tpointer:
		return ir.Tpointer{}
	case ctypes.Tarray:
		count := ty.Size
		if count < 0 {
			count = 0
		}
		return ir.Tarray{Elem: g.irTypeOf(ty.Elem), Count: count}
	case ctypes.Tfunction:
		params := make([]ir.Type, len(ty.Params))
		for i, p := range ty.Params {
			params[i] = g.irTypeOf(p)
		}
		return ir.Tfunction{Params: params, Return: g.irTypeOf(ty.Return)}
	case ctypes.Tstruct:
		return g.irStructOf(ty)
	case ctypes.Tunion:
		return ir.Tarray{Elem: ir.Tint{Width: 8}, Count: ty.Size}
	}
	panic("irgen: unrecognized C type in irTypeOf")
}

func (g *Generator) irStructOf(st ctypes.Tstruct) *ir.Tstruct {
	if st.Name != "" {
		if cached, ok := g.structCache[st.Name]; ok {
			return cached
		}
	}
	irStruct := g.builder.AddStruct(st.Name, len(st.Fields))
	if st.Name != "" {
		g.structCache[st.Name] = irStruct
	}
	for i, f := range st.Fields {
		g.builder.SetField(irStruct, i, g.irTypeOf(f.Type))
	}
	g.builder.CompleteStruct(irStruct)
	return irStruct
}

func ptrElemType(ct ctypes.Type) (ctypes.Type, bool) {
	switch t := ct.(type) {
	case ctypes.Tpointer:
		return t.Elem, true
	case ctypes.Tarray:
		return t.Elem, true
	}
	return nil, false
}

func underlyingFunctionType(ct ctypes.Type) (ctypes.Tfunction, bool) {
	switch t := ct.(type) {
	case ctypes.Tfunction:
		return t, true
	case ctypes.Tpointer:
		if ft, ok := t.Elem.(ctypes.Tfunction); ok {
			return ft, true
		}
	}
	return ctypes.Tfunction{}, false
}
