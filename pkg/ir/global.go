package ir

// Linkage controls a global's visibility to other translation units.
type Linkage int

const (
	LinkageGlobal Linkage = iota
	LinkageLocal
)

func (l Linkage) String() string {
	if l == LinkageLocal {
		return "local"
	}
	return "global"
}

// Global is a named entity at translation-unit scope: a function or a
// variable. Defined functions carry a *Function body; defined variables
// carry a ConstValue initializer (scalar or, for arrays/structs, a nested
// aggregate — see ConstValue.Elems). Declarations (extern, or a function
// prototype with no body) leave Init nil.
type Global struct {
	Name      string
	Typ       Type
	ID        int
	Defined   bool
	Link      Linkage
	Function  *Function
	Init      *ConstValue

	// Symbol is an opaque slot for a later pass's per-global data, typed as
	// interface{} rather than a concrete asm/encoder type so that ir does
	// not import the packages that consume it. No pass in this module sets
	// it: the encoder resolves addresses through its own name-keyed table
	// (encoder.Image.Symbols).
	Symbol interface{}
}

// IsFunction reports whether this global is a function (by its IR type).
func (g *Global) IsFunction() bool {
	_, ok := g.Typ.(Tfunction)
	return ok
}
