package ir

// TransUnit is the unit of work: one C source file after preprocessing. It
// owns the pool allocator for every IR node it contains, an ordered list of
// globals (functions and variables, in declaration order), and an ordered
// list of named struct types.
type TransUnit struct {
	Pool    Pool
	Globals []*Global
	Structs []*Tstruct

	nextGlobalID int
}

// NewTransUnit creates an empty translation unit.
func NewTransUnit() *TransUnit {
	return &TransUnit{}
}

// FindGlobal looks up a global by name, in declaration order. Returns nil
// if not found.
func (tu *TransUnit) FindGlobal(name string) *Global {
	for _, g := range tu.Globals {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// FindStruct looks up a named struct type. Returns nil if not found.
func (tu *TransUnit) FindStruct(name string) *Tstruct {
	for _, s := range tu.Structs {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func (tu *TransUnit) allocGlobalID() int {
	id := tu.nextGlobalID
	tu.nextGlobalID++
	return id
}
