package irgen

import "github.com/nccback/nccback/pkg/ctypes"
import "github.com/nccback/nccback/pkg/ir"

// typeScope is one level of the type environment: struct tags, union tags,
// enum tags, and typedef names, per spec.md section 4.2's four-table
// design. Enum tags are tracked only for table-completeness (this dialect's
// AST has no enum declarator to populate it with).
type typeScope struct {
	parent   *typeScope
	structs  map[string]ctypes.Tstruct
	unions   map[string]ctypes.Tunion
	enums    map[string]bool
	typedefs map[string]ctypes.Type
}

func newTypeScope(parent *typeScope) *typeScope {
	return &typeScope{
		parent:   parent,
		structs:  make(map[string]ctypes.Tstruct),
		unions:   make(map[string]ctypes.Tunion),
		enums:    make(map[string]bool),
		typedefs: make(map[string]ctypes.Type),
	}
}

func (s *typeScope) lookupStruct(name string) (ctypes.Tstruct, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.structs[name]; ok {
			return v, true
		}
	}
	return ctypes.Tstruct{}, false
}

func (s *typeScope) lookupUnion(name string) (ctypes.Tunion, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.unions[name]; ok {
			return v, true
		}
	}
	return ctypes.Tunion{}, false
}

func (s *typeScope) lookupTypedef(name string) (ctypes.Type, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.typedefs[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// valueBinding is what a name resolves to in the value environment: either
// the address of its storage (locals, parameters, global variables) or a
// function global referenced directly (functions are never loaded through
// a LOCAL slot).
type valueBinding struct {
	ctype  ctypes.Type
	addr   ir.Value
	global *ir.Global
	isFunc bool
}

type valueScope struct {
	parent *valueScope
	vars   map[string]valueBinding
}

func newValueScope(parent *valueScope) *valueScope {
	return &valueScope{parent: parent, vars: make(map[string]valueBinding)}
}

func (s *valueScope) lookup(name string) (valueBinding, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if b, ok := sc.vars[name]; ok {
			return b, true
		}
	}
	return valueBinding{}, false
}
