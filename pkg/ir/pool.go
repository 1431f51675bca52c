package ir

// poolSlabSize is the number of nodes preallocated per slab. Chosen so a
// typical function's blocks and instructions fit in one or two slabs.
const poolSlabSize = 256

// slab is a fixed-capacity array of T. Because its backing array never
// grows, a pointer into slab.data remains valid for the arena's entire
// lifetime — unlike a plain growing slice, whose backing array can be
// reallocated on append.
type slab[T any] struct {
	data [poolSlabSize]T
	used int
}

// arena is a typed, append-only allocator: one slab list per node type,
// released all at once when the owning Pool is dropped. No node is ever
// freed individually (spec.md section 4.1's memory discipline).
type arena[T any] struct {
	slabs []*slab[T]
}

func (a *arena[T]) alloc() *T {
	if len(a.slabs) == 0 || a.slabs[len(a.slabs)-1].used == poolSlabSize {
		a.slabs = append(a.slabs, &slab[T]{})
	}
	s := a.slabs[len(a.slabs)-1]
	p := &s.data[s.used]
	s.used++
	return p
}

// Pool is the translation-unit-scoped arena allocator for IR nodes:
// instructions, blocks, and struct types (functions are allocated directly). A TransUnit owns exactly one
// Pool; tearing down the TransUnit drops the Pool and everything in it.
type Pool struct {
	instrs  arena[Instr]
	blocks  arena[Block]
	structs arena[Tstruct]
}

// NewInstr allocates a zero-valued instruction from the pool.
func (p *Pool) NewInstr() *Instr { return p.instrs.alloc() }

// NewBlock allocates a zero-valued block from the pool.
func (p *Pool) NewBlock() *Block { return p.blocks.alloc() }

// NewStructType allocates a zero-valued struct type from the pool.
func (p *Pool) NewStructType() *Tstruct { return p.structs.alloc() }
