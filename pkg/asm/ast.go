// Package asm defines the x86-64 assembly representation: the abstract
// instruction form instruction selection emits into, and that the register
// allocator and encoder consume in turn. This mirrors the source's asm.h.
package asm

// PhysReg is one of the 16 general-purpose x86-64 registers.
type PhysReg int

const (
	RAX PhysReg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	NoPhysReg PhysReg = -1
)

func (r PhysReg) String() string {
	names := []string{"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
		"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15"}
	if int(r) >= 0 && int(r) < len(names) {
		return names[r]
	}
	return "?"
}

// CallerSaved lists the System V caller-save (volatile) general-purpose
// registers. Spills around a call site follow the virtual-register table's
// order, not this list's.
var CallerSaved = []PhysReg{RAX, RCX, RDX, RSI, RDI, R8, R9, R10, R11}

// CalleeSaved lists the System V callee-save registers that must be
// preserved by the function's prologue/epilogue if used.
var CalleeSaved = []PhysReg{RBX, R12, R13, R14, R15}

// ArgRegs is the System V integer/pointer argument-passing order.
var ArgRegs = []PhysReg{RDI, RSI, RDX, RCX, R8, R9}

// AllocOrder is the order the linear-scan allocator tries free physical
// registers in: caller-save first (cheapest to hand out), then callee-save,
// then RAX last (it is also the fixed call-result and RET register, so
// handing it out late reduces extra moves).
var AllocOrder = []PhysReg{RCX, RDX, RSI, RDI, R8, R9, R10, R11, RBX, R12, R13, R14, R15, RAX}

// CondCode is an x86-64 condition code, used by Jcc and SETcc.
type CondCode int

const (
	CondE CondCode = iota
	CondNE
	CondL
	CondLE
	CondG
	CondGE
)

func (c CondCode) String() string {
	names := []string{"e", "ne", "l", "le", "g", "ge"}
	if int(c) >= 0 && int(c) < len(names) {
		return names[c]
	}
	return "?"
}

// Label names a branch target within a function's instruction stream.
type Label string

// OperandKind discriminates the shape an Operand carries.
type OperandKind int

const (
	OpReg OperandKind = iota
	OpMem
	OpImm
	OpSym
	OpLabelRef
)

// Reg is a register operand, virtual before allocation or physical after.
// Width is in bytes (1, 2, 4, or 8).
type Reg struct {
	Virtual bool
	VReg    int
	Phys    PhysReg
	Width   int
}

func VirtualReg(n, width int) Reg { return Reg{Virtual: true, VReg: n, Width: width} }
func PhysicalReg(r PhysReg, width int) Reg {
	return Reg{Virtual: false, Phys: r, Width: width}
}

// Operand is one of: register (possibly dereferenced to form [reg]),
// memory (physical base register + constant offset, or a global symbol),
// immediate constant, symbol reference, or label reference. Deref
// distinguishes a bare register operand from the memory it addresses.
type Operand struct {
	Kind OperandKind

	Reg Reg // OpReg, OpMem (base register form)

	Offset int64 // OpMem: constant byte offset from Reg/Symbol

	Symbol string // OpMem (global symbol form), OpSym
	Global bool   // OpSym, OpMem (symbol form): true if Symbol has global linkage

	Imm uint64 // OpImm

	Label Label // OpLabelRef

	Deref bool // true: operand denotes the memory it addresses

	// Width is the access size in bytes for an OpMem/OpImm operand, where
	// it cannot otherwise be read off a Reg. Register operands carry their
	// own width on Reg.Width.
	Width int
}

func Register(r Reg) Operand { return Operand{Kind: OpReg, Reg: r} }
func Deref(r Reg) Operand    { return Operand{Kind: OpReg, Reg: r, Deref: true} }
func OffsetReg(r Reg, ofs int64) Operand {
	return Operand{Kind: OpMem, Reg: r, Offset: ofs, Deref: true, Width: r.Width}
}
func OffsetRegWidth(r Reg, ofs int64, width int) Operand {
	return Operand{Kind: OpMem, Reg: r, Offset: ofs, Deref: true, Width: width}
}
func SymbolMem(name string, global bool, width int) Operand {
	return Operand{Kind: OpMem, Symbol: name, Global: global, Deref: true, Width: width}
}
func Imm(v uint64) Operand { return Operand{Kind: OpImm, Imm: v, Width: 4} }
func ImmWidth(v uint64, width int) Operand {
	return Operand{Kind: OpImm, Imm: v, Width: width}
}
func Sym(name string, global bool) Operand {
	return Operand{Kind: OpSym, Symbol: name, Global: global}
}
func LabelOperand(l Label) Operand { return Operand{Kind: OpLabelRef, Label: l} }

// Opcode is the x86-64 mnemonic an Instr carries.
type Opcode int

const (
	OpMOV Opcode = iota
	OpMOVSX
	OpMOVZX
	OpRET
	OpCALL
	OpXOR
	OpAND
	OpOR
	OpNOT
	OpNEG
	OpSHL
	OpSHR
	OpADD
	OpSUB
	OpPUSH
	OpPOP
	OpIMUL
	OpIDIV
	OpCDQ
	OpCMP
	OpSETcc
	OpTEST
	OpJMP
	OpJcc
	OpADC
	OpSBB
)

var opcodeNames = map[Opcode]string{
	OpMOV: "mov", OpMOVSX: "movsx", OpMOVZX: "movzx", OpRET: "ret", OpCALL: "call",
	OpXOR: "xor", OpAND: "and", OpOR: "or", OpNOT: "not", OpNEG: "neg",
	OpSHL: "shl", OpSHR: "shr", OpADD: "add", OpSUB: "sub",
	OpPUSH: "push", OpPOP: "pop", OpIMUL: "imul", OpIDIV: "idiv", OpCDQ: "cdq",
	OpCMP: "cmp", OpSETcc: "set", OpTEST: "test", OpJMP: "jmp", OpJcc: "j",
	OpADC: "adc", OpSBB: "sbb",
}

func (op Opcode) String() string {
	if n, ok := opcodeNames[op]; ok {
		return n
	}
	return "?"
}

// Instr is a single assembly instruction: an opcode, up to three operands,
// an optional label marking this instruction as a branch target, a
// condition code for Jcc/SETcc, and any extra virtual-register dependencies
// implied by the opcode but not spelled out as operands (e.g. IDIV reads
// and writes RDX:RAX).
type Instr struct {
	Op       Opcode
	Operands []Operand
	Label    Label
	Cond     CondCode
	ExtraUse []Reg
	ExtraDef []Reg
}

func Emit0(op Opcode) Instr { return Instr{Op: op} }
func Emit1(op Opcode, a Operand) Instr {
	return Instr{Op: op, Operands: []Operand{a}}
}
func Emit2(op Opcode, a, b Operand) Instr {
	return Instr{Op: op, Operands: []Operand{a, b}}
}
func Emit3(op Opcode, a, b, c Operand) Instr {
	return Instr{Op: op, Operands: []Operand{a, b, c}}
}

// WithLabel attaches a label to the first instruction of a block.
func (i Instr) WithLabel(l Label) Instr {
	i.Label = l
	return i
}

// VRegInfo is an entry in a function's append-only virtual-register table.
// Pre-colored entries start with AssignedPhysical already set and the
// allocator leaves them untouched; everything else is assigned during
// linear scan and LiveStart/LiveEnd are populated by interval construction.
type VRegInfo struct {
	Width             int
	PreColored        bool
	AssignedPhysical  PhysReg
	LiveStart, LiveEnd int
}

// Function is one assembly function: three instruction blocks in emission
// order (prologue, body, epilogue), a virtual-register table, and the
// amount of stack space its locals need. RetLabel is attached to the first
// epilogue instruction; every body RET becomes a JMP to it so the epilogue
// is emitted exactly once.
type Function struct {
	Name             string
	Prologue         []Instr
	Body             []Instr
	Epilogue         []Instr
	RetLabel         Label
	VRegs            []VRegInfo
	LocalStackUsage  int64
}

func NewFunction(name string) *Function {
	return &Function{Name: name, RetLabel: Label(name + ".ret")}
}

// NewVReg allocates a fresh (non-pre-colored) virtual register of the given
// width and returns its Reg operand form.
func (f *Function) NewVReg(width int) Reg {
	idx := len(f.VRegs)
	f.VRegs = append(f.VRegs, VRegInfo{Width: width})
	return VirtualReg(idx, width)
}

// NewPreColoredVReg allocates a virtual register already bound to a
// physical register — used for call arguments, the call result, and the
// registers IDIV implicitly reads/writes.
func (f *Function) NewPreColoredVReg(width int, phys PhysReg) Reg {
	idx := len(f.VRegs)
	f.VRegs = append(f.VRegs, VRegInfo{Width: width, PreColored: true, AssignedPhysical: phys})
	return VirtualReg(idx, width)
}

// AllInstrs returns the full linear instruction stream (prologue, body,
// epilogue) for passes — e.g. the allocator's interval construction — that
// operate over the whole function uniformly.
func (f *Function) AllInstrs() []Instr {
	all := make([]Instr, 0, len(f.Prologue)+len(f.Body)+len(f.Epilogue))
	all = append(all, f.Prologue...)
	all = append(all, f.Body...)
	all = append(all, f.Epilogue...)
	return all
}

// GlobVar is an initialized or zero-initialized global variable.
type GlobVar struct {
	Name  string
	Size  int64
	Init  []byte
	Align int
}

// Program is a complete assembly module: globals and functions in
// declaration order, ready for instruction selection output or, after
// allocation, for the encoder.
type Program struct {
	Globals   []GlobVar
	Functions []*Function
}
