package ir

import (
	"fmt"
	"io"
)

// Printer renders a TransUnit as deterministic text, in the style of
// ir.c's dump_trans_unit: struct definitions, then each global with its
// type and (if defined) initializer, functions rendered as a block list.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// DumpTransUnit writes tu's textual form to w.
func DumpTransUnit(w io.Writer, tu *TransUnit) {
	NewPrinter(w).PrintTransUnit(tu)
}

func (p *Printer) PrintTransUnit(tu *TransUnit) {
	for _, s := range tu.Structs {
		fmt.Fprintf(p.w, "struct $%s\n{\n", s.Name)
		for _, f := range s.Fields {
			fmt.Fprint(p.w, "\t")
			p.printType(f.Type)
			fmt.Fprint(p.w, "\n")
		}
		fmt.Fprintln(p.w, "}")
	}
	fmt.Fprintln(p.w)

	for i, g := range tu.Globals {
		fmt.Fprintf(p.w, "%s ", g.Name)
		p.printType(g.Typ)

		if g.Function != nil && g.Defined {
			fmt.Fprint(p.w, " = ")
			p.printFunctionBody(g.Function)
		} else if g.Init != nil {
			fmt.Fprint(p.w, " = ")
			p.printConst(*g.Init)
		}

		fmt.Fprintln(p.w)
		if i != len(tu.Globals)-1 {
			fmt.Fprintln(p.w)
		}
	}
}

func (p *Printer) printType(t Type) {
	switch ty := t.(type) {
	case Tvoid:
		fmt.Fprint(p.w, "void")
	case Tint:
		fmt.Fprintf(p.w, "i%d", ty.Width)
	case Tpointer:
		fmt.Fprint(p.w, "*")
	case Tfunction:
		fmt.Fprint(p.w, "(")
		for i, param := range ty.Params {
			p.printType(param)
			if i != len(ty.Params)-1 {
				fmt.Fprint(p.w, ", ")
			}
		}
		fmt.Fprint(p.w, ") -> ")
		p.printType(ty.Return)
	case *Tstruct:
		fmt.Fprintf(p.w, "$%s", ty.Name)
	case Tarray:
		fmt.Fprintf(p.w, "[%d x ", ty.Count)
		p.printType(ty.Elem)
		fmt.Fprint(p.w, "]")
	}
}

func (p *Printer) printValue(v Value) {
	switch val := v.(type) {
	case ConstValue:
		fmt.Fprintf(p.w, "%d", val.Payload)
	case ArgValue:
		fmt.Fprintf(p.w, "@%d", val.Index)
	case InstrValue:
		fmt.Fprintf(p.w, "#%d", val.Instr.ID)
	case GlobalValue:
		fmt.Fprintf(p.w, "$%s", val.Global.Name)
	}
}

func (p *Printer) printConst(c ConstValue) {
	if c.Elems != nil {
		open, shut := "[", "]"
		if _, ok := c.Typ.(*Tstruct); ok {
			open, shut = "{", "}"
		}
		fmt.Fprint(p.w, open)
		for i, e := range c.Elems {
			p.printConst(e)
			if i != len(c.Elems)-1 {
				fmt.Fprint(p.w, ", ")
			}
		}
		fmt.Fprint(p.w, shut)
		return
	}
	if _, ok := c.Typ.(Tpointer); ok {
		fmt.Fprintf(p.w, "%d", c.Payload)
		return
	}
	fmt.Fprintf(p.w, "%d", c.Payload)
}

func (p *Printer) printFunctionBody(fn *Function) {
	fmt.Fprintln(p.w, "{")
	for _, block := range fn.Blocks {
		fmt.Fprintf(p.w, "%s:\n", block.Name)
		for _, instr := range block.Instrs {
			fmt.Fprint(p.w, "\t")
			if _, isVoid := instr.Typ.(Tvoid); !isVoid {
				fmt.Fprintf(p.w, "#%d = ", instr.ID)
			}
			p.printInstr(instr)
		}
	}
	fmt.Fprint(p.w, "}")
}

func (p *Printer) printInstr(instr *Instr) {
	fmt.Fprintf(p.w, "%s(", lowerOpcodeName(instr.Opcode()))

	switch op := instr.Op.(type) {
	case LocalOp:
		p.printType(op.SlotType)
	case FieldOp:
		p.printValue(op.StructPtr)
		fmt.Fprint(p.w, ", ")
		p.printType(op.StructType)
		fmt.Fprintf(p.w, ", %d", op.FieldIndex)
	case LoadOp:
		p.printType(op.AccessType)
		fmt.Fprint(p.w, ", ")
		p.printValue(op.Pointer)
	case StoreOp:
		p.printValue(op.Pointer)
		fmt.Fprint(p.w, ", ")
		p.printValue(op.StoreValue)
		fmt.Fprint(p.w, ", ")
		p.printType(op.AccessType)
	case CastOp:
		p.printValue(op.Operand)
		fmt.Fprint(p.w, ", ")
		p.printType(instr.Typ)
	case ZextOp:
		p.printValue(op.Operand)
		fmt.Fprint(p.w, ", ")
		p.printType(instr.Typ)
	case SextOp:
		p.printValue(op.Operand)
		fmt.Fprint(p.w, ", ")
		p.printType(instr.Typ)
	case BranchOp:
		fmt.Fprint(p.w, op.Target.Name)
	case CondOp:
		p.printValue(op.Cond)
		fmt.Fprintf(p.w, ", %s, %s", op.Then.Name, op.Else.Name)
	case RetVoidOp:
		// no operands
	case RetOp:
		p.printValue(op.Value)
	case CallOp:
		p.printValue(op.Callee)
		for _, arg := range op.Args {
			fmt.Fprint(p.w, ", ")
			p.printValue(arg)
		}
	case UnOp:
		p.printValue(op.Operand)
	case BinOp:
		p.printValue(op.LHS)
		fmt.Fprint(p.w, ", ")
		p.printValue(op.RHS)
	}

	fmt.Fprintln(p.w, ")")
}

// lowerOpcodeName renders an opcode the way ir.c's dump_instr does: its
// enumerator name lowercased, with the leading "OP_" stripped.
func lowerOpcodeName(op Opcode) string {
	names := map[Opcode]string{
		OpLocal: "local", OpField: "field", OpLoad: "load", OpStore: "store",
		OpCast: "cast", OpZext: "zext", OpSext: "sext", OpBranch: "branch",
		OpCond: "cond", OpRet: "ret", OpRetVoid: "ret_void", OpCall: "call",
		OpBitXor: "bit_xor", OpBitAnd: "bit_and", OpBitOr: "bit_or",
		OpBitNot: "bit_not", OpLogNot: "log_not", OpMul: "mul", OpDiv: "div",
		OpAdd: "add", OpSub: "sub", OpEq: "eq", OpNeq: "neq", OpGt: "gt",
		OpGte: "gte", OpLt: "lt", OpLte: "lte",
	}
	if n, ok := names[op]; ok {
		return n
	}
	return "?"
}
