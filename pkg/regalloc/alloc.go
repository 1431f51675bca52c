// Package regalloc assigns physical x86-64 registers to the virtual
// registers pkg/asmgen leaves behind, via linear scan over each function's
// body in instruction order.
package regalloc

import "github.com/nccback/nccback/pkg/asm"

// Allocate assigns a physical register to every virtual register in fn and
// rewrites every operand referencing one in place. It then inserts
// push/pop pairs around each call site to preserve any caller-save
// register still live across it.
func Allocate(fn *asm.Function) {
	buildIntervals(fn)
	assignRegisters(fn)
	rewriteOperands(fn)
	insertCallerSaveSpills(fn)
}

// buildIntervals walks the body once, extending each mentioned virtual
// register's [LiveStart, LiveEnd] instruction-index range. Pre-colored
// vregs get intervals too — their fixed physical register must stay out of
// the free pool for as long as they're live, exactly like any other vreg.
func buildIntervals(fn *asm.Function) {
	for i := range fn.VRegs {
		fn.VRegs[i].LiveStart = -1
		fn.VRegs[i].LiveEnd = -1
	}
	touch := func(r asm.Reg, pos int) {
		if !r.Virtual {
			return
		}
		info := &fn.VRegs[r.VReg]
		if info.LiveStart == -1 || pos < info.LiveStart {
			info.LiveStart = pos
		}
		if pos > info.LiveEnd {
			info.LiveEnd = pos
		}
	}
	for pos, instr := range fn.Body {
		defs, uses := classify(instr)
		for _, r := range defs {
			touch(r, pos)
		}
		for _, r := range uses {
			touch(r, pos)
		}
	}
}

// classify reports which registers an instruction defines and which it
// uses, by its opcode's operand convention (operand 0 is the read-modify-
// write destination for two-address opcodes, matching how pkg/asmgen
// emits them). ExtraUse/ExtraDef are always included.
func classify(i asm.Instr) (defs, uses []asm.Reg) {
	regOf := func(o asm.Operand) (asm.Reg, bool) {
		switch {
		case o.Kind == asm.OpReg:
			return o.Reg, true
		case o.Kind == asm.OpMem && o.Symbol == "":
			return o.Reg, true
		}
		return asm.Reg{}, false
	}
	use := func(o asm.Operand) {
		if r, ok := regOf(o); ok {
			uses = append(uses, r)
		}
	}
	def := func(o asm.Operand) {
		if r, ok := regOf(o); ok {
			defs = append(defs, r)
		}
	}
	switch i.Op {
	case asm.OpMOV, asm.OpMOVSX, asm.OpMOVZX:
		dst, src := i.Operands[0], i.Operands[1]
		if dst.Kind == asm.OpReg && !dst.Deref {
			def(dst)
		} else {
			use(dst)
		}
		use(src)
	case asm.OpADD, asm.OpSUB, asm.OpAND, asm.OpOR, asm.OpXOR, asm.OpADC, asm.OpSBB, asm.OpSHL, asm.OpSHR:
		use(i.Operands[0])
		def(i.Operands[0])
		if len(i.Operands) > 1 {
			use(i.Operands[1])
		}
	case asm.OpIMUL:
		if len(i.Operands) == 3 {
			def(i.Operands[0])
			use(i.Operands[1])
		} else {
			use(i.Operands[0])
			def(i.Operands[0])
			use(i.Operands[1])
		}
	case asm.OpNOT, asm.OpNEG:
		use(i.Operands[0])
		def(i.Operands[0])
	case asm.OpCMP, asm.OpTEST:
		use(i.Operands[0])
		use(i.Operands[1])
	case asm.OpSETcc:
		def(i.Operands[0])
	case asm.OpPUSH, asm.OpIDIV:
		use(i.Operands[0])
	case asm.OpPOP:
		def(i.Operands[0])
	case asm.OpCALL:
		if i.Operands[0].Kind == asm.OpReg {
			use(i.Operands[0])
		}
	}
	defs = append(defs, i.ExtraDef...)
	uses = append(uses, i.ExtraUse...)
	return defs, uses
}

type activeInterval struct {
	vreg int
	end  int
	phys asm.PhysReg
}

// assignRegisters runs linear scan proper: vregs in start order, a free-
// register bitset over asm.AllocOrder, and an active list kept ordered by
// live-end so expiry only ever drops from the front.
func assignRegisters(fn *asm.Function) {
	free := make(map[asm.PhysReg]bool, len(asm.AllocOrder))
	for _, r := range asm.AllocOrder {
		free[r] = true
	}
	var active []activeInterval

	order := make([]int, 0, len(fn.VRegs))
	for i := range fn.VRegs {
		if fn.VRegs[i].LiveStart >= 0 {
			order = append(order, i)
		}
	}
	sortByStart(order, fn.VRegs)

	expireBefore := func(start int) {
		sortByEnd(active)
		kept := active[:0]
		for _, e := range active {
			if e.end < start {
				free[e.phys] = true
			} else {
				kept = append(kept, e)
			}
		}
		active = kept
	}

	for _, idx := range order {
		info := &fn.VRegs[idx]
		expireBefore(info.LiveStart)
		if info.PreColored {
			delete(free, info.AssignedPhysical)
			active = append(active, activeInterval{idx, info.LiveEnd, info.AssignedPhysical})
			continue
		}
		chosen := asm.NoPhysReg
		for _, r := range asm.AllocOrder {
			if free[r] {
				chosen = r
				break
			}
		}
		if chosen == asm.NoPhysReg {
			panic("regalloc: ran out of general-purpose registers — spilling to the stack is out of scope for this tier")
		}
		delete(free, chosen)
		info.AssignedPhysical = chosen
		active = append(active, activeInterval{idx, info.LiveEnd, chosen})
	}
}

func sortByStart(order []int, vregs []asm.VRegInfo) {
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && vregs[order[j]].LiveStart < vregs[order[j-1]].LiveStart; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
}

func sortByEnd(active []activeInterval) {
	for i := 1; i < len(active); i++ {
		for j := i; j > 0 && active[j].end < active[j-1].end; j-- {
			active[j], active[j-1] = active[j-1], active[j]
		}
	}
}

// rewriteOperands replaces every virtual Reg (in operands and in
// ExtraUse/ExtraDef) with the physical register linear scan assigned it.
func rewriteOperands(fn *asm.Function) {
	phys := func(r asm.Reg) asm.Reg {
		if !r.Virtual {
			return r
		}
		return asm.PhysicalReg(fn.VRegs[r.VReg].AssignedPhysical, r.Width)
	}
	for i := range fn.Body {
		instr := &fn.Body[i]
		for j := range instr.Operands {
			o := &instr.Operands[j]
			if o.Kind == asm.OpReg || (o.Kind == asm.OpMem && o.Symbol == "") {
				o.Reg = phys(o.Reg)
			}
		}
		for j := range instr.ExtraUse {
			instr.ExtraUse[j] = phys(instr.ExtraUse[j])
		}
		for j := range instr.ExtraDef {
			instr.ExtraDef[j] = phys(instr.ExtraDef[j])
		}
	}
}

// insertCallerSaveSpills implements open question decision 2: rather than
// assert no caller-save register survives a call, push every caller-save
// physical register genuinely live across the call site (excluding the
// call's own argument/result registers) and pop them back immediately
// after, in reverse order. An odd number of pushes is padded with an extra
// 8-byte RSP adjustment so RSP stays 16-byte aligned at the CALL.
func insertCallerSaveSpills(fn *asm.Function) {
	out := make([]asm.Instr, 0, len(fn.Body))
	for pos, instr := range fn.Body {
		if instr.Op != asm.OpCALL {
			out = append(out, instr)
			continue
		}
		var toSave []asm.PhysReg
		seen := make(map[asm.PhysReg]bool)
		for _, info := range fn.VRegs {
			if info.LiveStart < pos && info.LiveEnd > pos && isCallerSaved(info.AssignedPhysical) &&
				!seen[info.AssignedPhysical] && !ownedByCall(instr, info.AssignedPhysical) {
				seen[info.AssignedPhysical] = true
				toSave = append(toSave, info.AssignedPhysical)
			}
		}
		rsp := asm.Register(asm.PhysicalReg(asm.RSP, 8))
		pad := len(toSave)%2 == 1
		if pad {
			out = append(out, asm.Emit2(asm.OpSUB, rsp, asm.Imm(8)))
		}
		for _, r := range toSave {
			out = append(out, asm.Emit1(asm.OpPUSH, asm.Register(asm.PhysicalReg(r, 8))))
		}
		out = append(out, instr)
		for i := len(toSave) - 1; i >= 0; i-- {
			out = append(out, asm.Emit1(asm.OpPOP, asm.Register(asm.PhysicalReg(toSave[i], 8))))
		}
		if pad {
			out = append(out, asm.Emit2(asm.OpADD, rsp, asm.Imm(8)))
		}
	}
	fn.Body = out
}

func ownedByCall(instr asm.Instr, r asm.PhysReg) bool {
	for _, u := range instr.ExtraUse {
		if !u.Virtual && u.Phys == r {
			return true
		}
	}
	for _, d := range instr.ExtraDef {
		if !d.Virtual && d.Phys == r {
			return true
		}
	}
	return false
}

func isCallerSaved(r asm.PhysReg) bool {
	for _, c := range asm.CallerSaved {
		if c == r {
			return true
		}
	}
	return false
}
