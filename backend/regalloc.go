package backend

import "fmt"

// reusableLeftOps is the set of opcodes where, if their first operand is an
// InsnOut whose live range ends at this instruction, the allocator may
// assign the same physical register as the output instead of taking a fresh
// one from the pool -- the "destructive left operand" heuristic of
// backend/ir.rs's alloc_regs (these are all two-operand forms where the
// underlying machine instruction naturally overwrites its left/first operand).
var reusableLeftOps = map[Op]bool{
	OpAdd: true, OpSub: true, OpAnd: true, OpOr: true, OpXor: true, OpNot: true,
	OpLShift: true, OpRShift: true, OpURShift: true,
	OpCSelZ: true, OpCSelNZ: true, OpCSelE: true, OpCSelNE: true,
	OpCSelL: true, OpCSelLE: true, OpCSelG: true, OpCSelGE: true,
}

func subReg(r Reg, numBits uint8) Reg { return Reg{RegNo: r.RegNo, NumBits: numBits} }

// pool is the fixed-size bitmap of allocatable registers used by AllocRegs.
// Mirrors alloc_regs's u32 bitmap pool in backend/ir.rs; capped at 32
// registers, comfortably above either ISA's allocatable set.
type pool struct {
	regs  []Reg
	taken uint32
	owner [32]int // owner[slot] = index of the Insn currently holding slot, or -1
}

func newPool(regs []Reg) *pool {
	if len(regs) > 32 {
		panic("register pool too large")
	}
	p := &pool{regs: regs}
	for i := range p.owner {
		p.owner[i] = -1
	}
	return p
}

func (p *pool) isEmpty() bool { return p.taken == 0 }

// free releases every slot owned by an instruction whose live range ended
// strictly before idx.
func (p *pool) free(liveRanges []int, idx int) {
	for slot := 0; slot < len(p.regs); slot++ {
		if p.taken&(1<<uint(slot)) == 0 {
			continue
		}
		if liveRanges[p.owner[slot]] < idx {
			p.taken &^= 1 << uint(slot)
			p.owner[slot] = -1
		}
	}
}

// alloc takes the lowest-numbered free slot for insn idx, at the given width.
func (p *pool) alloc(idx int, numBits uint8) (Reg, error) {
	for slot := 0; slot < len(p.regs); slot++ {
		if p.taken&(1<<uint(slot)) != 0 {
			continue
		}
		p.taken |= 1 << uint(slot)
		p.owner[slot] = idx
		return subReg(p.regs[slot], numBits), nil
	}
	return Reg{}, fmt.Errorf("backend: out of registers allocating instruction %d", idx)
}

// take reserves the specific physical register reg (by register number) for
// insn idx, as required by LiveReg. Returns an error if that register is
// already taken by another still-live instruction.
func (p *pool) take(idx int, reg Reg) error {
	for slot := 0; slot < len(p.regs); slot++ {
		if p.regs[slot].RegNo != reg.RegNo {
			continue
		}
		if p.taken&(1<<uint(slot)) != 0 {
			return fmt.Errorf("backend: register %v already live, cannot satisfy live_reg at instruction %d", reg, idx)
		}
		p.taken |= 1 << uint(slot)
		p.owner[slot] = idx
		return nil
	}
	// reg is outside the allocatable pool (e.g. a reserved platform register
	// like the C return register) -- nothing to reserve, the caller already
	// has exclusive use of it by convention.
	return nil
}

// AllocRegs performs architecture-neutral linear-scan register allocation
// over asm, using poolRegs as the ordered set of allocatable physical
// registers and cRetReg as the platform's C-call return register (used to
// assign CCall's output without consuming a pool slot). It returns a fresh
// Assembler with every InsnOut operand rewritten to a concrete Reg and no
// spilling -- if the pool is exhausted, or a CCall is reached with live
// values still occupying the pool, it returns an error (spec.md §4.6, §7).
func AllocRegs(asm *Assembler, poolRegs []Reg, cRetReg Reg) (*Assembler, error) {
	n := len(asm.Insns)
	assigned := make([]Opnd, n) // assigned[i] is the resolved operand standing in for Insns[i]'s former InsnOut
	p := newPool(poolRegs)

	dest := &Assembler{
		Insns:      make([]*Insn, 0, n),
		LiveRanges: append([]int(nil), asm.LiveRanges...),
		LabelNames: asm.LabelNames,
	}

	resolve := func(o Opnd) Opnd {
		switch o.Kind {
		case OpndInsnOut:
			r := assigned[o.InsnOutIdx]
			if r.Kind != OpndReg {
				panic(fmt.Sprintf("backend: instruction %d output was never assigned a register", o.InsnOutIdx))
			}
			return RegOpnd(subReg(r.Reg, o.InsnOutNumBits))
		case OpndMem:
			if o.Mem.Base.IsInsnOut {
				r := assigned[o.Mem.Base.InsnOut]
				if r.Kind != OpndReg {
					panic(fmt.Sprintf("backend: instruction %d output was never assigned a register", o.Mem.Base.InsnOut))
				}
				o.Mem.Base = baseReg(r.Reg.RegNo)
			}
			return o
		default:
			return o
		}
	}

	for idx, insn := range asm.Insns {
		p.free(asm.LiveRanges, idx)

		rewrittenOpnds := make([]Opnd, len(insn.Opnds))
		for i, o := range insn.Opnds {
			rewrittenOpnds[i] = resolve(o)
		}

		var out Opnd
		switch {
		case !hasOutput(insn.Op):
			out = None

		case insn.Op == OpCCall:
			if !p.isEmpty() {
				return nil, fmt.Errorf("backend: live registers still held across ccall at instruction %d", idx)
			}
			out = RegOpnd(subReg(cRetReg, insn.Out.InsnOutNumBits))

		case insn.Op == OpLiveReg:
			reg := rewrittenOpnds[0].UnwrapReg()
			if err := p.take(idx, reg); err != nil {
				return nil, err
			}
			out = RegOpnd(reg)

		case reusableLeftOps[insn.Op] && len(insn.Opnds) > 0 && insn.Opnds[0].Kind == OpndInsnOut &&
			asm.LiveRanges[insn.Opnds[0].InsnOutIdx] == idx:
			// Last use of the left operand at this instruction: reuse its
			// register as the output instead of taking a fresh one.
			leftReg := rewrittenOpnds[0].UnwrapReg()
			out = RegOpnd(subReg(leftReg, insn.Out.InsnOutNumBits))
			// The slot now holds this instruction's output.
			for slot := range p.regs {
				if p.taken&(1<<uint(slot)) != 0 && p.owner[slot] == insn.Opnds[0].InsnOutIdx {
					p.owner[slot] = idx
				}
			}

		default:
			reg, err := p.alloc(idx, insn.Out.InsnOutNumBits)
			if err != nil {
				return nil, err
			}
			out = RegOpnd(reg)
		}

		assigned[idx] = out
		dest.Insns = append(dest.Insns, &Insn{
			Op: insn.Op, Text: insn.Text, Opnds: rewrittenOpnds, Out: out,
			Target: insn.Target, PosMark: insn.PosMark,
		})
	}

	// Release the values whose live range ends at the last instruction.
	p.free(asm.LiveRanges, n)
	if !p.isEmpty() {
		panic("backend: register pool leaked registers past the end of the instruction stream")
	}

	return dest, nil
}
