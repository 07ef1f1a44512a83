package backend

import "fmt"

// Assembler accumulates Insns for one compilation unit. It is built up
// through the builder methods below, legalized by a per-ISA splitter into a
// fresh Assembler, register-allocated by AllocRegs into another fresh
// Assembler, and finally
// walked by a per-ISA emitter. Mirrors backend/ir.rs's Assembler.
type Assembler struct {
	Insns      []*Insn
	LiveRanges []int // LiveRanges[i] is the index of the last instruction that reads Insns[i]'s output
	LabelNames []string
}

// NewAssembler returns an empty Assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Len reports the number of instructions currently recorded.
func (a *Assembler) Len() int { return len(a.Insns) }

// Push appends a raw instruction. Exported for splitter passes (backend/amd64,
// backend/arm64) that re-push instructions under their original opcode after
// rewriting operands, for opcodes with no dedicated builder call of their own
// (e.g. passthrough of FrameSetup/Comment/PosMarker during legalization).
func (a *Assembler) Push(op Op, text string, opnds []Opnd, target Target, posMark PosMarkerFn) Opnd {
	return a.push(op, text, opnds, target, posMark)
}

// push appends insn, updates live ranges for every InsnOut/Mem-InsnOut operand
// it reads, and returns the Opnd referencing its own output (None if op
// produces nothing). This is the architecture-neutral core of every builder
// method below.
func (a *Assembler) push(op Op, text string, opnds []Opnd, target Target, posMark PosMarkerFn) Opnd {
	idx := len(a.Insns)

	for _, o := range opnds {
		a.noteRead(o, idx)
	}

	out := None
	if hasOutput(op) {
		out = Opnd{Kind: OpndInsnOut, InsnOutIdx: idx, InsnOutNumBits: matchNumBits(opnds)}
	}

	a.Insns = append(a.Insns, &Insn{Op: op, Text: text, Opnds: opnds, Out: out, Target: target, PosMark: posMark})
	a.LiveRanges = append(a.LiveRanges, idx)

	return out
}

// noteRead extends the live range of the instruction(s) producing o (if any)
// to cover idx, the instruction currently being read by.
func (a *Assembler) noteRead(o Opnd, idx int) {
	switch o.Kind {
	case OpndInsnOut:
		if o.InsnOutIdx >= len(a.LiveRanges) {
			panic("operand references an instruction not yet pushed")
		}
		if a.LiveRanges[o.InsnOutIdx] < idx {
			a.LiveRanges[o.InsnOutIdx] = idx
		}
	case OpndMem:
		if o.Mem.Base.IsInsnOut {
			a.noteRead(Opnd{Kind: OpndInsnOut, InsnOutIdx: o.Mem.Base.InsnOut}, idx)
		}
	}
}

// NewLabel allocates a fresh label and returns the Target referencing it.
func (a *Assembler) NewLabel(name string) Target {
	idx := len(a.LabelNames)
	a.LabelNames = append(a.LabelNames, name)
	return LabelTarget(idx)
}

// WriteLabel emits a Label pseudo-instruction marking the current position as
// target's definition site.
func (a *Assembler) WriteLabel(target Target) {
	if target.Kind != TargetLabel {
		panic("WriteLabel requires a label target")
	}
	a.push(OpLabel, "", nil, target, nil)
}

func out1(opnds ...Opnd) []Opnd { return opnds }

// --- Arithmetic / logic -----------------------------------------------------

func (a *Assembler) Add(left, right Opnd) Opnd  { return a.push(OpAdd, "", out1(left, right), Target{}, nil) }
func (a *Assembler) Sub(left, right Opnd) Opnd  { return a.push(OpSub, "", out1(left, right), Target{}, nil) }
func (a *Assembler) And(left, right Opnd) Opnd  { return a.push(OpAnd, "", out1(left, right), Target{}, nil) }
func (a *Assembler) Or(left, right Opnd) Opnd   { return a.push(OpOr, "", out1(left, right), Target{}, nil) }
func (a *Assembler) Xor(left, right Opnd) Opnd  { return a.push(OpXor, "", out1(left, right), Target{}, nil) }
func (a *Assembler) Not(opnd Opnd) Opnd         { return a.push(OpNot, "", out1(opnd), Target{}, nil) }
func (a *Assembler) LShift(opnd, shift Opnd) Opnd  { return a.push(OpLShift, "", out1(opnd, shift), Target{}, nil) }
func (a *Assembler) RShift(opnd, shift Opnd) Opnd  { return a.push(OpRShift, "", out1(opnd, shift), Target{}, nil) }
func (a *Assembler) URShift(opnd, shift Opnd) Opnd { return a.push(OpURShift, "", out1(opnd, shift), Target{}, nil) }

// --- Loads / stores ----------------------------------------------------------

// Load reads from a Mem operand into a fresh output.
func (a *Assembler) Load(opnd Opnd) Opnd { return a.push(OpLoad, "", out1(opnd), Target{}, nil) }

// LoadInto reads from src into an already-existing destination operand
// (typically a specific physical register reserved by the frontend) instead
// of allocating a fresh output. Restored per SPEC_FULL.md; the instruction
// itself carries no output of its own -- dest is recorded as its first
// operand (src second) so the splitter/allocator can see it is both read and written.
func (a *Assembler) LoadInto(dest, src Opnd) {
	a.push(OpLoadInto, "", out1(dest, src), Target{}, nil)
}

// LoadSExt loads and sign-extends to 64 bits.
func (a *Assembler) LoadSExt(opnd Opnd) Opnd { return a.push(OpLoadSExt, "", out1(opnd), Target{}, nil) }

// Store writes src into the Mem operand dest.
func (a *Assembler) Store(dest, src Opnd) { a.push(OpStore, "", out1(dest, src), Target{}, nil) }

func (a *Assembler) Lea(opnd Opnd) Opnd { return a.push(OpLea, "", out1(opnd), Target{}, nil) }

// LeaLabel materializes the address of target into a fresh output.
func (a *Assembler) LeaLabel(target Target) Opnd {
	return a.push(OpLeaLabel, "", nil, target, nil)
}

func (a *Assembler) Mov(dest, src Opnd) { a.push(OpMov, "", out1(dest, src), Target{}, nil) }

// --- Comparisons / branches --------------------------------------------------

func (a *Assembler) Cmp(left, right Opnd)  { a.push(OpCmp, "", out1(left, right), Target{}, nil) }
func (a *Assembler) Test(left, right Opnd) { a.push(OpTest, "", out1(left, right), Target{}, nil) }

func (a *Assembler) Jmp(target Target)    { a.push(OpJmp, "", nil, target, nil) }
func (a *Assembler) JmpOpnd(opnd Opnd)    { a.push(OpJmpOpnd, "", out1(opnd), Target{}, nil) }
func (a *Assembler) Jl(target Target)     { a.push(OpJl, "", nil, target, nil) }
func (a *Assembler) Jbe(target Target)    { a.push(OpJbe, "", nil, target, nil) }
func (a *Assembler) Je(target Target)     { a.push(OpJe, "", nil, target, nil) }
func (a *Assembler) Jne(target Target)    { a.push(OpJne, "", nil, target, nil) }
func (a *Assembler) Jz(target Target)     { a.push(OpJz, "", nil, target, nil) }
func (a *Assembler) Jnz(target Target)    { a.push(OpJnz, "", nil, target, nil) }
func (a *Assembler) Jo(target Target)     { a.push(OpJo, "", nil, target, nil) }

// --- Conditional select -------------------------------------------------------

func (a *Assembler) CSelZ(t, f Opnd) Opnd  { return a.push(OpCSelZ, "", out1(t, f), Target{}, nil) }
func (a *Assembler) CSelNZ(t, f Opnd) Opnd { return a.push(OpCSelNZ, "", out1(t, f), Target{}, nil) }
func (a *Assembler) CSelE(t, f Opnd) Opnd  { return a.push(OpCSelE, "", out1(t, f), Target{}, nil) }
func (a *Assembler) CSelNE(t, f Opnd) Opnd { return a.push(OpCSelNE, "", out1(t, f), Target{}, nil) }
func (a *Assembler) CSelL(t, f Opnd) Opnd  { return a.push(OpCSelL, "", out1(t, f), Target{}, nil) }
func (a *Assembler) CSelLE(t, f Opnd) Opnd { return a.push(OpCSelLE, "", out1(t, f), Target{}, nil) }
func (a *Assembler) CSelG(t, f Opnd) Opnd  { return a.push(OpCSelG, "", out1(t, f), Target{}, nil) }
func (a *Assembler) CSelGE(t, f Opnd) Opnd { return a.push(OpCSelGE, "", out1(t, f), Target{}, nil) }

// --- Calls / frame -------------------------------------------------------------

// CCall calls fnPtr (an Imm/UImm/ConstPtr operand) with args carried as the
// instruction's remaining operands; the per-ISA splitter lowers each arg to a
// LoadInto of the matching ABI argument register and leaves a CCall with
// only fnPtr. AllocRegs returns an error if any pool register is still live
// at a CCall (spec.md §4.6) -- the frontend is responsible for having moved
// everything live across the call out of caller-saved registers beforehand.
func (a *Assembler) CCall(fnPtr Opnd, args ...Opnd) Opnd {
	opnds := append([]Opnd{fnPtr}, args...)
	return a.push(OpCCall, "", opnds, Target{}, nil)
}

func (a *Assembler) CRet(opnd Opnd) { a.push(OpCRet, "", out1(opnd), Target{}, nil) }

func (a *Assembler) CPush(opnd Opnd)  { a.push(OpCPush, "", out1(opnd), Target{}, nil) }
func (a *Assembler) CPushAll()        { a.push(OpCPushAll, "", nil, Target{}, nil) }
func (a *Assembler) CPop() Opnd       { return a.push(OpCPop, "", nil, Target{}, nil) }
func (a *Assembler) CPopAll()         { a.push(OpCPopAll, "", nil, Target{}, nil) }
func (a *Assembler) CPopInto(dest Opnd) { a.push(OpCPopInto, "", out1(dest), Target{}, nil) }

func (a *Assembler) FrameSetup()    { a.push(OpFrameSetup, "", nil, Target{}, nil) }
func (a *Assembler) FrameTeardown() { a.push(OpFrameTeardown, "", nil, Target{}, nil) }

// --- Misc ------------------------------------------------------------------

func (a *Assembler) IncrCounter(dest, amount Opnd) {
	a.push(OpIncrCounter, "", out1(dest, amount), Target{}, nil)
}
func (a *Assembler) Breakpoint() { a.push(OpBreakpoint, "", nil, Target{}, nil) }

// LiveReg marks a specific physical register as live-in at this point (e.g.
// the incoming interpreter state registers), forcing the allocator to treat
// it as already taken rather than free for reuse. Returns an InsnOut operand
// the allocator resolves directly to reg without going through the pool.
func (a *Assembler) LiveReg(reg Reg) Opnd {
	return a.push(OpLiveReg, "", out1(RegOpnd(reg)), Target{}, nil)
}

// BakeString records s in the instruction's Text and returns an output
// operand. The amd64 and arm64 emitters write no bytes for it, so s is not
// embedded in the generated code.
func (a *Assembler) BakeString(s string) Opnd { return a.push(OpBakeString, s, nil, Target{}, nil) }

func (a *Assembler) Comment(text string) { a.push(OpComment, text, nil, Target{}, nil) }

// PosMarker attaches fn to a PosMarker instruction. The amd64 and arm64
// emitters emit nothing for it and do not invoke fn.
func (a *Assembler) PosMarker(fn PosMarkerFn) { a.push(OpPosMarker, "", nil, Target{}, fn) }

func (a *Assembler) String() string {
	s := ""
	for i, insn := range a.Insns {
		s += fmt.Sprintf("%4d: %s\n", i, insn)
	}
	return s
}
