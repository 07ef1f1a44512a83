// Package arm64 implements the AArch64 low-level encoder (spec.md §6.1) on top of
// github.com/twitchyliquid64/golang-asm, following the same golang-asm
// wrapping pattern as asm/amd64 and the label-patch pattern demonstrated by
// other_examples' North-C-sonic ARM64 JIT assembler (obj.Prog branch
// targets resolved via To.SetTarget once a label's defining Prog exists).
package arm64

import (
	"fmt"

	goasm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/arm64"

	"github.com/gojit/nanojit/backend"
)

var regTable = [32]int16{
	arm64.REG_R0, arm64.REG_R1, arm64.REG_R2, arm64.REG_R3,
	arm64.REG_R4, arm64.REG_R5, arm64.REG_R6, arm64.REG_R7,
	arm64.REG_R8, arm64.REG_R9, arm64.REG_R10, arm64.REG_R11,
	arm64.REG_R12, arm64.REG_R13, arm64.REG_R14, arm64.REG_R15,
	arm64.REG_R16, arm64.REG_R17, arm64.REG_R18, arm64.REG_R19,
	arm64.REG_R20, arm64.REG_R21, arm64.REG_R22, arm64.REG_R23,
	arm64.REG_R24, arm64.REG_R25, arm64.REG_R26, arm64.REG_R27,
	arm64.REG_R28, arm64.REG_R29, arm64.REG_R30, arm64.REGSP,
}

func goReg(r backend.Reg) int16 { return regTable[r.RegNo] }

// Encoder emits AArch64 machine code via a golang-asm Builder.
type Encoder struct {
	b       *goasm.Builder
	labels  map[int]*obj.Prog
	pending map[int][]*obj.Prog
}

func NewEncoder(size int) (*Encoder, error) {
	b, err := goasm.NewBuilder("arm64", size)
	if err != nil {
		return nil, fmt.Errorf("arm64: new golang-asm builder: %w", err)
	}
	return &Encoder{b: b, labels: map[int]*obj.Prog{}, pending: map[int][]*obj.Prog{}}, nil
}

func (e *Encoder) newProg() *obj.Prog { return e.b.NewProg() }
func (e *Encoder) add(p *obj.Prog)    { e.b.AddInstruction(p) }

func addrReg(r backend.Reg) obj.Addr  { return obj.Addr{Type: obj.TYPE_REG, Reg: goReg(r)} }
func addrImm(v int64) obj.Addr        { return obj.Addr{Type: obj.TYPE_CONST, Offset: v} }

func addrOf(o backend.Opnd) obj.Addr {
	switch o.Kind {
	case backend.OpndReg:
		return addrReg(o.Reg)
	case backend.OpndImm:
		return addrImm(o.Imm)
	case backend.OpndUImm:
		return addrImm(int64(o.UImm))
	case backend.OpndValue:
		return addrImm(o.Val.AsI64())
	case backend.OpndMem:
		if o.Mem.Base.IsInsnOut {
			panic("arm64: encoder given a memory operand with an unallocated InsnOut base")
		}
		return obj.Addr{Type: obj.TYPE_MEM, Reg: regTable[o.Mem.Base.Reg], Offset: int64(o.Mem.Disp)}
	default:
		panic(fmt.Sprintf("arm64: cannot encode operand %v", o))
	}
}

var aluMnemonics = map[string]obj.As{
	"ADD": arm64.AADD, "SUB": arm64.AASUB,
	"AND": arm64.AAND, "ORR": arm64.AORR, "EOR": arm64.AEOR,
	"MVN": arm64.AMVN,
	"LSL": arm64.ALSL, "ASR": arm64.AASR, "LSR": arm64.ALSR,
	"MOV": arm64.AMOVD, "LDR": arm64.AMOVD, "STR": arm64.AMOVD,
	"CMP": arm64.ACMP, "TST": arm64.ATST,
}

func (e *Encoder) binOp(name string, dst, src backend.Opnd) {
	p := e.newProg()
	p.As = aluMnemonics[name]
	p.From = addrOf(src)
	p.To = addrOf(dst)
	e.add(p)
}

func (e *Encoder) Add(dst, src backend.Opnd) { e.binOp("ADD", dst, src) }
func (e *Encoder) Sub(dst, src backend.Opnd) { e.binOp("SUB", dst, src) }
func (e *Encoder) And(dst, src backend.Opnd) { e.binOp("AND", dst, src) }
func (e *Encoder) Or(dst, src backend.Opnd)  { e.binOp("ORR", dst, src) }
func (e *Encoder) Xor(dst, src backend.Opnd) { e.binOp("EOR", dst, src) }
func (e *Encoder) Mov(dst, src backend.Opnd) { e.binOp("MOV", dst, src) }
func (e *Encoder) Cmp(left, right backend.Opnd)  { e.binOp("CMP", left, right) }
func (e *Encoder) Test(left, right backend.Opnd) { e.binOp("TST", left, right) }
func (e *Encoder) Shl(dst, shift backend.Opnd) { e.binOp("LSL", dst, shift) }
func (e *Encoder) Sar(dst, shift backend.Opnd) { e.binOp("ASR", dst, shift) }
func (e *Encoder) Shr(dst, shift backend.Opnd) { e.binOp("LSR", dst, shift) }

func (e *Encoder) Not(dst backend.Opnd) {
	p := e.newProg()
	p.As = arm64.AMVN
	p.To = addrOf(dst)
	e.add(p)
}

// MovAbs materializes a 64-bit immediate via a MOVZ/MOVK sequence (the
// AArch64 equivalent of the x86-64 backend's single movabs).
func (e *Encoder) MovAbs(dst backend.Opnd, imm uint64) {
	p := e.newProg()
	p.As = arm64.AMOVD
	p.From = obj.Addr{Type: obj.TYPE_CONST, Offset: int64(imm)}
	p.To = addrOf(dst)
	e.add(p)
}

type ConditionCode int

const (
	CondEQ ConditionCode = iota
	CondNE
	CondLT
	CondLE
	CondGT
	CondGE
	CondLO
	CondLS
)

func (e *Encoder) LdrMem(dst backend.Opnd, src backend.Opnd) { e.binOp("LDR", dst, src) }
func (e *Encoder) StrMem(dst backend.Opnd, src backend.Opnd) { e.binOp("STR", dst, src) }

func (e *Encoder) DefineLabel(label int) {
	p := e.newProg()
	p.As = obj.ANOP
	e.add(p)
	e.labels[label] = p
	for _, pending := range e.pending[label] {
		pending.To.SetTarget(p)
	}
	delete(e.pending, label)
}

func (e *Encoder) jumpTo(as obj.As, label int) {
	p := e.newProg()
	p.As = as
	p.To.Type = obj.TYPE_BRANCH
	if target, ok := e.labels[label]; ok {
		p.To.SetTarget(target)
	} else {
		e.pending[label] = append(e.pending[label], p)
	}
	e.add(p)
}

func (e *Encoder) Jmp(label int) { e.jumpTo(arm64.AB, label) }

var condBranch = map[ConditionCode]obj.As{
	CondEQ: arm64.ABEQ, CondNE: arm64.ABNE, CondLT: arm64.ABLT, CondLE: arm64.ABLE,
	CondGT: arm64.ABGT, CondGE: arm64.ABGE, CondLO: arm64.ABLO, CondLS: arm64.ABLS,
}

func (e *Encoder) Jcc(cc ConditionCode, label int) { e.jumpTo(condBranch[cc], label) }

func (e *Encoder) JmpPtr(scratch backend.Reg, addr uintptr) {
	e.MovAbs(backend.RegOpnd(scratch), uint64(addr))
	p := e.newProg()
	p.As = arm64.AB
	p.To = addrReg(scratch)
	e.add(p)
}

func (e *Encoder) JmpReg(reg backend.Opnd) {
	p := e.newProg()
	p.As = arm64.AB
	p.To = addrOf(reg)
	e.add(p)
}

func (e *Encoder) Cmov(cc ConditionCode, dst, t, f backend.Opnd) {
	// AArch64 has no destructive two-operand CMOV; CSEL takes both values.
	p := e.newProg()
	p.As = arm64.ACSEL
	p.From = addrOf(t)
	p.Reg = goReg(f.Reg)
	p.To = addrOf(dst)
	e.add(p)
}

func (e *Encoder) CallPtr(scratch backend.Reg, addr uintptr) {
	e.MovAbs(backend.RegOpnd(scratch), uint64(addr))
	p := e.newProg()
	p.As = arm64.ABL
	p.To = addrReg(scratch)
	e.add(p)
}

func (e *Encoder) Ret()  { p := e.newProg(); p.As = obj.ARET; e.add(p) }
func (e *Encoder) Nop()  { p := e.newProg(); p.As = obj.ANOP; e.add(p) }
func (e *Encoder) Brk()  { p := e.newProg(); p.As = arm64.ABRK; p.From = addrImm(0); e.add(p) }

func (e *Encoder) Push(src backend.Opnd) {
	p := e.newProg()
	p.As = arm64.AMOVD
	p.From = addrOf(src)
	p.To = obj.Addr{Type: obj.TYPE_MEM, Reg: arm64.REGSP, Offset: -8}
	e.add(p)
}

func (e *Encoder) Pop(dst backend.Opnd) {
	p := e.newProg()
	p.As = arm64.AMOVD
	p.From = obj.Addr{Type: obj.TYPE_MEM, Reg: arm64.REGSP, Offset: 0}
	p.To = addrOf(dst)
	e.add(p)
}

func (e *Encoder) Bytes() ([]byte, error) {
	code, err := e.b.Assemble()
	if err != nil {
		return nil, fmt.Errorf("arm64: assemble: %w", err)
	}
	return code, nil
}
