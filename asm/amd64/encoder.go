// Package amd64 implements the x86-64 low-level encoder (spec.md §6.1) on top of
// github.com/twitchyliquid64/golang-asm, the teacher's own legacy assembler
// dependency, following the pattern of the teacher's own
// internal/asm/golang_asm/golang_asm.go (obj.Prog wrapping, AddInstruction,
// Assemble) and other_examples' North-C-sonic ARM64 JIT assembler (label
// patch-up via obj.Prog targets).
package amd64

import (
	"fmt"

	goasm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/gojit/nanojit/backend"
)

// regTable maps backend.Reg register numbers (matching backend/amd64's own
// RAX..R15 numbering) onto golang-asm's obj/x86 register constants.
var regTable = [16]int16{
	x86.REG_AX, x86.REG_CX, x86.REG_DX, x86.REG_BX,
	x86.REG_SP, x86.REG_BP, x86.REG_SI, x86.REG_DI,
	x86.REG_R8, x86.REG_R9, x86.REG_R10, x86.REG_R11,
	x86.REG_R12, x86.REG_R13, x86.REG_R14, x86.REG_R15,
}

func goReg(r backend.Reg) int16 { return regTable[r.RegNo] }

// Encoder emits x86-64 machine code for a sequence of already
// register-allocated operations, via a golang-asm Builder. One Encoder
// corresponds to one contiguous run of generated code; Bytes() assembles
// everything written so far.
type Encoder struct {
	b      *goasm.Builder
	labels map[int]*obj.Prog
	// pending maps a not-yet-defined label index to the Progs whose jump
	// target must be patched once that label is defined.
	pending map[int][]*obj.Prog
}

// NewEncoder returns an Encoder with capacity hint size bytes.
func NewEncoder(size int) (*Encoder, error) {
	b, err := goasm.NewBuilder("amd64", size)
	if err != nil {
		return nil, fmt.Errorf("amd64: new golang-asm builder: %w", err)
	}
	return &Encoder{b: b, labels: map[int]*obj.Prog{}, pending: map[int][]*obj.Prog{}}, nil
}

func (e *Encoder) newProg() *obj.Prog { return e.b.NewProg() }
func (e *Encoder) add(p *obj.Prog)    { e.b.AddInstruction(p) }

func addrReg(r backend.Reg) obj.Addr {
	return obj.Addr{Type: obj.TYPE_REG, Reg: goReg(r)}
}

func addrMem(m backend.Mem) obj.Addr {
	if m.Base.IsInsnOut {
		panic("amd64: encoder given a memory operand with an unallocated InsnOut base")
	}
	return obj.Addr{Type: obj.TYPE_MEM, Reg: regTable[m.Base.Reg], Offset: int64(m.Disp)}
}

func addrImm(v int64) obj.Addr { return obj.Addr{Type: obj.TYPE_CONST, Offset: v} }

// addrOf converts a post-allocation backend.Opnd (Reg, Mem, Imm or UImm --
// never InsnOut or None) into a golang-asm operand.
func addrOf(o backend.Opnd) obj.Addr {
	switch o.Kind {
	case backend.OpndReg:
		return addrReg(o.Reg)
	case backend.OpndMem:
		return addrMem(o.Mem)
	case backend.OpndImm:
		return addrImm(o.Imm)
	case backend.OpndUImm:
		return addrImm(int64(o.UImm))
	case backend.OpndValue:
		return addrImm(o.Val.AsI64())
	default:
		panic(fmt.Sprintf("amd64: cannot encode operand %v", o))
	}
}

func widthSuffix(bits uint8) string {
	switch bits {
	case 8:
		return "B"
	case 16:
		return "W"
	case 32:
		return "L"
	default:
		return "Q"
	}
}

// aluOpcode resolves an ALU mnemonic for the given operation at the given
// operand width, matching Go assembler's own naming convention
// (ADDL/ADDQ/...), the same convention the teacher documents in
// internal/asm/amd64/consts.go.
func aluOpcode(name string, bits uint8) obj.As {
	key := name + widthSuffix(bits)
	if as, ok := aluMnemonics[key]; ok {
		return as
	}
	panic("amd64: unsupported alu mnemonic " + key)
}

var aluMnemonics = map[string]obj.As{
	"ADDQ": x86.AADDQ, "ADDL": x86.AADDL,
	"SUBQ": x86.ASUBQ, "SUBL": x86.ASUBL,
	"ANDQ": x86.AANDQ, "ANDL": x86.AANDL,
	"ORQ": x86.AORQ, "ORL": x86.AORL,
	"XORQ": x86.AXORQ, "XORL": x86.AXORL,
	"NOTQ": x86.ANOTQ, "NOTL": x86.ANOTL,
	"SHLQ": x86.ASHLQ, "SHLL": x86.ASHLL,
	"SARQ": x86.ASARQ, "SARL": x86.ASARL,
	"SHRQ": x86.ASHRQ, "SHRL": x86.ASHRL,
	"MOVQ": x86.AMOVQ, "MOVL": x86.AMOVL, "MOVW": x86.AMOVW, "MOVB": x86.AMOVB,
	"CMPQ": x86.ACMPQ, "CMPL": x86.ACMPL,
	"TESTQ": x86.ATESTQ, "TESTL": x86.ATESTL,
	"LEAQ": x86.ALEAQ,
}

func (e *Encoder) binOp(name string, dst, src backend.Opnd) {
	p := e.newProg()
	p.As = aluOpcode(name, dst.RmNumBits())
	from := addrOf(src)
	to := addrOf(dst)
	p.From, p.To = from, to
	e.add(p)
}

func (e *Encoder) Add(dst, src backend.Opnd) { e.binOp("ADD", dst, src) }
func (e *Encoder) Sub(dst, src backend.Opnd) { e.binOp("SUB", dst, src) }
func (e *Encoder) And(dst, src backend.Opnd) { e.binOp("AND", dst, src) }
func (e *Encoder) Or(dst, src backend.Opnd)  { e.binOp("OR", dst, src) }
func (e *Encoder) Xor(dst, src backend.Opnd) { e.binOp("XOR", dst, src) }
func (e *Encoder) Mov(dst, src backend.Opnd) { e.binOp("MOV", dst, src) }
func (e *Encoder) Lea(dst, src backend.Opnd) { e.binOp("LEA", dst, src) }
func (e *Encoder) Cmp(left, right backend.Opnd)  { e.binOp("CMP", left, right) }
func (e *Encoder) Test(left, right backend.Opnd) { e.binOp("TEST", left, right) }

func (e *Encoder) Shl(dst, shift backend.Opnd) { e.binOp("SHL", dst, shift) }
func (e *Encoder) Sar(dst, shift backend.Opnd) { e.binOp("SAR", dst, shift) }
func (e *Encoder) Shr(dst, shift backend.Opnd) { e.binOp("SHR", dst, shift) }

func (e *Encoder) Not(dst backend.Opnd) {
	p := e.newProg()
	p.As = aluOpcode("NOT", dst.RmNumBits())
	p.To = addrOf(dst)
	e.add(p)
}

// MovAbs materializes a full 64-bit immediate into dst, for values too wide
// for a 32-bit sign-extended immediate field.
func (e *Encoder) MovAbs(dst backend.Opnd, imm uint64) {
	p := e.newProg()
	p.As = x86.AMOVQ
	p.From = obj.Addr{Type: obj.TYPE_CONST, Offset: int64(imm)}
	p.To = addrOf(dst)
	e.add(p)
}

var condMnemonic = map[ConditionCode]string{
	CondE: "EQ", CondNE: "NE", CondL: "LT", CondLE: "LE",
	CondG: "GT", CondGE: "GE", CondB: "CS", CondBE: "LS", CondO: "OS",
}

// ConditionCode names the condition tested by a conditional jump or cmov.
type ConditionCode int

const (
	CondE ConditionCode = iota
	CondNE
	CondL
	CondLE
	CondG
	CondGE
	CondB
	CondBE
	CondO
)

func jccOpcode(cc ConditionCode) obj.As {
	switch condMnemonic[cc] {
	case "EQ":
		return x86.AJEQ
	case "NE":
		return x86.AJNE
	case "LT":
		return x86.AJLT
	case "LE":
		return x86.AJLE
	case "GT":
		return x86.AJGT
	case "GE":
		return x86.AJGE
	case "CS":
		return x86.AJCS
	case "LS":
		return x86.AJLS
	case "OS":
		return x86.AJOS
	default:
		panic("amd64: unknown condition code")
	}
}

func cmovOpcode(cc ConditionCode) obj.As {
	switch condMnemonic[cc] {
	case "EQ":
		return x86.ACMOVQEQ
	case "NE":
		return x86.ACMOVQNE
	case "LT":
		return x86.ACMOVQLT
	case "LE":
		return x86.ACMOVQLE
	case "GT":
		return x86.ACMOVQGT
	case "GE":
		return x86.ACMOVQGE
	case "CS":
		return x86.ACMOVQCS
	case "LS":
		return x86.ACMOVQLS
	default:
		panic("amd64: unknown cmov condition code")
	}
}

// Jmp unconditionally jumps to a golang-asm-internal label, created with
// DefineLabel/referenced with branches resolved by SetTarget -- labels here
// are this package's own int handles (distinct from asm.CodeBuffer's label
// table; the splitter/emitter only ever hand this encoder one label
// namespace at a time per compilation unit).
func (e *Encoder) Jmp(label int) { e.jumpTo(x86.AJMP, label) }
func (e *Encoder) Jcc(cc ConditionCode, label int) { e.jumpTo(jccOpcode(cc), label) }

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

// JmpPtr jumps to a raw absolute address, via the scratch register.
func (e *Encoder) JmpPtr(scratch backend.Reg, addr uintptr) {
	e.MovAbs(backend.RegOpnd(scratch), uint64(addr))
	p := e.newProg()
	p.As = obj.AJMP
	p.To = addrReg(scratch)
	e.add(p)
}

func (e *Encoder) JmpReg(reg backend.Opnd) {
	p := e.newProg()
	p.As = obj.AJMP
	p.To = addrOf(reg)
	e.add(p)
}

// DefineLabel marks label as resolved at the current position and patches
// every previously emitted branch that referenced it.
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

func (e *Encoder) Cmov(cc ConditionCode, dst, src backend.Opnd) {
	p := e.newProg()
	p.As = cmovOpcode(cc)
	p.From = addrOf(src)
	p.To = addrOf(dst)
	e.add(p)
}

func (e *Encoder) Push(src backend.Opnd) {
	p := e.newProg()
	p.As = x86.APUSHQ
	p.From = addrOf(src)
	e.add(p)
}

func (e *Encoder) Pop(dst backend.Opnd) {
	p := e.newProg()
	p.As = x86.APOPQ
	p.To = addrOf(dst)
	e.add(p)
}

func (e *Encoder) PushFq() { p := e.newProg(); p.As = x86.APUSHFQ; e.add(p) }
func (e *Encoder) PopFq()  { p := e.newProg(); p.As = x86.APOPFQ; e.add(p) }

func (e *Encoder) CallPtr(scratch backend.Reg, addr uintptr) {
	e.MovAbs(backend.RegOpnd(scratch), uint64(addr))
	p := e.newProg()
	p.As = obj.ACALL
	p.To = addrReg(scratch)
	e.add(p)
}

func (e *Encoder) Ret()   { p := e.newProg(); p.As = obj.ARET; e.add(p) }
func (e *Encoder) Int3()  { p := e.newProg(); p.As = x86.AINT; p.From = addrImm(3); e.add(p) }
func (e *Encoder) Nop()   { p := e.newProg(); p.As = obj.ANOP; e.add(p) }

// LockAdd emits a lock-prefixed add, used by incr_counter for a thread-safe
// bump of a shared counter.
func (e *Encoder) LockAdd(dst, src backend.Opnd) {
	p := e.newProg()
	p.As = aluOpcode("ADD", dst.RmNumBits())
	p.From = addrOf(src)
	p.To = addrOf(dst)
	p.Scond |= x86.AELOCK
	e.add(p)
}

// Bytes assembles and returns the encoded machine code for everything
// written so far.
func (e *Encoder) Bytes() ([]byte, error) {
	code, err := e.b.Assemble()
	if err != nil {
		return nil, fmt.Errorf("amd64: assemble: %w", err)
	}
	return code, nil
}
