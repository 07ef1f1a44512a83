package backend

import "fmt"

// Op identifies the operation an Insn performs. The set mirrors
// backend/ir.rs's Op enum plus LoadInto, restored per SPEC_FULL.md.
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpAnd
	OpOr
	OpXor
	OpNot
	OpLShift
	OpRShift
	OpURShift
	OpLoad
	OpLoadInto
	OpLoadSExt
	OpStore
	OpLea
	OpLeaLabel
	OpMov
	OpCmp
	OpTest
	OpJmp
	OpJmpOpnd
	OpJl
	OpJbe
	OpJe
	OpJne
	OpJz
	OpJnz
	OpJo
	OpCSelZ
	OpCSelNZ
	OpCSelE
	OpCSelNE
	OpCSelL
	OpCSelLE
	OpCSelG
	OpCSelGE
	OpCCall
	OpCRet
	OpCPush
	OpCPushAll
	OpCPop
	OpCPopAll
	OpCPopInto
	OpFrameSetup
	OpFrameTeardown
	OpIncrCounter
	OpBreakpoint
	OpLiveReg
	OpBakeString
	OpComment
	OpPosMarker
	OpLabel
)

var opNames = map[Op]string{
	OpAdd: "add", OpSub: "sub", OpAnd: "and", OpOr: "or", OpXor: "xor", OpNot: "not",
	OpLShift: "lshift", OpRShift: "rshift", OpURShift: "urshift",
	OpLoad: "load", OpLoadInto: "load_into", OpLoadSExt: "load_sext", OpStore: "store",
	OpLea: "lea", OpLeaLabel: "lea_label", OpMov: "mov", OpCmp: "cmp", OpTest: "test",
	OpJmp: "jmp", OpJmpOpnd: "jmp_opnd", OpJl: "jl", OpJbe: "jbe", OpJe: "je", OpJne: "jne",
	OpJz: "jz", OpJnz: "jnz", OpJo: "jo",
	OpCSelZ: "csel_z", OpCSelNZ: "csel_nz", OpCSelE: "csel_e", OpCSelNE: "csel_ne",
	OpCSelL: "csel_l", OpCSelLE: "csel_le", OpCSelG: "csel_g", OpCSelGE: "csel_ge",
	OpCCall: "ccall", OpCRet: "cret", OpCPush: "cpush", OpCPushAll: "cpush_all",
	OpCPop: "cpop", OpCPopAll: "cpop_all", OpCPopInto: "cpop_into",
	OpFrameSetup: "frame_setup", OpFrameTeardown: "frame_teardown",
	OpIncrCounter: "incr_counter", OpBreakpoint: "breakpoint", OpLiveReg: "live_reg",
	OpBakeString: "bake_string", OpComment: "comment", OpPosMarker: "pos_marker",
	OpLabel: "label",
}

func (o Op) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// jumpOps is the set of opcodes that consult Insn.Target instead of Opnds for
// their destination.
var jumpOps = map[Op]bool{
	OpJmp: true, OpJl: true, OpJbe: true, OpJe: true, OpJne: true,
	OpJz: true, OpJnz: true, OpJo: true, OpLeaLabel: true,
}

// IsJump reports whether op branches via an Insn.Target rather than an Opnd.
func (op Op) IsJump() bool { return jumpOps[op] }

// TargetKind discriminates the Target sum type.
type TargetKind int

const (
	TargetNone TargetKind = iota
	TargetCodePtr
	TargetSideExitPtr
	TargetFunPtr
	TargetLabel
)

// Target is the destination of a jump/call/lea_label instruction.
// SideExitPtr is kept distinct from CodePtr (both are direct addresses at
// emission time) so a caller walking the final IR for diagnostics can tell a
// jump into previously emitted code apart from a jump to a side-exit stub.
type Target struct {
	Kind     TargetKind
	CodePtr  uintptr
	FunPtr   uintptr
	LabelIdx int
}

func CodePtrTarget(p uintptr) Target     { return Target{Kind: TargetCodePtr, CodePtr: p} }
func SideExitPtrTarget(p uintptr) Target { return Target{Kind: TargetSideExitPtr, CodePtr: p} }
func FunPtrTarget(p uintptr) Target      { return Target{Kind: TargetFunPtr, FunPtr: p} }
func LabelTarget(idx int) Target         { return Target{Kind: TargetLabel, LabelIdx: idx} }

func (t Target) String() string {
	switch t.Kind {
	case TargetCodePtr:
		return fmt.Sprintf("CodePtr(%#x)", t.CodePtr)
	case TargetSideExitPtr:
		return fmt.Sprintf("SideExitPtr(%#x)", t.CodePtr)
	case TargetFunPtr:
		return fmt.Sprintf("FunPtr(%#x)", t.FunPtr)
	case TargetLabel:
		return fmt.Sprintf("Label(%d)", t.LabelIdx)
	default:
		return "NoTarget"
	}
}

// PosMarkerFn is the callback carried by a PosMarker instruction, taking a
// code address. The amd64 and arm64 emitters do not call it.
type PosMarkerFn func(codePtr uintptr)

// Insn is one instruction in an Assembler's instruction list. Out is filled
// in by push (as an InsnOut operand referencing this instruction's own
// index) for ops that produce a value; AllocRegs builds a copy of each Insn
// whose Out is a concrete Reg.
type Insn struct {
	Op      Op
	Text    string
	Opnds   []Opnd
	Out     Opnd
	Target  Target
	PosMark PosMarkerFn
}

func (i *Insn) String() string {
	return fmt.Sprintf("%s %v -> %v", i.Op, i.Opnds, i.Out)
}

// hasOutput reports whether op writes a value the allocator must assign a
// register (or keep as a Mem/None) to.
func hasOutput(op Op) bool {
	switch op {
	case OpAdd, OpSub, OpAnd, OpOr, OpXor, OpNot, OpLShift, OpRShift, OpURShift,
		OpLoad, OpLoadSExt, OpLea, OpLeaLabel, OpCCall, OpLiveReg, OpBakeString, OpCPop,
		OpCSelZ, OpCSelNZ, OpCSelE, OpCSelNE, OpCSelL, OpCSelLE, OpCSelG, OpCSelGE:
		return true
	default:
		return false
	}
}
