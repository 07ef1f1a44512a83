package arm64

import (
	"fmt"

	"github.com/gojit/nanojit/asm"
	asmarm64 "github.com/gojit/nanojit/asm/arm64"
	"github.com/gojit/nanojit/backend"
)

var jumpCond = map[backend.Op]asmarm64.ConditionCode{
	backend.OpJl:  asmarm64.CondLT,
	backend.OpJbe: asmarm64.CondLS,
	backend.OpJe:  asmarm64.CondEQ,
	backend.OpJne: asmarm64.CondNE,
	backend.OpJz:  asmarm64.CondEQ,
	backend.OpJnz: asmarm64.CondNE,
}

var cselCond = map[backend.Op]asmarm64.ConditionCode{
	backend.OpCSelZ:  asmarm64.CondEQ,
	backend.OpCSelNZ: asmarm64.CondNE,
	backend.OpCSelE:  asmarm64.CondEQ,
	backend.OpCSelNE: asmarm64.CondNE,
	backend.OpCSelL:  asmarm64.CondLT,
	backend.OpCSelLE: asmarm64.CondLE,
	backend.OpCSelG:  asmarm64.CondGT,
	backend.OpCSelGE: asmarm64.CondGE,
}

// Emit walks a split and register-allocated Assembler and writes AArch64
// machine code into cb via a fresh Encoder. Mirrors backend/amd64.Emit's
// structure; see backend/amd64/emit.go for the shared design rationale
// (spec.md §4.7).
func Emit(a *backend.Assembler, cb *asm.CodeBuffer) ([]byte, []uint32, error) {
	enc, err := asmarm64.NewEncoder(4096)
	if err != nil {
		return nil, nil, err
	}
	gc := &asm.GCOffsets{}

	for _, insn := range a.Insns {
		if err := emitOne(enc, gc, insn); err != nil {
			return nil, nil, err
		}
	}

	code, err := enc.Bytes()
	if err != nil {
		return nil, nil, err
	}
	cb.Write(code)
	return code, gc.Offsets, nil
}

func emitOne(enc *asmarm64.Encoder, gc *asm.GCOffsets, insn *backend.Insn) error {
	switch insn.Op {
	case backend.OpAdd:
		enc.Add(insn.Out, insn.Opnds[1])
	case backend.OpSub:
		enc.Sub(insn.Out, insn.Opnds[1])
	case backend.OpAnd:
		enc.And(insn.Out, insn.Opnds[1])
	case backend.OpOr:
		enc.Or(insn.Out, insn.Opnds[1])
	case backend.OpXor:
		enc.Xor(insn.Out, insn.Opnds[1])
	case backend.OpNot:
		enc.Not(insn.Out)
	case backend.OpLShift:
		enc.Shl(insn.Out, insn.Opnds[1])
	case backend.OpRShift:
		enc.Sar(insn.Out, insn.Opnds[1])
	case backend.OpURShift:
		enc.Shr(insn.Out, insn.Opnds[1])

	case backend.OpLoad, backend.OpLoadSExt:
		if insn.Opnds[0].Kind == backend.OpndValue && insn.Opnds[0].Val.HeapObjectP() {
			gc.Add(0)
		}
		enc.LdrMem(insn.Out, insn.Opnds[0])
	case backend.OpLoadInto:
		enc.LdrMem(insn.Opnds[0], insn.Opnds[1])
	case backend.OpStore:
		enc.StrMem(insn.Opnds[0], insn.Opnds[1])
	case backend.OpMov:
		if insn.Opnds[1].Kind == backend.OpndUImm && insn.Opnds[1].UImm > Imm12Max {
			enc.MovAbs(insn.Opnds[0], insn.Opnds[1].UImm)
		} else {
			enc.Mov(insn.Opnds[0], insn.Opnds[1])
		}

	case backend.OpCmp:
		enc.Cmp(insn.Opnds[0], insn.Opnds[1])
	case backend.OpTest:
		enc.Test(insn.Opnds[0], insn.Opnds[1])

	case backend.OpJmp:
		emitJumpTarget(enc, insn.Target)
	case backend.OpJl, backend.OpJbe, backend.OpJe, backend.OpJne, backend.OpJz, backend.OpJnz:
		if insn.Target.Kind != backend.TargetLabel {
			return fmt.Errorf("arm64: conditional branch to a non-label target is not supported by this emitter")
		}
		enc.Jcc(jumpCond[insn.Op], insn.Target.LabelIdx)
	case backend.OpJmpOpnd:
		enc.JmpReg(insn.Opnds[0])
	case backend.OpLabel:
		enc.DefineLabel(insn.Target.LabelIdx)

	case backend.OpCSelZ, backend.OpCSelNZ, backend.OpCSelE, backend.OpCSelNE,
		backend.OpCSelL, backend.OpCSelLE, backend.OpCSelG, backend.OpCSelGE:
		enc.Cmov(cselCond[insn.Op], insn.Out, insn.Opnds[0], insn.Opnds[1])

	case backend.OpCCall:
		addr := uintptr(immOf(insn.Opnds[0]))
		enc.CallPtr(Scratch0, addr)
	case backend.OpCRet:
		enc.Mov(backend.RegOpnd(CRet), insn.Opnds[0])
		enc.Ret()

	case backend.OpCPush:
		enc.Push(insn.Opnds[0])
	case backend.OpCPushAll:
		for _, r := range CallerSaveRegs {
			enc.Push(backend.RegOpnd(r))
		}
	case backend.OpCPop:
		enc.Pop(insn.Out)
	case backend.OpCPopAll:
		for i := len(CallerSaveRegs) - 1; i >= 0; i-- {
			enc.Pop(backend.RegOpnd(CallerSaveRegs[i]))
		}
	case backend.OpCPopInto:
		enc.Pop(insn.Opnds[0])

	case backend.OpFrameSetup:
		enc.Push(backend.RegOpnd(reg64(X29)))
		enc.Push(backend.RegOpnd(reg64(X30)))
		enc.Mov(backend.RegOpnd(reg64(X29)), backend.RegOpnd(reg64(XSP)))
	case backend.OpFrameTeardown:
		enc.Pop(backend.RegOpnd(reg64(X30)))
		enc.Pop(backend.RegOpnd(reg64(X29)))

	case backend.OpIncrCounter:
		enc.Add(insn.Opnds[0], insn.Opnds[1])
	case backend.OpBreakpoint:
		enc.Brk()
	case backend.OpLiveReg, backend.OpComment, backend.OpPosMarker, backend.OpBakeString:
		// no code emitted -- see backend/amd64/emit.go for rationale.

	case backend.OpLeaLabel, backend.OpLea:
		return fmt.Errorf("arm64: lea/lea_label is not supported by this emitter")

	default:
		return fmt.Errorf("arm64: unsupported opcode %v", insn.Op)
	}
	return nil
}

func emitJumpTarget(enc *asmarm64.Encoder, t backend.Target) {
	switch t.Kind {
	case backend.TargetLabel:
		enc.Jmp(t.LabelIdx)
	case backend.TargetCodePtr, backend.TargetSideExitPtr:
		enc.JmpPtr(Scratch0, t.CodePtr)
	}
}

func immOf(o backend.Opnd) int64 {
	switch o.Kind {
	case backend.OpndImm:
		return o.Imm
	case backend.OpndUImm:
		return int64(o.UImm)
	default:
		panic("arm64: expected an immediate operand")
	}
}
