// Package amd64 implements the x86-64 (SysV) splitter and emitter for the
// architecture-neutral backend package: component E (legalization) and
// component G (code generation) of spec.md, grounded on
// backend/x86_64/mod.rs in the original source.
package amd64

import "github.com/gojit/nanojit/backend"

// Register numbers match the standard x86-64 encoding order, so that
// RegNo also serves directly as the ModRM/REX register field.
const (
	RAX uint8 = iota
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
)

func reg64(no uint8) backend.Reg { return backend.Reg{RegNo: no, NumBits: 64} }

// Platform registers, matching backend/x86_64/mod.rs exactly:
//   _CFP = R13, _EC = R12, _SP = RBX, SCRATCH0 = R11, C_RET_REG = RAX.
var (
	CFP      = reg64(R13)
	EC       = reg64(R12)
	SP       = reg64(RBX)
	Scratch0 = reg64(R11)
	CRetReg  = CRet
)

// CRet is the C-call return register/operand (RAX).
var CRet = reg64(RAX)

// CArgRegs is the SysV integer argument register order.
var CArgRegs = []backend.Reg{reg64(RDI), reg64(RSI), reg64(RDX), reg64(RCX), reg64(R8), reg64(R9)}

// CArgOpnds wraps CArgRegs as Opnds, for direct use in LoadInto calls.
var CArgOpnds = func() []backend.Opnd {
	out := make([]backend.Opnd, len(CArgRegs))
	for i, r := range CArgRegs {
		out[i] = backend.RegOpnd(r)
	}
	return out
}()

// AllocRegs is the pool of registers the allocator may hand out: RAX, RCX,
// RDX, matching get_alloc_regs() in backend/x86_64/mod.rs exactly (the
// original reserves everything else -- RBX/R12/R13 for the interpreter's own
// state, RSP/RBP for the native stack, R11 as a scratch register for
// immediate materialization, R8/R9/R10/R14/R15 unused to keep the pool small
// and the splitter's displacement math simple).
var AllocRegs = []backend.Reg{reg64(RAX), reg64(RCX), reg64(RDX)}

// CallerSaveRegs lists registers CPushAll/CPopAll must preserve across a
// C call per the SysV ABI, used by the emitter's frame save/restore.
var CallerSaveRegs = []backend.Reg{
	reg64(RAX), reg64(RCX), reg64(RDX), reg64(RSI), reg64(RDI),
	reg64(R8), reg64(R9), reg64(R10), reg64(R11),
}

// JmpPtrBytes is the original's JMP_PTR_BYTES constant: the number of bytes
// reserved for an invalidation patch or page-boundary connector jump. It is
// smaller than the sequence Encoder.JmpPtr emits (a 10-byte movabs into the
// scratch register plus a 3-byte jmp *r11).
const JmpPtrBytes = 6
