// Package arm64 implements the AArch64 (AAPCS64) splitter and emitter for
// the architecture-neutral backend package, grounded on
// asm/arm64/opnd.rs in the original source (register tables, C_ARG_REGS)
// and spec.md §4.5's description of the ARM64 legalization rules (the full
// Rust ARM64 splitter/emitter module was not present in the retrieved
// original-source pack; see DESIGN.md).
package arm64

import "github.com/gojit/nanojit/backend"

// Register numbers 0-30 match AArch64's X0-X30/W0-W30 general purpose
// registers; 31 is reserved here for SP (never allocatable).
const (
	X0 uint8 = iota
	X1
	X2
	X3
	X4
	X5
	X6
	X7
	X8
	X9
	X10
	X11
	X12
	X13
	X14
	X15
	X16
	X17
	X18
	X19
	X20
	X21
	X22
	X23
	X24
	X25
	X26
	X27
	X28
	X29 // frame pointer
	X30 // link register
	XSP
)

func reg64(no uint8) backend.Reg { return backend.Reg{RegNo: no, NumBits: 64} }

// CFP and EC mirror the interpreter-state registers reserved in the x86-64
// backend (backend/amd64), placed in the high callee-saved registers per
// AAPCS64 (X19-X28 are callee-saved).
var (
	CFP = reg64(X19)
	EC  = reg64(X20)
	SP  = reg64(X21)

	Scratch0 = reg64(X16) // IP0, the AAPCS64-reserved intra-procedure-call scratch register
	Scratch1 = reg64(X17) // IP1
)

// CRet is AAPCS64's single-register return value (X0).
var CRet = reg64(X0)

// CArgRegs is the AAPCS64 general-purpose argument register sequence, X0-X7
// (eight registers; spec.md's glossary states ARM64 has eight, though the
// original source snapshot's own call sites only ever populated the first
// four -- see DESIGN.md for this discrepancy and why the fuller AAPCS64
// convention is followed here).
var CArgRegs = []backend.Reg{
	reg64(X0), reg64(X1), reg64(X2), reg64(X3),
	reg64(X4), reg64(X5), reg64(X6), reg64(X7),
}

var CArgOpnds = func() []backend.Opnd {
	out := make([]backend.Opnd, len(CArgRegs))
	for i, r := range CArgRegs {
		out[i] = backend.RegOpnd(r)
	}
	return out
}()

// AllocRegs is the pool of allocatable registers: the caller-saved
// general-purpose temporaries X9-X15, leaving X0-X8 free for argument
// passing/return and X16-X30 reserved for scratch/frame/link/interpreter
// state as above.
var AllocRegs = []backend.Reg{
	reg64(X9), reg64(X10), reg64(X11), reg64(X12), reg64(X13), reg64(X14), reg64(X15),
}

// CallerSaveRegs lists the registers CPushAll/CPopAll must preserve across a
// C call under AAPCS64.
var CallerSaveRegs = []backend.Reg{
	reg64(X0), reg64(X1), reg64(X2), reg64(X3), reg64(X4), reg64(X5), reg64(X6), reg64(X7),
	reg64(X9), reg64(X10), reg64(X11), reg64(X12), reg64(X13), reg64(X14), reg64(X15),
}

// Imm12Max is the largest unsigned immediate ARM64's 12-bit ALU immediate
// field can hold (optionally shifted left by 12, which this backend does
// not use, so the plain unshifted range is what the splitter checks).
const Imm12Max = 1<<12 - 1
