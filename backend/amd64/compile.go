package amd64

import (
	"github.com/gojit/nanojit/asm"
	"github.com/gojit/nanojit/backend"
)

// Compile runs the full x86-64 pipeline over a frontend-built (not yet split
// or allocated) Assembler: split, allocate registers from the full AllocRegs pool, then
// emit into a freshly-created CodeBuffer. Returns the generated code, the
// byte offsets of any embedded GC-movable values, and the CodeBuffer (so the
// caller can keep it mapped for as long as the code must remain callable).
func Compile(a *backend.Assembler) ([]byte, []uint32, *asm.CodeBuffer, error) {
	return CompileWithRegs(a, AllocRegs)
}

// CompileWithRegs is Compile parameterized on the allocatable register pool,
// for callers that want to reserve some of AllocRegs for other purposes
// (spec.md §4.6 / §6's CompileWithNumRegs-equivalent configuration knob).
func CompileWithRegs(a *backend.Assembler, pool []backend.Reg) ([]byte, []uint32, *asm.CodeBuffer, error) {
	split := Split(a)
	allocated, err := backend.AllocRegs(split, pool, CRet)
	if err != nil {
		return nil, nil, nil, err
	}
	cb, err := asm.NewCodeBuffer(4096)
	if err != nil {
		return nil, nil, nil, err
	}
	code, gcOffsets, err := Emit(allocated, cb)
	if err != nil {
		cb.Close()
		return nil, nil, nil, err
	}
	return code, gcOffsets, cb, nil
}

// CompileWithNumRegs is CompileWithRegs restricted to the first n registers
// of AllocRegs, for callers tuning register pressure versus spill-avoidance
// headroom at a call site (there is no spilling -- a caller that runs out
// gets an error from AllocRegs, not silently degraded code).
func CompileWithNumRegs(a *backend.Assembler, n int) ([]byte, []uint32, *asm.CodeBuffer, error) {
	if n > len(AllocRegs) {
		n = len(AllocRegs)
	}
	return CompileWithRegs(a, AllocRegs[:n])
}
