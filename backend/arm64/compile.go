package arm64

import (
	"github.com/gojit/nanojit/asm"
	"github.com/gojit/nanojit/backend"
)

// Compile runs the full AArch64 pipeline: split, allocate from the full
// AllocRegs pool, emit into a freshly-created CodeBuffer. Mirrors
// backend/amd64.Compile.
func Compile(a *backend.Assembler) ([]byte, []uint32, *asm.CodeBuffer, error) {
	return CompileWithRegs(a, AllocRegs)
}

// CompileWithRegs is Compile parameterized on the allocatable register pool.
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

// CompileWithNumRegs restricts the pool to the first n registers of AllocRegs.
func CompileWithNumRegs(a *backend.Assembler, n int) ([]byte, []uint32, *asm.CodeBuffer, error) {
	if n > len(AllocRegs) {
		n = len(AllocRegs)
	}
	return CompileWithRegs(a, AllocRegs[:n])
}
