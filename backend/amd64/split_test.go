package amd64

import (
	"testing"

	"github.com/gojit/nanojit/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertLegal checks the invariants Split is required to establish: no ALU
// or shift instruction is left with two memory operands, no Mov is left
// with two memory operands, and Cmp/Test never have two memory operands.
func assertLegal(t *testing.T, a *backend.Assembler) {
	t.Helper()
	for i, insn := range a.Insns {
		switch insn.Op {
		case backend.OpAdd, backend.OpSub, backend.OpAnd, backend.OpOr, backend.OpXor,
			backend.OpLShift, backend.OpRShift, backend.OpURShift, backend.OpMov,
			backend.OpCmp, backend.OpTest:
			if len(insn.Opnds) < 2 {
				continue
			}
			bothMem := isMemLike(insn.Opnds[0]) && isMemLike(insn.Opnds[1])
			assert.Falsef(t, bothMem, "instruction %d (%v) left with two memory operands after split", i, insn.Op)
		}
	}
}

func TestSplitLoadsLeftWhenBothOperandsMem(t *testing.T) {
	src := backend.NewAssembler()
	base := backend.RegOpnd(reg64(RDI))
	left := backend.MemOpnd(64, base, 0)
	right := backend.MemOpnd(64, base, 8)
	src.Add(left, right)

	out := Split(src)
	assertLegal(t, out)
}

func TestSplitLoadsLeftWhenStillLive(t *testing.T) {
	src := backend.NewAssembler()
	x := src.Add(backend.ImmOpnd(1), backend.ImmOpnd(2))
	src.Add(x, backend.ImmOpnd(3)) // first use, not last
	src.Add(x, backend.ImmOpnd(4)) // last use: x must survive instruction 1 intact

	out := Split(src)
	// Instruction 1 (the first reuse of x) must have loaded a fresh copy of x
	// rather than destructively reusing it, since x is read again afterward:
	// add, load, add, add.
	require.Len(t, out.Insns, 4)
	assert.Equal(t, backend.OpLoad, out.Insns[1].Op)
	assertLegal(t, out)
}

func TestSplitCmpLoadsRightWhenBothMem(t *testing.T) {
	src := backend.NewAssembler()
	base := backend.RegOpnd(reg64(RDI))
	src.Cmp(backend.MemOpnd(64, base, 0), backend.MemOpnd(64, base, 8))

	out := Split(src)
	assertLegal(t, out)
}

func TestSplitCCallLowersArgsToLoadInto(t *testing.T) {
	src := backend.NewAssembler()
	src.CCall(backend.ConstPtr(0x1000), backend.ImmOpnd(1), backend.ImmOpnd(2))

	out := Split(src)
	var sawLoadInto int
	var sawCCall bool
	for _, insn := range out.Insns {
		if insn.Op == backend.OpLoadInto {
			sawLoadInto++
		}
		if insn.Op == backend.OpCCall {
			sawCCall = true
			assert.Len(t, insn.Opnds, 1, "post-split ccall should carry only its function pointer operand")
		}
	}
	assert.Equal(t, 2, sawLoadInto)
	assert.True(t, sawCCall)
}

// TestSplitLoadsBareRegisterLeftOperand follows the shape of spec.md §8
// scenario 1: add(RAX, Imm(1)) must emit a self-mov load of RAX before the add,
// since a bare physical register left operand is never safe to clobber in
// place (it may still be needed by its owner after this instruction).
func TestSplitLoadsBareRegisterLeftOperand(t *testing.T) {
	src := backend.NewAssembler()
	src.Add(backend.RegOpnd(reg64(RAX)), backend.ImmOpnd(1))

	out := Split(src)
	require.Len(t, out.Insns, 2, "a bare register left operand must be copied via Load before the destructive add")
	assert.Equal(t, backend.OpLoad, out.Insns[0].Op)
	assert.Equal(t, backend.OpndReg, out.Insns[0].Opnds[0].Kind)
	assert.Equal(t, backend.OpAdd, out.Insns[1].Op)
	assert.Equal(t, backend.OpndInsnOut, out.Insns[1].Opnds[0].Kind, "add's left operand must now be the loaded copy, not the original register")
	assertLegal(t, out)
}

// TestSplitLoadsReservedRegisterOperands exercises the interpreter-state
// registers (backend/amd64/consts.go's CFP/EC) directly, the pattern those
// reserved registers exist to support: a frontend instruction operating on
// CFP/EC must not clobber them in place.
func TestSplitLoadsReservedRegisterOperands(t *testing.T) {
	src := backend.NewAssembler()
	src.Add(backend.RegOpnd(CFP), backend.ImmOpnd(8))
	src.Not(backend.RegOpnd(EC))

	out := Split(src)
	var loads int
	for _, insn := range out.Insns {
		if insn.Op == backend.OpLoad {
			loads++
		}
	}
	assert.Equal(t, 2, loads, "both the CFP add and the EC not must load their reserved-register operand first")
	assertLegal(t, out)
}

func TestSplitIsIdempotentOnAlreadyLegalIR(t *testing.T) {
	src := backend.NewAssembler()
	src.Add(backend.RegOpnd(reg64(RAX)), backend.ImmOpnd(1))

	once := Split(src)
	twice := Split(once)
	assert.Equal(t, len(once.Insns), len(twice.Insns), "the loaded copy is an InsnOut on its last use, so a second pass must not insert another load")
}
