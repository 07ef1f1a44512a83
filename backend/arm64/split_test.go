package arm64

import (
	"testing"

	"github.com/gojit/nanojit/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertNoMemOrWideImmInAlu(t *testing.T, a *backend.Assembler) {
	t.Helper()
	for i, insn := range a.Insns {
		if !aluOps[insn.Op] && insn.Op != backend.OpCmp && insn.Op != backend.OpTest {
			continue
		}
		for _, o := range insn.Opnds {
			assert.Falsef(t, needsLoadARM(o), "instruction %d (%v) still has an unloaded memory/wide-immediate operand after split", i, insn.Op)
		}
	}
}

func TestSplitLoadsMemoryOperandsInAluOps(t *testing.T) {
	src := backend.NewAssembler()
	base := backend.RegOpnd(reg64(X0))
	src.Add(backend.MemOpnd(64, base, 0), backend.MemOpnd(64, base, 8))

	out := Split(src)
	assertNoMemOrWideImmInAlu(t, out)
}

func TestSplitLoadsOutOfRangeImmediates(t *testing.T) {
	src := backend.NewAssembler()
	src.Add(backend.RegOpnd(reg64(X0)), backend.UImmOpnd(1<<20))

	out := Split(src)
	assertNoMemOrWideImmInAlu(t, out)
}

func TestSplitCCallLowersArgsToLoadInto(t *testing.T) {
	src := backend.NewAssembler()
	src.CCall(backend.ConstPtr(0x2000), backend.ImmOpnd(1), backend.ImmOpnd(2), backend.ImmOpnd(3))

	out := Split(src)
	var sawLoadInto int
	for _, insn := range out.Insns {
		if insn.Op == backend.OpLoadInto {
			sawLoadInto++
		}
	}
	require.Equal(t, 3, sawLoadInto)
}

func TestSplitLeavesSmallImmediatesAlone(t *testing.T) {
	src := backend.NewAssembler()
	base := backend.RegOpnd(reg64(X0))
	x := src.Load(backend.MemOpnd(64, base, 0)) // an InsnOut left, not a bare Reg: exempt from the destructive-left-register rule
	src.Add(x, backend.ImmOpnd(5))

	out := Split(src)
	require.Len(t, out.Insns, 2)
	last := out.Insns[len(out.Insns)-1]
	assert.Equal(t, backend.OpndImm, last.Opnds[1].Kind)
}

// TestSplitLoadsBareRegisterLeftOperand matches backend/amd64's equivalent
// case: the Encoder's Add/Not write their result into the same register the
// left operand occupies, so a bare physical register left operand must be
// copied into a fresh temporary first rather than clobbered in place.
func TestSplitLoadsBareRegisterLeftOperand(t *testing.T) {
	src := backend.NewAssembler()
	src.Add(backend.RegOpnd(reg64(X0)), backend.ImmOpnd(1))

	out := Split(src)
	require.Len(t, out.Insns, 2, "a bare register left operand must be copied via Load before the destructive add")
	assert.Equal(t, backend.OpLoad, out.Insns[0].Op)
	assert.Equal(t, backend.OpndInsnOut, out.Insns[1].Opnds[0].Kind)
}

// TestSplitLoadsReservedRegisterOperands exercises the interpreter-state
// registers (backend/arm64/consts.go's CFP/EC) directly, the pattern those
// reserved registers exist to support.
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
}
