package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushTracksLiveRanges(t *testing.T) {
	a := NewAssembler()
	x := a.Load(MemOpnd(64, RegOpnd(Reg{RegNo: 0, NumBits: 64}), 0))
	a.Add(x, ImmOpnd(1))
	a.Add(x, ImmOpnd(2))

	require.Len(t, a.LiveRanges, len(a.Insns))
	for i, lr := range a.LiveRanges {
		assert.GreaterOrEqualf(t, lr, i, "live range of instruction %d must not precede it", i)
		assert.Lessf(t, lr, len(a.Insns), "live range of instruction %d out of bounds", i)
	}
	// x (instruction 0) is read by both adds (instructions 1 and 2); its live
	// range must extend to the last of those reads.
	assert.Equal(t, 2, a.LiveRanges[0])
}

func TestPushDefaultsToSixtyFourBits(t *testing.T) {
	a := NewAssembler()
	out := a.Add(ImmOpnd(1), ImmOpnd(2))
	require.Equal(t, OpndInsnOut, out.Kind)
	assert.EqualValues(t, 64, out.InsnOutNumBits)
}

func TestPushRejectsMismatchedWidths(t *testing.T) {
	a := NewAssembler()
	assert.Panics(t, func() {
		a.Add(RegOpnd(Reg{RegNo: 0, NumBits: 32}), RegOpnd(Reg{RegNo: 1, NumBits: 64}))
	})
}

func TestLabelRoundTrip(t *testing.T) {
	a := NewAssembler()
	lbl := a.NewLabel("loop")
	a.Jmp(lbl)
	a.WriteLabel(lbl)

	require.Len(t, a.LabelNames, 1)
	assert.Equal(t, "loop", a.LabelNames[0])
	assert.Equal(t, OpJmp, a.Insns[0].Op)
	assert.Equal(t, TargetLabel, a.Insns[0].Target.Kind)
	assert.Equal(t, OpLabel, a.Insns[1].Op)
}

func TestMemOpndRequiresSixtyFourBitBase(t *testing.T) {
	assert.Panics(t, func() {
		MemOpnd(64, RegOpnd(Reg{RegNo: 0, NumBits: 32}), 0)
	})
}

func TestCCallArgCountMatchesOperands(t *testing.T) {
	a := NewAssembler()
	out := a.CCall(ConstPtr(0x1000), ImmOpnd(1), ImmOpnd(2), ImmOpnd(3))
	insn := a.Insns[len(a.Insns)-1]
	// fnPtr + 3 args
	require.Len(t, insn.Opnds, 4)
	assert.Equal(t, OpCCall, insn.Op)
	assert.Equal(t, OpndInsnOut, out.Kind)
}
