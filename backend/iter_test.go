package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrainingIteratorRemapsOperands(t *testing.T) {
	src := NewAssembler()
	x := src.Add(ImmOpnd(1), ImmOpnd(2))
	src.Add(x, ImmOpnd(3))

	dst := NewAssembler()
	it := NewDrainingIterator(src)

	insn, ok := it.NextUnmapped()
	require.True(t, ok)
	out := dst.push(insn.Op, insn.Text, insn.Opnds, insn.Target, insn.PosMark)
	it.MapInsnIndex(out.InsnOutIdx)

	insn, ok = it.NextUnmapped()
	require.True(t, ok)
	remapped := make([]Opnd, len(insn.Opnds))
	for i, o := range insn.Opnds {
		remapped[i] = it.MapOpnd(o)
	}
	dst.push(insn.Op, insn.Text, remapped, insn.Target, insn.PosMark)

	// The remapped second instruction must reference the destination index
	// of the first, not its original source index (they happen to coincide
	// here since no splitting occurred, so assert the remap table did the
	// work rather than just passing through by luck).
	assert.Equal(t, 0, it.indices[0])
	assert.Equal(t, 0, dst.Insns[1].Opnds[0].InsnOutIdx)
}

func TestDrainingIteratorLenDecreases(t *testing.T) {
	src := NewAssembler()
	src.Add(ImmOpnd(1), ImmOpnd(2))
	src.Add(ImmOpnd(1), ImmOpnd(2))
	it := NewDrainingIterator(src)
	require.Equal(t, 2, it.Len())
	it.NextUnmapped()
	require.Equal(t, 1, it.Len())
	it.NextUnmapped()
	require.Equal(t, 0, it.Len())
	_, ok := it.NextUnmapped()
	assert.False(t, ok)
}

func TestLookbackIteratorNavigatesBothDirections(t *testing.T) {
	a := NewAssembler()
	a.Add(ImmOpnd(1), ImmOpnd(2))
	a.Sub(ImmOpnd(3), ImmOpnd(4))
	a.Xor(ImmOpnd(5), ImmOpnd(6))

	it := NewLookbackIterator(a)
	insn, ok := it.NextUnmapped()
	require.True(t, ok)
	assert.Equal(t, OpAdd, insn.Op)
	assert.Nil(t, it.GetPrevious())
	assert.Equal(t, OpSub, it.GetNext().Op)

	insn, ok = it.NextUnmapped()
	require.True(t, ok)
	assert.Equal(t, OpSub, insn.Op)
	assert.Equal(t, OpAdd, it.GetPrevious().Op)
	assert.Equal(t, OpXor, it.GetNext().Op)
}

func TestLookbackIteratorLiveRangeEnd(t *testing.T) {
	a := NewAssembler()
	x := a.Add(ImmOpnd(1), ImmOpnd(2))
	a.Sub(x, ImmOpnd(3))
	it := NewLookbackIterator(a)
	assert.Equal(t, 1, it.LiveRangeEnd(0))
}
