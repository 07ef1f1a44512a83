package backend

import (
	"testing"

	"github.com/gojit/nanojit/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericConstructorsRoundTrip(t *testing.T) {
	require.Equal(t, int64(-7), ImmFromInt32(-7).Imm)
	require.Equal(t, int64(42), ImmFromInt64(42).Imm)
	require.Equal(t, uint64(7), UImmFromUint32(7).UImm)
	require.Equal(t, uint64(1<<40), UImmFromUint64(1<<40).UImm)
	require.Equal(t, uint64(3), UImmFromUSize(3).UImm)
}

func TestMapIndexRewritesMemBase(t *testing.T) {
	o := MemOpnd(64, Opnd{Kind: OpndInsnOut, InsnOutIdx: 2, InsnOutNumBits: 64}, 8)
	remapped := o.MapIndex([]int{0, 0, 5})
	require.True(t, remapped.Mem.Base.IsInsnOut)
	assert.Equal(t, 5, remapped.Mem.Base.InsnOut)
}

func TestMapIndexLeavesNonInsnOutUnchanged(t *testing.T) {
	imm := ImmOpnd(9)
	assert.Equal(t, imm, imm.MapIndex([]int{0}))
}

func TestValueOpndFitsIn32BitsNotPromoted(t *testing.T) {
	v := value.FromRaw(0x04) // Nil, a special constant with a small bit pattern
	assert.True(t, v.FitsInI32())
	assert.True(t, v.SpecialConstP())
	assert.False(t, v.HeapObjectP())
}

func TestValueHeapObjectDetection(t *testing.T) {
	heap := value.FromRaw(0x7fff00000008)
	assert.True(t, heap.HeapObjectP())
	assert.False(t, heap.SpecialConstP())
}

func TestRmNumBitsPanicsOnImmediate(t *testing.T) {
	assert.Panics(t, func() { ImmOpnd(1).RmNumBits() })
}
