package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpecialConstantsAreNotHeapObjects(t *testing.T) {
	for _, v := range []Value{Nil, True, False, Undef} {
		assert.True(t, v.SpecialConstP())
		assert.False(t, v.HeapObjectP())
	}
}

func TestHeapObjectDetection(t *testing.T) {
	heap := FromRaw(0x7f0000001000)
	assert.True(t, heap.HeapObjectP())
	assert.False(t, heap.SpecialConstP())
}

func TestImmediateIsNeitherHeapNorSpecial(t *testing.T) {
	imm := FromRaw(0x15) // odd low bit: a tagged fixnum, not a pointer
	assert.False(t, imm.HeapObjectP())
	assert.False(t, imm.SpecialConstP())
}

func TestFitsInI32(t *testing.T) {
	assert.True(t, FromRaw(uint64(42)).FitsInI32())
	big := FromRaw(uint64(1) << 40)
	assert.False(t, big.FitsInI32())
}

func TestAsI64AsU64RoundTrip(t *testing.T) {
	v := FromRaw(0xdeadbeef)
	assert.EqualValues(t, 0xdeadbeef, v.AsU64())
	assert.EqualValues(t, 0xdeadbeef, v.AsI64())
}
