package asm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAdvancesCursor(t *testing.T) {
	cb, err := NewCodeBuffer(64)
	require.NoError(t, err)
	defer cb.Close()

	cb.WriteByte(0x90)
	cb.WriteUint32(0xdeadbeef)
	assert.Equal(t, 5, cb.Pos())
	assert.Equal(t, []byte{0x90, 0xef, 0xbe, 0xad, 0xde}, cb.Bytes())
}

func TestGrowPreservesContents(t *testing.T) {
	cb, err := NewCodeBuffer(8)
	require.NoError(t, err)
	defer cb.Close()

	// The initial mapping is one page; writing past it forces ensure to grow.
	n := cb.pageSize + 64
	for i := 0; i < n; i++ {
		cb.WriteByte(byte(i))
	}
	require.Equal(t, n, cb.Pos())
	for i := 0; i < n; i++ {
		assert.Equal(t, byte(i), cb.Bytes()[i])
	}
}

func TestLabelBackpatchForward(t *testing.T) {
	cb, err := NewCodeBuffer(64)
	require.NoError(t, err)
	defer cb.Close()

	lbl := cb.NewLabel("target")
	// Emit a 1-byte opcode then a 4-byte relative displacement placeholder.
	cb.WriteByte(0xe9)
	patchPos := cb.Pos()
	cb.WriteUint32(0)
	cb.ReferenceLabel(lbl, patchPos, 4)

	// Some intervening code, then the label's definition.
	cb.WriteByte(0x90)
	cb.WriteByte(0x90)
	cb.DefineLabel(lbl)

	disp := int32(cb.Bytes()[patchPos]) | int32(cb.Bytes()[patchPos+1])<<8 |
		int32(cb.Bytes()[patchPos+2])<<16 | int32(cb.Bytes()[patchPos+3])<<24
	assert.Equal(t, int32(2), disp)
}

func TestLabelBackpatchBackward(t *testing.T) {
	cb, err := NewCodeBuffer(64)
	require.NoError(t, err)
	defer cb.Close()

	lbl := cb.NewLabel("loop_top")
	cb.DefineLabel(lbl)
	cb.WriteByte(0x90)
	cb.WriteByte(0x90)

	patchPos := cb.Pos() + 1
	cb.WriteByte(0xeb) // short jmp opcode
	cb.WriteByte(0)
	cb.ReferenceLabel(lbl, patchPos, 1)

	// Label at 0, displacement field ends at 4.
	disp := int8(cb.Bytes()[patchPos])
	assert.Equal(t, int8(-4), disp)
}

func TestLabelStateRoundTrip(t *testing.T) {
	cb, err := NewCodeBuffer(64)
	require.NoError(t, err)
	defer cb.Close()

	lbl := cb.NewLabel("x")
	snapshot := cb.GetLabelState()
	cb.DefineLabel(lbl)
	cb.SetLabelState(snapshot)

	assert.NotPanics(t, func() { cb.DefineLabel(lbl) })
}

func TestDoubleDefineLabelPanics(t *testing.T) {
	cb, err := NewCodeBuffer(64)
	require.NoError(t, err)
	defer cb.Close()
	lbl := cb.NewLabel("x")
	cb.DefineLabel(lbl)
	assert.Panics(t, func() { cb.DefineLabel(lbl) })
}
