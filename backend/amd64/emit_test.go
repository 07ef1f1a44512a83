package amd64

import (
	"testing"

	"github.com/gojit/nanojit/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileSimpleAddProducesCode(t *testing.T) {
	a := backend.NewAssembler()
	x := a.Add(backend.ImmOpnd(1), backend.ImmOpnd(2))
	a.CRet(x)

	code, gcOffsets, cb, err := Compile(a)
	require.NoError(t, err)
	defer cb.Close()

	assert.NotEmpty(t, code)
	assert.Empty(t, gcOffsets)
}

func TestCompileWithNumRegsCapsPool(t *testing.T) {
	a := backend.NewAssembler()
	w := a.Add(backend.ImmOpnd(1), backend.ImmOpnd(2))
	x := a.Add(backend.ImmOpnd(3), backend.ImmOpnd(4))
	a.Store(backend.MemOpnd(64, backend.RegOpnd(reg64(RDI)), 0), w)
	a.Store(backend.MemOpnd(64, backend.RegOpnd(reg64(RDI)), 8), x)

	_, _, _, err := CompileWithNumRegs(a, 1)
	assert.Error(t, err, "capping the pool to 1 register should force allocation failure with two concurrently live values")
}

func TestCompileCCallRoundTrip(t *testing.T) {
	a := backend.NewAssembler()
	out := a.CCall(backend.ConstPtr(0x1000), backend.ImmOpnd(7))
	a.CRet(out)

	code, _, cb, err := Compile(a)
	require.NoError(t, err)
	defer cb.Close()
	assert.NotEmpty(t, code)
}
