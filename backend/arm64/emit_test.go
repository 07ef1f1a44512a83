package arm64

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
	y := a.Add(backend.ImmOpnd(5), backend.ImmOpnd(6))
	a.Store(backend.MemOpnd(64, backend.RegOpnd(reg64(X0)), 0), w)
	a.Store(backend.MemOpnd(64, backend.RegOpnd(reg64(X0)), 8), x)
	a.Store(backend.MemOpnd(64, backend.RegOpnd(reg64(X0)), 16), y)

	_, _, _, err := CompileWithNumRegs(a, 2)
	assert.Error(t, err)
}
