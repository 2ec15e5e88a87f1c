package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseActionSetBasic(t *testing.T) {
	a, err := ParseActionSet([]string{"bpf=tcp", "dir=/tmp"})
	require.NoError(t, err)
	v, ok := a.Get("bpf")
	require.True(t, ok)
	assert.Equal(t, "tcp", v)
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, int32(1), a.RefCount())
}

func TestParseActionSetMalformed(t *testing.T) {
	_, err := ParseActionSet([]string{"nothingequals"})
	require.Error(t, err)
	var ie *Error
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, OpParseFailure, ie.Kind)
}

func TestParseActionSetTooMany(t *testing.T) {
	ops := make([]string, MaxActions+1)
	for i := range ops {
		ops[i] = "a=b"
	}
	_, err := ParseActionSet(ops)
	require.Error(t, err)
}

func TestActionSetRefcounting(t *testing.T) {
	a, err := ParseActionSet([]string{"x=1"})
	require.NoError(t, err)
	a.Acquire()
	a.Acquire()
	assert.Equal(t, int32(3), a.RefCount())
	a.Release()
	a.Release()
	assert.Equal(t, int32(1), a.RefCount())
	a.Release()
	assert.Equal(t, int32(0), a.RefCount())
	// fields are freed once the last reference drops
	_, ok := a.Get("x")
	assert.False(t, ok)
}

func TestActionSetNilSafe(t *testing.T) {
	var a *ActionSet
	a.Acquire()
	a.Release()
	assert.Equal(t, int32(0), a.RefCount())
	assert.Equal(t, 0, a.Len())
}
