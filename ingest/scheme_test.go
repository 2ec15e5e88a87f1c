package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopLoad(ctx context.Context, submit SubmitFunc, u Uri, flags Flags, actions *ActionSet) error {
	return nil
}

func TestSchemeRegistryResolveDefault(t *testing.T) {
	r := NewSchemeRegistry()
	require.NoError(t, r.Register(&RegInfo{Name: "file", Load: noopLoad}))

	u, err := ParseURI("/tmp/foo.pcap")
	require.NoError(t, err)
	info, err := r.Resolve(u)
	require.NoError(t, err)
	assert.Equal(t, "file", info.Name)
}

func TestSchemeRegistryResolveExplicit(t *testing.T) {
	r := NewSchemeRegistry()
	require.NoError(t, r.Register(&RegInfo{Name: "garland", Load: noopLoad}))

	u, err := ParseURI("garland://drop")
	require.NoError(t, err)
	info, err := r.Resolve(u)
	require.NoError(t, err)
	assert.Equal(t, "garland", info.Name)
}

func TestSchemeRegistryUnknownScheme(t *testing.T) {
	r := NewSchemeRegistry()
	u, err := ParseURI("weird://x")
	require.NoError(t, err)
	_, err = r.Resolve(u)
	require.Error(t, err)
	var ie *Error
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, UnknownScheme, ie.Kind)
}

func TestSchemeRegistryDuplicateRegistration(t *testing.T) {
	r := NewSchemeRegistry()
	require.NoError(t, r.Register(&RegInfo{Name: "file", Load: noopLoad}))
	err := r.Register(&RegInfo{Name: "file", Load: noopLoad})
	require.Error(t, err)
}

func TestSchemeRegistryShutdownCallsExitInOrder(t *testing.T) {
	r := NewSchemeRegistry()
	var order []string
	mk := func(name string) *RegInfo {
		return &RegInfo{Name: name, Load: noopLoad, Exit: func() { order = append(order, name) }}
	}
	require.NoError(t, r.Register(mk("file")))
	require.NoError(t, r.Register(mk("garland")))
	r.Shutdown()
	assert.Equal(t, []string{"file", "garland"}, order)
}
