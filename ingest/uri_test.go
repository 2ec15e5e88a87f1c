package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURIImplicitFile(t *testing.T) {
	u, err := ParseURI("/var/capture/one.pcap")
	require.NoError(t, err)
	assert.Equal(t, DefaultScheme, u.Scheme)
	assert.Equal(t, "/var/capture/one.pcap", u.Opaque)
}

func TestParseURIExplicitScheme(t *testing.T) {
	u, err := ParseURI("s3://bucket/key.pcap")
	require.NoError(t, err)
	assert.Equal(t, "s3", u.Scheme)
	assert.Equal(t, "bucket/key.pcap", u.Opaque)
}

func TestParseURISchemeTooLong(t *testing.T) {
	longScheme := strings.Repeat("a", MaxSchemeLen+1)
	_, err := ParseURI(longScheme + "://rest")
	require.Error(t, err)
}

func TestParseURISchemeExactlyMax(t *testing.T) {
	scheme := strings.Repeat("a", MaxSchemeLen)
	u, err := ParseURI(scheme + "://rest")
	require.NoError(t, err)
	assert.Equal(t, scheme, u.Scheme)
}

func TestParseURIInvalidSchemeChars(t *testing.T) {
	_, err := ParseURI("9bad://rest")
	require.Error(t, err)
}

func TestUriStringRoundTrip(t *testing.T) {
	u, err := ParseURI("garland://drop-dir")
	require.NoError(t, err)
	assert.Equal(t, "garland://drop-dir", u.String())

	u2, err := ParseURI("plain/path")
	require.NoError(t, err)
	assert.Equal(t, "plain/path", u2.String())
}
