package garland

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnwrapStripsHeader(t *testing.T) {
	body := make([]byte, 0, MinLen+5)
	body = append(body, make([]byte, StripLen)...)
	body = append(body, []byte("frame")...)

	out, err := Unwrap(body)
	require.NoError(t, err)
	assert.Equal(t, []byte("frame"), out)
}

func TestUnwrapRejectsShortFrame(t *testing.T) {
	_, err := Unwrap(make([]byte, MinLen-1))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestUnwrapAcceptsExactlyMinLen(t *testing.T) {
	out, err := Unwrap(make([]byte, MinLen))
	require.NoError(t, err)
	assert.Len(t, out, MinLen-StripLen)
}

func TestMatchesEthertypeDetectsMatch(t *testing.T) {
	frame := make([]byte, 14)
	frame[12], frame[13] = 0xFF, 0x12
	assert.True(t, MatchesEthertype(frame, 0xFF12))
}

func TestMatchesEthertypeRejectsMismatch(t *testing.T) {
	frame := make([]byte, 14)
	frame[12], frame[13] = 0x08, 0x00
	assert.False(t, MatchesEthertype(frame, 0xFF12))
}

func TestMatchesEthertypeRejectsShortFrame(t *testing.T) {
	assert.False(t, MatchesEthertype(make([]byte, 10), 0xFF12))
}

func TestMatchesEthertypeDisabledWhenZero(t *testing.T) {
	frame := make([]byte, 14)
	assert.False(t, MatchesEthertype(frame, 0))
}
