package filterstage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type literalPredicate struct{ needle []byte }

func (p literalPredicate) Matches(body []byte) bool {
	for i := 0; i+len(p.needle) <= len(body); i++ {
		if string(body[i:i+len(p.needle)]) == string(p.needle) {
			return true
		}
	}
	return false
}

func TestNilStagePassesEverything(t *testing.T) {
	var s *Stage
	assert.False(t, s.Apply([]byte("anything")))
	assert.Equal(t, uint64(0), s.Dropped())
}

func TestStageDropsMatches(t *testing.T) {
	s := New(literalPredicate{needle: []byte("bad")})
	assert.True(t, s.Apply([]byte("this is bad")))
	assert.False(t, s.Apply([]byte("this is fine")))
	assert.Equal(t, uint64(1), s.Dropped())
	assert.Equal(t, uint64(1), s.Passed())
}
