// Package filterstage implements the optional per-slot link-layer-level
// drop filter applied before a packet reaches the batcher (§4.H).
package filterstage

import (
	"sync/atomic"

	"github.com/flowcap/ingest/packet"
)

// Stage wraps a compiled predicate. A nil *Stage or a Stage with a nil
// predicate passes every packet through unfiltered.
type Stage struct {
	pred    packet.Predicate
	dropped atomic.Uint64
	passed  atomic.Uint64
}

// New wraps pred in a Stage. pred may be nil, meaning "no filter".
func New(pred packet.Predicate) *Stage {
	return &Stage{pred: pred}
}

// Apply evaluates body against the stage's predicate. It returns true if
// the packet should be dropped.
func (s *Stage) Apply(body []byte) bool {
	if s == nil || s.pred == nil {
		return false
	}
	if s.pred.Matches(body) {
		s.dropped.Add(1)
		return true
	}
	s.passed.Add(1)
	return false
}

// Dropped reports how many packets this stage has dropped.
func (s *Stage) Dropped() uint64 {
	if s == nil {
		return 0
	}
	return s.dropped.Load()
}

// Passed reports how many packets this stage has passed through.
func (s *Stage) Passed() uint64 {
	if s == nil {
		return 0
	}
	return s.passed.Load()
}
