// Package packet holds the data shapes that flow between the stream parser
// and the downstream collaborators (batcher, filter stage): a single
// packet record and the predicate interface used to drop or keep one. It
// has no dependency on any other package in this module.
package packet

import "time"

// Record is one reconstructed packet. When Body is a slice into the
// chunk that was handed to the stream parser, its lifetime must not
// exceed that chunk's — callers that need to retain a Record past the
// current Feed call must copy Body themselves.
type Record struct {
	Timestamp   time.Time
	ByteOffset  uint64
	SlotID      uint8
	CapturedLen uint32
	OriginalLen uint32
	Body        []byte
}

// Predicate is a compiled filter predicate evaluated against a packet
// body. Matching packets are dropped by the FilterStage.
type Predicate interface {
	Matches(body []byte) bool
}
