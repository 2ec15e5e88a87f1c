// Package downstream defines the narrow interfaces the ingest core uses to
// talk to its external collaborators (§1): the packet batcher, the session
// tracker, the disk writer, the index client, and the BPF-filter compiler.
// All five are black boxes per the design — the core only calls them and
// observes queue depths. This package ships no production implementation,
// only the interfaces and (in the fake* subpackages) minimal test doubles.
package downstream

import (
	"context"

	"github.com/flowcap/ingest/packet"
)

// Batcher accumulates packet records per slot and forwards them to the
// packet-processing pipeline.
type Batcher interface {
	Submit(rec packet.Record) error
	// EndOfFile signals that no further records will arrive for slotID,
	// letting the batcher finalise its per-file buffers.
	EndOfFile(slotID uint8) error
	// Depth reports the number of records currently queued downstream of
	// the batcher, for BackpressureGate's "in-flight packets" watermark.
	Depth() int
}

// SessionTracker is the session subsystem the worker quiesces against
// under a flush-between-files policy (§4.J).
type SessionTracker interface {
	Flush(ctx context.Context) error
	PendingCommands() int
	PendingCloses() int
	OutstandingPackets() int
	ActiveMonitors() int
}

// DiskWriter is polled only for its queue depth.
type DiskWriter interface {
	Depth() int
}

// IndexClient is polled only for its queue depth.
type IndexClient interface {
	Depth() int
}

// BpfCompiler compiles an operator-supplied filter expression against a
// declared link-layer type.
type BpfCompiler interface {
	Compile(expr string, dlt uint32) (packet.Predicate, error)
}
