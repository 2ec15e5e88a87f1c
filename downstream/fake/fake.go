// Package fake provides minimal in-repo test doubles for the external
// collaborators the ingest core depends on through narrow interfaces
// (github.com/flowcap/ingest/downstream). They exist only to make the core
// testable without a real packet-processing pipeline, disk writer, index
// client, or BPF engine.
package fake

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"

	"github.com/flowcap/ingest/packet"
	"golang.org/x/sync/errgroup"
)

// Batcher is a fake downstream.Batcher. Submit records each packet
// synchronously on the caller's goroutine; only DrainConcurrently fans
// records out to a pool of goroutines run under an errgroup, mirroring the
// fan-out idiom the teacher uses for parallel backend fan-out
// (backend/drive/metadata.go, backend/raid3).
type Batcher struct {
	mu       sync.Mutex
	received []packet.Record
	eof      []uint8
	inFlight atomic.Int64
	depth    atomic.Int64
}

// NewBatcher returns an empty Batcher. It starts no goroutines.
func NewBatcher() *Batcher {
	return &Batcher{}
}

// Submit records rec and immediately "processes" it — this fake has no
// latency to model, only depth accounting for BackpressureGate tests.
func (b *Batcher) Submit(rec packet.Record) error {
	b.depth.Add(1)
	defer b.depth.Add(-1)
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := rec
	cp.Body = append([]byte(nil), rec.Body...)
	b.received = append(b.received, cp)
	return nil
}

// EndOfFile records the end-of-file marker for slotID.
func (b *Batcher) EndOfFile(slotID uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.eof = append(b.eof, slotID)
	return nil
}

// Depth implements downstream.Batcher.
func (b *Batcher) Depth() int { return int(b.depth.Load()) }

// Records returns a snapshot of everything submitted so far.
func (b *Batcher) Records() []packet.Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]packet.Record(nil), b.received...)
}

// EndOfFiles returns every slot id that received an end-of-file marker.
func (b *Batcher) EndOfFiles() []uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]uint8(nil), b.eof...)
}

// DrainConcurrently re-submits a batch of records through n concurrent
// workers, used by tests that want to exercise the Batcher under
// concurrent load the way a real packet-processing pipeline would see it.
func (b *Batcher) DrainConcurrently(ctx context.Context, recs []packet.Record, workers int) error {
	g, ctx := errgroup.WithContext(ctx)
	ch := make(chan packet.Record)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case rec, ok := <-ch:
					if !ok {
						return nil
					}
					if err := b.Submit(rec); err != nil {
						return err
					}
				}
			}
		})
	}
	for _, r := range recs {
		ch <- r
	}
	close(ch)
	return g.Wait()
}

// SessionTracker is a fake downstream.SessionTracker whose counters can be
// poked directly by a test to simulate outstanding work.
type SessionTracker struct {
	Commands  atomic.Int64
	Closes    atomic.Int64
	Packets   atomic.Int64
	Monitors  atomic.Int64
	flushed   atomic.Int64
}

func (s *SessionTracker) Flush(ctx context.Context) error {
	s.flushed.Add(1)
	return nil
}
func (s *SessionTracker) PendingCommands() int    { return int(s.Commands.Load()) }
func (s *SessionTracker) PendingCloses() int      { return int(s.Closes.Load()) }
func (s *SessionTracker) OutstandingPackets() int { return int(s.Packets.Load()) }
func (s *SessionTracker) ActiveMonitors() int     { return int(s.Monitors.Load()) }
func (s *SessionTracker) Flushed() int64          { return s.flushed.Load() }

// QueueDepth is a fake downstream.DiskWriter / downstream.IndexClient whose
// depth can be set directly by a test.
type QueueDepth struct {
	depth atomic.Int64
}

func (q *QueueDepth) SetDepth(n int) { q.depth.Store(int64(n)) }
func (q *QueueDepth) Depth() int     { return int(q.depth.Load()) }

// BpfCompiler is a fake downstream.BpfCompiler. It does not implement real
// BPF — a real implementation needs either libpcap (cgo) or a from-scratch
// filter grammar, neither of which is available in this module's
// dependency set (see DESIGN.md). It supports exactly one expression
// syntax: "contains:<literal>", which drops packets whose body contains
// <literal>. Anything else fails to compile.
type BpfCompiler struct{}

type literalPredicate struct{ needle []byte }

func (p literalPredicate) Matches(body []byte) bool {
	return bytes.Contains(body, p.needle)
}

func (BpfCompiler) Compile(expr string, dlt uint32) (packet.Predicate, error) {
	const prefix = "contains:"
	if len(expr) <= len(prefix) || expr[:len(prefix)] != prefix {
		return nil, errBpfUnsupported{expr}
	}
	return literalPredicate{needle: []byte(expr[len(prefix):])}, nil
}

type errBpfUnsupported struct{ expr string }

func (e errBpfUnsupported) Error() string {
	return "fake bpf compiler: unsupported expression " + e.expr
}
