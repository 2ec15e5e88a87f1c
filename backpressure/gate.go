// Package backpressure implements BackpressureGate (§4.G): a watermark poll
// that blocks the ingest worker while downstream depth or in-flight packet
// count is too high. Unlike the teacher's lib/pacer, which backs off an
// outbound API call with exponential decay, this is a fixed-interval poll
// against local counters — there is no remote latency to model.
package backpressure

import (
	"context"
	"log/slog"
	"time"

	"github.com/flowcap/ingest/internal/ingestlog"
)

// DepthSource reports a collaborator's current queue depth. DiskWriter and
// IndexClient both satisfy this (see downstream.DiskWriter/IndexClient).
type DepthSource interface {
	Depth() int
}

// Watermarks bundles the thresholds the gate polls against (§6).
type Watermarks struct {
	DiskWriterMark int // default 10
	IndexSinkMark  int // default 30
	MaxInQueue     int // ceiling on in-flight packets
	DispatchAfter  int // headroom below MaxInQueue before the gate opens; may exceed MaxInQueue by up to 1000
}

// Gate blocks Wait callers until DiskWriter/IndexClient depth and in-flight
// packet count all clear their marks.
type Gate struct {
	marks      Watermarks
	diskWriter DepthSource
	indexSink  DepthSource
	inFlight   func() int // returns the live count of packets currently outstanding downstream
	interval   time.Duration
	log        *slog.Logger

	cycles uint64
}

// New builds a Gate. inFlight reports the live number of packets currently
// outstanding downstream of the batcher (e.g. Batcher.Depth); a nil
// diskWriter or indexSink is treated as always-clear. The in-flight mark
// itself is derived from marks.MaxInQueue - marks.DispatchAfter (§4.G,
// §9's "+1000 headroom" note), computed fresh on every Clear call so a
// caller may adjust MaxInQueue/DispatchAfter between calls.
func New(marks Watermarks, diskWriter, indexSink DepthSource, inFlight func() int, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{
		marks:      marks,
		diskWriter: diskWriter,
		indexSink:  indexSink,
		inFlight:   inFlight,
		interval:   5 * time.Millisecond,
		log:        log,
	}
}

// Clear reports whether every watermark is currently satisfied, without
// blocking. The in-flight mark (§4.G table: "max_in_queue - dispatch_after")
// is compared against the live outstanding-packet count, matching
// reader-scheme.c's "m := config.maxPacketsInQueue - offlineDispatchAfter;
// if outstanding > m" check verbatim.
func (g *Gate) Clear() bool {
	if g.diskWriter != nil && g.diskWriter.Depth() > g.marks.DiskWriterMark {
		return false
	}
	if g.indexSink != nil && g.indexSink.Depth() > g.marks.IndexSinkMark {
		return false
	}
	if g.inFlight != nil {
		mark := g.marks.MaxInQueue - g.marks.DispatchAfter
		if g.inFlight() > mark {
			return false
		}
	}
	return true
}

// everyNCycles is how often a blocked Wait logs a LevelBackpressure notice
// (between Debug and Info), so a stuck
// gate is visible without flooding the log at the poll interval.
const everyNCycles = 200 // ~1s at the default 5ms interval

// Wait blocks until Clear returns true or ctx is done, polling at a fixed
// short interval (§4.G) rather than backing off.
func (g *Gate) Wait(ctx context.Context) error {
	if g.Clear() {
		return nil
	}
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			g.cycles++
			if g.Clear() {
				return nil
			}
			if g.cycles%everyNCycles == 0 {
				g.log.Log(ctx, ingestlog.LevelBackpressure, "backpressure gate still closed", "cycles", g.cycles)
			}
		}
	}
}
