// Package worker implements the IngestWorker (§4.J): the single-threaded
// state machine that drains initial files/directories, recursively expands
// scheme loaders up to a bounded inline depth, and quiesces downstream
// sessions between files under a flush-between-files policy.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/flowcap/ingest"
	"github.com/flowcap/ingest/backpressure"
	"github.com/flowcap/ingest/downstream"
	"github.com/flowcap/ingest/queue"
)

// State is the worker's position in its Priming/Draining/Quitting lifecycle.
type State int

const (
	// Priming submits the configured initial files/directories.
	Priming State = iota
	// Draining processes whatever Priming (or a recursive loader) deferred
	// to the pending queue once the inline-recursion bound was hit.
	Draining
	// Quitting waits for every downstream session to quiesce before the
	// worker returns.
	Quitting
)

func (s State) String() string {
	switch s {
	case Priming:
		return "Priming"
	case Draining:
		return "Draining"
	case Quitting:
		return "Quitting"
	default:
		return "Unknown"
	}
}

// quiescePoll is the fixed interval the worker re-checks SessionTracker
// counters while Quitting, matching BackpressureGate's fixed-poll idiom
// rather than a backoff.
const quiescePoll = 5 * time.Millisecond

// Worker drives one ingest run to completion. It is not safe for concurrent
// use: Submit, Run and DrainPending share an unsynchronised recursion depth
// counter, and the worker's own recursive loader calls re-enter submit from
// the same goroutine.
type Worker struct {
	cfg      ingest.Config
	registry *ingest.SchemeRegistry
	pending  *queue.Queue
	gate     *backpressure.Gate
	tracker  downstream.SessionTracker
	log      *slog.Logger

	depth int
	state State
}

// New builds a Worker. tracker may be nil, meaning quiesce is a no-op.
func New(cfg ingest.Config, registry *ingest.SchemeRegistry, pending *queue.Queue, gate *backpressure.Gate, tracker downstream.SessionTracker, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		cfg:      cfg,
		registry: registry,
		pending:  pending,
		gate:     gate,
		tracker:  tracker,
		log:      log,
	}
}

// State reports the worker's current lifecycle position.
func (w *Worker) State() State { return w.state }

// Submit is the exported form of the entry point Run uses for the initial
// file/directory list. It does not tell the worker's goroutine apart from
// a foreign one: below the depth bound it runs the load inline on the
// caller's goroutine and returns only once the loader (and any
// flush-between-files quiesce) has finished; at the bound it defers the
// item to the pending queue. Calls must not overlap with each other or
// with Run.
func (w *Worker) Submit(ctx context.Context, u ingest.Uri, flags ingest.Flags, actions *ingest.ActionSet) error {
	return w.submit(ctx, u, flags, actions)
}

// submit is also passed to scheme loaders as their ingest.SubmitFunc
// callback, so a directory loader's recursive calls re-enter here. depth
// bounds inline, depth-first recursion at cfg.MaxRecursionDepth (default
// 20): the 21st nested call is deferred to the FIFO instead of growing the
// call stack further (§4.J, §9). DrainPending runs a deferred item at
// depth zero, so that item's own nested submissions run inline again: a
// chain of 25 nested sub-URIs runs 0-19 inline, defers 20, and runs 20-24
// inline once the queue is drained.
func (w *Worker) submit(ctx context.Context, u ingest.Uri, flags ingest.Flags, actions *ingest.ActionSet) error {
	if w.depth < w.cfg.MaxRecursionDepth {
		w.depth++
		defer func() { w.depth-- }()
		return w.loadNow(ctx, u, flags, actions)
	}
	w.pending.Push(u, flags, actions)
	return nil
}

// loadNow resolves u's scheme and runs its loader synchronously, applying
// the backpressure gate first and, if configured, quiescing downstream
// sessions once the loader returns.
func (w *Worker) loadNow(ctx context.Context, u ingest.Uri, flags ingest.Flags, actions *ingest.ActionSet) error {
	if w.gate != nil {
		if err := w.gate.Wait(ctx); err != nil {
			return err
		}
	}

	info, err := w.registry.Resolve(u)
	if err != nil {
		return w.handleError(u.Raw, err)
	}

	if err := info.Load(ctx, w.submit, u, flags, actions); err != nil {
		wrapped := ingest.NewError(ingest.LoaderFailure, u.Raw, !w.cfg.TolerateErrors, err)
		return w.handleError(u.Raw, wrapped)
	}

	if w.cfg.FlushBetweenFiles {
		return w.quiesce(ctx)
	}
	return nil
}

// handleError applies the tolerate-errors policy uniformly: a non-fatal
// *ingest.Error is logged and swallowed, a fatal one (or any error that
// isn't an *ingest.Error) propagates.
func (w *Worker) handleError(uriRaw string, err error) error {
	if err == nil {
		return nil
	}
	if ierr, ok := err.(*ingest.Error); ok && !ierr.Fatal {
		w.log.Warn("tolerated ingest error", "uri", uriRaw, "kind", ierr.Kind, "err", ierr.Err)
		return nil
	}
	return err
}

// DrainPending processes every item currently buffered in the pending
// queue (the Draining state), returning once it empties or ctx is done.
// It does not block waiting for new items — a monitor-mode producer keeps
// calling Submit/Push on its own schedule.
func (w *Worker) DrainPending(ctx context.Context) error {
	w.state = Draining
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		item, ok := w.pending.TryPop()
		if !ok {
			return nil
		}
		err := w.loadNow(ctx, item.URI, item.Flags, item.Actions)
		item.Actions.Release()
		if err != nil {
			return err
		}
	}
}

// Run drives Priming (initial files and directories), then Draining
// (anything deferred), then Quitting (session quiesce + flush). Each
// initial entry resolves its scheme loader from its own URI prefix
// (default "file") via the registry passed to New.
func (w *Worker) Run(ctx context.Context) error {
	w.state = Priming
	for _, raw := range w.cfg.InitialFiles {
		u, err := ingest.ParseURI(raw)
		if err != nil {
			if err := w.handleError(raw, ingest.NewError(ingest.UnknownScheme, raw, true, err)); err != nil {
				return err
			}
			continue
		}
		if err := w.submit(ctx, u, w.initialFlags(), nil); err != nil {
			return err
		}
	}
	for _, raw := range w.cfg.InitialDirs {
		u, err := ingest.ParseURI(raw)
		if err != nil {
			if err := w.handleError(raw, ingest.NewError(ingest.UnknownScheme, raw, true, err)); err != nil {
				return err
			}
			continue
		}
		if err := w.submit(ctx, u, w.initialFlags()|ingest.DirHint, nil); err != nil {
			return err
		}
	}

	if err := w.DrainPending(ctx); err != nil {
		return err
	}

	w.state = Quitting
	return w.quiesce(ctx)
}

func (w *Worker) initialFlags() ingest.Flags {
	var f ingest.Flags
	if w.cfg.Monitor {
		f = f.With(ingest.Monitor)
	}
	if w.cfg.Recursive {
		f = f.With(ingest.Recursive)
	}
	if w.cfg.SkipProcessed {
		f = f.With(ingest.SkipProcessed)
	}
	if w.cfg.DeleteAfter {
		f = f.With(ingest.DeleteAfter)
	}
	return f
}

// quiesce blocks until every SessionTracker counter reaches zero, then
// flushes. A nil tracker means there is nothing to quiesce against.
func (w *Worker) quiesce(ctx context.Context) error {
	if w.tracker == nil {
		return nil
	}
	for {
		if w.tracker.PendingCommands() == 0 &&
			w.tracker.PendingCloses() == 0 &&
			w.tracker.OutstandingPackets() == 0 &&
			w.tracker.ActiveMonitors() == 0 {
			return w.tracker.Flush(ctx)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(quiescePoll):
		}
	}
}
