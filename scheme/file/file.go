// Package file implements the default "file" scheme loader (§4.A): reading
// individual local capture files, expanding directories (optionally
// recursively), and optionally polling a directory for newly-arrived files
// under Flags.Monitor. Grounded on backend/local/local.go's directory
// listing idiom (os.Open + Readdirnames, deterministic order, Lstat per
// entry) adapted from a generic filesystem backend to a one-shot capture
// file reader.
package file

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/flowcap/ingest"
	"github.com/flowcap/ingest/pcapformat"
)

// chunkSize is the read buffer size fed to the StreamParser per Feed call.
// It has no relationship to MaxCapturedLen; the parser buffers across
// chunk boundaries regardless of how the caller slices the stream (§8
// invariant 1).
const chunkSize = 64 * 1024

// monitorPollInterval is how often a Flags.Monitor directory is re-listed.
const monitorPollInterval = 2 * time.Second

// DepsFactory builds the pcapformat.Deps for one file, given its URI —
// callers typically close over shared Slots/Rules/Batcher/Bpf instances
// and only vary BpfExpr or logging fields per call.
type DepsFactory func(u ingest.Uri) pcapformat.Deps

// Loader is the default "file" scheme's Load/Exit pair. It is also reused
// by scheme/garland under a different schemeName, so every FileSlot it
// creates records the scheme it was actually reached through rather than
// the literal string "file" (§4.C FileSlot.SchemeName).
type Loader struct {
	deps       DepsFactory
	opts       pcapformat.Options
	log        *slog.Logger
	schemeName string

	mu        sync.Mutex
	processed map[string]bool // absolute path -> ingested, for SkipProcessed
}

// New builds a Loader registered under schemeName (typically
// ingest.DefaultScheme). opts carries the TolerateErrors/AllowTruncated
// policy applied to every file this loader streams.
func New(deps DepsFactory, opts pcapformat.Options, log *slog.Logger, schemeName string) *Loader {
	if log == nil {
		log = slog.Default()
	}
	if schemeName == "" {
		schemeName = ingest.DefaultScheme
	}
	return &Loader{deps: deps, opts: opts, log: log, schemeName: schemeName, processed: make(map[string]bool)}
}

// RegInfo returns the ingest.RegInfo to register this loader under its
// schemeName.
func (l *Loader) RegInfo() *ingest.RegInfo {
	return &ingest.RegInfo{Name: l.schemeName, Load: l.Load, Exit: l.Exit}
}

// Exit is a no-op: the file loader holds no resources across calls besides
// the in-memory processed set, which needs no teardown.
func (l *Loader) Exit() {}

// Load implements ingest.LoadFunc for the "file" scheme.
func (l *Loader) Load(ctx context.Context, submit ingest.SubmitFunc, u ingest.Uri, flags ingest.Flags, actions *ingest.ActionSet) error {
	path := u.Opaque

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if info.IsDir() || flags.Has(ingest.DirHint) {
		return l.loadDir(ctx, submit, path, flags, actions)
	}
	return l.loadFile(ctx, u, path, flags, actions)
}

func (l *Loader) loadDir(ctx context.Context, submit ingest.SubmitFunc, dir string, flags ingest.Flags, actions *ingest.ActionSet) error {
	if err := l.listOnce(ctx, submit, dir, flags, actions); err != nil {
		return err
	}
	if !flags.Has(ingest.Monitor) {
		return nil
	}
	ticker := time.NewTicker(monitorPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := l.listOnce(ctx, submit, dir, flags, actions); err != nil {
				l.log.Warn("monitor re-list failed", "dir", dir, "err", err)
			}
		}
	}
}

// listOnce lists dir, submitting every non-directory entry in
// deterministic (sorted) order under this loader's scheme, skipping
// already-processed files only when Flags.SkipProcessed is set and
// recursing into subdirectories only when Flags.Recursive is set.
func (l *Loader) listOnce(ctx context.Context, submit ingest.SubmitFunc, dir string, flags ingest.Flags, actions *ingest.ActionSet) error {
	fd, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer fd.Close()

	names, err := fd.Readdirnames(-1)
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		full := filepath.Join(dir, name)
		fi, err := os.Lstat(full)
		if err != nil {
			l.log.Warn("skipping unreadable directory entry", "path", full, "err", err)
			continue
		}
		if fi.IsDir() {
			if flags.Has(ingest.Recursive) {
				if err := submit(ctx, ingest.Uri{Raw: full, Scheme: l.schemeName, Opaque: full}, flags, actions); err != nil {
					return err
				}
			}
			continue
		}
		if l.alreadyProcessed(full) && flags.Has(ingest.SkipProcessed) {
			continue
		}
		childFlags := flags.Without(ingest.DirHint)
		if err := submit(ctx, ingest.Uri{Raw: full, Scheme: l.schemeName, Opaque: full}, childFlags, actions); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) loadFile(ctx context.Context, u ingest.Uri, path string, flags ingest.Flags, actions *ingest.ActionSet) error {
	if flags.Has(ingest.SkipProcessed) && l.alreadyProcessed(path) {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	p := pcapformat.New(u.Raw, "", l.schemeName, actions, l.opts, l.deps(u))
	buf := make([]byte, chunkSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := f.Read(buf)
		if n > 0 {
			if ferr := p.Feed(ctx, buf[:n]); ferr != nil {
				return ferr
			}
			if p.Abandoned() {
				break
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	if err := p.Finish(); err != nil {
		return err
	}

	l.markProcessed(path)
	if flags.Has(ingest.DeleteAfter) {
		if err := os.Remove(path); err != nil {
			l.log.Warn("delete-after-ingest failed", "path", path, "err", err)
		}
	}
	return nil
}

func (l *Loader) alreadyProcessed(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.processed[path]
}

func (l *Loader) markProcessed(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.processed[path] = true
}
