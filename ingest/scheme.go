package ingest

import (
	"context"
	"fmt"
	"sync"
)

// SubmitFunc is the recursive-enqueue entry point a loader calls when it
// discovers further sub-URIs (e.g. a directory loader yielding files). It
// is implemented by the IngestWorker; schemes never import the worker
// package directly, they are just handed one of these.
type SubmitFunc func(ctx context.Context, u Uri, flags Flags, actions *ActionSet) error

// LoadFunc is a scheme's loader entry point.
type LoadFunc func(ctx context.Context, submit SubmitFunc, u Uri, flags Flags, actions *ActionSet) error

// ExitFunc is called once at process shutdown, in registration order. Not
// in the hot path.
type ExitFunc func()

// RegInfo describes one registered scheme.
type RegInfo struct {
	Name string
	Load LoadFunc
	Exit ExitFunc
}

// SchemeRegistry maps scheme names to loaders. Registered once per name at
// init time, then read-only for the lifetime of the process (§5).
type SchemeRegistry struct {
	mu      sync.RWMutex
	schemes map[string]*RegInfo
	order   []string
}

// NewSchemeRegistry returns an empty registry.
func NewSchemeRegistry() *SchemeRegistry {
	return &SchemeRegistry{schemes: make(map[string]*RegInfo)}
}

// Register adds a scheme. Duplicate registration of the same name is a
// programmer error and returns an error rather than panicking, so callers
// can surface it through a fallible constructor (§9 "global exception-style
// failure").
func (r *SchemeRegistry) Register(info *RegInfo) error {
	if info == nil || info.Name == "" {
		return fmt.Errorf("ingest: scheme registration requires a name")
	}
	if info.Load == nil {
		return fmt.Errorf("ingest: scheme %q registered without a loader", info.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.schemes[info.Name]; dup {
		return fmt.Errorf("ingest: scheme %q already registered", info.Name)
	}
	r.schemes[info.Name] = info
	r.order = append(r.order, info.Name)
	return nil
}

// Resolve maps a URI to its scheme's RegInfo. A URI with no "scheme://"
// prefix resolves to the default "file" scheme.
func (r *SchemeRegistry) Resolve(u Uri) (*RegInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.schemes[u.Scheme]
	if !ok {
		return nil, NewError(UnknownScheme, u.String(), false, fmt.Errorf("no loader registered for scheme %q", u.Scheme))
	}
	return info, nil
}

// Shutdown calls every registered scheme's Exit hook, in registration
// order. Not in the hot path — reserved for process shutdown.
func (r *SchemeRegistry) Shutdown() {
	r.mu.RLock()
	order := append([]string(nil), r.order...)
	schemes := r.schemes
	r.mu.RUnlock()
	for _, name := range order {
		if info := schemes[name]; info != nil && info.Exit != nil {
			info.Exit()
		}
	}
}
