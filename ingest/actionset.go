package ingest

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// MaxActions bounds how many field=value operations a single ActionSet (and
// so a single add-file/add-dir command) may carry.
const MaxActions = 10

// ActionSet is a reference-counted, immutable-after-construction bundle of
// field-mutation operations parsed from "field=value" strings. It is
// created with one implicit reference held by the caller of ParseActionSet;
// Acquire/Release are the only mutators on a live instance.
type ActionSet struct {
	fields   map[string]string
	order    []string
	refcount atomic.Int32
}

// ParseActionSet parses up to MaxActions "field=value" strings.
func ParseActionSet(ops []string) (*ActionSet, error) {
	if len(ops) > MaxActions {
		return nil, NewError(OpParseFailure, "", false,
			fmt.Errorf("too many --op arguments: %d (max %d)", len(ops), MaxActions))
	}
	a := &ActionSet{fields: make(map[string]string, len(ops))}
	a.refcount.Store(1)
	for _, op := range ops {
		field, value, ok := strings.Cut(op, "=")
		if !ok || field == "" {
			return nil, NewError(OpParseFailure, "", false, fmt.Errorf("malformed --op %q, want field=value", op))
		}
		if _, dup := a.fields[field]; !dup {
			a.order = append(a.order, field)
		}
		a.fields[field] = value
	}
	return a, nil
}

// Acquire increments the reference count. Safe to call from any thread.
func (a *ActionSet) Acquire() {
	if a == nil {
		return
	}
	a.refcount.Add(1)
}

// Release decrements the reference count, freeing the backing fields map
// once the last reference drops.
func (a *ActionSet) Release() {
	if a == nil {
		return
	}
	if a.refcount.Add(-1) == 0 {
		a.fields = nil
		a.order = nil
	}
}

// RefCount returns the current reference count (for tests/diagnostics).
func (a *ActionSet) RefCount() int32 {
	if a == nil {
		return 0
	}
	return a.refcount.Load()
}

// Get returns the value assigned to field, if any.
func (a *ActionSet) Get(field string) (string, bool) {
	if a == nil || a.fields == nil {
		return "", false
	}
	v, ok := a.fields[field]
	return v, ok
}

// Len reports the number of distinct fields carried.
func (a *ActionSet) Len() int {
	if a == nil {
		return 0
	}
	return len(a.order)
}
