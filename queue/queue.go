// Package queue implements the PendingQueue (§4.I): a mutex+condvar-guarded
// FIFO of deferred ingest submissions, used by the worker whenever a
// recursive submission exceeds the inline-execution depth bound (§4.J, §9).
package queue

import (
	"sync"

	"github.com/flowcap/ingest"
	"github.com/google/uuid"
)

// PendingItem is one deferred submission awaiting pickup by the worker's
// drain loop. TraceID correlates it across logs the way the teacher
// correlates a transfer across its accounting and log output.
type PendingItem struct {
	TraceID string
	URI     ingest.Uri
	Flags   ingest.Flags
	Actions *ingest.ActionSet
}

// Queue is a FIFO of PendingItems. A zero Queue is not usable; use New.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []PendingItem
	closed bool
}

// New returns an empty, open Queue.
func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends uri/flags/actions as a new PendingItem and returns it,
// acquiring a reference on actions on the queue's behalf — the eventual
// Pop caller is responsible for releasing it. actions may be nil.
func (q *Queue) Push(u ingest.Uri, flags ingest.Flags, actions *ingest.ActionSet) PendingItem {
	actions.Acquire()
	item := PendingItem{
		TraceID: uuid.NewString(),
		URI:     u,
		Flags:   flags,
		Actions: actions,
	}
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.cond.Signal()
	return item
}

// Pop blocks until an item is available or the queue is closed, in which
// case ok is false. It never returns a zero-value item with ok true.
func (q *Queue) Pop() (item PendingItem, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return PendingItem{}, false
	}
	item = q.items[0]
	q.items = q.items[1:]
	return item, true
}

// TryPop returns the head item without blocking, or ok=false if the queue
// is currently empty.
func (q *Queue) TryPop() (item PendingItem, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return PendingItem{}, false
	}
	item = q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Len reports the number of items currently buffered.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close marks the queue closed and wakes every blocked Pop, which then
// returns ok=false once drained. Close does not discard buffered items —
// callers should drain with TryPop first if they need to release actions.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
