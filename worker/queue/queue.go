package queue

import (
	"errors"
	"sync"
	"time"

	"github.com/SunilSharmaNP/fvt/worker/jobspec"
)

var (
	ErrCapacityExceeded = errors.New("queue capacity exceeded")
	ErrNotFound         = errors.New("queue entry not found")
)

type Entry struct {
	Ref     jobspec.InputRef `json:"ref"`
	AddedAt time.Time        `json:"added_at"`
}

// Queue holds each requester's pending inputs in insertion order. The
// insertion order is the declared merge order. One mutex guards all
// requesters; operations are short and contention is low.
type Queue struct {
	mu     sync.Mutex
	maxLen int
	items  map[int64][]Entry
}

func New(maxLen int) *Queue {
	if maxLen <= 0 {
		maxLen = 10
	}
	return &Queue{
		maxLen: maxLen,
		items:  make(map[int64][]Entry),
	}
}

// Enqueue appends a reference and returns its position (0-based).
func (q *Queue) Enqueue(requesterID int64, ref jobspec.InputRef) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := q.items[requesterID]
	if len(entries) >= q.maxLen {
		return 0, ErrCapacityExceeded
	}
	q.items[requesterID] = append(entries, Entry{Ref: ref, AddedAt: time.Now()})
	return len(entries), nil
}

// DequeueAll removes and returns the requester's entire queue in
// order. Subsequent enqueues start a fresh queue.
func (q *Queue) DequeueAll(requesterID int64) []jobspec.InputRef {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := q.items[requesterID]
	if len(entries) == 0 {
		return nil
	}
	delete(q.items, requesterID)

	refs := make([]jobspec.InputRef, len(entries))
	for i, e := range entries {
		refs[i] = e.Ref
	}
	return refs
}

// Remove deletes the entry at index, preserving the order of the rest.
func (q *Queue) Remove(requesterID int64, index int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := q.items[requesterID]
	if index < 0 || index >= len(entries) {
		return ErrNotFound
	}
	entries = append(entries[:index], entries[index+1:]...)
	if len(entries) == 0 {
		delete(q.items, requesterID)
	} else {
		q.items[requesterID] = entries
	}
	return nil
}

// Clear empties the requester's queue without consuming it and
// returns how many entries were dropped.
func (q *Queue) Clear(requesterID int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items[requesterID])
	delete(q.items, requesterID)
	return n
}

func (q *Queue) Len(requesterID int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items[requesterID])
}

// Snapshot returns a copy of the requester's entries for display.
func (q *Queue) Snapshot(requesterID int64) []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := q.items[requesterID]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}
