package realtime

import (
	"sync"
	"time"

	"ryver/pkg/protocol"
)

// ackResult is delivered on a pending entry's completion channel, carrying
// either the matching ack frame or the failure that resolved the entry.
type ackResult struct {
	ack *protocol.Ack
	err error
}

type pendingEntry struct {
	createdAt time.Time
	done      chan ackResult // buffered, written at most once
}

// pendingTracker correlates outbound frames with their eventual ack frames by
// correlation ID. An entry is removed from the table at the moment it is
// resolved, so each completion channel receives exactly one result.
type pendingTracker struct {
	mu      sync.Mutex
	entries map[string]pendingEntry
}

func newPendingTracker() *pendingTracker {
	return &pendingTracker{entries: make(map[string]pendingEntry)}
}

// register creates a pending entry for the given correlation ID and returns
// its completion channel. Registering an ID that is already in flight fails
// with ErrDuplicateID.
func (t *pendingTracker) register(id string) (<-chan ackResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[id]; exists {
		return nil, ErrDuplicateID
	}
	entry := pendingEntry{createdAt: time.Now(), done: make(chan ackResult, 1)}
	t.entries[id] = entry
	return entry.done, nil
}

// resolve completes the entry for the given correlation ID with an ack frame
// and removes it. It reports whether an entry existed; a late or duplicate
// ack resolves nothing.
func (t *pendingTracker) resolve(id string, ack *protocol.Ack) bool {
	t.mu.Lock()
	entry, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	entry.done <- ackResult{ack: ack}
	return true
}

// remove drops the entry for the given correlation ID without resolving it.
// Used by the caller that owns the entry when its wait times out or is
// cancelled.
func (t *pendingTracker) remove(id string) {
	t.mu.Lock()
	delete(t.entries, id)
	t.mu.Unlock()
}

// failAll resolves every outstanding entry with the given error and clears
// the table. Called on disconnect and close so no waiter blocks forever.
func (t *pendingTracker) failAll(err error) {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[string]pendingEntry)
	t.mu.Unlock()

	for _, entry := range entries {
		entry.done <- ackResult{err: err}
	}
}

// size returns the number of outstanding entries.
func (t *pendingTracker) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
