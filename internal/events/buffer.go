package events

import (
	"sync"

	"github.com/ternarybob/scribo/internal/models"
)

// BufferedEvent is one retained entry of a log. IDs start at 1, increase
// strictly, and are never reused even after the entry is trimmed, so a
// client-held cursor stays valid across eviction.
type BufferedEvent struct {
	ID    uint64          `json:"id"`
	Event models.RunEvent `json:"event"`
}

// Buffer is an append-only, capacity-bounded event log for one subject
// (a single run, or the whole system). Safe for concurrent appends and reads.
type Buffer struct {
	mu       sync.RWMutex
	nextID   uint64
	capacity int
	entries  []BufferedEvent
}

// DefaultCapacity bounds a buffer when the caller passes a non-positive size.
const DefaultCapacity = 500

// NewBuffer creates a bounded event log
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		nextID:   1,
		capacity: capacity,
		entries:  make([]BufferedEvent, 0, capacity),
	}
}

// Append assigns the next ID to the event and retains it, trimming the oldest
// entries once capacity is exceeded.
func (b *Buffer) Append(event models.RunEvent) BufferedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := BufferedEvent{ID: b.nextID, Event: event}
	b.nextID++
	b.retain(entry)
	return entry
}

// AppendWithID retains an event under an explicit ID. Used when reloading a
// persisted log so the reconstructed sequence matches what clients saw before
// the restart. IDs must be supplied in increasing order.
func (b *Buffer) AppendWithID(id uint64, event models.RunEvent) BufferedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := BufferedEvent{ID: id, Event: event}
	if id >= b.nextID {
		b.nextID = id + 1
	}
	b.retain(entry)
	return entry
}

// SetNextID forces the next assigned ID. Only moves forward.
func (b *Buffer) SetNextID(next uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if next > b.nextID {
		b.nextID = next
	}
}

// ListAfter returns the retained suffix with IDs strictly greater than cursor.
// A cursor at or below zero returns everything retained; a cursor referencing
// a trimmed ID yields whatever newer entries are still held.
func (b *Buffer) ListAfter(cursor int64) []BufferedEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.entries) == 0 {
		return nil
	}

	start := 0
	if cursor > 0 {
		// Entries are ID-ordered; find the first entry past the cursor.
		start = len(b.entries)
		for i, entry := range b.entries {
			if entry.ID > uint64(cursor) {
				start = i
				break
			}
		}
	}
	if start >= len(b.entries) {
		return nil
	}

	out := make([]BufferedEvent, len(b.entries)-start)
	copy(out, b.entries[start:])
	return out
}

// LastID returns the newest assigned ID, or 0 if nothing was appended yet
func (b *Buffer) LastID() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextID - 1
}

// Len returns the number of retained entries
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// retain appends under the held lock and trims to capacity oldest-first
func (b *Buffer) retain(entry BufferedEvent) {
	b.entries = append(b.entries, entry)
	if len(b.entries) > b.capacity {
		trim := len(b.entries) - b.capacity
		b.entries = append([]BufferedEvent(nil), b.entries[trim:]...)
	}
}
