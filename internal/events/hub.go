package events

import (
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/models"
)

// Subscriber receives live entries from one log. Delivery is non-blocking: a
// subscriber whose channel is full misses the entry and is expected to
// recover by replaying from its last seen cursor.
type Subscriber struct {
	C     chan BufferedEvent
	runID string // empty = global log
}

// Hub owns the global event log and the per-run logs, and fans live entries
// out to SSE/WebSocket subscribers. All appends go through the hub so buffer
// writes and fan-out stay consistent.
type Hub struct {
	mu          sync.RWMutex
	global      *Buffer
	runs        map[string]*Buffer
	subscribers map[*Subscriber]struct{}
	runCapacity int
	logger      arbor.ILogger
}

// NewHub creates the event hub with the configured buffer capacities
func NewHub(globalCapacity, runCapacity int, logger arbor.ILogger) *Hub {
	return &Hub{
		global:      NewBuffer(globalCapacity),
		runs:        make(map[string]*Buffer),
		subscribers: make(map[*Subscriber]struct{}),
		runCapacity: runCapacity,
		logger:      logger,
	}
}

// RunBuffer returns the event log for a run, creating it on first use
func (h *Hub) RunBuffer(runID string) *Buffer {
	h.mu.RLock()
	buf, ok := h.runs[runID]
	h.mu.RUnlock()
	if ok {
		return buf
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if buf, ok = h.runs[runID]; ok {
		return buf
	}
	buf = NewBuffer(h.runCapacity)
	h.runs[runID] = buf
	return buf
}

// GlobalBuffer returns the system-wide event log
func (h *Hub) GlobalBuffer() *Buffer {
	return h.global
}

// PublishRun appends an event to a run's log and delivers it to that run's
// live subscribers.
func (h *Hub) PublishRun(runID string, event models.RunEvent) BufferedEvent {
	entry := h.RunBuffer(runID).Append(event)
	h.deliver(runID, entry)
	return entry
}

// PublishGlobal appends an event to the global log and delivers it to global
// subscribers.
func (h *Hub) PublishGlobal(event models.RunEvent) BufferedEvent {
	entry := h.global.Append(event)
	h.deliver("", entry)
	return entry
}

// Subscribe registers a live listener for one run's log (or the global log
// when runID is empty). The returned subscriber must be released with
// Unsubscribe when the client disconnects.
func (h *Hub) Subscribe(runID string, bufferSize int) *Subscriber {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	sub := &Subscriber{
		C:     make(chan BufferedEvent, bufferSize),
		runID: runID,
	}

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

// Unsubscribe removes a live listener
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	delete(h.subscribers, sub)
	h.mu.Unlock()
}

// deliver fans an entry out to matching subscribers without blocking
func (h *Hub) deliver(runID string, entry BufferedEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers {
		if sub.runID != runID {
			continue
		}
		select {
		case sub.C <- entry:
		default:
			// Buffer full, subscriber recovers via cursor replay
		}
	}
}
