package engine

import (
	"context"
	"sync"

	"github.com/roach88/gpsform/internal/form"
	"github.com/roach88/gpsform/internal/geo"
	"github.com/roach88/gpsform/internal/reconcile"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventSubmit resolves one form submission.
	EventSubmit EventType = iota + 1
	// EventCapture updates the held coordinates.
	EventCapture
	// EventConnectivity applies a host online/offline signal.
	EventConnectivity
	// EventSync requests a reconcile pass.
	EventSync
)

var eventTypeNames = map[EventType]string{
	EventSubmit:       "submit",
	EventCapture:      "capture",
	EventConnectivity: "connectivity",
	EventSync:         "sync",
}

// String returns the lowercase event name.
func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Event is one unit of work for the Run loop.
type Event struct {
	Type EventType

	// Location is the fix for EventCapture; nil asks the locator.
	Location *geo.Location

	// Online is the signal for EventConnectivity.
	Online bool

	ctx   context.Context
	reply chan outcome
}

// outcome is the reply to one event.
type outcome struct {
	result   form.Result
	location geo.Location
	report   reconcile.Report
	synced   bool
	err      error
}

// eventQueue is a thread-safe FIFO queue for events.
//
// The queue is unbounded; callers block on their reply, not on enqueue.
// The signal channel enables context-aware waiting in the Run loop.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // Signals event availability (buffered, size 1)
}

// newEventQueue creates an empty event queue.
func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Signal availability (non-blocking - buffer of 1 coalesces multiple signals)
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Event{}, false) if queue is empty.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Clear the slot so the backing array does not pin the event's context
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// Use with select for context-aware waiting:
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // Try TryDequeue
//	}
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Closed reports whether Close has been called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close signals that no more events will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

// Drain removes and returns every queued event.
func (q *eventQueue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.events
	q.events = nil
	return out
}
