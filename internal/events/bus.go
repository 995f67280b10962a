// Package events is the bounded, replayable in-memory log of reconciliation
// outcomes read by dashboards through a cursor.
package events

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Kind classifies an event for display
type Kind string

const (
	KindSuccess Kind = "success"
	KindAlert   Kind = "alert"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

const (
	DefaultCapacity     = 100
	DefaultSnapshotSize = 20
)

// Event is one outcome notification. Events are never modified after Append.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	UnitName  string    `json:"unitName,omitempty"`
	Details   string    `json:"details,omitempty"`
}

// Sink observes every appended event. Observe is called under the bus lock,
// so calls arrive in id order; it must not block or call back into the bus.
type Sink interface {
	Observe(Event)
}

// Bus is a fixed-capacity ring of events. Append and eviction happen in one
// critical section so readers never see a partial state.
type Bus struct {
	mu       sync.RWMutex
	ring     []Event
	head     int // index of the oldest retained event
	size     int
	snapshot int

	seq  atomic.Uint64
	now  func() time.Time
	sink Sink
}

// NewBus creates a bus retaining capacity events; ReadSince without a known
// cursor returns the snapshotSize most recent ones.
func NewBus(capacity, snapshotSize int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if snapshotSize <= 0 || snapshotSize > capacity {
		snapshotSize = min(DefaultSnapshotSize, capacity)
	}
	return &Bus{
		ring:     make([]Event, capacity),
		snapshot: snapshotSize,
		now:      time.Now,
	}
}

// SetSink registers an observer. Call before the bus is shared.
func (b *Bus) SetSink(s Sink) {
	b.sink = s
}

// Append records a new event, evicting the oldest one when full. It never
// blocks on I/O and never fails.
func (b *Bus) Append(kind Kind, title, message, unitName, details string) Event {
	b.mu.Lock()
	// id assignment under the lock keeps ring order equal to id order
	n := b.seq.Add(1)
	ts := b.now()
	ev := Event{
		ID:        fmt.Sprintf("evt-%d-%d", ts.UnixMilli(), n),
		Timestamp: ts,
		Kind:      kind,
		Title:     title,
		Message:   message,
		UnitName:  unitName,
		Details:   details,
	}

	capacity := len(b.ring)
	if b.size < capacity {
		b.ring[(b.head+b.size)%capacity] = ev
		b.size++
	} else {
		b.ring[b.head] = ev
		b.head = (b.head + 1) % capacity
	}
	if b.sink != nil {
		b.sink.Observe(ev)
	}
	b.mu.Unlock()
	return ev
}

// ReadSince returns the events strictly newer than cursor, oldest first, so
// the last element is the newest and is the next cursor. An empty or unknown
// cursor yields the most recent snapshot, also oldest first.
func (b *Bus) ReadSince(cursor string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	start := -1
	if cursor != "" {
		for i := b.size - 1; i >= 0; i-- {
			if b.at(i).ID == cursor {
				start = i + 1
				break
			}
		}
	}
	if start < 0 {
		start = max(b.size-b.snapshot, 0)
	}

	out := make([]Event, 0, b.size-start)
	for i := start; i < b.size; i++ {
		out = append(out, b.at(i))
	}
	return out
}

// at returns the i-th retained event counting from the oldest
func (b *Bus) at(i int) Event {
	return b.ring[(b.head+i)%len(b.ring)]
}

// Len returns the number of retained events
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Reset drops every retained event. Ids keep increasing afterwards.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.ring)
	b.head, b.size = 0, 0
}
