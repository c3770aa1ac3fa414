// Package logbuf keeps the bounded history of user-facing run messages.
package logbuf

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of entries kept when no capacity is given.
const DefaultCapacity = 1000

// TimeLayout renders entry timestamps. It is a fixed English layout so the
// output does not change with the host locale.
const TimeLayout = "01/02/2006, 3:04:05 PM"

// Entry is one timestamped message.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// String formats the entry as "[timestamp] message".
func (e Entry) String() string {
	return "[" + e.Timestamp.Format(TimeLayout) + "] " + e.Message
}

// Buffer is a fixed-capacity ring of entries. When full, appending evicts the
// oldest entry. It is safe for concurrent use and never blocks on I/O.
type Buffer struct {
	mu       sync.Mutex
	capacity int
	ring     []Entry
	head     int // index of the oldest entry
	size     int
	now      func() time.Time
}

// New constructs a Buffer holding at most capacity entries.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		capacity: capacity,
		ring:     make([]Entry, capacity),
		now:      time.Now,
	}
}

// Append records message with the current wall-clock time and returns the
// stored entry.
func (b *Buffer) Append(message string) Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := Entry{Timestamp: b.now(), Message: message}
	if b.size == b.capacity {
		b.ring[b.head] = e
		b.head = (b.head + 1) % b.capacity
		return e
	}
	b.ring[(b.head+b.size)%b.capacity] = e
	b.size++
	return e
}

// Clear drops every entry.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.ring {
		b.ring[i] = Entry{}
	}
	b.head = 0
	b.size = 0
}

// Entries returns the buffered entries oldest first.
func (b *Buffer) Entries() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.ring[(b.head+i)%b.capacity]
	}
	return out
}

// Len reports the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Capacity reports the maximum number of entries.
func (b *Buffer) Capacity() int {
	return b.capacity
}
