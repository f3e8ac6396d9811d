package queue

import (
	"sync"
)

// Queue is a generic thread-safe FIFO. When a capacity is set, pushing onto a
// full queue discards the oldest item.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	dropped  uint64
	ready    chan struct{}
}

// New creates a new empty queue. A capacity <= 0 means unbounded.
func New[T any](capacity int) *Queue[T] {
	return &Queue[T]{
		items:    make([]T, 0),
		capacity: capacity,
		ready:    make(chan struct{}, 1),
	}
}

// Push appends items to the queue and returns how many older items were
// discarded to make room.
func (q *Queue[T]) Push(items ...T) int {
	q.mu.Lock()
	q.items = append(q.items, items...)
	n := 0
	if q.capacity > 0 && len(q.items) > q.capacity {
		n = len(q.items) - q.capacity
		q.items = append(q.items[:0:0], q.items[n:]...)
		q.dropped += uint64(n)
	}
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return n
}

// Ready is signalled after a Push. A single signal may cover several pushes.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// Pop removes and returns the first item. ok is false if the queue is empty.
func (q *Queue[T]) Pop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return item, false
	}
	item = q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Empty returns true if the queue has no items.
func (q *Queue[T]) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0
}

// Len returns the number of items in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns the total number of items discarded for capacity.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// GetAndEmpty returns all items and clears the queue.
func (q *Queue[T]) GetAndEmpty() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	result := q.items
	q.items = make([]T, 0, cap(q.items))
	return result
}
