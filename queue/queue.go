package queue

import (
	"sync"
)

// Queue is a FIFO safe for one producer and one draining goroutine.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pop removes the head of the queue. ok is false when the queue is empty.
func (q *Queue[T]) Pop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return item, false
	}
	item = q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

func (q *Queue[T]) Push(items ...T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
}

func New[T any](maybeSize ...int) *Queue[T] {
	q := &Queue[T]{}
	if len(maybeSize) > 0 {
		q.items = make([]T, 0, maybeSize[0])
	}
	return q
}
