// Package collection provides utility data structures.
package collection

import (
	"container/list"
)

// Queue is a FIFO queue. Pushing during Iter is allowed, which makes it
// usable as a worklist for fixed-point computations.
type Queue[T any] struct {
	data list.List
}

func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{}
}

func (q *Queue[T]) Push(v T) {
	q.data.PushBack(v)
}

func (q *Queue[T]) PushAll(vs ...T) {
	for _, v := range vs {
		q.data.PushBack(v)
	}
}

func (q *Queue[T]) Pop() T {
	e := q.data.Front()
	if e == nil {
		var zero T
		return zero
	}

	q.data.Remove(e)
	return e.Value.(T)
}

func (q *Queue[T]) Peek() T {
	e := q.data.Front()
	if e == nil {
		var zero T
		return zero
	}

	return e.Value.(T)
}

func (q *Queue[T]) Len() int {
	return q.data.Len()
}

// Iter drains the queue front to back, yielding each element after
// removing it. Elements pushed while iterating are yielded too.
func (q *Queue[T]) Iter(yield func(T) bool) {
	for e := q.data.Front(); e != nil; e = q.data.Front() {
		q.data.Remove(e)

		if !yield(e.Value.(T)) {
			break
		}
	}
}
