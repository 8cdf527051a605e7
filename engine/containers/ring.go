package containers

import "github.com/cockroachdb/errors"

// Ring is a fixed-size circular sequence. Unlike a queue it never fills up: Advance
// simply moves the cursor to the next slot, wrapping at the end.
type Ring[T any] struct {
	data   []T
	cursor int
}

// NewRing creates a Ring holding the given elements in order; the cursor starts at 0.
func NewRing[T any](elements ...T) (*Ring[T], error) {
	if len(elements) == 0 {
		return nil, errors.New("ring must hold at least one element")
	}
	data := make([]T, len(elements))
	copy(data, elements)
	return &Ring[T]{data: data}, nil
}

// Advance moves the cursor forward by one slot and returns the new current element.
func (r *Ring[T]) Advance() T {
	r.cursor = (r.cursor + 1) % len(r.data)
	return r.data[r.cursor]
}

// Current returns the element under the cursor.
func (r *Ring[T]) Current() T {
	return r.data[r.cursor]
}

// Index returns the cursor position.
func (r *Ring[T]) Index() int {
	return r.cursor
}

// Seek places the cursor at i modulo the ring size.
func (r *Ring[T]) Seek(i int) T {
	r.cursor = ((i % len(r.data)) + len(r.data)) % len(r.data)
	return r.data[r.cursor]
}

// At returns the i-th element regardless of the cursor.
func (r *Ring[T]) At(i int) T {
	return r.data[i]
}

// Len returns the number of slots.
func (r *Ring[T]) Len() int {
	return len(r.data)
}

// Each calls fn for every slot in storage order.
func (r *Ring[T]) Each(fn func(i int, v T)) {
	for i, v := range r.data {
		fn(i, v)
	}
}
