package sequence

import (
	"iter"
	"sort"
)

// Iterator is a generic, immutable, chainable iterator for any type T.
// Every iterator built here is restartable: ranging over Seq twice walks the
// source twice.
type Iterator[T any] struct {
	seq iter.Seq[T]
}

// From creates a new Iterator over a slice of T.
func From[T any](data []T) *Iterator[T] {
	return &Iterator[T]{
		seq: func(yield func(T) bool) {
			for _, v := range data {
				if !yield(v) {
					return
				}
			}
		},
	}
}

// FromSeq wraps an existing sequence.
func FromSeq[T any](seq iter.Seq[T]) *Iterator[T] {
	return &Iterator[T]{seq: seq}
}

// Seq returns the underlying sequence function for the iterator.
func (i *Iterator[T]) Seq() iter.Seq[T] {
	return i.seq
}

// Collect exhausts the iterator and returns a slice of all elements.
func (i *Iterator[T]) Collect() []T {
	var out []T
	for v := range i.seq {
		out = append(out, v)
	}
	return out
}

// Sort returns a new Iterator with elements sorted according to the provided less function.
func (i *Iterator[T]) Sort(less func(a, b T) bool) *Iterator[T] {
	data := i.Collect()
	sort.SliceStable(data, func(a, b int) bool {
		return less(data[a], data[b])
	})
	return From(data)
}

// Filter returns a new Iterator containing only elements that satisfy the predicate.
func (i *Iterator[T]) Filter(pred func(T) bool) *Iterator[T] {
	return &Iterator[T]{
		seq: func(yield func(T) bool) {
			for v := range i.seq {
				if pred(v) && !yield(v) {
					return
				}
			}
		},
	}
}

// Count returns the number of elements.
func (i *Iterator[T]) Count() int {
	n := 0
	for range i.seq {
		n++
	}
	return n
}

// Map lazily transforms every element.
func Map[T any, R any](it *Iterator[T], fn func(T) R) *Iterator[R] {
	return &Iterator[R]{
		seq: func(yield func(R) bool) {
			for v := range it.seq {
				if !yield(fn(v)) {
					return
				}
			}
		},
	}
}
