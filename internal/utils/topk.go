package utils

import (
	"container/heap"
	"sort"
)

// TopK keeps the k greatest items seen so far in a min-heap of size k.
// Push is O(log k); a candidate not beating the current minimum is
// rejected in O(1).
type TopK[T any] struct {
	k    int
	less func(a, b T) bool
	h    *minHeap[T]
}

func NewTopK[T any](k int, less func(a, b T) bool) *TopK[T] {
	return &TopK[T]{
		k:    k,
		less: less,
		h:    &minHeap[T]{less: less},
	}
}

func (t *TopK[T]) Push(item T) {
	if t.k <= 0 {
		return
	}
	if t.h.Len() < t.k {
		heap.Push(t.h, item)
		return
	}
	if t.less(t.h.items[0], item) {
		t.h.items[0] = item
		heap.Fix(t.h, 0)
	}
}

// Sorted returns the kept items, greatest first.
func (t *TopK[T]) Sorted() []T {
	out := make([]T, len(t.h.items))
	copy(out, t.h.items)
	sort.SliceStable(out, func(i, j int) bool {
		return t.less(out[j], out[i])
	})
	return out
}

type minHeap[T any] struct {
	items []T
	less  func(a, b T) bool
}

func (h *minHeap[T]) Len() int           { return len(h.items) }
func (h *minHeap[T]) Less(i, j int) bool { return h.less(h.items[i], h.items[j]) }
func (h *minHeap[T]) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *minHeap[T]) Push(x any)         { h.items = append(h.items, x.(T)) }
func (h *minHeap[T]) Pop() any {
	n := len(h.items)
	item := h.items[n-1]
	h.items = h.items[:n-1]
	return item
}
