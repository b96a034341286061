package render

import "image"

// renderedFrame pairs a composited frame with its presentation index. The
// worker pool finishes frames out of order; the encoder consumes them
// strictly in index order.
type renderedFrame struct {
	index int
	image *image.NRGBA
}

// frameHeap implements [container/heap.Interface] as a min-heap ordered by
// frame index (ascending). It buffers out-of-order frames from the worker
// pool until the next expected index surfaces at the root. Its depth is
// bounded by the worker count, since workers pick up indices in order.
type frameHeap []renderedFrame

func (h frameHeap) Len() int { return len(h) }

// Less reports whether frame i must be encoded before frame j.
func (h frameHeap) Less(i, j int) bool {
	return h[i].index < h[j].index
}

func (h frameHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

// Push appends x to the heap. Called by [container/heap.Push]; callers must
// not invoke this directly.
func (h *frameHeap) Push(x any) {
	*h = append(*h, x.(renderedFrame))
}

// Pop removes and returns the last element. Called by [container/heap.Pop];
// callers must not invoke this directly.
func (h *frameHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}
