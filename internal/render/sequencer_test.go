package render

import (
	"container/heap"
	"testing"
)

func TestFrameHeap_PopsInIndexOrder(t *testing.T) {
	t.Parallel()

	var h frameHeap
	for _, idx := range []int{7, 2, 9, 0, 5, 1, 8, 3, 6, 4} {
		heap.Push(&h, renderedFrame{index: idx})
	}
	for want := range 10 {
		got := heap.Pop(&h).(renderedFrame).index
		if got != want {
			t.Fatalf("pop %d returned index %d", want, got)
		}
	}
	if h.Len() != 0 {
		t.Errorf("heap not empty after draining, len %d", h.Len())
	}
}

func TestFrameHeap_RootTracksMinimum(t *testing.T) {
	t.Parallel()

	var h frameHeap
	heap.Push(&h, renderedFrame{index: 3})
	if h[0].index != 3 {
		t.Fatalf("root = %d, want 3", h[0].index)
	}
	heap.Push(&h, renderedFrame{index: 1})
	if h[0].index != 1 {
		t.Fatalf("root = %d, want 1", h[0].index)
	}
	heap.Push(&h, renderedFrame{index: 2})
	if h[0].index != 1 {
		t.Fatalf("root = %d, want 1 after pushing 2", h[0].index)
	}
	heap.Pop(&h)
	if h[0].index != 2 {
		t.Fatalf("root = %d, want 2 after popping 1", h[0].index)
	}
}
