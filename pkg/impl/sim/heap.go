package sim

// timer is one scheduled backend action. seq keeps actions scheduled for the
// same instant in insertion order.
type timer struct {
	at  int64
	seq uint64
	fn  func()
}

// timerHeap implements [container/heap.Interface] as a min-heap ordered by
// due time, with FIFO tie-breaking on seq.
type timerHeap []timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

// Push appends x to the heap. Called by [container/heap.Push]; callers must
// not invoke this directly.
func (h *timerHeap) Push(x any) {
	*h = append(*h, x.(timer))
}

// Pop removes and returns the last element. Called by [container/heap.Pop];
// callers must not invoke this directly.
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = timer{}
	*h = old[:n-1]
	return t
}
