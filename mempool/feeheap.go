package mempool

// feeHeap is a container/heap min-heap over entry.feeRate(), used so the
// lowest fee-rate transaction can be evicted in O(log n) when the pool is
// over capacity.
type feeHeap []*entry

func (h feeHeap) Len() int { return len(h) }

func (h feeHeap) Less(i, j int) bool {
	return h[i].feeRate() < h[j].feeRate()
}

func (h feeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *feeHeap) Push(x any) {
	e := x.(*entry)
	e.heapIndex = len(*h)
	*h = append(*h, e)
}

func (h *feeHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
