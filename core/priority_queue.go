package core

import "container/heap"

// PriorityQueue orders registered task sources by SequenceSortKey. It does no
// locking of its own: all mutation happens under the owning thread group's
// lock. The heap is index-stable (each entry tracks its slot, plus a
// source-to-entry map) so UpdateSortKey and Remove re-heapify in O(log n)
// without scanning.
type PriorityQueue struct {
	pq    sourceHeap
	index map[TaskSource]*sourceHeapEntry
}

type sourceHeapEntry struct {
	source RegisteredTaskSource
	key    SequenceSortKey
	index  int // for heap bookkeeping
}

// sourceHeap implements heap.Interface
type sourceHeap []*sourceHeapEntry

func (h sourceHeap) Len() int { return len(h) }

// Less implements sort-key ordering: most important entry at the top.
func (h sourceHeap) Less(i, j int) bool {
	return h[i].key.Less(h[j].key)
}

func (h sourceHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *sourceHeap) Push(x any) {
	n := len(*h)
	entry := x.(*sourceHeapEntry)
	entry.index = n
	*h = append(*h, entry)
}

func (h *sourceHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil // avoid memory leak
	entry.index = -1
	*h = old[0 : n-1]
	return entry
}

// NewPriorityQueue creates an empty queue.
func NewPriorityQueue() *PriorityQueue {
	return &PriorityQueue{
		pq:    make(sourceHeap, 0, defaultSequenceCap),
		index: make(map[TaskSource]*sourceHeapEntry),
	}
}

// Insert adds a registered task source with the given sort key. Inserting a
// source that is already present is a scheduler bug and aborts.
func (q *PriorityQueue) Insert(source RegisteredTaskSource, key SequenceSortKey) {
	checkf(source.Valid(), "Insert of empty RegisteredTaskSource")
	_, present := q.index[source.Source()]
	checkf(!present, "task source inserted twice into priority queue")

	entry := &sourceHeapEntry{source: source, key: key}
	q.index[source.Source()] = entry
	heap.Push(&q.pq, entry)
}

// PeekSortKey returns the best sort key without removing its entry.
func (q *PriorityQueue) PeekSortKey() (SequenceSortKey, bool) {
	if len(q.pq) == 0 {
		return SequenceSortKey{}, false
	}
	return q.pq[0].key, true
}

// PopTaskSource removes and returns the task source with the best sort key.
func (q *PriorityQueue) PopTaskSource() (RegisteredTaskSource, bool) {
	if len(q.pq) == 0 {
		return RegisteredTaskSource{}, false
	}
	entry := heap.Pop(&q.pq).(*sourceHeapEntry)
	delete(q.index, entry.source.Source())
	return entry.source, true
}

// UpdateSortKey re-ranks an already-queued source. Returns false when the
// source is not currently in the queue (it may be held by a worker, which
// will recompute the key on re-enqueue).
func (q *PriorityQueue) UpdateSortKey(source TaskSource, key SequenceSortKey) bool {
	entry, ok := q.index[source]
	if !ok {
		return false
	}
	entry.key = key
	heap.Fix(&q.pq, entry.index)
	return true
}

// Remove extracts a specific source regardless of rank, returning its
// capability so the caller can unregister it.
func (q *PriorityQueue) Remove(source TaskSource) (RegisteredTaskSource, bool) {
	entry, ok := q.index[source]
	if !ok {
		return RegisteredTaskSource{}, false
	}
	heap.Remove(&q.pq, entry.index)
	delete(q.index, source)
	return entry.source, true
}

// Len returns the number of queued sources.
func (q *PriorityQueue) Len() int {
	return len(q.pq)
}

// IsEmpty reports whether the queue holds no sources.
func (q *PriorityQueue) IsEmpty() bool {
	return len(q.pq) == 0
}
