// This file defines the two priority queues used by the graph traversal: a
// min-heap of candidates still to explore (nearest on top) and a bounded
// max-heap of the best results found so far (farthest on top, ready to be
// evicted when something closer appears).
//
// Both heaps hold searchCandidate values directly and maintain the heap
// property in their own Push/Pop, avoiding the interface boxing of
// container/heap on the hottest path of the index.
package hnsw

// searchCandidate pairs an internal ID with its rank distance to the query.
// Rank distance is polarity-normalized: smaller is always better, whatever
// the metric. Equal ranks order by ascending ID for determinism.
type searchCandidate struct {
	id   uint32
	rank float64
}

// less orders candidates best-first.
func (c searchCandidate) less(other searchCandidate) bool {
	if c.rank != other.rank {
		return c.rank < other.rank
	}
	return c.id < other.id
}

// minHeap keeps the nearest candidate on top.
type minHeap []searchCandidate

func (h *minHeap) Len() int { return len(*h) }

func (h *minHeap) Push(c searchCandidate) {
	*h = append(*h, c)
	h.up(len(*h) - 1)
}

// Peek returns the nearest candidate without removing it.
func (h *minHeap) Peek() searchCandidate { return (*h)[0] }

func (h *minHeap) Pop() searchCandidate {
	old := *h
	top := old[0]
	n := len(old) - 1
	old[0] = old[n]
	*h = old[:n]
	if n > 0 {
		h.down(0)
	}
	return top
}

func (h *minHeap) up(i int) {
	s := *h
	for i > 0 {
		parent := (i - 1) / 2
		if !s[i].less(s[parent]) {
			break
		}
		s[i], s[parent] = s[parent], s[i]
		i = parent
	}
}

func (h *minHeap) down(i int) {
	s := *h
	n := len(s)
	for {
		left := 2*i + 1
		if left >= n {
			break
		}
		best := left
		if right := left + 1; right < n && s[right].less(s[left]) {
			best = right
		}
		if !s[best].less(s[i]) {
			break
		}
		s[i], s[best] = s[best], s[i]
		i = best
	}
}

// maxHeap keeps the farthest candidate on top, so the worst of the current
// best results is always one Peek away.
type maxHeap []searchCandidate

func (h *maxHeap) Len() int { return len(*h) }

func (h *maxHeap) Push(c searchCandidate) {
	*h = append(*h, c)
	h.up(len(*h) - 1)
}

// Peek returns the farthest retained candidate without removing it.
func (h *maxHeap) Peek() searchCandidate { return (*h)[0] }

func (h *maxHeap) Pop() searchCandidate {
	old := *h
	top := old[0]
	n := len(old) - 1
	old[0] = old[n]
	*h = old[:n]
	if n > 0 {
		h.down(0)
	}
	return top
}

// worse orders candidates worst-first: larger rank on top, ties by larger ID
// so that eviction under equal ranks drops the higher ID deterministically.
func worse(a, b searchCandidate) bool {
	if a.rank != b.rank {
		return a.rank > b.rank
	}
	return a.id > b.id
}

func (h *maxHeap) up(i int) {
	s := *h
	for i > 0 {
		parent := (i - 1) / 2
		if !worse(s[i], s[parent]) {
			break
		}
		s[i], s[parent] = s[parent], s[i]
		i = parent
	}
}

func (h *maxHeap) down(i int) {
	s := *h
	n := len(s)
	for {
		left := 2*i + 1
		if left >= n {
			break
		}
		worst := left
		if right := left + 1; right < n && worse(s[right], s[left]) {
			worst = right
		}
		if !worse(s[worst], s[i]) {
			break
		}
		s[i], s[worst] = s[worst], s[i]
		i = worst
	}
}

func newMinHeap(capacity int) *minHeap {
	h := make(minHeap, 0, capacity)
	return &h
}

func newMaxHeap(capacity int) *maxHeap {
	h := make(maxHeap, 0, capacity)
	return &h
}
