package hnsw

// BitSet is a growable bitmap over dense internal IDs, used as the visited
// set during graph traversal. Clearing keeps the allocated buckets so a
// pooled BitSet stays allocation-free across searches.
type BitSet struct {
	buckets []uint64
}

// NewBitSet creates a bitmap able to hold at least initialCapacity bits.
func NewBitSet(initialCapacity uint32) *BitSet {
	return &BitSet{
		buckets: make([]uint64, (initialCapacity>>6)+1),
	}
}

func (bs *BitSet) grow(n uint32) {
	needed := (n >> 6) + 1
	if uint32(len(bs.buckets)) < needed {
		newBuckets := make([]uint64, needed)
		copy(newBuckets, bs.buckets)
		bs.buckets = newBuckets
	}
}

// Add marks bit n.
func (bs *BitSet) Add(n uint32) {
	bucket := n >> 6
	if bucket >= uint32(len(bs.buckets)) {
		bs.grow(n)
	}
	bs.buckets[bucket] |= 1 << (n & 63)
}

// Has reports whether bit n is marked.
func (bs *BitSet) Has(n uint32) bool {
	bucket := n >> 6
	if bucket >= uint32(len(bs.buckets)) {
		return false
	}
	return bs.buckets[bucket]&(1<<(n&63)) != 0
}

// Clear resets every bit, keeping capacity.
func (bs *BitSet) Clear() {
	for i := range bs.buckets {
		bs.buckets[i] = 0
	}
}

// EnsureCapacity pre-grows the bitmap to cover maxVal.
func (bs *BitSet) EnsureCapacity(maxVal uint32) {
	if uint32(len(bs.buckets)) < (maxVal>>6)+1 {
		bs.grow(maxVal)
	}
}
