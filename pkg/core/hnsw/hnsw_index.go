// Package hnsw implements the Hierarchical Navigable Small World graph for
// approximate nearest neighbor search.
//
// The index keeps its nodes in a flat arena addressed by dense uint32
// internal IDs and maintains neighbor lists per layer. Insertion assigns each
// node an exponentially distributed top layer, descends greedily from the
// entry point, and links the node into every layer it participates in using
// a diversity-preferring neighbor selection heuristic. Search descends the
// same way and runs a bounded best-first exploration on the base layer.
//
// Concurrency follows a single-writer multiple-reader policy: one RWMutex
// guards the whole graph, so searches proceed concurrently but never observe
// a neighbor list mid-mutation.
package hnsw

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sanonone/solarisdb/pkg/core"
	"github.com/sanonone/solarisdb/pkg/core/distance"
	"github.com/sanonone/solarisdb/pkg/core/types"
)

const (
	// DefaultM is the neighbor budget per node per layer above the base.
	DefaultM = 16
	// DefaultEfConstruction is the candidate-list width used while building.
	DefaultEfConstruction = 200
	// DefaultEfSearch is the minimum candidate-list width for queries.
	DefaultEfSearch = 50

	// levelCap bounds the drawn layer; with ml = 1/ln(16) the cap is
	// unreachable in practice but keeps a pathological RNG draw harmless.
	levelCap = 16

	// deadlineCheckMask throttles deadline polling in the hot loop to one
	// time.Now call every 32 popped candidates.
	deadlineCheckMask = 31
)

// Config carries the construction parameters of an index. Zero values select
// the defaults; Dimension and Metric are mandatory.
type Config struct {
	Dimension      int
	M              int
	EfConstruction int
	EfSearch       int
	Metric         distance.Metric
	// Seed makes the layer assignment reproducible. Zero seeds from the
	// clock.
	Seed int64
}

// Index is the hierarchical graph structure.
type Index struct {
	mu sync.RWMutex

	dimension      int
	m              int // max connections per node per layer above 0
	mMax0          int // max connections at layer 0 (2*M, standard tuning)
	efConstruction int
	efSearch       int

	// ml is the level-distribution multiplier, 1/ln(M).
	ml float64

	metric distance.Metric
	distFn distance.Func
	// invert is set for larger-is-better metrics: ranks are negated scores
	// so that smaller rank always means closer.
	invert bool

	nodes        []*Node
	entrypointID uint32
	// maxLevel is the top layer of the entry point, -1 while empty.
	maxLevel  int
	liveCount int
	allocated int

	rng *rand.Rand

	visitedPool sync.Pool
	minHeapPool sync.Pool
	maxHeapPool sync.Pool
}

var _ core.VectorIndex = (*Index)(nil)

// New creates and initializes an empty index.
func New(cfg Config) (*Index, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", core.ErrInvalidDimension)
	}
	if cfg.M < 0 || cfg.EfConstruction < 0 {
		return nil, fmt.Errorf("%w: M and efConstruction cannot be negative", core.ErrInvalidParameter)
	}
	m := cfg.M
	if m == 0 {
		m = DefaultM
	}
	efConstruction := cfg.EfConstruction
	if efConstruction == 0 {
		efConstruction = DefaultEfConstruction
	}
	efSearch := cfg.EfSearch
	if efSearch == 0 {
		efSearch = DefaultEfSearch
	}
	distFn, err := distance.GetFunc(cfg.Metric)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidParameter, err)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	h := &Index{
		dimension:      cfg.Dimension,
		m:              m,
		mMax0:          m * 2,
		efConstruction: efConstruction,
		efSearch:       efSearch,
		ml:             1.0 / math.Log(float64(m)),
		metric:         cfg.Metric,
		distFn:         distFn,
		invert:         cfg.Metric.LargerIsBetter(),
		nodes:          make([]*Node, 0, 1024),
		maxLevel:       -1,
		rng:            rand.New(rand.NewSource(seed)),
	}
	h.visitedPool = sync.Pool{
		New: func() any { return NewBitSet(1024) },
	}
	h.minHeapPool = sync.Pool{
		New: func() any { return newMinHeap(efConstruction) },
	}
	h.maxHeapPool = sync.Pool{
		New: func() any { return newMaxHeap(efConstruction + 1) },
	}
	return h, nil
}

// rank converts a metric score to the internal ordering domain where smaller
// is always better.
func (h *Index) rank(a, b []float32) (float64, error) {
	d, err := h.distFn(a, b)
	if err != nil {
		return 0, err
	}
	if h.invert {
		return -d, nil
	}
	return d, nil
}

// score converts an internal rank back to the metric's native score.
func (h *Index) score(rank float64) float64 {
	if h.invert {
		return -rank
	}
	return rank
}

// randomLevel draws the top layer for a new node from an exponential
// distribution: most nodes land on layer 0, exponentially fewer higher up.
// This distribution is what gives the graph its logarithmic-hop property.
func (h *Index) randomLevel() int {
	u := h.rng.Float64()
	if u == 0 {
		u = math.SmallestNonzeroFloat64
	}
	level := int(math.Floor(-math.Log(u) * h.ml))
	if level > levelCap {
		level = levelCap
	}
	return level
}

// Insert adds a vector under the given internal ID and links it into the
// graph. The ID must be fresh; the collection layer allocates them
// monotonically and never reuses one.
func (h *Index) Insert(internalID uint32, vector []float32) error {
	if len(vector) != h.dimension {
		return fmt.Errorf("%w: expected %d, got %d", core.ErrDimensionMismatch, h.dimension, len(vector))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.growNodes(internalID)
	if h.nodes[internalID] != nil {
		return fmt.Errorf("%w: internal id %d already occupied", core.ErrInternalInconsistency, internalID)
	}

	level := h.randomLevel()
	node := &Node{
		InternalID:  internalID,
		Vector:      vector,
		Connections: make([][]uint32, level+1),
	}
	h.nodes[internalID] = node
	h.liveCount++
	h.allocated++

	if h.maxLevel == -1 {
		h.entrypointID = internalID
		h.maxLevel = level
		return nil
	}

	entry := h.entrypointID
	if int(entry) >= len(h.nodes) || h.nodes[entry] == nil {
		return fmt.Errorf("%w: entry point %d is dangling", core.ErrInternalInconsistency, entry)
	}

	// Greedy single-best descent down to the layer just above the node's
	// own top layer. This finds a good entry without exploring the graph.
	for l := h.maxLevel; l > level; l-- {
		nearest, _, err := h.searchLayer(vector, entry, 1, l, nil, time.Time{}, true)
		if err != nil {
			return err
		}
		if len(nearest) > 0 {
			entry = nearest[0].id
		}
	}

	// Link into every layer the node participates in, base layer last.
	for l := min(level, h.maxLevel); l >= 0; l-- {
		candidates, _, err := h.searchLayer(vector, entry, h.efConstruction, l, nil, time.Time{}, true)
		if err != nil {
			return err
		}

		maxConns := h.m
		if l == 0 {
			maxConns = h.mMax0
		}

		selected := h.selectNeighbors(candidates, maxConns)

		node.Connections[l] = make([]uint32, len(selected))
		for i, c := range selected {
			node.Connections[l][i] = c.id
		}

		for _, c := range selected {
			neighbor := h.nodes[c.id]
			if l > neighbor.topLayer() {
				continue
			}
			neighbor.Connections[l] = append(neighbor.Connections[l], internalID)
			if len(neighbor.Connections[l]) > maxConns {
				h.pruneNeighbors(neighbor, l, maxConns)
			}
		}

		if len(selected) > 0 {
			entry = selected[0].id
		}
	}

	if level > h.maxLevel {
		h.maxLevel = level
		h.entrypointID = internalID
	}
	return nil
}

// pruneNeighbors shrinks an overflowing neighbor list back to budget using
// the same diversity heuristic as insertion, never plain truncation. Edges
// dropped here are also removed from the other endpoint so that every edge
// in the graph stays bidirectional.
func (h *Index) pruneNeighbors(node *Node, level, maxConns int) {
	current := node.Connections[level]
	candidates := make([]searchCandidate, 0, len(current))
	for _, id := range current {
		other := h.nodes[id]
		if other == nil {
			continue
		}
		r, err := h.rank(node.Vector, other.Vector)
		if err != nil {
			continue
		}
		candidates = append(candidates, searchCandidate{id: id, rank: r})
	}
	sortCandidates(candidates)

	selected := h.selectNeighbors(candidates, maxConns)
	kept := make(map[uint32]struct{}, len(selected))
	newConns := make([]uint32, len(selected))
	for i, c := range selected {
		newConns[i] = c.id
		kept[c.id] = struct{}{}
	}
	node.Connections[level] = newConns

	// Drop the reverse edge of every pruned connection.
	for _, id := range current {
		if _, ok := kept[id]; ok {
			continue
		}
		other := h.nodes[id]
		if other == nil || level > other.topLayer() {
			continue
		}
		other.Connections[level] = removeID(other.Connections[level], node.InternalID)
	}
}

func removeID(conns []uint32, id uint32) []uint32 {
	for i, c := range conns {
		if c == id {
			return append(conns[:i], conns[i+1:]...)
		}
	}
	return conns
}

// selectNeighbors implements the neighbor selection heuristic from the HNSW
// paper: a candidate is accepted only if it is closer to the query node than
// to every already-accepted neighbor, which spreads the neighbor list across
// directions instead of clustering it. If the heuristic is too aggressive and
// leaves the list under-full, the best discarded candidates fill the
// remaining slots so nodes never end up weakly connected.
func (h *Index) selectNeighbors(candidates []searchCandidate, m int) []searchCandidate {
	if len(candidates) <= m {
		return candidates
	}

	results := make([]searchCandidate, 0, m)
	discarded := make([]searchCandidate, 0, len(candidates)-m)

	for _, e := range candidates {
		if len(results) == m {
			break
		}
		if len(results) == 0 {
			results = append(results, e)
			continue
		}

		good := true
		for _, r := range results {
			d, err := h.rank(h.nodes[e.id].Vector, h.nodes[r.id].Vector)
			if err != nil || d < e.rank {
				good = false
				break
			}
		}
		if good {
			results = append(results, e)
		} else {
			discarded = append(discarded, e)
		}
	}

	for _, c := range discarded {
		if len(results) == m {
			break
		}
		results = append(results, c)
	}
	return results
}

// searchLayer runs the bounded best-first exploration on one layer: a
// min-heap of candidates to explore and a max-heap of the ef best results
// found so far. Exploration stops when the closest unexplored candidate is
// farther than the worst retained result, or when the deadline expires.
// Tombstoned and disallowed nodes still route traffic but never enter the
// result set. Results come back ordered best-first.
// forLinking lets insertion link against tombstoned nodes; queries exclude
// them from results.
func (h *Index) searchLayer(query []float32, entryID uint32, ef, level int, allowList map[uint32]struct{}, deadline time.Time, forLinking bool) ([]searchCandidate, bool, error) {
	visited := h.visitedPool.Get().(*BitSet)
	candidates := h.minHeapPool.Get().(*minHeap)
	results := h.maxHeapPool.Get().(*maxHeap)
	*candidates = (*candidates)[:0]
	*results = (*results)[:0]
	defer func() {
		visited.Clear()
		h.visitedPool.Put(visited)
		h.minHeapPool.Put(candidates)
		h.maxHeapPool.Put(results)
	}()

	if len(h.nodes) > 0 {
		visited.EnsureCapacity(uint32(len(h.nodes) - 1))
	}

	entryNode := h.nodes[entryID]
	if entryNode == nil {
		return nil, false, fmt.Errorf("%w: entry point %d is dangling", core.ErrInternalInconsistency, entryID)
	}

	entryRank, err := h.rank(query, entryNode.Vector)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", core.ErrDimensionMismatch, err)
	}

	ep := searchCandidate{id: entryID, rank: entryRank}
	candidates.Push(ep)
	visited.Add(entryID)
	if admissible(entryNode, allowList, forLinking) {
		results.Push(ep)
	}

	timedOut := false
	checkDeadline := !deadline.IsZero()

	for iterations := 0; candidates.Len() > 0; iterations++ {
		if checkDeadline && iterations&deadlineCheckMask == 0 && time.Now().After(deadline) {
			timedOut = true
			break
		}

		current := candidates.Pop()

		// Core pruning rule: once the result set is full, a candidate
		// farther than the worst retained result cannot improve anything
		// reachable through it.
		if results.Len() >= ef && current.rank > results.Peek().rank {
			break
		}

		currentNode := h.nodes[current.id]
		if currentNode == nil || level > currentNode.topLayer() {
			continue
		}

		for _, neighborID := range currentNode.Connections[level] {
			if visited.Has(neighborID) {
				continue
			}
			visited.Add(neighborID)

			neighborNode := h.nodes[neighborID]
			if neighborNode == nil {
				continue
			}

			d, err := h.rank(query, neighborNode.Vector)
			if err != nil {
				continue
			}

			if results.Len() < ef || d < results.Peek().rank {
				nc := searchCandidate{id: neighborID, rank: d}
				candidates.Push(nc)

				if admissible(neighborNode, allowList, forLinking) {
					results.Push(nc)
					if results.Len() > ef {
						results.Pop()
					}
				}
			}
		}
	}

	// Drain the max-heap worst-first into a best-first slice.
	count := results.Len()
	final := make([]searchCandidate, count)
	for i := count - 1; i >= 0; i-- {
		final[i] = results.Pop()
	}
	return final, timedOut, nil
}

// admissible reports whether a node may appear in the result set.
func admissible(n *Node, allowList map[uint32]struct{}, forLinking bool) bool {
	if !forLinking && n.Deleted.Load() {
		return false
	}
	if allowList != nil {
		if _, ok := allowList[n.InternalID]; !ok {
			return false
		}
	}
	return true
}

// Search returns up to k results using the index's default search breadth.
func (h *Index) Search(query []float32, k int) ([]types.Candidate, error) {
	results, _, err := h.SearchWithOptions(query, k, core.SearchOptions{})
	return results, err
}

// SearchWithEf is Search with a caller-supplied candidate-list width.
func (h *Index) SearchWithEf(query []float32, k, ef int) ([]types.Candidate, error) {
	results, _, err := h.SearchWithOptions(query, k, core.SearchOptions{Ef: ef})
	return results, err
}

// SearchWithOptions performs the full multi-layer search: greedy single-best
// descent from the entry point down to layer 1, then the candidate-list
// exploration on the base layer. Results are ordered best-first in the
// metric's native polarity, ties by ascending internal ID, truncated to k.
func (h *Index) SearchWithOptions(query []float32, k int, opts core.SearchOptions) ([]types.Candidate, bool, error) {
	if k <= 0 {
		return nil, false, fmt.Errorf("%w: k must be positive", core.ErrInvalidParameter)
	}
	ef := opts.Ef
	if ef == 0 {
		ef = h.efSearch
		if ef < k {
			ef = k
		}
	}
	if ef < k {
		return nil, false, fmt.Errorf("%w: ef (%d) must be >= k (%d)", core.ErrInvalidParameter, ef, k)
	}
	if len(query) != h.dimension {
		return nil, false, fmt.Errorf("%w: expected %d, got %d", core.ErrDimensionMismatch, h.dimension, len(query))
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.maxLevel == -1 || h.liveCount == 0 {
		return nil, false, core.ErrEmptyIndex
	}

	entry := h.entrypointID
	if int(entry) >= len(h.nodes) || h.nodes[entry] == nil {
		return nil, false, fmt.Errorf("%w: entry point %d is dangling", core.ErrInternalInconsistency, entry)
	}

	timedOut := false

	// Descent is routing only: the allow list applies at the base layer,
	// where results are actually collected.
	for l := h.maxLevel; l > 0; l-- {
		nearest, expired, err := h.searchLayer(query, entry, 1, l, nil, opts.Deadline, true)
		if err != nil {
			return nil, false, err
		}
		timedOut = timedOut || expired
		if len(nearest) > 0 {
			entry = nearest[0].id
		}
		if timedOut {
			break
		}
	}

	found, expired, err := h.searchLayer(query, entry, ef, 0, opts.AllowList, opts.Deadline, false)
	if err != nil {
		return nil, false, err
	}
	timedOut = timedOut || expired

	if len(found) > k {
		found = found[:k]
	}
	out := make([]types.Candidate, len(found))
	for i, c := range found {
		out[i] = types.Candidate{ID: c.id, Score: h.score(c.rank)}
	}
	return out, timedOut, nil
}

// Remove tombstones a node. The node keeps routing searches until the owning
// collection compacts the index; it never appears in results again. If the
// entry point is removed, the highest remaining live node takes over.
func (h *Index) Remove(internalID uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if int(internalID) >= len(h.nodes) {
		return
	}
	node := h.nodes[internalID]
	if node == nil || node.Deleted.Load() {
		return
	}
	node.Deleted.Store(true)
	h.liveCount--

	if h.entrypointID != internalID {
		return
	}

	// Reassign the entry point to the live node with the highest layer.
	bestID := uint32(0)
	bestLevel := -1
	for id, n := range h.nodes {
		if n == nil || n.Deleted.Load() {
			continue
		}
		if n.topLayer() > bestLevel {
			bestLevel = n.topLayer()
			bestID = uint32(id)
		}
	}
	h.entrypointID = bestID
	h.maxLevel = bestLevel
}

// Len returns the number of live (non-tombstoned) vectors.
func (h *Index) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.liveCount
}

// Metric returns the distance metric the index ranks by.
func (h *Index) Metric() distance.Metric {
	return h.metric
}

// Dimension returns the fixed vector dimension of the index.
func (h *Index) Dimension() int {
	return h.dimension
}

// TombstoneRatio reports the fraction of allocated nodes that are
// tombstoned. Collections use it to decide when a compaction pays off.
func (h *Index) TombstoneRatio() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.allocated == 0 {
		return 0
	}
	return float64(h.allocated-h.liveCount) / float64(h.allocated)
}

// growNodes extends the arena to cover the given ID, doubling capacity
// to amortize allocations. Must be called under the write lock.
func (h *Index) growNodes(id uint32) {
	if uint32(len(h.nodes)) > id {
		return
	}
	if uint32(cap(h.nodes)) <= id {
		newCap := cap(h.nodes)
		if newCap == 0 {
			newCap = 1024
		}
		for uint32(newCap) <= id {
			newCap *= 2
		}
		newNodes := make([]*Node, len(h.nodes), newCap)
		copy(newNodes, h.nodes)
		h.nodes = newNodes
	}
	h.nodes = h.nodes[:id+1]
}

// sortCandidates orders a small candidate slice best-first. Insertion sort:
// the inputs are neighbor lists bounded by 2*M.
func sortCandidates(c []searchCandidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].less(c[j-1]); j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}
