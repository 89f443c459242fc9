package solaris

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sanonone/solarisdb/pkg/core"
	"github.com/sanonone/solarisdb/pkg/core/distance"
	"github.com/sanonone/solarisdb/pkg/core/filter"
	"github.com/sanonone/solarisdb/pkg/core/types"
	"github.com/sanonone/solarisdb/pkg/metrics"
	"github.com/sanonone/solarisdb/pkg/storage"
)

// SearchResult is one hit of a collection search: the user-facing ID, the
// metric score and the stored metadata.
type SearchResult struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SearchResponse carries the hits of one search. TimedOut marks a search the
// deadline cut short; the results are still the best found so far.
type SearchResponse struct {
	Results  []SearchResult `json:"results"`
	TimedOut bool           `json:"timed_out,omitempty"`
}

// Strict converts a timed-out response into an error for callers that cannot
// use partial results.
func (r *SearchResponse) Strict() (*SearchResponse, error) {
	if r.TimedOut {
		return r, fmt.Errorf("%w: %d partial results", ErrSearchTimeout, len(r.Results))
	}
	return r, nil
}

// Collection owns one vector index plus everything the index does not know
// about: the external ID mapping, the record store and the metadata indexes.
type Collection struct {
	name      string
	dimension int
	metric    distance.Metric

	m              int
	efConstruction int

	searchTimeout       time.Duration
	overfetchMultiplier int
	compactionThreshold float64

	mu    sync.RWMutex
	index core.VectorIndex
	// newIndex rebuilds an empty index with the collection's parameters,
	// seed included, so compaction swaps in an equivalent graph.
	newIndex     func() (core.VectorIndex, error)
	store        storage.Store
	idToInternal map[string]uint32
	internalToID map[uint32]string
	meta         *metaIndex
	nextInternal uint32
}

func (c *Collection) Name() string            { return c.name }
func (c *Collection) Dimension() int          { return c.dimension }
func (c *Collection) Metric() distance.Metric { return c.metric }

// Len returns the number of live vectors.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.idToInternal)
}

// Insert adds a vector under the given ID. An empty ID gets a generated UUID.
// The assigned ID is returned. Validation happens before any mutation, so a
// failed insert leaves the collection untouched.
func (c *Collection) Insert(id string, vector []float32, metadata map[string]string) (string, error) {
	if len(vector) != c.dimension {
		metrics.InsertsTotal.WithLabelValues(c.name, "error").Inc()
		return "", fmt.Errorf("%w: collection %q expects %d, got %d", ErrDimensionMismatch, c.name, c.dimension, len(vector))
	}
	if id == "" {
		id = uuid.NewString()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.idToInternal[id]; exists {
		metrics.InsertsTotal.WithLabelValues(c.name, "error").Inc()
		return "", fmt.Errorf("%w: %q", ErrDuplicateID, id)
	}

	internal := c.nextInternal
	if err := c.index.Insert(internal, vector); err != nil {
		metrics.InsertsTotal.WithLabelValues(c.name, "error").Inc()
		return "", err
	}
	c.nextInternal++

	c.idToInternal[id] = internal
	c.internalToID[internal] = id
	c.store.Put(types.Record{ID: id, Vector: vector, Metadata: metadata})
	c.meta.add(internal, metadata)

	metrics.InsertsTotal.WithLabelValues(c.name, "ok").Inc()
	metrics.TotalVectors.WithLabelValues(c.name).Set(float64(len(c.idToInternal)))
	return id, nil
}

// InsertBatch inserts records one by one and reports a per-item outcome. A
// failing item never aborts the rest of the batch.
func (c *Collection) InsertBatch(records []types.Record) []types.BatchResult {
	results := make([]types.BatchResult, len(records))
	for i, rec := range records {
		id, err := c.Insert(rec.ID, rec.Vector, rec.Metadata)
		if err != nil {
			results[i] = types.BatchResult{ID: rec.ID, Err: err}
			continue
		}
		results[i] = types.BatchResult{ID: id}
	}
	return results
}

// Get returns the stored record for an ID.
func (c *Collection) Get(id string) (types.Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.idToInternal[id]; !ok {
		return types.Record{}, false
	}
	return c.store.Get(id)
}

// Delete tombstones a vector. The graph slot is reclaimed when the tombstone
// ratio crosses the compaction threshold.
func (c *Collection) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	internal, ok := c.idToInternal[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrVectorNotFound, id)
	}

	c.index.Remove(internal)
	if rec, ok := c.store.Get(id); ok {
		c.meta.remove(internal, rec.Metadata)
	}
	c.store.Delete(id)
	delete(c.idToInternal, id)
	delete(c.internalToID, internal)

	metrics.TotalVectors.WithLabelValues(c.name).Set(float64(len(c.idToInternal)))

	if frag, ok := c.index.(core.Fragmented); ok &&
		c.compactionThreshold > 0 && frag.TombstoneRatio() >= c.compactionThreshold {
		return c.compactLocked()
	}
	return nil
}

// Search returns the k nearest vectors using the collection's default search
// breadth.
func (c *Collection) Search(query []float32, k int) (*SearchResponse, error) {
	return c.searchInternal(query, k, 0, nil)
}

// SearchWithEf is Search with an explicit candidate-list width. ef must be
// at least k.
func (c *Collection) SearchWithEf(query []float32, k, ef int) (*SearchResponse, error) {
	if ef < k {
		return nil, fmt.Errorf("%w: ef (%d) must be >= k (%d)", ErrInvalidParameter, ef, k)
	}
	return c.searchInternal(query, k, ef, nil)
}

// SearchFiltered returns the k nearest vectors whose metadata matches the
// filter. Filters the metadata indexes can answer are pushed down into the
// index as an allow list; everything else over-fetches and post-filters in
// ranked order.
func (c *Collection) SearchFiltered(query []float32, k int, spec filter.Spec) (*SearchResponse, error) {
	if len(spec.Conditions) == 0 {
		return c.searchInternal(query, k, 0, nil)
	}

	c.mu.RLock()
	allow, pushdown := c.meta.allowlistFor(spec)
	c.mu.RUnlock()

	if pushdown {
		if len(allow) == 0 {
			// No stored vector can match; skip the graph walk.
			return &SearchResponse{Results: []SearchResult{}}, nil
		}
		return c.searchInternal(query, k, 0, allow)
	}

	// Over-fetch in ranked order, then keep the first k records whose
	// metadata passes the filter.
	fetchK := k * c.overfetchMultiplier
	resp, err := c.searchInternal(query, fetchK, 0, nil)
	if err != nil {
		return nil, err
	}

	filtered := make([]SearchResult, 0, k)
	for _, r := range resp.Results {
		if !spec.Matches(r.Metadata) {
			continue
		}
		filtered = append(filtered, r)
		if len(filtered) == k {
			break
		}
	}
	resp.Results = filtered
	return resp, nil
}

func (c *Collection) searchInternal(query []float32, k int, ef int, allow map[uint32]struct{}) (*SearchResponse, error) {
	start := time.Now()
	defer func() {
		metrics.SearchDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())
	}()

	opts := core.SearchOptions{Ef: ef, AllowList: allow}
	if c.searchTimeout > 0 {
		opts.Deadline = start.Add(c.searchTimeout)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	candidates, timedOut, err := c.index.SearchWithOptions(query, k, opts)
	if err != nil {
		status := "error"
		if errors.Is(err, ErrEmptyIndex) {
			status = "empty"
		}
		metrics.SearchesTotal.WithLabelValues(c.name, status).Inc()
		return nil, err
	}

	results := make([]SearchResult, len(candidates))
	for i, cand := range candidates {
		id, ok := c.internalToID[cand.ID]
		if !ok {
			metrics.SearchesTotal.WithLabelValues(c.name, "error").Inc()
			return nil, fmt.Errorf("%w: internal id %d has no external mapping", ErrInternalInconsistency, cand.ID)
		}
		rec, _ := c.store.Get(id)
		results[i] = SearchResult{ID: id, Score: cand.Score, Metadata: rec.Metadata}
	}

	if timedOut {
		metrics.SearchTimeoutsTotal.WithLabelValues(c.name).Inc()
	}
	metrics.SearchesTotal.WithLabelValues(c.name, "ok").Inc()
	return &SearchResponse{Results: results, TimedOut: timedOut}, nil
}

// Compact rebuilds the index without its tombstones. Internal IDs are
// reassigned densely; external IDs are untouched.
func (c *Collection) Compact() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compactLocked()
}

func (c *Collection) compactLocked() error {
	fresh, err := c.newIndex()
	if err != nil {
		return err
	}

	// Reinsert in ID order. The store iterates in map order; a seeded
	// collection stays reproducible only if the rebuild order is fixed.
	records := make([]types.Record, 0, len(c.idToInternal))
	c.store.Iterate(func(rec types.Record) bool {
		records = append(records, rec)
		return true
	})
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	idToInternal := make(map[string]uint32, len(records))
	internalToID := make(map[uint32]string, len(records))
	meta := newMetaIndex()
	var next uint32

	for _, rec := range records {
		if err := fresh.Insert(next, rec.Vector); err != nil {
			return fmt.Errorf("%w: compaction reinsert of %q: %v", ErrInternalInconsistency, rec.ID, err)
		}
		idToInternal[rec.ID] = next
		internalToID[next] = rec.ID
		meta.add(next, rec.Metadata)
		next++
	}

	c.index = fresh
	c.idToInternal = idToInternal
	c.internalToID = internalToID
	c.meta = meta
	c.nextInternal = next

	metrics.CompactionsTotal.WithLabelValues(c.name).Inc()
	return nil
}

// TombstoneRatio exposes the index fragmentation for monitoring. Indexes
// that reclaim removed slots eagerly report zero.
func (c *Collection) TombstoneRatio() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if frag, ok := c.index.(core.Fragmented); ok {
		return frag.TombstoneRatio()
	}
	return 0
}

// snapshot captures the collection's parameters and live records.
func (c *Collection) snapshot() storage.CollectionSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := storage.CollectionSnapshot{
		Name:           c.name,
		Dimension:      c.dimension,
		Metric:         string(c.metric),
		M:              c.m,
		EfConstruction: c.efConstruction,
		Records:        make([]types.Record, 0, len(c.idToInternal)),
	}
	c.store.Iterate(func(rec types.Record) bool {
		snap.Records = append(snap.Records, rec)
		return true
	})
	return snap
}
