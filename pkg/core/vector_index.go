// Package core defines the contract between the database layer and the
// vector index implementations, together with the shared error taxonomy.
//
// This file declares the VectorIndex interface and a FlatIndex baseline that
// scans every vector on each query. FlatIndex is exact and simple; the HNSW
// index in pkg/core/hnsw is the production implementation.
package core

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/sanonone/solarisdb/pkg/core/distance"
	"github.com/sanonone/solarisdb/pkg/core/types"
)

// SearchOptions carries the optional knobs of a search. The zero value means
// default breadth, no pre-filter and no deadline.
type SearchOptions struct {
	// Ef is the candidate-list width. Zero selects the index default;
	// otherwise it must be >= k.
	Ef int
	// AllowList restricts results to the given internal IDs when non-nil.
	// The index still routes through excluded nodes, it just never returns
	// them.
	AllowList map[uint32]struct{}
	// Deadline bounds the exploration. On expiry the search returns the
	// partial best-results set accumulated so far, flagged as timed out.
	Deadline time.Time
}

// VectorIndex defines the operations a vector index must support. Indexes
// speak in dense uint32 internal IDs; the mapping to user-facing string IDs
// lives in the collection layer.
type VectorIndex interface {
	// Insert adds a vector under a fresh internal ID. Inserting an ID that
	// is already live is undefined; callers must Remove it first.
	Insert(internalID uint32, vector []float32) error
	// Remove drops a vector from the index. Removing an unknown ID is a no-op.
	Remove(internalID uint32)
	// Search returns up to k results ordered best-first using the index's
	// default search breadth.
	Search(query []float32, k int) ([]types.Candidate, error)
	// SearchWithEf is Search with a caller-supplied candidate-list width.
	// ef must be >= k.
	SearchWithEf(query []float32, k, ef int) ([]types.Candidate, error)
	// SearchWithOptions is the full-control search. The bool result reports
	// whether the deadline cut the exploration short.
	SearchWithOptions(query []float32, k int, opts SearchOptions) ([]types.Candidate, bool, error)
	// Metric returns the distance metric the index ranks by.
	Metric() distance.Metric
	// Len returns the number of live vectors.
	Len() int
}

// Fragmented is implemented by indexes that tombstone removals instead of
// reclaiming the slot eagerly. The ratio drives collection-level compaction;
// indexes that free removed vectors immediately simply do not implement it.
type Fragmented interface {
	TombstoneRatio() float64
}

// FlatIndex is an exact linear-scan index. Every query computes the distance
// to every live vector, in parallel once the scan is large enough to amortize
// the dispatch overhead.
type FlatIndex struct {
	mu        sync.RWMutex
	dimension int
	metric    distance.Metric
	distFn    distance.Func
	vectors   map[uint32][]float32

	// ParallelThreshold is the minimum number of stored vectors before a
	// scan fans out across workers. Zero keeps the scan sequential.
	ParallelThreshold int
}

// NewFlatIndex creates an empty flat index over vectors of the given
// dimension, ranked by the given metric.
func NewFlatIndex(dimension int, metric distance.Metric) (*FlatIndex, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrInvalidDimension)
	}
	fn, err := distance.GetFunc(metric)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	return &FlatIndex{
		dimension: dimension,
		metric:    metric,
		distFn:    fn,
		vectors:   make(map[uint32][]float32),
	}, nil
}

// Insert stores a vector under the given internal ID.
func (idx *FlatIndex) Insert(internalID uint32, vector []float32) error {
	if len(vector) != idx.dimension {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, idx.dimension, len(vector))
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.vectors[internalID] = vector
	return nil
}

// Remove drops a vector from the index.
func (idx *FlatIndex) Remove(internalID uint32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.vectors, internalID)
}

// Search returns the exact k nearest vectors.
func (idx *FlatIndex) Search(query []float32, k int) ([]types.Candidate, error) {
	results, _, err := idx.SearchWithOptions(query, k, SearchOptions{})
	return results, err
}

// SearchWithEf ignores ef beyond validation: a full scan always considers
// every vector.
func (idx *FlatIndex) SearchWithEf(query []float32, k, ef int) ([]types.Candidate, error) {
	results, _, err := idx.SearchWithOptions(query, k, SearchOptions{Ef: ef})
	return results, err
}

// SearchWithOptions performs the scan. A flat scan is never cut short by the
// deadline: the scan itself is the cheapest operation the index performs.
func (idx *FlatIndex) SearchWithOptions(query []float32, k int, opts SearchOptions) ([]types.Candidate, bool, error) {
	if k <= 0 || (opts.Ef != 0 && opts.Ef < k) {
		return nil, false, fmt.Errorf("%w: k=%d ef=%d", ErrInvalidParameter, k, opts.Ef)
	}
	if len(query) != idx.dimension {
		return nil, false, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, idx.dimension, len(query))
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.vectors) == 0 {
		return nil, false, ErrEmptyIndex
	}

	results := idx.scanAll(query, opts.AllowList)

	larger := idx.metric.LargerIsBetter()
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			if larger {
				return results[i].Score > results[j].Score
			}
			return results[i].Score < results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, false, nil
}

// scanAll scores every vector against the query. Above ParallelThreshold the
// scan is partitioned across one worker per CPU; each worker writes into a
// disjoint slice range, so no locking is needed beyond the read lock already
// held by the caller.
func (idx *FlatIndex) scanAll(query []float32, allowList map[uint32]struct{}) []types.Candidate {
	ids := make([]uint32, 0, len(idx.vectors))
	for id := range idx.vectors {
		if allowList != nil {
			if _, ok := allowList[id]; !ok {
				continue
			}
		}
		ids = append(ids, id)
	}

	results := make([]types.Candidate, len(ids))
	skip := make([]bool, len(ids))
	score := func(i int) {
		id := ids[i]
		d, err := idx.distFn(query, idx.vectors[id])
		if err != nil {
			// Dimension is enforced on insert; a failure here means the
			// stored vector was corrupted. Drop it from the results.
			skip[i] = true
			return
		}
		results[i] = types.Candidate{ID: id, Score: d}
	}

	if idx.ParallelThreshold <= 0 || len(ids) < idx.ParallelThreshold {
		for i := range ids {
			score(i)
		}
		return dropSkipped(results, skip)
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > len(ids) {
		numWorkers = len(ids)
	}
	var wg sync.WaitGroup
	chunk := (len(ids) + numWorkers - 1) / numWorkers
	for w := 0; w < numWorkers; w++ {
		start := w * chunk
		end := start + chunk
		if end > len(ids) {
			end = len(ids)
		}
		if start >= end {
			break
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				score(i)
			}
		}(start, end)
	}
	wg.Wait()
	return dropSkipped(results, skip)
}

// dropSkipped compacts the scan results in place, removing the entries the
// workers flagged.
func dropSkipped(results []types.Candidate, skip []bool) []types.Candidate {
	out := results[:0]
	for i := range results {
		if skip[i] {
			continue
		}
		out = append(out, results[i])
	}
	return out
}

// Metric returns the index's distance metric.
func (idx *FlatIndex) Metric() distance.Metric {
	return idx.metric
}

// Len returns the number of stored vectors.
func (idx *FlatIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}
