package hnsw

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/sanonone/solarisdb/pkg/core"
	"github.com/sanonone/solarisdb/pkg/core/distance"
)

func newTestIndex(t *testing.T, dim int, metric distance.Metric) *Index {
	t.Helper()
	idx, err := New(Config{Dimension: dim, Metric: metric, Seed: 42})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return idx
}

func randomVectors(n, dim int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	vecs := make([][]float32, n)
	for i := range vecs {
		v := make([]float32, dim)
		for j := range v {
			v[j] = rng.Float32()
		}
		vecs[i] = v
	}
	return vecs
}

func TestInsertAndExactMatch(t *testing.T) {
	idx := newTestIndex(t, 4, distance.Euclidean)

	vecs := randomVectors(200, 4, 1)
	for i, v := range vecs {
		if err := idx.Insert(uint32(i), v); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}
	if idx.Len() != 200 {
		t.Fatalf("Len = %d, want 200", idx.Len())
	}

	// Searching for a stored vector must return it first with score 0.
	for _, probe := range []int{0, 57, 199} {
		results, err := idx.Search(vecs[probe], 1)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) != 1 {
			t.Fatalf("got %d results, want 1", len(results))
		}
		if results[0].ID != uint32(probe) {
			t.Errorf("probe %d: got id %d", probe, results[0].ID)
		}
		if results[0].Score > 1e-6 {
			t.Errorf("probe %d: score %g, want 0", probe, results[0].Score)
		}
	}
}

func TestSearchOrdering(t *testing.T) {
	idx := newTestIndex(t, 8, distance.Euclidean)
	vecs := randomVectors(500, 8, 2)
	for i, v := range vecs {
		if err := idx.Insert(uint32(i), v); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	query := randomVectors(1, 8, 3)[0]
	results, err := idx.SearchWithEf(query, 20, 100)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score < results[i-1].Score {
			t.Fatalf("results out of order at %d: %g < %g", i, results[i].Score, results[i-1].Score)
		}
	}
}

func TestDotProductOrdering(t *testing.T) {
	idx := newTestIndex(t, 4, distance.DotProduct)
	vecs := randomVectors(300, 4, 4)
	for i, v := range vecs {
		if err := idx.Insert(uint32(i), v); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	results, err := idx.SearchWithEf([]float32{1, 1, 1, 1}, 10, 50)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("no results")
	}
	// Dot product is a similarity: scores must be descending.
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Fatalf("similarity out of order at %d: %g > %g", i, results[i].Score, results[i-1].Score)
		}
	}
}

func TestRecallAgainstExactScan(t *testing.T) {
	const (
		n   = 1000
		dim = 16
		k   = 10
	)
	idx := newTestIndex(t, dim, distance.Euclidean)
	vecs := randomVectors(n, dim, 5)
	for i, v := range vecs {
		if err := idx.Insert(uint32(i), v); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	queries := randomVectors(20, dim, 6)
	var hits, total int
	for _, q := range queries {
		exact := bruteForceKNN(vecs, q, k)
		approx, err := idx.SearchWithEf(q, k, 200)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		found := make(map[uint32]struct{}, len(approx))
		for _, r := range approx {
			found[r.ID] = struct{}{}
		}
		for _, id := range exact {
			if _, ok := found[id]; ok {
				hits++
			}
			total++
		}
	}
	recall := float64(hits) / float64(total)
	if recall < 0.9 {
		t.Fatalf("recall %.3f below 0.9", recall)
	}
}

func bruteForceKNN(vecs [][]float32, query []float32, k int) []uint32 {
	type pair struct {
		id uint32
		d  float64
	}
	pairs := make([]pair, len(vecs))
	for i, v := range vecs {
		var sum float64
		for j := range v {
			diff := float64(v[j] - query[j])
			sum += diff * diff
		}
		pairs[i] = pair{id: uint32(i), d: math.Sqrt(sum)}
	}
	for i := 1; i < len(pairs); i++ {
		for j := i; j > 0 && pairs[j].d < pairs[j-1].d; j-- {
			pairs[j], pairs[j-1] = pairs[j-1], pairs[j]
		}
	}
	ids := make([]uint32, k)
	for i := 0; i < k; i++ {
		ids[i] = pairs[i].id
	}
	return ids
}

func TestDimensionMismatch(t *testing.T) {
	idx := newTestIndex(t, 3, distance.Euclidean)

	if err := idx.Insert(0, []float32{1, 2}); !errors.Is(err, core.ErrDimensionMismatch) {
		t.Fatalf("Insert wrong dim: got %v", err)
	}
	if err := idx.Insert(0, []float32{1, 2, 3}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := idx.Search([]float32{1, 2, 3, 4}, 1); !errors.Is(err, core.ErrDimensionMismatch) {
		t.Fatalf("Search wrong dim: got %v", err)
	}
}

func TestEmptyIndex(t *testing.T) {
	idx := newTestIndex(t, 3, distance.Euclidean)
	if _, err := idx.Search([]float32{1, 2, 3}, 1); !errors.Is(err, core.ErrEmptyIndex) {
		t.Fatalf("got %v, want ErrEmptyIndex", err)
	}
}

func TestInvalidParameters(t *testing.T) {
	idx := newTestIndex(t, 3, distance.Euclidean)
	if err := idx.Insert(0, []float32{1, 2, 3}); err != nil {
		t.Fatal(err)
	}

	if _, err := idx.Search([]float32{1, 2, 3}, 0); !errors.Is(err, core.ErrInvalidParameter) {
		t.Errorf("k=0: got %v", err)
	}
	if _, err := idx.SearchWithEf([]float32{1, 2, 3}, 10, 5); !errors.Is(err, core.ErrInvalidParameter) {
		t.Errorf("ef<k: got %v", err)
	}
	if _, err := New(Config{Dimension: 0, Metric: distance.Euclidean}); !errors.Is(err, core.ErrInvalidDimension) {
		t.Errorf("dimension 0: got %v", err)
	}
	if _, err := New(Config{Dimension: 3, Metric: "chebyshev"}); !errors.Is(err, core.ErrInvalidParameter) {
		t.Errorf("bad metric: got %v", err)
	}
}

func TestRemoveTombstones(t *testing.T) {
	idx := newTestIndex(t, 4, distance.Euclidean)
	vecs := randomVectors(100, 4, 7)
	for i, v := range vecs {
		if err := idx.Insert(uint32(i), v); err != nil {
			t.Fatal(err)
		}
	}

	idx.Remove(10)
	idx.Remove(10) // second remove is a no-op
	if idx.Len() != 99 {
		t.Fatalf("Len = %d, want 99", idx.Len())
	}

	results, err := idx.SearchWithEf(vecs[10], 5, 50)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.ID == 10 {
			t.Fatal("tombstoned node returned from search")
		}
	}

	want := 1.0 / 100.0
	if got := idx.TombstoneRatio(); math.Abs(got-want) > 1e-9 {
		t.Fatalf("TombstoneRatio = %g, want %g", got, want)
	}
}

func TestRemoveEntrypoint(t *testing.T) {
	idx := newTestIndex(t, 4, distance.Euclidean)
	vecs := randomVectors(50, 4, 8)
	for i, v := range vecs {
		if err := idx.Insert(uint32(i), v); err != nil {
			t.Fatal(err)
		}
	}

	idx.mu.RLock()
	ep := idx.entrypointID
	idx.mu.RUnlock()

	idx.Remove(ep)

	// The graph must still answer queries through the new entry point.
	results, err := idx.SearchWithEf(vecs[0], 5, 50)
	if err != nil {
		t.Fatalf("Search after entrypoint removal: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("no results after entrypoint removal")
	}
	for _, r := range results {
		if r.ID == ep {
			t.Fatal("removed entrypoint returned from search")
		}
	}
}

func TestRemoveAllThenSearch(t *testing.T) {
	idx := newTestIndex(t, 2, distance.Euclidean)
	for i := 0; i < 5; i++ {
		if err := idx.Insert(uint32(i), []float32{float32(i), 0}); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 5; i++ {
		idx.Remove(uint32(i))
	}
	if _, err := idx.Search([]float32{0, 0}, 1); !errors.Is(err, core.ErrEmptyIndex) {
		t.Fatalf("got %v, want ErrEmptyIndex", err)
	}
}

func TestAllowList(t *testing.T) {
	idx := newTestIndex(t, 4, distance.Euclidean)
	vecs := randomVectors(200, 4, 9)
	for i, v := range vecs {
		if err := idx.Insert(uint32(i), v); err != nil {
			t.Fatal(err)
		}
	}

	allow := map[uint32]struct{}{3: {}, 77: {}, 141: {}}
	results, _, err := idx.SearchWithOptions(vecs[0], 10, core.SearchOptions{Ef: 50, AllowList: allow})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Fatal("no results with allow list")
	}
	for _, r := range results {
		if _, ok := allow[r.ID]; !ok {
			t.Fatalf("id %d not in allow list", r.ID)
		}
	}
}

func TestDeadlineReturnsPartial(t *testing.T) {
	idx := newTestIndex(t, 8, distance.Euclidean)
	vecs := randomVectors(500, 8, 10)
	for i, v := range vecs {
		if err := idx.Insert(uint32(i), v); err != nil {
			t.Fatal(err)
		}
	}

	// An already-expired deadline must not error, only flag the result.
	_, timedOut, err := idx.SearchWithOptions(vecs[0], 10, core.SearchOptions{
		Ef:       200,
		Deadline: time.Now().Add(-time.Second),
	})
	if err != nil {
		t.Fatalf("expired deadline returned error: %v", err)
	}
	if !timedOut {
		t.Fatal("expired deadline not flagged as timed out")
	}
}

func TestBidirectionalEdges(t *testing.T) {
	idx := newTestIndex(t, 8, distance.Euclidean)
	vecs := randomVectors(300, 8, 11)
	for i, v := range vecs {
		if err := idx.Insert(uint32(i), v); err != nil {
			t.Fatal(err)
		}
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for id, node := range idx.nodes {
		if node == nil {
			continue
		}
		for level, conns := range node.Connections {
			for _, neighborID := range conns {
				neighbor := idx.nodes[neighborID]
				if neighbor == nil {
					t.Fatalf("node %d links to missing node %d", id, neighborID)
				}
				if level > neighbor.topLayer() {
					t.Fatalf("node %d links to %d at layer %d above its top %d", id, neighborID, level, neighbor.topLayer())
				}
				if !containsID(neighbor.Connections[level], uint32(id)) {
					t.Fatalf("edge %d->%d at layer %d has no reverse edge", id, neighborID, level)
				}
			}
		}
	}
}

func TestNeighborBudgets(t *testing.T) {
	idx := newTestIndex(t, 8, distance.Euclidean)
	vecs := randomVectors(400, 8, 12)
	for i, v := range vecs {
		if err := idx.Insert(uint32(i), v); err != nil {
			t.Fatal(err)
		}
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for id, node := range idx.nodes {
		if node == nil {
			continue
		}
		for level, conns := range node.Connections {
			budget := idx.m
			if level == 0 {
				budget = idx.mMax0
			}
			if len(conns) > budget {
				t.Fatalf("node %d layer %d has %d connections, budget %d", id, level, len(conns), budget)
			}
		}
	}
}

func TestLayerZeroReachability(t *testing.T) {
	idx := newTestIndex(t, 8, distance.Euclidean)
	vecs := randomVectors(300, 8, 13)
	for i, v := range vecs {
		if err := idx.Insert(uint32(i), v); err != nil {
			t.Fatal(err)
		}
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seen := make(map[uint32]struct{})
	queue := []uint32{idx.entrypointID}
	seen[idx.entrypointID] = struct{}{}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, n := range idx.nodes[id].Connections[0] {
			if _, ok := seen[n]; !ok {
				seen[n] = struct{}{}
				queue = append(queue, n)
			}
		}
	}
	if len(seen) != 300 {
		t.Fatalf("only %d of 300 nodes reachable on layer 0", len(seen))
	}
}

func TestDeterministicWithSeed(t *testing.T) {
	build := func() *Index {
		idx, err := New(Config{Dimension: 4, Metric: distance.Euclidean, Seed: 1234})
		if err != nil {
			t.Fatal(err)
		}
		for i, v := range randomVectors(100, 4, 14) {
			if err := idx.Insert(uint32(i), v); err != nil {
				t.Fatal(err)
			}
		}
		return idx
	}
	a, b := build(), build()

	query := randomVectors(1, 4, 15)[0]
	ra, err := a.SearchWithEf(query, 10, 50)
	if err != nil {
		t.Fatal(err)
	}
	rb, err := b.SearchWithEf(query, 10, 50)
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(ra) != fmt.Sprint(rb) {
		t.Fatalf("same seed produced different results:\n%v\n%v", ra, rb)
	}
}

func TestConcurrentSearchDuringInsert(t *testing.T) {
	idx := newTestIndex(t, 8, distance.Euclidean)
	vecs := randomVectors(1000, 8, 16)
	for i := 0; i < 100; i++ {
		if err := idx.Insert(uint32(i), vecs[i]); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 100; i < 1000; i++ {
			if err := idx.Insert(uint32(i), vecs[i]); err != nil {
				t.Errorf("Insert: %v", err)
				return
			}
		}
	}()

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			for _, q := range randomVectors(50, 8, seed) {
				if _, err := idx.SearchWithEf(q, 5, 50); err != nil {
					t.Errorf("Search: %v", err)
					return
				}
			}
		}(int64(17 + w))
	}
	wg.Wait()
}

func containsID(conns []uint32, id uint32) bool {
	for _, c := range conns {
		if c == id {
			return true
		}
	}
	return false
}
