package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sanonone/solarisdb/pkg/core/types"
)

func TestMemoryStoreBasics(t *testing.T) {
	s := NewMemoryStore()

	s.Put(types.Record{ID: "a", Vector: []float32{1, 2}, Metadata: map[string]string{"k": "v"}})
	s.Put(types.Record{ID: "b", Vector: []float32{3, 4}})
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}

	rec, ok := s.Get("a")
	if !ok || rec.Metadata["k"] != "v" {
		t.Fatalf("Get(a) = %+v, %v", rec, ok)
	}

	// Put replaces.
	s.Put(types.Record{ID: "a", Vector: []float32{9, 9}})
	rec, _ = s.Get("a")
	if rec.Vector[0] != 9 {
		t.Fatalf("Put did not replace: %+v", rec)
	}
	if s.Len() != 2 {
		t.Fatalf("Len after replace = %d, want 2", s.Len())
	}

	s.Delete("a")
	s.Delete("missing")
	if _, ok := s.Get("a"); ok {
		t.Fatal("record still present after Delete")
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
}

func TestMemoryStoreIterateStops(t *testing.T) {
	s := NewMemoryStore()
	for _, id := range []string{"a", "b", "c", "d"} {
		s.Put(types.Record{ID: id, Vector: []float32{0}})
	}

	var visited int
	s.Iterate(func(types.Record) bool {
		visited++
		return visited < 2
	})
	if visited != 2 {
		t.Fatalf("visited %d records, want 2", visited)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solaris.snap")

	snap := &Snapshot{
		Collections: []CollectionSnapshot{
			{
				Name:           "docs",
				Dimension:      3,
				Metric:         "euclidean",
				M:              16,
				EfConstruction: 200,
				Records: []types.Record{
					{ID: "a", Vector: []float32{1, 2, 3}, Metadata: map[string]string{"lang": "en"}},
					{ID: "b", Vector: []float32{4, 5, 6}},
				},
			},
		},
	}
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	loaded, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if len(loaded.Collections) != 1 {
		t.Fatalf("got %d collections", len(loaded.Collections))
	}
	col := loaded.Collections[0]
	if col.Name != "docs" || col.Dimension != 3 || col.Metric != "euclidean" {
		t.Fatalf("collection header mismatch: %+v", col)
	}
	if len(col.Records) != 2 || col.Records[0].Metadata["lang"] != "en" {
		t.Fatalf("records mismatch: %+v", col.Records)
	}
}

func TestSnapshotDetectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solaris.snap")
	snap := &Snapshot{Collections: []CollectionSnapshot{{Name: "x", Dimension: 2, Metric: "cosine"}}}
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Flip a payload byte past the header.
	data[headerSize+3] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadSnapshot(path); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("got %v, want ErrChecksumMismatch", err)
	}
}

func TestSnapshotRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage")
	if err := os.WriteFile(path, []byte("not a snapshot at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadSnapshot(path); !errors.Is(err, ErrInvalidSnapshot) {
		t.Fatalf("got %v, want ErrInvalidSnapshot", err)
	}
}
