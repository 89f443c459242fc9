// Package storage holds the record store backing a collection and the
// snapshot persistence for the whole database.
package storage

import (
	"sync"

	"github.com/sanonone/solarisdb/pkg/core/types"
)

// Store is the keyed record store a collection keeps its vectors and
// metadata in, separate from the index structure.
type Store interface {
	// Put stores or replaces a record under its ID.
	Put(rec types.Record)
	// Get returns the record and whether it exists.
	Get(id string) (types.Record, bool)
	// Delete removes a record. Deleting an unknown ID is a no-op.
	Delete(id string)
	// Len returns the number of stored records.
	Len() int
	// Iterate calls fn for every record until fn returns false. The
	// iteration order is unspecified. The store must not be mutated from
	// inside fn.
	Iterate(fn func(rec types.Record) bool)
}

// MemoryStore is the in-memory Store implementation.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]types.Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]types.Record)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Put(rec types.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
}

func (s *MemoryStore) Get(id string) (types.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok
}

func (s *MemoryStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore) Iterate(fn func(rec types.Record) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if !fn(rec) {
			return
		}
	}
}
