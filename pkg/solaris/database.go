// Package solaris is the embedding surface of the database: named
// collections of vectors with metadata, searchable by approximate nearest
// neighbor with optional metadata filters.
package solaris

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sanonone/solarisdb/pkg/config"
	"github.com/sanonone/solarisdb/pkg/core"
	"github.com/sanonone/solarisdb/pkg/core/distance"
	"github.com/sanonone/solarisdb/pkg/core/filter"
	"github.com/sanonone/solarisdb/pkg/core/hnsw"
	"github.com/sanonone/solarisdb/pkg/core/types"
	"github.com/sanonone/solarisdb/pkg/storage"
)

// Database is a registry of collections. Instances are independent; nothing
// is shared through globals, so tests and embedders can run several side by
// side.
type Database struct {
	cfg config.Config
	log *slog.Logger

	mu          sync.RWMutex
	collections map[string]*Collection
}

// New creates an empty database from the given configuration.
func New(cfg config.Config) *Database {
	return &Database{
		cfg:         cfg,
		log:         slog.Default().With("db", cfg.Database.Name),
		collections: make(map[string]*Collection),
	}
}

// CollectionOption overrides a configured default for one collection.
type CollectionOption func(*collectionParams)

type collectionParams struct {
	metric         distance.Metric
	m              int
	efConstruction int
	seed           int64
	flat           bool
}

// WithMetric selects the distance metric.
func WithMetric(m distance.Metric) CollectionOption {
	return func(p *collectionParams) { p.metric = m }
}

// WithM sets the per-layer neighbor budget.
func WithM(m int) CollectionOption {
	return func(p *collectionParams) { p.m = m }
}

// WithEfConstruction sets the build-time candidate-list width.
func WithEfConstruction(ef int) CollectionOption {
	return func(p *collectionParams) { p.efConstruction = ef }
}

// WithSeed fixes the layer-assignment RNG, making the graph reproducible.
func WithSeed(seed int64) CollectionOption {
	return func(p *collectionParams) { p.seed = seed }
}

// WithFlatIndex backs the collection with an exact linear scan instead of an
// HNSW graph. Searches are exact and the M and ef parameters are unused;
// suitable for small collections.
func WithFlatIndex() CollectionOption {
	return func(p *collectionParams) { p.flat = true }
}

// CreateCollection registers a new collection. The configured defaults apply
// unless overridden by options; a dimension of zero selects the configured
// default dimension.
func (db *Database) CreateCollection(name string, dimension int, opts ...CollectionOption) (*Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: collection name cannot be empty", ErrInvalidParameter)
	}
	if dimension == 0 {
		dimension = db.cfg.Collections.DefaultDimension
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimension, dimension)
	}

	params := collectionParams{
		metric:         distance.Metric(db.cfg.Collections.DefaultMetric),
		m:              db.cfg.Collections.DefaultM,
		efConstruction: db.cfg.Collections.DefaultEfConstruction,
	}
	for _, opt := range opts {
		opt(&params)
	}
	if !params.metric.Valid() {
		return nil, fmt.Errorf("%w: unknown metric %q", ErrInvalidParameter, params.metric)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.collections[name]; exists {
		return nil, fmt.Errorf("%w: %q", ErrCollectionAlreadyExists, name)
	}
	if max := db.cfg.Database.MaxCollections; max > 0 && len(db.collections) >= max {
		return nil, fmt.Errorf("%w: collection limit %d reached", ErrInvalidParameter, max)
	}

	newIndex := func() (core.VectorIndex, error) {
		if params.flat {
			idx, err := core.NewFlatIndex(dimension, params.metric)
			if err != nil {
				return nil, err
			}
			idx.ParallelThreshold = db.cfg.Performance.ParallelThreshold
			return idx, nil
		}
		return hnsw.New(hnsw.Config{
			Dimension:      dimension,
			M:              params.m,
			EfConstruction: params.efConstruction,
			EfSearch:       db.cfg.Performance.EfSearch,
			Metric:         params.metric,
			Seed:           params.seed,
		})
	}
	index, err := newIndex()
	if err != nil {
		return nil, err
	}

	col := &Collection{
		name:                name,
		dimension:           dimension,
		metric:              params.metric,
		m:                   params.m,
		efConstruction:      params.efConstruction,
		searchTimeout:       db.cfg.Performance.SearchTimeout,
		overfetchMultiplier: db.cfg.Performance.OverfetchMultiplier,
		compactionThreshold: db.cfg.Performance.CompactionThreshold,
		index:               index,
		newIndex:            newIndex,
		store:               storage.NewMemoryStore(),
		idToInternal:        make(map[string]uint32),
		internalToID:        make(map[uint32]string),
		meta:                newMetaIndex(),
	}
	db.collections[name] = col

	db.log.Info("collection created",
		"collection", name,
		"dimension", dimension,
		"metric", string(params.metric),
		"m", params.m,
		"ef_construction", params.efConstruction)
	return col, nil
}

// DropCollection removes a collection and releases its index.
func (db *Database) DropCollection(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.collections[name]; !exists {
		return fmt.Errorf("%w: %q", ErrCollectionNotFound, name)
	}
	delete(db.collections, name)
	db.log.Info("collection dropped", "collection", name)
	return nil
}

// GetCollection returns a registered collection.
func (db *Database) GetCollection(name string) (*Collection, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	col, ok := db.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCollectionNotFound, name)
	}
	return col, nil
}

// ListCollections returns the registered collection names, sorted.
func (db *Database) ListCollections() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	names := make([]string, 0, len(db.collections))
	for name := range db.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InsertVector routes an insert to a collection and returns the assigned ID.
func (db *Database) InsertVector(collection, id string, vector []float32, metadata map[string]string) (string, error) {
	col, err := db.GetCollection(collection)
	if err != nil {
		return "", err
	}
	return col.Insert(id, vector, metadata)
}

// DeleteVector routes a delete to a collection.
func (db *Database) DeleteVector(collection, id string) error {
	col, err := db.GetCollection(collection)
	if err != nil {
		return err
	}
	return col.Delete(id)
}

// SearchVectors routes a search to a collection.
func (db *Database) SearchVectors(collection string, query []float32, k int) (*SearchResponse, error) {
	col, err := db.GetCollection(collection)
	if err != nil {
		return nil, err
	}
	return col.Search(query, k)
}

// SearchVectorsWithEf routes a search with an explicit candidate-list width.
func (db *Database) SearchVectorsWithEf(collection string, query []float32, k, ef int) (*SearchResponse, error) {
	col, err := db.GetCollection(collection)
	if err != nil {
		return nil, err
	}
	return col.SearchWithEf(query, k, ef)
}

// SearchVectorsFiltered routes a metadata-filtered search.
func (db *Database) SearchVectorsFiltered(collection string, query []float32, k int, spec filter.Spec) (*SearchResponse, error) {
	col, err := db.GetCollection(collection)
	if err != nil {
		return nil, err
	}
	return col.SearchFiltered(query, k, spec)
}

// CollectionInfo describes one collection for Info.
type CollectionInfo struct {
	Name        string `json:"name"`
	Dimension   int    `json:"dimension"`
	Metric      string `json:"metric"`
	VectorCount int    `json:"vector_count"`
}

// DatabaseInfo is the Info summary of a database.
type DatabaseInfo struct {
	Name         string           `json:"name"`
	Collections  []CollectionInfo `json:"collections"`
	TotalVectors int              `json:"total_vectors"`
}

// Info summarizes the database and its collections.
func (db *Database) Info() DatabaseInfo {
	db.mu.RLock()
	defer db.mu.RUnlock()

	info := DatabaseInfo{
		Name:        db.cfg.Database.Name,
		Collections: make([]CollectionInfo, 0, len(db.collections)),
	}
	for _, col := range db.collections {
		count := col.Len()
		info.Collections = append(info.Collections, CollectionInfo{
			Name:        col.Name(),
			Dimension:   col.Dimension(),
			Metric:      string(col.Metric()),
			VectorCount: count,
		})
		info.TotalVectors += count
	}
	sort.Slice(info.Collections, func(i, j int) bool {
		return info.Collections[i].Name < info.Collections[j].Name
	})
	return info
}

// Save writes a snapshot of every collection to the database's data
// directory.
func (db *Database) Save() error {
	dir := db.cfg.Database.DataDirectory
	if dir == "" {
		return fmt.Errorf("%w: no data directory configured", ErrInvalidParameter)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return db.SaveTo(filepath.Join(dir, db.cfg.Database.Name+".snap"))
}

// SaveTo writes a snapshot of every collection to the given path.
func (db *Database) SaveTo(path string) error {
	db.mu.RLock()
	names := make([]string, 0, len(db.collections))
	for name := range db.collections {
		names = append(names, name)
	}
	sort.Strings(names)

	snap := &storage.Snapshot{Collections: make([]storage.CollectionSnapshot, 0, len(names))}
	for _, name := range names {
		snap.Collections = append(snap.Collections, db.collections[name].snapshot())
	}
	db.mu.RUnlock()

	if err := storage.WriteSnapshot(path, snap); err != nil {
		return err
	}
	db.log.Info("snapshot written", "path", path, "collections", len(snap.Collections))
	return nil
}

// LoadFrom restores collections from a snapshot into an empty database. The
// graphs are rebuilt by reinsertion, so the snapshot format stays independent
// of the index internals.
func (db *Database) LoadFrom(path string) error {
	snap, err := storage.ReadSnapshot(path)
	if err != nil {
		return err
	}

	for _, cs := range snap.Collections {
		col, err := db.CreateCollection(cs.Name, cs.Dimension,
			WithMetric(distance.Metric(cs.Metric)),
			WithM(cs.M),
			WithEfConstruction(cs.EfConstruction))
		if err != nil {
			return fmt.Errorf("failed to restore collection %q: %w", cs.Name, err)
		}
		for _, res := range col.InsertBatch(cs.Records) {
			if res.Err != nil {
				return fmt.Errorf("failed to restore vector %q in %q: %w", res.ID, cs.Name, res.Err)
			}
		}
	}
	db.log.Info("snapshot loaded", "path", path, "collections", len(snap.Collections))
	return nil
}

// Records returns the batch records of a collection in unspecified order.
// Intended for admin tooling and tests.
func (db *Database) Records(collection string) ([]types.Record, error) {
	col, err := db.GetCollection(collection)
	if err != nil {
		return nil, err
	}

	col.mu.RLock()
	defer col.mu.RUnlock()
	records := make([]types.Record, 0, len(col.idToInternal))
	col.store.Iterate(func(rec types.Record) bool {
		records = append(records, rec)
		return true
	})
	return records, nil
}
