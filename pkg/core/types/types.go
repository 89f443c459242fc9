// Package types holds the small data carriers shared between the index
// implementations and the database layer built on top of them.
package types

// Candidate is the index-internal search result: a dense internal ID plus the
// metric score of the node against the query. Result slices are always
// ordered best-first; what "best" means depends on the metric polarity
// (ascending distance for Cosine/Euclidean/Manhattan, descending similarity
// for DotProduct). Ties are broken by ascending internal ID.
type Candidate struct {
	ID    uint32
	Score float64
}

// Record is a vector document as handed to batch operations: external ID,
// payload and optional metadata.
type Record struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
}

// BatchResult reports the outcome of a single item within a batch operation.
// Batches never fail wholesale; each item carries its own error.
type BatchResult struct {
	ID  string
	Err error
}
