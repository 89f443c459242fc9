package core

import "errors"

// Error taxonomy shared by the index implementations and the database layer.
// All errors returned by public operations wrap one of these sentinels so
// callers can classify failures with errors.Is.
var (
	// ErrDimensionMismatch reports a vector whose length disagrees with the
	// fixed dimension of its collection or index.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrDuplicateID reports an insert under an ID that is already present.
	ErrDuplicateID = errors.New("id already exists")
	// ErrVectorNotFound reports an operation on a missing vector ID.
	ErrVectorNotFound = errors.New("vector not found")
	// ErrCollectionNotFound reports an operation on a missing collection.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrCollectionAlreadyExists reports a second create under the same name.
	ErrCollectionAlreadyExists = errors.New("collection already exists")
	// ErrInvalidDimension reports a collection created with dimension zero.
	ErrInvalidDimension = errors.New("invalid dimension")
	// ErrInvalidParameter reports a bad tuning parameter (M, ef, k).
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrEmptyIndex reports a search against an index with no live vectors.
	ErrEmptyIndex = errors.New("index is empty")
	// ErrSearchTimeout classifies a search cut short by its deadline.
	// Searches return partial results flagged as timed out instead of this
	// error; the sentinel exists for embedders that need to fail strictly.
	ErrSearchTimeout = errors.New("search timeout")
	// ErrInternalInconsistency signals a violated graph invariant, such as a
	// dangling entry point. It is a logic fault, not a request error, and
	// must never be silently swallowed.
	ErrInternalInconsistency = errors.New("internal inconsistency")
)
