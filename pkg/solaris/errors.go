package solaris

import "github.com/sanonone/solarisdb/pkg/core"

// The error taxonomy lives in pkg/core so the index packages can share it.
// Re-exported here so embedders only import this package.
var (
	ErrDimensionMismatch       = core.ErrDimensionMismatch
	ErrDuplicateID             = core.ErrDuplicateID
	ErrVectorNotFound          = core.ErrVectorNotFound
	ErrCollectionNotFound      = core.ErrCollectionNotFound
	ErrCollectionAlreadyExists = core.ErrCollectionAlreadyExists
	ErrInvalidDimension        = core.ErrInvalidDimension
	ErrInvalidParameter        = core.ErrInvalidParameter
	ErrEmptyIndex              = core.ErrEmptyIndex
	ErrSearchTimeout           = core.ErrSearchTimeout
	ErrInternalInconsistency   = core.ErrInternalInconsistency
)
