package ports

import (
	"context"

	"nwbio/internal/types"
)

// ArrayReader is a row-addressable array.  In-memory arrays and lazy
// backend arrays both implement it, so datasets can be copied chunk by
// chunk without materializing them.
type ArrayReader interface {
	ElementType() types.DType
	Dims() []int
	ReadRows(ctx context.Context, start int, stop int) (types.NDArray, error)
}

// StorePort opens sessions on a hierarchical store.
type StorePort interface {
	// Open acquires the store at path.  Write-like modes take the store
	// exclusively; read-like modes share it with other readers.
	Open(ctx context.Context, path string, mode types.SessionMode) (StoreSession, error)
}

// StoreSession is an open handle on one store.  Paths are absolute and
// "/"-separated; "/" is the root group, which always exists.
type StoreSession interface {
	Path() string
	Mode() types.SessionMode

	CreateGroup(ctx context.Context, path string) error

	// CreateDataset writes a new dataset, pulling rows from src one chunk
	// at a time.
	CreateDataset(ctx context.Context, path string, layout types.DatasetLayout, src ArrayReader) error

	// SetAttributes adds attributes to an existing node.  Re-setting an
	// attribute to its stored value is a no-op; changing it fails.
	SetAttributes(ctx context.Context, path string, attrs map[string]any) error

	CreateLink(ctx context.Context, path string, target types.Reference) error

	Stat(ctx context.Context, path string) (types.NodeInfo, bool, error)
	Children(ctx context.Context, path string) ([]types.NodeInfo, error)
	Attributes(ctx context.Context, path string) (map[string]any, error)
	LinkTarget(ctx context.Context, path string) (types.Reference, error)

	// OpenDataset returns a reader that loads metadata only; payload
	// chunks are fetched on ReadRows.
	OpenDataset(ctx context.Context, path string) (ArrayReader, error)

	Stats() types.StoreStats
	Close() error
}
