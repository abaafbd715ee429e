package core

import (
	"context"
	"sync"

	"nwbio/internal/errs"
	"nwbio/internal/ports"
	"nwbio/internal/types"
)

// SessionToken identifies one open I/O session in the process-wide
// registry.  Lazy arrays hold a token instead of the session itself and
// check it on every access.
type SessionToken uint64

var sessions = struct {
	sync.RWMutex
	next uint64
	open map[SessionToken]string
}{open: map[SessionToken]string{}}

func registerSession(path string) SessionToken {
	sessions.Lock()
	defer sessions.Unlock()
	sessions.next++
	token := SessionToken(sessions.next)
	sessions.open[token] = path
	return token
}

// Open reports whether the session is still registered.
func (t SessionToken) Open() bool {
	sessions.RLock()
	defer sessions.RUnlock()
	_, ok := sessions.open[t]
	return ok
}

func (t SessionToken) release() {
	sessions.Lock()
	defer sessions.Unlock()
	delete(sessions.open, t)
}

// LazyArray is a dataset payload left in the store.  Its dtype and shape
// are known without reading; rows are fetched on request, one chunk
// range at a time.
type LazyArray struct {
	token  SessionToken
	path   string
	reader ports.ArrayReader
	dtype  types.DType
	shape  []int
}

func newLazyArray(token SessionToken, path string, reader ports.ArrayReader) *LazyArray {
	return &LazyArray{
		token:  token,
		path:   path,
		reader: reader,
		dtype:  reader.ElementType(),
		shape:  append([]int(nil), reader.Dims()...),
	}
}

// Path returns the store path the array was read from.
func (a *LazyArray) Path() string { return a.path }

func (a *LazyArray) ElementType() types.DType { return a.dtype }

func (a *LazyArray) Dims() []int { return append([]int(nil), a.shape...) }

// Rows returns the size of the first dimension.
func (a *LazyArray) Rows() int {
	if len(a.shape) == 0 {
		return 1
	}
	return a.shape[0]
}

// ReadRows materializes rows [start, stop).
func (a *LazyArray) ReadRows(ctx context.Context, start int, stop int) (types.NDArray, error) {
	if !a.token.Open() {
		return types.NDArray{}, errs.ResourceClosed("dataset %s belongs to a closed session", a.path)
	}
	return a.reader.ReadRows(ctx, start, stop)
}

// Slice is ReadRows under the name callers expect.
func (a *LazyArray) Slice(ctx context.Context, start int, stop int) (types.NDArray, error) {
	return a.ReadRows(ctx, start, stop)
}

// ReadAll materializes the whole array.
func (a *LazyArray) ReadAll(ctx context.Context) (types.NDArray, error) {
	return a.ReadRows(ctx, 0, a.Rows())
}

// Materialize reads any array source fully into memory.
func Materialize(ctx context.Context, src ports.ArrayReader) (types.NDArray, error) {
	if arr, ok := src.(types.NDArray); ok {
		return arr, nil
	}
	rows := 1
	if dims := src.Dims(); len(dims) > 0 {
		rows = dims[0]
	}
	return src.ReadRows(ctx, 0, rows)
}
