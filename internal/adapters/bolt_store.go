package adapters

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"github.com/boltdb/bolt"
	"github.com/golang/groupcache/lru"
	"github.com/rs/zerolog/log"

	"nwbio/internal/errs"
	"nwbio/internal/ports"
	"nwbio/internal/shared"
	"nwbio/internal/types"
)

// Reserved keys inside a node bucket.  Node names never start with NUL,
// so these cannot collide with children.
var (
	rootBucket = []byte("root")
	keyKind    = []byte("\x00kind")
	keyAttrs   = []byte("\x00attrs")
	keyMeta    = []byte("\x00meta")
	keyTarget  = []byte("\x00target")
	chunkTag   = byte('c')
)

func chunkKey(index int) []byte {
	key := []byte{0, chunkTag, 0, 0, 0, 0, 0, 0, 0, 0}
	binary.BigEndian.PutUint64(key[2:], uint64(index))
	return key
}

// BoltStoreOptions tunes the bolt store.
type BoltStoreOptions struct {
	// LockTimeout bounds how long Open waits for another process to
	// release the file.  Zero fails immediately.
	LockTimeout time.Duration
	// CacheChunks is the number of decoded chunks kept per session.
	// Zero disables the cache.
	CacheChunks int
	// NoSync skips fsync after each transaction.
	NoSync bool
}

// BoltStoreAdapter keeps each store in one bolt file: groups, datasets
// and links are nested buckets mirroring the store hierarchy, and
// dataset payloads are snappy-compressed chunks keyed by index.
type BoltStoreAdapter struct {
	opts BoltStoreOptions
}

var _ ports.StorePort = (*BoltStoreAdapter)(nil)

func NewBoltStoreAdapter(opts BoltStoreOptions) *BoltStoreAdapter {
	return &BoltStoreAdapter{opts: opts}
}

// fileLock tracks the sessions this process holds on one file, so a
// second writer fails at once instead of waiting on the file lock.
type fileLock struct {
	writer  bool
	readers int
}

var fileLocks = struct {
	sync.Mutex
	held map[string]*fileLock
}{held: map[string]*fileLock{}}

func acquireFile(path string, exclusive bool) error {
	fileLocks.Lock()
	defer fileLocks.Unlock()
	lock, ok := fileLocks.held[path]
	if !ok {
		lock = &fileLock{}
		fileLocks.held[path] = lock
	}
	if lock.writer {
		return errs.WriteMode("%s is already open for writing", path)
	}
	if exclusive {
		if lock.readers > 0 {
			return errs.WriteMode("%s is open for reading, cannot open for writing", path)
		}
		lock.writer = true
		return nil
	}
	lock.readers++
	return nil
}

func releaseFile(path string, exclusive bool) {
	fileLocks.Lock()
	defer fileLocks.Unlock()
	lock, ok := fileLocks.held[path]
	if !ok {
		return
	}
	if exclusive {
		lock.writer = false
	} else if lock.readers > 0 {
		lock.readers--
	}
	if !lock.writer && lock.readers == 0 {
		delete(fileLocks.held, path)
	}
}

func (a *BoltStoreAdapter) Open(ctx context.Context, path string, mode types.SessionMode) (ports.StoreSession, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindFormat, err, "resolve store path "+path)
	}
	exclusive := mode.Writable()
	if err := acquireFile(abs, exclusive); err != nil {
		return nil, err
	}
	db, err := a.openDB(abs, mode)
	if err != nil {
		releaseFile(abs, exclusive)
		return nil, err
	}
	s := &boltSession{
		db:        db,
		path:      path,
		abs:       abs,
		mode:      mode,
		exclusive: exclusive,
	}
	if a.opts.CacheChunks > 0 {
		s.cache = lru.New(a.opts.CacheChunks)
	}
	storeSessions.Inc()
	log.Ctx(ctx).Debug().Str("path", abs).Str("mode", string(mode)).Msg("bolt store opened")
	return s, nil
}

func (a *BoltStoreAdapter) openDB(abs string, mode types.SessionMode) (*bolt.DB, error) {
	if mode.Truncates() {
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			return nil, errs.Wrap(errs.KindWriteMode, err, "truncate "+abs)
		}
	} else if _, err := os.Stat(abs); err != nil {
		return nil, errs.Wrap(errs.KindFormat, err, "no store at "+abs)
	}
	opts := &bolt.Options{Timeout: a.opts.LockTimeout, ReadOnly: !mode.Writable()}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Millisecond
	}
	db, err := bolt.Open(abs, os.FileMode(0600), opts)
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, errs.Wrap(errs.KindWriteMode, err, abs+" is locked by another process")
		}
		return nil, errs.Wrap(errs.KindFormat, err, "open store "+abs)
	}
	db.NoSync = a.opts.NoSync
	if mode.Writable() {
		err = db.Update(func(tx *bolt.Tx) error {
			root, err := tx.CreateBucketIfNotExists(rootBucket)
			if err != nil {
				return err
			}
			if root.Get(keyKind) == nil {
				return root.Put(keyKind, []byte(types.NodeKindGroup))
			}
			return nil
		})
	} else {
		err = db.View(func(tx *bolt.Tx) error {
			if tx.Bucket(rootBucket) == nil {
				return errs.Format("%s is not a store file", abs)
			}
			return nil
		})
	}
	if err != nil {
		db.Close()
		if errs.KindOf(err) != "" {
			return nil, err
		}
		return nil, errs.Wrap(errs.KindFormat, err, "initialize store "+abs)
	}
	return db, nil
}

type boltSession struct {
	db        *bolt.DB
	path      string
	abs       string
	mode      types.SessionMode
	exclusive bool
	closed    atomic.Bool

	cacheMu sync.Mutex
	cache   *lru.Cache

	chunksRead    atomic.Int64
	bytesRead     atomic.Int64
	chunksWritten atomic.Int64
	bytesWritten  atomic.Int64
}

func (s *boltSession) Path() string            { return s.path }
func (s *boltSession) Mode() types.SessionMode { return s.mode }

func (s *boltSession) Stats() types.StoreStats {
	return types.StoreStats{
		ChunksRead:    s.chunksRead.Load(),
		BytesRead:     s.bytesRead.Load(),
		ChunksWritten: s.chunksWritten.Load(),
		BytesWritten:  s.bytesWritten.Load(),
	}
}

func (s *boltSession) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	storeSessions.Dec()
	err := s.db.Close()
	releaseFile(s.abs, s.exclusive)
	if err != nil {
		return errs.Wrap(errs.KindFormat, err, "close store "+s.abs)
	}
	return nil
}

func (s *boltSession) check(write bool) error {
	if s.closed.Load() {
		return errs.ResourceClosed("store %s is closed", s.path)
	}
	if write && !s.mode.Writable() {
		return errs.WriteMode("store %s is open in %s mode", s.path, s.mode)
	}
	return nil
}

// node walks from the root bucket to the bucket at path.
func node(tx *bolt.Tx, path string) *bolt.Bucket {
	b := tx.Bucket(rootBucket)
	for _, part := range shared.SplitPath(path) {
		if b == nil {
			return nil
		}
		b = b.Bucket([]byte(part))
	}
	return b
}

func nodeKind(b *bolt.Bucket) types.NodeKind {
	return types.NodeKind(b.Get(keyKind))
}

// createNode adds a child bucket of the given kind under the parent
// group of path.
func createNode(tx *bolt.Tx, path string, kind types.NodeKind) (*bolt.Bucket, error) {
	name := shared.BaseName(path)
	if err := shared.ValidateName(name); err != nil {
		return nil, errs.Wrap(errs.KindFormat, err, "invalid node path "+path)
	}
	parent := node(tx, shared.ParentPath(path))
	if parent == nil {
		return nil, errs.Format("parent of %s does not exist", path)
	}
	if nodeKind(parent) != types.NodeKindGroup {
		return nil, errs.Format("parent of %s is not a group", path)
	}
	if parent.Bucket([]byte(name)) != nil {
		return nil, errs.NameCollision("%s already exists", path)
	}
	b, err := parent.CreateBucket([]byte(name))
	if err != nil {
		return nil, errs.Wrap(errs.KindFormat, err, "create "+path)
	}
	if err := b.Put(keyKind, []byte(kind)); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *boltSession) CreateGroup(ctx context.Context, path string) error {
	if err := s.check(true); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		_, err := createNode(tx, path, types.NodeKindGroup)
		return err
	})
}

// CreateDataset stores the layout first, then one chunk per transaction
// so that src is never read while a write transaction is held.
func (s *boltSession) CreateDataset(ctx context.Context, path string, layout types.DatasetLayout, src ports.ArrayReader) error {
	if err := s.check(true); err != nil {
		return err
	}
	meta, err := json.Marshal(layout)
	if err != nil {
		return errs.Wrap(errs.KindFormat, err, "encode layout of "+path)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := createNode(tx, path, types.NodeKindDataset)
		if err != nil {
			return err
		}
		return b.Put(keyMeta, meta)
	})
	if err != nil {
		return err
	}
	rows := 1
	if len(layout.Shape) > 0 {
		rows = layout.Shape[0]
	}
	for index := 0; index < layout.Chunks(); index++ {
		start := index * layout.ChunkRows
		stop := min(rows, start+layout.ChunkRows)
		arr, err := src.ReadRows(ctx, start, stop)
		if err != nil {
			return err
		}
		cast, err := arr.Cast(layout.DType)
		if err != nil {
			return errs.Wrap(errs.KindTypeMismatch, err, "store "+path)
		}
		data, err := encodeChunk(layout.DType, cast)
		if err != nil {
			return errs.Wrap(errs.KindTypeMismatch, err, "store "+path)
		}
		err = s.db.Update(func(tx *bolt.Tx) error {
			b := node(tx, path)
			if b == nil {
				return errs.Format("dataset %s vanished while writing", path)
			}
			return b.Put(chunkKey(index), data)
		})
		if err != nil {
			return err
		}
		s.chunksWritten.Add(1)
		s.bytesWritten.Add(int64(len(data)))
		storeChunks.WithLabelValues("write").Inc()
		storeBytes.WithLabelValues("write").Add(float64(len(data)))
	}
	log.Ctx(ctx).Debug().
		Str("path", path).
		Str("dtype", string(layout.DType)).
		Ints("shape", layout.Shape).
		Int("chunks", layout.Chunks()).
		Msg("dataset written")
	return nil
}

func (s *boltSession) SetAttributes(ctx context.Context, path string, attrs map[string]any) error {
	if err := s.check(true); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := node(tx, path)
		if b == nil {
			return errs.Format("%s does not exist", path)
		}
		stored, err := decodeAttributes(b.Get(keyAttrs))
		if err != nil {
			return errs.Wrap(errs.KindFormat, err, "attributes of "+path)
		}
		changed := false
		for name, value := range attrs {
			if old, ok := stored[name]; ok {
				same, err := sameAttribute(old, value)
				if err != nil {
					return errs.Wrap(errs.KindTypeMismatch, err, "attribute "+name+" of "+path)
				}
				if same {
					continue
				}
				return errs.WriteMode("attribute %s of %s is already written", name, path)
			}
			stored[name] = value
			changed = true
		}
		if !changed {
			return nil
		}
		raw, err := encodeAttributes(stored)
		if err != nil {
			return errs.Wrap(errs.KindTypeMismatch, err, "attributes of "+path)
		}
		return b.Put(keyAttrs, raw)
	})
}

func (s *boltSession) CreateLink(ctx context.Context, path string, target types.Reference) error {
	if err := s.check(true); err != nil {
		return err
	}
	raw, err := json.Marshal(target)
	if err != nil {
		return errs.Wrap(errs.KindFormat, err, "encode link target of "+path)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := createNode(tx, path, types.NodeKindLink)
		if err != nil {
			return err
		}
		return b.Put(keyTarget, raw)
	})
}

func (s *boltSession) Stat(ctx context.Context, path string) (types.NodeInfo, bool, error) {
	if err := s.check(false); err != nil {
		return types.NodeInfo{}, false, err
	}
	var info types.NodeInfo
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := node(tx, path)
		if b == nil {
			return nil
		}
		found = true
		info = types.NodeInfo{Name: shared.BaseName(path), Path: path, Kind: nodeKind(b)}
		return nil
	})
	return info, found, err
}

// Children lists the direct children of a group in key order.
func (s *boltSession) Children(ctx context.Context, path string) ([]types.NodeInfo, error) {
	if err := s.check(false); err != nil {
		return nil, err
	}
	var out []types.NodeInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		b := node(tx, path)
		if b == nil {
			return errs.Format("%s does not exist", path)
		}
		if nodeKind(b) != types.NodeKindGroup {
			return errs.Format("%s is not a group", path)
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if v != nil || len(k) == 0 || k[0] == 0 {
				continue
			}
			child := b.Bucket(k)
			name := string(k)
			out = append(out, types.NodeInfo{
				Name: name,
				Path: shared.JoinPath(path, name),
				Kind: nodeKind(child),
			})
		}
		return nil
	})
	return out, err
}

func (s *boltSession) Attributes(ctx context.Context, path string) (map[string]any, error) {
	if err := s.check(false); err != nil {
		return nil, err
	}
	var out map[string]any
	err := s.db.View(func(tx *bolt.Tx) error {
		b := node(tx, path)
		if b == nil {
			return errs.Format("%s does not exist", path)
		}
		attrs, err := decodeAttributes(b.Get(keyAttrs))
		if err != nil {
			return errs.Wrap(errs.KindFormat, err, "attributes of "+path)
		}
		out = attrs
		return nil
	})
	return out, err
}

func (s *boltSession) LinkTarget(ctx context.Context, path string) (types.Reference, error) {
	if err := s.check(false); err != nil {
		return types.Reference{}, err
	}
	var ref types.Reference
	err := s.db.View(func(tx *bolt.Tx) error {
		b := node(tx, path)
		if b == nil || nodeKind(b) != types.NodeKindLink {
			return errs.Format("%s is not a link", path)
		}
		if err := json.Unmarshal(b.Get(keyTarget), &ref); err != nil {
			return errs.Wrap(errs.KindFormat, err, "link target of "+path)
		}
		return nil
	})
	return ref, err
}

func (s *boltSession) OpenDataset(ctx context.Context, path string) (ports.ArrayReader, error) {
	if err := s.check(false); err != nil {
		return nil, err
	}
	var layout types.DatasetLayout
	err := s.db.View(func(tx *bolt.Tx) error {
		b := node(tx, path)
		if b == nil || nodeKind(b) != types.NodeKindDataset {
			return errs.Format("%s is not a dataset", path)
		}
		if err := json.Unmarshal(b.Get(keyMeta), &layout); err != nil {
			return errs.Wrap(errs.KindFormat, err, "layout of "+path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if layout.Shape == nil {
		layout.Shape = []int{}
	}
	if layout.ChunkRows <= 0 {
		layout.ChunkRows = 1
	}
	return &boltDataset{session: weak.Make(s), path: path, layout: layout}, nil
}

type cachedChunk struct {
	path  string
	index int
}

func (s *boltSession) cached(key cachedChunk) (any, bool) {
	if s.cache == nil {
		return nil, false
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	v, ok := s.cache.Get(key)
	if ok {
		chunkCache.WithLabelValues("hit").Inc()
	} else {
		chunkCache.WithLabelValues("miss").Inc()
	}
	return v, ok
}

func (s *boltSession) remember(key cachedChunk, values any) {
	if s.cache == nil {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache.Add(key, values)
}

// boltDataset reads a dataset one chunk at a time.  It holds its session
// weakly: once the session is closed or collected, reads fail.
type boltDataset struct {
	session weak.Pointer[boltSession]
	path    string
	layout  types.DatasetLayout
}

func (d *boltDataset) ElementType() types.DType { return d.layout.DType }

func (d *boltDataset) Dims() []int { return append([]int(nil), d.layout.Shape...) }

func (d *boltDataset) rows() int {
	if len(d.layout.Shape) == 0 {
		return 1
	}
	return d.layout.Shape[0]
}

func (d *boltDataset) ReadRows(ctx context.Context, start int, stop int) (types.NDArray, error) {
	s := d.session.Value()
	if s == nil || s.closed.Load() {
		return types.NDArray{}, errs.ResourceClosed("dataset %s belongs to a closed store", d.path)
	}
	rows := d.rows()
	if start < 0 || stop > rows || start > stop {
		return types.NDArray{}, errs.ShapeConstraint(d.path, "row range [%d:%d] out of bounds for %d rows", start, stop, rows)
	}
	rowSize := types.RowSize(d.layout.Shape)
	full := types.NDArray{DType: d.layout.DType, Shape: d.Dims()}
	if len(full.Shape) > 0 {
		full.Shape[0] = 0
	}
	full.Values = emptyValues(d.layout.DType)
	if start == stop {
		return full, nil
	}
	first := start / d.layout.ChunkRows
	last := (stop - 1) / d.layout.ChunkRows
	for index := first; index <= last; index++ {
		chunkRows := min(rows, (index+1)*d.layout.ChunkRows) - index*d.layout.ChunkRows
		values, err := d.chunk(ctx, s, index, chunkRows*rowSize)
		if err != nil {
			return types.NDArray{}, err
		}
		part := types.NDArray{DType: d.layout.DType, Shape: append([]int{chunkRows}, d.layout.Shape[min(1, len(d.layout.Shape)):]...), Values: values}
		if len(d.layout.Shape) == 0 {
			return types.NDArray{DType: d.layout.DType, Shape: []int{}, Values: values}, nil
		}
		full, err = full.AppendRows(part)
		if err != nil {
			return types.NDArray{}, errs.Wrap(errs.KindFormat, err, "assemble "+d.path)
		}
	}
	offset := first * d.layout.ChunkRows
	out, err := full.SliceRows(start-offset, stop-offset)
	if err != nil {
		return types.NDArray{}, errs.Wrap(errs.KindFormat, err, "slice "+d.path)
	}
	return out, nil
}

func (d *boltDataset) chunk(ctx context.Context, s *boltSession, index int, count int) (any, error) {
	key := cachedChunk{path: d.path, index: index}
	if values, ok := s.cached(key); ok {
		return values, nil
	}
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := node(tx, d.path)
		if b == nil {
			return errs.Format("dataset %s does not exist", d.path)
		}
		data := b.Get(chunkKey(index))
		if data == nil {
			return errs.Format("dataset %s is missing chunk %d", d.path, index)
		}
		raw = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	values, err := decodeChunk(d.layout.DType, count, raw)
	if err != nil {
		return nil, errs.Wrap(errs.KindFormat, err, "decode chunk of "+d.path)
	}
	s.chunksRead.Add(1)
	s.bytesRead.Add(int64(len(raw)))
	storeChunks.WithLabelValues("read").Inc()
	storeBytes.WithLabelValues("read").Add(float64(len(raw)))
	s.remember(key, values)
	log.Ctx(ctx).Trace().Str("path", d.path).Int("chunk", index).Msg("chunk read")
	return values, nil
}

func emptyValues(dtype types.DType) any {
	switch {
	case dtype.IsInteger():
		return []int64{}
	case dtype.IsFloat():
		return []float64{}
	case dtype == types.DTypeBool:
		return []bool{}
	}
	return []string{}
}
