package adapters

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nwbio/internal/errs"
	"nwbio/internal/types"
)

func newTestStore() *BoltStoreAdapter {
	return NewBoltStoreAdapter(BoltStoreOptions{NoSync: true})
}

func TestBoltStoreTreeRoundTrip(t *testing.T) {
	ctx := t.Context()
	path := filepath.Join(t.TempDir(), "tree.nwb")
	store := newTestStore()

	w, err := store.Open(ctx, path, types.SessionModeWrite)
	require.NoError(t, err)
	require.NoError(t, w.CreateGroup(ctx, "/acquisition"))
	data := types.Vector(types.DTypeInt64, []int64{1, 2, 3, 4, 5})
	layout := types.DatasetLayout{DType: types.DTypeInt32, Shape: []int{5}, ChunkRows: 2}
	require.NoError(t, w.CreateDataset(ctx, "/acquisition/data", layout, data))
	require.NoError(t, w.SetAttributes(ctx, "/acquisition/data", map[string]any{
		"unit":       "volts",
		"conversion": 1.0,
		"count":      int64(5),
		"flag":       true,
		"dims":       types.Vector(types.DTypeText, []string{"time"}),
		"self":       types.Reference{Path: "/acquisition/data"},
	}))
	require.NoError(t, w.CreateLink(ctx, "/alias", types.Reference{Path: "/acquisition/data"}))
	assert.Equal(t, int64(3), w.Stats().ChunksWritten)
	require.NoError(t, w.Close())

	r, err := store.Open(ctx, path, types.SessionModeRead)
	require.NoError(t, err)
	defer r.Close()

	children, err := r.Children(ctx, "/")
	require.NoError(t, err)
	want := []types.NodeInfo{
		{Name: "acquisition", Path: "/acquisition", Kind: types.NodeKindGroup},
		{Name: "alias", Path: "/alias", Kind: types.NodeKindLink},
	}
	if diff := cmp.Diff(want, children); diff != "" {
		t.Fatalf("children mismatch (-want +got):\n%s", diff)
	}

	attrs, err := r.Attributes(ctx, "/acquisition/data")
	require.NoError(t, err)
	assert.Equal(t, "volts", attrs["unit"])
	assert.Equal(t, 1.0, attrs["conversion"])
	assert.Equal(t, int64(5), attrs["count"])
	assert.Equal(t, true, attrs["flag"])
	assert.Equal(t, types.Reference{Path: "/acquisition/data"}, attrs["self"])
	dims, ok := attrs["dims"].(types.NDArray)
	require.True(t, ok)
	assert.Equal(t, []string{"time"}, dims.Values)

	target, err := r.LinkTarget(ctx, "/alias")
	require.NoError(t, err)
	assert.Equal(t, "/acquisition/data", target.Path)

	reader, err := r.OpenDataset(ctx, "/acquisition/data")
	require.NoError(t, err)
	assert.Equal(t, types.DTypeInt32, reader.ElementType())
	assert.Equal(t, []int{5}, reader.Dims())
	assert.Zero(t, r.Stats().ChunksRead)

	rows, err := reader.ReadRows(ctx, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, rows.Shape)
	assert.Equal(t, []int64{2, 3, 4}, rows.Values)
	assert.Equal(t, int64(2), r.Stats().ChunksRead)

	_, err = reader.ReadRows(ctx, 4, 6)
	assert.True(t, errs.Is(err, errs.KindShapeConstraint))
}

func TestBoltStoreMultiDimensionalAndText(t *testing.T) {
	ctx := t.Context()
	path := filepath.Join(t.TempDir(), "nd.nwb")
	store := newTestStore()

	w, err := store.Open(ctx, path, types.SessionModeWrite)
	require.NoError(t, err)
	matrix := types.NewFloats(types.DTypeFloat64, []int{3, 2}, []float64{0, 1, 2, 3, 4, 5})
	require.NoError(t, w.CreateDataset(ctx, "/m", types.DatasetLayout{DType: types.DTypeFloat32, Shape: []int{3, 2}, ChunkRows: 1}, matrix))
	names := types.Vector(types.DTypeText, []string{"a", "", "ünïcode"})
	require.NoError(t, w.CreateDataset(ctx, "/names", types.DatasetLayout{DType: types.DTypeText, Shape: []int{3}, ChunkRows: 3}, names))
	scalar, err := types.Scalar(types.DTypeText, "hello")
	require.NoError(t, err)
	require.NoError(t, w.CreateDataset(ctx, "/s", types.DatasetLayout{DType: types.DTypeText, Shape: []int{}, ChunkRows: 1}, scalar))
	empty := types.Vector(types.DTypeInt64, []int64{})
	require.NoError(t, w.CreateDataset(ctx, "/empty", types.DatasetLayout{DType: types.DTypeInt64, Shape: []int{0}, ChunkRows: 1}, empty))
	require.NoError(t, w.Close())

	r, err := store.Open(ctx, path, types.SessionModeRead)
	require.NoError(t, err)
	defer r.Close()

	m, err := r.OpenDataset(ctx, "/m")
	require.NoError(t, err)
	got, err := m.ReadRows(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, got.Shape)
	assert.Equal(t, []float64{2, 3, 4, 5}, got.Values)

	n, err := r.OpenDataset(ctx, "/names")
	require.NoError(t, err)
	got, err = n.ReadRows(ctx, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "", "ünïcode"}, got.Values)

	s, err := r.OpenDataset(ctx, "/s")
	require.NoError(t, err)
	got, err = s.ReadRows(ctx, 0, 1)
	require.NoError(t, err)
	value, err := got.Value()
	require.NoError(t, err)
	assert.Equal(t, "hello", value)

	e, err := r.OpenDataset(ctx, "/empty")
	require.NoError(t, err)
	got, err = e.ReadRows(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
}

func TestBoltStoreAttributesAreWriteOnce(t *testing.T) {
	ctx := t.Context()
	store := newTestStore()
	w, err := store.Open(ctx, filepath.Join(t.TempDir(), "a.nwb"), types.SessionModeWrite)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.SetAttributes(ctx, "/", map[string]any{"description": "x"}))
	require.NoError(t, w.SetAttributes(ctx, "/", map[string]any{"description": "x"}))
	err = w.SetAttributes(ctx, "/", map[string]any{"description": "y"})
	assert.True(t, errs.Is(err, errs.KindWriteMode))

	require.NoError(t, w.CreateGroup(ctx, "/g"))
	err = w.CreateGroup(ctx, "/g")
	assert.True(t, errs.Is(err, errs.KindNameCollision))
	err = w.CreateGroup(ctx, "/missing/g")
	assert.True(t, errs.Is(err, errs.KindFormat))
}

func TestBoltStoreLocking(t *testing.T) {
	ctx := t.Context()
	path := filepath.Join(t.TempDir(), "lock.nwb")
	store := newTestStore()

	w, err := store.Open(ctx, path, types.SessionModeWrite)
	require.NoError(t, err)

	_, err = store.Open(ctx, path, types.SessionModeAppend)
	assert.True(t, errs.Is(err, errs.KindWriteMode))
	_, err = store.Open(ctx, path, types.SessionModeRead)
	assert.True(t, errs.Is(err, errs.KindWriteMode))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	r1, err := store.Open(ctx, path, types.SessionModeRead)
	require.NoError(t, err)
	r2, err := store.Open(ctx, path, types.SessionModeExportSource)
	require.NoError(t, err)
	_, err = store.Open(ctx, path, types.SessionModeWrite)
	assert.True(t, errs.Is(err, errs.KindWriteMode))

	err = r1.CreateGroup(ctx, "/g")
	assert.True(t, errs.Is(err, errs.KindWriteMode))
	require.NoError(t, r1.Close())
	require.NoError(t, r2.Close())

	_, err = r1.Children(ctx, "/")
	assert.True(t, errs.Is(err, errs.KindResourceClosed))
}

func TestBoltStoreClosedReader(t *testing.T) {
	ctx := t.Context()
	path := filepath.Join(t.TempDir(), "closed.nwb")
	store := newTestStore()
	w, err := store.Open(ctx, path, types.SessionModeWrite)
	require.NoError(t, err)
	require.NoError(t, w.CreateDataset(ctx, "/d", types.DatasetLayout{DType: types.DTypeInt64, Shape: []int{2}, ChunkRows: 2},
		types.Vector(types.DTypeInt64, []int64{7, 8})))
	require.NoError(t, w.Close())

	r, err := store.Open(ctx, path, types.SessionModeRead)
	require.NoError(t, err)
	reader, err := r.OpenDataset(ctx, "/d")
	require.NoError(t, err)
	require.NoError(t, r.Close())

	_, err = reader.ReadRows(ctx, 0, 2)
	assert.True(t, errs.Is(err, errs.KindResourceClosed))
}

func TestBoltStoreMissingFile(t *testing.T) {
	_, err := newTestStore().Open(t.Context(), filepath.Join(t.TempDir(), "none.nwb"), types.SessionModeRead)
	assert.True(t, errs.Is(err, errs.KindFormat))
}

func TestBoltStoreChunkCache(t *testing.T) {
	ctx := t.Context()
	path := filepath.Join(t.TempDir(), "cache.nwb")
	store := NewBoltStoreAdapter(BoltStoreOptions{NoSync: true, CacheChunks: 4})
	w, err := store.Open(ctx, path, types.SessionModeWrite)
	require.NoError(t, err)
	require.NoError(t, w.CreateDataset(ctx, "/d", types.DatasetLayout{DType: types.DTypeInt64, Shape: []int{4}, ChunkRows: 2},
		types.Vector(types.DTypeInt64, []int64{1, 2, 3, 4})))
	require.NoError(t, w.Close())

	r, err := store.Open(ctx, path, types.SessionModeRead)
	require.NoError(t, err)
	defer r.Close()
	reader, err := r.OpenDataset(ctx, "/d")
	require.NoError(t, err)

	hits := testutil.ToFloat64(chunkCache.WithLabelValues("hit"))
	reads := testutil.ToFloat64(storeChunks.WithLabelValues("read"))
	for range 3 {
		rows, err := reader.ReadRows(ctx, 0, 2)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2}, rows.Values)
	}
	assert.Equal(t, int64(1), r.Stats().ChunksRead)
	assert.Equal(t, hits+2, testutil.ToFloat64(chunkCache.WithLabelValues("hit")))
	assert.Equal(t, reads+1, testutil.ToFloat64(storeChunks.WithLabelValues("read")))
}
