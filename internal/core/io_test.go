package core

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nwbio/internal/errs"
	"nwbio/internal/types"
)

func materialize(t *testing.T, value any) types.NDArray {
	t.Helper()
	lazy, ok := value.(*LazyArray)
	require.True(t, ok, "expected a lazy array, got %T", value)
	arr, err := lazy.ReadAll(t.Context())
	require.NoError(t, err)
	return arr
}

func scalar(t *testing.T, value any) any {
	t.Helper()
	v, err := materialize(t, value).Value()
	require.NoError(t, err)
	return v
}

func writeFile(t *testing.T, tm *TypeMap, path string, opts IOOptions, root Object) {
	t.Helper()
	io := NewIO(testStore(), tm, opts)
	require.NoError(t, io.Open(t.Context(), path, types.SessionModeWrite))
	require.NoError(t, io.Write(t.Context(), root))
	require.NoError(t, io.Close())
}

func TestIOLazyRead(t *testing.T) {
	tm := bundledTypeMap(t, "2.6.0")
	path := filepath.Join(t.TempDir(), "lazy.nwb")
	opts := IOOptions{ChunkBytes: 16}

	file := newTestFile(t, tm)
	values := []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	require.NoError(t, file.AddChild("acquisition", newRateSeries(t, tm, "counts", values)))
	writeFile(t, tm, path, opts, file)

	io := openIO(t, tm, path, types.SessionModeRead, opts)
	root, err := io.Read(t.Context())
	require.NoError(t, err)
	ts, ok := root.Base().Child("acquisition", "counts")
	require.True(t, ok)

	data, ok := ts.Base().Field("data").(*LazyArray)
	require.True(t, ok)
	assert.Equal(t, []int{10}, data.Dims())
	assert.Equal(t, types.DTypeInt64, data.ElementType())
	assert.Zero(t, io.Stats().ChunksRead, "reading must not touch payload chunks")

	head, err := data.Slice(t.Context(), 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1}, head.Values)
	assert.Equal(t, int64(1), io.Stats().ChunksRead)

	mid, err := data.Slice(t.Context(), 4, 7)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5, 6}, mid.Values)
	assert.Equal(t, int64(3), io.Stats().ChunksRead)

	assert.Equal(t, 1.0, ts.Base().Field("starting_time_rate"))
	assert.Equal(t, 0.0, scalar(t, ts.Base().Field("starting_time")))
}

func TestIORoundTrip(t *testing.T) {
	tm := bundledTypeMap(t, "2.6.0")
	path := filepath.Join(t.TempDir(), "roundtrip.nwb")

	file := newTestFile(t, tm)
	require.NoError(t, file.Set("general_experimenter", []string{"Ada", "Grace"}))
	require.NoError(t, file.Set("general_lab", "neuro lab"))
	ts := newRateSeries(t, tm, "speed", []float64{0.5, 1.5, 2.5})
	require.NoError(t, ts.Set("comments", "treadmill"))
	require.NoError(t, file.AddChild("acquisition", ts))
	module := newContainer(t, tm, "core", "ProcessingModule", "behavior", map[string]any{"description": "processed"})
	require.NoError(t, module.AddChild("nwb_data_interface", newRateSeries(t, tm, "smoothed", []float64{1, 2})))
	require.NoError(t, file.AddChild("processing", module))
	writeFile(t, tm, path, IOOptions{}, file)

	io := openIO(t, tm, path, types.SessionModeRead, IOOptions{})
	obj, err := io.Read(t.Context())
	require.NoError(t, err)
	got := obj.Base()

	assert.Equal(t, "NWBFile", got.TypeName())
	assert.Equal(t, file.ObjectID(), got.ObjectID())
	assert.True(t, got.Sealed())
	assert.Equal(t, "session-001", scalar(t, got.Field("identifier")))
	assert.Equal(t, sessionStart.Format("2006-01-02T15:04:05Z07:00"), scalar(t, got.Field("session_start_time")))
	assert.Equal(t, []string{"Ada", "Grace"}, materialize(t, got.Field("general_experimenter")).Values)
	assert.Equal(t, "neuro lab", scalar(t, got.Field("general_lab")))

	speed, ok := got.Child("acquisition", "speed")
	require.True(t, ok)
	assert.Same(t, got, speed.Base().Parent())
	assert.Equal(t, "treadmill", speed.Base().Field("comments"))
	assert.Equal(t, "no description", speed.Base().Field("description"))
	assert.Equal(t, "m", speed.Base().Field("data_unit"))
	assert.Equal(t, []float64{0.5, 1.5, 2.5}, materialize(t, speed.Base().Field("data")).Values)

	mod, ok := got.Child("processing", "behavior")
	require.True(t, ok)
	assert.Equal(t, "processed", mod.Base().Field("description"))
	smoothed, ok := mod.Base().Child("nwb_data_interface", "smoothed")
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2}, materialize(t, smoothed.Base().Field("data")).Values)

	root, err := io.ReadBuilder(t.Context())
	require.NoError(t, err)
	version, _ := root.Attribute(types.AttrSchemaVersion)
	assert.Equal(t, "2.6.0", version)
}

func TestIOPreservesSharedObjects(t *testing.T) {
	tm := bundledTypeMap(t, "2.6.0")
	path := filepath.Join(t.TempDir(), "shared.nwb")

	file := newTestFile(t, tm)
	clock := newContainer(t, tm, "core", "TimeSeries", "clock", map[string]any{
		"data":       []float64{10, 11, 12},
		"data_unit":  "V",
		"timestamps": []float64{0, 0.1, 0.2},
	})
	follower := newContainer(t, tm, "core", "TimeSeries", "follower", map[string]any{
		"data":       []float64{7, 8, 9},
		"data_unit":  "V",
		"timestamps": clock,
	})
	require.NoError(t, file.AddChild("acquisition", clock))
	require.NoError(t, file.AddChild("acquisition", follower))

	device := newContainer(t, tm, "core", "Device", "probe", map[string]any{"manufacturer": "acme"})
	group := newContainer(t, tm, "core", "ElectrodeGroup", "shank0", map[string]any{
		"description": "first shank",
		"location":    "CA1",
		"device":      device,
	})
	require.NoError(t, file.AddChild("general_devices", device))
	require.NoError(t, file.AddChild("general_extracellular_ephys", group))
	writeFile(t, tm, path, IOOptions{}, file)

	io := openIO(t, tm, path, types.SessionModeRead, IOOptions{})
	obj, err := io.Read(t.Context())
	require.NoError(t, err)
	got := obj.Base()

	clock2, ok := got.Child("acquisition", "clock")
	require.True(t, ok)
	follower2, ok := got.Child("acquisition", "follower")
	require.True(t, ok)
	assert.Same(t, clock2, follower2.Base().Field("timestamps"))

	device2, ok := got.Child("general_devices", "probe")
	require.True(t, ok)
	group2, ok := got.Child("general_extracellular_ephys", "shank0")
	require.True(t, ok)
	assert.Same(t, device2, group2.Base().Field("device"))

	builder, ok := io.Manager().GetBuilder(follower2)
	require.True(t, ok)
	link, ok := builder.(*GroupBuilder).Link("timestamps")
	require.True(t, ok)
	assert.Equal(t, "/acquisition/clock/timestamps", link.Target.Path())
}

func TestIOAppend(t *testing.T) {
	tm := bundledTypeMap(t, "2.6.0")
	path := filepath.Join(t.TempDir(), "append.nwb")
	file := newTestFile(t, tm)
	require.NoError(t, file.AddChild("acquisition", newRateSeries(t, tm, "first", []float64{1, 2, 3})))
	writeFile(t, tm, path, IOOptions{}, file)

	io := NewIO(testStore(), tm, IOOptions{})
	require.NoError(t, io.Open(t.Context(), path, types.SessionModeAppend))
	err := io.Write(t.Context(), file)
	assert.True(t, errs.Is(err, errs.KindWriteMode), "append needs the container read in this session")

	obj, err := io.Read(t.Context())
	require.NoError(t, err)
	root := obj.Base()
	err = root.Set("session_description", "rewritten")
	assert.True(t, errs.Is(err, errs.KindWriteMode))

	require.NoError(t, root.AddChild("acquisition", newRateSeries(t, tm, "second", []float64{4, 5})))
	require.NoError(t, io.Write(t.Context(), root))
	require.NoError(t, root.AddChild("acquisition", newRateSeries(t, tm, "third", []float64{6})))
	require.NoError(t, io.Write(t.Context(), root))
	require.NoError(t, io.Close())

	reader := openIO(t, tm, path, types.SessionModeRead, IOOptions{})
	obj, err = reader.Read(t.Context())
	require.NoError(t, err)
	got := obj.Base()
	var names []string
	for _, child := range got.Children("acquisition") {
		names = append(names, child.Base().Name())
	}
	if diff := cmp.Diff([]string{"first", "second", "third"}, names); diff != "" {
		t.Fatalf("acquisition mismatch (-want +got):\n%s", diff)
	}
	first, _ := got.Child("acquisition", "first")
	assert.Equal(t, []float64{1, 2, 3}, materialize(t, first.Base().Field("data")).Values)
	assert.Equal(t, "a test session", scalar(t, got.Field("session_description")))
}

func TestIOWriteCycles(t *testing.T) {
	tm := bundledTypeMap(t, "2.6.0")
	path := filepath.Join(t.TempDir(), "cycles.nwb")
	file := newTestFile(t, tm)
	require.NoError(t, file.AddChild("acquisition", newRateSeries(t, tm, "a", []float64{1, 2})))

	io := NewIO(testStore(), tm, IOOptions{})
	require.NoError(t, io.Open(t.Context(), path, types.SessionModeWrite))
	require.NoError(t, io.Write(t.Context(), file))
	require.NoError(t, file.AddChild("acquisition", newRateSeries(t, tm, "b", []float64{3})))
	require.NoError(t, io.Write(t.Context(), file))
	require.NoError(t, io.Close())

	appender := NewIO(testStore(), tm, IOOptions{})
	require.NoError(t, appender.Open(t.Context(), path, types.SessionModeAppend))
	obj, err := appender.Read(t.Context())
	require.NoError(t, err)
	module := newContainer(t, tm, "core", "ProcessingModule", "behavior", map[string]any{"description": "derived"})
	require.NoError(t, obj.Base().AddChild("processing", module))
	require.NoError(t, appender.Write(t.Context(), obj))
	require.NoError(t, module.AddChild("nwb_data_interface", newRateSeries(t, tm, "c", []float64{4, 5})))
	require.NoError(t, appender.Write(t.Context(), obj))
	require.NoError(t, appender.Close())

	reader := openIO(t, tm, path, types.SessionModeRead, IOOptions{})
	obj, err = reader.Read(t.Context())
	require.NoError(t, err)
	var names []string
	for _, child := range obj.Base().Children("acquisition") {
		names = append(names, child.Base().Name())
	}
	if diff := cmp.Diff([]string{"a", "b"}, names); diff != "" {
		t.Fatalf("acquisition mismatch (-want +got):\n%s", diff)
	}
	behavior, ok := obj.Base().Child("processing", "behavior")
	require.True(t, ok)
	c, ok := behavior.Base().Child("nwb_data_interface", "c")
	require.True(t, ok)
	assert.Equal(t, []float64{4, 5}, materialize(t, c.Base().Field("data")).Values)
}

func TestIOModes(t *testing.T) {
	tm := bundledTypeMap(t, "2.6.0")
	dir := t.TempDir()
	path := filepath.Join(dir, "modes.nwb")
	writeFile(t, tm, path, IOOptions{}, newTestFile(t, tm))

	io := NewIO(testStore(), tm, IOOptions{LoadNamespaces: true})
	err := io.Open(t.Context(), filepath.Join(dir, "other.nwb"), types.SessionModeWrite)
	assert.True(t, errs.Is(err, errs.KindWriteMode))

	err = NewIO(testStore(), tm, IOOptions{}).Open(t.Context(), " ", types.SessionModeRead)
	assert.True(t, errs.Is(err, errs.KindFormat), "an empty path is an error, not a crash")

	reader := openIO(t, tm, path, types.SessionModeRead, IOOptions{})
	err = reader.Open(t.Context(), path, types.SessionModeRead)
	assert.True(t, errs.Is(err, errs.KindWriteMode), "a session opens once")
	err = reader.Write(t.Context(), newTestFile(t, tm))
	assert.True(t, errs.Is(err, errs.KindWriteMode))

	writer := NewIO(testStore(), tm, IOOptions{})
	err = writer.Open(t.Context(), path, types.SessionModeAppend)
	assert.True(t, errs.Is(err, errs.KindWriteMode), "readers block writers")

	require.NoError(t, reader.Close())
	require.NoError(t, reader.Close())
	_, err = reader.Read(t.Context())
	assert.True(t, errs.Is(err, errs.KindResourceClosed))
}

func TestIOClosedLazyArray(t *testing.T) {
	tm := bundledTypeMap(t, "2.6.0")
	path := filepath.Join(t.TempDir(), "closed.nwb")
	file := newTestFile(t, tm)
	require.NoError(t, file.AddChild("acquisition", newRateSeries(t, tm, "ts", []float64{1, 2})))
	writeFile(t, tm, path, IOOptions{}, file)

	io := NewIO(testStore(), tm, IOOptions{})
	require.NoError(t, io.Open(t.Context(), path, types.SessionModeRead))
	obj, err := io.Read(t.Context())
	require.NoError(t, err)
	ts, _ := obj.Base().Child("acquisition", "ts")
	data := ts.Base().Field("data").(*LazyArray)
	require.NoError(t, io.Close())

	assert.Equal(t, []int{2}, data.Dims(), "metadata stays available")
	_, err = data.Slice(t.Context(), 0, 1)
	assert.True(t, errs.Is(err, errs.KindResourceClosed))
}

func TestIORejectsUnannotatedRoot(t *testing.T) {
	tm := bundledTypeMap(t, "2.6.0")
	path := filepath.Join(t.TempDir(), "bare.nwb")
	session, err := testStore().Open(t.Context(), path, types.SessionModeWrite)
	require.NoError(t, err)
	require.NoError(t, session.CreateGroup(t.Context(), "/stuff"))
	require.NoError(t, session.Close())

	io := openIO(t, tm, path, types.SessionModeRead, IOOptions{})
	_, err = io.Read(t.Context())
	assert.True(t, errs.Is(err, errs.KindFormat))
}

func TestIOCachedNamespaces(t *testing.T) {
	tm := bundledTypeMap(t, "2.5.0")
	path := filepath.Join(t.TempDir(), "cached.nwb")
	file := newTestFile(t, tm)
	require.NoError(t, file.AddChild("acquisition", newRateSeries(t, tm, "ts", []float64{1})))
	writeFile(t, tm, path, IOOptions{}, file)

	io := openIO(t, tm, path, types.SessionModeRead, IOOptions{})
	sources, err := io.CachedNamespaces(t.Context())
	require.NoError(t, err)
	versions := map[string]string{}
	for _, src := range sources {
		versions[src.File.Name] = src.File.Version
	}
	assert.Equal(t, map[string]string{"hdmf-common": "1.5.0", "core": "2.5.0"}, versions)
	require.NoError(t, io.Close())

	empty := NewTypeMap()
	loaded := openIO(t, empty, path, types.SessionModeRead, IOOptions{LoadNamespaces: true})
	obj, err := loaded.Read(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "NWBFile", obj.Base().TypeName())
	info, ok := loaded.TypeMap().Catalog().Namespace("core")
	require.True(t, ok)
	assert.Equal(t, "2.5.0", info.Version)
	_, ok = empty.Catalog().Namespace("core")
	assert.False(t, ok, "the base map is never modified")

	newer := openIO(t, bundledTypeMap(t, "2.6.0"), path, types.SessionModeExportSource, IOOptions{LoadNamespaces: true})
	info, ok = newer.TypeMap().Catalog().Namespace("core")
	require.True(t, ok)
	assert.Equal(t, "2.6.0", info.Version, "loaded namespaces win over cached ones")
}

func TestIOSkipCacheSpec(t *testing.T) {
	tm := bundledTypeMap(t, "2.6.0")
	path := filepath.Join(t.TempDir(), "nocache.nwb")
	writeFile(t, tm, path, IOOptions{SkipCacheSpec: true}, newTestFile(t, tm))

	io := openIO(t, tm, path, types.SessionModeRead, IOOptions{})
	sources, err := io.CachedNamespaces(t.Context())
	require.NoError(t, err)
	assert.Empty(t, sources)
}

const tetrodeNamespace = `
name: ndx-tetrode
version: 0.2.0
includes: [core]
groups:
  - data_type_def: TetrodeSeries
    data_type_inc: TimeSeries
    attributes:
      - name: channel
        dtype: int32
        required: false
`

func TestIOReadRejectsUnknownChildType(t *testing.T) {
	tm := bundledTypeMap(t, "2.6.0")
	ext := tm.Derive()
	require.NoError(t, ext.LoadNamespace(t.Context(), namespaceSource(t, tetrodeNamespace)))
	path := filepath.Join(t.TempDir(), "tetrode.nwb")

	file := newTestFile(t, ext)
	series := newContainer(t, ext, "ndx-tetrode", "TetrodeSeries", "tt0", map[string]any{
		"data":               []float64{1, 2},
		"data_unit":          "V",
		"starting_time":      0.0,
		"starting_time_rate": 10.0,
		"channel":            int32(3),
	})
	require.NoError(t, file.AddChild("acquisition", series))
	writeFile(t, ext, path, IOOptions{SkipCacheSpec: true}, file)

	io := openIO(t, tm, path, types.SessionModeRead, IOOptions{})
	_, err := io.Read(t.Context())
	assert.True(t, errs.Is(err, errs.KindUnknownType), "got %v", err)
	require.NoError(t, io.Close())

	withExt := openIO(t, ext, path, types.SessionModeRead, IOOptions{})
	obj, err := withExt.Read(t.Context())
	require.NoError(t, err)
	got, ok := obj.Base().Child("acquisition", "tt0")
	require.True(t, ok)
	assert.Equal(t, "TetrodeSeries", got.Base().TypeName())
}
