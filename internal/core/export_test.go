package core

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nwbio/internal/errs"
	"nwbio/internal/types"
)

func sharedClockFile(t *testing.T, tm *TypeMap) *Container {
	t.Helper()
	file := newTestFile(t, tm)
	clock := newContainer(t, tm, "core", "TimeSeries", "clock", map[string]any{
		"data":       []float64{1, 2, 3},
		"data_unit":  "V",
		"timestamps": []float64{0, 0.5, 1},
	})
	follower := newContainer(t, tm, "core", "TimeSeries", "follower", map[string]any{
		"data":       []float64{4, 5, 6},
		"data_unit":  "V",
		"timestamps": clock,
	})
	require.NoError(t, file.AddChild("acquisition", clock))
	require.NoError(t, file.AddChild("acquisition", follower))
	return file
}

func TestExportCopiesAndUpgrades(t *testing.T) {
	old := bundledTypeMap(t, "2.5.0")
	current := bundledTypeMap(t, "2.6.0")
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.nwb")
	dstPath := filepath.Join(dir, "dst.nwb")
	file := sharedClockFile(t, old)
	writeFile(t, old, srcPath, IOOptions{}, file)

	src := openIO(t, old, srcPath, types.SessionModeExportSource, IOOptions{})
	dst := NewIO(testStore(), current, IOOptions{})
	require.NoError(t, dst.Open(t.Context(), dstPath, types.SessionModeExportDest))
	require.NoError(t, dst.Export(t.Context(), src, nil))
	require.NoError(t, dst.Close())

	reader := openIO(t, current, dstPath, types.SessionModeRead, IOOptions{})
	root, err := reader.ReadBuilder(t.Context())
	require.NoError(t, err)
	version, _ := root.Attribute(types.AttrSchemaVersion)
	assert.Equal(t, "2.6.0", version)
	id, _ := root.Attribute(types.AttrObjectID)
	assert.Equal(t, file.ObjectID(), id)

	acquisition, ok := root.Group("acquisition")
	require.True(t, ok)
	clock, ok := acquisition.Group("clock")
	require.True(t, ok)
	data, ok := clock.Dataset("data")
	require.True(t, ok)
	offset, ok := data.Attribute("offset")
	require.True(t, ok, "defaults of the newer schema are filled in")
	assert.Equal(t, 0.0, offset)

	follower, ok := acquisition.Group("follower")
	require.True(t, ok)
	link, ok := follower.Link("timestamps")
	require.True(t, ok)
	require.NotNil(t, link.Target)
	assert.Equal(t, "/acquisition/clock/timestamps", link.Target.Path())
	assert.Equal(t, dstPath, link.Target.Source(), "links point into the copy")

	values, err := Materialize(t.Context(), data.Data)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, values.Values)
}

func TestExportRebuildsModifiedRoot(t *testing.T) {
	tm := bundledTypeMap(t, "2.6.0")
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.nwb")
	dstPath := filepath.Join(dir, "dst.nwb")
	writeFile(t, tm, srcPath, IOOptions{}, sharedClockFile(t, tm))

	src := openIO(t, tm, srcPath, types.SessionModeExportSource, IOOptions{})
	obj, err := src.Read(t.Context())
	require.NoError(t, err)
	device := newContainer(t, tm, "core", "Device", "amp", map[string]any{"description": "amplifier"})
	require.NoError(t, obj.Base().AddChild("general_devices", device))

	dst := NewIO(testStore(), tm, IOOptions{})
	require.NoError(t, dst.Open(t.Context(), dstPath, types.SessionModeExportDest))
	require.NoError(t, dst.Export(t.Context(), src, obj))
	require.NoError(t, dst.Close())

	reader := openIO(t, tm, dstPath, types.SessionModeRead, IOOptions{})
	got, err := reader.Read(t.Context())
	require.NoError(t, err)
	amp, ok := got.Base().Child("general_devices", "amp")
	require.True(t, ok)
	assert.Equal(t, "amplifier", amp.Base().Field("description"))

	clock, ok := got.Base().Child("acquisition", "clock")
	require.True(t, ok)
	follower, ok := got.Base().Child("acquisition", "follower")
	require.True(t, ok)
	assert.Same(t, clock, follower.Base().Field("timestamps"))
	assert.Equal(t, []float64{4, 5, 6}, materialize(t, follower.Base().Field("data")).Values)
}

func TestExportRejects(t *testing.T) {
	current := bundledTypeMap(t, "2.6.0")
	old := bundledTypeMap(t, "2.5.0")
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.nwb")
	writeFile(t, current, srcPath, IOOptions{}, newTestFile(t, current))
	src := openIO(t, current, srcPath, types.SessionModeExportSource, IOOptions{})

	t.Run("older destination schema", func(t *testing.T) {
		dst := openIO(t, old, filepath.Join(dir, "old.nwb"), types.SessionModeExportDest, IOOptions{})
		err := dst.Export(t.Context(), src, nil)
		assert.True(t, errs.Is(err, errs.KindNamespaceConflict), "got %v", err)
	})

	t.Run("destination not in export mode", func(t *testing.T) {
		dst := openIO(t, current, filepath.Join(dir, "plain.nwb"), types.SessionModeWrite, IOOptions{})
		err := dst.Export(t.Context(), src, nil)
		assert.True(t, errs.Is(err, errs.KindWriteMode))
	})

	t.Run("closed source", func(t *testing.T) {
		closed := NewIO(testStore(), current, IOOptions{})
		dst := openIO(t, current, filepath.Join(dir, "closed.nwb"), types.SessionModeExportDest, IOOptions{})
		err := dst.Export(t.Context(), closed, nil)
		assert.True(t, errs.Is(err, errs.KindResourceClosed))
	})
}
