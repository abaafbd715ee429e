package core

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nwbio/internal/types"
)

func TestValidateBuiltFile(t *testing.T) {
	tm := bundledTypeMap(t, "2.6.0")
	file := newTestFile(t, tm)
	require.NoError(t, file.AddChild("acquisition", newRateSeries(t, tm, "ts", []float64{1, 2, 3})))
	b, err := NewBuildManager(tm).Build(t.Context(), file)
	require.NoError(t, err)

	errors := NewValidator(tm.Catalog()).Validate(t.Context(), b, "core")
	assert.Empty(t, errors)
}

func TestValidateReportsEveryViolation(t *testing.T) {
	tm := bundledTypeMap(t, "2.6.0")
	es := NewGroupBuilder("bad_series")
	require.NoError(t, es.SetAttribute(types.AttrNamespace, "core"))
	require.NoError(t, es.SetAttribute(types.AttrDataType, "ElectricalSeries"))
	require.NoError(t, es.SetAttribute(types.AttrObjectID, "es-1"))
	data := types.NewFloats(types.DTypeFloat64, []int{1, 1, 1, 1, 1}, []float64{0.5})
	require.NoError(t, es.AddChild(NewDatasetBuilder("data", types.DTypeFloat64, data)))

	errors := NewValidator(tm.Catalog()).Validate(t.Context(), es, "core")
	require.Len(t, errors, 3, "%v", errors)

	kinds := map[types.ValidationErrorKind]int{}
	for _, e := range errors {
		kinds[e.Kind]++
		assert.Equal(t, "ElectricalSeries", e.Type)
	}
	assert.Equal(t, map[types.ValidationErrorKind]int{
		types.ValidationShape:   1,
		types.ValidationMissing: 2,
	}, kinds)
	assert.Contains(t, errors[0].Reason+errors[1].Reason+errors[2].Reason, "(1, 1, 1, 1, 1)")
}

func TestValidateTypeProblems(t *testing.T) {
	tm := bundledTypeMap(t, "2.6.0")
	v := NewValidator(tm.Catalog())

	unknown := NewGroupBuilder("mystery")
	require.NoError(t, unknown.SetAttribute(types.AttrNamespace, "core"))
	require.NoError(t, unknown.SetAttribute(types.AttrDataType, "Teleporter"))
	errors := v.Validate(t.Context(), unknown, "core")
	require.Len(t, errors, 1)
	assert.Equal(t, types.ValidationUnknownType, errors[0].Kind)

	device := NewDatasetBuilder("probe", types.DTypeText, types.NewTexts([]int{}, []string{"x"}))
	require.NoError(t, device.SetAttribute(types.AttrNamespace, "core"))
	require.NoError(t, device.SetAttribute(types.AttrDataType, "Device"))
	errors = v.Validate(t.Context(), device, "core")
	require.Len(t, errors, 1)
	assert.Equal(t, types.ValidationTypeMismatch, errors[0].Kind)

	series := NewGroupBuilder("ts")
	require.NoError(t, series.SetAttribute(types.AttrNamespace, "core"))
	require.NoError(t, series.SetAttribute(types.AttrDataType, "TimeSeries"))
	require.NoError(t, series.SetAttribute("description", int64(7)))
	text := NewDatasetBuilder("data", types.DTypeFloat64, types.NewFloats(types.DTypeFloat64, []int{2}, []float64{1, 2}))
	require.NoError(t, text.SetAttribute("unit", "m"))
	require.NoError(t, series.AddChild(text))
	errors = v.Validate(t.Context(), series, "core")
	require.Len(t, errors, 1, "%v", errors)
	assert.Equal(t, types.ValidationTypeMismatch, errors[0].Kind)
	assert.Contains(t, errors[0].Reason, "description")
}

func TestValidateStoredFileReadsNoPayload(t *testing.T) {
	tm := bundledTypeMap(t, "2.6.0")
	path := filepath.Join(t.TempDir(), "valid.nwb")
	file := newTestFile(t, tm)
	require.NoError(t, file.AddChild("acquisition", newRateSeries(t, tm, "ts", []float64{1, 2, 3})))
	writeFile(t, tm, path, IOOptions{}, file)

	io := openIO(t, tm, path, types.SessionModeRead, IOOptions{})
	root, err := io.ReadBuilder(t.Context())
	require.NoError(t, err)
	errors := NewValidator(tm.Catalog()).Validate(t.Context(), root, "core")
	assert.Empty(t, errors)
	assert.Zero(t, io.Stats().ChunksRead)
}
