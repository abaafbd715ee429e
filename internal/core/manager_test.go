package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nwbio/internal/errs"
)

func TestBuildManagerIdentity(t *testing.T) {
	tm := bundledTypeMap(t, "2.6.0")
	m := NewBuildManager(tm)
	ts := newRateSeries(t, tm, "ts", []float64{1, 2, 3})

	first, err := m.Build(t.Context(), ts)
	require.NoError(t, err)
	second, err := m.Build(t.Context(), ts)
	require.NoError(t, err)
	assert.Same(t, first, second)

	got, ok := m.GetBuilder(ts)
	require.True(t, ok)
	assert.Same(t, first, got)
	obj, ok := m.GetContainer(first)
	require.True(t, ok)
	assert.Same(t, ts, obj)

	ns, typeName, err := m.PrefetchContainerType(first)
	require.NoError(t, err)
	assert.Equal(t, "core", ns)
	assert.Equal(t, "TimeSeries", typeName)

	_, _, err = m.PrefetchContainerType(NewGroupBuilder("plain"))
	assert.True(t, errs.Is(err, errs.KindFormat))
}

func TestBuildManagerRemapsModifiedContainer(t *testing.T) {
	tm := bundledTypeMap(t, "2.6.0")
	m := NewBuildManager(tm)
	ts := newRateSeries(t, tm, "ts", []float64{1, 2, 3})

	b, err := m.Build(t.Context(), ts)
	require.NoError(t, err)
	gb := b.(*GroupBuilder)
	_, ok := gb.Dataset("control")
	assert.False(t, ok)

	require.NoError(t, ts.Set("control", []int64{0, 1, 0}))
	assert.True(t, ts.Modified())
	again, err := m.Build(t.Context(), ts)
	require.NoError(t, err)
	assert.Same(t, b, again, "a modified container is mapped into its existing builder")
	_, ok = gb.Dataset("control")
	assert.True(t, ok)
	assert.False(t, ts.Modified())
}

func TestBuildManagerConstructIdentity(t *testing.T) {
	tm := bundledTypeMap(t, "2.6.0")
	built, err := NewBuildManager(tm).Build(t.Context(), newRateSeries(t, tm, "ts", []float64{1}))
	require.NoError(t, err)

	m := NewBuildManager(tm)
	first, err := m.Construct(t.Context(), built)
	require.NoError(t, err)
	second, err := m.Construct(t.Context(), built)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, "ts", first.Base().Name())

	m.Reset()
	_, ok := m.GetContainer(built)
	assert.False(t, ok)
}
