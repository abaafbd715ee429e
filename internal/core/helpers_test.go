package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nwbio/internal/adapters"
	"nwbio/internal/types"
)

var sessionStart = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

// bundledTypeMap loads hdmf-common and the given core version.
func bundledTypeMap(t *testing.T, coreVersion string) *TypeMap {
	t.Helper()
	sources, err := adapters.NewNamespaceFileAdapter().Bundled()
	require.NoError(t, err)
	tm := NewTypeMap()
	for _, src := range sources {
		if src.File.Name == "core" && src.File.Version != coreVersion {
			continue
		}
		require.NoError(t, tm.LoadNamespace(t.Context(), src))
	}
	return tm
}

func namespaceSource(t *testing.T, doc string) types.NamespaceSource {
	t.Helper()
	src, err := adapters.NewNamespaceFileAdapter().Parse([]byte(doc), t.Name())
	require.NoError(t, err)
	return src
}

func testStore() *adapters.BoltStoreAdapter {
	return adapters.NewBoltStoreAdapter(adapters.BoltStoreOptions{NoSync: true})
}

func newContainer(t *testing.T, tm *TypeMap, namespace string, typeName string, name string, fields map[string]any) *Container {
	t.Helper()
	obj, err := tm.NewObject(namespace, typeName, name)
	require.NoError(t, err)
	c := obj.Base()
	for field, value := range fields {
		require.NoError(t, c.Set(field, value))
	}
	return c
}

func newTestFile(t *testing.T, tm *TypeMap) *Container {
	t.Helper()
	return newContainer(t, tm, "core", "NWBFile", "root", map[string]any{
		"identifier":                "session-001",
		"session_description":       "a test session",
		"session_start_time":        sessionStart,
		"timestamps_reference_time": sessionStart,
		"file_create_date":          []time.Time{sessionStart},
	})
}

func newRateSeries(t *testing.T, tm *TypeMap, name string, data any) *Container {
	t.Helper()
	return newContainer(t, tm, "core", "TimeSeries", name, map[string]any{
		"data":               data,
		"data_unit":          "m",
		"starting_time":      0.0,
		"starting_time_rate": 1.0,
	})
}

func openIO(t *testing.T, tm *TypeMap, path string, mode types.SessionMode, opts IOOptions) *IO {
	t.Helper()
	io := NewIO(testStore(), tm, opts)
	require.NoError(t, io.Open(t.Context(), path, mode))
	t.Cleanup(func() { _ = io.Close() })
	return io
}
