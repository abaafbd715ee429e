// Package testutil provides helpers shared by the integration and
// command tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RepoRoot returns the absolute path to the repository root, assuming the
// test runs in a package two levels below it.
func RepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	return filepath.Clean(filepath.Join(dir, "..", ".."))
}

// Golden compares actual with the golden file at path.  A missing golden
// file is written instead, so it can be committed; delete it to
// regenerate after an intended change.
func Golden(t *testing.T, path string, actual string) {
	t.Helper()
	expected, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(actual), 0o644))
		t.Logf("golden file written: %s (commit it)", path)
		return
	}
	require.NoError(t, err)
	assert.Equal(t, string(expected), actual, "golden mismatch for %s; delete it and re-run to regenerate", path)
}
