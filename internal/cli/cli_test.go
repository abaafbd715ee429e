package cli

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nwbio/internal/app"
	"nwbio/internal/errs"
	"nwbio/internal/nwb"
	"nwbio/internal/types"
)

// ---------- Command tree tests ----------

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCommand()
	names := make([]string, 0, len(root.Commands()))
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	expected := []string{"validate", "inspect", "export", "namespaces"}
	for _, name := range expected {
		assert.Contains(t, names, name, "missing subcommand: %s", name)
	}
}

func TestRootCommandVersion(t *testing.T) {
	root := newRootCommand()
	assert.Equal(t, "dev", root.Version)
}

func TestRootCommandFlags(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"config", "log-level", "chunk-bytes", "cache-chunks", "lock-timeout", "cache-spec"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), "missing flag: %s", name)
	}
}

func TestValidateCommandFlags(t *testing.T) {
	cmd := newValidateCommand()
	for _, name := range []string{"ns", "extension", "list-namespaces", "no-cached"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "missing flag: %s", name)
	}
}

func TestExportCommandFlags(t *testing.T) {
	cmd := newExportCommand()
	assert.NotNil(t, cmd.Flags().Lookup("core-version"))
	assert.NotNil(t, cmd.Flags().Lookup("extension"))
}

// ---------- Config precedence tests ----------

func TestFlagsOverrideConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("namespace", "from-config")
	viper.Set("extensions", []string{"config.yaml"})
	viper.Set("no_cached", true)

	cmd := newValidateCommand()
	assert.Equal(t, "from-config", resolveString(cmd, "", "namespace", "ns"))
	assert.Equal(t, []string{"config.yaml"}, resolveStrings(cmd, nil, "extensions", "extension"))
	assert.True(t, resolveBool(cmd, false, "no_cached", "no-cached"))

	require.NoError(t, cmd.Flags().Set("ns", "core"))
	require.NoError(t, cmd.Flags().Set("extension", "a.yaml,b.yaml"))
	require.NoError(t, cmd.Flags().Set("no-cached", "false"))
	assert.Equal(t, "core", resolveString(cmd, "core", "namespace", "ns"))
	assert.Equal(t, []string{"a.yaml", "b.yaml"}, resolveStrings(cmd, []string{"a.yaml", "b.yaml"}, "extensions", "extension"))
	assert.False(t, resolveBool(cmd, false, "no_cached", "no-cached"))
}

func TestResolveWithoutCommand(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("core_version", "2.5.0")
	assert.Equal(t, "2.6.0", resolveString(nil, "2.6.0", "core_version", "core-version"))
	assert.Equal(t, "2.5.0", resolveString(nil, "", "core_version", "core-version"))
	assert.Nil(t, resolveStrings(nil, nil, "extensions", "extension"))
	assert.True(t, resolveBool(nil, true, "bundled", "bundled"))
	assert.False(t, flagChanged(nil, "ns"))
	assert.False(t, flagChanged(newValidateCommand(), "missing"))
}

func TestServiceConfigFromViper(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("chunk_bytes", 4096)
	viper.Set("lock_timeout", "250ms")
	viper.Set("cache_spec", false)
	service := newAppService()
	assert.Equal(t, 4096, service.Options.ChunkBytes)
	assert.True(t, service.Options.SkipCacheSpec)
}

// ---------- Exit code tests ----------

func TestExitCodeForError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name: "invalid argument",
			err: errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("bad input"),
			expected: 2,
		},
		{
			name:     "namespace conflict",
			err:      errs.NamespaceConflict("core 2.6.0 cannot be written as 2.5.0"),
			expected: 2,
		},
		{
			name:     "missing required field",
			err:      errs.MissingRequiredField("identifier", "NWBFile needs an identifier"),
			expected: 2,
		},
		{
			name:     "write mode",
			err:      errs.WriteMode("cannot write in read mode"),
			expected: 3,
		},
		{
			name:     "malformed file",
			err:      errs.Format("root has no type annotation"),
			expected: 4,
		},
		{
			name:     "closed session",
			err:      errs.ResourceClosed("session is closed"),
			expected: 4,
		},
		{
			name: "validation failed",
			err: errbuilder.New().
				WithCode(errbuilder.CodeFailedPrecondition).
				WithMsg("validation found 3 errors"),
			expected: 4,
		},
		{
			name:     "unknown type",
			err:      errs.UnknownType("type Widget is not defined"),
			expected: 5,
		},
		{
			name: "file missing",
			err: errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg("file missing"),
			expected: 5,
		},
		{
			name:     "unknown error",
			err:      assert.AnError,
			expected: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := exitCodeForError(tt.err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "cannot write in read mode", errorMessage(errs.WriteMode("cannot write in read mode")))
	assert.Equal(t, "validation found 2 errors", errorMessage(errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg("validation found 2 errors")))
	assert.Equal(t, assert.AnError.Error(), errorMessage(assert.AnError))
}

// ---------- Command run tests ----------

func writeSessionFile(t *testing.T, path string) {
	t.Helper()
	ctx := t.Context()
	tm, err := app.TypeMapForVersion(ctx, "2.5.0")
	require.NoError(t, err)
	file, err := nwb.NewNWBFile(tm, nwb.FileInfo{
		Identifier:         "cli-1",
		SessionDescription: "cli session",
		SessionStart:       time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)
	ts, err := nwb.NewTimeSeries(tm, "lick", []int64{0, 1, 1, 0}, "events")
	require.NoError(t, err)
	require.NoError(t, ts.SetRate(0, 10))
	require.NoError(t, file.AddAcquisition(ts))

	service := app.NewService(app.DefaultConfig())
	io, err := service.Open(ctx, path, types.SessionModeWrite, tm)
	require.NoError(t, err)
	require.NoError(t, io.Write(ctx, file))
	require.NoError(t, io.Close())
}

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func TestCommandsRunAgainstStoredFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.nwb")
	writeSessionFile(t, path)

	out, err := runRoot(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, path+": valid against core")

	out, err = runRoot(t, "validate", "--list-namespaces", path)
	require.NoError(t, err)
	assert.Contains(t, out, "- core 2.5.0")
	assert.Contains(t, out, "- hdmf-common 1.5.0")

	out, err = runRoot(t, "inspect", path)
	require.NoError(t, err)
	assert.Contains(t, out, "root: core/NWBFile (schema 2.5.0)")
	assert.Contains(t, out, "/acquisition/lick/data")
	assert.Contains(t, out, "payload chunks read: 0")

	exported := filepath.Join(dir, "exported.nwb")
	out, err = runRoot(t, "export", path, exported)
	require.NoError(t, err)
	assert.Contains(t, out, "(core 2.6.0)")

	out, err = runRoot(t, "namespaces", exported)
	require.NoError(t, err)
	assert.Contains(t, out, "core 2.6.0")
}

func TestValidateCommandUnknownNamespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.nwb")
	writeSessionFile(t, path)

	_, err := runRoot(t, "validate", "--ns", "ndx-absent", path)
	require.Error(t, err)
	assert.Equal(t, 5, exitCodeForError(err))
}
