package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nwbio/internal/errs"
)

func TestLatestVersion(t *testing.T) {
	latest, err := LatestVersion([]string{"2.5.0", "2.10.0", "2.6.0"})
	require.NoError(t, err)
	assert.Equal(t, "2.10.0", latest)

	_, err = LatestVersion(nil)
	assert.True(t, errs.Is(err, errs.KindUnknownType))

	_, err = LatestVersion([]string{"2.5.0", "not a version!"})
	assert.True(t, errs.Is(err, errs.KindFormat))
}

func TestCheckCompatible(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		dest    string
		wantErr bool
	}{
		{name: "same version", source: "2.6.0", dest: "2.6.0"},
		{name: "minor upgrade", source: "2.5.0", dest: "2.6.0"},
		{name: "patch upgrade", source: "2.6.0", dest: "2.6.1"},
		{name: "downgrade", source: "2.6.0", dest: "2.5.0", wantErr: true},
		{name: "major upgrade", source: "2.6.0", dest: "3.0.0", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckCompatible(tt.source, tt.dest)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			assert.True(t, errs.Is(err, errs.KindNamespaceConflict), "got %v", err)
		})
	}
}

func TestCompatibleVersion(t *testing.T) {
	got, err := CompatibleVersion("2.5.0", []string{"2.6.0", "3.0.0", "2.4.0", "2.5.0"})
	require.NoError(t, err)
	assert.Equal(t, "2.6.0", got)

	_, err = CompatibleVersion("2.7.0", []string{"2.6.0", "3.0.0"})
	assert.True(t, errs.Is(err, errs.KindNamespaceConflict))
}
