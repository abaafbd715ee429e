package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathHelpers(t *testing.T) {
	assert.Equal(t, "/acquisition", JoinPath("/", "acquisition"))
	assert.Equal(t, "/acquisition/ts", JoinPath("/acquisition", "ts"))
	assert.Equal(t, []string{"a", "b"}, SplitPath("/a//b/"))
	assert.Equal(t, "/a", ParentPath("/a/b"))
	assert.Equal(t, "/", ParentPath("/a"))
	assert.Equal(t, "b", BaseName("/a/b"))
	assert.Equal(t, "/", BaseName("/"))
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("electrodes"))
	assert.Error(t, ValidateName(""))
	assert.Error(t, ValidateName("a/b"))
	assert.Error(t, ValidateName("\x00meta"))
}

func TestSnakeCase(t *testing.T) {
	tests := map[string]string{
		"TimeSeries":         "time_series",
		"NWBDataInterface":   "nwb_data_interface",
		"DynamicTableRegion": "dynamic_table_region",
		"data":               "data",
	}
	for in, want := range tests {
		assert.Equal(t, want, SnakeCase(in), in)
	}
}
