package adapters

import (
	"encoding/binary"
	"testing"

	"github.com/golang/snappy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nwbio/internal/types"
)

func TestChunkCodecWidths(t *testing.T) {
	cases := []struct {
		dtype  types.DType
		values any
	}{
		{types.DTypeInt8, []int64{-128, 0, 127}},
		{types.DTypeUint8, []int64{0, 255}},
		{types.DTypeInt16, []int64{-32768, 32767}},
		{types.DTypeUint16, []int64{65535}},
		{types.DTypeInt32, []int64{-1, 1 << 30}},
		{types.DTypeUint32, []int64{1 << 31}},
		{types.DTypeInt64, []int64{-1 << 62}},
		{types.DTypeFloat32, []float64{0.5, -2}},
		{types.DTypeFloat64, []float64{0.1, 1e300}},
		{types.DTypeBool, []bool{true, false, true}},
		{types.DTypeText, []string{"", "abc", "ümlaut"}},
	}
	for _, tc := range cases {
		t.Run(string(tc.dtype), func(t *testing.T) {
			arr := types.NDArray{DType: tc.dtype, Values: tc.values}
			encoded, err := encodeChunk(tc.dtype, arr)
			require.NoError(t, err)
			decoded, err := decodeChunk(tc.dtype, arr.Len(), encoded)
			require.NoError(t, err)
			assert.Equal(t, tc.values, decoded)
		})
	}
}

func TestChunkCodecRejectsMismatch(t *testing.T) {
	_, err := encodeChunk(types.DTypeText, types.NDArray{Values: []int64{1}})
	assert.Error(t, err)

	encoded, err := encodeChunk(types.DTypeInt32, types.NDArray{Values: []int64{1, 2}})
	require.NoError(t, err)
	_, err = decodeChunk(types.DTypeInt32, 3, encoded)
	assert.Error(t, err)
}

func TestChunkCodecRejectsOutOfRange(t *testing.T) {
	_, err := encodeChunk(types.DTypeUint8, types.NDArray{Values: []int64{7, 300}})
	assert.Error(t, err)
	_, err = encodeChunk(types.DTypeInt8, types.NDArray{Values: []int64{-200}})
	assert.Error(t, err)

	raw := binary.LittleEndian.AppendUint64(nil, 1<<63+5)
	_, err = decodeChunk(types.DTypeUint64, 1, snappy.Encode(nil, raw))
	assert.Error(t, err, "uint64 values beyond int64 cannot be represented")
}
