package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDTypeAccepts(t *testing.T) {
	tests := []struct {
		declared DType
		actual   DType
		want     bool
	}{
		{DTypeAny, DTypeBool, true},
		{DTypeNumeric, DTypeUint8, true},
		{DTypeNumeric, DTypeText, false},
		{DTypeFloat32, DTypeFloat64, true},
		{DTypeFloat32, DTypeInt16, true},
		{DTypeInt8, DTypeInt64, true},
		{DTypeInt32, DTypeFloat64, false},
		{DTypeText, DTypeIsoDatetime, true},
		{DTypeIsoDatetime, DTypeText, true},
		{DTypeBool, DTypeInt8, false},
		{DTypeReference, DTypeText, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.declared.Accepts(tt.actual), "%s accepts %s", tt.declared, tt.actual)
	}
}

func TestDTypeStorage(t *testing.T) {
	assert.Equal(t, DTypeInt64, DTypeAny.Storage(DTypeInt64))
	assert.Equal(t, DTypeFloat64, DTypeNumeric.Storage(DTypeFloat64))
	assert.Equal(t, DTypeFloat32, DTypeFloat32.Storage(DTypeInt64))
	assert.Equal(t, DTypeFloat64, DTypeFloat32.Storage(DTypeFloat64))
	assert.Equal(t, DTypeInt64, DTypeInt16.Storage(DTypeInt64))
	assert.Equal(t, DTypeUint8, DTypeUint8.Storage(DTypeUint8))
	assert.Equal(t, DTypeIsoDatetime, DTypeIsoDatetime.Storage(DTypeText))
}

func TestNormalizeDType(t *testing.T) {
	assert.Equal(t, DTypeFloat64, NormalizeDType("double"))
	assert.Equal(t, DTypeText, NormalizeDType("utf8"))
	assert.Equal(t, DTypeInt32, NormalizeDType("int"))
	assert.Equal(t, DTypeUint16, NormalizeDType("uint16"))
	assert.Equal(t, 8, DTypeFloat64.Width())
	assert.Zero(t, DTypeText.Width())
}

func TestDTypeCheckRange(t *testing.T) {
	cases := []struct {
		dtype  DType
		values []int64
		ok     bool
	}{
		{DTypeInt8, []int64{-128, 127}, true},
		{DTypeInt8, []int64{128}, false},
		{DTypeInt8, []int64{-129}, false},
		{DTypeUint8, []int64{0, 255}, true},
		{DTypeUint8, []int64{300}, false},
		{DTypeUint8, []int64{-1}, false},
		{DTypeInt16, []int64{-40000}, false},
		{DTypeUint32, []int64{1<<32 - 1}, true},
		{DTypeUint32, []int64{1 << 32}, false},
		{DTypeUint64, []int64{-1 << 63}, false},
		{DTypeInt64, []int64{-1 << 63, 1<<63 - 1}, true},
	}
	for _, tc := range cases {
		err := tc.dtype.CheckRange(tc.values)
		assert.Equal(t, tc.ok, err == nil, "%s %v: %v", tc.dtype, tc.values, err)
	}
}
