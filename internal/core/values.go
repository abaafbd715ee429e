package core

import (
	"fmt"
	"math"
	"time"

	"nwbio/internal/ports"
	"nwbio/internal/types"
)

// arrayValue turns a field value into a dataset payload and picks the
// dtype it is stored as.  Backend arrays pass through untouched.
func arrayValue(value any, declared types.DType) (ports.ArrayReader, types.DType, error) {
	var arr types.NDArray
	switch v := value.(type) {
	case types.NDArray:
		arr = v
	case ports.ArrayReader:
		if !declared.Accepts(v.ElementType()) {
			return nil, "", fmt.Errorf("%s data cannot be stored as %s", v.ElementType(), declared)
		}
		return v, declared.Storage(v.ElementType()), nil
	case []int64:
		arr = types.Vector(types.DTypeInt64, v)
	case []int:
		ints := make([]int64, len(v))
		for i, x := range v {
			ints[i] = int64(x)
		}
		arr = types.Vector(types.DTypeInt64, ints)
	case []float64:
		arr = types.Vector(types.DTypeFloat64, v)
	case []string:
		arr = types.Vector(types.DTypeText, v)
	case []bool:
		arr = types.Vector(types.DTypeBool, v)
	case []time.Time:
		texts := make([]string, len(v))
		for i, t := range v {
			texts[i] = t.Format(time.RFC3339Nano)
		}
		arr = types.Vector(types.DTypeIsoDatetime, texts)
	default:
		scalar, dtype, err := scalarValue(value)
		if err != nil {
			return nil, "", err
		}
		arr, err = types.Scalar(dtype, scalar)
		if err != nil {
			return nil, "", err
		}
	}
	if err := arr.Validate(); err != nil {
		return nil, "", err
	}
	if !declared.Accepts(arr.DType) {
		return nil, "", fmt.Errorf("%s data cannot be stored as %s", arr.DType, declared)
	}
	if ints, ok := arr.Values.([]int64); ok && declared.IsUnsigned() {
		if err := types.DTypeUint64.CheckRange(ints); err != nil {
			return nil, "", err
		}
	}
	storage := declared.Storage(arr.DType)
	cast, err := arr.Cast(storage)
	if err != nil {
		return nil, "", err
	}
	return cast, storage, nil
}

// scalarValue normalizes a Go scalar to one of int64, float64, string or
// bool and reports its natural dtype.
func scalarValue(value any) (any, types.DType, error) {
	switch v := value.(type) {
	case string:
		return v, types.DTypeText, nil
	case bool:
		return v, types.DTypeBool, nil
	case time.Time:
		return v.Format(time.RFC3339Nano), types.DTypeIsoDatetime, nil
	case int:
		return int64(v), types.DTypeInt64, nil
	case int8:
		return int64(v), types.DTypeInt64, nil
	case int16:
		return int64(v), types.DTypeInt64, nil
	case int32:
		return int64(v), types.DTypeInt64, nil
	case int64:
		return v, types.DTypeInt64, nil
	case uint8:
		return int64(v), types.DTypeInt64, nil
	case uint16:
		return int64(v), types.DTypeInt64, nil
	case uint32:
		return int64(v), types.DTypeInt64, nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return nil, "", fmt.Errorf("value %d is out of range for int64", v)
		}
		return int64(v), types.DTypeInt64, nil
	case uint64:
		if v > math.MaxInt64 {
			return nil, "", fmt.Errorf("value %d is out of range for int64", v)
		}
		return int64(v), types.DTypeInt64, nil
	case float32:
		return float64(v), types.DTypeFloat64, nil
	case float64:
		return v, types.DTypeFloat64, nil
	}
	return nil, "", fmt.Errorf("unsupported value %T", value)
}

// attributeValue turns a field value into a stored attribute value: a
// scalar int64, float64, string or bool, or an NDArray for arrays.
// Scalar widths are minimums; an attribute declared float32 holds any
// float.  Unsigned attributes reject negative values.
func attributeValue(value any, declared types.DType) (any, error) {
	switch v := value.(type) {
	case types.NDArray, []int64, []int, []float64, []string, []bool, []time.Time:
		data, _, err := arrayValue(v, declared)
		if err != nil {
			return nil, err
		}
		return data.(types.NDArray), nil
	}
	scalar, dtype, err := scalarValue(value)
	if err != nil {
		return nil, err
	}
	switch {
	case declared == types.DTypeAny:
		return scalar, nil
	case declared == types.DTypeNumeric && dtype.IsNumeric():
		return scalar, nil
	case declared.IsText() && dtype.IsText():
		return scalar, nil
	case declared == types.DTypeBool && dtype == types.DTypeBool:
		return scalar, nil
	case declared.IsUnsigned() && dtype.IsInteger():
		if err := types.DTypeUint64.CheckRange([]int64{scalar.(int64)}); err != nil {
			return nil, err
		}
		return scalar, nil
	case declared.IsInteger() && dtype.IsInteger():
		return scalar, nil
	case declared.IsFloat() && dtype.IsFloat():
		return scalar, nil
	case declared.IsFloat() && dtype.IsInteger():
		return float64(scalar.(int64)), nil
	}
	return nil, fmt.Errorf("%s value cannot be stored as %s", dtype, declared)
}

func attributeDims(value any) []int {
	if arr, ok := value.(types.NDArray); ok {
		return arr.Shape
	}
	return []int{}
}
