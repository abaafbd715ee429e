package types

import (
	"context"
	"fmt"
	"reflect"
)

// NDArray is an in-memory, row-major array.  Values holds one of
// []int64, []float64, []string or []bool; the declared DType decides the
// on-disk width.  A scalar has an empty Shape and exactly one value.
type NDArray struct {
	DType  DType
	Shape  []int
	Values any
}

func NewInts(dtype DType, shape []int, values []int64) NDArray {
	return NDArray{DType: dtype, Shape: shape, Values: values}
}

func NewFloats(dtype DType, shape []int, values []float64) NDArray {
	return NDArray{DType: dtype, Shape: shape, Values: values}
}

func NewTexts(shape []int, values []string) NDArray {
	return NDArray{DType: DTypeText, Shape: shape, Values: values}
}

func NewBools(shape []int, values []bool) NDArray {
	return NDArray{DType: DTypeBool, Shape: shape, Values: values}
}

// Vector builds a one-dimensional array from values.
func Vector[T int64 | float64 | string | bool](dtype DType, values []T) NDArray {
	return NDArray{DType: dtype, Shape: []int{len(values)}, Values: values}
}

// Scalar wraps a single value as a zero-dimensional array.
func Scalar(dtype DType, value any) (NDArray, error) {
	switch v := value.(type) {
	case int:
		return NDArray{DType: dtype, Shape: []int{}, Values: []int64{int64(v)}}, nil
	case int64:
		return NDArray{DType: dtype, Shape: []int{}, Values: []int64{v}}, nil
	case float64:
		return NDArray{DType: dtype, Shape: []int{}, Values: []float64{v}}, nil
	case string:
		return NDArray{DType: dtype, Shape: []int{}, Values: []string{v}}, nil
	case bool:
		return NDArray{DType: dtype, Shape: []int{}, Values: []bool{v}}, nil
	}
	return NDArray{}, fmt.Errorf("unsupported scalar value %T", value)
}

// Len returns the number of stored elements.
func (a NDArray) Len() int {
	if a.Values == nil {
		return 0
	}
	return reflect.ValueOf(a.Values).Len()
}

// Rows returns the size of the first dimension; scalars count as one row.
func (a NDArray) Rows() int {
	if len(a.Shape) == 0 {
		return 1
	}
	return a.Shape[0]
}

// RowSize returns the number of elements per row.
func (a NDArray) RowSize() int {
	return RowSize(a.Shape)
}

// RowSize returns the product of all but the first dimension.
func RowSize(shape []int) int {
	size := 1
	for i := 1; i < len(shape); i++ {
		size *= shape[i]
	}
	return size
}

// Validate checks that the element count agrees with the shape and that
// the values slice is one of the supported element types.
func (a NDArray) Validate() error {
	switch a.Values.(type) {
	case []int64, []float64, []string, []bool:
	default:
		return fmt.Errorf("unsupported array values %T", a.Values)
	}
	want := 1
	for _, dim := range a.Shape {
		want *= dim
	}
	if got := a.Len(); got != want {
		return fmt.Errorf("array shape %v needs %d values, got %d", a.Shape, want, got)
	}
	return nil
}

// SliceRows returns rows [start, stop) as a new array sharing storage.
func (a NDArray) SliceRows(start int, stop int) (NDArray, error) {
	rows := a.Rows()
	if start < 0 || stop > rows || start > stop {
		return NDArray{}, fmt.Errorf("row range [%d:%d] out of bounds for %d rows", start, stop, rows)
	}
	if len(a.Shape) == 0 {
		return a, nil
	}
	rowSize := a.RowSize()
	lo, hi := start*rowSize, stop*rowSize
	shape := append([]int{stop - start}, a.Shape[1:]...)
	out := NDArray{DType: a.DType, Shape: shape}
	switch v := a.Values.(type) {
	case []int64:
		out.Values = v[lo:hi]
	case []float64:
		out.Values = v[lo:hi]
	case []string:
		out.Values = v[lo:hi]
	case []bool:
		out.Values = v[lo:hi]
	default:
		return NDArray{}, fmt.Errorf("unsupported array values %T", a.Values)
	}
	return out, nil
}

// ReadRows lets an in-memory array act as a row source for chunked writes.
func (a NDArray) ReadRows(_ context.Context, start int, stop int) (NDArray, error) {
	return a.SliceRows(start, stop)
}

func (a NDArray) ElementType() DType { return a.DType }

func (a NDArray) Dims() []int { return a.Shape }

// AppendRows concatenates b's rows after a's.  Both must hold the same
// element type and row shape.
func (a NDArray) AppendRows(b NDArray) (NDArray, error) {
	if a.Values == nil {
		return b, nil
	}
	if a.RowSize() != b.RowSize() {
		return NDArray{}, fmt.Errorf("cannot append rows of size %d to rows of size %d", b.RowSize(), a.RowSize())
	}
	shape := []int{a.Rows() + b.Rows()}
	if len(a.Shape) > 1 {
		shape = append(shape, a.Shape[1:]...)
	}
	out := NDArray{DType: a.DType, Shape: shape}
	switch v := a.Values.(type) {
	case []int64:
		w, ok := b.Values.([]int64)
		if !ok {
			return NDArray{}, fmt.Errorf("cannot append %T to []int64", b.Values)
		}
		out.Values = append(append(make([]int64, 0, len(v)+len(w)), v...), w...)
	case []float64:
		w, ok := b.Values.([]float64)
		if !ok {
			return NDArray{}, fmt.Errorf("cannot append %T to []float64", b.Values)
		}
		out.Values = append(append(make([]float64, 0, len(v)+len(w)), v...), w...)
	case []string:
		w, ok := b.Values.([]string)
		if !ok {
			return NDArray{}, fmt.Errorf("cannot append %T to []string", b.Values)
		}
		out.Values = append(append(make([]string, 0, len(v)+len(w)), v...), w...)
	case []bool:
		w, ok := b.Values.([]bool)
		if !ok {
			return NDArray{}, fmt.Errorf("cannot append %T to []bool", b.Values)
		}
		out.Values = append(append(make([]bool, 0, len(v)+len(w)), v...), w...)
	default:
		return NDArray{}, fmt.Errorf("unsupported array values %T", a.Values)
	}
	return out, nil
}

// Value returns the single element of a scalar (or one-element) array.
func (a NDArray) Value() (any, error) {
	if a.Len() != 1 {
		return nil, fmt.Errorf("array with %d elements is not a scalar", a.Len())
	}
	switch v := a.Values.(type) {
	case []int64:
		return v[0], nil
	case []float64:
		return v[0], nil
	case []string:
		return v[0], nil
	case []bool:
		return v[0], nil
	}
	return nil, fmt.Errorf("unsupported array values %T", a.Values)
}

// Cast retags the array as dtype, converting integer values when a float
// dtype is requested.  It fails when the value kinds are incompatible or
// an integer does not fit the target width.
func (a NDArray) Cast(dtype DType) (NDArray, error) {
	target := dtype
	if target == DTypeAny || target == DTypeNumeric {
		target = a.DType
	}
	if ints, ok := a.Values.([]int64); ok && target.IsInteger() {
		if err := target.CheckRange(ints); err != nil {
			return NDArray{}, err
		}
	}
	if dtype == DTypeAny || dtype == DTypeNumeric || dtype == a.DType {
		return a, nil
	}
	out := NDArray{DType: dtype, Shape: a.Shape}
	switch v := a.Values.(type) {
	case []int64:
		switch {
		case dtype.IsInteger():
			out.Values = v
		case dtype.IsFloat():
			floats := make([]float64, len(v))
			for i, x := range v {
				floats[i] = float64(x)
			}
			out.Values = floats
		default:
			return NDArray{}, fmt.Errorf("cannot store integers as %s", dtype)
		}
	case []float64:
		if !dtype.IsFloat() {
			return NDArray{}, fmt.Errorf("cannot store floats as %s", dtype)
		}
		out.Values = v
	case []string:
		if !dtype.IsText() {
			return NDArray{}, fmt.Errorf("cannot store text as %s", dtype)
		}
		out.Values = v
	case []bool:
		if dtype != DTypeBool {
			return NDArray{}, fmt.Errorf("cannot store booleans as %s", dtype)
		}
		out.Values = v
	default:
		return NDArray{}, fmt.Errorf("unsupported array values %T", a.Values)
	}
	return out, nil
}
