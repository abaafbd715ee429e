package types

import (
	"fmt"
	"math"
	"strings"
)

// DType names the element type of an attribute or dataset.  The names
// follow the schema language: fixed-width numerics, "text", "bool",
// "isodatetime", the "numeric" wildcard and "object" for references.
type DType string

const (
	DTypeAny         DType = ""
	DTypeInt8        DType = "int8"
	DTypeInt16       DType = "int16"
	DTypeInt32       DType = "int32"
	DTypeInt64       DType = "int64"
	DTypeUint8       DType = "uint8"
	DTypeUint16      DType = "uint16"
	DTypeUint32      DType = "uint32"
	DTypeUint64      DType = "uint64"
	DTypeFloat32     DType = "float32"
	DTypeFloat64     DType = "float64"
	DTypeText        DType = "text"
	DTypeBool        DType = "bool"
	DTypeIsoDatetime DType = "isodatetime"
	DTypeNumeric     DType = "numeric"
	DTypeReference   DType = "object"
)

var dtypeAliases = map[string]DType{
	"int":      DTypeInt32,
	"short":    DTypeInt16,
	"long":     DTypeInt64,
	"float":    DTypeFloat32,
	"double":   DTypeFloat64,
	"utf":      DTypeText,
	"utf8":     DTypeText,
	"utf-8":    DTypeText,
	"ascii":    DTypeText,
	"str":      DTypeText,
	"datetime": DTypeIsoDatetime,
	"uint":     DTypeUint32,
}

// NormalizeDType maps schema aliases ("double", "utf8", ...) to their
// canonical dtype.
func NormalizeDType(value string) DType {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if alias, ok := dtypeAliases[trimmed]; ok {
		return alias
	}
	return DType(trimmed)
}

func (d DType) IsInteger() bool {
	switch d {
	case DTypeInt8, DTypeInt16, DTypeInt32, DTypeInt64,
		DTypeUint8, DTypeUint16, DTypeUint32, DTypeUint64:
		return true
	}
	return false
}

func (d DType) IsUnsigned() bool {
	switch d {
	case DTypeUint8, DTypeUint16, DTypeUint32, DTypeUint64:
		return true
	}
	return false
}

// IntRange returns the smallest and largest value an integer dtype holds.
// Integers travel as int64, so uint64 tops out at math.MaxInt64.
func (d DType) IntRange() (int64, int64) {
	switch d {
	case DTypeInt8:
		return math.MinInt8, math.MaxInt8
	case DTypeInt16:
		return math.MinInt16, math.MaxInt16
	case DTypeInt32:
		return math.MinInt32, math.MaxInt32
	case DTypeUint8:
		return 0, math.MaxUint8
	case DTypeUint16:
		return 0, math.MaxUint16
	case DTypeUint32:
		return 0, math.MaxUint32
	case DTypeUint64:
		return 0, math.MaxInt64
	}
	return math.MinInt64, math.MaxInt64
}

// CheckRange fails on the first value that does not fit the integer
// dtype d.
func (d DType) CheckRange(values []int64) error {
	lo, hi := d.IntRange()
	for i, x := range values {
		if x < lo || x > hi {
			return fmt.Errorf("value %d at index %d is out of range for %s", x, i, d)
		}
	}
	return nil
}

func (d DType) IsFloat() bool {
	return d == DTypeFloat32 || d == DTypeFloat64
}

func (d DType) IsNumeric() bool {
	return d.IsInteger() || d.IsFloat() || d == DTypeNumeric
}

func (d DType) IsText() bool {
	return d == DTypeText || d == DTypeIsoDatetime
}

// Width returns the encoded size in bytes of one element, or 0 for
// variable-width dtypes.
func (d DType) Width() int {
	switch d {
	case DTypeInt8, DTypeUint8, DTypeBool:
		return 1
	case DTypeInt16, DTypeUint16:
		return 2
	case DTypeInt32, DTypeUint32, DTypeFloat32:
		return 4
	case DTypeInt64, DTypeUint64, DTypeFloat64:
		return 8
	}
	return 0
}

// Accepts reports whether a value of dtype actual may be stored where d
// is declared.  A declared width is a minimum: any integer fits an
// integer dtype, any integer or float fits a float dtype, and text and
// isodatetime are interchangeable on disk.
func (d DType) Accepts(actual DType) bool {
	if d == DTypeAny || d == actual {
		return true
	}
	switch {
	case d == DTypeNumeric:
		return actual.IsNumeric()
	case d.IsText():
		return actual.IsText()
	case d.IsFloat():
		return actual.IsInteger() || actual.IsFloat()
	case d.IsInteger():
		return actual.IsInteger()
	}
	return false
}

// Storage returns the dtype a value of dtype actual is stored as when d
// is declared: the declared dtype unless the value is wider, or the
// declared kind is more general than the value's.
func (d DType) Storage(actual DType) DType {
	switch {
	case d == DTypeAny || d == DTypeNumeric:
		return actual
	case d.IsText():
		return d
	case d.IsFloat() && actual.IsInteger():
		return d
	case actual.Width() > d.Width():
		return actual
	}
	return d
}
