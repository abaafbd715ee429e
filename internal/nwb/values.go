package nwb

import (
	"context"
	"slices"
	"time"

	"nwbio/internal/core"
	"nwbio/internal/errs"
	"nwbio/internal/ports"
	"nwbio/internal/shared"
)

func unregistered(typeName string, obj core.Object) error {
	return errs.UnknownType("type map builds %s as %T; register the nwb containers first", typeName, obj)
}

// materialize reads array-valued fields: Go slices stay as they are,
// arrays and lazy datasets are read in full.
func materialize(ctx context.Context, value any) (any, error) {
	reader, ok := value.(ports.ArrayReader)
	if !ok {
		return value, nil
	}
	arr, err := core.Materialize(ctx, reader)
	if err != nil {
		return nil, err
	}
	if len(arr.Shape) == 0 {
		return arr.Value()
	}
	return arr.Values, nil
}

func textValue(ctx context.Context, value any) (string, error) {
	v, err := materialize(ctx, value)
	if err != nil {
		return "", err
	}
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	case time.Time:
		return s.Format(time.RFC3339Nano), nil
	}
	return "", errs.TypeMismatch("expected text, got %T", v)
}

func textsValue(ctx context.Context, value any) ([]string, error) {
	v, err := materialize(ctx, value)
	if err != nil {
		return nil, err
	}
	switch s := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return s, nil
	case string:
		return []string{s}, nil
	}
	return nil, errs.TypeMismatch("expected a text array, got %T", v)
}

func timeValue(ctx context.Context, value any) (time.Time, error) {
	if t, ok := value.(time.Time); ok {
		return t, nil
	}
	s, err := textValue(ctx, value)
	if err != nil {
		return time.Time{}, err
	}
	t, err := shared.ParseISODateTime(s)
	if err != nil {
		return time.Time{}, errs.Wrap(errs.KindFormat, err, "invalid isodatetime "+s)
	}
	return t, nil
}

func timesValue(ctx context.Context, value any) ([]time.Time, error) {
	if ts, ok := value.([]time.Time); ok {
		return ts, nil
	}
	texts, err := textsValue(ctx, value)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, len(texts))
	for _, s := range texts {
		t, err := shared.ParseISODateTime(s)
		if err != nil {
			return nil, errs.Wrap(errs.KindFormat, err, "invalid isodatetime "+s)
		}
		out = append(out, t)
	}
	return out, nil
}

// floatAttr reads a numeric attribute, which the store hands back as
// int64 or float64.
func floatAttr(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

func stringAttr(c *core.Container, field string) string {
	s, _ := c.Field(field).(string)
	return s
}

// dimsOf reports the shape of an array-valued field without reading it.
func dimsOf(value any) []int {
	switch v := value.(type) {
	case ports.ArrayReader:
		return v.Dims()
	case []int64:
		return []int{len(v)}
	case []int:
		return []int{len(v)}
	case []float64:
		return []int{len(v)}
	case []string:
		return []int{len(v)}
	case []bool:
		return []int{len(v)}
	case []time.Time:
		return []int{len(v)}
	}
	return nil
}

func int64sValue(ctx context.Context, value any) ([]int64, error) {
	v, err := materialize(ctx, value)
	if err != nil {
		return nil, err
	}
	switch s := v.(type) {
	case nil:
		return nil, nil
	case []int64:
		return s, nil
	case []int:
		out := make([]int64, len(s))
		for i, x := range s {
			out[i] = int64(x)
		}
		return out, nil
	}
	return nil, errs.TypeMismatch("expected integers, got %T", v)
}

type fieldValue struct {
	name  string
	value any
}

// setFields assigns fields in order, skipping unset values.
func setFields(c *core.Container, fields ...fieldValue) error {
	for _, f := range fields {
		if f.value == nil || f.value == "" {
			continue
		}
		if err := c.Set(f.name, f.value); err != nil {
			return err
		}
	}
	return nil
}

func float64sValue(ctx context.Context, value any) ([]float64, error) {
	v, err := materialize(ctx, value)
	if err != nil {
		return nil, err
	}
	switch s := v.(type) {
	case nil:
		return nil, nil
	case []float64:
		return s, nil
	case []int64:
		out := make([]float64, len(s))
		for i, x := range s {
			out[i] = float64(x)
		}
		return out, nil
	}
	return nil, errs.TypeMismatch("expected numbers, got %T", v)
}

// appendCell returns column data with value appended.  value is one
// element, or a slice of them when many is set.  An unset column takes
// its element type from the first value.  The result never shares
// storage with current.
func appendCell(column string, current any, value any, many bool) (any, error) {
	value = normalizeCell(value)
	if current == nil {
		switch value.(type) {
		case float64, []float64:
			current = []float64{}
		case int64, []int64:
			current = []int64{}
		case string, []string:
			current = []string{}
		case bool, []bool:
			current = []bool{}
		}
	}
	switch data := current.(type) {
	case []float64:
		switch v := value.(type) {
		case int64:
			value = float64(v)
		case []int64:
			floats := make([]float64, len(v))
			for i, x := range v {
				floats[i] = float64(x)
			}
			value = floats
		}
		return appendTo(column, data, value, many)
	case []int64:
		return appendTo(column, data, value, many)
	case []string:
		return appendTo(column, data, value, many)
	case []bool:
		return appendTo(column, data, value, many)
	case ports.ArrayReader:
		return nil, errs.WriteMode("column %q is held in the store; rows can only be added before a table is written", column).
			WithField(column)
	}
	return nil, errs.TypeMismatch("column %q holds %T, which does not take rows", column, current).WithField(column)
}

func appendTo[T any](column string, data []T, value any, many bool) (any, error) {
	switch v := value.(type) {
	case T:
		if !many {
			return append(slices.Clip(data), v), nil
		}
	case []T:
		if many {
			return append(slices.Clip(data), v...), nil
		}
	}
	var zero T
	if many {
		return nil, errs.TypeMismatch("column %q takes a []%T per row, got %T", column, zero, value).WithField(column)
	}
	return nil, errs.TypeMismatch("column %q takes %T values, got %T", column, zero, value).WithField(column)
}

// normalizeCell widens Go ints and float32s to the element types columns
// are held as.
func normalizeCell(value any) any {
	switch v := value.(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float32:
		return float64(v)
	case []int:
		out := make([]int64, len(v))
		for i, x := range v {
			out[i] = int64(x)
		}
		return out
	}
	return value
}
