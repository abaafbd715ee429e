package adapters

import (
	"bytes"
	"encoding/json"
	"fmt"

	"nwbio/internal/types"
)

// attrValue is the stored form of one attribute.  The kind tag keeps
// integers and floats apart, which plain JSON numbers would not.
type attrValue struct {
	Kind  string           `json:"kind"`
	Int   int64            `json:"int,omitempty"`
	Float float64          `json:"float,omitempty"`
	Text  string           `json:"text,omitempty"`
	Bool  bool             `json:"bool,omitempty"`
	Array *attrArray       `json:"array,omitempty"`
	Ref   *types.Reference `json:"ref,omitempty"`
}

type attrArray struct {
	DType  types.DType `json:"dtype"`
	Shape  []int       `json:"shape"`
	Ints   []int64     `json:"ints,omitempty"`
	Floats []float64   `json:"floats,omitempty"`
	Texts  []string    `json:"texts,omitempty"`
	Bools  []bool      `json:"bools,omitempty"`
}

func toAttrValue(value any) (attrValue, error) {
	switch v := value.(type) {
	case int:
		return attrValue{Kind: "int", Int: int64(v)}, nil
	case int64:
		return attrValue{Kind: "int", Int: v}, nil
	case float64:
		return attrValue{Kind: "float", Float: v}, nil
	case string:
		return attrValue{Kind: "text", Text: v}, nil
	case bool:
		return attrValue{Kind: "bool", Bool: v}, nil
	case types.Reference:
		ref := v
		return attrValue{Kind: "ref", Ref: &ref}, nil
	case types.NDArray:
		arr := &attrArray{DType: v.DType, Shape: append([]int{}, v.Shape...)}
		switch values := v.Values.(type) {
		case []int64:
			arr.Ints = values
		case []float64:
			arr.Floats = values
		case []string:
			arr.Texts = values
		case []bool:
			arr.Bools = values
		default:
			return attrValue{}, fmt.Errorf("unsupported array values %T", v.Values)
		}
		return attrValue{Kind: "array", Array: arr}, nil
	}
	return attrValue{}, fmt.Errorf("unsupported attribute value %T", value)
}

func (v attrValue) value() (any, error) {
	switch v.Kind {
	case "int":
		return v.Int, nil
	case "float":
		return v.Float, nil
	case "text":
		return v.Text, nil
	case "bool":
		return v.Bool, nil
	case "ref":
		if v.Ref == nil {
			return nil, fmt.Errorf("reference attribute without target")
		}
		return *v.Ref, nil
	case "array":
		if v.Array == nil {
			return nil, fmt.Errorf("array attribute without values")
		}
		arr := types.NDArray{DType: v.Array.DType, Shape: v.Array.Shape}
		if arr.Shape == nil {
			arr.Shape = []int{}
		}
		switch {
		case arr.DType.IsInteger():
			arr.Values = nonNil(v.Array.Ints)
		case arr.DType.IsFloat():
			arr.Values = nonNil(v.Array.Floats)
		case arr.DType == types.DTypeBool:
			arr.Values = nonNil(v.Array.Bools)
		default:
			arr.Values = nonNil(v.Array.Texts)
		}
		return arr, nil
	}
	return nil, fmt.Errorf("unknown attribute kind %q", v.Kind)
}

func nonNil[T any](values []T) []T {
	if values == nil {
		return []T{}
	}
	return values
}

func encodeAttributes(attrs map[string]any) ([]byte, error) {
	out := make(map[string]attrValue, len(attrs))
	for name, value := range attrs {
		v, err := toAttrValue(value)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		out[name] = v
	}
	return json.Marshal(out)
}

func decodeAttributes(raw []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(raw) == 0 {
		return out, nil
	}
	var stored map[string]attrValue
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, err
	}
	for name, v := range stored {
		value, err := v.value()
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		out[name] = value
	}
	return out, nil
}

// sameAttribute compares two attribute values by their stored form.
func sameAttribute(a any, b any) (bool, error) {
	av, err := toAttrValue(a)
	if err != nil {
		return false, err
	}
	bv, err := toAttrValue(b)
	if err != nil {
		return false, err
	}
	ab, err := json.Marshal(av)
	if err != nil {
		return false, err
	}
	bb, err := json.Marshal(bv)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ab, bb), nil
}
