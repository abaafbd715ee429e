package types

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// NamespaceFile is the top-level structure of a namespace YAML file.  A
// namespace is a versioned collection of type definitions; it may build
// on types from previously loaded namespaces listed in Includes.
type NamespaceFile struct {
	Name     string        `yaml:"name"`
	Version  string        `yaml:"version"`
	Doc      string        `yaml:"doc,omitempty"`
	Includes []string      `yaml:"includes,omitempty"`
	Groups   []GroupSpec   `yaml:"groups,omitempty"`
	Datasets []DatasetSpec `yaml:"datasets,omitempty"`
}

// NamespaceSource pairs a parsed namespace with the raw bytes it was
// parsed from.  The raw bytes are what gets cached inside written files.
type NamespaceSource struct {
	File   NamespaceFile
	Raw    []byte
	Origin string
}

// AttributeSpec declares one attribute of a group or dataset.
type AttributeSpec struct {
	Name         string            `yaml:"name"`
	Doc          string            `yaml:"doc,omitempty"`
	DType        DType             `yaml:"dtype,omitempty"`
	TargetType   string            `yaml:"target_type,omitempty"`
	Shape        ShapeAlternatives `yaml:"shape,omitempty"`
	Required     *bool             `yaml:"required,omitempty"`
	DefaultValue any               `yaml:"default_value,omitempty"`
	Value        any               `yaml:"value,omitempty"`
}

// IsRequired reports whether the attribute must be present.  Attributes
// are required unless they say otherwise.
func (a AttributeSpec) IsRequired() bool {
	return a.Required == nil || *a.Required
}

// DatasetSpec declares a dataset, either as a named element of its parent
// or as a (re)usable data type when DataTypeDef is set.
type DatasetSpec struct {
	DataTypeDef string            `yaml:"data_type_def,omitempty"`
	DataTypeInc string            `yaml:"data_type_inc,omitempty"`
	Name        string            `yaml:"name,omitempty"`
	DefaultName string            `yaml:"default_name,omitempty"`
	Doc         string            `yaml:"doc,omitempty"`
	DType       DType             `yaml:"dtype,omitempty"`
	Shape       ShapeAlternatives `yaml:"shape,omitempty"`
	Quantity    Quantity          `yaml:"quantity,omitempty"`
	Attributes  []AttributeSpec   `yaml:"attributes,omitempty"`
}

// IsTyped reports whether instances of this element carry their own type
// annotation.
func (d DatasetSpec) IsTyped() bool {
	return d.DataTypeDef != "" || d.DataTypeInc != ""
}

// TypeName returns the defined type, or the included one for typed
// elements that do not define a new type.
func (d DatasetSpec) TypeName() string {
	if d.DataTypeDef != "" {
		return d.DataTypeDef
	}
	return d.DataTypeInc
}

// GroupSpec declares a group, either as a named element of its parent or
// as a data type when DataTypeDef is set.
type GroupSpec struct {
	DataTypeDef string          `yaml:"data_type_def,omitempty"`
	DataTypeInc string          `yaml:"data_type_inc,omitempty"`
	Name        string          `yaml:"name,omitempty"`
	DefaultName string          `yaml:"default_name,omitempty"`
	Doc         string          `yaml:"doc,omitempty"`
	Quantity    Quantity        `yaml:"quantity,omitempty"`
	Attributes  []AttributeSpec `yaml:"attributes,omitempty"`
	Datasets    []DatasetSpec   `yaml:"datasets,omitempty"`
	Groups      []GroupSpec     `yaml:"groups,omitempty"`
	Links       []LinkSpec      `yaml:"links,omitempty"`
}

func (g GroupSpec) IsTyped() bool {
	return g.DataTypeDef != "" || g.DataTypeInc != ""
}

func (g GroupSpec) TypeName() string {
	if g.DataTypeDef != "" {
		return g.DataTypeDef
	}
	return g.DataTypeInc
}

// LinkSpec declares a link to a typed object stored elsewhere in the file.
type LinkSpec struct {
	Name       string   `yaml:"name"`
	Doc        string   `yaml:"doc,omitempty"`
	TargetType string   `yaml:"target_type"`
	Quantity   Quantity `yaml:"quantity,omitempty"`
}

// Quantity is the multiplicity of an element: "1", "?", "*", "+" or a
// positive integer.  The zero value means exactly one.
type Quantity string

const (
	QuantityOne        Quantity = "1"
	QuantityOptional   Quantity = "?"
	QuantityZeroOrMore Quantity = "*"
	QuantityOneOrMore  Quantity = "+"
)

// UnmarshalYAML accepts both string and integer quantities.
func (q *Quantity) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: quantity must be a scalar", node.Line)
	}
	*q = Quantity(strings.TrimSpace(node.Value))
	return nil
}

func (q Quantity) normalized() Quantity {
	if q == "" {
		return QuantityOne
	}
	return q
}

// Required reports whether at least one instance must exist.
func (q Quantity) Required() bool {
	switch q.normalized() {
	case QuantityOptional, QuantityZeroOrMore:
		return false
	}
	return true
}

// Many reports whether more than one instance may exist.
func (q Quantity) Many() bool {
	switch n := q.normalized(); n {
	case QuantityZeroOrMore, QuantityOneOrMore:
		return true
	case QuantityOne, QuantityOptional:
		return false
	default:
		count, err := strconv.Atoi(string(n))
		return err == nil && count > 1
	}
}

// Max returns the maximum number of instances, or -1 when unbounded.
func (q Quantity) Max() int {
	switch n := q.normalized(); n {
	case QuantityZeroOrMore, QuantityOneOrMore:
		return -1
	case QuantityOne, QuantityOptional:
		return 1
	default:
		count, err := strconv.Atoi(string(n))
		if err != nil {
			return 1
		}
		return count
	}
}

// Valid reports whether q is one of the recognized forms.
func (q Quantity) Valid() bool {
	switch n := q.normalized(); n {
	case QuantityOne, QuantityOptional, QuantityZeroOrMore, QuantityOneOrMore:
		return true
	default:
		count, err := strconv.Atoi(string(n))
		return err == nil && count > 0
	}
}
