package types

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Shape is one allowed shape: a size per dimension, where nil leaves the
// dimension unconstrained.
type Shape []*int

// ShapeAlternatives lists the shapes a value may take.  An empty list
// places no constraint.
type ShapeAlternatives []Shape

// Dim returns a fixed dimension size for building shapes in code.
func Dim(size int) *int {
	return &size
}

// Matches reports whether actual has the same rank as s and agrees on
// every fixed dimension.
func (s Shape) Matches(actual []int) bool {
	if len(s) != len(actual) {
		return false
	}
	for i, dim := range s {
		if dim != nil && *dim != actual[i] {
			return false
		}
	}
	return true
}

func (s Shape) String() string {
	parts := make([]string, 0, len(s))
	for _, dim := range s {
		if dim == nil {
			parts = append(parts, "None")
			continue
		}
		parts = append(parts, strconv.Itoa(*dim))
	}
	if len(parts) == 1 {
		return "(" + parts[0] + ",)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Matches reports whether actual satisfies at least one alternative.
func (a ShapeAlternatives) Matches(actual []int) bool {
	if len(a) == 0 {
		return true
	}
	for _, alt := range a {
		if alt.Matches(actual) {
			return true
		}
	}
	return false
}

func (a ShapeAlternatives) String() string {
	parts := make([]string, 0, len(a))
	for _, alt := range a {
		parts = append(parts, alt.String())
	}
	return "[" + strings.Join(parts, " | ") + "]"
}

// FormatShape renders an actual shape the same way Shape.String does.
func FormatShape(actual []int) string {
	s := make(Shape, len(actual))
	for i := range actual {
		s[i] = Dim(actual[i])
	}
	return s.String()
}

// UnmarshalYAML accepts either a single shape ([null, 3]) or a list of
// alternatives ([[null], [null, null]]).
func (a *ShapeAlternatives) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: shape must be a sequence", node.Line)
	}
	nested := len(node.Content) > 0
	for _, child := range node.Content {
		if child.Kind != yaml.SequenceNode {
			nested = false
			break
		}
	}
	if !nested {
		shape, err := parseShape(node)
		if err != nil {
			return err
		}
		*a = ShapeAlternatives{shape}
		return nil
	}
	out := make(ShapeAlternatives, 0, len(node.Content))
	for _, child := range node.Content {
		shape, err := parseShape(child)
		if err != nil {
			return err
		}
		out = append(out, shape)
	}
	*a = out
	return nil
}

// MarshalYAML always emits the list-of-alternatives form so that equal
// constraints serialize identically.
func (a ShapeAlternatives) MarshalYAML() (any, error) {
	out := make([][]any, 0, len(a))
	for _, alt := range a {
		dims := make([]any, 0, len(alt))
		for _, dim := range alt {
			if dim == nil {
				dims = append(dims, nil)
				continue
			}
			dims = append(dims, *dim)
		}
		out = append(out, dims)
	}
	return out, nil
}

func parseShape(node *yaml.Node) (Shape, error) {
	shape := make(Shape, 0, len(node.Content))
	for _, dim := range node.Content {
		if dim.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: shape dimension must be a scalar", dim.Line)
		}
		if dim.Tag == "!!null" || dim.Value == "" || dim.Value == "null" || dim.Value == "~" {
			shape = append(shape, nil)
			continue
		}
		size, err := strconv.Atoi(dim.Value)
		if err != nil || size < 0 {
			return nil, fmt.Errorf("line %d: invalid shape dimension %q", dim.Line, dim.Value)
		}
		shape = append(shape, Dim(size))
	}
	return shape, nil
}
