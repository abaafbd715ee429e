package core

import (
	"strings"

	"nwbio/internal/shared"
)

// FieldRule binds a container field to a spec path.  A path names an
// element by its name, or an unnamed typed element as <Type>; attributes
// follow their owner ("data/unit").  The empty path is a dataset type's
// own payload.
type FieldRule struct {
	Field string
	Path  string
}

// ObjectMapper is the field table of one type: every spec path below the
// type resolves to exactly one container field.
type ObjectMapper struct {
	spec   *TypeSpec
	fields map[string]string
}

func newObjectMapper(spec *TypeSpec, rules []FieldRule) *ObjectMapper {
	m := &ObjectMapper{spec: spec, fields: map[string]string{}}
	for _, rule := range rules {
		m.fields[rule.Path] = rule.Field
	}
	return m
}

func (m *ObjectMapper) Spec() *TypeSpec { return m.spec }

// Field returns the container field bound to path.
func (m *ObjectMapper) Field(path string) string {
	if field, ok := m.fields[path]; ok {
		return field
	}
	return defaultField(path)
}

// defaultField derives a field name from a spec path: a named element or
// attribute joins its path with "_", an unnamed typed element takes the
// name of its enclosing group path, or the snake_case type name at the
// top level.
func defaultField(path string) string {
	if path == "" {
		return "data"
	}
	parts := strings.Split(path, "/")
	last := parts[len(parts)-1]
	if strings.HasPrefix(last, "<") && strings.HasSuffix(last, ">") {
		if len(parts) > 1 {
			return strings.Join(parts[:len(parts)-1], "_")
		}
		return shared.SnakeCase(strings.Trim(last, "<>"))
	}
	return strings.Join(parts, "_")
}

// specPath joins a parent spec path and an element key.
func specPath(prefix string, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
