package core

import (
	"reflect"

	"github.com/maruel/ksid"

	"nwbio/internal/errs"
)

// Object is anything backed by a Container.  Typed wrappers embed
// *Container and so satisfy it for free.
type Object interface {
	Base() *Container
}

// Container is a typed in-memory node.  Fields are kept in insertion
// order; child collections are stored as []Object.
type Container struct {
	name      string
	namespace string
	typeName  string
	objectID  string
	parent    Object

	fields map[string]any
	order  []string

	modified bool
	sealed   bool
}

// NewContainer returns an empty container with a fresh object id.
func NewContainer(namespace string, typeName string, name string) *Container {
	return &Container{
		name:      name,
		namespace: namespace,
		typeName:  typeName,
		objectID:  ksid.NewID().String(),
		fields:    map[string]any{},
		modified:  true,
	}
}

func (c *Container) Base() *Container { return c }

func (c *Container) Name() string      { return c.name }
func (c *Container) Namespace() string { return c.namespace }
func (c *Container) TypeName() string  { return c.typeName }
func (c *Container) ObjectID() string  { return c.objectID }
func (c *Container) Parent() Object    { return c.parent }

// Modified reports whether the container changed since it was last
// written or read.
func (c *Container) Modified() bool { return c.modified }

// Sealed reports whether the container has been written or read, after
// which existing fields are frozen.
func (c *Container) Sealed() bool { return c.sealed }

// Fields returns the names of the set fields in insertion order.
func (c *Container) Fields() []string {
	return append([]string(nil), c.order...)
}

func (c *Container) Get(field string) (any, bool) {
	v, ok := c.fields[field]
	return v, ok
}

// Field returns the value of field, or nil when unset.
func (c *Container) Field(field string) any {
	return c.fields[field]
}

// Set assigns a field.  Once sealed, a field that already has a value
// can only be set to that same value.
func (c *Container) Set(field string, value any) error {
	if value == nil {
		return c.Unset(field)
	}
	existing, ok := c.fields[field]
	if ok && sameValue(existing, value) {
		return nil
	}
	if ok && c.sealed {
		return errs.WriteMode("field %s of %s %q is already written and cannot be changed",
			field, c.typeName, c.name).WithField(field)
	}
	if !ok {
		c.order = append(c.order, field)
	}
	c.fields[field] = value
	c.markModified()
	return nil
}

func (c *Container) Unset(field string) error {
	if _, ok := c.fields[field]; !ok {
		return nil
	}
	if c.sealed {
		return errs.WriteMode("field %s of %s %q is already written and cannot be removed",
			field, c.typeName, c.name).WithField(field)
	}
	delete(c.fields, field)
	for i, name := range c.order {
		if name == field {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.markModified()
	return nil
}

// AddChild appends obj to the collection held in field and takes
// ownership of it unless it already has a parent.  Names are unique
// within a collection.
func (c *Container) AddChild(field string, obj Object) error {
	child := obj.Base()
	existing := c.Children(field)
	for _, other := range existing {
		if other.Base() == child {
			return nil
		}
		if other.Base().name == child.name {
			return errs.NameCollision("%s %q already has a child named %q in %s",
				c.typeName, c.name, child.name, field).WithField(field)
		}
	}
	if _, ok := c.fields[field]; !ok {
		c.order = append(c.order, field)
	}
	c.fields[field] = append(existing, obj)
	c.adopt(obj)
	c.markModified()
	return nil
}

// Children returns the objects held in field, whether it holds a single
// object or a collection.
func (c *Container) Children(field string) []Object {
	return asObjects(c.fields[field])
}

// Child returns the named member of the collection in field.
func (c *Container) Child(field string, name string) (Object, bool) {
	for _, obj := range c.Children(field) {
		if obj.Base().name == name {
			return obj, true
		}
	}
	return nil, false
}

// adopt makes c the owner of obj if obj has no owner yet.
func (c *Container) adopt(obj Object) bool {
	child := obj.Base()
	if child == c {
		return false
	}
	if child.parent == nil {
		child.parent = c
		return true
	}
	return child.parent.Base() == c
}

func (c *Container) markModified() {
	for cur := c; cur != nil; {
		cur.modified = true
		if cur.parent == nil {
			return
		}
		cur = cur.parent.Base()
	}
}

func (c *Container) seal() {
	c.sealed = true
	c.modified = false
}

func asObjects(value any) []Object {
	switch v := value.(type) {
	case nil:
		return nil
	case Object:
		return []Object{v}
	case []Object:
		return v
	}
	return nil
}

func sameValue(a any, b any) bool {
	if ao, ok := a.(Object); ok {
		bo, ok := b.(Object)
		return ok && ao.Base() == bo.Base()
	}
	return reflect.DeepEqual(a, b)
}
