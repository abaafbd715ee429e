package core

import (
	"reflect"

	"nwbio/internal/errs"
	"nwbio/internal/ports"
	"nwbio/internal/shared"
	"nwbio/internal/types"
)

// Builder is one node of the backend-neutral tree a container graph is
// mapped onto.
type Builder interface {
	Name() string
	Kind() types.NodeKind
	Parent() *GroupBuilder
	Path() string
	Attribute(name string) (any, bool)
	AttributeNames() []string
	SetAttribute(name string, value any) error
	Written() bool
	Source() string

	base() *nodeBase
}

type nodeBase struct {
	name   string
	parent *GroupBuilder
	attrs  map[string]any
	order  []string
	dirty  bool

	written bool
	source  string
}

func newNodeBase(name string) nodeBase {
	return nodeBase{name: name, attrs: map[string]any{}}
}

func (n *nodeBase) base() *nodeBase { return n }

func (n *nodeBase) Name() string          { return n.name }
func (n *nodeBase) Parent() *GroupBuilder { return n.parent }
func (n *nodeBase) Written() bool         { return n.written }
func (n *nodeBase) Source() string        { return n.source }

// Path returns the absolute path of the node; a detached node reports
// the path it would have as a root child.
func (n *nodeBase) Path() string {
	if n.parent == nil {
		return "/"
	}
	return shared.JoinPath(n.parent.Path(), n.name)
}

func (n *nodeBase) Attribute(name string) (any, bool) {
	v, ok := n.attrs[name]
	return v, ok
}

func (n *nodeBase) AttributeNames() []string {
	return append([]string(nil), n.order...)
}

// SetAttribute stores an attribute.  Attributes of a written node may be
// added but never changed.
func (n *nodeBase) SetAttribute(name string, value any) error {
	if existing, ok := n.attrs[name]; ok {
		if sameAttribute(existing, value) {
			return nil
		}
		if n.written {
			return errs.WriteMode("attribute %s of %s is already written", name, n.Path())
		}
	} else {
		n.order = append(n.order, name)
	}
	n.attrs[name] = value
	n.dirty = true
	return nil
}

func sameAttribute(a any, b any) bool {
	if ra, ok := a.(*ReferenceBuilder); ok {
		rb, ok := b.(*ReferenceBuilder)
		return ok && ra.Target == rb.Target && ra.External == rb.External
	}
	return reflect.DeepEqual(a, b)
}

// Annotation returns the namespace and data type a builder is tagged with.
func Annotation(b Builder) (string, string, bool) {
	ns, _ := b.Attribute(types.AttrNamespace)
	typ, _ := b.Attribute(types.AttrDataType)
	nsName, _ := ns.(string)
	typeName, _ := typ.(string)
	if nsName == "" || typeName == "" {
		return "", "", false
	}
	return nsName, typeName, true
}

// GroupBuilder holds ordered child builders.
type GroupBuilder struct {
	nodeBase
	children map[string]Builder
	names    []string
}

func NewGroupBuilder(name string) *GroupBuilder {
	return &GroupBuilder{nodeBase: newNodeBase(name), children: map[string]Builder{}}
}

func (g *GroupBuilder) Kind() types.NodeKind { return types.NodeKindGroup }

// AddChild attaches child under its own name.  Attaching the same builder
// twice is a no-op; any other name clash is a NameCollisionError.
func (g *GroupBuilder) AddChild(child Builder) error {
	name := child.Name()
	if err := shared.ValidateName(name); err != nil {
		return errs.Wrap(errs.KindFormat, err, "invalid child name under "+g.Path())
	}
	if existing, ok := g.children[name]; ok {
		if existing == child {
			return nil
		}
		return errs.NameCollision("%s already has a child named %q", g.Path(), name)
	}
	if parent := child.Parent(); parent != nil && parent != g {
		return errs.NameCollision("%s is already attached at %s", name, child.Path())
	}
	child.base().parent = g
	g.children[name] = child
	g.names = append(g.names, name)
	return nil
}

func (g *GroupBuilder) Child(name string) (Builder, bool) {
	b, ok := g.children[name]
	return b, ok
}

// Children returns the child builders in insertion order.
func (g *GroupBuilder) Children() []Builder {
	out := make([]Builder, 0, len(g.names))
	for _, name := range g.names {
		out = append(out, g.children[name])
	}
	return out
}

func (g *GroupBuilder) Group(name string) (*GroupBuilder, bool) {
	b, ok := g.children[name].(*GroupBuilder)
	return b, ok
}

func (g *GroupBuilder) Dataset(name string) (*DatasetBuilder, bool) {
	b, ok := g.children[name].(*DatasetBuilder)
	return b, ok
}

func (g *GroupBuilder) Link(name string) (*LinkBuilder, bool) {
	b, ok := g.children[name].(*LinkBuilder)
	return b, ok
}

// Walk visits g and every builder below it, parents first.
func (g *GroupBuilder) Walk(fn func(Builder) error) error {
	if err := fn(g); err != nil {
		return err
	}
	for _, child := range g.Children() {
		if sub, ok := child.(*GroupBuilder); ok {
			if err := sub.Walk(fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(child); err != nil {
			return err
		}
	}
	return nil
}

// DatasetBuilder holds array data, in memory or lazily backed.
type DatasetBuilder struct {
	nodeBase
	DType types.DType
	Data  ports.ArrayReader

	// source is the field value the dataset was built from, nil for
	// datasets read from a store.
	source any
}

func NewDatasetBuilder(name string, dtype types.DType, data ports.ArrayReader) *DatasetBuilder {
	if dtype == types.DTypeAny && data != nil {
		dtype = data.ElementType()
	}
	return &DatasetBuilder{nodeBase: newNodeBase(name), DType: dtype, Data: data}
}

func (d *DatasetBuilder) Kind() types.NodeKind { return types.NodeKindDataset }

// Shape returns the dataset dimensions without touching the payload.
func (d *DatasetBuilder) Shape() []int {
	if d.Data == nil {
		return nil
	}
	return d.Data.Dims()
}

// LinkBuilder is a soft link to another builder, or to a node in another
// store when External is set.
type LinkBuilder struct {
	nodeBase
	Target   Builder
	External types.Reference
}

func NewLinkBuilder(name string, target Builder) *LinkBuilder {
	return &LinkBuilder{nodeBase: newNodeBase(name), Target: target}
}

func NewExternalLinkBuilder(name string, ref types.Reference) *LinkBuilder {
	return &LinkBuilder{nodeBase: newNodeBase(name), External: ref}
}

func (l *LinkBuilder) Kind() types.NodeKind { return types.NodeKindLink }

// ReferenceBuilder is an object reference stored as an attribute value.
type ReferenceBuilder struct {
	Target   Builder
	External types.Reference
}

func NewReferenceBuilder(target Builder) *ReferenceBuilder {
	return &ReferenceBuilder{Target: target}
}

// Reference resolves the stored form of the reference.
func (r *ReferenceBuilder) Reference() types.Reference {
	if r.Target == nil {
		return r.External
	}
	return types.Reference{Path: r.Target.Path()}
}

// resolveLink follows link builders to the node they point at.
func resolveLink(b Builder) Builder {
	for i := 0; i < 16; i++ {
		link, ok := b.(*LinkBuilder)
		if !ok || link.Target == nil {
			return b
		}
		b = link.Target
	}
	return b
}

// rootOf returns the topmost group above b.
func rootOf(b Builder) Builder {
	for b.Parent() != nil {
		b = b.Parent()
	}
	return b
}

func markWritten(b Builder, source string) {
	n := b.base()
	n.written = true
	n.dirty = false
	n.source = source
}
