package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"nwbio/internal/errs"
	"nwbio/internal/types"
)

// Constructor wraps a populated base container in its typed form.
type Constructor func(*Container) Object

// Initializer is implemented by containers that want a hook once they
// have been fully constructed from a builder.
type Initializer interface {
	Init(ctx context.Context) error
}

// TypeMap binds schema types to container constructors and field rules,
// and maps containers to builders and back.
type TypeMap struct {
	mu           sync.RWMutex
	catalog      *Catalog
	constructors map[string]Constructor
	rules        map[string][]FieldRule
	mappers      map[string]*ObjectMapper
}

func NewTypeMap() *TypeMap {
	return &TypeMap{
		catalog:      NewCatalog(),
		constructors: map[string]Constructor{},
		rules:        map[string][]FieldRule{},
		mappers:      map[string]*ObjectMapper{},
	}
}

func (tm *TypeMap) Catalog() *Catalog { return tm.catalog }

// LoadNamespace adds a namespace to the map's catalog.
func (tm *TypeMap) LoadNamespace(ctx context.Context, src types.NamespaceSource) error {
	if err := tm.catalog.Load(ctx, src); err != nil {
		return err
	}
	tm.mu.Lock()
	tm.mappers = map[string]*ObjectMapper{}
	tm.mu.Unlock()
	return nil
}

// RegisterType binds a constructor to a type.  Subtypes without their own
// constructor use the nearest registered ancestor's.
func (tm *TypeMap) RegisterType(namespace string, typeName string, ctor Constructor) error {
	if _, err := tm.catalog.Resolve(namespace, typeName); err != nil {
		return err
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.constructors[typeName] = ctor
	return nil
}

// RegisterFieldMapper installs field rules for a type.  Rules are inherited
// by subtypes, which may override individual paths.
func (tm *TypeMap) RegisterFieldMapper(namespace string, typeName string, rules ...FieldRule) error {
	if _, err := tm.catalog.Resolve(namespace, typeName); err != nil {
		return err
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.rules[typeName] = append([]FieldRule(nil), rules...)
	tm.mappers = map[string]*ObjectMapper{}
	return nil
}

// GenerateDefault returns a constructor for a type with no custom
// behavior: the generic container itself.
func (tm *TypeMap) GenerateDefault(namespace string, typeName string) (Constructor, error) {
	if _, err := tm.catalog.Resolve(namespace, typeName); err != nil {
		return nil, err
	}
	return func(c *Container) Object { return c }, nil
}

// NewObject returns an empty container of the given type, wrapped by the
// registered constructor.
func (tm *TypeMap) NewObject(namespace string, typeName string, name string) (Object, error) {
	spec, err := tm.catalog.Resolve(namespace, typeName)
	if err != nil {
		return nil, err
	}
	return tm.constructorFor(spec)(NewContainer(namespace, typeName, name)), nil
}

// Derive returns an independent copy; loading namespaces or registering
// types on the copy leaves tm untouched.
func (tm *TypeMap) Derive() *TypeMap {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	out := NewTypeMap()
	out.catalog = tm.catalog.Clone()
	for name, ctor := range tm.constructors {
		out.constructors[name] = ctor
	}
	for name, rules := range tm.rules {
		out.rules[name] = rules
	}
	return out
}

// Mapper returns the field table of a type.
func (tm *TypeMap) Mapper(typeName string) (*ObjectMapper, error) {
	tm.mu.RLock()
	mapper, ok := tm.mappers[typeName]
	tm.mu.RUnlock()
	if ok {
		return mapper, nil
	}
	spec, ok := tm.catalog.Lookup(typeName)
	if !ok {
		return nil, errs.UnknownType("type %s is not defined", typeName)
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	var rules []FieldRule
	for i := len(spec.Ancestry) - 1; i >= 0; i-- {
		rules = append(rules, tm.rules[spec.Ancestry[i]]...)
	}
	mapper = newObjectMapper(spec, rules)
	tm.mappers[typeName] = mapper
	return mapper, nil
}

func (tm *TypeMap) constructorFor(spec *TypeSpec) Constructor {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	for _, name := range spec.Ancestry {
		if ctor, ok := tm.constructors[name]; ok {
			return ctor
		}
	}
	return func(c *Container) Object { return c }
}

// content returns the element declarations of a type as a group spec.
func (s *TypeSpec) content() types.GroupSpec {
	return types.GroupSpec{
		Attributes: s.Attributes,
		Datasets:   s.Datasets,
		Groups:     s.Groups,
		Links:      s.Links,
	}
}

// build maps obj onto a builder.  into is the builder an earlier pass
// produced for obj, which is extended in place.
func (tm *TypeMap) build(ctx context.Context, obj Object, m *BuildManager, into Builder) (Builder, error) {
	c := obj.Base()
	spec, err := tm.catalog.Resolve(c.namespace, c.typeName)
	if err != nil {
		return nil, err
	}
	mapper, err := tm.Mapper(spec.Name)
	if err != nil {
		return nil, err
	}
	p := &buildPass{ctx: ctx, tm: tm, m: m, mapper: mapper, c: c}

	switch spec.Kind {
	case types.NodeKindGroup:
		gb, _ := into.(*GroupBuilder)
		if gb == nil {
			gb = NewGroupBuilder(c.name)
		}
		m.track(obj, gb)
		if err := p.annotate(gb); err != nil {
			return nil, err
		}
		if err := p.attributes(gb, spec.Attributes, ""); err != nil {
			return nil, err
		}
		if err := p.children(gb, spec.content(), ""); err != nil {
			return nil, err
		}
		return gb, nil
	default:
		if db, ok := into.(*DatasetBuilder); ok && db.Written() {
			m.track(obj, db)
			if err := p.annotate(db); err != nil {
				return nil, err
			}
			return db, p.attributes(db, spec.Attributes, "")
		}
		field := mapper.Field("")
		value, ok := c.Get(field)
		if !ok || value == nil {
			return nil, errs.MissingRequiredField(field, "%s %q has no data (field %s)", c.typeName, c.name, field)
		}
		data, dtype, err := arrayValue(value, spec.DType)
		if err != nil {
			return nil, errs.Wrap(errs.KindTypeMismatch, err, "field "+field+" of "+c.typeName).WithField(field)
		}
		if !spec.Shape.Matches(data.Dims()) {
			return nil, errs.ShapeConstraint(field, "%s %q: data must have shape %s, got %s",
				c.typeName, c.name, spec.Shape, types.FormatShape(data.Dims()))
		}
		db := NewDatasetBuilder(c.name, dtype, data)
		m.track(obj, db)
		if err := p.annotate(db); err != nil {
			return nil, err
		}
		return db, p.attributes(db, spec.Attributes, "")
	}
}

type buildPass struct {
	ctx    context.Context
	tm     *TypeMap
	m      *BuildManager
	mapper *ObjectMapper
	c      *Container
}

func (p *buildPass) annotate(b Builder) error {
	if err := b.SetAttribute(types.AttrNamespace, p.mapper.spec.Namespace); err != nil {
		return err
	}
	if err := b.SetAttribute(types.AttrDataType, p.c.typeName); err != nil {
		return err
	}
	return b.SetAttribute(types.AttrObjectID, p.c.objectID)
}

func (p *buildPass) attributes(b Builder, specs []types.AttributeSpec, prefix string) error {
	for _, spec := range specs {
		path := specPath(prefix, spec.Name)
		if spec.Value != nil {
			v, err := attributeValue(spec.Value, spec.DType)
			if err != nil {
				return errs.Wrap(errs.KindTypeMismatch, err, "fixed value of "+path)
			}
			if err := b.SetAttribute(spec.Name, v); err != nil {
				return err
			}
			continue
		}
		field := p.mapper.Field(path)
		value, ok := p.c.Get(field)
		if !ok && spec.DefaultValue != nil {
			value, ok = spec.DefaultValue, true
		}
		if !ok || value == nil {
			if _, exists := b.Attribute(spec.Name); exists || !spec.IsRequired() {
				continue
			}
			return errs.MissingRequiredField(field, "%s %q is missing required attribute %s (field %s)",
				p.c.typeName, p.c.name, path, field)
		}
		if spec.DType == types.DTypeReference {
			ref, err := p.reference(field, spec, value)
			if err != nil {
				return err
			}
			if err := b.SetAttribute(spec.Name, ref); err != nil {
				return err
			}
			continue
		}
		v, err := attributeValue(value, spec.DType)
		if err != nil {
			return errs.Wrap(errs.KindTypeMismatch, err, "field "+field+" of "+p.c.typeName).WithField(field)
		}
		if len(spec.Shape) > 0 && !spec.Shape.Matches(attributeDims(v)) {
			return errs.ShapeConstraint(field, "%s %q: attribute %s must have shape %s, got %s",
				p.c.typeName, p.c.name, path, spec.Shape, types.FormatShape(attributeDims(v)))
		}
		if err := b.SetAttribute(spec.Name, v); err != nil {
			return err
		}
	}
	return nil
}

func (p *buildPass) reference(field string, spec types.AttributeSpec, value any) (*ReferenceBuilder, error) {
	switch v := value.(type) {
	case types.Reference:
		return &ReferenceBuilder{External: v}, nil
	case Object:
		if spec.TargetType != "" && !p.tm.catalog.IsSubtype(v.Base().typeName, spec.TargetType) {
			return nil, errs.TypeMismatch("field %s of %s must reference a %s, got %s",
				field, p.c.typeName, spec.TargetType, v.Base().typeName).WithField(field)
		}
		target, err := p.m.Build(p.ctx, v)
		if err != nil {
			return nil, err
		}
		return NewReferenceBuilder(target), nil
	}
	return nil, errs.TypeMismatch("field %s of %s must hold an object reference, got %T",
		field, p.c.typeName, value).WithField(field)
}

// children maps the element declarations of content onto gb.  Several
// unnamed declarations may share one field; each member is claimed by
// the first declaration whose type it satisfies.
func (p *buildPass) children(gb *GroupBuilder, content types.GroupSpec, prefix string) error {
	claimed := map[*Container]bool{}
	manyFields := map[string]bool{}

	for _, d := range content.Datasets {
		path := specPath(prefix, elementKey(d.Name, d.DataTypeInc))
		var err error
		if d.DataTypeInc != "" {
			err = p.typed(gb, path, d.Name, d.DataTypeInc, d.Quantity, claimed, manyFields)
		} else {
			err = p.dataset(gb, d, path)
		}
		if err != nil {
			return err
		}
	}
	for _, g := range content.Groups {
		path := specPath(prefix, elementKey(g.Name, g.DataTypeInc))
		var err error
		if g.DataTypeInc != "" {
			err = p.typed(gb, path, g.Name, g.DataTypeInc, g.Quantity, claimed, manyFields)
		} else {
			err = p.group(gb, g, path)
		}
		if err != nil {
			return err
		}
	}
	for _, l := range content.Links {
		if err := p.link(gb, l, specPath(prefix, l.Name)); err != nil {
			return err
		}
	}
	for field := range manyFields {
		for _, obj := range p.c.Children(field) {
			if !claimed[obj.Base()] {
				return errs.TypeMismatch("%s %q cannot hold %s %q in %s",
					p.c.typeName, p.c.name, obj.Base().typeName, obj.Base().name, field).WithField(field)
			}
		}
	}
	return nil
}

func (p *buildPass) typed(gb *GroupBuilder, path string, name string, inc string, quantity types.Quantity,
	claimed map[*Container]bool, manyFields map[string]bool) error {
	field := p.mapper.Field(path)
	value, ok := p.c.Get(field)

	if quantity.Many() {
		manyFields[field] = true
		var members []Object
		for _, obj := range asObjects(value) {
			child := obj.Base()
			if claimed[child] || !p.tm.catalog.IsSubtype(child.typeName, inc) {
				continue
			}
			claimed[child] = true
			members = append(members, obj)
		}
		if len(members) == 0 && quantity.Required() {
			return errs.MissingRequiredField(field, "%s %q needs at least one %s in %s",
				p.c.typeName, p.c.name, inc, field)
		}
		if limit := quantity.Max(); limit > 0 && len(members) > limit {
			return errs.TypeMismatch("%s %q holds %d %s in %s, at most %d allowed",
				p.c.typeName, p.c.name, len(members), inc, field, limit).WithField(field)
		}
		for _, obj := range members {
			if err := p.place(gb, obj); err != nil {
				return err
			}
		}
		return nil
	}

	if !ok || value == nil {
		if quantity.Required() && !hasChild(gb, name) {
			return errs.MissingRequiredField(field, "%s %q is missing required %s (field %s)",
				p.c.typeName, p.c.name, path, field)
		}
		return nil
	}
	switch v := value.(type) {
	case types.Reference:
		if name == "" {
			return errs.TypeMismatch("field %s of %s holds an external link but the slot has no name", field, p.c.typeName)
		}
		return p.addExternalLink(gb, name, v)
	case Object:
		child := v.Base()
		if !p.tm.catalog.IsSubtype(child.typeName, inc) {
			return errs.TypeMismatch("field %s of %s %q must hold a %s, got %s",
				field, p.c.typeName, p.c.name, inc, child.typeName).WithField(field)
		}
		if name != "" && child.name != name {
			return errs.TypeMismatch("field %s of %s %q must be named %q, got %q",
				field, p.c.typeName, p.c.name, name, child.name).WithField(field)
		}
		claimed[child] = true
		return p.place(gb, v)
	}
	return errs.TypeMismatch("field %s of %s %q must hold a %s, got %T",
		field, p.c.typeName, p.c.name, inc, value).WithField(field)
}

// place attaches obj's builder under gb when p.c owns obj, and a link to
// it otherwise.
func (p *buildPass) place(gb *GroupBuilder, obj Object) error {
	owned := p.c.adopt(obj)
	b, err := p.m.Build(p.ctx, obj)
	if err != nil {
		return err
	}
	if owned {
		return gb.AddChild(b)
	}
	return p.addLink(gb, obj.Base().name, b)
}

func (p *buildPass) addLink(gb *GroupBuilder, name string, target Builder) error {
	if existing, ok := gb.Link(name); ok && existing.Target == target {
		return nil
	}
	return gb.AddChild(NewLinkBuilder(name, target))
}

func (p *buildPass) addExternalLink(gb *GroupBuilder, name string, ref types.Reference) error {
	if existing, ok := gb.Link(name); ok && existing.External == ref {
		return nil
	}
	return gb.AddChild(NewExternalLinkBuilder(name, ref))
}

func (p *buildPass) dataset(gb *GroupBuilder, d types.DatasetSpec, path string) error {
	field := p.mapper.Field(path)
	value, ok := p.c.Get(field)
	existing, hasExisting := gb.Child(d.Name)
	if !ok || value == nil {
		if !hasExisting && d.Quantity.Required() {
			return errs.MissingRequiredField(field, "%s %q is missing required dataset %s (field %s)",
				p.c.typeName, p.c.name, path, field)
		}
		return nil
	}

	switch v := value.(type) {
	case Object:
		target, err := p.m.Build(p.ctx, v)
		if err != nil {
			return err
		}
		tg, ok := target.(*GroupBuilder)
		if !ok {
			return errs.TypeMismatch("field %s of %s %q links to %s, which is not a group",
				field, p.c.typeName, p.c.name, v.Base().typeName).WithField(field)
		}
		shared, ok := tg.Child(d.Name)
		if !ok {
			return errs.TypeMismatch("field %s of %s %q links to %s %q, which has no %s",
				field, p.c.typeName, p.c.name, v.Base().typeName, v.Base().name, d.Name).WithField(field)
		}
		return p.addLink(gb, d.Name, resolveLink(shared))
	case types.Reference:
		return p.addExternalLink(gb, d.Name, v)
	}

	if hasExisting && existing.Written() {
		if db, ok := existing.(*DatasetBuilder); ok && sameData(db, value) {
			return p.attributes(db, d.Attributes, path)
		}
		return errs.WriteMode("dataset %s is already written and cannot be replaced", existing.Path())
	}
	data, dtype, err := arrayValue(value, d.DType)
	if err != nil {
		return errs.Wrap(errs.KindTypeMismatch, err, "field "+field+" of "+p.c.typeName).WithField(field)
	}
	if !d.Shape.Matches(data.Dims()) {
		return errs.ShapeConstraint(field, "%s %q: %s must have shape %s, got %s",
			p.c.typeName, p.c.name, path, d.Shape, types.FormatShape(data.Dims()))
	}
	db, _ := existing.(*DatasetBuilder)
	if db == nil {
		db = NewDatasetBuilder(d.Name, dtype, data)
	} else {
		db.DType, db.Data = dtype, data
	}
	db.source = value
	if err := p.attributes(db, d.Attributes, path); err != nil {
		return err
	}
	return gb.AddChild(db)
}

func (p *buildPass) group(gb *GroupBuilder, g types.GroupSpec, path string) error {
	sub, exists := gb.Group(g.Name)
	if !exists {
		if !g.Quantity.Required() && !p.anySet(g, path) {
			return nil
		}
		sub = NewGroupBuilder(g.Name)
	}
	if err := p.attributes(sub, g.Attributes, path); err != nil {
		return err
	}
	if err := p.children(sub, g, path); err != nil {
		return err
	}
	if exists {
		return nil
	}
	return gb.AddChild(sub)
}

func (p *buildPass) link(gb *GroupBuilder, l types.LinkSpec, path string) error {
	field := p.mapper.Field(path)
	value, ok := p.c.Get(field)
	if !ok || value == nil {
		if l.Quantity.Required() && !hasChild(gb, l.Name) {
			return errs.MissingRequiredField(field, "%s %q is missing required link %s (field %s)",
				p.c.typeName, p.c.name, path, field)
		}
		return nil
	}
	switch v := value.(type) {
	case types.Reference:
		return p.addExternalLink(gb, l.Name, v)
	case Object:
		if l.TargetType != "" && !p.tm.catalog.IsSubtype(v.Base().typeName, l.TargetType) {
			return errs.TypeMismatch("link %s of %s %q must target a %s, got %s",
				path, p.c.typeName, p.c.name, l.TargetType, v.Base().typeName).WithField(field)
		}
		target, err := p.m.Build(p.ctx, v)
		if err != nil {
			return err
		}
		return p.addLink(gb, l.Name, target)
	}
	return errs.TypeMismatch("link %s of %s %q must hold an object, got %T",
		path, p.c.typeName, p.c.name, value).WithField(field)
}

// anySet reports whether any field bound below an untyped group is set.
func (p *buildPass) anySet(g types.GroupSpec, prefix string) bool {
	for _, a := range g.Attributes {
		if _, ok := p.c.Get(p.mapper.Field(specPath(prefix, a.Name))); ok && a.Value == nil {
			return true
		}
	}
	for _, d := range g.Datasets {
		path := specPath(prefix, elementKey(d.Name, d.DataTypeInc))
		if v, ok := p.c.Get(p.mapper.Field(path)); ok && (d.DataTypeInc == "" || len(asObjects(v)) > 0) {
			return true
		}
	}
	for _, sub := range g.Groups {
		path := specPath(prefix, elementKey(sub.Name, sub.DataTypeInc))
		if sub.DataTypeInc == "" {
			if p.anySet(sub, path) {
				return true
			}
			continue
		}
		if v, ok := p.c.Get(p.mapper.Field(path)); ok && len(asObjects(v)) > 0 {
			return true
		}
	}
	for _, l := range g.Links {
		if _, ok := p.c.Get(p.mapper.Field(specPath(prefix, l.Name))); ok {
			return true
		}
	}
	return false
}

func hasChild(gb *GroupBuilder, name string) bool {
	if name == "" {
		return false
	}
	_, ok := gb.Child(name)
	return ok
}

// sameData reports whether value is what the written dataset db already
// holds: its own lazy array, or the value it was built from.
func sameData(db *DatasetBuilder, value any) bool {
	if lazy, ok := value.(*LazyArray); ok {
		current, ok := db.Data.(*LazyArray)
		return ok && current == lazy
	}
	return db.source != nil && sameValue(db.source, value)
}

// construct instantiates the container a builder describes.
func (tm *TypeMap) construct(ctx context.Context, b Builder, m *BuildManager) (Object, error) {
	ns, typeName, ok := Annotation(b)
	if !ok {
		return nil, errs.Format("%s has no type annotation", b.Path())
	}
	spec, err := tm.catalog.Resolve(ns, typeName)
	if err != nil {
		return nil, err
	}
	mapper, err := tm.Mapper(spec.Name)
	if err != nil {
		return nil, err
	}
	c := &Container{
		name:      b.Name(),
		namespace: ns,
		typeName:  typeName,
		fields:    map[string]any{},
	}
	if id, ok := b.Attribute(types.AttrObjectID); ok {
		c.objectID, _ = id.(string)
	}
	obj := tm.constructorFor(spec)(c)
	m.track(obj, b)

	p := &constructPass{ctx: ctx, tm: tm, m: m, mapper: mapper, c: c}
	switch n := b.(type) {
	case *GroupBuilder:
		if spec.Kind != types.NodeKindGroup {
			return nil, errs.Format("%s is a group but %s is a dataset type", b.Path(), typeName)
		}
		if err := p.attributes(n, spec.Attributes, ""); err != nil {
			return nil, err
		}
		if err := p.children(n, spec.content(), ""); err != nil {
			return nil, err
		}
	case *DatasetBuilder:
		if spec.Kind != types.NodeKindDataset {
			return nil, errs.Format("%s is a dataset but %s is a group type", b.Path(), typeName)
		}
		p.set(mapper.Field(""), n.Data)
		if err := p.attributes(n, spec.Attributes, ""); err != nil {
			return nil, err
		}
	default:
		return nil, errs.Format("%s cannot be constructed directly", b.Path())
	}
	c.seal()
	if init, ok := obj.(Initializer); ok {
		if err := init.Init(ctx); err != nil {
			return nil, err
		}
	}
	log.Ctx(ctx).Debug().Str("type", typeName).Str("path", b.Path()).Msg("container constructed")
	return obj, nil
}

type constructPass struct {
	ctx    context.Context
	tm     *TypeMap
	m      *BuildManager
	mapper *ObjectMapper
	c      *Container
}

func (p *constructPass) set(field string, value any) {
	if _, ok := p.c.fields[field]; !ok {
		p.c.order = append(p.c.order, field)
	}
	p.c.fields[field] = value
}

func (p *constructPass) attributes(b Builder, specs []types.AttributeSpec, prefix string) error {
	for _, spec := range specs {
		if spec.Value != nil {
			continue
		}
		value, ok := b.Attribute(spec.Name)
		if !ok {
			continue
		}
		field := p.mapper.Field(specPath(prefix, spec.Name))
		if ref, ok := value.(*ReferenceBuilder); ok {
			if ref.Target == nil {
				p.set(field, ref.External)
				continue
			}
			obj, err := p.m.Construct(p.ctx, ref.Target)
			if err != nil {
				return err
			}
			p.set(field, obj)
			continue
		}
		p.set(field, value)
	}
	return nil
}

func (p *constructPass) children(gb *GroupBuilder, content types.GroupSpec, prefix string) error {
	claimed := map[Builder]bool{}
	for _, d := range content.Datasets {
		path := specPath(prefix, elementKey(d.Name, d.DataTypeInc))
		if d.DataTypeInc != "" {
			if err := p.typed(gb, path, d.Name, d.DataTypeInc, d.Quantity.Many(), claimed); err != nil {
				return err
			}
			continue
		}
		child, ok := gb.Child(d.Name)
		if !ok {
			continue
		}
		claimed[child] = true
		field := p.mapper.Field(path)
		switch n := child.(type) {
		case *DatasetBuilder:
			p.set(field, n.Data)
			if err := p.attributes(n, d.Attributes, path); err != nil {
				return err
			}
		case *LinkBuilder:
			if err := p.linkedDataset(field, n); err != nil {
				return err
			}
		}
	}
	for _, g := range content.Groups {
		path := specPath(prefix, elementKey(g.Name, g.DataTypeInc))
		if g.DataTypeInc != "" {
			if err := p.typed(gb, path, g.Name, g.DataTypeInc, g.Quantity.Many(), claimed); err != nil {
				return err
			}
			continue
		}
		sub, ok := gb.Group(g.Name)
		if !ok {
			continue
		}
		claimed[sub] = true
		if err := p.attributes(sub, g.Attributes, path); err != nil {
			return err
		}
		if err := p.children(sub, g, path); err != nil {
			return err
		}
	}
	for _, l := range content.Links {
		child, ok := gb.Link(l.Name)
		if !ok {
			continue
		}
		claimed[child] = true
		field := p.mapper.Field(specPath(prefix, l.Name))
		if child.Target == nil {
			p.set(field, child.External)
			continue
		}
		obj, err := p.m.Construct(p.ctx, resolveLink(child))
		if err != nil {
			return err
		}
		p.set(field, obj)
	}
	for _, child := range gb.Children() {
		if claimed[child] {
			continue
		}
		if ns, typeName, ok := Annotation(resolveLink(child)); ok {
			if _, err := p.tm.catalog.Resolve(ns, typeName); err != nil {
				return errs.Wrap(errs.KindUnknownType, err, "read "+child.Path())
			}
		}
		log.Ctx(p.ctx).Debug().Str("path", child.Path()).Str("type", p.c.typeName).Msg("skipping undeclared child")
	}
	return nil
}

// linkedDataset resolves a link found at a dataset slot.  A link into a
// typed group yields that group's container, so shared data stays tied
// to the object that owns it.
func (p *constructPass) linkedDataset(field string, link *LinkBuilder) error {
	if link.Target == nil {
		p.set(field, link.External)
		return nil
	}
	target := resolveLink(link)
	if parent := target.Parent(); parent != nil {
		if _, _, typed := Annotation(parent); typed {
			obj, err := p.m.Construct(p.ctx, parent)
			if err != nil {
				return err
			}
			p.set(field, obj)
			return nil
		}
	}
	if db, ok := target.(*DatasetBuilder); ok {
		p.set(field, db.Data)
		return nil
	}
	return errs.Format("link %s at a dataset slot points at %s, which is not a dataset", link.Path(), target.Path())
}

func (p *constructPass) typed(gb *GroupBuilder, path string, name string, inc string, many bool, claimed map[Builder]bool) error {
	field := p.mapper.Field(path)
	candidates := gb.Children()
	if name != "" {
		candidates = nil
		if child, ok := gb.Child(name); ok {
			candidates = []Builder{child}
		}
	}
	var members []Object
	for _, child := range candidates {
		if claimed[child] {
			continue
		}
		target := resolveLink(child)
		if link, ok := target.(*LinkBuilder); ok && link.Target == nil {
			if name != "" {
				claimed[child] = true
				p.set(field, link.External)
			}
			continue
		}
		ns, typeName, ok := Annotation(target)
		if !ok {
			continue
		}
		if _, err := p.tm.catalog.Resolve(ns, typeName); err != nil {
			return errs.Wrap(errs.KindUnknownType, err, "read "+target.Path())
		}
		if !p.tm.catalog.IsSubtype(typeName, inc) {
			continue
		}
		claimed[child] = true
		obj, err := p.m.Construct(p.ctx, target)
		if err != nil {
			return err
		}
		if target == child && obj.Base().parent == nil {
			obj.Base().parent = p.c
		}
		members = append(members, obj)
		if !many {
			break
		}
	}
	if len(members) == 0 {
		return nil
	}
	if !many {
		p.set(field, members[0])
		return nil
	}
	existing, _ := p.c.fields[field].([]Object)
	p.set(field, append(existing, members...))
	return nil
}
