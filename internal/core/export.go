package core

import (
	"context"

	"github.com/rs/zerolog/log"

	"nwbio/internal/errs"
	"nwbio/internal/types"
)

// Export writes the contents of src into this session, which must be open
// in export-dest mode.  With a root container the graph is rebuilt
// against this session's type map; without one the builder tree of src
// is copied, filling in attribute defaults the destination schema adds.
// Links and references are re-pointed at the copies; links into other
// stores are kept as they are.
func (io *IO) Export(ctx context.Context, src *IO, root Object) error {
	io.mu.Lock()
	defer io.mu.Unlock()
	if err := io.requireOpen(); err != nil {
		return err
	}
	if io.mode != types.SessionModeExportDest {
		return errs.WriteMode("cannot export into a session in %s mode", io.mode)
	}
	if src == nil {
		return errs.ResourceClosed("export source is not open")
	}
	srcRoot, err := src.ReadBuilder(ctx)
	if err != nil {
		return err
	}
	if err := io.checkExportVersion(srcRoot); err != nil {
		return err
	}

	var dst *GroupBuilder
	if root != nil {
		b, err := io.manager.Build(ctx, root)
		if err != nil {
			return err
		}
		gb, ok := b.(*GroupBuilder)
		if !ok {
			return errs.TypeMismatch("root %s %q must be a group type", root.Base().typeName, root.Base().name)
		}
		dst = gb
	} else {
		e := &exporter{ctx: ctx, catalog: io.typeMap.Catalog(), mapping: io.manager.exported}
		dst, err = e.copyTree(srcRoot)
		if err != nil {
			return err
		}
	}
	if ns, _, ok := Annotation(dst); ok {
		if info, ok := io.typeMap.Catalog().Namespace(ns); ok {
			if err := dst.SetAttribute(types.AttrSchemaVersion, info.Version); err != nil {
				return err
			}
		}
	}
	if err := io.writeTree(ctx, dst); err != nil {
		return err
	}
	io.manager.Seal()
	io.root = dst
	log.Ctx(ctx).Debug().
		Str("source", src.Path()).
		Str("dest", io.path).
		Bool("rebuild", root != nil).
		Msg("export complete")
	return nil
}

func (io *IO) checkExportVersion(srcRoot *GroupBuilder) error {
	ns, _, ok := Annotation(srcRoot)
	if !ok {
		return errs.Format("export source root has no type annotation")
	}
	info, ok := io.typeMap.Catalog().Namespace(ns)
	if !ok {
		return errs.UnknownType("namespace %s of the export source is not loaded", ns)
	}
	value, ok := srcRoot.Attribute(types.AttrSchemaVersion)
	source, _ := value.(string)
	if !ok || source == "" {
		return nil
	}
	return CheckCompatible(source, info.Version)
}

type deferredLink struct {
	dst *LinkBuilder
	src *LinkBuilder
}

type deferredRef struct {
	dst *ReferenceBuilder
	src *ReferenceBuilder
}

// exporter copies a builder tree in two passes: nodes first, then the
// links and references between them, so targets copied later in the
// walk resolve too.
type exporter struct {
	ctx     context.Context
	catalog *Catalog
	mapping map[Builder]Builder
	links   []deferredLink
	refs    []deferredRef
}

func (e *exporter) copyTree(src *GroupBuilder) (*GroupBuilder, error) {
	dst, err := e.copyGroup(src)
	if err != nil {
		return nil, err
	}
	for _, d := range e.links {
		target, ok := e.mapping[d.src.Target]
		if !ok {
			return nil, errs.Format("link %s points outside the exported tree", d.src.Path())
		}
		d.dst.Target = target
	}
	for _, d := range e.refs {
		target, ok := e.mapping[d.src.Target]
		if !ok {
			return nil, errs.Format("reference to %s points outside the exported tree", d.src.Target.Path())
		}
		d.dst.Target = target
	}
	return dst, nil
}

func (e *exporter) copyGroup(src *GroupBuilder) (*GroupBuilder, error) {
	dst := NewGroupBuilder(src.Name())
	e.mapping[src] = dst
	e.copyAttributes(src, dst)
	for _, child := range src.Children() {
		var copied Builder
		switch n := child.(type) {
		case *GroupBuilder:
			sub, err := e.copyGroup(n)
			if err != nil {
				return nil, err
			}
			copied = sub
		case *DatasetBuilder:
			db := NewDatasetBuilder(n.Name(), n.DType, n.Data)
			e.mapping[n] = db
			e.copyAttributes(n, db)
			if err := e.upgrade(db); err != nil {
				return nil, err
			}
			copied = db
		case *LinkBuilder:
			link := &LinkBuilder{nodeBase: newNodeBase(n.Name()), External: n.External}
			if n.Target != nil {
				e.links = append(e.links, deferredLink{dst: link, src: n})
			}
			e.mapping[n] = link
			copied = link
		}
		if err := dst.AddChild(copied); err != nil {
			return nil, err
		}
	}
	if err := e.upgrade(dst); err != nil {
		return nil, err
	}
	return dst, nil
}

func (e *exporter) copyAttributes(src Builder, dst Builder) {
	for _, name := range src.AttributeNames() {
		value, _ := src.Attribute(name)
		if ref, ok := value.(*ReferenceBuilder); ok {
			copied := &ReferenceBuilder{External: ref.External}
			if ref.Target != nil {
				e.refs = append(e.refs, deferredRef{dst: copied, src: ref})
			}
			value = copied
		}
		_ = dst.SetAttribute(name, value)
	}
}

// upgrade adds the fixed and default attribute values the destination
// schema declares for a typed builder but the copy lacks.
func (e *exporter) upgrade(b Builder) error {
	_, typeName, ok := Annotation(b)
	if !ok {
		return nil
	}
	spec, ok := e.catalog.Lookup(typeName)
	if !ok {
		log.Ctx(e.ctx).Debug().Str("type", typeName).Str("path", b.Path()).Msg("type unknown to destination schema, copied as is")
		return nil
	}
	if gb, ok := b.(*GroupBuilder); ok {
		return fillDefaults(gb, spec.content())
	}
	return fillAttributeDefaults(b, spec.Attributes)
}

func fillAttributeDefaults(b Builder, specs []types.AttributeSpec) error {
	for _, spec := range specs {
		if _, ok := b.Attribute(spec.Name); ok {
			continue
		}
		value := spec.Value
		if value == nil {
			value = spec.DefaultValue
		}
		if value == nil {
			continue
		}
		v, err := attributeValue(value, spec.DType)
		if err != nil {
			return errs.Wrap(errs.KindTypeMismatch, err, "default of "+spec.Name)
		}
		if err := b.SetAttribute(spec.Name, v); err != nil {
			return err
		}
	}
	return nil
}

func fillDefaults(gb *GroupBuilder, content types.GroupSpec) error {
	if err := fillAttributeDefaults(gb, content.Attributes); err != nil {
		return err
	}
	for _, d := range content.Datasets {
		if d.DataTypeInc != "" || d.Name == "" {
			continue
		}
		if db, ok := gb.Dataset(d.Name); ok {
			if err := fillAttributeDefaults(db, d.Attributes); err != nil {
				return err
			}
		}
	}
	for _, g := range content.Groups {
		if g.DataTypeInc != "" || g.Name == "" {
			continue
		}
		if sub, ok := gb.Group(g.Name); ok {
			if err := fillDefaults(sub, g); err != nil {
				return err
			}
		}
	}
	return nil
}
