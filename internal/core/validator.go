package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"nwbio/internal/types"
)

// Validator checks builder trees against a catalog.  It reports every
// violation it finds and never modifies the tree.
type Validator struct {
	catalog *Catalog
}

func NewValidator(catalog *Catalog) *Validator {
	return &Validator{catalog: catalog}
}

// Validate walks root and returns all violations.  namespace is used for
// builders without a namespace annotation of their own.
func (v *Validator) Validate(ctx context.Context, root Builder, namespace string) []types.ValidationError {
	w := &validation{ctx: ctx, catalog: v.catalog, namespace: namespace, seen: map[Builder]bool{}}
	w.typed(root)
	log.Ctx(ctx).Debug().Str("path", root.Path()).Int("errors", len(w.errors)).Msg("validation complete")
	return w.errors
}

type validation struct {
	ctx       context.Context
	catalog   *Catalog
	namespace string
	seen      map[Builder]bool
	errors    []types.ValidationError
}

func (w *validation) report(kind types.ValidationErrorKind, path string, typeName string, format string, args ...any) {
	w.errors = append(w.errors, types.ValidationError{
		Kind:   kind,
		Path:   path,
		Type:   typeName,
		Reason: fmt.Sprintf(format, args...),
	})
}

// typed validates a builder carrying its own type annotation.
func (w *validation) typed(b Builder) {
	if w.seen[b] {
		return
	}
	w.seen[b] = true
	ns, typeName, ok := Annotation(b)
	if !ok {
		typ, _ := b.Attribute(types.AttrDataType)
		typeName, _ = typ.(string)
		ns = w.namespace
		if typeName == "" {
			w.report(types.ValidationUnknownType, b.Path(), "", "no type annotation")
			return
		}
	}
	spec, err := w.catalog.Resolve(ns, typeName)
	if err != nil {
		w.report(types.ValidationUnknownType, b.Path(), typeName, "type %s/%s is not defined", ns, typeName)
		return
	}
	switch n := b.(type) {
	case *GroupBuilder:
		if spec.Kind != types.NodeKindGroup {
			w.report(types.ValidationTypeMismatch, b.Path(), typeName, "expected a dataset, found a group")
			return
		}
		w.attributes(n, spec.Attributes, typeName)
		w.children(n, spec.content(), typeName)
	case *DatasetBuilder:
		if spec.Kind != types.NodeKindDataset {
			w.report(types.ValidationTypeMismatch, b.Path(), typeName, "expected a group, found a dataset")
			return
		}
		w.data(n, spec.DType, spec.Shape, typeName)
		w.attributes(n, spec.Attributes, typeName)
	}
}

func (w *validation) attributes(b Builder, specs []types.AttributeSpec, typeName string) {
	for _, spec := range specs {
		value, ok := b.Attribute(spec.Name)
		if !ok {
			if spec.IsRequired() {
				w.report(types.ValidationMissing, b.Path(), typeName, "missing required attribute %s", spec.Name)
			}
			continue
		}
		if ref, isRef := value.(*ReferenceBuilder); isRef {
			if spec.DType != types.DTypeReference {
				w.report(types.ValidationTypeMismatch, b.Path(), typeName,
					"attribute %s holds a reference, expected %s", spec.Name, spec.DType)
				continue
			}
			if ref.Target != nil && spec.TargetType != "" {
				_, target, _ := Annotation(ref.Target)
				if !w.catalog.IsSubtype(target, spec.TargetType) {
					w.report(types.ValidationTypeMismatch, b.Path(), typeName,
						"attribute %s references a %s, expected %s", spec.Name, target, spec.TargetType)
				}
			}
			continue
		}
		if spec.DType == types.DTypeReference {
			w.report(types.ValidationTypeMismatch, b.Path(), typeName,
				"attribute %s must be an object reference", spec.Name)
			continue
		}
		if _, err := attributeValue(value, spec.DType); err != nil {
			w.report(types.ValidationTypeMismatch, b.Path(), typeName, "attribute %s: %v", spec.Name, err)
			continue
		}
		if len(spec.Shape) > 0 && !spec.Shape.Matches(attributeDims(value)) {
			w.report(types.ValidationShape, b.Path(), typeName, "attribute %s has shape %s, expected %s",
				spec.Name, types.FormatShape(attributeDims(value)), spec.Shape)
		}
	}
}

// data checks dtype and shape from dataset metadata alone.
func (w *validation) data(db *DatasetBuilder, dtype types.DType, shape types.ShapeAlternatives, typeName string) {
	if db.Data == nil {
		w.report(types.ValidationMissing, db.Path(), typeName, "dataset has no data")
		return
	}
	if !dtype.Accepts(db.DType) {
		w.report(types.ValidationTypeMismatch, db.Path(), typeName, "dtype %s, expected %s", db.DType, dtype)
	}
	if dims := db.Shape(); !shape.Matches(dims) {
		w.report(types.ValidationShape, db.Path(), typeName, "shape %s, expected %s", types.FormatShape(dims), shape)
	}
}

func (w *validation) children(gb *GroupBuilder, content types.GroupSpec, typeName string) {
	claimed := map[Builder]bool{}
	for _, d := range content.Datasets {
		if d.DataTypeInc != "" {
			w.typedChildren(gb, d.Name, d.DataTypeInc, d.Quantity, typeName, claimed)
			continue
		}
		child, ok := gb.Child(d.Name)
		if !ok {
			if d.Quantity.Required() {
				w.report(types.ValidationMissing, gb.Path(), typeName, "missing required dataset %s", d.Name)
			}
			continue
		}
		claimed[child] = true
		target := resolveLink(child)
		db, ok := target.(*DatasetBuilder)
		if !ok {
			if link, isLink := target.(*LinkBuilder); isLink && link.Target == nil {
				continue
			}
			w.report(types.ValidationTypeMismatch, child.Path(), typeName, "expected a dataset")
			continue
		}
		if target != child {
			continue
		}
		w.data(db, d.DType, d.Shape, typeName)
		w.attributes(db, d.Attributes, typeName)
	}
	for _, g := range content.Groups {
		if g.DataTypeInc != "" {
			w.typedChildren(gb, g.Name, g.DataTypeInc, g.Quantity, typeName, claimed)
			continue
		}
		sub, ok := gb.Group(g.Name)
		if !ok {
			if g.Quantity.Required() {
				w.report(types.ValidationMissing, gb.Path(), typeName, "missing required group %s", g.Name)
			}
			continue
		}
		claimed[sub] = true
		w.attributes(sub, g.Attributes, typeName)
		w.children(sub, g, typeName)
	}
	for _, l := range content.Links {
		child, ok := gb.Link(l.Name)
		if !ok {
			if l.Quantity.Required() {
				w.report(types.ValidationMissing, gb.Path(), typeName, "missing required link %s", l.Name)
			}
			continue
		}
		claimed[child] = true
		if child.Target == nil || l.TargetType == "" {
			continue
		}
		_, target, _ := Annotation(resolveLink(child))
		if !w.catalog.IsSubtype(target, l.TargetType) {
			w.report(types.ValidationTypeMismatch, child.Path(), typeName,
				"link targets a %s, expected %s", target, l.TargetType)
		}
	}
}

func (w *validation) typedChildren(gb *GroupBuilder, name string, inc string, quantity types.Quantity,
	typeName string, claimed map[Builder]bool) {
	if name != "" {
		child, ok := gb.Child(name)
		if !ok {
			if quantity.Required() {
				w.report(types.ValidationMissing, gb.Path(), typeName, "missing required %s %s", inc, name)
			}
			return
		}
		claimed[child] = true
		target := resolveLink(child)
		_, childType, ok := Annotation(target)
		if !ok || !w.catalog.IsSubtype(childType, inc) {
			w.report(types.ValidationTypeMismatch, child.Path(), typeName, "expected a %s, found %q", inc, childType)
			return
		}
		if target == child {
			w.typed(child)
		}
		return
	}
	count := 0
	for _, child := range gb.Children() {
		if claimed[child] {
			continue
		}
		target := resolveLink(child)
		_, childType, ok := Annotation(target)
		if !ok || !w.catalog.IsSubtype(childType, inc) {
			continue
		}
		claimed[child] = true
		count++
		if target == child {
			w.typed(child)
		}
	}
	if count == 0 && quantity.Required() {
		w.report(types.ValidationMissing, gb.Path(), typeName, "needs at least one %s", inc)
	}
	if limit := quantity.Max(); limit > 0 && count > limit {
		w.report(types.ValidationTypeMismatch, gb.Path(), typeName, "holds %d %s, at most %d allowed", count, inc, limit)
	}
}
