package core

import (
	"context"

	"github.com/rs/zerolog/log"

	"nwbio/internal/errs"
)

// BuildManager drives build and construct for one I/O session and keeps
// the identity cache between containers and builders: each container
// maps to at most one builder and each builder to at most one container,
// however many paths reach them.
type BuildManager struct {
	typeMap    *TypeMap
	builders   map[*Container]Builder
	containers map[Builder]Object
	building   map[*Container]bool
	exported   map[Builder]Builder
}

func NewBuildManager(tm *TypeMap) *BuildManager {
	m := &BuildManager{typeMap: tm}
	m.Reset()
	return m
}

func (m *BuildManager) TypeMap() *TypeMap { return m.typeMap }

// Build returns the builder for obj, building it on first use.  A
// container modified since its builder was produced is mapped again into
// that same builder, which is how appends extend a written tree.
func (m *BuildManager) Build(ctx context.Context, obj Object) (Builder, error) {
	c := obj.Base()
	cached, ok := m.builders[c]
	if ok && (m.building[c] || !c.modified) {
		return cached, nil
	}
	m.building[c] = true
	defer delete(m.building, c)

	b, err := m.typeMap.build(ctx, obj, m, cached)
	if err != nil {
		return nil, err
	}
	c.modified = false
	log.Ctx(ctx).Debug().
		Str("type", c.typeName).
		Str("name", c.name).
		Bool("remap", ok).
		Msg("container built")
	return b, nil
}

// Construct returns the container for b, constructing it on first use.
func (m *BuildManager) Construct(ctx context.Context, b Builder) (Object, error) {
	if obj, ok := m.containers[b]; ok {
		return obj, nil
	}
	return m.typeMap.construct(ctx, b, m)
}

func (m *BuildManager) GetBuilder(obj Object) (Builder, bool) {
	b, ok := m.builders[obj.Base()]
	return b, ok
}

func (m *BuildManager) GetContainer(b Builder) (Object, bool) {
	obj, ok := m.containers[b]
	return obj, ok
}

// PrefetchContainerType reads the type annotation of b without
// constructing anything.
func (m *BuildManager) PrefetchContainerType(b Builder) (string, string, error) {
	ns, typeName, ok := Annotation(b)
	if !ok {
		return "", "", errs.Format("%s has no type annotation", b.Path())
	}
	return ns, typeName, nil
}

// Exported returns the destination builder an export copied src to.
func (m *BuildManager) Exported(src Builder) (Builder, bool) {
	b, ok := m.exported[src]
	return b, ok
}

// Seal freezes every container the manager has seen.
func (m *BuildManager) Seal() {
	for c := range m.builders {
		c.seal()
	}
}

// Reset drops the identity cache.
func (m *BuildManager) Reset() {
	m.builders = map[*Container]Builder{}
	m.containers = map[Builder]Object{}
	m.building = map[*Container]bool{}
	m.exported = map[Builder]Builder{}
}

func (m *BuildManager) track(obj Object, b Builder) {
	m.builders[obj.Base()] = b
	m.containers[b] = obj
}
