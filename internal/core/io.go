package core

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"nwbio/internal/errs"
	"nwbio/internal/ports"
	"nwbio/internal/shared"
	"nwbio/internal/types"
)

// DefaultChunkBytes is the payload size above which datasets are written
// in several chunks.
const DefaultChunkBytes = 1 << 20

// estimated bytes per element for variable-width dtypes
const textElementBytes = 16

type IOOptions struct {
	// ChunkBytes bounds the size of one stored chunk.  Zero means
	// DefaultChunkBytes.
	ChunkBytes int
	// LoadNamespaces loads the namespaces cached in the file into a
	// derived type map before reading.
	LoadNamespaces bool
	// SkipCacheSpec disables caching namespaces in written files.
	SkipCacheSpec bool
}

// IO maps container graphs to one store.  A session moves from closed to
// open in one mode and back; the build manager lives for one open
// session, so appends within a session reuse its identity cache.
type IO struct {
	mu      sync.Mutex
	store   ports.StorePort
	base    *TypeMap
	typeMap *TypeMap
	opts    IOOptions

	session ports.StoreSession
	token   SessionToken
	mode    types.SessionMode
	path    string
	manager *BuildManager
	root    *GroupBuilder
	rootObj Object
}

func NewIO(store ports.StorePort, tm *TypeMap, opts IOOptions) *IO {
	if opts.ChunkBytes <= 0 {
		opts.ChunkBytes = DefaultChunkBytes
	}
	return &IO{store: store, base: tm, typeMap: tm, opts: opts}
}

// Open acquires the store at path in the given mode.
func (io *IO) Open(ctx context.Context, path string, mode types.SessionMode) error {
	if strings.TrimSpace(path) == "" {
		return errs.Format("store path must be set")
	}
	io.mu.Lock()
	defer io.mu.Unlock()
	if io.session != nil {
		return errs.WriteMode("session on %s is already open in %s mode", io.path, io.mode)
	}
	if !mode.Valid() {
		return errs.WriteMode("unknown session mode %q", mode)
	}
	if io.opts.LoadNamespaces && mode.Truncates() {
		return errs.WriteMode("cannot load cached namespaces in %s mode", mode)
	}
	session, err := io.store.Open(ctx, path, mode)
	if err != nil {
		return err
	}
	io.session = session
	io.token = registerSession(path)
	io.mode = mode
	io.path = path
	io.typeMap = io.base
	if io.opts.LoadNamespaces {
		if err := io.loadCachedNamespaces(ctx); err != nil {
			io.closeLocked()
			return err
		}
	}
	io.manager = NewBuildManager(io.typeMap)
	log.Ctx(ctx).Debug().Str("path", path).Str("mode", string(mode)).Msg("session opened")
	return nil
}

func (io *IO) Mode() types.SessionMode { return io.mode }
func (io *IO) Path() string            { return io.path }

// TypeMap returns the type map of the open session, which differs from
// the one the IO was created with when cached namespaces were loaded.
func (io *IO) TypeMap() *TypeMap { return io.typeMap }

func (io *IO) Manager() *BuildManager { return io.manager }

// Stats reports the payload traffic of the open session.
func (io *IO) Stats() types.StoreStats {
	io.mu.Lock()
	defer io.mu.Unlock()
	if io.session == nil {
		return types.StoreStats{}
	}
	return io.session.Stats()
}

// Close releases the store.  Lazy arrays handed out by this session fail
// with ResourceClosedError from here on.  Closing twice is a no-op.
func (io *IO) Close() error {
	io.mu.Lock()
	defer io.mu.Unlock()
	return io.closeLocked()
}

func (io *IO) closeLocked() error {
	if io.session == nil {
		return nil
	}
	io.token.release()
	err := io.session.Close()
	io.session = nil
	io.root = nil
	io.rootObj = nil
	if io.manager != nil {
		io.manager.Reset()
	}
	return err
}

func (io *IO) requireOpen() error {
	if io.session == nil {
		return errs.ResourceClosed("session is not open")
	}
	return nil
}

// Write builds root and stores everything not yet written.  In append
// mode root must be the container read from this session.
func (io *IO) Write(ctx context.Context, root Object) error {
	io.mu.Lock()
	defer io.mu.Unlock()
	if err := io.requireOpen(); err != nil {
		return err
	}
	switch io.mode {
	case types.SessionModeWrite:
	case types.SessionModeAppend:
		if io.rootObj == nil || io.rootObj.Base() != root.Base() {
			return errs.WriteMode("append needs the container read from %s", io.path)
		}
	default:
		return errs.WriteMode("cannot write in %s mode", io.mode)
	}
	b, err := io.manager.Build(ctx, root)
	if err != nil {
		return err
	}
	rb, ok := b.(*GroupBuilder)
	if !ok {
		return errs.TypeMismatch("root %s %q must be a group type", root.Base().typeName, root.Base().name)
	}
	if err := io.setSchemaVersion(rb); err != nil {
		return err
	}
	if err := io.writeTree(ctx, rb); err != nil {
		return err
	}
	io.manager.Seal()
	io.root = rb
	io.rootObj = root
	return nil
}

func (io *IO) setSchemaVersion(rb *GroupBuilder) error {
	if _, ok := rb.Attribute(types.AttrSchemaVersion); ok {
		return nil
	}
	ns, _, ok := Annotation(rb)
	if !ok {
		return errs.Format("root builder has no type annotation")
	}
	info, ok := io.typeMap.Catalog().Namespace(ns)
	if !ok {
		return errs.UnknownType("namespace %s is not loaded", ns)
	}
	return rb.SetAttribute(types.AttrSchemaVersion, info.Version)
}

// writeTree stores every unwritten node below root: groups and datasets
// parents first, links last so their targets exist.
func (io *IO) writeTree(ctx context.Context, root *GroupBuilder) error {
	var links []*LinkBuilder
	err := root.Walk(func(b Builder) error {
		path := b.Path()
		switch n := b.(type) {
		case *GroupBuilder:
			if !n.Written() && path != "/" {
				if err := io.session.CreateGroup(ctx, path); err != nil {
					return err
				}
			}
		case *DatasetBuilder:
			if !n.Written() {
				if n.Data == nil {
					return errs.Format("dataset %s has no data", path)
				}
				layout := io.layout(n)
				if err := io.session.CreateDataset(ctx, path, layout, n.Data); err != nil {
					return err
				}
			}
		case *LinkBuilder:
			if !n.Written() {
				links = append(links, n)
			}
			return nil
		}
		if !b.Written() || b.base().dirty {
			attrs, err := storedAttributes(b, root)
			if err != nil {
				return err
			}
			if len(attrs) > 0 {
				return io.session.SetAttributes(ctx, path, attrs)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, link := range links {
		ref, err := linkReference(link, root)
		if err != nil {
			return err
		}
		if err := io.session.CreateLink(ctx, link.Path(), ref); err != nil {
			return err
		}
	}
	if !io.opts.SkipCacheSpec {
		if err := io.cacheNamespaces(ctx); err != nil {
			return err
		}
	}
	return root.Walk(func(b Builder) error {
		markWritten(b, io.path)
		return nil
	})
}

// layout picks the chunking of a dataset: one chunk when the payload
// fits ChunkBytes, otherwise as many rows per chunk as fit.
func (io *IO) layout(db *DatasetBuilder) types.DatasetLayout {
	dims := db.Data.Dims()
	layout := types.DatasetLayout{DType: db.DType, Shape: append([]int(nil), dims...)}
	rows := 1
	if len(dims) > 0 {
		rows = dims[0]
	}
	width := db.DType.Width()
	if width == 0 {
		width = textElementBytes
	}
	rowBytes := types.RowSize(dims) * width
	if len(dims) == 0 {
		rowBytes = width
	}
	switch {
	case rows == 0:
		layout.ChunkRows = 1
	case rows*rowBytes <= io.opts.ChunkBytes:
		layout.ChunkRows = rows
	default:
		layout.ChunkRows = max(1, io.opts.ChunkBytes/max(1, rowBytes))
	}
	return layout
}

func storedAttributes(b Builder, root *GroupBuilder) (map[string]any, error) {
	out := map[string]any{}
	for _, name := range b.AttributeNames() {
		value, _ := b.Attribute(name)
		if ref, ok := value.(*ReferenceBuilder); ok {
			if ref.Target != nil && rootOf(ref.Target) != root {
				return nil, errs.Format("attribute %s of %s references %s, which is not part of the written tree",
					name, b.Path(), ref.Target.Name())
			}
			out[name] = ref.Reference()
			continue
		}
		out[name] = value
	}
	return out, nil
}

func linkReference(link *LinkBuilder, root *GroupBuilder) (types.Reference, error) {
	if link.Target == nil {
		return link.External, nil
	}
	if rootOf(link.Target) != root {
		return types.Reference{}, errs.Format("link %s points at %s, which is not part of the written tree",
			link.Path(), link.Target.Name())
	}
	return types.Reference{Path: link.Target.Path()}, nil
}

// cacheNamespaces stores the source of every loaded namespace under
// /specifications/<name>/<version>/namespace.
func (io *IO) cacheNamespaces(ctx context.Context) error {
	for _, ns := range io.typeMap.Catalog().Namespaces() {
		if len(ns.Source.Raw) == 0 {
			continue
		}
		dir := "/" + types.SpecificationsGroup
		for _, part := range []string{"", ns.Name, ns.Version} {
			if part != "" {
				dir = shared.JoinPath(dir, part)
			}
			if err := io.ensureGroup(ctx, dir); err != nil {
				return err
			}
		}
		path := shared.JoinPath(dir, "namespace")
		if _, exists, err := io.session.Stat(ctx, path); err != nil || exists {
			if err == nil {
				continue
			}
			return err
		}
		raw := types.NewTexts([]int{}, []string{string(ns.Source.Raw)})
		layout := types.DatasetLayout{DType: types.DTypeText, Shape: []int{}, ChunkRows: 1}
		if err := io.session.CreateDataset(ctx, path, layout, raw); err != nil {
			return err
		}
	}
	return nil
}

func (io *IO) ensureGroup(ctx context.Context, path string) error {
	info, exists, err := io.session.Stat(ctx, path)
	if err != nil {
		return err
	}
	if !exists {
		return io.session.CreateGroup(ctx, path)
	}
	if info.Kind != types.NodeKindGroup {
		return errs.Format("%s exists but is not a group", path)
	}
	return nil
}

// CachedNamespaces returns the namespace sources stored in the file.
func (io *IO) CachedNamespaces(ctx context.Context) ([]types.NamespaceSource, error) {
	io.mu.Lock()
	defer io.mu.Unlock()
	return io.cachedNamespacesLocked(ctx)
}

func (io *IO) cachedNamespacesLocked(ctx context.Context) ([]types.NamespaceSource, error) {
	if err := io.requireOpen(); err != nil {
		return nil, err
	}
	if !io.mode.Readable() {
		return nil, errs.WriteMode("cannot read cached namespaces in %s mode", io.mode)
	}
	root := "/" + types.SpecificationsGroup
	if _, exists, err := io.session.Stat(ctx, root); err != nil || !exists {
		return nil, err
	}
	names, err := io.session.Children(ctx, root)
	if err != nil {
		return nil, err
	}
	var out []types.NamespaceSource
	for _, name := range names {
		versions, err := io.session.Children(ctx, name.Path)
		if err != nil {
			return nil, err
		}
		for _, version := range versions {
			path := shared.JoinPath(version.Path, "namespace")
			reader, err := io.session.OpenDataset(ctx, path)
			if err != nil {
				return nil, err
			}
			arr, err := Materialize(ctx, reader)
			if err != nil {
				return nil, err
			}
			texts, ok := arr.Values.([]string)
			if !ok || len(texts) != 1 {
				return nil, errs.Format("%s does not hold a namespace document", path)
			}
			var file types.NamespaceFile
			if err := yaml.Unmarshal([]byte(texts[0]), &file); err != nil {
				return nil, errs.Wrap(errs.KindFormat, err, "parse cached namespace "+path)
			}
			out = append(out, types.NamespaceSource{File: file, Raw: []byte(texts[0]), Origin: io.path + "::" + path})
		}
	}
	return out, nil
}

// loadCachedNamespaces derives a type map holding the namespaces cached
// in the file.  Namespaces the base map already has are kept as loaded.
func (io *IO) loadCachedNamespaces(ctx context.Context) error {
	sources, err := io.cachedNamespacesLocked(ctx)
	if err != nil {
		return err
	}
	derived := io.base.Derive()
	pending := sources
	for len(pending) > 0 {
		var next []types.NamespaceSource
		for _, src := range pending {
			if loaded, ok := derived.Catalog().Namespace(src.File.Name); ok {
				if loaded.Version != src.File.Version {
					log.Ctx(ctx).Warn().
						Str("namespace", src.File.Name).
						Str("cached", src.File.Version).
						Str("loaded", loaded.Version).
						Msg("ignoring cached namespace, another version is already loaded")
				}
				continue
			}
			if !includesLoaded(derived.Catalog(), src.File.Includes) {
				next = append(next, src)
				continue
			}
			if err := derived.LoadNamespace(ctx, src); err != nil {
				return err
			}
		}
		if len(next) == len(pending) {
			return errs.UnknownType("cached namespace %s includes a namespace that is not available", next[0].File.Name)
		}
		pending = next
	}
	io.typeMap = derived
	return nil
}

func includesLoaded(c *Catalog, includes []string) bool {
	for _, include := range includes {
		if _, ok := c.Namespace(include); !ok {
			return false
		}
	}
	return true
}

// ReadBuilder loads the builder tree of the file.  Dataset payloads stay
// in the store behind lazy arrays.
func (io *IO) ReadBuilder(ctx context.Context) (*GroupBuilder, error) {
	io.mu.Lock()
	defer io.mu.Unlock()
	return io.readBuilderLocked(ctx)
}

func (io *IO) readBuilderLocked(ctx context.Context) (*GroupBuilder, error) {
	if err := io.requireOpen(); err != nil {
		return nil, err
	}
	if !io.mode.Readable() {
		return nil, errs.WriteMode("cannot read in %s mode", io.mode)
	}
	if io.root != nil {
		return io.root, nil
	}
	r := &treeReader{io: io, byPath: map[string]Builder{}}
	root := NewGroupBuilder("root")
	if err := r.fill(ctx, root, "/"); err != nil {
		return nil, err
	}
	if err := r.resolve(); err != nil {
		return nil, err
	}
	if _, _, ok := Annotation(root); !ok {
		return nil, errs.Format("%s: root group has no type annotation", io.path)
	}
	if err := root.Walk(func(b Builder) error {
		markWritten(b, io.path)
		return nil
	}); err != nil {
		return nil, err
	}
	io.root = root
	log.Ctx(ctx).Debug().Str("path", io.path).Int("nodes", len(r.byPath)).Msg("builder tree read")
	return root, nil
}

// Read returns the root container of the file.
func (io *IO) Read(ctx context.Context) (Object, error) {
	io.mu.Lock()
	defer io.mu.Unlock()
	if io.rootObj != nil {
		return io.rootObj, nil
	}
	root, err := io.readBuilderLocked(ctx)
	if err != nil {
		return nil, err
	}
	obj, err := io.manager.Construct(ctx, root)
	if err != nil {
		return nil, err
	}
	io.manager.Seal()
	io.rootObj = obj
	return obj, nil
}

type pendingLink struct {
	link   *LinkBuilder
	target types.Reference
}

type pendingRef struct {
	owner Builder
	ref   *ReferenceBuilder
	path  string
}

type treeReader struct {
	io     *IO
	byPath map[string]Builder
	links  []pendingLink
	refs   []pendingRef
}

func (r *treeReader) fill(ctx context.Context, gb *GroupBuilder, path string) error {
	r.byPath[path] = gb
	if err := r.attributes(ctx, gb, path); err != nil {
		return err
	}
	children, err := r.io.session.Children(ctx, path)
	if err != nil {
		return err
	}
	for _, child := range children {
		if path == "/" && child.Name == types.SpecificationsGroup {
			continue
		}
		var b Builder
		switch child.Kind {
		case types.NodeKindGroup:
			sub := NewGroupBuilder(child.Name)
			if err := gb.AddChild(sub); err != nil {
				return err
			}
			if err := r.fill(ctx, sub, child.Path); err != nil {
				return err
			}
			continue
		case types.NodeKindDataset:
			reader, err := r.io.session.OpenDataset(ctx, child.Path)
			if err != nil {
				return err
			}
			b = NewDatasetBuilder(child.Name, reader.ElementType(), newLazyArray(r.io.token, child.Path, reader))
			r.byPath[child.Path] = b
			if err := r.attributes(ctx, b, child.Path); err != nil {
				return err
			}
		case types.NodeKindLink:
			target, err := r.io.session.LinkTarget(ctx, child.Path)
			if err != nil {
				return err
			}
			link := &LinkBuilder{nodeBase: newNodeBase(child.Name)}
			r.links = append(r.links, pendingLink{link: link, target: target})
			b = link
		default:
			return errs.Format("%s has unknown node kind %q", child.Path, child.Kind)
		}
		if err := gb.AddChild(b); err != nil {
			return err
		}
	}
	return nil
}

func (r *treeReader) attributes(ctx context.Context, b Builder, path string) error {
	attrs, err := r.io.session.Attributes(ctx, path)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value := attrs[name]
		if ref, ok := value.(types.Reference); ok {
			rb := &ReferenceBuilder{}
			if ref.IsExternal() {
				rb.External = ref
			} else {
				r.refs = append(r.refs, pendingRef{owner: b, ref: rb, path: ref.Path})
			}
			value = rb
		}
		if err := b.SetAttribute(name, value); err != nil {
			return err
		}
	}
	return nil
}

// resolve binds links and references to the builders they name.
func (r *treeReader) resolve() error {
	for _, pending := range r.links {
		if pending.target.IsExternal() {
			pending.link.External = pending.target
			continue
		}
		target, ok := r.byPath[pending.target.Path]
		if !ok {
			return errs.Format("link %s points at missing %s", pending.link.Path(), pending.target.Path)
		}
		pending.link.Target = target
		r.byPath[pending.link.Path()] = pending.link
	}
	for _, pending := range r.refs {
		target, ok := r.byPath[pending.path]
		if !ok {
			return errs.Format("attribute of %s references missing %s", pending.owner.Path(), pending.path)
		}
		pending.ref.Target = target
	}
	return nil
}
