package core

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/ZanzyTHEbar/assert-lib"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"nwbio/internal/errs"
	"nwbio/internal/types"
)

// TypeSpec is a data type with its ancestry flattened in.  Attributes and
// child elements are the union of the type's own declaration and every
// ancestor's, with subtype refinements merged over the inherited element.
type TypeSpec struct {
	Namespace   string
	Name        string
	Parent      string
	Kind        types.NodeKind
	Ancestry    []string
	Doc         string
	FixedName   string
	DefaultName string
	DType       types.DType
	Shape       types.ShapeAlternatives
	Attributes  []types.AttributeSpec
	Datasets    []types.DatasetSpec
	Groups      []types.GroupSpec
	Links       []types.LinkSpec

	canonical []byte
}

// IsA reports whether the type is name or derives from it.
func (s *TypeSpec) IsA(name string) bool {
	for _, ancestor := range s.Ancestry {
		if ancestor == name {
			return true
		}
	}
	return false
}

// Namespace is a loaded namespace and the source it came from.
type Namespace struct {
	Name     string
	Version  string
	Doc      string
	Includes []string
	Types    []string
	Source   types.NamespaceSource
}

// Catalog indexes type specs by name.  Type names are unique across all
// loaded namespaces; a namespace sees its own types plus those of the
// namespaces it includes.
type Catalog struct {
	mu         sync.RWMutex
	namespaces map[string]*Namespace
	types      map[string]*TypeSpec
}

func NewCatalog() *Catalog {
	return &Catalog{
		namespaces: map[string]*Namespace{},
		types:      map[string]*TypeSpec{},
	}
}

// declaration is one data_type_def awaiting flattening.
type declaration struct {
	name      string
	parent    string
	group     *types.GroupSpec
	dataset   *types.DatasetSpec
	canonical []byte
}

// Load registers every type defined by src.  The load is atomic: on any
// error the catalog is left as it was.
func (c *Catalog) Load(ctx context.Context, src types.NamespaceSource) error {
	file := src.File
	if file.Name == "" || file.Version == "" {
		return errs.Format("namespace from %s must declare a name and a version", src.Origin)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.namespaces[file.Name]; ok {
		if existing.Version != file.Version {
			return errs.NamespaceConflict("namespace %s %s is already loaded at version %s",
				file.Name, file.Version, existing.Version)
		}
		if bytes.Equal(existing.Source.Raw, src.Raw) && len(src.Raw) > 0 {
			log.Ctx(ctx).Debug().Str("namespace", file.Name).Msg("namespace already loaded")
			return nil
		}
	}
	for _, include := range file.Includes {
		if _, ok := c.namespaces[include]; !ok {
			return errs.UnknownType("namespace %s includes %s, which is not loaded", file.Name, include)
		}
	}

	pending := map[string]*declaration{}
	var order []string
	add := func(decl *declaration) error {
		if decl.name == "" {
			return errs.Format("namespace %s: top-level spec without data_type_def", file.Name)
		}
		if _, dup := pending[decl.name]; dup {
			return errs.NamespaceConflict("namespace %s defines %s twice", file.Name, decl.name)
		}
		pending[decl.name] = decl
		order = append(order, decl.name)
		return nil
	}
	for i := range file.Groups {
		g := file.Groups[i]
		raw, err := yaml.Marshal(g)
		if err != nil {
			return errs.Wrap(errs.KindFormat, err, "canonicalize "+g.DataTypeDef)
		}
		if err := add(&declaration{name: g.DataTypeDef, parent: g.DataTypeInc, group: &g, canonical: raw}); err != nil {
			return err
		}
	}
	for i := range file.Datasets {
		d := file.Datasets[i]
		raw, err := yaml.Marshal(d)
		if err != nil {
			return errs.Wrap(errs.KindFormat, err, "canonicalize "+d.DataTypeDef)
		}
		if err := add(&declaration{name: d.DataTypeDef, parent: d.DataTypeInc, dataset: &d, canonical: raw}); err != nil {
			return err
		}
	}

	resolved := map[string]*TypeSpec{}
	visiting := map[string]bool{}
	var resolve func(name string) (*TypeSpec, error)
	resolve = func(name string) (*TypeSpec, error) {
		if spec, ok := resolved[name]; ok {
			return spec, nil
		}
		decl, isPending := pending[name]
		if !isPending {
			if spec, ok := c.types[name]; ok {
				return spec, nil
			}
			return nil, errs.UnknownType("type %s is not defined", name)
		}
		if visiting[name] {
			return nil, errs.NamespaceConflict("cyclic inheritance through %s", name)
		}
		visiting[name] = true
		defer delete(visiting, name)

		var parent *TypeSpec
		if decl.parent != "" {
			p, err := resolve(decl.parent)
			if err != nil {
				return nil, err
			}
			parent = p
		}
		spec, err := flatten(file.Name, decl, parent)
		if err != nil {
			return nil, err
		}
		resolved[name] = spec
		return spec, nil
	}

	for _, name := range order {
		decl := pending[name]
		if existing, ok := c.types[name]; ok {
			if !bytes.Equal(existing.canonical, decl.canonical) {
				return errs.NamespaceConflict("type %s is already defined by namespace %s with a different definition",
					name, existing.Namespace)
			}
			resolved[name] = existing
			continue
		}
		if _, err := resolve(name); err != nil {
			return err
		}
	}

	ns := &Namespace{
		Name:     file.Name,
		Version:  file.Version,
		Doc:      file.Doc,
		Includes: append([]string(nil), file.Includes...),
		Types:    order,
		Source:   src,
	}
	for name, spec := range resolved {
		assert.NotEmpty(ctx, spec.Namespace, "flattened type must record its namespace")
		c.types[name] = spec
	}
	c.namespaces[file.Name] = ns
	log.Ctx(ctx).Debug().
		Str("namespace", file.Name).
		Str("version", file.Version).
		Int("types", len(order)).
		Msg("namespace loaded")
	return nil
}

// Resolve returns the flattened spec of typeName as seen from namespace.
func (c *Catalog) Resolve(namespace string, typeName string) (*TypeSpec, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	spec, ok := c.types[typeName]
	if !ok {
		return nil, errs.UnknownType("type %s/%s is not defined", namespace, typeName)
	}
	if namespace == "" || c.visibleLocked(namespace, spec.Namespace) {
		return spec, nil
	}
	return nil, errs.UnknownType("type %s is not visible from namespace %s", typeName, namespace)
}

// Lookup resolves a type by name alone.
func (c *Catalog) Lookup(typeName string) (*TypeSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	spec, ok := c.types[typeName]
	return spec, ok
}

func (c *Catalog) visibleLocked(from string, owner string) bool {
	seen := map[string]bool{}
	queue := []string{from}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if name == owner {
			return true
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		if ns, ok := c.namespaces[name]; ok {
			queue = append(queue, ns.Includes...)
		}
	}
	return false
}

// IsSubtype reports whether candidate is ancestor or derives from it.
// Unknown candidates are never subtypes.
func (c *Catalog) IsSubtype(candidate string, ancestor string) bool {
	spec, ok := c.Lookup(candidate)
	if !ok {
		return false
	}
	return spec.IsA(ancestor)
}

func (c *Catalog) Namespace(name string) (Namespace, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ns, ok := c.namespaces[name]
	if !ok {
		return Namespace{}, false
	}
	return *ns, true
}

// Namespaces returns the loaded namespaces with includes before the
// namespaces that need them.
func (c *Catalog) Namespaces() []Namespace {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.namespaces))
	for name := range c.namespaces {
		names = append(names, name)
	}
	sort.Strings(names)
	var out []Namespace
	done := map[string]bool{}
	var visit func(name string)
	visit = func(name string) {
		if done[name] {
			return
		}
		done[name] = true
		ns, ok := c.namespaces[name]
		if !ok {
			return
		}
		for _, include := range ns.Includes {
			visit(include)
		}
		out = append(out, *ns)
	}
	for _, name := range names {
		visit(name)
	}
	return out
}

// Clone returns an independent catalog with the same contents.  Type
// specs are immutable once flattened, so they are shared.
func (c *Catalog) Clone() *Catalog {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := NewCatalog()
	for name, ns := range c.namespaces {
		copied := *ns
		out.namespaces[name] = &copied
	}
	for name, spec := range c.types {
		out.types[name] = spec
	}
	return out
}

func flatten(namespace string, decl *declaration, parent *TypeSpec) (*TypeSpec, error) {
	spec := &TypeSpec{
		Namespace: namespace,
		Name:      decl.name,
		Parent:    decl.parent,
		canonical: decl.canonical,
	}
	if decl.group != nil {
		spec.Kind = types.NodeKindGroup
	} else {
		spec.Kind = types.NodeKindDataset
	}
	spec.Ancestry = []string{decl.name}
	if parent != nil {
		if parent.Kind != spec.Kind {
			return nil, errs.NamespaceConflict("%s type %s cannot extend %s type %s",
				spec.Kind, decl.name, parent.Kind, parent.Name)
		}
		spec.Ancestry = append(spec.Ancestry, parent.Ancestry...)
		spec.FixedName = parent.FixedName
		spec.DefaultName = parent.DefaultName
		spec.DType = parent.DType
		spec.Shape = parent.Shape
	}

	var own types.GroupSpec
	if decl.group != nil {
		own = normalizeGroup(*decl.group)
	} else {
		d := normalizeDataset(*decl.dataset)
		own = types.GroupSpec{
			Name:        d.Name,
			DefaultName: d.DefaultName,
			Doc:         d.Doc,
			Attributes:  d.Attributes,
		}
		if d.DType != types.DTypeAny {
			spec.DType = d.DType
		}
		if len(d.Shape) > 0 {
			spec.Shape = d.Shape
		}
	}
	spec.Doc = own.Doc
	if own.Name != "" {
		spec.FixedName = own.Name
	}
	if own.DefaultName != "" {
		spec.DefaultName = own.DefaultName
	}

	base := types.GroupSpec{}
	if parent != nil {
		base = types.GroupSpec{
			Attributes: parent.Attributes,
			Datasets:   parent.Datasets,
			Groups:     parent.Groups,
			Links:      parent.Links,
		}
	}
	merged, err := mergeGroup(decl.name, base, own)
	if err != nil {
		return nil, err
	}
	spec.Attributes = merged.Attributes
	spec.Datasets = merged.Datasets
	spec.Groups = merged.Groups
	spec.Links = merged.Links
	return spec, nil
}

// elementKey identifies a child element within its parent: the name for
// named elements, the included type for unnamed ones.
func elementKey(name string, inc string) string {
	if name != "" {
		return name
	}
	return "<" + inc + ">"
}

func mergeAttributes(where string, base []types.AttributeSpec, own []types.AttributeSpec) ([]types.AttributeSpec, error) {
	out := append([]types.AttributeSpec(nil), base...)
	index := map[string]int{}
	for i, attr := range out {
		index[attr.Name] = i
	}
	seen := map[string]bool{}
	for _, attr := range own {
		if attr.Name == "" {
			return nil, errs.Format("%s: attribute without a name", where)
		}
		if seen[attr.Name] {
			return nil, errs.NamespaceConflict("%s declares attribute %s twice", where, attr.Name)
		}
		seen[attr.Name] = true
		if i, ok := index[attr.Name]; ok {
			out[i] = attr
			continue
		}
		index[attr.Name] = len(out)
		out = append(out, attr)
	}
	return out, nil
}

func mergeDataset(where string, base types.DatasetSpec, own types.DatasetSpec) (types.DatasetSpec, error) {
	out := base
	if own.DataTypeInc != "" {
		out.DataTypeInc = own.DataTypeInc
	}
	if own.DefaultName != "" {
		out.DefaultName = own.DefaultName
	}
	if own.Doc != "" {
		out.Doc = own.Doc
	}
	if own.DType != types.DTypeAny {
		out.DType = own.DType
	}
	if len(own.Shape) > 0 {
		out.Shape = own.Shape
	}
	if own.Quantity != "" {
		out.Quantity = own.Quantity
	}
	attrs, err := mergeAttributes(where, base.Attributes, own.Attributes)
	if err != nil {
		return types.DatasetSpec{}, err
	}
	out.Attributes = attrs
	return out, nil
}

// mergeGroup overlays own onto base.  Child elements match by key; an
// element redeclared with the same kind refines the inherited one, while
// reusing a key across kinds, or between attributes and children, is a
// conflict.
func mergeGroup(where string, base types.GroupSpec, own types.GroupSpec) (types.GroupSpec, error) {
	out := base
	if own.DataTypeInc != "" {
		out.DataTypeInc = own.DataTypeInc
	}
	if own.Doc != "" {
		out.Doc = own.Doc
	}
	if own.Quantity != "" {
		out.Quantity = own.Quantity
	}
	if own.DefaultName != "" {
		out.DefaultName = own.DefaultName
	}
	attrs, err := mergeAttributes(where, base.Attributes, own.Attributes)
	if err != nil {
		return types.GroupSpec{}, err
	}
	out.Attributes = attrs

	kinds := map[string]types.NodeKind{}
	for _, d := range base.Datasets {
		kinds[elementKey(d.Name, d.DataTypeInc)] = types.NodeKindDataset
	}
	for _, g := range base.Groups {
		kinds[elementKey(g.Name, g.DataTypeInc)] = types.NodeKindGroup
	}
	for _, l := range base.Links {
		kinds[l.Name] = types.NodeKindLink
	}
	seen := map[string]bool{}
	claim := func(key string, kind types.NodeKind) (bool, error) {
		if seen[key] {
			return false, errs.NamespaceConflict("%s declares %s twice", where, key)
		}
		seen[key] = true
		existing, inherited := kinds[key]
		if inherited && existing != kind {
			return false, errs.NamespaceConflict("%s redeclares %s %s as a %s", where, existing, key, kind)
		}
		kinds[key] = kind
		return inherited, nil
	}

	out.Datasets = append([]types.DatasetSpec(nil), base.Datasets...)
	for _, d := range own.Datasets {
		key := elementKey(d.Name, d.DataTypeInc)
		inherited, err := claim(key, types.NodeKindDataset)
		if err != nil {
			return types.GroupSpec{}, err
		}
		if !inherited {
			out.Datasets = append(out.Datasets, d)
			continue
		}
		for i := range out.Datasets {
			if elementKey(out.Datasets[i].Name, out.Datasets[i].DataTypeInc) == key {
				merged, err := mergeDataset(where+"/"+key, out.Datasets[i], d)
				if err != nil {
					return types.GroupSpec{}, err
				}
				out.Datasets[i] = merged
			}
		}
	}

	out.Groups = append([]types.GroupSpec(nil), base.Groups...)
	for _, g := range own.Groups {
		key := elementKey(g.Name, g.DataTypeInc)
		inherited, err := claim(key, types.NodeKindGroup)
		if err != nil {
			return types.GroupSpec{}, err
		}
		if !inherited {
			out.Groups = append(out.Groups, g)
			continue
		}
		for i := range out.Groups {
			if elementKey(out.Groups[i].Name, out.Groups[i].DataTypeInc) == key {
				merged, err := mergeGroup(where+"/"+key, out.Groups[i], g)
				if err != nil {
					return types.GroupSpec{}, err
				}
				merged.Name = out.Groups[i].Name
				out.Groups[i] = merged
			}
		}
	}

	out.Links = append([]types.LinkSpec(nil), base.Links...)
	for _, l := range own.Links {
		if l.Name == "" {
			return types.GroupSpec{}, errs.Format("%s: link without a name", where)
		}
		inherited, err := claim(l.Name, types.NodeKindLink)
		if err != nil {
			return types.GroupSpec{}, err
		}
		if !inherited {
			out.Links = append(out.Links, l)
			continue
		}
		for i := range out.Links {
			if out.Links[i].Name == l.Name {
				out.Links[i] = l
			}
		}
	}

	for _, attr := range out.Attributes {
		if _, clash := kinds[attr.Name]; clash {
			return types.GroupSpec{}, errs.NamespaceConflict("%s uses %s as both an attribute and a child", where, attr.Name)
		}
	}
	return out, nil
}

func normalizeAttributes(attrs []types.AttributeSpec) []types.AttributeSpec {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]types.AttributeSpec, len(attrs))
	for i, attr := range attrs {
		attr.DType = types.NormalizeDType(string(attr.DType))
		out[i] = attr
	}
	return out
}

func normalizeDataset(d types.DatasetSpec) types.DatasetSpec {
	d.DType = types.NormalizeDType(string(d.DType))
	d.Attributes = normalizeAttributes(d.Attributes)
	return d
}

func normalizeGroup(g types.GroupSpec) types.GroupSpec {
	g.Attributes = normalizeAttributes(g.Attributes)
	if len(g.Datasets) > 0 {
		datasets := make([]types.DatasetSpec, len(g.Datasets))
		for i, d := range g.Datasets {
			datasets[i] = normalizeDataset(d)
		}
		g.Datasets = datasets
	}
	if len(g.Groups) > 0 {
		groups := make([]types.GroupSpec, len(g.Groups))
		for i, child := range g.Groups {
			groups[i] = normalizeGroup(child)
		}
		g.Groups = groups
	}
	return g
}
