package adapters

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"nwbio/internal/ports"
	"nwbio/internal/schema"
	"nwbio/internal/types"
)

// NamespaceFileAdapter loads namespace documents from YAML files and from
// the embedded bundle.
type NamespaceFileAdapter struct {
	bundle fs.FS
}

var _ ports.NamespaceSourcePort = (*NamespaceFileAdapter)(nil)

func NewNamespaceFileAdapter() *NamespaceFileAdapter {
	return &NamespaceFileAdapter{bundle: schema.Bundle()}
}

// NewNamespaceFileAdapterFS serves the bundle from fsys instead of the
// embedded files.
func NewNamespaceFileAdapterFS(fsys fs.FS) *NamespaceFileAdapter {
	return &NamespaceFileAdapter{bundle: fsys}
}

// Bundled returns every namespace in the bundle, included namespaces
// first.  Several versions of one namespace may be present.
func (a *NamespaceFileAdapter) Bundled() ([]types.NamespaceSource, error) {
	entries, err := fs.ReadDir(a.bundle, ".")
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to list bundled namespaces").
			WithCause(err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	out := make([]types.NamespaceSource, 0, len(names))
	for _, name := range names {
		raw, err := fs.ReadFile(a.bundle, name)
		if err != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to read bundled namespace: " + name).
				WithCause(err)
		}
		src, err := a.Parse(raw, path.Join("bundle", name))
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	log.Debug().Int("namespaces", len(out)).Msg("bundled namespaces loaded")
	return orderByIncludes(out), nil
}

// Load reads a namespace file from disk.  A directory loads every YAML
// file in it, ordered so that included namespaces come first.
func (a *NamespaceFileAdapter) Load(filePath string) ([]types.NamespaceSource, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to read namespace file: " + filePath).
			WithCause(err)
	}
	if !info.IsDir() {
		src, err := a.loadFile(filePath)
		if err != nil {
			return nil, err
		}
		return []types.NamespaceSource{src}, nil
	}
	entries, err := os.ReadDir(filePath)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to list namespace directory: " + filePath).
			WithCause(err)
	}
	var out []types.NamespaceSource
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			continue
		}
		src, err := a.loadFile(filepath.Join(filePath, name))
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return orderByIncludes(out), nil
}

func (a *NamespaceFileAdapter) loadFile(filePath string) (types.NamespaceSource, error) {
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return types.NamespaceSource{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to read namespace file: " + filePath).
			WithCause(err)
	}
	log.Debug().Str("path", filePath).Msg("namespace file read")
	return a.Parse(raw, filePath)
}

// orderByIncludes sorts sources so each follows the sources it includes.
// Includes that are not part of the set are left for the catalog to
// resolve.
func orderByIncludes(sources []types.NamespaceSource) []types.NamespaceSource {
	byName := map[string][]int{}
	for i, src := range sources {
		byName[src.File.Name] = append(byName[src.File.Name], i)
	}
	visited := make([]bool, len(sources))
	out := make([]types.NamespaceSource, 0, len(sources))
	var visit func(i int)
	visit = func(i int) {
		if visited[i] {
			return
		}
		visited[i] = true
		for _, include := range sources[i].File.Includes {
			for _, j := range byName[include] {
				visit(j)
			}
		}
		out = append(out, sources[i])
	}
	for i := range sources {
		visit(i)
	}
	return out
}

// Parse decodes a namespace document.  The raw bytes are kept verbatim
// so they can be cached in written files and compared on reload.
func (a *NamespaceFileAdapter) Parse(raw []byte, origin string) (types.NamespaceSource, error) {
	var file types.NamespaceFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return types.NamespaceSource{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to parse namespace file: " + origin).
			WithCause(err)
	}
	if strings.TrimSpace(file.Name) == "" {
		return types.NamespaceSource{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("namespace file missing name: " + origin)
	}
	if strings.TrimSpace(file.Version) == "" {
		return types.NamespaceSource{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("namespace file missing version: " + origin)
	}
	if err := checkQuantities(file); err != nil {
		return types.NamespaceSource{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid namespace file " + origin + ": " + err.Error())
	}
	return types.NamespaceSource{File: file, Raw: raw, Origin: origin}, nil
}

type quantityError string

func (e quantityError) Error() string { return string(e) }

func checkQuantities(file types.NamespaceFile) error {
	var walkGroup func(where string, g types.GroupSpec) error
	walkDataset := func(where string, d types.DatasetSpec) error {
		if !d.Quantity.Valid() {
			return quantityError(where + ": invalid quantity " + string(d.Quantity))
		}
		return nil
	}
	walkGroup = func(where string, g types.GroupSpec) error {
		if !g.Quantity.Valid() {
			return quantityError(where + ": invalid quantity " + string(g.Quantity))
		}
		for _, d := range g.Datasets {
			if err := walkDataset(where+"/"+d.Name+d.DataTypeInc, d); err != nil {
				return err
			}
		}
		for _, child := range g.Groups {
			if err := walkGroup(where+"/"+child.Name+child.DataTypeInc, child); err != nil {
				return err
			}
		}
		for _, l := range g.Links {
			if !l.Quantity.Valid() {
				return quantityError(where + "/" + l.Name + ": invalid quantity " + string(l.Quantity))
			}
		}
		return nil
	}
	for _, g := range file.Groups {
		if err := walkGroup(g.DataTypeDef, g); err != nil {
			return err
		}
	}
	for _, d := range file.Datasets {
		if err := walkDataset(d.DataTypeDef, d); err != nil {
			return err
		}
	}
	return nil
}
