package app

import (
	"context"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"nwbio/internal/core"
	"nwbio/internal/nwb"
	"nwbio/internal/types"
)

// Export copies a stored file into a new one written against the bundled
// core at req.CoreVersion, or the newest bundled core the file is
// compatible with.
func (s Service) Export(ctx context.Context, req ExportRequest) (ExportResult, error) {
	srcPath := strings.TrimSpace(req.SourcePath)
	dstPath := strings.TrimSpace(req.DestPath)
	if srcPath == "" || dstPath == "" {
		return ExportResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("source and destination paths are required")
	}
	if srcPath == dstPath {
		return ExportResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("cannot export a file onto itself")
	}
	srcMap, err := s.typeMap(ctx, req.Extensions)
	if err != nil {
		return ExportResult{}, err
	}
	srcOpts := s.Options
	srcOpts.LoadNamespaces = true
	src, err := s.open(ctx, srcPath, types.SessionModeExportSource, srcMap, srcOpts)
	if err != nil {
		return ExportResult{}, err
	}
	defer closeSession(ctx, src)
	root, err := src.ReadBuilder(ctx)
	if err != nil {
		return ExportResult{}, err
	}

	target := req.CoreVersion
	if target == "" {
		if target, err = s.upgradeTarget(root); err != nil {
			return ExportResult{}, err
		}
	}
	dstMap, err := exportTypeMap(ctx, src.TypeMap(), target)
	if err != nil {
		return ExportResult{}, err
	}
	dst, err := s.open(ctx, dstPath, types.SessionModeExportDest, dstMap, s.Options)
	if err != nil {
		return ExportResult{}, err
	}
	defer closeSession(ctx, dst)

	if err := dst.Export(ctx, src, nil); err != nil {
		return ExportResult{}, err
	}
	result := ExportResult{DestPath: dstPath}
	result.Namespace, _, _ = core.Annotation(root)
	if info, ok := dstMap.Catalog().Namespace(result.Namespace); ok {
		result.SchemaVersion = info.Version
	}
	_ = root.Walk(func(core.Builder) error {
		result.Nodes++
		return nil
	})
	log.Ctx(ctx).Info().
		Str("source", srcPath).
		Str("dest", dstPath).
		Str("schema_version", result.SchemaVersion).
		Msg("exported")
	return result, nil
}

// upgradeTarget picks the newest bundled core version the file rooted at
// root can be carried to.  Files without a recorded version go to the
// newest one.
func (s Service) upgradeTarget(root *core.GroupBuilder) (string, error) {
	sources, err := s.Namespaces.Bundled()
	if err != nil {
		return "", err
	}
	var available []string
	for _, src := range sources {
		if src.File.Name == nwb.CoreNamespace {
			available = append(available, src.File.Version)
		}
	}
	value, _ := root.Attribute(types.AttrSchemaVersion)
	if source, _ := value.(string); source != "" {
		return core.CompatibleVersion(source, available)
	}
	return core.LatestVersion(available)
}

// exportTypeMap returns the map the destination is written with: the
// source session's map when it already holds core at target, otherwise
// the bundled core at target with every other namespace of the source
// session loaded on top, so extensions cached in the source travel
// along.
func exportTypeMap(ctx context.Context, srcMap *core.TypeMap, target string) (*core.TypeMap, error) {
	if info, ok := srcMap.Catalog().Namespace(nwb.CoreNamespace); ok && info.Version == target {
		return srcMap, nil
	}
	tm, err := TypeMapForVersion(ctx, target)
	if err != nil {
		return nil, err
	}
	for _, ns := range srcMap.Catalog().Namespaces() {
		if _, loaded := tm.Catalog().Namespace(ns.Name); loaded {
			continue
		}
		if err := tm.LoadNamespace(ctx, ns.Source); err != nil {
			return nil, err
		}
		log.Ctx(ctx).Debug().Str("namespace", ns.Name).Str("version", ns.Version).Msg("carried namespace into export")
	}
	return tm, nil
}
