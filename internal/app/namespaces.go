package app

import (
	"context"
	"sort"
	"strings"

	"nwbio/internal/core"
	"nwbio/internal/types"
)

// ListNamespaces reports the namespaces cached in a file, the bundled
// ones, or those of the default type map.
func (s Service) ListNamespaces(ctx context.Context, req NamespacesRequest) (NamespacesResult, error) {
	path := strings.TrimSpace(req.Path)
	switch {
	case path != "":
		io, err := s.open(ctx, path, types.SessionModeRead, nil, s.Options)
		if err != nil {
			return NamespacesResult{}, err
		}
		defer closeSession(ctx, io)
		sources, err := io.CachedNamespaces(ctx)
		if err != nil {
			return NamespacesResult{}, err
		}
		return NamespacesResult{Namespaces: sourceSummaries(sources)}, nil
	case req.Bundled:
		sources, err := s.Namespaces.Bundled()
		if err != nil {
			return NamespacesResult{}, err
		}
		return NamespacesResult{Namespaces: sourceSummaries(sources)}, nil
	}
	tm, err := DefaultTypeMap(ctx)
	if err != nil {
		return NamespacesResult{}, err
	}
	return NamespacesResult{Namespaces: loadedSummaries(tm.Catalog().Namespaces())}, nil
}

func sourceSummaries(sources []types.NamespaceSource) []NamespaceSummary {
	out := make([]NamespaceSummary, 0, len(sources))
	for _, src := range sources {
		out = append(out, NamespaceSummary{
			Name:     src.File.Name,
			Version:  src.File.Version,
			Includes: src.File.Includes,
			Types:    len(src.File.Groups) + len(src.File.Datasets),
			Origin:   src.Origin,
		})
	}
	sortSummaries(out)
	return out
}

func loadedSummaries(namespaces []core.Namespace) []NamespaceSummary {
	out := make([]NamespaceSummary, 0, len(namespaces))
	for _, ns := range namespaces {
		out = append(out, NamespaceSummary{
			Name:     ns.Name,
			Version:  ns.Version,
			Includes: ns.Includes,
			Types:    len(ns.Types),
			Origin:   ns.Source.Origin,
		})
	}
	sortSummaries(out)
	return out
}

func sortSummaries(summaries []NamespaceSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Name < summaries[j].Name
	})
}
