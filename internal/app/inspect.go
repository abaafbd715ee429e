package app

import (
	"context"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"nwbio/internal/core"
	"nwbio/internal/types"
)

// Inspect summarizes the tree of a stored file from metadata alone; no
// dataset payload is read.
func (s Service) Inspect(ctx context.Context, req InspectRequest) (InspectResult, error) {
	path := strings.TrimSpace(req.Path)
	if path == "" {
		return InspectResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("file path is required")
	}
	tm, err := s.typeMap(ctx, req.Extensions)
	if err != nil {
		return InspectResult{}, err
	}
	io, err := s.open(ctx, path, types.SessionModeRead, tm, s.Options)
	if err != nil {
		return InspectResult{}, err
	}
	defer closeSession(ctx, io)

	root, err := io.ReadBuilder(ctx)
	if err != nil {
		return InspectResult{}, err
	}
	result := InspectResult{}
	result.Namespace, result.RootType, _ = core.Annotation(root)
	if v, ok := root.Attribute(types.AttrSchemaVersion); ok {
		result.SchemaVersion, _ = v.(string)
	}
	err = root.Walk(func(b core.Builder) error {
		result.Nodes = append(result.Nodes, inspectNode(b))
		return nil
	})
	if err != nil {
		return InspectResult{}, err
	}
	result.Stats = io.Stats()
	return result, nil
}

func inspectNode(b core.Builder) InspectNode {
	node := InspectNode{Path: b.Path(), Kind: b.Kind()}
	_, node.Type, _ = core.Annotation(b)
	switch n := b.(type) {
	case *core.DatasetBuilder:
		node.Shape = n.Shape()
		node.DType = n.DType
	case *core.LinkBuilder:
		if n.Target != nil {
			node.Target = n.Target.Path()
		} else {
			node.Target = n.External.String()
		}
	}
	return node
}
