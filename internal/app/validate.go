package app

import (
	"context"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"nwbio/internal/core"
	"nwbio/internal/errs"
	"nwbio/internal/nwb"
	"nwbio/internal/types"
)

func (s Service) Validate(ctx context.Context, req ValidateRequest) (ValidateResult, error) {
	if len(req.Paths) == 0 {
		return ValidateResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("at least one file path is required")
	}
	tm, err := s.typeMap(ctx, req.Extensions)
	if err != nil {
		return ValidateResult{}, err
	}
	opts := s.Options
	opts.LoadNamespaces = req.UseCached

	var result ValidateResult
	for _, path := range req.Paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		file, err := s.validateFile(ctx, path, tm, opts, req.Namespace)
		if err != nil {
			return result, err
		}
		log.Ctx(ctx).Info().
			Str("path", path).
			Str("namespace", file.Namespace).
			Int("errors", len(file.Errors)).
			Msg("validated")
		result.Files = append(result.Files, file)
	}
	return result, nil
}

func (s Service) validateFile(ctx context.Context, path string, tm *core.TypeMap, opts core.IOOptions,
	namespace string) (FileValidation, error) {
	io, err := s.open(ctx, path, types.SessionModeRead, tm, opts)
	if err != nil {
		return FileValidation{}, err
	}
	defer closeSession(ctx, io)

	root, err := io.ReadBuilder(ctx)
	if err != nil {
		return FileValidation{}, err
	}
	if namespace == "" {
		namespace = nwb.CoreNamespace
		if ns, _, ok := core.Annotation(root); ok {
			namespace = ns
		}
	}
	catalog := io.TypeMap().Catalog()
	if _, ok := catalog.Namespace(namespace); !ok {
		return FileValidation{}, errs.UnknownType("namespace %s is not loaded", namespace)
	}
	violations := core.NewValidator(catalog).Validate(ctx, root, namespace)
	return FileValidation{Path: path, Namespace: namespace, Errors: violations}, nil
}

// typeMap returns the default map, or a derived one when extensions are
// given.
func (s Service) typeMap(ctx context.Context, extensions []string) (*core.TypeMap, error) {
	if len(extensions) == 0 {
		return DefaultTypeMap(ctx)
	}
	return TypeMapFor(ctx, extensions...)
}

func closeSession(ctx context.Context, io *core.IO) {
	if err := io.Close(); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("path", io.Path()).Msg("close failed")
	}
}
