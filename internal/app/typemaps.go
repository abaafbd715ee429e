package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"nwbio/internal/adapters"
	"nwbio/internal/core"
	"nwbio/internal/nwb"
	"nwbio/internal/ports"
)

var defaultTypeMap struct {
	once sync.Once
	tm   *core.TypeMap
	err  error
}

// DefaultTypeMap returns the process-wide type map: the bundled
// namespaces at the newest core version, with the nwb containers
// registered.  It is built once; callers that load or register anything
// must work on a copy from TypeMapFor.
func DefaultTypeMap(ctx context.Context) (*core.TypeMap, error) {
	defaultTypeMap.once.Do(func() {
		defaultTypeMap.tm, defaultTypeMap.err = bundledTypeMap(ctx, adapters.NewNamespaceFileAdapter(), "")
	})
	return defaultTypeMap.tm, defaultTypeMap.err
}

// TypeMapFor returns a copy of the default type map with the namespace
// files at extensions loaded on top.
func TypeMapFor(ctx context.Context, extensions ...string) (*core.TypeMap, error) {
	base, err := DefaultTypeMap(ctx)
	if err != nil {
		return nil, err
	}
	tm := base.Derive()
	if err := loadExtensions(ctx, tm, adapters.NewNamespaceFileAdapter(), extensions); err != nil {
		return nil, err
	}
	return tm, nil
}

// TypeMapForVersion returns a fresh type map holding the bundled core at
// version instead of the newest one.
func TypeMapForVersion(ctx context.Context, version string, extensions ...string) (*core.TypeMap, error) {
	source := adapters.NewNamespaceFileAdapter()
	tm, err := bundledTypeMap(ctx, source, version)
	if err != nil {
		return nil, err
	}
	if err := loadExtensions(ctx, tm, source, extensions); err != nil {
		return nil, err
	}
	return tm, nil
}

// bundledTypeMap loads every bundled namespace, keeping one version of
// each: version when given, the newest otherwise.
func bundledTypeMap(ctx context.Context, source ports.NamespaceSourcePort, version string) (*core.TypeMap, error) {
	sources, err := source.Bundled()
	if err != nil {
		return nil, err
	}
	versions := map[string][]string{}
	for _, src := range sources {
		versions[src.File.Name] = append(versions[src.File.Name], src.File.Version)
	}
	chosen := map[string]string{}
	for name, available := range versions {
		latest, err := core.LatestVersion(available)
		if err != nil {
			return nil, err
		}
		chosen[name] = latest
	}
	if version != "" {
		if !contains(versions[nwb.CoreNamespace], version) {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg(fmt.Sprintf("core version %s is not bundled (have %v)", version, versions[nwb.CoreNamespace]))
		}
		chosen[nwb.CoreNamespace] = version
	}

	tm := core.NewTypeMap()
	for _, src := range sources {
		if chosen[src.File.Name] != src.File.Version {
			continue
		}
		if err := tm.LoadNamespace(ctx, src); err != nil {
			return nil, err
		}
	}
	if err := nwb.Register(tm); err != nil {
		return nil, err
	}
	log.Ctx(ctx).Debug().Interface("versions", chosen).Msg("bundled type map loaded")
	return tm, nil
}

func loadExtensions(ctx context.Context, tm *core.TypeMap, source ports.NamespaceSourcePort, paths []string) error {
	for _, path := range paths {
		sources, err := source.Load(path)
		if err != nil {
			return err
		}
		for _, src := range sources {
			if err := tm.LoadNamespace(ctx, src); err != nil {
				return err
			}
		}
	}
	return nil
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

// compile-time check that the bundled adapter satisfies the port
var _ ports.NamespaceSourcePort = (*adapters.NamespaceFileAdapter)(nil)
