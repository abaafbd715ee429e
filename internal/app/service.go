package app

import (
	"context"
	"time"

	"nwbio/internal/adapters"
	"nwbio/internal/core"
	"nwbio/internal/ports"
	"nwbio/internal/types"
)

// Config carries the tunables the cli reads from flags and config files.
type Config struct {
	ChunkBytes  int
	CacheChunks int
	LockTimeout time.Duration
	// CacheSpec stores the loaded namespaces inside written files.
	CacheSpec bool
}

func DefaultConfig() Config {
	return Config{
		ChunkBytes:  core.DefaultChunkBytes,
		CacheChunks: 64,
		LockTimeout: time.Second,
		CacheSpec:   true,
	}
}

type Service struct {
	Namespaces ports.NamespaceSourcePort
	Store      ports.StorePort
	Options    core.IOOptions
}

func NewService(cfg Config) Service {
	return Service{
		Namespaces: adapters.NewNamespaceFileAdapter(),
		Store: adapters.NewBoltStoreAdapter(adapters.BoltStoreOptions{
			LockTimeout: cfg.LockTimeout,
			CacheChunks: cfg.CacheChunks,
		}),
		Options: core.IOOptions{
			ChunkBytes:    cfg.ChunkBytes,
			SkipCacheSpec: !cfg.CacheSpec,
		},
	}
}

// Open starts a session on path.  A nil type map means the default one.
func (s Service) Open(ctx context.Context, path string, mode types.SessionMode, tm *core.TypeMap) (*core.IO, error) {
	return s.open(ctx, path, mode, tm, s.Options)
}

func (s Service) open(ctx context.Context, path string, mode types.SessionMode, tm *core.TypeMap, opts core.IOOptions) (*core.IO, error) {
	if tm == nil {
		var err error
		if tm, err = DefaultTypeMap(ctx); err != nil {
			return nil, err
		}
	}
	io := core.NewIO(s.Store, tm, opts)
	if err := io.Open(ctx, path, mode); err != nil {
		return nil, err
	}
	return io, nil
}
