// Package bootstrap builds the storage backend and cleanup janitor selected
// by configuration and assembles the HTTP service. The server, worker and
// CLI binaries share it.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/OTADrop/internal/config"
	"github.com/dharsanguruparan/OTADrop/internal/database"
	"github.com/dharsanguruparan/OTADrop/internal/metrics"
	"github.com/dharsanguruparan/OTADrop/internal/processing"
	"github.com/dharsanguruparan/OTADrop/internal/queue"
	"github.com/dharsanguruparan/OTADrop/internal/repository"
	"github.com/dharsanguruparan/OTADrop/internal/s3storage"
	"github.com/dharsanguruparan/OTADrop/internal/server"
	"github.com/dharsanguruparan/OTADrop/internal/storage"
	"github.com/dharsanguruparan/OTADrop/internal/upload"
)

// Closer releases resources acquired while wiring.
type Closer func()

func noop() {}

// OpenStore connects the configured storage backend, provisioning buckets
// or tables on first use.
func OpenStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.Store, Closer, error) {
	switch cfg.StorageBackend {
	case config.BackendMemory:
		log.Warn("using in-memory storage; artifacts are lost on restart")
		return storage.NewMemoryStore(), noop, nil
	case config.BackendFilesystem:
		store, err := storage.NewFileStore(cfg.UploadDir, cfg.ManifestDir)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using filesystem storage", zap.String("archives", cfg.UploadDir), zap.String("manifests", cfg.ManifestDir))
		return store, noop, nil
	case config.BackendS3:
		store, err := s3storage.New(cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := store.EnsureBuckets(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure buckets: %w", err)
		}
		log.Info("using s3 storage", zap.String("endpoint", cfg.S3Endpoint))
		return store, noop, nil
	case config.BackendPostgres:
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		if err := database.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		log.Info("using postgres storage")
		return repository.NewArtifactRepository(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// RedisOpt returns the asynq connection settings.
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// NewJanitor returns the janitor for cfg.CleanupMode, or nil when cleanup
// is disabled. Inline pools run until ctx is cancelled; the returned Closer
// waits for them.
func NewJanitor(ctx context.Context, cfg *config.Config, store storage.Store, log *zap.Logger) (upload.Janitor, Closer, error) {
	switch cfg.CleanupMode {
	case config.CleanupNone:
		return nil, noop, nil
	case config.CleanupInline:
		pool := processing.New(store, cfg.CleanupWorkers, log.Named("cleanup"))
		pool.Start(ctx)
		return pool, pool.Wait, nil
	case config.CleanupQueue:
		client := asynq.NewClient(RedisOpt(cfg))
		return queue.NewClient(client), func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown cleanup mode %q", cfg.CleanupMode)
	}
}

// Serve wires storage, cleanup and the orchestrator behind the HTTP server
// and blocks until ctx is cancelled.
func Serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	store, closeStore, err := OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, cancel := context.WithCancel(ctx)
	janitor, closeJanitor, err := NewJanitor(ctx, cfg, store, log)
	if err != nil {
		cancel()
		return err
	}
	defer closeJanitor()
	// Inline cleanup workers only exit once ctx is done.
	defer cancel()

	orch := upload.New(store, cfg.UploadOptions(), janitor, log.Named("upload"))
	srv := server.New(cfg, orch, store, metrics.NewProm("otadrop", nil), log.Named("http"))
	return srv.Serve(ctx)
}
