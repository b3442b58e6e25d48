package storage

import (
	"context"
	"fmt"

	"github.com/hicsail/kidney-web/internal/application/ports"
	"github.com/hicsail/kidney-web/internal/infrastructure/config"
	"github.com/hicsail/kidney-web/internal/infrastructure/storage/adapters/fs"
	"github.com/hicsail/kidney-web/internal/infrastructure/storage/adapters/memory"
	"github.com/hicsail/kidney-web/internal/infrastructure/storage/adapters/s3"
)

// healthKey is looked up by HealthCheck; it never exists, so only transport
// failures surface.
const healthKey = ".healthz"

// CreateStorage builds the storage adapter selected by cfg.Adapters.Storage
func CreateStorage(cfg *config.Config, obs ports.Observability) (ports.Storage, error) {
	logger, metrics, err := obs.ComponentsScoped("storage." + cfg.Adapters.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to scope observability: %w", err)
	}

	switch cfg.Adapters.Storage {
	case "s3":
		logger.Info("Creating S3 storage adapter",
			"bucket", cfg.Storage.BucketOrPath,
			"region", cfg.Storage.S3.Region,
			"endpoint", cfg.Storage.S3.Endpoint)
		return s3.New(&cfg.Storage, logger, metrics)

	case "filesystem":
		logger.Info("Creating filesystem storage adapter", "path", cfg.Storage.BucketOrPath)
		return fs.NewStorage(cfg.Storage.BucketOrPath, logger, metrics)

	case "memory":
		logger.Info("Creating in-memory storage adapter")
		return memory.NewStorage("", logger, metrics), nil

	default:
		return nil, fmt.Errorf("unsupported storage adapter: %s", cfg.Adapters.Storage)
	}
}

// Bucket returns the bucket name the store should address. Only s3 uses
// BucketOrPath as a bucket; the other adapters take it as a location and use
// their own default bucket.
func Bucket(cfg *config.Config) string {
	if cfg.Adapters.Storage == "s3" {
		return cfg.Storage.BucketOrPath
	}
	return ""
}

// HealthCheck reports whether the backend answers requests
func HealthCheck(ctx context.Context, storage ports.Storage, bucket string) error {
	if _, err := storage.Exists(ctx, bucket, healthKey); err != nil {
		return fmt.Errorf("storage health check failed: %w", err)
	}
	return nil
}
