package storage

import (
	"context"

	"github.com/smallbiznis/tasklane/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.storage",
	fx.Provide(NewFromConfig),
)

// NewFromConfig uses S3 when a bucket is configured and memory otherwise.
func NewFromConfig(cfg config.Config, log *zap.Logger) (FileGateway, error) {
	if cfg.Storage.Bucket == "" {
		log.Named("storage").Info("no storage bucket configured, keeping uploads in memory")
		return NewMemory(cfg.Storage.PublicBaseURL), nil
	}
	return NewS3(context.Background(), cfg.Storage)
}
