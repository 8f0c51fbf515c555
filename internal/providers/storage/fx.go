package storage

import (
	"context"

	"github.com/smallbiznis/cdrbill/internal/config"
	"github.com/smallbiznis/cdrbill/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.storage",
	fx.Provide(NewFromConfig),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
	Metrics   *metrics.Metrics `optional:"true"`
}

func NewFromConfig(p Params) (Provider, error) {
	if p.Config.Storage.GCSBucket == "" {
		p.Log.Info("storage.disabled", zap.String("reason", "GCS_BUCKET not set"))
		return NoOpProvider{}, nil
	}

	provider, err := NewGCS(context.Background(), Config{
		Bucket:          p.Config.Storage.GCSBucket,
		Prefix:          p.Config.Storage.GCSPrefix,
		CredentialsJSON: p.Config.Storage.CredentialsJSON,
	}, p.Metrics, p.Log)
	if err != nil {
		return nil, err
	}
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return provider.Close()
		},
	})
	return provider, nil
}
