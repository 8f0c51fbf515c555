package carrier

import (
	"github.com/smallbiznis/cdrbill/internal/clock"
	"github.com/smallbiznis/cdrbill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("carrier.provider",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, clk clock.Clock, log *zap.Logger) *Client {
	return NewClient(Config{
		Username:          cfg.Carrier.Username,
		Password:          cfg.Carrier.Password,
		LoginURL:          cfg.Carrier.LoginURL,
		CDRURL:            cfg.Carrier.CDRURL,
		DIDURL:            cfg.Carrier.DIDURL,
		BaseURL:           cfg.Carrier.BaseURL,
		RequestsPerSecond: cfg.Carrier.RateLimit,
	}, clk, log)
}

// PolicyFromPipeline converts the hot-reloadable pipeline settings.
func PolicyFromPipeline(p config.PipelineConfig) PollPolicy {
	return PollPolicy{
		Step:    p.PollStep,
		MaxWait: p.PollMaxWait,
		Timeout: p.PollTimeout,
	}
}
