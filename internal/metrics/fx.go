package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/veridex/tokenmeter/internal/config"
	"go.uber.org/fx"
)

// Module provides the engine metrics on the default prometheus registry.
var Module = fx.Module("metrics",
	fx.Provide(func(cfg config.Config) *Metrics {
		return New(prometheus.DefaultRegisterer, Config{
			ServiceName: cfg.AppName,
			Environment: cfg.Environment,
		})
	}),
)
