package counter

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/veridex/tokenmeter/internal/clock"
	"github.com/veridex/tokenmeter/internal/config"
	"github.com/veridex/tokenmeter/internal/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewStore selects the redis store when an address is configured and falls
// back to the in-process store otherwise.
func NewStore(cfg config.Config, clk clock.Clock, log *zap.Logger) Store {
	if cfg.Redis.Addr == "" {
		log.Named("counter").Info("no redis configured, using in-process usage counters")
		return NewMemoryStore(clk, cfg.Metering.CounterGrace)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return NewRedisStore(client, cfg.Metering.CounterGrace)
}

func newFailOpen(cfg config.Config, store Store, log *zap.Logger, m *metrics.Metrics) *FailOpen {
	return NewFailOpen(store, log, m, cfg.Metering.StoreTimeout)
}

// Module wires the usage counter store behind its fail-open boundary.
var Module = fx.Module("counter.store",
	fx.Provide(NewStore),
	fx.Provide(newFailOpen),
)
