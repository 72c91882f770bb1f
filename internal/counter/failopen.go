package counter

import (
	"context"
	"time"

	directorydomain "github.com/veridex/tokenmeter/internal/directory/domain"
	"github.com/veridex/tokenmeter/internal/metrics"
	"go.uber.org/zap"
)

// FailOpen wraps a Store with the degradation contract shared by every call
// site: store failures are logged, counted, and converted to neutral values
// so metering can never block the traffic it meters. All calls are bounded
// by a timeout.
type FailOpen struct {
	store   Store
	log     *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration
}

// NewFailOpen wraps store with the fail-open boundary.
func NewFailOpen(store Store, log *zap.Logger, m *metrics.Metrics, timeout time.Duration) *FailOpen {
	return &FailOpen{
		store:   store,
		log:     log.Named("counter.failopen"),
		metrics: m,
		timeout: timeout,
	}
}

func (f *FailOpen) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, f.timeout)
}

// Record applies a usage event. Errors are swallowed, never returned.
func (f *FailOpen) Record(ctx context.Context, id directorydomain.ResolvedIdentity, usage TokenUsage) {
	ctx, cancel := f.bound(ctx)
	defer cancel()

	if err := f.store.Record(ctx, id, usage); err != nil {
		f.metrics.ObserveCounterStoreError("record")
		f.log.Warn("usage counter write dropped",
			zap.String("provider", id.ProviderName),
			zap.String("model", id.ModelName),
			zap.Int64("total_tokens", usage.TotalTokens),
			zap.Error(err))
		return
	}
	f.metrics.ObserveUsageRecorded()
}

// Aggregate reads one window. On store failure it returns the zero
// aggregate and degraded=true.
func (f *FailOpen) Aggregate(ctx context.Context, id directorydomain.ResolvedIdentity, w Window) (Aggregate, bool) {
	ctx, cancel := f.bound(ctx)
	defer cancel()

	agg, err := f.store.Aggregate(ctx, id, w)
	if err != nil {
		f.metrics.ObserveCounterStoreError("aggregate")
		f.log.Warn("usage counter read degraded to zero",
			zap.String("provider", id.ProviderName),
			zap.String("model", id.ModelName),
			zap.String("window", string(w)),
			zap.Error(err))
		return Aggregate{}, true
	}
	return agg, false
}

// Snapshot reads all three windows. On store failure it returns the zero
// snapshot and degraded=true.
func (f *FailOpen) Snapshot(ctx context.Context, id directorydomain.ResolvedIdentity) (Snapshot, bool) {
	ctx, cancel := f.bound(ctx)
	defer cancel()

	snap, err := f.store.Snapshot(ctx, id)
	if err != nil {
		f.metrics.ObserveCounterStoreError("snapshot")
		f.log.Warn("usage snapshot read degraded to zero",
			zap.String("provider", id.ProviderName),
			zap.String("model", id.ModelName),
			zap.Error(err))
		return Snapshot{}, true
	}
	return snap, false
}
