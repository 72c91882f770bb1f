// Package quota decides whether a model call may proceed under the token
// limits configured for its model.
package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/veridex/tokenmeter/internal/counter"
	directorydomain "github.com/veridex/tokenmeter/internal/directory/domain"
	"github.com/veridex/tokenmeter/internal/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrNegativeTokens rejects caller misuse at the engine boundary.
var ErrNegativeTokens = errors.New("requested token count must not be negative")

// UsageSnapshot is the observable usage state at decision time.
type UsageSnapshot struct {
	CurrentMinuteTokens int64 `json:"current_minute_tokens"`
	LastHourTokens      int64 `json:"last_hour_tokens"`
	Last24HoursTokens   int64 `json:"last_24_hours_tokens"`
	RequestCount        int64 `json:"request_count"`
}

// SnapshotFromCounters maps raw window aggregates to the observable shape.
func SnapshotFromCounters(snap counter.Snapshot) UsageSnapshot {
	return UsageSnapshot{
		CurrentMinuteTokens: snap.Minute.TotalTokens,
		LastHourTokens:      snap.Hour.TotalTokens,
		Last24HoursTokens:   snap.Day.TotalTokens,
		RequestCount:        snap.Minute.RequestCount,
	}
}

// CheckResult is the outcome of one quota decision. A denial is a
// well-formed result, not an error.
type CheckResult struct {
	Allowed      bool                   `json:"allowed"`
	Reason       string                 `json:"reason,omitempty"`
	Degraded     bool                   `json:"degraded,omitempty"`
	Quota        *directorydomain.Quota `json:"quota,omitempty"`
	CurrentUsage UsageSnapshot          `json:"current_usage"`
}

const (
	dimensionMessage = "message"
	dimensionMinute  = "minute"
	dimensionDay     = "day"
)

type Params struct {
	fx.In

	Directory directorydomain.Service
	Counters  *counter.FailOpen
	Log       *zap.Logger
	Metrics   *metrics.Metrics
}

// Engine evaluates quota checks. It is read-only: a passing check reserves
// nothing, so concurrent requests can jointly overshoot a window by their
// combined size before either records usage.
type Engine struct {
	dir      directorydomain.Service
	counters *counter.FailOpen
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func New(p Params) *Engine {
	return &Engine{
		dir:      p.Directory,
		counters: p.Counters,
		log:      p.Log.Named("quota.engine"),
		metrics:  p.Metrics,
	}
}

// Module wires the quota engine.
var Module = fx.Module("quota.engine",
	fx.Provide(New),
)

// CheckQuota decides whether a request of requestedTokens may proceed for
// the given provider/model. Dimensions are evaluated in fixed order
// (per-message, per-minute, per-day) and the first violation wins.
// Comparisons are inclusive: a request that lands exactly on a limit is
// allowed. requestedTokens is a pre-call estimate; actual usage recorded
// afterwards is never reconciled against this decision.
//
// Every infrastructure failure fails open: an unknown provider/model or an
// unreachable counter store yields Allowed=true rather than an error.
func (e *Engine) CheckQuota(ctx context.Context, providerKey, modelKey string, requestedTokens int64) (CheckResult, error) {
	if requestedTokens < 0 {
		return CheckResult{}, fmt.Errorf("%w: %d", ErrNegativeTokens, requestedTokens)
	}

	id, err := e.dir.Resolve(ctx, providerKey, modelKey)
	if err != nil {
		// A misconfigured directory must not become an outage.
		e.log.Debug("quota resolution failed, allowing",
			zap.String("provider_key", providerKey),
			zap.String("model_key", modelKey),
			zap.Error(err))
		e.metrics.ObserveQuotaCheck(true, "")
		return CheckResult{Allowed: true}, nil
	}

	quota, ok := e.dir.QuotaForModel(ctx, id.ModelID)
	if !ok {
		e.metrics.ObserveQuotaCheck(true, "")
		return CheckResult{Allowed: true}, nil
	}

	if quota.MaxTokensPerMessage != nil && requestedTokens > *quota.MaxTokensPerMessage {
		return e.deny(quota, UsageSnapshot{}, false, dimensionMessage, fmt.Sprintf(
			"per-message limit exceeded: requested %d tokens, limit is %d",
			requestedTokens, *quota.MaxTokensPerMessage)), nil
	}

	var usage UsageSnapshot
	var degraded bool
	if quota.MaxTokensPerMinute != nil || quota.MaxTokensPerDay != nil {
		snap, deg := e.counters.Snapshot(ctx, id)
		usage = SnapshotFromCounters(snap)
		degraded = deg
	}

	// A degraded read means current usage is unknown; fail open rather than
	// judging the request against a zero snapshot.
	if !degraded {
		if quota.MaxTokensPerMinute != nil && usage.CurrentMinuteTokens+requestedTokens > *quota.MaxTokensPerMinute {
			return e.deny(quota, usage, degraded, dimensionMinute, fmt.Sprintf(
				"per-minute limit exceeded: %d tokens used this minute, requested %d, limit is %d",
				usage.CurrentMinuteTokens, requestedTokens, *quota.MaxTokensPerMinute)), nil
		}

		if quota.MaxTokensPerDay != nil && usage.Last24HoursTokens+requestedTokens > *quota.MaxTokensPerDay {
			return e.deny(quota, usage, degraded, dimensionDay, fmt.Sprintf(
				"per-day limit exceeded: %d tokens used today, requested %d, limit is %d",
				usage.Last24HoursTokens, requestedTokens, *quota.MaxTokensPerDay)), nil
		}
	}

	e.metrics.ObserveQuotaCheck(true, "")
	return CheckResult{
		Allowed:      true,
		Degraded:     degraded,
		Quota:        quota,
		CurrentUsage: usage,
	}, nil
}

func (e *Engine) deny(quota *directorydomain.Quota, usage UsageSnapshot, degraded bool, dimension, reason string) CheckResult {
	e.metrics.ObserveQuotaCheck(false, dimension)
	return CheckResult{
		Allowed:      false,
		Reason:       reason,
		Degraded:     degraded,
		Quota:        quota,
		CurrentUsage: usage,
	}
}
