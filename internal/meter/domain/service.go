// Package domain defines the inbound metering surface consumed by
// model-call middleware and dashboards.
package domain

import (
	"context"

	"github.com/veridex/tokenmeter/internal/counter"
	directorydomain "github.com/veridex/tokenmeter/internal/directory/domain"
	"github.com/veridex/tokenmeter/internal/quota"
)

// Service is the metering engine facade.
type Service interface {
	// CheckQuota runs the quota decision for an estimated token count.
	// Only caller misuse (negative estimates) returns an error.
	CheckQuota(ctx context.Context, providerKey, modelKey string, estimatedTokens int64) (quota.CheckResult, error)

	// RecordTokenUsage applies actual usage to the rolling counters and the
	// durable ledger. Best effort; never returns an error and is not
	// cancelled when the caller's context is.
	RecordTokenUsage(ctx context.Context, providerKey, modelKey string, usage counter.TokenUsage)

	// GetTokenStats returns the current window aggregates for the identity.
	GetTokenStats(ctx context.Context, providerKey, modelKey string) quota.UsageSnapshot

	// GetUsageReport returns the composite quota/usage view for dashboards.
	GetUsageReport(ctx context.Context, providerKey, modelKey string) (Report, error)
}

// Report is the composite observability view for one provider/model.
type Report struct {
	Quota        *directorydomain.Quota `json:"quota,omitempty"`
	CurrentStats quota.UsageSnapshot    `json:"current_stats"`
	CheckResult  quota.CheckResult      `json:"quota_check_result"`
}
