// Package meterware wraps model calls with usage metering and optional
// quota enforcement.
package meterware

import (
	"context"
	"fmt"

	"github.com/veridex/tokenmeter/internal/counter"
	meterdomain "github.com/veridex/tokenmeter/internal/meter/domain"
	"github.com/veridex/tokenmeter/internal/quota"
	"go.uber.org/zap"
)

// Message is one chat turn sent to a model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes an outbound model call.
type Request struct {
	Provider string    `json:"provider"`
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

// Usage is the token accounting a provider reports for one call.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Response is the model reply. Usage is nil when the provider reports
// none; that is not an error.
type Response struct {
	Content string `json:"content"`
	Usage   *Usage `json:"usage,omitempty"`
}

// CallFunc is the seam between the metering engine and a provider client.
type CallFunc func(ctx context.Context, req Request) (Response, error)

// QuotaExceededError carries the denial produced by a quota check.
type QuotaExceededError struct {
	Provider string
	Model    string
	Reason   string
	Result   quota.CheckResult
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s/%s: %s", e.Provider, e.Model, e.Reason)
}

type options struct {
	billingProvider string
	billingModel    string
}

// Option configures a metering wrapper.
type Option func(*options)

// WithBillingIdentity meters usage against the given provider/model
// instead of the identity used to invoke the call. Supports routing setups
// where the billed identity differs from the invoked one.
func WithBillingIdentity(provider, model string) Option {
	return func(o *options) {
		o.billingProvider = provider
		o.billingModel = model
	}
}

// EstimateTokens approximates the token cost of a message list before the
// provider has reported real usage: ~4 characters per token plus a small
// per-message and per-request overhead.
func EstimateTokens(messages []Message) int64 {
	var total int64
	for _, m := range messages {
		total += int64(len(m.Content)) / 4
		total += 4
	}
	total += 3
	return total
}

// Meter wraps next with metering only: the call always proceeds and actual
// usage is recorded afterwards. Calls without reported usage are skipped
// silently.
func Meter(next CallFunc, meters meterdomain.Service, log *zap.Logger, opts ...Option) CallFunc {
	o := applyOptions(opts)
	log = log.Named("meterware")
	return func(ctx context.Context, req Request) (Response, error) {
		resp, err := next(ctx, req)
		if err != nil {
			return resp, err
		}
		recordUsage(ctx, meters, log, o, req, resp)
		return resp, nil
	}
}

// MeterWithQuota wraps next with a pre-call quota check and post-call
// metering. A denied check returns *QuotaExceededError without invoking
// the underlying call.
func MeterWithQuota(next CallFunc, meters meterdomain.Service, log *zap.Logger, opts ...Option) CallFunc {
	o := applyOptions(opts)
	log = log.Named("meterware")
	return func(ctx context.Context, req Request) (Response, error) {
		provider, model := o.identity(req)

		estimated := EstimateTokens(req.Messages)
		result, err := meters.CheckQuota(ctx, provider, model, estimated)
		if err != nil {
			return Response{}, err
		}
		if !result.Allowed {
			log.Info("model call denied by quota",
				zap.String("provider", provider),
				zap.String("model", model),
				zap.Int64("estimated_tokens", estimated),
				zap.String("reason", result.Reason))
			return Response{}, &QuotaExceededError{
				Provider: provider,
				Model:    model,
				Reason:   result.Reason,
				Result:   result,
			}
		}

		resp, err := next(ctx, req)
		if err != nil {
			return resp, err
		}
		recordUsage(ctx, meters, log, o, req, resp)
		return resp, nil
	}
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) identity(req Request) (provider, model string) {
	provider, model = req.Provider, req.Model
	if o.billingProvider != "" {
		provider = o.billingProvider
	}
	if o.billingModel != "" {
		model = o.billingModel
	}
	return provider, model
}

func recordUsage(ctx context.Context, meters meterdomain.Service, log *zap.Logger, o options, req Request, resp Response) {
	if resp.Usage == nil {
		// Some providers omit usage; nothing to record.
		log.Debug("no usage reported, skipping record",
			zap.String("provider", req.Provider),
			zap.String("model", req.Model))
		return
	}

	usage := counter.TokenUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	provider, model := o.identity(req)
	meters.RecordTokenUsage(ctx, provider, model, usage)
}
