package recorder

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/veridex/tokenmeter/internal/clock"
	"github.com/veridex/tokenmeter/internal/config"
	"github.com/veridex/tokenmeter/internal/counter"
	directorydomain "github.com/veridex/tokenmeter/internal/directory/domain"
	"github.com/veridex/tokenmeter/internal/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const periodLayout = "2006-01-02"

type Params struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	Clock   clock.Clock
	GenID   *snowflake.Node
	Metrics *metrics.Metrics
	DB      *gorm.DB `optional:"true"`
}

// Recorder upserts cumulative usage rows. Writes are best effort: any
// failure is logged and dropped, never surfaced to the caller.
type Recorder struct {
	db      *gorm.DB
	log     *zap.Logger
	clk     clock.Clock
	genID   *snowflake.Node
	metrics *metrics.Metrics
	timeout time.Duration
}

func New(p Params) *Recorder {
	return &Recorder{
		db:      p.DB,
		log:     p.Log.Named("recorder"),
		clk:     p.Clock,
		genID:   p.GenID,
		metrics: p.Metrics,
		timeout: p.Cfg.Metering.StoreTimeout,
	}
}

// Module wires the durable usage recorder.
var Module = fx.Module("recorder",
	fx.Provide(New),
)

// Persist adds one usage event to the day-bucketed ledger row for the
// identity. Fire-and-forget: errors never propagate.
func (r *Recorder) Persist(ctx context.Context, id directorydomain.ResolvedIdentity, usage counter.TokenUsage) {
	if r.db == nil {
		return
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	now := r.clk.Now()
	entry := UsageLedgerEntry{
		ID:               r.genID.Generate(),
		ProviderID:       id.ProviderID,
		ModelID:          id.ModelID,
		Period:           now.Format(periodLayout),
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		RequestCount:     1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider_id"}, {Name: "model_id"}, {Name: "period"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"prompt_tokens":     gorm.Expr("prompt_tokens + ?", usage.PromptTokens),
			"completion_tokens": gorm.Expr("completion_tokens + ?", usage.CompletionTokens),
			"total_tokens":      gorm.Expr("total_tokens + ?", usage.TotalTokens),
			"request_count":     gorm.Expr("request_count + 1"),
			"updated_at":        now,
		}),
	}).Create(&entry).Error
	if err != nil {
		r.metrics.ObserveLedgerFailure()
		r.log.Warn("usage ledger write dropped",
			zap.String("provider", id.ProviderName),
			zap.String("model", id.ModelName),
			zap.String("period", entry.Period),
			zap.Error(err))
	}
}
