package service

import (
	"context"

	"github.com/veridex/tokenmeter/internal/config"
	"github.com/veridex/tokenmeter/internal/counter"
	directorydomain "github.com/veridex/tokenmeter/internal/directory/domain"
	meterdomain "github.com/veridex/tokenmeter/internal/meter/domain"
	"github.com/veridex/tokenmeter/internal/quota"
	"github.com/veridex/tokenmeter/internal/recorder"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg       config.Config
	Log       *zap.Logger
	Directory directorydomain.Service
	Engine    *quota.Engine
	Counters  *counter.FailOpen
	Recorder  *recorder.Recorder
}

type Service struct {
	log       *zap.Logger
	dir       directorydomain.Service
	engine    *quota.Engine
	counters  *counter.FailOpen
	recorder  *recorder.Recorder
	enforcing bool
}

func New(p Params) meterdomain.Service {
	return &Service{
		log:       p.Log.Named("meter.service"),
		dir:       p.Directory,
		engine:    p.Engine,
		counters:  p.Counters,
		recorder:  p.Recorder,
		enforcing: p.Cfg.Metering.QuotaEnforcementEnabled,
	}
}

func (s *Service) CheckQuota(ctx context.Context, providerKey, modelKey string, estimatedTokens int64) (quota.CheckResult, error) {
	if !s.enforcing {
		return quota.CheckResult{Allowed: true}, nil
	}
	return s.engine.CheckQuota(ctx, providerKey, modelKey, estimatedTokens)
}

func (s *Service) RecordTokenUsage(ctx context.Context, providerKey, modelKey string, usage counter.TokenUsage) {
	id, err := s.dir.Resolve(ctx, providerKey, modelKey)
	if err != nil {
		s.log.Debug("usage for unknown identity skipped",
			zap.String("provider_key", providerKey),
			zap.String("model_key", modelKey),
			zap.Error(err))
		return
	}

	// Recording outlives the request; a caller abandoning its context must
	// not cancel an already-earned usage event.
	ctx = context.WithoutCancel(ctx)
	s.counters.Record(ctx, id, usage)
	s.recorder.Persist(ctx, id, usage)
}

func (s *Service) GetTokenStats(ctx context.Context, providerKey, modelKey string) quota.UsageSnapshot {
	id, err := s.dir.Resolve(ctx, providerKey, modelKey)
	if err != nil {
		return quota.UsageSnapshot{}
	}
	snap, _ := s.counters.Snapshot(ctx, id)
	return quota.SnapshotFromCounters(snap)
}

func (s *Service) GetUsageReport(ctx context.Context, providerKey, modelKey string) (meterdomain.Report, error) {
	result, err := s.engine.CheckQuota(ctx, providerKey, modelKey, 0)
	if err != nil {
		return meterdomain.Report{}, err
	}

	report := meterdomain.Report{
		Quota:        result.Quota,
		CurrentStats: s.GetTokenStats(ctx, providerKey, modelKey),
		CheckResult:  result,
	}
	return report, nil
}
