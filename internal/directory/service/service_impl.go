package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/veridex/tokenmeter/internal/config"
	directorydomain "github.com/veridex/tokenmeter/internal/directory/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// snapshot is an immutable view of the directory. Readers load it through
// an atomic pointer and never observe a half-updated state.
type snapshot struct {
	providersByName  map[string]*directorydomain.Provider
	providersByAlias map[string]*directorydomain.Provider
	modelsByProvider map[snowflake.ID]map[string]*directorydomain.Model
	modelsByID       map[snowflake.ID]*directorydomain.Model
	quotaByModel     map[snowflake.ID]*directorydomain.Quota

	providers []directorydomain.Provider
	models    []directorydomain.Model
	quotas    []directorydomain.Quota
}

type Params struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	DB    *gorm.DB                   `optional:"true"`
	Repo  directorydomain.Repository `optional:"true"`
	GenID *snowflake.Node            `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  directorydomain.Repository
	genID *snowflake.Node

	refreshEvery time.Duration

	mu   sync.Mutex // serializes writers; readers go through snap only
	snap atomic.Pointer[snapshot]
}

func New(p Params) *Service {
	s := &Service{
		db:           p.DB,
		log:          p.Log.Named("directory.service"),
		repo:         p.Repo,
		genID:        p.GenID,
		refreshEvery: p.Cfg.Directory.RefreshInterval,
	}
	s.snap.Store(buildSnapshot(s.log, nil, nil, nil))
	return s
}

func (s *Service) Resolve(ctx context.Context, providerKey, modelKey string) (directorydomain.ResolvedIdentity, error) {
	providerName, modelName := directorydomain.ParseKey(providerKey, modelKey)
	if providerName == "" || modelName == "" {
		return directorydomain.ResolvedIdentity{}, directorydomain.ErrEmptyKey
	}

	snap := s.snap.Load()

	provider, ok := snap.providersByName[providerName]
	if !ok {
		provider, ok = snap.providersByAlias[providerName]
	}
	if !ok {
		return directorydomain.ResolvedIdentity{}, directorydomain.ErrUnknownProvider
	}

	model, ok := snap.modelsByProvider[provider.ID][modelName]
	if !ok {
		return directorydomain.ResolvedIdentity{}, directorydomain.ErrUnknownModel
	}

	return directorydomain.ResolvedIdentity{
		ProviderID:   provider.ID,
		ModelID:      model.ID,
		ProviderName: provider.Name,
		ModelName:    model.Name,
	}, nil
}

func (s *Service) QuotaForModel(ctx context.Context, modelID snowflake.ID) (*directorydomain.Quota, bool) {
	quota, ok := s.snap.Load().quotaByModel[modelID]
	return quota, ok
}

func (s *Service) AddQuotaToModel(ctx context.Context, modelID snowflake.ID, quota directorydomain.Quota) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snap.Load()
	if _, ok := snap.modelsByID[modelID]; !ok {
		return directorydomain.ErrUnknownModelID
	}

	quota.ModelID = modelID
	quota.Active = true
	quota.UpdatedAt = time.Now().UTC()
	if quota.ID == 0 && s.genID != nil {
		quota.ID = s.genID.Generate()
	}

	if s.db != nil && s.repo != nil {
		if err := s.repo.UpsertQuota(ctx, s.db, &quota); err != nil {
			return err
		}
	}

	quotas := make([]directorydomain.Quota, 0, len(snap.quotas)+1)
	for _, q := range snap.quotas {
		if q.ModelID != modelID {
			quotas = append(quotas, q)
		}
	}
	quotas = append(quotas, quota)

	s.snap.Store(buildSnapshot(s.log, snap.providers, snap.models, quotas))
	return nil
}

func (s *Service) Replace(
	ctx context.Context,
	providers []directorydomain.Provider,
	models []directorydomain.Model,
	quotas []directorydomain.Quota,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil && s.repo != nil {
		if err := s.repo.ReplaceAll(ctx, s.db, providers, models, quotas); err != nil {
			return err
		}
	}

	s.snap.Store(buildSnapshot(s.log, providers, models, quotas))
	return nil
}

// Refresh reloads the snapshot from the backing store. A load failure keeps
// the last-known-good snapshot and is reported to the caller for logging;
// resolution traffic is never affected.
func (s *Service) Refresh(ctx context.Context) error {
	if s.db == nil || s.repo == nil {
		return nil
	}

	providers, err := s.repo.ListActiveProviders(ctx, s.db)
	if err != nil {
		return err
	}
	models, err := s.repo.ListActiveModels(ctx, s.db)
	if err != nil {
		return err
	}
	quotas, err := s.repo.ListActiveQuotas(ctx, s.db)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Store(buildSnapshot(s.log, providers, models, quotas))
	return nil
}

// RunRefreshLoop refreshes the directory on a fixed interval until stop is
// closed. Errors are logged and the loop keeps going.
func (s *Service) RunRefreshLoop(stop <-chan struct{}) {
	if s.refreshEvery <= 0 || s.db == nil || s.repo == nil {
		return
	}
	ticker := time.NewTicker(s.refreshEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.Refresh(context.Background()); err != nil {
				s.log.Warn("directory refresh failed, keeping last snapshot", zap.Error(err))
			}
		}
	}
}

func buildSnapshot(
	log *zap.Logger,
	providers []directorydomain.Provider,
	models []directorydomain.Model,
	quotas []directorydomain.Quota,
) *snapshot {
	snap := &snapshot{
		providersByName:  make(map[string]*directorydomain.Provider, len(providers)),
		providersByAlias: make(map[string]*directorydomain.Provider),
		modelsByProvider: make(map[snowflake.ID]map[string]*directorydomain.Model),
		modelsByID:       make(map[snowflake.ID]*directorydomain.Model, len(models)),
		quotaByModel:     make(map[snowflake.ID]*directorydomain.Quota),
		providers:        providers,
		models:           models,
		quotas:           quotas,
	}

	for i := range providers {
		p := &providers[i]
		if !p.Active {
			continue
		}
		snap.providersByName[p.Name] = p
		for _, alias := range p.Aliases {
			if _, taken := snap.providersByAlias[alias]; taken {
				log.Warn("duplicate provider alias ignored", zap.String("alias", alias))
				continue
			}
			snap.providersByAlias[alias] = p
		}
	}

	for i := range models {
		m := &models[i]
		if !m.Active {
			continue
		}
		byName, ok := snap.modelsByProvider[m.ProviderID]
		if !ok {
			byName = make(map[string]*directorydomain.Model)
			snap.modelsByProvider[m.ProviderID] = byName
		}
		byName[m.Name] = m
		snap.modelsByID[m.ID] = m
	}

	for i := range quotas {
		q := &quotas[i]
		if !q.Active {
			continue
		}
		if _, taken := snap.quotaByModel[q.ModelID]; taken {
			log.Warn("multiple active quotas for model, keeping first",
				zap.Int64("model_id", int64(q.ModelID)))
			continue
		}
		snap.quotaByModel[q.ModelID] = q
	}

	return snap
}
