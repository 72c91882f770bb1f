package repository

import (
	"context"

	directorydomain "github.com/veridex/tokenmeter/internal/directory/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() directorydomain.Repository {
	return &repo{}
}

func (r *repo) ListActiveProviders(ctx context.Context, db *gorm.DB) ([]directorydomain.Provider, error) {
	var providers []directorydomain.Provider
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, display_name, aliases, active, created_at, updated_at
		 FROM ai_providers WHERE active = ? ORDER BY name ASC`,
		true,
	).Scan(&providers).Error
	if err != nil {
		return nil, err
	}
	return providers, nil
}

func (r *repo) ListActiveModels(ctx context.Context, db *gorm.DB) ([]directorydomain.Model, error) {
	var models []directorydomain.Model
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider_id, name, display_name, active, created_at, updated_at
		 FROM ai_models WHERE active = ? ORDER BY provider_id, name ASC`,
		true,
	).Scan(&models).Error
	if err != nil {
		return nil, err
	}
	return models, nil
}

func (r *repo) ListActiveQuotas(ctx context.Context, db *gorm.DB) ([]directorydomain.Quota, error) {
	var quotas []directorydomain.Quota
	err := db.WithContext(ctx).Raw(
		`SELECT id, model_id, max_tokens_per_message, max_tokens_per_minute, max_tokens_per_day,
		        active, created_at, updated_at
		 FROM ai_model_quotas WHERE active = ? ORDER BY model_id ASC`,
		true,
	).Scan(&quotas).Error
	if err != nil {
		return nil, err
	}
	return quotas, nil
}

func (r *repo) UpsertQuota(ctx context.Context, db *gorm.DB, quota *directorydomain.Quota) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`UPDATE ai_model_quotas SET active = ?, updated_at = ? WHERE model_id = ? AND active = ?`,
			false, quota.UpdatedAt, quota.ModelID, true,
		).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(quota).Error
	})
}

func (r *repo) ReplaceAll(
	ctx context.Context,
	db *gorm.DB,
	providers []directorydomain.Provider,
	models []directorydomain.Model,
	quotas []directorydomain.Quota,
) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, stmt := range []string{
			`DELETE FROM ai_model_quotas`,
			`DELETE FROM ai_models`,
			`DELETE FROM ai_providers`,
		} {
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		if len(providers) > 0 {
			if err := tx.Create(&providers).Error; err != nil {
				return err
			}
		}
		if len(models) > 0 {
			if err := tx.Create(&models).Error; err != nil {
				return err
			}
		}
		if len(quotas) > 0 {
			if err := tx.Create(&quotas).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
