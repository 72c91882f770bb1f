package domain

import (
	"context"

	"gorm.io/gorm"
)

// Repository loads directory records from durable storage.
type Repository interface {
	ListActiveProviders(ctx context.Context, db *gorm.DB) ([]Provider, error)
	ListActiveModels(ctx context.Context, db *gorm.DB) ([]Model, error)
	ListActiveQuotas(ctx context.Context, db *gorm.DB) ([]Quota, error)
	UpsertQuota(ctx context.Context, db *gorm.DB, quota *Quota) error
	ReplaceAll(ctx context.Context, db *gorm.DB, providers []Provider, models []Model, quotas []Quota) error
}
