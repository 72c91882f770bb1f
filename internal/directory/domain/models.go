// Package domain contains the provider/model directory read model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Provider is a canonical AI provider identity.
type Provider struct {
	ID          snowflake.ID                `json:"id" gorm:"primaryKey"`
	Name        string                      `json:"name" gorm:"type:text;not null;uniqueIndex"`
	DisplayName string                      `json:"display_name" gorm:"type:text;not null"`
	Aliases     datatypes.JSONSlice[string] `json:"aliases" gorm:"type:jsonb"`
	Active      bool                        `json:"active" gorm:"not null;default:true"`
	CreatedAt   time.Time                   `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time                   `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Provider) TableName() string { return "ai_providers" }

// Model is a canonical model identity owned by exactly one provider.
type Model struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	ProviderID  snowflake.ID `json:"provider_id" gorm:"not null;index:ux_models_provider_name,priority:1"`
	Name        string       `json:"name" gorm:"type:text;not null;index:ux_models_provider_name,priority:2"`
	DisplayName string       `json:"display_name" gorm:"type:text;not null"`
	Active      bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Model) TableName() string { return "ai_models" }

// Quota configures token limits for a single model. A nil limit means
// no cap on that dimension. At most one active quota exists per model.
type Quota struct {
	ID                  snowflake.ID `json:"id" gorm:"primaryKey"`
	ModelID             snowflake.ID `json:"model_id" gorm:"not null;index"`
	MaxTokensPerMessage *int64       `json:"max_tokens_per_message,omitempty"`
	MaxTokensPerMinute  *int64       `json:"max_tokens_per_minute,omitempty"`
	MaxTokensPerDay     *int64       `json:"max_tokens_per_day,omitempty"`
	Active              bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt           time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt           time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Quota) TableName() string { return "ai_model_quotas" }

// ResolvedIdentity is the canonical (provider, model) pair produced by the
// directory. Every downstream component keys counters and ledger rows off it.
type ResolvedIdentity struct {
	ProviderID   snowflake.ID
	ModelID      snowflake.ID
	ProviderName string
	ModelName    string
}
