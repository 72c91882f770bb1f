// Package recorder writes usage events to a durable ledger for
// long-horizon reporting, distinct from the short-TTL rolling counters.
package recorder

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UsageLedgerEntry accumulates token usage per (provider, model, period).
// Period is a UTC day bucket in "2006-01-02" form.
type UsageLedgerEntry struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	ProviderID       snowflake.ID `json:"provider_id" gorm:"not null;uniqueIndex:ux_usage_ledger_key,priority:1"`
	ModelID          snowflake.ID `json:"model_id" gorm:"not null;uniqueIndex:ux_usage_ledger_key,priority:2"`
	Period           string       `json:"period" gorm:"type:text;not null;uniqueIndex:ux_usage_ledger_key,priority:3"`
	PromptTokens     int64        `json:"prompt_tokens" gorm:"not null;default:0"`
	CompletionTokens int64        `json:"completion_tokens" gorm:"not null;default:0"`
	TotalTokens      int64        `json:"total_tokens" gorm:"not null;default:0"`
	RequestCount     int64        `json:"request_count" gorm:"not null;default:0"`
	CreatedAt        time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UsageLedgerEntry) TableName() string { return "ai_usage_ledger" }
