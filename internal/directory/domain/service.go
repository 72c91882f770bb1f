package domain

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// Service resolves human-facing provider/model names to canonical
// identities and quota configuration. Lookups are served from an immutable
// in-memory snapshot; mutations swap the whole snapshot atomically.
type Service interface {
	// Resolve parses providerKey (and modelKey when providerKey carries no
	// "provider:model" separator) and returns the canonical identity.
	Resolve(ctx context.Context, providerKey, modelKey string) (ResolvedIdentity, error)

	// QuotaForModel returns the active quota for a model, if one is configured.
	QuotaForModel(ctx context.Context, modelID snowflake.ID) (*Quota, bool)

	// AddQuotaToModel attaches a quota to an existing model, replacing any
	// quota previously active for it.
	AddQuotaToModel(ctx context.Context, modelID snowflake.ID, quota Quota) error

	// Replace seeds the directory with a full provider/model/quota set in a
	// single snapshot swap. Used by configuration loaders and test fixtures.
	Replace(ctx context.Context, providers []Provider, models []Model, quotas []Quota) error

	// Refresh reloads the snapshot from the backing store. Failures leave
	// the last-known-good snapshot in place.
	Refresh(ctx context.Context) error
}

var (
	ErrUnknownProvider = errors.New("unknown_provider")
	ErrUnknownModel    = errors.New("unknown_model")
	ErrUnknownModelID  = errors.New("unknown_model_id")
	ErrEmptyKey        = errors.New("empty_key")
)

// KeySeparator splits composite "provider:model" keys.
const KeySeparator = ":"

// ParseKey normalizes the two inbound calling conventions. When providerKey
// contains the separator it is split as provider:model and modelKey is
// ignored; otherwise both arguments are used as-is.
func ParseKey(providerKey, modelKey string) (providerName, modelName string) {
	providerKey = strings.TrimSpace(providerKey)
	if strings.Contains(providerKey, KeySeparator) {
		parts := strings.SplitN(providerKey, KeySeparator, 2)
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	}
	return providerKey, strings.TrimSpace(modelKey)
}
