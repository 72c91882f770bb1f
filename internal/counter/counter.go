// Package counter tracks token usage in rolling minute/hour/day windows
// keyed by canonical (provider, model) identity.
package counter

import (
	"context"
	"fmt"
	"time"

	directorydomain "github.com/veridex/tokenmeter/internal/directory/domain"
)

// Window is a fixed-length rolling bucket for usage aggregation.
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
)

// Windows returns all windows in increasing length order.
func Windows() [3]Window {
	return [3]Window{WindowMinute, WindowHour, WindowDay}
}

// Length returns the window duration.
func (w Window) Length() time.Duration {
	switch w {
	case WindowMinute:
		return time.Minute
	case WindowHour:
		return time.Hour
	case WindowDay:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// TTL returns the expiry applied when the window key is first created. The
// grace margin avoids flicker at the window boundary.
func (w Window) TTL(grace time.Duration) time.Duration {
	return w.Length() + grace
}

// TokenUsage is one usage event attributed to a provider/model pair.
type TokenUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Aggregate is the accumulated usage inside one window. The zero value is
// the valid "no usage recorded" state.
type Aggregate struct {
	TotalTokens  int64 `json:"total_tokens"`
	RequestCount int64 `json:"request_count"`
}

// Snapshot holds all three window aggregates for one identity.
type Snapshot struct {
	Minute Aggregate `json:"minute"`
	Hour   Aggregate `json:"hour"`
	Day    Aggregate `json:"day"`
}

// Store persists window aggregates. Implementations must apply a single
// usage event to all three windows atomically and must never extend a
// window's expiry after creation.
type Store interface {
	// Record applies one usage event to the minute, hour and day windows.
	Record(ctx context.Context, id directorydomain.ResolvedIdentity, usage TokenUsage) error

	// Aggregate reads one window. A missing or expired key yields the zero
	// aggregate, not an error.
	Aggregate(ctx context.Context, id directorydomain.ResolvedIdentity, w Window) (Aggregate, error)

	// Snapshot reads all three windows.
	Snapshot(ctx context.Context, id directorydomain.ResolvedIdentity) (Snapshot, error)
}

// Key returns the store key for one (provider, model, window) counter.
func Key(id directorydomain.ResolvedIdentity, w Window) string {
	return fmt.Sprintf("usage:tokens:%d:%d:%s", id.ProviderID, id.ModelID, w)
}
