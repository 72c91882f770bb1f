package counter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veridex/tokenmeter/internal/clock"
	directorydomain "github.com/veridex/tokenmeter/internal/directory/domain"
)

var testIdentity = directorydomain.ResolvedIdentity{
	ProviderID:   42,
	ModelID:      99,
	ProviderName: "azure",
	ModelName:    "gpt-4.1",
}

func TestMemoryStoreAccumulates(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	store := NewMemoryStore(clk, 0)
	ctx := context.Background()

	events := []int64{100, 250, 50}
	var sum int64
	for _, tokens := range events {
		require.NoError(t, store.Record(ctx, testIdentity, TokenUsage{TotalTokens: tokens}))
		sum += tokens
	}

	for _, w := range Windows() {
		agg, err := store.Aggregate(ctx, testIdentity, w)
		require.NoError(t, err)
		assert.Equal(t, sum, agg.TotalTokens, "window %s", w)
		assert.Equal(t, int64(len(events)), agg.RequestCount, "window %s", w)
	}
}

func TestMemoryStoreMissingKeyIsZero(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	store := NewMemoryStore(clk, 0)

	agg, err := store.Aggregate(context.Background(), testIdentity, WindowMinute)
	require.NoError(t, err)
	assert.Equal(t, Aggregate{}, agg)
}

func TestMemoryStoreWindowExpiry(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	store := NewMemoryStore(clk, 0)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, testIdentity, TokenUsage{TotalTokens: 500}))

	agg, err := store.Aggregate(ctx, testIdentity, WindowMinute)
	require.NoError(t, err)
	assert.Equal(t, int64(500), agg.TotalTokens)

	clk.Advance(61 * time.Second)

	agg, err = store.Aggregate(ctx, testIdentity, WindowMinute)
	require.NoError(t, err)
	assert.Equal(t, Aggregate{}, agg, "expired minute window must read as zero")

	// Longer windows are still live.
	agg, err = store.Aggregate(ctx, testIdentity, WindowHour)
	require.NoError(t, err)
	assert.Equal(t, int64(500), agg.TotalTokens)
}

func TestMemoryStoreExpiryNotExtendedByIncrements(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	store := NewMemoryStore(clk, 0)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, testIdentity, TokenUsage{TotalTokens: 100}))
	clk.Advance(45 * time.Second)

	// A write inside the window must not push the minute expiry out.
	require.NoError(t, store.Record(ctx, testIdentity, TokenUsage{TotalTokens: 100}))
	clk.Advance(20 * time.Second)

	agg, err := store.Aggregate(ctx, testIdentity, WindowMinute)
	require.NoError(t, err)
	assert.Equal(t, Aggregate{}, agg)
}

func TestMemoryStoreNewWindowAfterExpiry(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	store := NewMemoryStore(clk, 0)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, testIdentity, TokenUsage{TotalTokens: 100}))
	clk.Advance(2 * time.Minute)
	require.NoError(t, store.Record(ctx, testIdentity, TokenUsage{TotalTokens: 30}))

	agg, err := store.Aggregate(ctx, testIdentity, WindowMinute)
	require.NoError(t, err)
	assert.Equal(t, Aggregate{TotalTokens: 30, RequestCount: 1}, agg)
}

func TestMemoryStoreConcurrentWriters(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	store := NewMemoryStore(clk, 0)
	ctx := context.Background()

	const writers = 32
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_ = store.Record(ctx, testIdentity, TokenUsage{TotalTokens: 10})
		}()
	}
	wg.Wait()

	agg, err := store.Aggregate(ctx, testIdentity, WindowDay)
	require.NoError(t, err)
	assert.Equal(t, int64(writers*10), agg.TotalTokens)
	assert.Equal(t, int64(writers), agg.RequestCount)
}

func TestSnapshotReadsAllWindows(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	store := NewMemoryStore(clk, 0)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, testIdentity, TokenUsage{TotalTokens: 200}))
	clk.Advance(2 * time.Minute)
	require.NoError(t, store.Record(ctx, testIdentity, TokenUsage{TotalTokens: 50}))

	snap, err := store.Snapshot(ctx, testIdentity)
	require.NoError(t, err)
	assert.Equal(t, int64(50), snap.Minute.TotalTokens)
	assert.Equal(t, int64(250), snap.Hour.TotalTokens)
	assert.Equal(t, int64(250), snap.Day.TotalTokens)
	assert.Equal(t, int64(2), snap.Day.RequestCount)
}
