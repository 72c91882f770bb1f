package meterware

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/veridex/tokenmeter/internal/counter"
	meterdomain "github.com/veridex/tokenmeter/internal/meter/domain"
	"github.com/veridex/tokenmeter/internal/quota"
	"go.uber.org/zap"
)

// -- Mocks --

type meterMock struct {
	mock.Mock
}

func (m *meterMock) CheckQuota(ctx context.Context, providerKey, modelKey string, estimatedTokens int64) (quota.CheckResult, error) {
	args := m.Called(ctx, providerKey, modelKey, estimatedTokens)
	return args.Get(0).(quota.CheckResult), args.Error(1)
}

func (m *meterMock) RecordTokenUsage(ctx context.Context, providerKey, modelKey string, usage counter.TokenUsage) {
	m.Called(ctx, providerKey, modelKey, usage)
}

func (m *meterMock) GetTokenStats(ctx context.Context, providerKey, modelKey string) quota.UsageSnapshot {
	return quota.UsageSnapshot{}
}

func (m *meterMock) GetUsageReport(ctx context.Context, providerKey, modelKey string) (meterdomain.Report, error) {
	return meterdomain.Report{}, nil
}

func testRequest() Request {
	return Request{
		Provider: "azure",
		Model:    "gpt-4.1",
		Messages: []Message{{Role: "user", Content: "summarize the attached evidence"}},
	}
}

func TestMeterRecordsActualUsage(t *testing.T) {
	meters := &meterMock{}
	meters.On("RecordTokenUsage", mock.Anything, "azure", "gpt-4.1", counter.TokenUsage{
		PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15,
	}).Once()

	var called bool
	call := Meter(func(ctx context.Context, req Request) (Response, error) {
		called = true
		return Response{
			Content: "done",
			Usage:   &Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		}, nil
	}, meters, zap.NewNop())

	resp, err := call(context.Background(), testRequest())
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "done", resp.Content)
	meters.AssertExpectations(t)
}

func TestMeterSkipsMissingUsage(t *testing.T) {
	meters := &meterMock{}

	call := Meter(func(ctx context.Context, req Request) (Response, error) {
		return Response{Content: "no usage reported"}, nil
	}, meters, zap.NewNop())

	_, err := call(context.Background(), testRequest())
	require.NoError(t, err)
	meters.AssertNotCalled(t, "RecordTokenUsage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMeterSkipsRecordingOnCallError(t *testing.T) {
	meters := &meterMock{}

	call := Meter(func(ctx context.Context, req Request) (Response, error) {
		return Response{}, errors.New("provider unavailable")
	}, meters, zap.NewNop())

	_, err := call(context.Background(), testRequest())
	assert.Error(t, err)
	meters.AssertNotCalled(t, "RecordTokenUsage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMeterFillsMissingTotal(t *testing.T) {
	meters := &meterMock{}
	meters.On("RecordTokenUsage", mock.Anything, "azure", "gpt-4.1", counter.TokenUsage{
		PromptTokens: 30, CompletionTokens: 12, TotalTokens: 42,
	}).Once()

	call := Meter(func(ctx context.Context, req Request) (Response, error) {
		return Response{Usage: &Usage{PromptTokens: 30, CompletionTokens: 12}}, nil
	}, meters, zap.NewNop())

	_, err := call(context.Background(), testRequest())
	require.NoError(t, err)
	meters.AssertExpectations(t)
}

func TestMeterWithQuotaDeniesBeforeCall(t *testing.T) {
	meters := &meterMock{}
	meters.On("CheckQuota", mock.Anything, "azure", "gpt-4.1", mock.Anything).
		Return(quota.CheckResult{Allowed: false, Reason: "per-minute limit exceeded"}, nil).Once()

	var called bool
	call := MeterWithQuota(func(ctx context.Context, req Request) (Response, error) {
		called = true
		return Response{}, nil
	}, meters, zap.NewNop())

	_, err := call(context.Background(), testRequest())
	require.Error(t, err)

	var quotaErr *QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, "azure", quotaErr.Provider)
	assert.Contains(t, quotaErr.Reason, "per-minute limit")
	assert.False(t, called, "denied calls must not reach the provider")
	meters.AssertExpectations(t)
}

func TestMeterWithQuotaAllowsAndRecords(t *testing.T) {
	meters := &meterMock{}
	meters.On("CheckQuota", mock.Anything, "azure", "gpt-4.1", mock.Anything).
		Return(quota.CheckResult{Allowed: true}, nil).Once()
	meters.On("RecordTokenUsage", mock.Anything, "azure", "gpt-4.1", counter.TokenUsage{
		PromptTokens: 8, CompletionTokens: 4, TotalTokens: 12,
	}).Once()

	call := MeterWithQuota(func(ctx context.Context, req Request) (Response, error) {
		return Response{Usage: &Usage{PromptTokens: 8, CompletionTokens: 4, TotalTokens: 12}}, nil
	}, meters, zap.NewNop())

	_, err := call(context.Background(), testRequest())
	require.NoError(t, err)
	meters.AssertExpectations(t)
}

func TestBillingIdentityOverride(t *testing.T) {
	meters := &meterMock{}
	meters.On("CheckQuota", mock.Anything, "openai", "gpt-4.1-mini", mock.Anything).
		Return(quota.CheckResult{Allowed: true}, nil).Once()
	meters.On("RecordTokenUsage", mock.Anything, "openai", "gpt-4.1-mini", mock.Anything).Once()

	var invoked Request
	call := MeterWithQuota(func(ctx context.Context, req Request) (Response, error) {
		invoked = req
		return Response{Usage: &Usage{TotalTokens: 5}}, nil
	}, meters, zap.NewNop(), WithBillingIdentity("openai", "gpt-4.1-mini"))

	_, err := call(context.Background(), testRequest())
	require.NoError(t, err)

	// The invoked identity is untouched; only metering is redirected.
	assert.Equal(t, "azure", invoked.Provider)
	assert.Equal(t, "gpt-4.1", invoked.Model)
	meters.AssertExpectations(t)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, int64(3), EstimateTokens(nil))

	messages := []Message{{Role: "user", Content: "12345678"}} // 8 chars -> 2 tokens
	assert.Equal(t, int64(2+4+3), EstimateTokens(messages))

	// Estimates grow with content length.
	longer := []Message{{Role: "user", Content: string(make([]byte, 4000))}}
	assert.Greater(t, EstimateTokens(longer), EstimateTokens(messages))
}
