package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veridex/tokenmeter/internal/config"
	directorydomain "github.com/veridex/tokenmeter/internal/directory/domain"
	directoryservice "github.com/veridex/tokenmeter/internal/directory/service"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&directorydomain.Provider{},
		&directorydomain.Model{},
		&directorydomain.Quota{},
	))
	return db
}

func seedRecords(t *testing.T, node *snowflake.Node) ([]directorydomain.Provider, []directorydomain.Model, []directorydomain.Quota) {
	t.Helper()

	now := time.Now().UTC()
	provider := directorydomain.Provider{
		ID:          node.Generate(),
		Name:        "azure",
		DisplayName: "Azure OpenAI",
		Aliases:     datatypes.NewJSONSlice([]string{"azure-openai"}),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	inactive := directorydomain.Provider{
		ID:        node.Generate(),
		Name:      "legacy",
		Active:    false,
		CreatedAt: now,
		UpdatedAt: now,
	}
	model := directorydomain.Model{
		ID:          node.Generate(),
		ProviderID:  provider.ID,
		Name:        "gpt-4.1",
		DisplayName: "GPT-4.1",
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	limit := int64(1000)
	quota := directorydomain.Quota{
		ID:                 node.Generate(),
		ModelID:            model.ID,
		MaxTokensPerMinute: &limit,
		Active:             true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	return []directorydomain.Provider{provider, inactive},
		[]directorydomain.Model{model},
		[]directorydomain.Quota{quota}
}

func TestReplaceAllAndListActive(t *testing.T) {
	db := openTestDB(t)
	repo := Provide()
	ctx := context.Background()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	providers, models, quotas := seedRecords(t, node)

	require.NoError(t, repo.ReplaceAll(ctx, db, providers, models, quotas))

	gotProviders, err := repo.ListActiveProviders(ctx, db)
	require.NoError(t, err)
	require.Len(t, gotProviders, 1, "inactive providers are filtered out")
	assert.Equal(t, "azure", gotProviders[0].Name)
	assert.Equal(t, []string{"azure-openai"}, []string(gotProviders[0].Aliases))

	gotModels, err := repo.ListActiveModels(ctx, db)
	require.NoError(t, err)
	require.Len(t, gotModels, 1)
	assert.Equal(t, "gpt-4.1", gotModels[0].Name)

	gotQuotas, err := repo.ListActiveQuotas(ctx, db)
	require.NoError(t, err)
	require.Len(t, gotQuotas, 1)
	require.NotNil(t, gotQuotas[0].MaxTokensPerMinute)
	assert.Equal(t, int64(1000), *gotQuotas[0].MaxTokensPerMinute)

	// A second ReplaceAll fully supersedes the first.
	require.NoError(t, repo.ReplaceAll(ctx, db, nil, nil, nil))
	gotProviders, err = repo.ListActiveProviders(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, gotProviders)
}

func TestUpsertQuotaDeactivatesPrevious(t *testing.T) {
	db := openTestDB(t)
	repo := Provide()
	ctx := context.Background()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	providers, models, quotas := seedRecords(t, node)
	require.NoError(t, repo.ReplaceAll(ctx, db, providers, models, quotas))

	limit := int64(500)
	now := time.Now().UTC()
	replacement := directorydomain.Quota{
		ID:                 node.Generate(),
		ModelID:            models[0].ID,
		MaxTokensPerMinute: &limit,
		Active:             true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	require.NoError(t, repo.UpsertQuota(ctx, db, &replacement))

	active, err := repo.ListActiveQuotas(ctx, db)
	require.NoError(t, err)
	require.Len(t, active, 1, "at most one quota stays active per model")
	assert.Equal(t, replacement.ID, active[0].ID)
}

func TestServiceRefreshFromDatabase(t *testing.T) {
	db := openTestDB(t)
	repo := Provide()
	ctx := context.Background()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	providers, models, quotas := seedRecords(t, node)
	require.NoError(t, repo.ReplaceAll(ctx, db, providers, models, quotas))

	svc := directoryservice.New(directoryservice.Params{
		Cfg:  config.Config{},
		Log:  zap.NewNop(),
		DB:   db,
		Repo: repo,
	})

	// Empty until the first refresh.
	_, err = svc.Resolve(ctx, "azure", "gpt-4.1")
	assert.ErrorIs(t, err, directorydomain.ErrUnknownProvider)

	require.NoError(t, svc.Refresh(ctx))

	id, err := svc.Resolve(ctx, "azure-openai", "gpt-4.1")
	require.NoError(t, err)
	assert.Equal(t, providers[0].ID, id.ProviderID)

	quotaRecord, ok := svc.QuotaForModel(ctx, id.ModelID)
	require.True(t, ok)
	assert.Equal(t, int64(1000), *quotaRecord.MaxTokensPerMinute)
}
