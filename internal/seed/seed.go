// Package seed bootstraps a default provider/model directory for fresh
// installations.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	directorydomain "github.com/veridex/tokenmeter/internal/directory/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EnsureDefaultDirectory inserts a starter provider/model set when the
// directory is empty. Existing records are left untouched.
func EnsureDefaultDirectory(db *gorm.DB, node *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&directorydomain.Provider{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		now := time.Now().UTC()
		for _, def := range defaultProviders {
			provider := directorydomain.Provider{
				ID:          node.Generate(),
				Name:        def.name,
				DisplayName: def.display,
				Aliases:     datatypes.NewJSONSlice(def.aliases),
				Active:      true,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := tx.Create(&provider).Error; err != nil {
				return err
			}
			for _, modelName := range def.models {
				model := directorydomain.Model{
					ID:          node.Generate(),
					ProviderID:  provider.ID,
					Name:        modelName,
					DisplayName: modelName,
					Active:      true,
					CreatedAt:   now,
					UpdatedAt:   now,
				}
				if err := tx.Create(&model).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

type providerDef struct {
	name    string
	display string
	aliases []string
	models  []string
}

var defaultProviders = []providerDef{
	{
		name:    "openai",
		display: "OpenAI",
		aliases: []string{"oai"},
		models:  []string{"gpt-4.1", "gpt-4.1-mini", "gpt-4o"},
	},
	{
		name:    "azure",
		display: "Azure OpenAI",
		aliases: []string{"azure-openai"},
		models:  []string{"gpt-4.1", "gpt-4o"},
	},
	{
		name:    "anthropic",
		display: "Anthropic",
		aliases: []string{"claude"},
		models:  []string{"claude-sonnet-4-5", "claude-haiku-4-5"},
	},
}
