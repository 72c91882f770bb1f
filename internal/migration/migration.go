// Package migration creates the engine tables on startup so the module is
// usable out of the box for local and self-hosted environments.
package migration

import (
	"errors"

	directorydomain "github.com/veridex/tokenmeter/internal/directory/domain"
	"github.com/veridex/tokenmeter/internal/recorder"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func Run(db *gorm.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}
	return db.AutoMigrate(
		&directorydomain.Provider{},
		&directorydomain.Model{},
		&directorydomain.Quota{},
		&recorder.UsageLedgerEntry{},
	)
}

// Module applies schema migrations before anything reads the database.
var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB) error {
		return Run(conn)
	}),
)
