package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/veridex/tokenmeter/internal/clock"
	"github.com/veridex/tokenmeter/internal/config"
	"github.com/veridex/tokenmeter/internal/counter"
	"github.com/veridex/tokenmeter/internal/directory"
	"github.com/veridex/tokenmeter/internal/logger"
	"github.com/veridex/tokenmeter/internal/meter"
	"github.com/veridex/tokenmeter/internal/metrics"
	"github.com/veridex/tokenmeter/internal/migration"
	"github.com/veridex/tokenmeter/internal/quota"
	"github.com/veridex/tokenmeter/internal/recorder"
	"github.com/veridex/tokenmeter/internal/seed"
	"github.com/veridex/tokenmeter/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		metrics.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Metering engine
		directory.Module,
		counter.Module,
		quota.Module,
		recorder.Module,
		meter.Module,

		fx.Invoke(func(conn *gorm.DB, node *snowflake.Node) error {
			return seed.EnsureDefaultDirectory(conn, node)
		}),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
