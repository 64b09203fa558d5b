package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/insightboard/internal/clock"
	"github.com/smallbiznis/insightboard/internal/config"
	"github.com/smallbiznis/insightboard/internal/migration"
	"github.com/smallbiznis/insightboard/internal/observability"
	"github.com/smallbiznis/insightboard/internal/server"
	"github.com/smallbiznis/insightboard/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Every route group is registered by server.Module.
		server.Module,
	)
	app.Run()
}

// RegisterSnowflake uses SNOWFLAKE_NODE so replicas never mint the same ID.
func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
