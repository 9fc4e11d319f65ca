package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/platewise/platewise/internal/config"
	"github.com/platewise/platewise/internal/migration"
	"github.com/platewise/platewise/internal/observability"
	"github.com/platewise/platewise/internal/server"
	"github.com/platewise/platewise/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		server.Module,
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
