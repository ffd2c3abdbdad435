package main

import (
	"github.com/aware88/fresh-crm/internal/clock"
	"github.com/aware88/fresh-crm/internal/config"
	"github.com/aware88/fresh-crm/internal/migration"
	"github.com/aware88/fresh-crm/internal/observability"
	"github.com/aware88/fresh-crm/internal/scheduler"
	"github.com/aware88/fresh-crm/internal/server"
	"github.com/aware88/fresh-crm/pkg/db"
	"github.com/bwmarrin/snowflake"
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

		server.Module,
		scheduler.Module,
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
