package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cdrbill/internal/cdr"
	"github.com/smallbiznis/cdrbill/internal/clock"
	"github.com/smallbiznis/cdrbill/internal/config"
	"github.com/smallbiznis/cdrbill/internal/customer"
	"github.com/smallbiznis/cdrbill/internal/invoice"
	"github.com/smallbiznis/cdrbill/internal/migration"
	"github.com/smallbiznis/cdrbill/internal/observability"
	"github.com/smallbiznis/cdrbill/internal/providers"
	"github.com/smallbiznis/cdrbill/internal/rating"
	"github.com/smallbiznis/cdrbill/internal/runlock"
	"github.com/smallbiznis/cdrbill/internal/scheduler"
	"github.com/smallbiznis/cdrbill/internal/server"
	"github.com/smallbiznis/cdrbill/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		runlock.Module,
		providers.Module,

		// Functional Domains
		rating.Module,
		customer.Module,
		cdr.Module,
		invoice.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
