package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storesplit/internal/access"
	"github.com/smallbiznis/storesplit/internal/allocation"
	"github.com/smallbiznis/storesplit/internal/audit"
	"github.com/smallbiznis/storesplit/internal/cashledger"
	"github.com/smallbiznis/storesplit/internal/clock"
	"github.com/smallbiznis/storesplit/internal/config"
	"github.com/smallbiznis/storesplit/internal/expense"
	"github.com/smallbiznis/storesplit/internal/logger"
	"github.com/smallbiznis/storesplit/internal/migration"
	"github.com/smallbiznis/storesplit/internal/observability"
	"github.com/smallbiznis/storesplit/internal/providers/pdf"
	"github.com/smallbiznis/storesplit/internal/ratelimit"
	"github.com/smallbiznis/storesplit/internal/server"
	"github.com/smallbiznis/storesplit/internal/store"
	"github.com/smallbiznis/storesplit/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Collaborators
		audit.Module,
		access.Module,
		cashledger.Module,
		expense.Module,
		store.Module,

		// Allocation core and its HTTP surface
		allocation.Module,
		pdf.Module,
		ratelimit.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
