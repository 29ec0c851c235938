// Package app assembles the dependency graph of the tasklane API.
package app

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tasklane/internal/auth"
	"github.com/smallbiznis/tasklane/internal/authorization"
	"github.com/smallbiznis/tasklane/internal/clock"
	"github.com/smallbiznis/tasklane/internal/config"
	"github.com/smallbiznis/tasklane/internal/event"
	"github.com/smallbiznis/tasklane/internal/migration"
	"github.com/smallbiznis/tasklane/internal/observability"
	"github.com/smallbiznis/tasklane/internal/providers"
	"github.com/smallbiznis/tasklane/internal/ratelimit"
	"github.com/smallbiznis/tasklane/internal/server"
	"github.com/smallbiznis/tasklane/internal/task"
	"github.com/smallbiznis/tasklane/internal/uow"
	"github.com/smallbiznis/tasklane/internal/user"
	"github.com/smallbiznis/tasklane/pkg/db"
	"go.uber.org/fx"
)

// Options returns the full graph for cfg. The database and migrations are
// only wired for the gorm store driver.
func Options(cfg config.Config) fx.Option {
	opts := []fx.Option{
		// Core Infrastructure
		fx.Supply(cfg),
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		clock.Module,
		uow.Module,
		event.Module,
		providers.Module,
		ratelimit.Module,

		// Functional Domains
		authorization.Module,
		auth.Module,
		user.Module,
		task.Module,

		server.Module,
	}
	if cfg.StoreDriver == config.StoreDriverGorm {
		opts = append(opts, db.Module, migration.Module)
	}
	return fx.Options(opts...)
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
