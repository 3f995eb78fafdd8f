package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/audit"
	"github.com/smallbiznis/carebill/internal/client"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/config"
	"github.com/smallbiznis/carebill/internal/delivery"
	"github.com/smallbiznis/carebill/internal/document"
	"github.com/smallbiznis/carebill/internal/invoice"
	"github.com/smallbiznis/carebill/internal/lock"
	"github.com/smallbiznis/carebill/internal/observability"
	"github.com/smallbiznis/carebill/internal/providers"
	"github.com/smallbiznis/carebill/internal/rating"
	"github.com/smallbiznis/carebill/internal/scheduler"
	"github.com/smallbiznis/carebill/internal/timesheet"
	"github.com/smallbiznis/carebill/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		lock.Module,

		// Domain services required by the delivery jobs
		audit.Module,
		providers.Module,
		document.Module,
		rating.Module,
		client.Module,
		timesheet.Module,
		invoice.Module,
		delivery.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
