package timesheet

import (
	"github.com/smallbiznis/carebill/internal/timesheet/repository"
	"github.com/smallbiznis/carebill/internal/timesheet/service"
	"go.uber.org/fx"
)

var Module = fx.Module("timesheet.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
