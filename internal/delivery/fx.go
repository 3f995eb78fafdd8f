package delivery

import (
	"github.com/smallbiznis/carebill/internal/delivery/repository"
	"github.com/smallbiznis/carebill/internal/delivery/service"
	"go.uber.org/fx"
)

var Module = fx.Module("delivery.service",
	fx.Provide(repository.Provide),
	fx.Provide(repository.ProvideEnqueuer),
	fx.Provide(service.New),
)
