package subscription

import (
	"github.com/platewise/platewise/internal/subscription/repository"
	"github.com/platewise/platewise/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
