package cashledger

import (
	"github.com/smallbiznis/storesplit/internal/cashledger/repository"
	"github.com/smallbiznis/storesplit/internal/cashledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("cashledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
