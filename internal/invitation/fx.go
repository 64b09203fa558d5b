package invitation

import (
	"github.com/smallbiznis/insightboard/internal/invitation/repository"
	"github.com/smallbiznis/insightboard/internal/invitation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invitation.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
