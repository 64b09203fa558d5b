package orgcontext

import (
	orgdomain "github.com/smallbiznis/insightboard/internal/organization/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("orgcontext",
	fx.Provide(func(svc orgdomain.Service) MembershipSource { return svc }),
	fx.Provide(NewRegistry),
)
