package orgcontext

import (
	"context"

	"github.com/bwmarrin/snowflake"
	orgdomain "github.com/smallbiznis/insightboard/internal/organization/domain"
	"github.com/smallbiznis/insightboard/internal/permission"
)

//go:generate mockgen -source=source.go -destination=./mocks/mock_source.go -package=mocks

// MembershipSource is the authoritative backend for a user's memberships.
// The organization service implements it.
type MembershipSource interface {
	ListMemberships(ctx context.Context, userID snowflake.ID) ([]orgdomain.MembershipResponse, error)
	GetMemberRole(ctx context.Context, orgID, userID snowflake.ID) (permission.Role, error)
}
