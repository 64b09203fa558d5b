package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrganization(ctx context.Context, org Organization) error
	AddMember(ctx context.Context, member OrganizationMember) error
	ListMembershipsByUser(ctx context.Context, userID snowflake.ID) ([]Membership, error)
	FindMember(ctx context.Context, orgID, userID snowflake.ID) (*OrganizationMember, error)
	FindMemberByID(ctx context.Context, orgID, memberID snowflake.ID) (*OrganizationMember, error)
	ListMembers(ctx context.Context, orgID snowflake.ID) ([]MemberWithProfile, error)
	UpdateMemberRole(ctx context.Context, memberID snowflake.ID, role string) error
	DeleteMember(ctx context.Context, memberID snowflake.ID) error
	FindProfile(ctx context.Context, userID snowflake.ID) (*Profile, error)
}
