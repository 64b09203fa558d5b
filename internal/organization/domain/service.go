package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/insightboard/internal/permission"
)

type Service interface {
	Create(ctx context.Context, userID snowflake.ID, req CreateOrganizationRequest) (*OrganizationResponse, error)
	ListMemberships(ctx context.Context, userID snowflake.ID) ([]MembershipResponse, error)
	GetMemberRole(ctx context.Context, orgID, userID snowflake.ID) (permission.Role, error)
	IsMember(ctx context.Context, orgID, userID snowflake.ID) (bool, error)
	ListMembers(ctx context.Context, orgID snowflake.ID) ([]MemberResponse, error)
	UpdateMemberRole(ctx context.Context, actorID snowflake.ID, req UpdateMemberRoleRequest) (*MemberResponse, error)
	RemoveMember(ctx context.Context, actorID snowflake.ID, orgID, memberID snowflake.ID) (*MemberResponse, error)
	GetProfile(ctx context.Context, userID snowflake.ID) (*MemberProfile, error)
}

type CreateOrganizationRequest struct {
	Name string
}

type UpdateMemberRoleRequest struct {
	OrganizationID snowflake.ID
	MemberID       snowflake.ID
	Role           string
}

type OrganizationResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedBy *string   `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type MembershipResponse struct {
	Organization OrganizationResponse `json:"organization"`
	Role         permission.Role      `json:"role"`
}

type MemberProfile struct {
	Email     *string `json:"email"`
	Name      *string `json:"name"`
	AvatarURL *string `json:"avatar_url"`
}

type MemberResponse struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	UserID         string         `json:"user_id"`
	Role           string         `json:"role"`
	InvitedBy      *string        `json:"invited_by"`
	JoinedAt       time.Time      `json:"joined_at"`
	CreatedAt      time.Time      `json:"created_at"`
	Profile        *MemberProfile `json:"profile"`
}

var (
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidRole         = errors.New("invalid_role")
	ErrNotMember           = errors.New("not_member")
	ErrMemberNotFound      = errors.New("member_not_found")
	ErrOwnerImmutable      = errors.New("owner_immutable")
	ErrSlugTaken           = errors.New("slug_taken")
	ErrProfileNotFound     = errors.New("profile_not_found")
)
