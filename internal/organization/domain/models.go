// Package domain contains persistence models for the organization service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Organization represents a tenant.
type Organization struct {
	ID        snowflake.ID  `gorm:"primaryKey" json:"id"`
	Name      string        `gorm:"type:text;not null" json:"name"`
	Slug      string        `gorm:"type:varchar(191);not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	CreatedBy *snowflake.ID `gorm:"column:created_by" json:"created_by"`
	CreatedAt time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time     `gorm:"not null" json:"updated_at"`
}

func (Organization) TableName() string { return "organizations" }

// OrganizationMember is a user's membership in an organization.
type OrganizationMember struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrganizationID snowflake.ID  `gorm:"not null;uniqueIndex:ux_organization_members_org_user,priority:1" json:"organization_id"`
	UserID         snowflake.ID  `gorm:"not null;index;uniqueIndex:ux_organization_members_org_user,priority:2" json:"user_id"`
	Role           string        `gorm:"type:varchar(16);not null" json:"role"`
	InvitedBy      *snowflake.ID `gorm:"column:invited_by" json:"invited_by"`
	JoinedAt       time.Time     `gorm:"not null" json:"joined_at"`
	CreatedAt      time.Time     `gorm:"not null" json:"created_at"`
}

func (OrganizationMember) TableName() string { return "organization_members" }

// Profile rows are provisioned by the identity provider and only read here.
type Profile struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Email     string       `gorm:"type:varchar(320);not null" json:"email"`
	Name      *string      `gorm:"type:text" json:"name"`
	AvatarURL *string      `gorm:"type:text;column:avatar_url" json:"avatar_url"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }

// Membership is an organization joined with the caller's role in it.
type Membership struct {
	Organization
	Role string
}

type MemberWithProfile struct {
	OrganizationMember
	Email     *string
	Name      *string
	AvatarURL *string
}
