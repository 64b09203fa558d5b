package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// InviteTTL is how long an invitation stays acceptable after creation.
const InviteTTL = 7 * 24 * time.Hour

// TokenMaxLength bounds every token regardless of how it was generated.
const TokenMaxLength = 64

type Invitation struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrganizationID snowflake.ID  `gorm:"not null;index" json:"organization_id"`
	Email          string        `gorm:"type:varchar(320);not null" json:"email"`
	Role           string        `gorm:"type:varchar(16);not null" json:"role"`
	Token          string        `gorm:"type:varchar(64);not null;uniqueIndex:ux_invitations_token" json:"token"`
	ExpiresAt      time.Time     `gorm:"not null" json:"expires_at"`
	AcceptedAt     *time.Time    `json:"accepted_at"`
	InvitedBy      *snowflake.ID `json:"invited_by"`
	CreatedAt      time.Time     `gorm:"not null" json:"created_at"`
}

func (Invitation) TableName() string { return "invitations" }

// Expired reports whether the invitation can no longer be accepted at now.
func (i Invitation) Expired(now time.Time) bool {
	return i.ExpiresAt.Before(now)
}

func (i Invitation) Accepted() bool {
	return i.AcceptedAt != nil
}
