package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	ActionOrganizationCreated  = "organization.created"
	ActionOrganizationSwitched = "organization.switched"
	ActionSubscriptionActivate = "subscription.activated"
	ActionInvitationCreated    = "invitation.created"
	ActionInvitationAccepted   = "invitation.accepted"
	ActionInvitationRevoked    = "invitation.revoked"
	ActionMemberRoleUpdated    = "member.role_updated"
	ActionMemberRemoved        = "member.removed"
	ActionAuthorizationDenied  = "authorization.denied"
)

// ActivityLog is an append-only record of a change made inside an organization.
type ActivityLog struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrganizationID snowflake.ID      `gorm:"not null;index:idx_activity_logs_org_created,priority:1" json:"organization_id"`
	ActorID        *snowflake.ID     `json:"actor_id,omitempty"`
	Action         string            `gorm:"type:text;not null" json:"action"`
	TargetType     string            `gorm:"type:text;not null" json:"target_type"`
	TargetID       *string           `gorm:"type:text" json:"target_id,omitempty"`
	Metadata       datatypes.JSONMap `json:"metadata"`
	CreatedAt      time.Time         `gorm:"not null;index:idx_activity_logs_org_created,priority:2" json:"created_at"`
}

func (ActivityLog) TableName() string { return "activity_logs" }

type ActivityCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	OrganizationID snowflake.ID
	Action         string
	TargetType     string
	Cursor         *ActivityCursor
	Limit          int
}
