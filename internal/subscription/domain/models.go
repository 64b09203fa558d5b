package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// Plans returns the accepted plan codes in display order.
func Plans() []Plan {
	return []Plan{PlanFree, PlanPro, PlanEnterprise}
}

func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
)

// PeriodLength is the fixed length of every billing period regardless of plan.
const PeriodLength = 30 * 24 * time.Hour

// Subscription records which plan an organization is on. At most one row per
// organization has status active.
type Subscription struct {
	ID                 snowflake.ID       `gorm:"primaryKey" json:"id"`
	UserID             snowflake.ID       `gorm:"not null" json:"user_id"`
	OrganizationID     snowflake.ID       `gorm:"not null;index:idx_subscriptions_org_status,priority:1" json:"organization_id"`
	Plan               Plan               `gorm:"type:varchar(16);not null" json:"plan"`
	Status             SubscriptionStatus `gorm:"type:varchar(16);not null;index:idx_subscriptions_org_status,priority:2" json:"status"`
	CurrentPeriodStart time.Time          `gorm:"not null" json:"current_period_start"`
	CurrentPeriodEnd   time.Time          `gorm:"not null" json:"current_period_end"`
	CreatedAt          time.Time          `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time          `gorm:"not null" json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }
