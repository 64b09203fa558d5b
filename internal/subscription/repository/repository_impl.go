package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/insightboard/internal/subscription/domain"
	"gorm.io/gorm"
)

const selectColumns = `SELECT id, user_id, organization_id, plan, status, current_period_start,
	current_period_end, created_at, updated_at FROM subscriptions`

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, user_id, organization_id, plan, status, current_period_start,
			current_period_end, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.UserID,
		subscription.OrganizationID,
		subscription.Plan,
		subscription.Status,
		subscription.CurrentPeriodStart,
		subscription.CurrentPeriodEnd,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

func (r *repo) FindActive(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.findActive(ctx, db, orgID, false)
}

// FindActiveForUpdate row-locks the active subscription on dialects that
// support it. sqlite serializes writers and has no FOR UPDATE.
func (r *repo) FindActiveForUpdate(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.findActive(ctx, db, orgID, db.Dialector.Name() != "sqlite")
}

func (r *repo) findActive(ctx context.Context, db *gorm.DB, orgID snowflake.ID, lock bool) (*subscriptiondomain.Subscription, error) {
	query := selectColumns + ` WHERE organization_id = ? AND status = ? ORDER BY created_at DESC LIMIT 1`
	if lock {
		query += ` FOR UPDATE`
	}

	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(query, orgID, subscriptiondomain.SubscriptionStatusActive).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status subscriptiondomain.SubscriptionStatus, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		updatedAt,
		id,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		selectColumns+` WHERE organization_id = ? ORDER BY created_at DESC, id DESC`,
		orgID,
	).Scan(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}
