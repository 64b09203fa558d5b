package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindActive(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*Subscription, error)
	FindActiveForUpdate(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*Subscription, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status SubscriptionStatus, updatedAt time.Time) error
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]Subscription, error)
}
