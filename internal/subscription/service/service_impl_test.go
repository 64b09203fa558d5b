package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/insightboard/internal/audit/domain"
	"github.com/smallbiznis/insightboard/internal/clock"
	"github.com/smallbiznis/insightboard/internal/migration"
	subscriptiondomain "github.com/smallbiznis/insightboard/internal/subscription/domain"
	"github.com/smallbiznis/insightboard/internal/subscription/repository"
	dbpkg "github.com/smallbiznis/insightboard/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordedAudit struct {
	mu      sync.Mutex
	entries []auditdomain.RecordRequest
}

func (r *recordedAudit) Record(_ context.Context, req auditdomain.RecordRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, req)
	return nil
}

func (r *recordedAudit) List(context.Context, auditdomain.ListActivityRequest) (auditdomain.ListActivityResponse, error) {
	return auditdomain.ListActivityResponse{}, nil
}

type testEnv struct {
	db    *gorm.DB
	clock *clock.FakeClock
	audit *recordedAudit
	svc   subscriptiondomain.Service
}

func setup(t *testing.T) testEnv {
	t.Helper()

	db := dbpkg.NewTest(t)
	require.NoError(t, migration.AutoMigrate(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	audit := &recordedAudit{}
	svc := NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  repository.Provide(),
		Audit: audit,
	})
	return testEnv{db: db, clock: fake, audit: audit, svc: svc}
}

func countByStatus(t *testing.T, db *gorm.DB, orgID snowflake.ID, status subscriptiondomain.SubscriptionStatus) int64 {
	t.Helper()
	var count int64
	err := db.Model(&subscriptiondomain.Subscription{}).
		Where("organization_id = ? AND status = ?", orgID, status).
		Count(&count).Error
	require.NoError(t, err)
	return count
}

func TestActivatePlanCreatesThirtyDayPeriod(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	sub, err := env.svc.ActivatePlan(ctx, subscriptiondomain.ActivatePlanRequest{
		Plan:           "pro",
		UserID:         7,
		OrganizationID: 100,
	})
	require.NoError(t, err)

	assert.Equal(t, subscriptiondomain.PlanPro, sub.Plan)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, env.clock.Now(), sub.CurrentPeriodStart)
	assert.Equal(t, 30*24*time.Hour, sub.CurrentPeriodEnd.Sub(sub.CurrentPeriodStart))
	assert.EqualValues(t, 1, countByStatus(t, env.db, 100, subscriptiondomain.SubscriptionStatusActive))

	require.Len(t, env.audit.entries, 1)
	assert.Equal(t, auditdomain.ActionSubscriptionActivate, env.audit.entries[0].Action)
}

func TestActivatePlanSamePlanIsNoop(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	req := subscriptiondomain.ActivatePlanRequest{Plan: "free", UserID: 7, OrganizationID: 100}

	first, err := env.svc.ActivatePlan(ctx, req)
	require.NoError(t, err)

	env.clock.Advance(time.Hour)
	second, err := env.svc.ActivatePlan(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.CurrentPeriodStart.Equal(second.CurrentPeriodStart))
	assert.EqualValues(t, 1, countByStatus(t, env.db, 100, subscriptiondomain.SubscriptionStatusActive))
	assert.EqualValues(t, 0, countByStatus(t, env.db, 100, subscriptiondomain.SubscriptionStatusCanceled))
	assert.Len(t, env.audit.entries, 1, "a no-op activation is not logged")
}

func TestActivatePlanSupersedesPreviousPlan(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	s1, err := env.svc.ActivatePlan(ctx, subscriptiondomain.ActivatePlanRequest{Plan: "free", UserID: 1, OrganizationID: 42})
	require.NoError(t, err)

	env.clock.Advance(24 * time.Hour)
	s2, err := env.svc.ActivatePlan(ctx, subscriptiondomain.ActivatePlanRequest{Plan: "pro", UserID: 1, OrganizationID: 42})
	require.NoError(t, err)

	require.NotEqual(t, s1.ID, s2.ID)
	assert.Equal(t, subscriptiondomain.PlanPro, s2.Plan)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, s2.Status)
	assert.Equal(t, subscriptiondomain.PeriodLength, s2.CurrentPeriodEnd.Sub(s2.CurrentPeriodStart))

	var old subscriptiondomain.Subscription
	require.NoError(t, env.db.First(&old, "id = ?", s1.ID).Error)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusCanceled, old.Status)
	assert.True(t, old.CurrentPeriodStart.Equal(s1.CurrentPeriodStart), "period is untouched on cancel")
	assert.True(t, old.CurrentPeriodEnd.Equal(s1.CurrentPeriodEnd), "period is untouched on cancel")

	assert.EqualValues(t, 1, countByStatus(t, env.db, 42, subscriptiondomain.SubscriptionStatusActive))
	assert.EqualValues(t, 1, countByStatus(t, env.db, 42, subscriptiondomain.SubscriptionStatusCanceled))

	active, err := env.svc.GetActive(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, s2.ID, active.ID)

	history, err := env.svc.List(ctx, 42)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, s2.ID, history[0].ID)
	assert.Equal(t, "free", env.audit.entries[1].Metadata["previous_plan"])
}

func TestActivatePlanRejectsInvalidPlan(t *testing.T) {
	env := setup(t)

	_, err := env.svc.ActivatePlan(context.Background(), subscriptiondomain.ActivatePlanRequest{
		Plan:           "gold",
		UserID:         1,
		OrganizationID: 42,
	})

	var invalid *subscriptiondomain.InvalidPlanError
	require.True(t, errors.As(err, &invalid), "got %v", err)
	assert.Equal(t, "Invalid plan: gold. Must be one of: free, pro, enterprise", err.Error())

	var count int64
	require.NoError(t, env.db.Model(&subscriptiondomain.Subscription{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestActivatePlanRequiresOrganizationAndUser(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	_, err := env.svc.ActivatePlan(ctx, subscriptiondomain.ActivatePlanRequest{Plan: "pro", UserID: 1})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidOrganization)

	_, err = env.svc.ActivatePlan(ctx, subscriptiondomain.ActivatePlanRequest{Plan: "pro", OrganizationID: 1})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidUser)
}

func TestActivatePlanMapsUniqueViolationToConflict(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	// A row that the lookup cannot see stands in for a concurrent winner.
	svc := NewService(ServiceParam{
		DB:    env.db,
		Log:   zap.NewNop(),
		GenID: mustNode(t),
		Clock: env.clock,
		Repo:  blindRepo{Repository: repository.Provide()},
	})
	_, err := env.svc.ActivatePlan(ctx, subscriptiondomain.ActivatePlanRequest{Plan: "free", UserID: 1, OrganizationID: 9})
	require.NoError(t, err)

	_, err = svc.ActivatePlan(ctx, subscriptiondomain.ActivatePlanRequest{Plan: "pro", UserID: 1, OrganizationID: 9})
	assert.ErrorIs(t, err, subscriptiondomain.ErrConcurrentActivation)
	assert.EqualValues(t, 1, countByStatus(t, env.db, 9, subscriptiondomain.SubscriptionStatusActive))
}

func TestGetActiveWithoutSubscription(t *testing.T) {
	env := setup(t)

	_, err := env.svc.GetActive(context.Background(), 5)
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)

	items, err := env.svc.List(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, items)
}

type blindRepo struct {
	subscriptiondomain.Repository
}

func (blindRepo) FindActiveForUpdate(context.Context, *gorm.DB, snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return nil, nil
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	return node
}
