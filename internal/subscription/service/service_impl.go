package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/insightboard/internal/audit/domain"
	"github.com/smallbiznis/insightboard/internal/clock"
	"github.com/smallbiznis/insightboard/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/insightboard/internal/subscription/domain"
	dbpkg "github.com/smallbiznis/insightboard/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	outcomeCreated   = "created"
	outcomeUnchanged = "unchanged"
	outcomeFailed    = "failed"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID *snowflake.Node
	clock clock.Clock
	repo  subscriptiondomain.Repository

	audit          auditdomain.Service
	metrics        *metrics.Metrics
	contextMetrics *metrics.ContextMetrics
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  subscriptiondomain.Repository

	Audit          auditdomain.Service     `optional:"true"`
	Metrics        *metrics.Metrics        `optional:"true"`
	ContextMetrics *metrics.ContextMetrics `optional:"true"`
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,

		audit:          p.Audit,
		metrics:        p.Metrics,
		contextMetrics: p.ContextMetrics,
	}
}

// ActivatePlan makes plan the organization's single active subscription.
// Lookup, cancellation and insert share one transaction, and the partial
// unique index on active rows rejects a concurrent winner.
func (s *Service) ActivatePlan(ctx context.Context, req subscriptiondomain.ActivatePlanRequest) (subscriptiondomain.Subscription, error) {
	plan := subscriptiondomain.Plan(req.Plan)
	if !plan.Valid() {
		return subscriptiondomain.Subscription{}, &subscriptiondomain.InvalidPlanError{Plan: req.Plan}
	}
	if req.OrganizationID == 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidOrganization
	}
	if req.UserID == 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidUser
	}

	now := s.clock.Now().UTC()
	var (
		result    subscriptiondomain.Subscription
		previous  *subscriptiondomain.Subscription
		unchanged bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindActiveForUpdate(ctx, tx, req.OrganizationID)
		if err != nil {
			return err
		}
		if current != nil && current.Plan == plan {
			result = *current
			unchanged = true
			return nil
		}
		if current != nil {
			if err := s.repo.UpdateStatus(ctx, tx, current.ID, subscriptiondomain.SubscriptionStatusCanceled, now); err != nil {
				return err
			}
			previous = current
		}

		result = subscriptiondomain.Subscription{
			ID:                 s.genID.Generate(),
			UserID:             req.UserID,
			OrganizationID:     req.OrganizationID,
			Plan:               plan,
			Status:             subscriptiondomain.SubscriptionStatusActive,
			CurrentPeriodStart: now,
			CurrentPeriodEnd:   now.Add(subscriptiondomain.PeriodLength),
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		return s.repo.Insert(ctx, tx, &result)
	})
	if err != nil {
		s.metrics.RecordPlanActivation(ctx, string(plan), outcomeFailed)
		s.contextMetrics.IncWorkflowError("activate_plan", err)
		if dbpkg.IsDuplicateKeyErr(err) {
			return subscriptiondomain.Subscription{}, subscriptiondomain.ErrConcurrentActivation
		}
		s.log.Error("plan activation failed",
			zap.String("organization_id", req.OrganizationID.String()),
			zap.String("plan", string(plan)),
			zap.Error(err),
		)
		return subscriptiondomain.Subscription{}, err
	}

	if unchanged {
		s.metrics.RecordPlanActivation(ctx, string(plan), outcomeUnchanged)
		return result, nil
	}

	s.metrics.RecordPlanActivation(ctx, string(plan), outcomeCreated)
	metadata := map[string]any{"plan": string(plan)}
	if previous != nil {
		metadata["previous_plan"] = string(previous.Plan)
		metadata["previous_subscription_id"] = previous.ID.String()
	}
	s.record(ctx, auditdomain.RecordRequest{
		OrganizationID: req.OrganizationID,
		ActorID:        req.UserID,
		Action:         auditdomain.ActionSubscriptionActivate,
		TargetType:     "subscription",
		TargetID:       result.ID.String(),
		Metadata:       metadata,
	})
	s.log.Info("plan activated",
		zap.String("organization_id", req.OrganizationID.String()),
		zap.String("plan", string(plan)),
	)

	return result, nil
}

func (s *Service) GetActive(ctx context.Context, orgID snowflake.ID) (subscriptiondomain.Subscription, error) {
	if orgID == 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidOrganization
	}
	item, err := s.repo.FindActive(ctx, s.db, orgID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if item == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, orgID snowflake.ID) ([]subscriptiondomain.Subscription, error) {
	if orgID == 0 {
		return nil, subscriptiondomain.ErrInvalidOrganization
	}
	items, err := s.repo.List(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []subscriptiondomain.Subscription{}
	}
	return items, nil
}

func (s *Service) record(ctx context.Context, req auditdomain.RecordRequest) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, req); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("activity log not recorded", zap.String("action", req.Action), zap.Error(err))
	}
}
