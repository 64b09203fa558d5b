package domain

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	ActivatePlan(ctx context.Context, req ActivatePlanRequest) (Subscription, error)
	GetActive(ctx context.Context, orgID snowflake.ID) (Subscription, error)
	List(ctx context.Context, orgID snowflake.ID) ([]Subscription, error)
}

type ActivatePlanRequest struct {
	Plan           string
	UserID         snowflake.ID
	OrganizationID snowflake.ID
}

// InvalidPlanError is returned for a plan outside the accepted set. Its
// message is safe to show to the caller as is.
type InvalidPlanError struct {
	Plan string
}

func (e *InvalidPlanError) Error() string {
	valid := make([]string, 0, len(Plans()))
	for _, plan := range Plans() {
		valid = append(valid, string(plan))
	}
	return "Invalid plan: " + e.Plan + ". Must be one of: " + strings.Join(valid, ", ")
}

var (
	ErrInvalidOrganization  = errors.New("invalid_organization")
	ErrInvalidUser          = errors.New("invalid_user")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrConcurrentActivation = errors.New("concurrent_activation")
)
