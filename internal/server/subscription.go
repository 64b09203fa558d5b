package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/insightboard/internal/authorization"
	subscriptiondomain "github.com/smallbiznis/insightboard/internal/subscription/domain"
)

type activatePlanRequest struct {
	Plan           string `json:"plan"`
	OrganizationID string `json:"organization_id"`
}

func (s *Server) ListPlans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.plans.Get().Plans})
}

// ActivatePlan switches the organization's active subscription. Input is
// validated before the caller's role is checked so a malformed request never
// reaches the authorizer.
func (s *Server) ActivatePlan(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req activatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	plan := strings.TrimSpace(req.Plan)
	rawOrgID := strings.TrimSpace(req.OrganizationID)
	if plan == "" || rawOrgID == "" {
		AbortWithError(c, missingFieldsError(
			requiredField{"plan", plan},
			requiredField{"organization_id", rawOrgID},
		))
		return
	}
	if !subscriptiondomain.Plan(plan).Valid() {
		AbortWithError(c, &subscriptiondomain.InvalidPlanError{Plan: plan})
		return
	}

	orgID, err := snowflake.ParseString(rawOrgID)
	if err != nil || orgID == 0 {
		AbortWithError(c, newValidationError("organization_id", "invalid_organization_id", "invalid organization_id"))
		return
	}

	if err := s.authorizeForOrg(c, orgID, authorization.ObjectSubscription, authorization.ActionSubscriptionActivate); err != nil {
		AbortWithError(c, err)
		return
	}

	release, err := s.guard.LockActivation(c.Request.Context(), orgID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer release()

	sub, err := s.subscriptionSvc.ActivatePlan(c.Request.Context(), subscriptiondomain.ActivatePlanRequest{
		Plan:           plan,
		UserID:         userID,
		OrganizationID: orgID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"subscription": sub,
	})
}

func (s *Server) GetActiveSubscription(c *gin.Context) {
	orgID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	sub, err := s.subscriptionSvc.GetActive(c.Request.Context(), orgID)
	if err != nil {
		if errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound) {
			c.JSON(http.StatusOK, gin.H{"subscription": nil})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

func (s *Server) ListSubscriptions(c *gin.Context) {
	orgID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	subs, err := s.subscriptionSvc.List(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if subs == nil {
		subs = []subscriptiondomain.Subscription{}
	}

	c.JSON(http.StatusOK, gin.H{"data": subs})
}
