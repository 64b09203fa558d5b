package server

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/insightboard/internal/authorization"
	invitationdomain "github.com/smallbiznis/insightboard/internal/invitation/domain"
)

type generateInvitationTokenRequest struct {
	Email          string `json:"email"`
	OrganizationID string `json:"organization_id"`
}

type createInvitationRequest struct {
	Email          string `json:"email"`
	Role           string `json:"role"`
	OrganizationID string `json:"organization_id"`
}

// authorizeInvitationCreate parses the organization named in a request body and
// checks the caller may create invitations for it.
func (s *Server) authorizeInvitationCreate(c *gin.Context, rawOrgID string) (snowflake.ID, error) {
	orgID, err := snowflake.ParseString(strings.TrimSpace(rawOrgID))
	if err != nil || orgID == 0 {
		return 0, newValidationError("organization_id", "invalid_organization_id", "invalid organization_id")
	}
	if err := s.authorizeForOrg(c, orgID, authorization.ObjectInvitation, authorization.ActionInvitationCreate); err != nil {
		return 0, err
	}
	return orgID, nil
}

func (s *Server) GenerateInvitationToken(c *gin.Context) {
	var req generateInvitationTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || strings.TrimSpace(req.OrganizationID) == "" {
		AbortWithError(c, missingFieldsError(
			requiredField{"email", email},
			requiredField{"organization_id", strings.TrimSpace(req.OrganizationID)},
		))
		return
	}

	orgID, err := s.authorizeInvitationCreate(c, req.OrganizationID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	token, err := s.invitationSvc.GenerateToken(c.Request.Context(), email, orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (s *Server) CreateInvitation(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || strings.TrimSpace(req.OrganizationID) == "" {
		AbortWithError(c, missingFieldsError(
			requiredField{"email", email},
			requiredField{"organization_id", strings.TrimSpace(req.OrganizationID)},
		))
		return
	}

	orgID, err := s.authorizeInvitationCreate(c, req.OrganizationID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.invitationSvc.Create(c.Request.Context(), invitationdomain.CreateInvitationRequest{
		Email:          email,
		Role:           strings.TrimSpace(req.Role),
		OrganizationID: orgID,
		InvitedBy:      userID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) ListInvitations(c *gin.Context) {
	orgID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	invitations, err := s.invitationSvc.ListPending(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if invitations == nil {
		invitations = []invitationdomain.Invitation{}
	}

	c.JSON(http.StatusOK, gin.H{"data": invitations})
}

func (s *Server) RevokeInvitation(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	orgID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	invitationID, err := parseIDParam(c, "invitationId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.invitationSvc.Revoke(c.Request.Context(), userID, orgID, invitationID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// AcceptInvitation joins the caller to the inviting organization. The
// caller's organization context is dropped so the next read reloads it.
func (s *Server) AcceptInvitation(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if limit := s.guard.AllowInviteAccept(c.Request.Context(), userID.String()); !limit.Allowed {
		if limit.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(limit.RetryAfter.Seconds()))))
		}
		AbortWithError(c, ErrTooManyRequests)
		return
	}

	result, err := s.invitationSvc.Accept(c.Request.Context(), c.Param("token"), invitationdomain.CurrentUser{
		ID:    userID,
		Email: s.emailFromSession(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.contexts.Invalidate(c.Request.Context(), userID)
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"organization_id": result.OrganizationID,
		"role":            result.Role,
		"already_member":  result.AlreadyMember,
	})
}
