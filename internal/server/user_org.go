package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/insightboard/internal/notify"
	"github.com/smallbiznis/insightboard/internal/orgcontext"
	"github.com/smallbiznis/insightboard/internal/orgcache"
	"github.com/smallbiznis/insightboard/internal/permission"
)

type organizationContextResponse struct {
	orgcontext.Snapshot
	Capabilities permission.Capabilities `json:"capabilities"`
	Notices      []notify.Notice         `json:"notices"`
}

type switchOrganizationRequest struct {
	OrganizationID string `json:"organization_id"`
}

func (s *Server) providerForRequest(c *gin.Context) (*orgcontext.Provider, bool) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return nil, false
	}
	provider, err := s.contexts.Get(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	return provider, true
}

func contextResponse(provider *orgcontext.Provider) organizationContextResponse {
	snapshot := provider.Snapshot()
	if snapshot.Organizations == nil {
		snapshot.Organizations = []orgcache.Organization{}
	}
	return organizationContextResponse{
		Snapshot:     snapshot,
		Capabilities: snapshot.Capabilities(),
		Notices:      provider.Notices(),
	}
}

// GetOrganizationContext never waits on the database for a returning user:
// the first read is served from cache while reconciliation runs.
func (s *Server) GetOrganizationContext(c *gin.Context) {
	provider, ok := s.providerForRequest(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, contextResponse(provider))
}

func (s *Server) SwitchOrganization(c *gin.Context) {
	var req switchOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.OrganizationID) == "" {
		AbortWithError(c, newValidationError("organization_id", "required", "organization_id is required"))
		return
	}

	provider, ok := s.providerForRequest(c)
	if !ok {
		return
	}
	if err := provider.Switch(c.Request.Context(), req.OrganizationID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, contextResponse(provider))
}

// RefreshOrganizationContext reloads memberships synchronously. A failed
// reload still answers with the retained state and its notices.
func (s *Server) RefreshOrganizationContext(c *gin.Context) {
	provider, ok := s.providerForRequest(c)
	if !ok {
		return
	}
	err := provider.Refresh(c.Request.Context())
	if errors.Is(err, orgcontext.ErrClosed) {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, contextResponse(provider))
}

// Navigation filters the sidebar by the role of the selected organization.
// Unknown roles see everything; server routes enforce access separately.
func (s *Server) Navigation(c *gin.Context) {
	provider, ok := s.providerForRequest(c)
	if !ok {
		return
	}
	snapshot := provider.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"member_role": snapshot.MemberRole,
		"items":       permission.VisibleNav(snapshot.MemberRole),
	})
}
