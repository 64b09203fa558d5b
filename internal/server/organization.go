package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	organizationdomain "github.com/smallbiznis/insightboard/internal/organization/domain"
)

type createOrganizationRequest struct {
	Name string `json:"name"`
}

type updateMemberRoleRequest struct {
	Role string `json:"role"`
}

func (s *Server) CreateOrganization(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	org, err := s.organizationSvc.Create(c.Request.Context(), userID, organizationdomain.CreateOrganizationRequest{
		Name: strings.TrimSpace(req.Name),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.contexts.Invalidate(c.Request.Context(), userID)
	c.JSON(http.StatusCreated, gin.H{"organization": org})
}

func (s *Server) ListMembers(c *gin.Context) {
	orgID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	members, err := s.organizationSvc.ListMembers(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": members})
}

func (s *Server) UpdateMemberRole(c *gin.Context) {
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
	memberID, err := parseIDParam(c, "memberId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updateMemberRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	member, err := s.organizationSvc.UpdateMemberRole(c.Request.Context(), userID, organizationdomain.UpdateMemberRoleRequest{
		OrganizationID: orgID,
		MemberID:       memberID,
		Role:           req.Role,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"member": member})
}

func (s *Server) RemoveMember(c *gin.Context) {
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
	memberID, err := parseIDParam(c, "memberId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	removed, err := s.organizationSvc.RemoveMember(c.Request.Context(), userID, orgID, memberID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if removedUserID, err := snowflake.ParseString(removed.UserID); err == nil {
		s.contexts.Invalidate(c.Request.Context(), removedUserID)
	}
	c.Status(http.StatusNoContent)
}
