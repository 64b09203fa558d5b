package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/insightboard/internal/authorization"
	"github.com/smallbiznis/insightboard/internal/orgcontext"
)

// authorizeOrgAction gates a route on the caller's role in the organization
// named by the :id path parameter.
func (s *Server) authorizeOrgAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, err := parseIDParam(c, "id")
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if err := s.authorizeForOrg(c, orgID, object, action); err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := orgcontext.WithOrgID(c.Request.Context(), orgID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// authorizeForOrg is fail-closed: a missing user, a missing authorizer and any
// lookup failure all deny.
func (s *Server) authorizeForOrg(c *gin.Context, orgID snowflake.ID, object string, action string) error {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		return ErrUnauthorized
	}
	if s.authzSvc == nil {
		return ErrForbidden
	}
	return s.authzSvc.Authorize(
		c.Request.Context(),
		authorization.UserActor(userID),
		orgID.String(),
		strings.TrimSpace(object),
		strings.TrimSpace(action),
	)
}
