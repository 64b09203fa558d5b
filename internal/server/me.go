package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/insightboard/internal/orgcache"
	"go.uber.org/zap"
)

type meResponse struct {
	ID      string            `json:"id"`
	Email   string            `json:"email"`
	Profile *orgcache.Profile `json:"profile"`
}

// Me serves the avatar and display name from the profile cache, falling back
// to the profiles table on a miss. A missing profile row is not an error.
func (s *Server) Me(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	ctx := c.Request.Context()
	resp := meResponse{
		ID:    userID.String(),
		Email: s.emailFromSession(c),
	}

	if cached, hit := s.profiles.Get(ctx, userID.String()); hit {
		resp.Profile = &cached
		c.JSON(http.StatusOK, resp)
		return
	}

	profile, err := s.organizationSvc.GetProfile(ctx, userID)
	if err == nil && profile != nil {
		var avatarURL, name string
		if profile.AvatarURL != nil {
			avatarURL = *profile.AvatarURL
		}
		if profile.Name != nil {
			name = *profile.Name
		}
		s.profiles.Set(ctx, userID.String(), avatarURL, name)
		resp.Profile = &orgcache.Profile{AvatarURL: avatarURL, Name: name}
	} else if err != nil {
		s.log.Debug("profile lookup failed", zap.Error(err))
	}

	c.JSON(http.StatusOK, resp)
}

// Logout clears the session cookie and, for a still valid token, the
// caller's cached profile.
func (s *Server) Logout(c *gin.Context) {
	if token, ok := s.sessions.ReadToken(c); ok {
		if identity, err := s.verifier.Verify(c.Request.Context(), token); err == nil {
			s.profiles.Clear(c.Request.Context(), identity.UserID.String())
		}
	}
	s.sessions.Clear(c)
	c.Status(http.StatusNoContent)
}
