package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
)

// Identity is the authenticated user behind a request.
type Identity struct {
	UserID snowflake.ID
	Email  string
}

// Claims is the access token payload. The subject carries the user id.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*Identity, error)
	Issue(identity Identity, ttl time.Duration) (string, error)
}
