package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/insightboard/internal/auth/domain"
	"github.com/smallbiznis/insightboard/internal/clock"
	"github.com/smallbiznis/insightboard/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Clock  clock.Clock
}

type Verifier struct {
	secret []byte
	issuer string
	log    *zap.Logger
	clock  clock.Clock
	parser *jwt.Parser
}

// New builds an HS256 verifier. An empty secret is allowed outside
// production so the service can boot; every token is rejected in that case.
func New(p Params) (domain.Verifier, error) {
	secret := strings.TrimSpace(p.Config.AuthJWTSecret)
	if secret == "" && p.Config.IsProduction() {
		return nil, domain.ErrSecretNotSet
	}

	log := p.Log.Named("auth.verifier")
	if secret == "" {
		log.Warn("AUTH_JWT_SECRET is empty, all requests will be unauthenticated")
	}

	return newVerifier(secret, p.Config.AuthJWTIssuer, p.Clock, log), nil
}

func newVerifier(secret, issuer string, clk clock.Clock, log *zap.Logger) *Verifier {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(clk.Now),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &Verifier{
		secret: []byte(secret),
		issuer: issuer,
		log:    log,
		clock:  clk,
		parser: jwt.NewParser(opts...),
	}
}

func (v *Verifier) Verify(ctx context.Context, rawToken string) (*domain.Identity, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, domain.ErrMissingToken
	}
	if len(v.secret) == 0 {
		return nil, domain.ErrInvalidToken
	}

	claims := &domain.Claims{}
	_, err := v.parser.ParseWithClaims(rawToken, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, domain.ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, domain.ErrUnexpectedIssuer
		default:
			v.log.Debug("token rejected", zap.Error(err))
			return nil, domain.ErrInvalidToken
		}
	}

	userID, err := snowflake.ParseString(strings.TrimSpace(claims.Subject))
	if err != nil || userID == 0 {
		return nil, domain.ErrInvalidSubject
	}

	return &domain.Identity{
		UserID: userID,
		Email:  strings.TrimSpace(claims.Email),
	}, nil
}

// Issue signs a token for identity. The service itself never logs users in;
// this exists for local tooling and tests.
func (v *Verifier) Issue(identity domain.Identity, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", domain.ErrSecretNotSet
	}
	if identity.UserID == 0 {
		return "", domain.ErrInvalidSubject
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	now := v.clock.Now()
	claims := domain.Claims{
		Email: identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID.String(),
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
