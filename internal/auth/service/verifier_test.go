package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/insightboard/internal/auth/domain"
	"github.com/smallbiznis/insightboard/internal/clock"
	"github.com/smallbiznis/insightboard/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIssueAndVerify(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	v := newVerifier("secret", "insightboard", clk, zap.NewNop())

	token, err := v.Issue(domain.Identity{UserID: snowflake.ID(42), Email: "a@example.com"}, time.Hour)
	require.NoError(t, err)

	identity, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(42), identity.UserID)
	assert.Equal(t, "a@example.com", identity.Email)
}

func TestVerifyExpired(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	v := newVerifier("secret", "", clk, nil)

	token, err := v.Issue(domain.Identity{UserID: 7}, time.Minute)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	_, err = v.Verify(context.Background(), token)
	require.ErrorIs(t, err, domain.ErrTokenExpired)
}

func TestVerifyRejectsWrongSecretAndIssuer(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	issuer := newVerifier("secret", "other", clk, nil)
	token, err := issuer.Issue(domain.Identity{UserID: 7}, time.Hour)
	require.NoError(t, err)

	_, err = newVerifier("different", "", clk, nil).Verify(context.Background(), token)
	require.ErrorIs(t, err, domain.ErrInvalidToken)

	_, err = newVerifier("secret", "insightboard", clk, nil).Verify(context.Background(), token)
	require.ErrorIs(t, err, domain.ErrUnexpectedIssuer)
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	claims := domain.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "7",
		ExpiresAt: jwt.NewNumericDate(clk.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = newVerifier("secret", "", clk, nil).Verify(context.Background(), token)
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestVerifyRejectsBadSubject(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	claims := domain.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "not-a-number",
		ExpiresAt: jwt.NewNumericDate(clk.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = newVerifier("secret", "", clk, nil).Verify(context.Background(), token)
	require.ErrorIs(t, err, domain.ErrInvalidSubject)
}

func TestVerifyMissingToken(t *testing.T) {
	v := newVerifier("secret", "", nil, nil)
	_, err := v.Verify(context.Background(), "  ")
	require.ErrorIs(t, err, domain.ErrMissingToken)
}

func TestNewRequiresSecretInProduction(t *testing.T) {
	_, err := New(Params{
		Config: config.Config{Environment: "production"},
		Log:    zap.NewNop(),
		Clock:  clock.SystemClock{},
	})
	require.ErrorIs(t, err, domain.ErrSecretNotSet)

	v, err := New(Params{Config: config.Config{}, Log: zap.NewNop(), Clock: clock.SystemClock{}})
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), "abc")
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}
