package domain

import "errors"

var (
	ErrMissingToken     = errors.New("missing_token")
	ErrInvalidToken     = errors.New("invalid_token")
	ErrTokenExpired     = errors.New("token_expired")
	ErrInvalidSubject   = errors.New("invalid_subject")
	ErrSecretNotSet     = errors.New("auth_secret_not_configured")
	ErrUnexpectedIssuer = errors.New("unexpected_issuer")
)
