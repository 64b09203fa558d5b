package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreateInvitationRequest struct {
	Email          string
	Role           string
	OrganizationID snowflake.ID
	InvitedBy      snowflake.ID
}

type CreateInvitationResponse struct {
	Invitation Invitation `json:"invitation"`
	URL        string     `json:"url"`
}

// CurrentUser is the authenticated caller accepting an invitation.
type CurrentUser struct {
	ID    snowflake.ID
	Email string
}

type AcceptResult struct {
	OrganizationID snowflake.ID `json:"organization_id"`
	Role           string       `json:"role"`
	// AlreadyMember is set when the caller belonged to the organization
	// before accepting. No membership row is written in that case.
	AlreadyMember bool `json:"already_member"`
}

type Service interface {
	GenerateToken(ctx context.Context, email string, orgID snowflake.ID) (string, error)
	Create(ctx context.Context, req CreateInvitationRequest) (CreateInvitationResponse, error)
	Accept(ctx context.Context, token string, user CurrentUser) (AcceptResult, error)
	ListPending(ctx context.Context, orgID snowflake.ID) ([]Invitation, error)
	Revoke(ctx context.Context, actorID, orgID, invitationID snowflake.ID) error
	InviteURL(token string) string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invitation *Invitation) error
	FindByToken(ctx context.Context, db *gorm.DB, token string) (*Invitation, error)
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Invitation, error)
	MarkAccepted(ctx context.Context, db *gorm.DB, id snowflake.ID, acceptedAt time.Time) (bool, error)
	ListPending(ctx context.Context, db *gorm.DB, orgID snowflake.ID, now time.Time) ([]Invitation, error)
	Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error
	GenerateToken(ctx context.Context, db *gorm.DB) (string, error)
}

// EmailMismatchError carries both addresses so the caller can be told which
// account the invitation was meant for.
type EmailMismatchError struct {
	InvitedEmail string
	CurrentEmail string
}

func (e *EmailMismatchError) Error() string {
	return fmt.Sprintf("This invitation was sent to %s, but you are logged in as %s", e.InvitedEmail, e.CurrentEmail)
}

func (e *EmailMismatchError) Is(target error) bool {
	return target == ErrEmailMismatch
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidEmail        = errors.New("invalid_email")
	ErrInvalidRole         = errors.New("invalid_role")
	ErrInvalidToken        = errors.New("invalid_token")
	ErrInvalidUser         = errors.New("invalid_user")
	ErrNotFound            = errors.New("invitation_not_found")
	ErrExpired             = errors.New("invitation_expired")
	ErrAlreadyAccepted     = errors.New("invitation_already_accepted")
	ErrEmailMismatch       = errors.New("email_mismatch")
	ErrTokenTaken          = errors.New("token_taken")

	// ErrTokenFunctionUnavailable means the database has no token generator
	// and the caller should fall back to local generation.
	ErrTokenFunctionUnavailable = errors.New("token_function_unavailable")
)
