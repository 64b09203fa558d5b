package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	invitationdomain "github.com/smallbiznis/insightboard/internal/invitation/domain"
	"gorm.io/gorm"
)

const selectColumns = `SELECT id, organization_id, email, role, token, expires_at, accepted_at,
	invited_by, created_at FROM invitations`

type repo struct{}

func Provide() invitationdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invitation *invitationdomain.Invitation) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invitations (
			id, organization_id, email, role, token, expires_at, accepted_at, invited_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invitation.ID,
		invitation.OrganizationID,
		invitation.Email,
		invitation.Role,
		invitation.Token,
		invitation.ExpiresAt,
		invitation.AcceptedAt,
		invitation.InvitedBy,
		invitation.CreatedAt,
	).Error
}

func (r *repo) FindByToken(ctx context.Context, db *gorm.DB, token string) (*invitationdomain.Invitation, error) {
	var invitation invitationdomain.Invitation
	err := db.WithContext(ctx).Raw(selectColumns+` WHERE token = ? LIMIT 1`, token).Scan(&invitation).Error
	if err != nil {
		return nil, err
	}
	if invitation.ID == 0 {
		return nil, nil
	}
	return &invitation, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*invitationdomain.Invitation, error) {
	var invitation invitationdomain.Invitation
	err := db.WithContext(ctx).Raw(
		selectColumns+` WHERE organization_id = ? AND id = ? LIMIT 1`,
		orgID,
		id,
	).Scan(&invitation).Error
	if err != nil {
		return nil, err
	}
	if invitation.ID == 0 {
		return nil, nil
	}
	return &invitation, nil
}

// MarkAccepted sets accepted_at only while it is still unset and reports
// whether this call won.
func (r *repo) MarkAccepted(ctx context.Context, db *gorm.DB, id snowflake.ID, acceptedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invitations SET accepted_at = ? WHERE id = ? AND accepted_at IS NULL`,
		acceptedAt,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListPending(ctx context.Context, db *gorm.DB, orgID snowflake.ID, now time.Time) ([]invitationdomain.Invitation, error) {
	var invitations []invitationdomain.Invitation
	err := db.WithContext(ctx).Raw(
		selectColumns+` WHERE organization_id = ? AND accepted_at IS NULL AND expires_at >= ?
		ORDER BY created_at DESC, id DESC`,
		orgID,
		now,
	).Scan(&invitations).Error
	if err != nil {
		return nil, err
	}
	return invitations, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM invitations WHERE organization_id = ? AND id = ?`,
		orgID,
		id,
	).Error
}

// GenerateToken asks postgres for a token via generate_invitation_token.
func (r *repo) GenerateToken(ctx context.Context, db *gorm.DB) (string, error) {
	if db.Dialector.Name() != "postgres" {
		return "", invitationdomain.ErrTokenFunctionUnavailable
	}
	var token string
	if err := db.WithContext(ctx).Raw(`SELECT generate_invitation_token()`).Scan(&token).Error; err != nil {
		return "", err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", invitationdomain.ErrTokenFunctionUnavailable
	}
	return token, nil
}
