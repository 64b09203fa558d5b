package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/insightboard/internal/organization/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) CreateOrganization(ctx context.Context, org domain.Organization) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO organizations (id, name, slug, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		org.ID,
		org.Name,
		org.Slug,
		org.CreatedBy,
		org.CreatedAt,
		org.UpdatedAt,
	).Error
}

func (r *repository) AddMember(ctx context.Context, member domain.OrganizationMember) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO organization_members (id, organization_id, user_id, role, invited_by, joined_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		member.ID,
		member.OrganizationID,
		member.UserID,
		member.Role,
		member.InvitedBy,
		member.JoinedAt,
		member.CreatedAt,
	).Error
}

func (r *repository) ListMembershipsByUser(ctx context.Context, userID snowflake.ID) ([]domain.Membership, error) {
	var items []domain.Membership
	err := r.db.WithContext(ctx).Raw(
		`SELECT o.id, o.name, o.slug, o.created_by, o.created_at, o.updated_at, m.role
		 FROM organization_members m
		 JOIN organizations o ON o.id = m.organization_id
		 WHERE m.user_id = ?
		 ORDER BY m.created_at ASC, o.id ASC`,
		userID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) FindMember(ctx context.Context, orgID, userID snowflake.ID) (*domain.OrganizationMember, error) {
	var member domain.OrganizationMember
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		Take(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *repository) FindMemberByID(ctx context.Context, orgID, memberID snowflake.ID) (*domain.OrganizationMember, error) {
	var member domain.OrganizationMember
	err := r.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", memberID, orgID).
		Take(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *repository) ListMembers(ctx context.Context, orgID snowflake.ID) ([]domain.MemberWithProfile, error) {
	var items []domain.MemberWithProfile
	err := r.db.WithContext(ctx).Raw(
		`SELECT m.id, m.organization_id, m.user_id, m.role, m.invited_by, m.joined_at, m.created_at,
		        p.email, p.name, p.avatar_url
		 FROM organization_members m
		 LEFT JOIN profiles p ON p.id = m.user_id
		 WHERE m.organization_id = ?
		 ORDER BY m.created_at DESC, m.id DESC`,
		orgID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) UpdateMemberRole(ctx context.Context, memberID snowflake.ID, role string) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE organization_members SET role = ? WHERE id = ?`,
		role,
		memberID,
	).Error
}

func (r *repository) DeleteMember(ctx context.Context, memberID snowflake.ID) error {
	return r.db.WithContext(ctx).Exec(
		`DELETE FROM organization_members WHERE id = ?`,
		memberID,
	).Error
}

func (r *repository) FindProfile(ctx context.Context, userID snowflake.ID) (*domain.Profile, error) {
	var profile domain.Profile
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, email, name, avatar_url, created_at, updated_at FROM profiles WHERE id = ? LIMIT 1`,
		userID,
	).Scan(&profile).Error
	if err != nil {
		return nil, err
	}
	if profile.ID == 0 {
		return nil, nil
	}
	return &profile, nil
}
