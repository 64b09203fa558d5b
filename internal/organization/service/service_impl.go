package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/insightboard/internal/audit/domain"
	"github.com/smallbiznis/insightboard/internal/clock"
	"github.com/smallbiznis/insightboard/internal/organization/domain"
	"github.com/smallbiznis/insightboard/internal/permission"
	dbpkg "github.com/smallbiznis/insightboard/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
	Audit auditdomain.Service `optional:"true"`
}

type service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
	audit auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &service{
		db:    p.DB,
		log:   p.Log.Named("organization.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		audit: p.Audit,
	}
}

func (s *service) Create(ctx context.Context, userID snowflake.ID, req domain.CreateOrganizationRequest) (*domain.OrganizationResponse, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := s.clock.Now().UTC()
	orgID := s.genID.Generate()
	creator := userID
	org := domain.Organization{
		ID:        orgID,
		Name:      name,
		Slug:      slug.Make(name) + "-" + strings.ToLower(orgID.Base36()),
		CreatedBy: &creator,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateOrganization(ctx, org); err != nil {
			if dbpkg.IsDuplicateKeyErr(err) {
				return domain.ErrSlugTaken
			}
			return err
		}
		return repo.AddMember(ctx, domain.OrganizationMember{
			ID:             s.genID.Generate(),
			OrganizationID: orgID,
			UserID:         userID,
			Role:           string(permission.RoleOwner),
			JoinedAt:       now,
			CreatedAt:      now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, auditdomain.RecordRequest{
		OrganizationID: orgID,
		ActorID:        userID,
		Action:         auditdomain.ActionOrganizationCreated,
		TargetType:     "organization",
		TargetID:       orgID.String(),
		Metadata:       map[string]any{"name": name},
	})

	resp := toOrganizationResponse(org)
	return &resp, nil
}

func (s *service) ListMemberships(ctx context.Context, userID snowflake.ID) ([]domain.MembershipResponse, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	items, err := s.repo.ListMembershipsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.MembershipResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, domain.MembershipResponse{
			Organization: toOrganizationResponse(item.Organization),
			Role:         permission.ParseRole(item.Role),
		})
	}
	return resp, nil
}

func (s *service) GetMemberRole(ctx context.Context, orgID, userID snowflake.ID) (permission.Role, error) {
	if orgID == 0 {
		return permission.RoleUnknown, domain.ErrInvalidOrganization
	}
	if userID == 0 {
		return permission.RoleUnknown, domain.ErrInvalidUser
	}
	member, err := s.repo.FindMember(ctx, orgID, userID)
	if err != nil {
		return permission.RoleUnknown, err
	}
	if member == nil {
		return permission.RoleUnknown, domain.ErrNotMember
	}
	return permission.ParseRole(member.Role), nil
}

func (s *service) IsMember(ctx context.Context, orgID, userID snowflake.ID) (bool, error) {
	member, err := s.repo.FindMember(ctx, orgID, userID)
	if err != nil {
		return false, err
	}
	return member != nil, nil
}

func (s *service) ListMembers(ctx context.Context, orgID snowflake.ID) ([]domain.MemberResponse, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	items, err := s.repo.ListMembers(ctx, orgID)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.MemberResponse, 0, len(items))
	for _, item := range items {
		member := toMemberResponse(item.OrganizationMember)
		if item.Email != nil {
			member.Profile = &domain.MemberProfile{
				Email:     item.Email,
				Name:      item.Name,
				AvatarURL: item.AvatarURL,
			}
		}
		resp = append(resp, member)
	}
	return resp, nil
}

func (s *service) UpdateMemberRole(ctx context.Context, actorID snowflake.ID, req domain.UpdateMemberRoleRequest) (*domain.MemberResponse, error) {
	if req.OrganizationID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	role := permission.ParseRole(req.Role)
	if !permission.IsInvitable(role) {
		return nil, domain.ErrInvalidRole
	}

	var updated domain.OrganizationMember
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		member, err := repo.FindMemberByID(ctx, req.OrganizationID, req.MemberID)
		if err != nil {
			return err
		}
		if member == nil {
			return domain.ErrMemberNotFound
		}
		if permission.ParseRole(member.Role) == permission.RoleOwner {
			return domain.ErrOwnerImmutable
		}
		if err := repo.UpdateMemberRole(ctx, member.ID, string(role)); err != nil {
			return err
		}
		member.Role = string(role)
		updated = *member
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, auditdomain.RecordRequest{
		OrganizationID: req.OrganizationID,
		ActorID:        actorID,
		Action:         auditdomain.ActionMemberRoleUpdated,
		TargetType:     "member",
		TargetID:       updated.ID.String(),
		Metadata:       map[string]any{"role": string(role), "user_id": updated.UserID.String()},
	})

	resp := toMemberResponse(updated)
	return &resp, nil
}

func (s *service) RemoveMember(ctx context.Context, actorID snowflake.ID, orgID, memberID snowflake.ID) (*domain.MemberResponse, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	var removed domain.OrganizationMember
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		member, err := repo.FindMemberByID(ctx, orgID, memberID)
		if err != nil {
			return err
		}
		if member == nil {
			return domain.ErrMemberNotFound
		}
		if permission.ParseRole(member.Role) == permission.RoleOwner {
			return domain.ErrOwnerImmutable
		}
		removed = *member
		return repo.DeleteMember(ctx, member.ID)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, auditdomain.RecordRequest{
		OrganizationID: orgID,
		ActorID:        actorID,
		Action:         auditdomain.ActionMemberRemoved,
		TargetType:     "member",
		TargetID:       removed.ID.String(),
		Metadata:       map[string]any{"user_id": removed.UserID.String(), "role": removed.Role},
	})

	resp := toMemberResponse(removed)
	return &resp, nil
}

func (s *service) GetProfile(ctx context.Context, userID snowflake.ID) (*domain.MemberProfile, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	profile, err := s.repo.FindProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, domain.ErrProfileNotFound
	}
	email := profile.Email
	return &domain.MemberProfile{
		Email:     &email,
		Name:      profile.Name,
		AvatarURL: profile.AvatarURL,
	}, nil
}

func (s *service) record(ctx context.Context, req auditdomain.RecordRequest) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, req); err != nil {
		s.log.Warn("activity log not recorded", zap.String("action", req.Action), zap.Error(err))
	}
}

func toOrganizationResponse(org domain.Organization) domain.OrganizationResponse {
	resp := domain.OrganizationResponse{
		ID:        org.ID.String(),
		Name:      org.Name,
		Slug:      org.Slug,
		CreatedAt: org.CreatedAt,
		UpdatedAt: org.UpdatedAt,
	}
	if org.CreatedBy != nil {
		createdBy := org.CreatedBy.String()
		resp.CreatedBy = &createdBy
	}
	return resp
}

func toMemberResponse(member domain.OrganizationMember) domain.MemberResponse {
	resp := domain.MemberResponse{
		ID:             member.ID.String(),
		OrganizationID: member.OrganizationID.String(),
		UserID:         member.UserID.String(),
		Role:           member.Role,
		JoinedAt:       member.JoinedAt,
		CreatedAt:      member.CreatedAt,
	}
	if member.InvitedBy != nil {
		invitedBy := member.InvitedBy.String()
		resp.InvitedBy = &invitedBy
	}
	return resp
}
