package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/insightboard/internal/audit/domain"
	"github.com/smallbiznis/insightboard/internal/clock"
	"github.com/smallbiznis/insightboard/internal/config"
	invitationdomain "github.com/smallbiznis/insightboard/internal/invitation/domain"
	"github.com/smallbiznis/insightboard/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/insightboard/internal/organization/domain"
	"github.com/smallbiznis/insightboard/internal/permission"
	dbpkg "github.com/smallbiznis/insightboard/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxCreateAttempts bounds retries when a generated token collides with an
// existing one.
const maxCreateAttempts = 3

const (
	acceptOutcomeJoined        = "joined"
	acceptOutcomeAlreadyMember = "already_member"
	acceptOutcomeRejected      = "rejected"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Config  config.Config
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    invitationdomain.Repository
	OrgRepo orgdomain.Repository

	Audit          auditdomain.Service     `optional:"true"`
	Metrics        *metrics.Metrics        `optional:"true"`
	ContextMetrics *metrics.ContextMetrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	baseURL string

	genID   *snowflake.Node
	clock   clock.Clock
	repo    invitationdomain.Repository
	orgRepo orgdomain.Repository
	nonce   func() string

	audit          auditdomain.Service
	metrics        *metrics.Metrics
	contextMetrics *metrics.ContextMetrics
}

func NewService(p ServiceParam) invitationdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("invitation.service"),
		baseURL: strings.TrimRight(p.Config.PublicBaseURL, "/"),

		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		orgRepo: p.OrgRepo,
		nonce:   newNonce,

		audit:          p.Audit,
		metrics:        p.Metrics,
		contextMetrics: p.ContextMetrics,
	}
}

// GenerateToken prefers the database generator and falls back to a local
// token when it is missing or fails.
func (s *Service) GenerateToken(ctx context.Context, email string, orgID snowflake.ID) (string, error) {
	if orgID == 0 {
		return "", invitationdomain.ErrInvalidOrganization
	}
	email = strings.TrimSpace(email)
	if !validEmail(email) {
		return "", invitationdomain.ErrInvalidEmail
	}

	token, err := s.repo.GenerateToken(ctx, s.db)
	if err == nil {
		if token = sanitizeToken(token); token != "" {
			return token, nil
		}
	}
	if err != nil && !errors.Is(err, invitationdomain.ErrTokenFunctionUnavailable) {
		s.log.Warn("database token generation failed, using local token", zap.Error(err))
	}

	s.metrics.RecordTokenFallback(ctx)
	return localToken(s.nonce(), email, orgID, s.clock.Now()), nil
}

func (s *Service) Create(ctx context.Context, req invitationdomain.CreateInvitationRequest) (invitationdomain.CreateInvitationResponse, error) {
	if req.OrganizationID == 0 {
		return invitationdomain.CreateInvitationResponse{}, invitationdomain.ErrInvalidOrganization
	}
	email := strings.TrimSpace(req.Email)
	if !validEmail(email) {
		return invitationdomain.CreateInvitationResponse{}, invitationdomain.ErrInvalidEmail
	}
	role := permission.RoleMember
	if strings.TrimSpace(req.Role) != "" {
		role = permission.ParseRole(req.Role)
	}
	if !permission.IsInvitable(role) {
		return invitationdomain.CreateInvitationResponse{}, invitationdomain.ErrInvalidRole
	}

	var invitation invitationdomain.Invitation
	for attempt := 1; ; attempt++ {
		token, err := s.GenerateToken(ctx, email, req.OrganizationID)
		if err != nil {
			return invitationdomain.CreateInvitationResponse{}, err
		}

		now := s.clock.Now().UTC()
		invitation = invitationdomain.Invitation{
			ID:             s.genID.Generate(),
			OrganizationID: req.OrganizationID,
			Email:          email,
			Role:           string(role),
			Token:          token,
			ExpiresAt:      now.Add(invitationdomain.InviteTTL),
			CreatedAt:      now,
		}
		if req.InvitedBy != 0 {
			invitedBy := req.InvitedBy
			invitation.InvitedBy = &invitedBy
		}

		err = s.repo.Insert(ctx, s.db, &invitation)
		if err == nil {
			break
		}
		if !dbpkg.IsDuplicateKeyErr(err) {
			s.contextMetrics.IncWorkflowError("create_invitation", err)
			return invitationdomain.CreateInvitationResponse{}, err
		}
		if attempt == maxCreateAttempts {
			s.contextMetrics.IncWorkflowError("create_invitation", err)
			return invitationdomain.CreateInvitationResponse{}, invitationdomain.ErrTokenTaken
		}
		s.log.Warn("invitation token collision, regenerating", zap.Int("attempt", attempt))
	}

	s.metrics.RecordInvitationCreated(ctx, string(role))
	s.record(ctx, auditdomain.RecordRequest{
		OrganizationID: req.OrganizationID,
		ActorID:        req.InvitedBy,
		Action:         auditdomain.ActionInvitationCreated,
		TargetType:     "invitation",
		TargetID:       invitation.ID.String(),
		Metadata:       map[string]any{"email": email, "role": string(role)},
	})

	return invitationdomain.CreateInvitationResponse{
		Invitation: invitation,
		URL:        s.InviteURL(invitation.Token),
	}, nil
}

// Accept validates the invitation in a fixed order and stops at the first
// failure. Membership insert and acceptance share a transaction.
func (s *Service) Accept(ctx context.Context, token string, user invitationdomain.CurrentUser) (invitationdomain.AcceptResult, error) {
	result, err := s.accept(ctx, token, user)
	switch {
	case err != nil:
		s.metrics.RecordInvitationAccepted(ctx, acceptOutcomeRejected)
	case result.AlreadyMember:
		s.metrics.RecordInvitationAccepted(ctx, acceptOutcomeAlreadyMember)
	default:
		s.metrics.RecordInvitationAccepted(ctx, acceptOutcomeJoined)
	}
	return result, err
}

func (s *Service) accept(ctx context.Context, token string, user invitationdomain.CurrentUser) (invitationdomain.AcceptResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return invitationdomain.AcceptResult{}, invitationdomain.ErrInvalidToken
	}
	if user.ID == 0 {
		return invitationdomain.AcceptResult{}, invitationdomain.ErrInvalidUser
	}

	invitation, err := s.repo.FindByToken(ctx, s.db, token)
	if err != nil {
		return invitationdomain.AcceptResult{}, err
	}
	if invitation == nil {
		return invitationdomain.AcceptResult{}, invitationdomain.ErrNotFound
	}

	now := s.clock.Now().UTC()
	if invitation.Expired(now) {
		return invitationdomain.AcceptResult{}, invitationdomain.ErrExpired
	}
	if invitation.Accepted() {
		return invitationdomain.AcceptResult{}, invitationdomain.ErrAlreadyAccepted
	}

	existing, err := s.orgRepo.FindMember(ctx, invitation.OrganizationID, user.ID)
	if err != nil {
		return invitationdomain.AcceptResult{}, err
	}
	if existing != nil {
		return invitationdomain.AcceptResult{
			OrganizationID: invitation.OrganizationID,
			Role:           existing.Role,
			AlreadyMember:  true,
		}, nil
	}

	if invitation.Email != user.Email {
		return invitationdomain.AcceptResult{}, &invitationdomain.EmailMismatchError{
			InvitedEmail: invitation.Email,
			CurrentEmail: user.Email,
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orgRepo.WithTx(tx).AddMember(ctx, orgdomain.OrganizationMember{
			ID:             s.genID.Generate(),
			OrganizationID: invitation.OrganizationID,
			UserID:         user.ID,
			Role:           invitation.Role,
			InvitedBy:      invitation.InvitedBy,
			JoinedAt:       now,
			CreatedAt:      now,
		}); err != nil {
			return err
		}

		won, err := s.repo.MarkAccepted(ctx, tx, invitation.ID, now)
		if err != nil {
			return err
		}
		if !won {
			return invitationdomain.ErrAlreadyAccepted
		}
		return nil
	})
	if err != nil {
		if dbpkg.IsDuplicateKeyErr(err) {
			// Joined through another path while this request was in flight.
			return invitationdomain.AcceptResult{
				OrganizationID: invitation.OrganizationID,
				Role:           invitation.Role,
				AlreadyMember:  true,
			}, nil
		}
		if !errors.Is(err, invitationdomain.ErrAlreadyAccepted) {
			s.contextMetrics.IncWorkflowError("accept_invitation", err)
		}
		return invitationdomain.AcceptResult{}, err
	}

	s.record(ctx, auditdomain.RecordRequest{
		OrganizationID: invitation.OrganizationID,
		ActorID:        user.ID,
		Action:         auditdomain.ActionInvitationAccepted,
		TargetType:     "invitation",
		TargetID:       invitation.ID.String(),
		Metadata:       map[string]any{"role": invitation.Role},
	})

	return invitationdomain.AcceptResult{
		OrganizationID: invitation.OrganizationID,
		Role:           invitation.Role,
	}, nil
}

func (s *Service) ListPending(ctx context.Context, orgID snowflake.ID) ([]invitationdomain.Invitation, error) {
	if orgID == 0 {
		return nil, invitationdomain.ErrInvalidOrganization
	}
	items, err := s.repo.ListPending(ctx, s.db, orgID, s.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []invitationdomain.Invitation{}
	}
	return items, nil
}

func (s *Service) Revoke(ctx context.Context, actorID, orgID, invitationID snowflake.ID) error {
	if orgID == 0 {
		return invitationdomain.ErrInvalidOrganization
	}

	invitation, err := s.repo.FindByID(ctx, s.db, orgID, invitationID)
	if err != nil {
		return err
	}
	if invitation == nil {
		return invitationdomain.ErrNotFound
	}
	if invitation.Accepted() {
		return invitationdomain.ErrAlreadyAccepted
	}
	if err := s.repo.Delete(ctx, s.db, orgID, invitationID); err != nil {
		return err
	}

	s.record(ctx, auditdomain.RecordRequest{
		OrganizationID: orgID,
		ActorID:        actorID,
		Action:         auditdomain.ActionInvitationRevoked,
		TargetType:     "invitation",
		TargetID:       invitationID.String(),
		Metadata:       map[string]any{"email": invitation.Email},
	})
	return nil
}

func (s *Service) InviteURL(token string) string {
	return s.baseURL + "/invite/" + token
}

func (s *Service) record(ctx context.Context, req auditdomain.RecordRequest) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, req); err != nil {
		s.log.Warn("activity log not recorded", zap.String("action", req.Action), zap.Error(err))
	}
}

// validEmail accepts a bare address with no display name.
func validEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email
}
