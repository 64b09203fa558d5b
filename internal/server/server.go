package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/insightboard/internal/audit"
	auditdomain "github.com/smallbiznis/insightboard/internal/audit/domain"
	"github.com/smallbiznis/insightboard/internal/auth"
	authdomain "github.com/smallbiznis/insightboard/internal/auth/domain"
	"github.com/smallbiznis/insightboard/internal/auth/session"
	"github.com/smallbiznis/insightboard/internal/authorization"
	"github.com/smallbiznis/insightboard/internal/config"
	"github.com/smallbiznis/insightboard/internal/invitation"
	invitationdomain "github.com/smallbiznis/insightboard/internal/invitation/domain"
	"github.com/smallbiznis/insightboard/internal/observability"
	obsmiddleware "github.com/smallbiznis/insightboard/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/insightboard/internal/observability/metrics"
	obstracing "github.com/smallbiznis/insightboard/internal/observability/tracing"
	"github.com/smallbiznis/insightboard/internal/organization"
	organizationdomain "github.com/smallbiznis/insightboard/internal/organization/domain"
	"github.com/smallbiznis/insightboard/internal/orgcache"
	"github.com/smallbiznis/insightboard/internal/orgcontext"
	"github.com/smallbiznis/insightboard/internal/ratelimit"
	"github.com/smallbiznis/insightboard/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/insightboard/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires every domain service the HTTP API depends on.
var Module = fx.Module("http.server",
	audit.Module,
	authorization.Module,
	auth.Module,
	organization.Module,
	orgcache.Module,
	orgcontext.Module,
	subscription.Module,
	invitation.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log = log.Named("http.server")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	verifier        authdomain.Verifier
	sessions        *session.Manager
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	organizationSvc organizationdomain.Service
	subscriptionSvc subscriptiondomain.Service
	invitationSvc   invitationdomain.Service
	contexts        *orgcontext.Registry
	profiles        *orgcache.ProfileCache
	plans           *config.PlanCatalogHolder
	guard           *ratelimit.Guard
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	Verifier        authdomain.Verifier
	Sessions        *session.Manager
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	OrganizationSvc organizationdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	InvitationSvc   invitationdomain.Service
	Contexts        *orgcontext.Registry
	Profiles        *orgcache.ProfileCache    `optional:"true"`
	Plans           *config.PlanCatalogHolder `optional:"true"`
	Guard           *ratelimit.Guard          `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	plans := p.Plans
	if plans == nil {
		plans = config.NewStaticPlanCatalogHolder(config.DefaultPlanCatalog())
	}
	return &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.handlers"),
		verifier:        p.Verifier,
		sessions:        p.Sessions,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		organizationSvc: p.OrganizationSvc,
		subscriptionSvc: p.SubscriptionSvc,
		invitationSvc:   p.InvitationSvc,
		contexts:        p.Contexts,
		profiles:        p.Profiles,
		plans:           plans,
		guard:           p.Guard,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterRoutes() {
	s.registerAuthRoutes()
	s.registerAPIRoutes()
	s.registerFallback()
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")
	auth.POST("/logout", s.Logout)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/plans", s.ListPlans)

	authed := api.Group("", s.AuthRequired())

	authed.GET("/me", s.Me)
	authed.GET("/navigation", s.Navigation)

	// -------- Organization context --------
	authed.GET("/organizations/context", s.GetOrganizationContext)
	authed.POST("/organizations/context/switch", s.SwitchOrganization)
	authed.POST("/organizations/context/refresh", s.RefreshOrganizationContext)

	// -------- Organizations & members --------
	authed.POST("/organizations", s.CreateOrganization)
	authed.GET("/organizations/:id/members", s.authorizeOrgAction(authorization.ObjectMember, authorization.ActionMemberView), s.ListMembers)
	authed.PATCH("/organizations/:id/members/:memberId", s.authorizeOrgAction(authorization.ObjectMember, authorization.ActionMemberUpdate), s.UpdateMemberRole)
	authed.DELETE("/organizations/:id/members/:memberId", s.authorizeOrgAction(authorization.ObjectMember, authorization.ActionMemberRemove), s.RemoveMember)

	// -------- Subscriptions --------
	// Activation carries the organization in the body, so it authorizes inside the handler.
	authed.POST("/subscriptions/activate", s.ActivatePlan)
	authed.GET("/organizations/:id/subscription", s.authorizeOrgAction(authorization.ObjectSubscription, authorization.ActionSubscriptionView), s.GetActiveSubscription)
	authed.GET("/organizations/:id/subscriptions", s.authorizeOrgAction(authorization.ObjectSubscription, authorization.ActionSubscriptionView), s.ListSubscriptions)

	// -------- Invitations --------
	authed.POST("/invitations/generate-token", s.GenerateInvitationToken)
	authed.POST("/invitations", s.CreateInvitation)
	authed.GET("/organizations/:id/invitations", s.authorizeOrgAction(authorization.ObjectInvitation, authorization.ActionInvitationView), s.ListInvitations)
	authed.DELETE("/organizations/:id/invitations/:invitationId", s.authorizeOrgAction(authorization.ObjectInvitation, authorization.ActionInvitationRevoke), s.RevokeInvitation)
	authed.POST("/invite/:token/accept", s.AcceptInvitation)

	// -------- Activity --------
	authed.GET("/organizations/:id/activity", s.authorizeOrgAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListActivity)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
