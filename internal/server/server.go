package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	authdomain "github.com/smallbiznis/tasklane/internal/auth/domain"
	"github.com/smallbiznis/tasklane/internal/auth/session"
	"github.com/smallbiznis/tasklane/internal/config"
	obslogger "github.com/smallbiznis/tasklane/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/tasklane/internal/observability/metrics"
	obstracing "github.com/smallbiznis/tasklane/internal/observability/tracing"
	"github.com/smallbiznis/tasklane/internal/providers/storage"
	"github.com/smallbiznis/tasklane/internal/ratelimit"
	taskdomain "github.com/smallbiznis/tasklane/internal/task/domain"
	userdomain "github.com/smallbiznis/tasklane/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
)

func NewEngine(httpMetrics *obsmetrics.HTTPMetrics, registry *prometheus.Registry) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		prometheus.Gatherers{prometheus.DefaultGatherer, registry},
		promhttp.HandlerOpts{},
	)))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
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
	engine   *gin.Engine
	cfg      config.Config
	log      *zap.Logger
	authsvc  authdomain.Service
	sessions *session.Manager
	usersvc  userdomain.Service
	tasksvc  taskdomain.Service
	files    storage.FileGateway
	limiter  InvitationLimiter

	invitationMetrics *obsmetrics.InvitationMetrics
}

type ServerParams struct {
	fx.In

	Gin      *gin.Engine
	Cfg      config.Config
	Log      *zap.Logger
	Authsvc  authdomain.Service
	Sessions *session.Manager
	UserSvc  userdomain.Service
	TaskSvc  taskdomain.Service
	Files    storage.FileGateway
	Limiter  *ratelimit.InvitationLimiter `optional:"true"`

	InvitationMetrics *obsmetrics.InvitationMetrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:   p.Gin,
		cfg:      p.Cfg,
		log:      p.Log.Named("http.server"),
		authsvc:  p.Authsvc,
		sessions: p.Sessions,
		usersvc:  p.UserSvc,
		tasksvc:  p.TaskSvc,
		files:    p.Files,

		invitationMetrics: p.InvitationMetrics,
	}
	if p.Limiter != nil {
		svc.limiter = p.Limiter
	}

	svc.registerAuthRoutes()
	svc.registerAPIRoutes()
	svc.registerUploadRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/signup", s.Signup)
	auth.POST("/login", s.Login)
	auth.POST("/logout", s.Logout)
	auth.POST("/verify-email", s.VerifyEmail)
	auth.POST("/password/forgot", s.ForgotPassword)
	auth.POST("/password/reset", s.ResetPassword)
	auth.POST("/change-password", s.AuthRequired(), s.ChangePassword)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.AuthRequired())

	// -------- Me --------
	api.GET("/me", s.Me)
	api.PATCH("/me/preferences", s.UpdatePreferences)
	api.PATCH("/me/profile", s.UpdateProfile)

	// -------- Organizations --------
	api.GET("/organizations", s.ListOrganizations)
	api.POST("/organizations", s.CreateOrganization)

	org := api.Group("/organizations/:id", OrgContext())
	{
		org.PATCH("", s.UpdateOrganization)
		org.DELETE("", s.DeleteOrganization)
		org.POST("/logo", s.UploadOrganizationLogo)

		org.POST("/invitations", s.InvitationRateLimit(), s.InviteMember)
		org.DELETE("/invitations/:invitationId", s.CancelInvitation)

		org.PATCH("/members/:memberId", s.ChangeMemberRole)
		org.DELETE("/members/:memberId", s.RemoveMember)
	}

	// -------- Invitations --------
	api.GET("/invitations/:id", s.GetInvitation)
	api.POST("/invitations/:id/accept", s.AcceptInvitation)
	api.POST("/invitations/:id/reject", s.RejectInvitation)

	// -------- Tasks --------
	api.GET("/tasks", s.ListTasks)
	api.POST("/tasks", s.AddTask)
	api.DELETE("/tasks/:id", s.DeleteTask)
}

// registerUploadRoutes serves objects kept by the in-memory file gateway.
func (s *Server) registerUploadRoutes() {
	mem, ok := s.files.(*storage.MemoryGateway)
	if !ok {
		return
	}

	s.engine.GET("/uploads/*key", func(c *gin.Context) {
		obj, found := mem.Get(strings.TrimPrefix(c.Param("key"), "/"))
		if !found {
			AbortWithError(c, ErrNotFound)
			return
		}
		c.Data(http.StatusOK, obj.ContentType, obj.Data)
	})
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
