package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	handlers "github.com/EdulogyIT/holibayt-backend/internal/adapter/handler/http"
	"github.com/EdulogyIT/holibayt-backend/internal/config"
	domainRepo "github.com/EdulogyIT/holibayt-backend/internal/domain/repository"
	"github.com/EdulogyIT/holibayt-backend/internal/middleware/auth"
	"github.com/EdulogyIT/holibayt-backend/pkg/logger"
)

// Handlers groups the HTTP handlers the server routes to.
type Handlers struct {
	Escrow   *handlers.EscrowHandler
	Checkout *handlers.CheckoutHandler
	Webhook  *handlers.WebhookHandler
}

type Server struct {
	config *config.Config
	logger *zap.Logger
	echo   *echo.Echo
}

func NewServer(cfg *config.Config, log *zap.Logger, h Handlers, roles domainRepo.RoleRepository) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handlers.NewRequestValidator()
	logger.WithEchoLogger(e, log)

	// Middleware
	e.Use(logger.NewEchoRequestLogger(log))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins(cfg),
		AllowMethods: []string{echo.GET, echo.POST, echo.OPTIONS},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, auth.InternalTokenHeader},
	}))

	s := &Server{
		config: cfg,
		logger: log,
		echo:   e,
	}
	s.setupRoutes(h, roles)
	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.HTTP.Host, s.config.Server.HTTP.Port)
	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) setupRoutes(h Handlers, roles domainRepo.RoleRepository) {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": s.config.Service.Name,
			"version": s.config.Service.Version,
		})
	})

	// Webhook route (outside API versioning, authenticated by signature)
	s.echo.POST("/webhook", h.Webhook.HandleWebhook)

	jwtConfig := auth.JWTConfig{
		Secret:        s.config.Service.Supabase.JWTSecret,
		InternalToken: s.config.Escrow.InternalToken,
		Roles:         roles,
		Logger:        s.logger,
	}

	v1 := s.echo.Group("/api/v1", auth.JWTMiddleware(jwtConfig))

	escrow := v1.Group("/escrow")
	escrow.POST("/release", h.Escrow.Release)
	escrow.POST("/auto-release-sweep", h.Escrow.Sweep, auth.RequireSystem())
	escrow.POST("/refund", h.Escrow.Refund, auth.RequireAdmin())
	escrow.POST("/reconcile", h.Escrow.Reconcile, auth.RequireSystem())

	checkout := v1.Group("/checkout")
	checkout.POST("/create", h.Checkout.CreateCheckout)
	checkout.GET("/session/:sessionId", h.Checkout.CheckSessionStatus)
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.Server.HTTP.CORSOrigins) > 0 {
		return cfg.Server.HTTP.CORSOrigins
	}
	return []string{cfg.Service.ClientURL}
}
