package http

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	handlers "github.com/wekeepgrowing/byway-payment/internal/adapter/handler/http"
	"github.com/wekeepgrowing/byway-payment/internal/config"
	"github.com/wekeepgrowing/byway-payment/internal/metrics"
	"github.com/wekeepgrowing/byway-payment/internal/middleware/auth"
	"github.com/wekeepgrowing/byway-payment/pkg/logger"
)

// Handlers groups the HTTP handlers the server routes to.
type Handlers struct {
	Checkout *handlers.CheckoutHandler
	Webhook  *handlers.WebhookHandler
}

type Server struct {
	config   *config.Config
	logger   *zap.Logger
	echo     *echo.Echo
	handlers Handlers
}

func NewServer(cfg *config.Config, log *zap.Logger, h Handlers) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewCustomValidator()

	logger.WithEchoLogger(e, log)

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(logger.NewEchoRequestLogger(log))
	e.Use(metrics.EchoMiddleware())
	if cfg.Service.ClientURL != "" {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: []string{cfg.Service.ClientURL},
			AllowMethods: []string{echo.GET, echo.POST},
		}))
	}

	s := &Server{
		config:   cfg,
		logger:   log,
		echo:     e,
		handlers: h,
	}
	s.setupRoutes()
	return s
}

// Echo exposes the router, for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) Start() error {
	addr := s.config.Server.HTTP.Address()
	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Health check
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": s.config.Service.Name,
		})
	})
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Gateway callbacks authenticate by signature, not JWT
	s.echo.POST("/webhooks/:gateway", s.handlers.Webhook.HandleWebhook)

	jwtConfig := auth.JWTConfig{
		Secret: s.config.JWT.Secret,
		Issuer: s.config.JWT.Issuer,
		Logger: s.logger,
	}

	// API v1 routes, all authenticated
	v1 := s.echo.Group("/api/v1", auth.JWTMiddleware(jwtConfig))

	v1.POST("/checkout", s.handlers.Checkout.CreateCheckout)

	wallet := v1.Group("/wallet")
	wallet.GET("", s.handlers.Checkout.GetWallet)
	wallet.GET("/transactions", s.handlers.Checkout.ListTransactions)
	wallet.POST("/topups", s.handlers.Checkout.CreateTopUp)

	// Operator routes
	internal := v1.Group("/internal", auth.RequireRole("ADMIN"))
	internal.POST("/orders/:id/redrive", s.handlers.Webhook.RedriveOrder)
}
