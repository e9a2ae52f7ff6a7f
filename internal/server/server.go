package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/k1tz03/Forkfall/internal/config"
	"github.com/k1tz03/Forkfall/internal/handler"
	"github.com/k1tz03/Forkfall/internal/identity"
	"github.com/k1tz03/Forkfall/internal/middleware"
	"github.com/k1tz03/Forkfall/internal/service"
)

// Services are the collaborators the HTTP layer dispatches to.
type Services struct {
	Auth     service.AuthService
	Feed     service.FeedService
	Forks    service.ForkService
	Identity *identity.Manager
}

type Server struct {
	router   *gin.Engine
	cfg      *config.Config
	services Services
	log      *logrus.Logger
	logger   *zap.Logger
}

func NewServer(cfg *config.Config, services Services, log *logrus.Logger, logger *zap.Logger) (*Server, error) {
	if err := handler.RegisterValidators(); err != nil {
		return nil, fmt.Errorf("register validators: %w", err)
	}

	router := gin.New()
	router.Use(gin.Recovery(), middleware.AccessLog(log))

	s := &Server{
		router:   router,
		cfg:      cfg,
		services: services,
		log:      log,
		logger:   logger,
	}

	s.setupRoutes()

	return s, nil
}

func (s *Server) setupRoutes() {
	authHandler := handler.NewAuthHandler(s.services.Auth, s.log, s.logger)
	feedHandler := handler.NewFeedHandler(s.services.Feed, s.services.Identity, s.logger)
	forkHandler := handler.NewForkHandler(s.services.Forks, s.logger)

	// Ping route for health check
	s.router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api/v1")

	// Device authentication
	api.POST("/auth/device",
		middleware.IPRateLimit(s.cfg.Server.DeviceAuthRate, s.cfg.Server.DeviceAuthBurst),
		authHandler.AuthenticateDevice)

	// Authenticated routes
	authRequired := api.Group("")
	authRequired.Use(middleware.AuthMiddleware(s.services.Auth, s.logger))
	{
		authRequired.GET("/feed", feedHandler.GetFeed)
		authRequired.GET("/session", feedHandler.GetSession)
		authRequired.PUT("/session", feedHandler.UpdateSession)
		authRequired.GET("/intents", feedHandler.GetIntents)

		authRequired.POST("/forks", forkHandler.CreateFork)
		authRequired.GET("/forks/:id", forkHandler.GetFork)
		authRequired.GET("/forks/:id/children", forkHandler.GetChildren)
		authRequired.GET("/forks/:id/lineage", forkHandler.GetLineage)
		authRequired.POST("/forks/:id/interact", forkHandler.Interact)
		authRequired.POST("/forks/:id/report", forkHandler.Report)
	}

	// Moderator routes
	moderation := api.Group("/moderation")
	moderation.Use(middleware.ModeratorMiddleware(s.cfg.Auth.ModeratorToken))
	{
		moderation.POST("/reports/:id/transition", forkHandler.TransitionReport)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         ":" + s.cfg.Server.Port,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("Server starting on port %s...", s.cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
