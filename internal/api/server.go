// Package api is the HTTP surface of the governance service: the server,
// its routes, and the controllers for the registry, audit, policy, and MCP
// proxy endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/vantagesec/mcpwarden/internal/audit"
	"github.com/vantagesec/mcpwarden/internal/auth"
	"github.com/vantagesec/mcpwarden/internal/config"
	"github.com/vantagesec/mcpwarden/internal/database"
	"github.com/vantagesec/mcpwarden/internal/database/repositories"
	"github.com/vantagesec/mcpwarden/internal/enforce"
	"github.com/vantagesec/mcpwarden/internal/middleware"
	"github.com/vantagesec/mcpwarden/internal/policy"
	"github.com/vantagesec/mcpwarden/internal/registry"
)

// Server represents the API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     *config.Config
	logger     *logrus.Logger
	db         database.Database
	recorder   *audit.Recorder
	enforcer   *enforce.Adapter
	authMW     *middleware.AuthMiddleware
	shutdownWg sync.WaitGroup
	shutdownCh chan os.Signal

	// API Controllers
	registryController *RegistryController
	auditController    *AuditController
	policyController   *PolicyController
	mcpController      *MCPController
}

// ServerConfig contains the dependencies of the API server
type ServerConfig struct {
	Config   *config.Config
	Logger   *logrus.Logger
	DB       database.Database
	Verifier auth.Verifier
	Registry registry.Service
	Servers  repositories.ServerRepository
	Recorder *audit.Recorder
	Hub      *audit.Hub
	Engine   *policy.Engine
	Enforcer *enforce.Adapter
}

// NewServer creates a new API server
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.DB == nil {
		return nil, errors.New("database is required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("token verifier is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("registry service is required")
	}
	if cfg.Servers == nil {
		return nil, errors.New("server repository is required")
	}
	if cfg.Recorder == nil {
		return nil, errors.New("audit recorder is required")
	}
	if cfg.Hub == nil {
		return nil, errors.New("audit hub is required")
	}
	if cfg.Engine == nil {
		return nil, errors.New("policy engine is required")
	}
	if cfg.Enforcer == nil {
		return nil, errors.New("enforcement adapter is required")
	}

	server := &Server{
		config:     cfg.Config,
		logger:     cfg.Logger,
		db:         cfg.DB,
		recorder:   cfg.Recorder,
		enforcer:   cfg.Enforcer,
		authMW:     middleware.NewAuthMiddleware(cfg.Verifier, cfg.Logger),
		shutdownCh: make(chan os.Signal, 1),
	}

	// Initialize Controllers
	server.registryController = NewRegistryController(cfg.Registry, cfg.Logger)
	server.auditController = NewAuditController(cfg.Recorder, cfg.Hub, cfg.Logger)
	server.policyController = NewPolicyController(cfg.Engine, cfg.Logger)
	server.mcpController = NewMCPController(cfg.Servers, cfg.Config, cfg.Logger)

	// Set Gin mode based on environment
	switch server.config.Server.Mode {
	case "release", "production":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	registerValidations(cfg.Logger)

	// Create router
	router := gin.New()

	// Apply middlewares
	router.Use(middleware.RequestIDMiddleware())

	loggingMW := middleware.NewLoggingMiddleware(server.logger)
	recoveryMW := middleware.NewRecoveryMiddleware(server.logger)

	router.Use(loggingMW.Logger())
	router.Use(recoveryMW.Recovery())
	router.Use(middleware.CORS(nil))

	if len(server.config.Server.TrustedProxies) > 0 {
		if err := router.SetTrustedProxies(server.config.Server.TrustedProxies); err != nil {
			return nil, fmt.Errorf("failed to set trusted proxies: %w", err)
		}
	}

	server.router = router

	// Configure HTTP server
	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", server.config.Server.Host, server.config.Server.Port),
		Handler:      server.router,
		ReadTimeout:  timeoutOrDefault(server.config.Server.ReadTimeout, 30*time.Second),
		WriteTimeout: timeoutOrDefault(server.config.Server.WriteTimeout, 30*time.Second),
		IdleTimeout:  timeoutOrDefault(server.config.Server.IdleTimeout, 90*time.Second),
	}

	return server, nil
}

func timeoutOrDefault(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}

// Start starts the API server
func (s *Server) Start() error {
	// Register all routes
	if err := s.RegisterRoutes(); err != nil {
		return fmt.Errorf("failed to register routes: %w", err)
	}

	// Capture shutdown signals
	signal.Notify(s.shutdownCh, os.Interrupt, syscall.SIGTERM)

	// Start server in a goroutine
	go func() {
		s.logger.WithField("address", s.httpServer.Addr).Info("Starting API server")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("API server error")
		}
	}()

	// Wait for shutdown signal
	go func() {
		<-s.shutdownCh
		s.logger.Info("Shutdown signal received")
		s.Shutdown()
	}()

	return nil
}

// Shutdown gracefully shuts down the API server. In-flight requests get the
// configured shutdown window; the audit recorder is drained afterwards so
// decisions made during the window are still persisted.
func (s *Server) Shutdown() {
	s.logger.Info("Shutting down API server...")

	timeout := timeoutOrDefault(s.config.Server.ShutdownTimeout, 10*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.WithError(err).Error("Error during server shutdown")
	}

	s.enforcer.Close()
	s.recorder.Close()

	if err := s.db.Close(); err != nil {
		s.logger.WithError(err).Error("Error closing database connection")
	}

	s.shutdownWg.Wait()

	s.logger.Info("API server shutdown complete")
}

// Router returns the Gin router instance
func (s *Server) Router() *gin.Engine {
	return s.router
}

// GetAuthMiddleware returns the authentication middleware
func (s *Server) GetAuthMiddleware() *middleware.AuthMiddleware {
	return s.authMW
}

// GetLogger returns the logger instance
func (s *Server) GetLogger() *logrus.Logger {
	return s.logger
}

// GetConfig returns the configuration
func (s *Server) GetConfig() *config.Config {
	return s.config
}

// healthCheck handles the liveness endpoint
// @Summary      Liveness probe
// @Description  Reports that the process is up, with version and mode information.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "Server status information"
// @Router       /healthz [get]
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"time":    time.Now(),
		"version": s.config.Version,
		"mode":    s.config.Server.Mode,
		"docs":    "/swagger/index.html",
	})
}

// readyCheck handles the readiness endpoint
// @Summary      Readiness probe
// @Description  Reports whether the service can reach its database and take traffic.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "Ready"
// @Failure      503  {object}  map[string]interface{}  "Database unreachable"
// @Router       /readyz [get]
func (s *Server) readyCheck(c *gin.Context) {
	if err := s.db.Ping(); err != nil {
		s.logger.WithError(err).Warn("Readiness check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"error":  "database unreachable",
			"time":   time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now(),
	})
}

// Handle 404 Not Found
func (s *Server) handleNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"error": "Route not found",
		"path":  c.Request.URL.Path,
		"time":  time.Now(),
	})
}
