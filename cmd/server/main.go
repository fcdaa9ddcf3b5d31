// @title MCPWarden API
// @version 1.0
// @description Enterprise governance service for MCP tool servers: registration, security scanning, approval workflow, policy enforcement, and audit.

// @contact.name VantageSec Platform Team
// @contact.email platform@vantagesec.example

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token. Example: "Bearer {token}"

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vantagesec/mcpwarden/internal/api"
	"github.com/vantagesec/mcpwarden/internal/audit"
	"github.com/vantagesec/mcpwarden/internal/auth"
	"github.com/vantagesec/mcpwarden/internal/config"
	"github.com/vantagesec/mcpwarden/internal/database"
	"github.com/vantagesec/mcpwarden/internal/database/repositories"
	"github.com/vantagesec/mcpwarden/internal/enforce"
	"github.com/vantagesec/mcpwarden/internal/policy"
	"github.com/vantagesec/mcpwarden/internal/registry"
	"github.com/vantagesec/mcpwarden/internal/scan"
	"github.com/vantagesec/mcpwarden/internal/scheduler"
)

// Version information (will be set during build)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	fmt.Printf("MCPWarden %s (%s) built on %s\n", Version, Commit, BuildDate)

	// Initialize logger
	logger := initLogger()
	logger.WithFields(logrus.Fields{
		"version":    Version,
		"commit":     Commit,
		"build_date": BuildDate,
	}).Info("Starting MCPWarden")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	cfg.Version = Version
	applyLogging(cfg, logger)

	// Initialize database
	db, err := initDatabase(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize the scan workload backend
	sched, err := initScheduler(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize scan scheduler")
	}

	// Repositories
	servers := repositories.NewServerRepository(db.DB())
	scans := repositories.NewScanRepository(db.DB())
	approvals := repositories.NewApprovalRepository(db.DB())
	audits := repositories.NewAuditRepository(db.DB())

	// Scan orchestration and the reconciler that settles running scans
	orchestrator := scan.NewOrchestrator(servers, scans, sched, cfg, logger)
	reconciler := scan.NewReconciler(orchestrator, servers, scans, approvals, sched, cfg, logger)
	reconcilerCtx, stopReconciler := context.WithCancel(context.Background())
	go reconciler.Run(reconcilerCtx)

	// Audit pipeline
	hub := audit.NewHub(cfg.Audit.StreamBuffer, logger)
	recorder := audit.NewRecorder(audits, hub, cfg, logger)

	// Policy engine and the enforcement gate in front of the MCP proxy
	engine := policy.NewEngine(servers, cfg, logger)
	enforcer := enforce.NewAdapter(engine, recorder, cfg, logger)

	// Registry service
	svc := registry.NewService(servers, scans, approvals, orchestrator, cfg, logger)

	// Token verification
	verifier := auth.NewJWTVerifier(auth.Config{
		Secret:   cfg.Auth.Secret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
	}, logger)

	// Initialize API server
	server, err := initAPIServer(cfg, logger, db, verifier, svc, servers, recorder, hub, engine, enforcer)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize API server")
	}

	// Start the server
	if err := server.Start(); err != nil {
		logger.WithError(err).Fatal("Failed to start API server")
	}

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	sig := <-quit
	logger.WithField("signal", sig.String()).Info("Shutdown signal received")

	// Shutdown: stop settling scans, drain the HTTP server and audit
	// pipeline, then release the workload backend.
	stopReconciler()
	server.Shutdown()
	if err := sched.Close(); err != nil {
		logger.WithError(err).Error("Error closing scan scheduler")
	}
	logger.Info("Server shutdown complete")
}

// initLogger initializes and configures the logger
func initLogger() *logrus.Logger {
	logger := logrus.New()

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		DisableSorting:  false,
	})

	// Set log level based on environment
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel != "" {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logger.WithError(err).Warn("Invalid log level, defaulting to info")
			logger.SetLevel(logrus.InfoLevel)
		} else {
			logger.SetLevel(level)
		}
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	return logger
}

// applyLogging reconfigures the logger from the loaded configuration. The
// LOG_LEVEL environment variable wins over the config file so a crashing
// instance can be turned verbose without an edit-and-redeploy cycle.
func applyLogging(cfg *config.Config, logger *logrus.Logger) {
	if os.Getenv("LOG_LEVEL") == "" && cfg.Logging.Level != "" {
		if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
			logger.SetLevel(level)
		} else {
			logger.WithError(err).Warn("Invalid logging.level in configuration, keeping current level")
		}
	}

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
}

// initDatabase initializes the database connection and applies migrations
func initDatabase(cfg *config.Config, logger *logrus.Logger) (database.Database, error) {
	logger.WithFields(logrus.Fields{
		"type": cfg.Database.Type,
		"host": cfg.Database.Host,
		"name": cfg.Database.Name,
	}).Info("Initializing database connection")

	db, err := database.InitDatabase(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	logger.Info("Running database migrations")
	migrator, err := database.NewMigrator(db.DB(), database.DefaultMigrateOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	migrator.RegisterAllMigrations()
	if err := migrator.MigrateUp(); err != nil {
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	return db, nil
}

// initScheduler initializes the Docker backend that runs scan workloads
func initScheduler(cfg *config.Config, logger *logrus.Logger) (*scheduler.DockerScheduler, error) {
	logger.WithFields(logrus.Fields{
		"host":  cfg.Docker.Host,
		"image": cfg.Scanner.Image,
	}).Info("Initializing scan workload backend")

	sched, err := scheduler.NewDockerScheduler(schedulerOptions(cfg, logger)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create scan scheduler: %w", err)
	}
	return sched, nil
}

// schedulerOptions assembles the backend options from the configuration.
// Empty values are left out so the backend's own defaults apply.
func schedulerOptions(cfg *config.Config, logger *logrus.Logger) []scheduler.Option {
	opts := []scheduler.Option{
		scheduler.WithLogger(logger),
		scheduler.WithResources(
			cfg.Scanner.CPURequest,
			cfg.Scanner.CPULimit,
			cfg.Scanner.MemoryRequest,
			cfg.Scanner.MemoryLimit,
		),
	}

	if cfg.Docker.Host != "" {
		opts = append(opts, scheduler.WithHost(cfg.Docker.Host))
	}
	if cfg.Docker.APIVersion != "" {
		opts = append(opts, scheduler.WithAPIVersion(cfg.Docker.APIVersion))
	}
	if cfg.Docker.TLSVerify {
		opts = append(opts, scheduler.WithTLS(
			cfg.Docker.TLSCertPath,
			cfg.Docker.TLSKeyPath,
			cfg.Docker.TLSCAPath,
		))
	}
	if cfg.Docker.RequestTimeout > 0 {
		opts = append(opts, scheduler.WithRequestTimeout(cfg.Docker.RequestTimeout))
	}
	if cfg.Scanner.Platform != "" {
		opts = append(opts, scheduler.WithPlatform(cfg.Scanner.Platform))
	}
	if cfg.Scanner.Retries > 0 {
		opts = append(opts, scheduler.WithRetry(cfg.Scanner.Retries, time.Second))
	}

	return opts
}

// initAPIServer initializes and configures the API server
func initAPIServer(
	cfg *config.Config,
	logger *logrus.Logger,
	db database.Database,
	verifier auth.Verifier,
	svc registry.Service,
	servers repositories.ServerRepository,
	recorder *audit.Recorder,
	hub *audit.Hub,
	engine *policy.Engine,
	enforcer *enforce.Adapter,
) (*api.Server, error) {
	logger.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Initializing API server")

	server, err := api.NewServer(&api.ServerConfig{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		Verifier: verifier,
		Registry: svc,
		Servers:  servers,
		Recorder: recorder,
		Hub:      hub,
		Engine:   engine,
		Enforcer: enforcer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create API server: %w", err)
	}

	return server, nil
}
