package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/vantagesec/mcpwarden/docs" // Generated swagger spec
	"github.com/vantagesec/mcpwarden/internal/metrics"
)

// RegisterRoutes registers all API routes
func (s *Server) RegisterRoutes() error {
	router := s.router
	authMW := s.authMW

	s.logger.Info("Registering API routes...")

	// Probes - no auth required
	router.GET("/healthz", s.healthCheck)
	router.HEAD("/healthz", s.healthCheck)
	router.GET("/readyz", s.readyCheck)

	if s.config.Metrics.Enabled {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	// MCP client surface. The catalog is public; adapter traffic passes
	// through the enforcement gate with whatever identity it carries.
	mcp := router.Group("/mcp", authMW.OptionalPrincipal(), s.enforcer.Middleware())
	{
		mcp.GET("/servers", s.mcpController.Catalog)
		mcp.Any("/adapters/*adapter", s.mcpController.Proxy)
	}

	// Registry API - authenticated
	reg := router.Group("/registry", authMW.RequirePrincipal())

	servers := reg.Group("/servers")
	{
		servers.POST("", s.registryController.Register)
		servers.GET("", s.registryController.List)
		servers.GET("/by-canonical-id/*canonical_id", s.registryController.GetByCanonicalID)
		servers.GET("/:id", s.registryController.Get)
		servers.PUT("/:id", s.registryController.Update)
		servers.DELETE("/:id", s.registryController.Delete)

		// Scan lifecycle
		servers.POST("/:id/scan", s.registryController.SubmitScan)
		servers.POST("/:id/scan/upload", s.registryController.UploadScan)
		servers.GET("/:id/scan/latest", s.registryController.LatestScan)
		servers.GET("/:id/scans", s.registryController.ListScans)
		servers.GET("/:id/scans/:scanId", s.registryController.GetScan)
		servers.GET("/:id/scans/:scanId/watch", s.registryController.WatchScan)
		servers.POST("/:id/scans/:scanId/cancel", s.registryController.CancelScan)

		// Approval lifecycle; role checks live in the registry service
		servers.POST("/:id/approve", s.registryController.Approve)
		servers.POST("/:id/deny", s.registryController.Deny)
		servers.POST("/:id/suspend", s.registryController.Suspend)
		servers.POST("/:id/reinstate", s.registryController.Reinstate)
		servers.POST("/:id/deprecate", s.registryController.Deprecate)
		servers.POST("/:id/request-approval", s.registryController.RequestApproval)
		servers.GET("/:id/approvals", s.registryController.ListApprovals)
	}

	auditGroup := reg.Group("/audit")
	{
		auditGroup.GET("", s.auditController.Query)
		auditGroup.GET("/stats", s.auditController.Stats)
		auditGroup.GET("/stream", s.auditController.Stream)
	}

	policyGroup := reg.Group("/policy", authMW.RequireAdmin())
	{
		policyGroup.POST("/check", s.policyController.Check)
		policyGroup.POST("/reload", s.policyController.Reload)
	}

	// API documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler,
		ginSwagger.URL("/swagger/doc.json"),
		ginSwagger.DocExpansion("list"),
		ginSwagger.DeepLinking(true),
		ginSwagger.DefaultModelsExpandDepth(-1),
		ginSwagger.PersistAuthorization(true),
	))

	// 404 handler for all other routes
	router.NoRoute(s.handleNotFound)
	s.logger.Info("API routes registered successfully.")

	return nil
}
