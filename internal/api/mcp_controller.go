package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/vantagesec/mcpwarden/internal/config"
	"github.com/vantagesec/mcpwarden/internal/database/repositories"
	"github.com/vantagesec/mcpwarden/internal/models"
	"github.com/vantagesec/mcpwarden/internal/utils"
)

// adapterMount is where the catalog tells clients to reach proxied servers.
const adapterMount = "/mcp/adapters/"

// MCPController serves the MCP client surface: the approved-server catalog
// and the adapter proxy the enforcement gate fronts.
type MCPController struct {
	servers repositories.ServerRepository
	cfg     *config.Config
	log     *logrus.Logger
}

// NewMCPController creates a new MCP controller
func NewMCPController(servers repositories.ServerRepository, cfg *config.Config, log *logrus.Logger) *MCPController {
	return &MCPController{
		servers: servers,
		cfg:     cfg,
		log:     log,
	}
}

// Catalog godoc
// @Summary List approved MCP servers
// @Description Returns every Approved server with its adapter URL. Servers without a remote endpoint are flagged local; they are governed through local scan uploads, not proxied.
// @Tags MCP
// @Produce json
// @Success 200 {object} map[string][]models.CatalogServer "Catalog"
// @Router /mcp/servers [get]
func (ctrl *MCPController) Catalog(c *gin.Context) {
	servers, err := ctrl.servers.ListByStatuses(c.Request.Context(), models.StatusApproved)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	catalog := make([]models.CatalogServer, 0, len(servers))
	for i := range servers {
		entry := servers[i].CatalogView()
		if servers[i].RemoteURL() != "" {
			// Slashes inside the canonical id are escaped so the id stays a
			// single adapter path segment.
			entry.ProxyURL = adapterMount + url.PathEscape(servers[i].CanonicalID)
		} else {
			entry.IsLocal = true
			entry.Note = "Local server - run locally"
		}
		catalog = append(catalog, entry)
	}

	c.JSON(http.StatusOK, gin.H{"servers": catalog})
}

// Proxy godoc
// @Summary Proxy a call to an approved MCP server
// @Description Forwards the request to the server's configured remote endpoint. The adapter segment names the server by canonical id (or row id); anything after it is passed through as the downstream path. Traffic reaches this handler only after the enforcement gate has allowed it.
// @Tags MCP
// @Param adapter path string true "Canonical id, optionally followed by a downstream path" example(acme-search/sse)
// @Success 200 "Upstream response"
// @Failure 400 {object} utils.Response "Server has no remote URL"
// @Failure 403 {object} utils.Response "Server is not approved"
// @Failure 404 {object} utils.Response "Server not registered"
// @Failure 502 {object} map[string]string "Upstream unreachable"
// @Failure 504 {object} map[string]string "Upstream timeout"
// @Router /mcp/adapters/{adapter} [get]
// @Router /mcp/adapters/{adapter} [post]
func (ctrl *MCPController) Proxy(c *gin.Context) {
	ref, suffix := adapterTarget(c.Request.URL.EscapedPath())
	if ref == "" {
		utils.BadRequest(c, "Adapter id is required")
		return
	}

	server, err := ctrl.resolve(c.Request.Context(), ref)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	// The gate cannot judge bodyless requests, so the proxy re-checks
	// approval itself. In audit mode observation wins and the call is
	// forwarded like any other.
	if server.Status != models.StatusApproved && !ctrl.auditOnly() {
		utils.Forbidden(c, fmt.Sprintf("MCP server %q is not approved (status: %s)", server.Name, server.Status))
		return
	}

	target := server.RemoteURL()
	if target == "" {
		utils.BadRequest(c, "Server has no remote URL configured. Local servers must be scanned locally.")
		return
	}

	remote, err := url.Parse(target)
	if err != nil || remote.Scheme == "" || remote.Host == "" {
		ctrl.log.WithField("canonical_id", server.CanonicalID).WithField("url", target).Error("Unusable remote URL on approved server")
		utils.RespondError(c, fmt.Errorf("%w: server %q has an unusable remote URL", models.ErrUpstream, server.CanonicalID))
		return
	}

	ctrl.log.WithFields(logrus.Fields{
		"canonical_id": server.CanonicalID,
		"target":       target,
		"suffix":       suffix,
	}).Debug("Proxying MCP request")

	proxy := &httputil.ReverseProxy{
		Director:     directorFor(remote, suffix, c.Request.Host),
		ErrorHandler: ctrl.proxyErrorHandler(server.CanonicalID, target),
	}
	// SSE responses must reach the client as they arrive, not in buffered
	// chunks.
	if strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		proxy.FlushInterval = -1
	}

	proxy.ServeHTTP(c.Writer, c.Request)
}

// directorFor rewrites the inbound request onto the remote endpoint,
// appending the escaped downstream suffix to the remote's base path.
func directorFor(remote *url.URL, suffix, inboundHost string) func(*http.Request) {
	return func(req *http.Request) {
		basePath := strings.TrimSuffix(remote.EscapedPath(), "/")
		unescaped := suffix
		if decoded, err := url.PathUnescape(suffix); err == nil {
			unescaped = decoded
		}

		req.URL.Scheme = remote.Scheme
		req.URL.Host = remote.Host
		req.URL.Path = strings.TrimSuffix(remote.Path, "/") + unescaped
		req.URL.RawPath = basePath + suffix
		req.Host = remote.Host
		req.Header.Set("X-Forwarded-Host", inboundHost)
	}
}

func (ctrl *MCPController) proxyErrorHandler(canonicalID, target string) func(http.ResponseWriter, *http.Request, error) {
	return func(rw http.ResponseWriter, req *http.Request, err error) {
		status := http.StatusBadGateway
		message := "Cannot connect to MCP server: " + target
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
			message = "MCP server timeout"
		}

		ctrl.log.WithError(err).WithFields(logrus.Fields{
			"canonical_id": canonicalID,
			"target":       target,
		}).Warn("MCP proxy request failed")

		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(status)
		_ = json.NewEncoder(rw).Encode(gin.H{"error": message})
	}
}

// auditOnly reports whether enforcement is running in observation mode.
func (ctrl *MCPController) auditOnly() bool {
	return ctrl.cfg.Enforcement.Enabled && !strings.EqualFold(ctrl.cfg.Enforcement.Mode, "enforce")
}

// resolve looks the adapter reference up as a canonical id first, then as a
// row id, so both catalog URLs and human-written ids work.
func (ctrl *MCPController) resolve(ctx context.Context, ref string) (*models.Server, error) {
	server, err := ctrl.servers.GetByCanonicalID(ctx, ref)
	if err == nil {
		return server, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	server, err = ctrl.servers.GetByID(ctx, ref)
	if err == nil {
		return server, nil
	}
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("%w: MCP server %q is not registered", models.ErrNotFound, ref)
	}
	return nil, err
}

// adapterTarget splits the escaped path after the adapter mount into the
// server reference and the downstream suffix. The escaped form keeps
// percent-encoded slashes inside the reference intact until after the cut.
func adapterTarget(escapedPath string) (ref, suffix string) {
	_, rest, ok := strings.Cut(escapedPath, "/adapters/")
	if !ok {
		return "", ""
	}

	ref = rest
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		ref, suffix = rest[:i], rest[i:]
	}
	if decoded, err := url.PathUnescape(ref); err == nil {
		ref = decoded
	}
	return ref, suffix
}
