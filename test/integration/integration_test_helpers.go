package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vantagesec/mcpwarden/internal/api"
	"github.com/vantagesec/mcpwarden/internal/audit"
	"github.com/vantagesec/mcpwarden/internal/auth"
	"github.com/vantagesec/mcpwarden/internal/config"
	"github.com/vantagesec/mcpwarden/internal/database"
	"github.com/vantagesec/mcpwarden/internal/database/repositories"
	"github.com/vantagesec/mcpwarden/internal/enforce"
	"github.com/vantagesec/mcpwarden/internal/models"
	"github.com/vantagesec/mcpwarden/internal/policy"
	"github.com/vantagesec/mcpwarden/internal/registry"
	"github.com/vantagesec/mcpwarden/internal/scan"
	"github.com/vantagesec/mcpwarden/internal/scheduler"
	"github.com/vantagesec/mcpwarden/pkg/client"
)

// Signing inputs for the tokens the stack accepts.
const (
	testSecret = "integration-test-secret-0123456789abcdef"
	testIssuer = "https://sso.vantagesec.example"
)

// stack is one fully wired service instance on a loopback listener, with the
// Docker scan backend replaced by the fake so tests control workload
// outcomes. The reconciler does not run on its own; tests call sweep when
// they want finished workloads ingested.
type stack struct {
	cfg        *config.Config
	http       *httptest.Server
	scheduler  *scheduler.FakeScheduler
	reconciler *scan.Reconciler
	hub        *audit.Hub
}

// startStack wires the service the way main does: real database, real
// migrations, real token verification, and the full HTTP surface.
func startStack(t *testing.T, configure func(*config.Config)) *stack {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := &config.Config{}
	cfg.Server.Mode = "test"
	cfg.Database.Type = "sqlite"
	cfg.Database.SQLite.Path = ":memory:"
	cfg.Auth.Secret = testSecret
	cfg.Auth.Issuer = testIssuer
	cfg.Scanner.Image = "registry.internal/mcp-scanner:2.3.1"
	cfg.Scanner.ScannerVersion = "2.3.1"
	cfg.Scanner.TimeoutSeconds = 300
	cfg.Policy.EnforceRegistryOnly = true
	cfg.Policy.ScanPassThreshold = 0.6
	cfg.Policy.RiskThreshold = 0.7
	cfg.Policy.RequireAdminForHighRisk = true
	cfg.Policy.GlobalToolDenylist = []string{"shell_exec"}
	cfg.Enforcement.Enabled = true
	cfg.Enforcement.Mode = "enforce"
	cfg.Enforcement.DefaultTimeoutMs = 30000
	cfg.Enforcement.MaxRequestPayloadBytes = 1 << 20
	cfg.Audit.QueueSize = 256
	cfg.Audit.Workers = 1
	cfg.Audit.StreamBuffer = 16
	if configure != nil {
		configure(cfg)
	}

	db, err := database.InitDatabase(cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	migrator, err := database.NewMigrator(db.DB(), database.DefaultMigrateOptions())
	require.NoError(t, err)
	migrator.RegisterAllMigrations()
	require.NoError(t, migrator.MigrateUp())

	servers := repositories.NewServerRepository(db.DB())
	scans := repositories.NewScanRepository(db.DB())
	approvals := repositories.NewApprovalRepository(db.DB())
	audits := repositories.NewAuditRepository(db.DB())

	sched := scheduler.NewFakeScheduler()
	orchestrator := scan.NewOrchestrator(servers, scans, sched, cfg, log)
	reconciler := scan.NewReconciler(orchestrator, servers, scans, approvals, sched, cfg, log)

	hub := audit.NewHub(cfg.Audit.StreamBuffer, log)
	recorder := audit.NewRecorder(audits, hub, cfg, log)
	t.Cleanup(recorder.Close)

	engine := policy.NewEngine(servers, cfg, log)
	enforcer := enforce.NewAdapter(engine, recorder, cfg, log)
	t.Cleanup(enforcer.Close)

	svc := registry.NewService(servers, scans, approvals, orchestrator, cfg, log)

	verifier := auth.NewJWTVerifier(auth.Config{
		Secret: cfg.Auth.Secret,
		Issuer: cfg.Auth.Issuer,
	}, log)

	server, err := api.NewServer(&api.ServerConfig{
		Config:   cfg,
		Logger:   log,
		DB:       db,
		Verifier: verifier,
		Registry: svc,
		Servers:  servers,
		Recorder: recorder,
		Hub:      hub,
		Engine:   engine,
		Enforcer: enforcer,
	})
	require.NoError(t, err)
	require.NoError(t, server.RegisterRoutes())

	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	return &stack{
		cfg:        cfg,
		http:       ts,
		scheduler:  sched,
		reconciler: reconciler,
		hub:        hub,
	}
}

// sweep runs one reconciler pass so finished fake workloads are ingested.
func (s *stack) sweep() {
	s.reconciler.Sweep(context.Background())
}

// apiClient returns a client for the stack authenticated by the token.
func (s *stack) apiClient(t *testing.T, token string) *client.APIClient {
	t.Helper()

	c, err := client.NewClient(
		client.WithBaseURL(s.http.URL),
		client.WithToken(token),
		client.WithRetryOptions(0, 0),
	)
	require.NoError(t, err)
	return c
}

// mintToken signs an HS256 token the stack's verifier accepts.
func mintToken(t *testing.T, subject, team string, roles ...string) string {
	t.Helper()

	claims := auth.Claims{
		Email: subject + "@vantagesec.example",
		Team:  team,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    testIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	if team != "" {
		claims.Teams = []string{team}
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

// scanReport renders scanner output with the given risk score and no findings.
func scanReport(riskScore float64) string {
	return fmt.Sprintf(`{"risk_score":%g,"scanner_version":"2.3.1","summary":"automated scan","issues":[],"tools":[{"name":"search","description":"Full text search over the document store"},{"name":"fetch","description":"Fetch one document by id"}]}`, riskScore)
}

// registerApproved drives a registration through scan and approval so the
// gate will admit its traffic.
func registerApproved(t *testing.T, s *stack, owner, admin client.Client, canonicalID, remoteURL string) *models.Server {
	t.Helper()
	ctx := context.Background()

	req := &models.RegisterServerRequest{
		CanonicalID:   canonicalID,
		Name:          "Search Tools",
		SourceType:    models.SourceExternalRepo,
		SourceURL:     "https://github.com/vantagesec/search-tools",
		Version:       "1.4.0",
		DeclaredTools: models.StringArray{"search", "fetch"},
	}
	if remoteURL != "" {
		req.MCPConfig = models.JSONMap{"url": remoteURL}
	}
	server, err := owner.RegisterServer(ctx, req)
	require.NoError(t, err)

	submitted, err := owner.SubmitScan(ctx, server.ID)
	require.NoError(t, err)
	s.scheduler.Finish(submitted.JobName, 0, scanReport(0.2))
	s.sweep()

	_, err = admin.ApproveServer(ctx, server.ID, &models.ApproveRequest{Reason: "scan clean"})
	require.NoError(t, err)

	refreshed, err := owner.GetServer(ctx, server.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, refreshed.Status)
	return refreshed
}

// callTool sends a JSON-RPC tools/call through the adapter and returns the
// response status and body.
func callTool(t *testing.T, c client.Client, baseURL, canonicalID, tool string) (int, []byte) {
	t.Helper()

	payload := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":%q,"arguments":{}}}`, tool)
	req, err := http.NewRequest(http.MethodPost, baseURL+"/mcp/adapters/"+url.PathEscape(canonicalID), strings.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

// denial is the body of a blocked adapter call.
type denial struct {
	Error             string `json:"error"`
	Reason            string `json:"reason"`
	Decision          string `json:"decision"`
	ServerCanonicalID string `json:"serverCanonicalId"`
	ToolName          string `json:"toolName"`
	TraceID           string `json:"traceId"`
}

func decodeDenial(t *testing.T, body []byte) denial {
	t.Helper()

	var d denial
	require.NoError(t, json.Unmarshal(body, &d))
	return d
}
