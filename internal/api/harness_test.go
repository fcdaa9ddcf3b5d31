package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

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
	"github.com/vantagesec/mcpwarden/internal/utils"
)

// Bearer tokens resolve through a VerifierFunc, so tests never mint real
// JWTs.
var testPrincipals = map[string]models.Principal{
	"owner-token": {ID: "alice", Email: "alice@corp.example", Team: "platform", Teams: []string{"platform"}},
	"peer-token":  {ID: "carol", Team: "platform", Teams: []string{"platform"}},
	"other-token": {ID: "bob", Team: "growth", Teams: []string{"growth"}},
	"admin-token": {ID: "root", Roles: []string{models.RoleAdmin}},
}

type harness struct {
	t         *testing.T
	server    *Server
	serverCfg *ServerConfig
	cfg       *config.Config
	svc       registry.Service
	servers   repositories.ServerRepository
	scans     repositories.ScanRepository
	audits    repositories.AuditRepository
	hub       *audit.Hub
	recorder  *audit.Recorder
	engine    *policy.Engine
	scheduler *scheduler.FakeScheduler
}

func newHarness(t *testing.T, configure func(*config.Config)) *harness {
	t.Helper()

	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gormDB.AutoMigrate(&models.Server{}, &models.Scan{}, &models.Approval{}, &models.AuditEvent{}))

	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := &config.Config{}
	cfg.Server.Mode = "test"
	cfg.Metrics.Enabled = true
	cfg.Scanner.Image = "registry.internal/mcp-scanner:2.3.1"
	cfg.Scanner.ScannerVersion = "2.3.1"
	cfg.Scanner.TimeoutSeconds = 300
	cfg.Policy.ScanPassThreshold = 0.6
	cfg.Policy.EnforceRegistryOnly = true
	cfg.Policy.RiskThreshold = 0.7
	cfg.Policy.RequireAdminForHighRisk = true
	cfg.Enforcement.Enabled = true
	cfg.Enforcement.Mode = "enforce"
	cfg.Enforcement.DefaultTimeoutMs = 30000
	cfg.Enforcement.MaxRequestPayloadBytes = 1 << 20
	cfg.Audit.QueueSize = 64
	cfg.Audit.Workers = 1
	if configure != nil {
		configure(cfg)
	}

	servers := repositories.NewServerRepository(gormDB)
	scans := repositories.NewScanRepository(gormDB)
	approvals := repositories.NewApprovalRepository(gormDB)
	audits := repositories.NewAuditRepository(gormDB)

	sched := scheduler.NewFakeScheduler()
	orchestrator := scan.NewOrchestrator(servers, scans, sched, cfg, log)
	svc := registry.NewService(servers, scans, approvals, orchestrator, cfg, log)

	hub := audit.NewHub(cfg.Audit.StreamBuffer, log)
	recorder := audit.NewRecorder(audits, hub, cfg, log)
	t.Cleanup(recorder.Close)

	engine := policy.NewEngine(servers, cfg, log)
	enforcer := enforce.NewAdapter(engine, recorder, cfg, log)
	t.Cleanup(enforcer.Close)

	verifier := auth.VerifierFunc(func(ctx context.Context, token string) (*models.Principal, error) {
		if principal, ok := testPrincipals[token]; ok {
			return &principal, nil
		}
		return nil, errors.New("unknown token")
	})

	serverCfg := &ServerConfig{
		Config:   cfg,
		Logger:   log,
		DB:       database.NewMockDatabase(gormDB, nil),
		Verifier: verifier,
		Registry: svc,
		Servers:  servers,
		Recorder: recorder,
		Hub:      hub,
		Engine:   engine,
		Enforcer: enforcer,
	}
	server, err := NewServer(serverCfg)
	require.NoError(t, err)
	require.NoError(t, server.RegisterRoutes())

	return &harness{
		t:         t,
		server:    server,
		serverCfg: serverCfg,
		cfg:       cfg,
		svc:       svc,
		servers:   servers,
		scans:     scans,
		audits:    audits,
		hub:       hub,
		recorder:  recorder,
		engine:    engine,
		scheduler: sched,
	}
}

// do runs one request through the full router. A string body is sent as-is;
// anything else non-nil is marshaled as JSON.
func (h *harness) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	h.t.Helper()
	return doServer(h.t, h.server, method, path, token, body)
}

func doServer(t *testing.T, s *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(v)
	default:
		payload, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.1:1234"
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *utils.APIError `json:"error"`
	Meta    *utils.Meta     `json:"meta"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

// unmarshalData decodes the envelope's data field into out.
func unmarshalData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()

	env := decodeEnvelope(t, w)
	require.True(t, env.Success, "expected a success envelope, got %s", w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, out))
}

// registerServer creates a registration through the API as the owner.
func (h *harness) registerServer(t *testing.T, canonicalID string) models.Server {
	t.Helper()

	w := h.do(http.MethodPost, "/registry/servers", "owner-token", models.RegisterServerRequest{
		CanonicalID:   canonicalID,
		Name:          "Search Tools",
		SourceType:    models.SourceExternalRepo,
		SourceURL:     "https://github.com/example/search-tools",
		Version:       "1.0.0",
		DeclaredTools: models.StringArray{"search", "fetch"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var server models.Server
	unmarshalData(t, w, &server)
	return server
}

// forceStatus writes the lifecycle status directly, for tests that exercise
// HTTP mapping rather than the transition rules.
func (h *harness) forceStatus(t *testing.T, id string, status models.ServerStatus) {
	t.Helper()

	server, err := h.servers.GetByID(context.Background(), id)
	require.NoError(t, err)
	server.Status = status
	require.NoError(t, h.servers.Update(context.Background(), server))
}
