package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagesec/mcpwarden/internal/config"
	"github.com/vantagesec/mcpwarden/internal/database"
)

func TestNewServerValidation(t *testing.T) {
	h := newHarness(t, nil)

	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr string
	}{
		{"NoConfig", func(c *ServerConfig) { c.Config = nil }, "config is required"},
		{"NoLogger", func(c *ServerConfig) { c.Logger = nil }, "logger is required"},
		{"NoDatabase", func(c *ServerConfig) { c.DB = nil }, "database is required"},
		{"NoVerifier", func(c *ServerConfig) { c.Verifier = nil }, "token verifier is required"},
		{"NoRegistry", func(c *ServerConfig) { c.Registry = nil }, "registry service is required"},
		{"NoServers", func(c *ServerConfig) { c.Servers = nil }, "server repository is required"},
		{"NoRecorder", func(c *ServerConfig) { c.Recorder = nil }, "audit recorder is required"},
		{"NoHub", func(c *ServerConfig) { c.Hub = nil }, "audit hub is required"},
		{"NoEngine", func(c *ServerConfig) { c.Engine = nil }, "policy engine is required"},
		{"NoEnforcer", func(c *ServerConfig) { c.Enforcer = nil }, "enforcement adapter is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *h.serverCfg
			tt.mutate(&cfg)

			server, err := NewServer(&cfg)
			assert.Nil(t, server)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Version = "1.2.3"
	})

	w := h.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "1.2.3", body["version"])
	assert.Equal(t, "test", body["mode"])
}

func TestReadyz(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ready")
}

func TestReadyzDatabaseDown(t *testing.T) {
	h := newHarness(t, nil)

	cfg := *h.serverCfg
	cfg.DB = database.NewMockDatabase(nil, errors.New("connection refused"))
	server, err := NewServer(&cfg)
	require.NoError(t, err)
	require.NoError(t, server.RegisterRoutes())

	w := doServer(t, server, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "database unreachable")
}

func TestNotFoundRoute(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(http.MethodGet, "/no/such/route", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Route not found", body["error"])
	assert.Equal(t, "/no/such/route", body["path"])
}

func TestMetricsRoute(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mcpwarden_")
}

func TestMetricsRouteDisabled(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Metrics.Enabled = false
	})

	w := h.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
