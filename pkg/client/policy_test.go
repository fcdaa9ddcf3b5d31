package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagesec/mcpwarden/internal/models"
)

// TestCheckPolicy tests the dry-run decision endpoint
func TestCheckPolicy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/registry/policy/check", r.URL.Path)

		var req models.PolicyCheckRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "github.com/acme/mcp-files", req.ServerCanonicalID)
		assert.Equal(t, "delete_file", req.ToolName)

		riskScore := 0.35
		w.WriteHeader(http.StatusOK)
		w.Write(envelopeJSON(t, models.PolicyCheckResponse{
			Decision:        models.DecisionDeniedToolDenylisted,
			Reason:          "tool is on the denylist",
			ServerRiskScore: &riskScore,
		}))
	}))
	defer server.Close()

	client, err := NewClient(WithBaseURL(server.URL))
	require.NoError(t, err)

	result, err := client.CheckPolicy(context.Background(), &models.PolicyCheckRequest{
		ServerCanonicalID: "github.com/acme/mcp-files",
		ToolName:          "delete_file",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionDeniedToolDenylisted, result.Decision)
	assert.Equal(t, "tool is on the denylist", result.Reason)
	require.NotNil(t, result.ServerRiskScore)
	assert.Equal(t, 0.35, *result.ServerRiskScore)

	_, err = client.CheckPolicy(context.Background(), nil)
	assert.Error(t, err)
}

// TestReloadPolicy tests forcing a snapshot rebuild
func TestReloadPolicy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/registry/policy/reload", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"success":true,"data":null}`))
	}))
	defer server.Close()

	client, err := NewClient(WithBaseURL(server.URL))
	require.NoError(t, err)

	require.NoError(t, client.ReloadPolicy(context.Background()))
}

// TestReloadPolicyForbidden tests that a non-admin reload maps to ErrForbidden
func TestReloadPolicyForbidden(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"success":false,"error":{"code":"FORBIDDEN","message":"admin role required"}}`))
	}))
	defer server.Close()

	client, err := NewClient(WithBaseURL(server.URL))
	require.NoError(t, err)

	err = client.ReloadPolicy(context.Background())
	assert.ErrorIs(t, err, ErrForbidden)
}
