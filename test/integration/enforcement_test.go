package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagesec/mcpwarden/internal/config"
	"github.com/vantagesec/mcpwarden/internal/models"
	"github.com/vantagesec/mcpwarden/pkg/client"
)

func TestEnforcementUnknownServer(t *testing.T) {
	s := startStack(t, nil)

	viewer := s.apiClient(t, mintToken(t, "dave", "growth"))
	status, body := callTool(t, viewer, s.http.URL, "growth/unregistered", "search")
	require.Equal(t, http.StatusForbidden, status)

	d := decodeDenial(t, body)
	assert.Equal(t, models.DecisionDeniedServerNotApproved.String(), d.Decision)
	assert.Equal(t, "growth/unregistered", d.ServerCanonicalID)
	assert.NotEmpty(t, d.Reason)

	// Anonymous traffic is gated the same way.
	payload := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"search"}}`
	resp, err := http.Post(s.http.URL+"/mcp/adapters/growth%2Funregistered", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

// TestEnforcementAuditMode verifies that audit mode observes without
// blocking: a call the policy would deny still reaches the upstream, and the
// denial verdict lands in the audit trail anyway.
func TestEnforcementAuditMode(t *testing.T) {
	upstreamReply := `{"jsonrpc":"2.0","id":1,"result":{"content":[]}}`
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, upstreamReply)
	}))
	t.Cleanup(upstream.Close)

	s := startStack(t, func(cfg *config.Config) {
		cfg.Enforcement.Mode = "audit"
	})
	ctx := context.Background()

	owner := s.apiClient(t, mintToken(t, "alice", "platform"))
	_, err := owner.RegisterServer(ctx, &models.RegisterServerRequest{
		CanonicalID:   "platform/shadow-tools",
		Name:          "Shadow Tools",
		SourceType:    models.SourceExternalRepo,
		SourceURL:     "https://github.com/vantagesec/shadow-tools",
		Version:       "0.1.0",
		DeclaredTools: models.StringArray{"search"},
		MCPConfig:     models.JSONMap{"url": upstream.URL},
	})
	require.NoError(t, err)

	// Still in Draft, so enforce mode would block this call.
	status, body := callTool(t, owner, s.http.URL, "platform/shadow-tools", "search")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, upstreamReply, string(body))

	require.Eventually(t, func() bool {
		page, err := owner.QueryAudit(ctx, &client.AuditQueryOptions{ServerCanonicalID: "platform/shadow-tools"})
		return err == nil && page.Total >= 1
	}, 5*time.Second, 100*time.Millisecond)

	page, err := owner.QueryAudit(ctx, &client.AuditQueryOptions{ServerCanonicalID: "platform/shadow-tools"})
	require.NoError(t, err)
	require.NotEmpty(t, page.Events)
	assert.Equal(t, models.DecisionDeniedServerNotApproved, page.Events[0].Decision)
}

func TestEnforcementRateLimit(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{}}`)
	}))
	t.Cleanup(upstream.Close)

	s := startStack(t, func(cfg *config.Config) {
		cfg.Enforcement.RateLimitPerUser = 1
	})

	owner := s.apiClient(t, mintToken(t, "alice", "platform"))
	admin := s.apiClient(t, mintToken(t, "sec-lead", "security-engineering", models.RoleAdmin))
	registerApproved(t, s, owner, admin, "platform/search-tools", upstream.URL)

	caller := s.apiClient(t, mintToken(t, "erin", "platform"))
	status, _ := callTool(t, caller, s.http.URL, "platform/search-tools", "search")
	require.Equal(t, http.StatusOK, status)

	// The second call burns through the per-user budget immediately.
	status, body := callTool(t, caller, s.http.URL, "platform/search-tools", "search")
	require.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, models.DecisionDeniedRateLimited.String(), decodeDenial(t, body).Decision)
}

func TestPolicyCheckAndReload(t *testing.T) {
	s := startStack(t, nil)
	ctx := context.Background()

	owner := s.apiClient(t, mintToken(t, "alice", "platform"))
	admin := s.apiClient(t, mintToken(t, "sec-lead", "security-engineering", models.RoleSecurity))
	registerApproved(t, s, owner, admin, "platform/search-tools", "")

	// The policy surface is admin-only.
	_, err := owner.CheckPolicy(ctx, &models.PolicyCheckRequest{
		ServerCanonicalID: "platform/search-tools",
		ToolName:          "search",
	})
	require.ErrorIs(t, err, client.ErrForbidden)

	verdict, err := admin.CheckPolicy(ctx, &models.PolicyCheckRequest{
		PrincipalID:       "alice",
		Team:              "platform",
		ServerCanonicalID: "platform/search-tools",
		ToolName:          "search",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionAllowed, verdict.Decision)

	verdict, err = admin.CheckPolicy(ctx, &models.PolicyCheckRequest{
		PrincipalID:       "alice",
		Team:              "platform",
		ServerCanonicalID: "platform/search-tools",
		ToolName:          "shell_exec",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionDeniedToolDenylisted, verdict.Decision)

	// Denylist edits take effect on reload, not before.
	s.cfg.Policy.GlobalToolDenylist = append(s.cfg.Policy.GlobalToolDenylist, "fetch")

	verdict, err = admin.CheckPolicy(ctx, &models.PolicyCheckRequest{
		PrincipalID:       "alice",
		Team:              "platform",
		ServerCanonicalID: "platform/search-tools",
		ToolName:          "fetch",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionAllowed, verdict.Decision)

	require.NoError(t, admin.ReloadPolicy(ctx))

	verdict, err = admin.CheckPolicy(ctx, &models.PolicyCheckRequest{
		PrincipalID:       "alice",
		Team:              "platform",
		ServerCanonicalID: "platform/search-tools",
		ToolName:          "fetch",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionDeniedToolDenylisted, verdict.Decision)
}
