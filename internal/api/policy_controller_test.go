package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagesec/mcpwarden/internal/models"
)

func TestPolicyCheck(t *testing.T) {
	h := newHarness(t, nil)
	created := h.registerServer(t, "acme/search")
	h.forceStatus(t, created.ID, models.StatusApproved)

	t.Run("AdminOnly", func(t *testing.T) {
		w := h.do(http.MethodPost, "/registry/policy/check", "owner-token", models.PolicyCheckRequest{
			ServerCanonicalID: "acme/search",
			ToolName:          "search",
		})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Allowed", func(t *testing.T) {
		w := h.do(http.MethodPost, "/registry/policy/check", "admin-token", models.PolicyCheckRequest{
			PrincipalID:       "alice",
			Team:              "platform",
			ServerCanonicalID: "acme/search",
			ToolName:          "search",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var verdict models.PolicyCheckResponse
		unmarshalData(t, w, &verdict)
		assert.Equal(t, models.DecisionAllowed, verdict.Decision)
	})

	t.Run("UnregisteredServer", func(t *testing.T) {
		w := h.do(http.MethodPost, "/registry/policy/check", "admin-token", models.PolicyCheckRequest{
			PrincipalID:       "alice",
			ServerCanonicalID: "acme/shadow",
			ToolName:          "search",
		})
		require.Equal(t, http.StatusOK, w.Code)

		var verdict models.PolicyCheckResponse
		unmarshalData(t, w, &verdict)
		assert.Equal(t, models.DecisionDeniedServerNotApproved, verdict.Decision)
		assert.NotEmpty(t, verdict.Reason)
	})

	t.Run("MissingFields", func(t *testing.T) {
		w := h.do(http.MethodPost, "/registry/policy/check", "admin-token", `{"tool_name": "search"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPolicyReload(t *testing.T) {
	h := newHarness(t, nil)
	created := h.registerServer(t, "acme/tools")
	h.forceStatus(t, created.ID, models.StatusApproved)

	check := func(t *testing.T) models.Decision {
		t.Helper()
		w := h.do(http.MethodPost, "/registry/policy/check", "admin-token", models.PolicyCheckRequest{
			PrincipalID:       "alice",
			Team:              "platform",
			ServerCanonicalID: "acme/tools",
			ToolName:          "shell_exec",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var verdict models.PolicyCheckResponse
		unmarshalData(t, w, &verdict)
		return verdict.Decision
	}

	require.Equal(t, models.DecisionAllowed, check(t))

	// The engine serves its compiled snapshot until a reload.
	h.cfg.Policy.GlobalToolDenylist = []string{"shell_exec"}
	require.Equal(t, models.DecisionAllowed, check(t))

	w := h.do(http.MethodPost, "/registry/policy/reload", "admin-token", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "reloaded")

	require.Equal(t, models.DecisionDeniedToolDenylisted, check(t))

	t.Run("AdminOnly", func(t *testing.T) {
		w := h.do(http.MethodPost, "/registry/policy/reload", "owner-token", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
