package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagesec/mcpwarden/internal/models"
)

func seedAuditEvents(t *testing.T, h *harness) {
	t.Helper()

	base := time.Now().UTC().Add(-time.Hour)
	events := []*models.AuditEvent{
		{ID: "evt-1", Timestamp: base, Actor: "alice", Team: "platform", ServerCanonicalID: "acme/search", ToolName: "search", Decision: models.DecisionAllowed, LatencyMs: 12},
		{ID: "evt-2", Timestamp: base.Add(time.Minute), Actor: "alice", Team: "platform", ServerCanonicalID: "acme/search", ToolName: "fetch", Decision: models.DecisionAllowed, LatencyMs: 30},
		{ID: "evt-3", Timestamp: base.Add(2 * time.Minute), Actor: "bob", Team: "growth", ServerCanonicalID: "acme/shell", ToolName: "exec", Decision: models.DecisionDeniedToolDenylisted, Reason: "tool exec is denylisted"},
		{ID: "evt-4", Timestamp: base.Add(3 * time.Minute), Actor: "bob", Team: "growth", ServerCanonicalID: "acme/shadow", ToolName: "search", Decision: models.DecisionDeniedServerNotApproved, Reason: "not approved"},
	}
	require.NoError(t, h.audits.Insert(context.Background(), events))
}

func TestAuditQuery(t *testing.T) {
	h := newHarness(t, nil)
	seedAuditEvents(t, h)

	w := h.do(http.MethodGet, "/registry/audit", "owner-token", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The audit query returns its page shape directly, not the envelope.
	var page models.AuditQueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.EqualValues(t, 4, page.Total)
	assert.Len(t, page.Events, 4)
	assert.Equal(t, 100, page.Limit)
	// Newest first.
	assert.Equal(t, "evt-4", page.Events[0].ID)

	t.Run("DecisionFilter", func(t *testing.T) {
		w := h.do(http.MethodGet, "/registry/audit?decision=Allowed", "owner-token", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var page models.AuditQueryResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
		assert.EqualValues(t, 2, page.Total)
		for _, event := range page.Events {
			assert.Equal(t, models.DecisionAllowed, event.Decision)
		}
	})

	t.Run("TeamFilter", func(t *testing.T) {
		w := h.do(http.MethodGet, "/registry/audit?team=growth", "owner-token", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var page models.AuditQueryResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
		assert.EqualValues(t, 2, page.Total)
	})

	t.Run("Pagination", func(t *testing.T) {
		w := h.do(http.MethodGet, "/registry/audit?limit=1&offset=1", "owner-token", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var page models.AuditQueryResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
		assert.EqualValues(t, 4, page.Total)
		require.Len(t, page.Events, 1)
		assert.Equal(t, 1, page.Limit)
		assert.Equal(t, 1, page.Offset)
		assert.Equal(t, "evt-3", page.Events[0].ID)
	})

	t.Run("AuthRequired", func(t *testing.T) {
		w := h.do(http.MethodGet, "/registry/audit", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuditStats(t *testing.T) {
	h := newHarness(t, nil)
	seedAuditEvents(t, h)

	w := h.do(http.MethodGet, "/registry/audit/stats", "owner-token", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var stats models.AuditStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.EqualValues(t, 4, stats.Total)
	assert.EqualValues(t, 2, stats.ByDecision["Allowed"])
	assert.EqualValues(t, 1, stats.ByDecision["DeniedToolDenylisted"])
	assert.EqualValues(t, 1, stats.ByDecision["DeniedServerNotApproved"])

	t.Run("Windowed", func(t *testing.T) {
		w := h.do(http.MethodGet, "/registry/audit/stats?team=platform", "owner-token", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var stats models.AuditStats
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
		assert.EqualValues(t, 2, stats.Total)
	})
}

func TestAuditStream(t *testing.T) {
	h := newHarness(t, nil)

	ts := httptest.NewServer(h.server.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/registry/audit/stream"
	header := http.Header{"Authorization": []string{"Bearer owner-token"}}

	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer ws.Close()
	if resp != nil {
		defer resp.Body.Close()
	}

	// The handler subscribes after the handshake completes.
	require.Eventually(t, func() bool {
		return h.hub.Subscribers() == 1
	}, time.Second, 10*time.Millisecond)

	h.hub.Broadcast(&models.AuditEvent{
		ID:                "evt-live",
		Timestamp:         time.Now().UTC(),
		Actor:             "alice",
		ServerCanonicalID: "acme/search",
		ToolName:          "search",
		Decision:          models.DecisionAllowed,
	})

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	kind, frame, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)

	var event models.AuditEvent
	require.NoError(t, json.Unmarshal(frame, &event))
	assert.Equal(t, "evt-live", event.ID)
	assert.Equal(t, "acme/search", event.ServerCanonicalID)

	t.Run("Unauthenticated", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}
