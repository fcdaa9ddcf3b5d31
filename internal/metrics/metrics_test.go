package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Collectors live in the default registry, so tests assert on deltas rather
// than absolute values to stay independent of execution order.

func TestRecordRegistration(t *testing.T) {
	before := testutil.ToFloat64(serverRegistrations.WithLabelValues("container_image"))

	RecordRegistration("container_image")
	RecordRegistration("container_image")
	RecordRegistration("external_repo")

	assert.Equal(t, before+2, testutil.ToFloat64(serverRegistrations.WithLabelValues("container_image")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(serverRegistrations.WithLabelValues("external_repo")), 1.0)
}

func TestGauges(t *testing.T) {
	SetApprovedServers(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(approvedServers))

	SetPendingScans(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(pendingScans))

	SetAuditQueueDepth(42)
	assert.Equal(t, 42.0, testutil.ToFloat64(auditQueueDepth))

	// Gauges overwrite, not accumulate.
	SetApprovedServers(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(approvedServers))
}

func TestRecordScanRun(t *testing.T) {
	before := testutil.ToFloat64(scanRuns.WithLabelValues("Completed"))

	RecordScanRun("Completed", 12.5)
	RecordScanRun("Completed", 48.0)
	RecordScanRun("TimedOut", 600.0)

	assert.Equal(t, before+2, testutil.ToFloat64(scanRuns.WithLabelValues("Completed")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(scanRuns.WithLabelValues("TimedOut")), 1.0)
}

func TestRecordToolCall(t *testing.T) {
	before := testutil.ToFloat64(toolCalls.WithLabelValues("Allowed", "acme/search-tools", "search", "platform"))

	RecordToolCall("Allowed", "acme/search-tools", "search", "platform", 0.012)
	RecordToolCall("DeniedServerNotApproved", "acme/rogue", "shell_execute", "", 0.001)

	assert.Equal(t, before+1,
		testutil.ToFloat64(toolCalls.WithLabelValues("Allowed", "acme/search-tools", "search", "platform")))
	assert.GreaterOrEqual(t,
		testutil.ToFloat64(toolCalls.WithLabelValues("DeniedServerNotApproved", "acme/rogue", "shell_execute", "none")),
		1.0, "an empty team label normalizes to none")
}

func TestRecordAuditDrop(t *testing.T) {
	before := testutil.ToFloat64(auditDropped)

	RecordAuditDrop()
	RecordAuditDrop()

	assert.Equal(t, before+2, testutil.ToFloat64(auditDropped))
}

func TestHandlerServesMetrics(t *testing.T) {
	RecordRegistration("local_declared")
	RecordRiskScore(0.35)
	RecordPolicyEval(0.0002)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := make([]byte, 1<<20)
	n, _ := resp.Body.Read(body)
	text := string(body[:n])

	assert.Contains(t, text, "mcpwarden_registry_server_registrations_total")
	assert.Contains(t, text, "mcpwarden_scan_risk_score")
	assert.Contains(t, text, "mcpwarden_enforce_policy_eval_seconds")
}
