package api

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagesec/mcpwarden/internal/models"
)

func TestRegisterServer(t *testing.T) {
	h := newHarness(t, nil)

	server := h.registerServer(t, "acme/search-tools")
	assert.NotEmpty(t, server.ID)
	assert.Equal(t, "acme/search-tools", server.CanonicalID)
	assert.Equal(t, models.StatusDraft, server.Status)
	assert.Equal(t, "platform", server.OwnerTeam)
	assert.Equal(t, "alice", server.CreatedBy)

	t.Run("DuplicateCanonicalID", func(t *testing.T) {
		w := h.do(http.MethodPost, "/registry/servers", "other-token", models.RegisterServerRequest{
			CanonicalID: "ACME/Search-Tools",
			Name:        "Copycat",
			SourceType:  models.SourceExternalRepo,
			SourceURL:   "https://github.com/example/copycat",
			Version:     "0.1.0",
		})
		require.Equal(t, http.StatusConflict, w.Code, w.Body.String())

		env := decodeEnvelope(t, w)
		require.NotNil(t, env.Error)
		assert.Equal(t, "CONFLICT", env.Error.Code)
	})
}

func TestRegisterServerValidation(t *testing.T) {
	h := newHarness(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"MalformedCanonicalID", `{"canonical_id": "bad id!", "name": "x", "source_type": "ExternalRepo", "source_url": "https://github.com/x/y", "version": "1.0.0"}`},
		{"MissingName", `{"canonical_id": "acme/x", "source_type": "ExternalRepo", "source_url": "https://github.com/x/y", "version": "1.0.0"}`},
		{"NotJSON", `{{{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(http.MethodPost, "/registry/servers", "owner-token", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestRegistryAuthRequired(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(http.MethodGet, "/registry/servers", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(http.MethodGet, "/registry/servers", "bogus-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetServer(t *testing.T) {
	h := newHarness(t, nil)
	created := h.registerServer(t, "acme/lookup")

	w := h.do(http.MethodGet, "/registry/servers/"+created.ID, "owner-token", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got models.Server
	unmarshalData(t, w, &got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "acme/lookup", got.CanonicalID)

	t.Run("UnknownID", func(t *testing.T) {
		w := h.do(http.MethodGet, "/registry/servers/00000000-0000-0000-0000-000000000000", "owner-token", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("StrangerForbidden", func(t *testing.T) {
		w := h.do(http.MethodGet, "/registry/servers/"+created.ID, "other-token", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("AdminAllowed", func(t *testing.T) {
		w := h.do(http.MethodGet, "/registry/servers/"+created.ID, "admin-token", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestGetServerByCanonicalID(t *testing.T) {
	h := newHarness(t, nil)
	created := h.registerServer(t, "acme/tools")

	// The id contains a slash, so the route carries it as a wildcard
	// segment.
	w := h.do(http.MethodGet, "/registry/servers/by-canonical-id/acme/tools", "owner-token", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got models.Server
	unmarshalData(t, w, &got)
	assert.Equal(t, created.ID, got.ID)

	t.Run("Unknown", func(t *testing.T) {
		w := h.do(http.MethodGet, "/registry/servers/by-canonical-id/acme/absent", "owner-token", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestListServers(t *testing.T) {
	h := newHarness(t, nil)
	h.registerServer(t, "acme/alpha")
	beta := h.registerServer(t, "acme/beta")
	h.forceStatus(t, beta.ID, models.StatusApproved)

	t.Run("All", func(t *testing.T) {
		w := h.do(http.MethodGet, "/registry/servers", "owner-token", nil)
		require.Equal(t, http.StatusOK, w.Code)

		env := decodeEnvelope(t, w)
		require.NotNil(t, env.Meta)
		assert.EqualValues(t, 2, env.Meta.Total)
	})

	t.Run("StatusFilter", func(t *testing.T) {
		w := h.do(http.MethodGet, "/registry/servers?status=Approved", "owner-token", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var servers []models.Server
		unmarshalData(t, w, &servers)
		require.Len(t, servers, 1)
		assert.Equal(t, "acme/beta", servers[0].CanonicalID)
	})

	t.Run("UnknownStatus", func(t *testing.T) {
		w := h.do(http.MethodGet, "/registry/servers?status=Sideways", "owner-token", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("QueryFilter", func(t *testing.T) {
		w := h.do(http.MethodGet, "/registry/servers?q=beta", "owner-token", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var servers []models.Server
		unmarshalData(t, w, &servers)
		require.Len(t, servers, 1)
		assert.Equal(t, "acme/beta", servers[0].CanonicalID)
	})

	t.Run("Pagination", func(t *testing.T) {
		w := h.do(http.MethodGet, "/registry/servers?limit=1&offset=1", "owner-token", nil)
		require.Equal(t, http.StatusOK, w.Code)

		env := decodeEnvelope(t, w)
		require.NotNil(t, env.Meta)
		assert.Equal(t, 1, env.Meta.Limit)
		assert.Equal(t, 1, env.Meta.Offset)
		assert.EqualValues(t, 2, env.Meta.Total)
	})

	t.Run("ScopedToTeams", func(t *testing.T) {
		w := h.do(http.MethodGet, "/registry/servers", "other-token", nil)
		require.Equal(t, http.StatusOK, w.Code)

		env := decodeEnvelope(t, w)
		require.NotNil(t, env.Meta)
		assert.EqualValues(t, 0, env.Meta.Total)
	})
}

func TestUpdateServer(t *testing.T) {
	h := newHarness(t, nil)
	created := h.registerServer(t, "acme/update-me")

	description := "Sharper description"
	w := h.do(http.MethodPut, "/registry/servers/"+created.ID, "owner-token", models.UpdateServerRequest{
		Description: &description,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got models.Server
	unmarshalData(t, w, &got)
	assert.Equal(t, "Sharper description", got.Description)

	t.Run("StrangerForbidden", func(t *testing.T) {
		w := h.do(http.MethodPut, "/registry/servers/"+created.ID, "other-token", models.UpdateServerRequest{
			Description: &description,
		})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestDeleteServer(t *testing.T) {
	h := newHarness(t, nil)
	created := h.registerServer(t, "acme/ephemeral")

	w := h.do(http.MethodDelete, "/registry/servers/"+created.ID, "owner-token", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = h.do(http.MethodGet, "/registry/servers/"+created.ID, "owner-token", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestScanLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	created := h.registerServer(t, "acme/scannable")

	w := h.do(http.MethodPost, "/registry/servers/"+created.ID+"/scan", "owner-token", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var submitted models.Scan
	unmarshalData(t, w, &submitted)
	assert.Equal(t, models.ScanRunning, submitted.Status)
	assert.Equal(t, "alice", submitted.TriggeredBy)
	require.Len(t, h.scheduler.Submitted(), 1)

	t.Run("ServerMovedToScanning", func(t *testing.T) {
		w := h.do(http.MethodGet, "/registry/servers/"+created.ID, "owner-token", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var got models.Server
		unmarshalData(t, w, &got)
		assert.Equal(t, models.StatusScanning, got.Status)
	})

	t.Run("ResubmitWhileScanning", func(t *testing.T) {
		w := h.do(http.MethodPost, "/registry/servers/"+created.ID+"/scan", "owner-token", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("ListScans", func(t *testing.T) {
		w := h.do(http.MethodGet, "/registry/servers/"+created.ID+"/scans", "owner-token", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var scans []models.Scan
		unmarshalData(t, w, &scans)
		require.Len(t, scans, 1)
		assert.Equal(t, submitted.ID, scans[0].ID)
	})

	t.Run("GetScan", func(t *testing.T) {
		w := h.do(http.MethodGet, "/registry/servers/"+created.ID+"/scans/"+submitted.ID, "owner-token", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var got models.Scan
		unmarshalData(t, w, &got)
		assert.Equal(t, submitted.ID, got.ID)
	})

	t.Run("LatestScan", func(t *testing.T) {
		w := h.do(http.MethodGet, "/registry/servers/"+created.ID+"/scan/latest", "owner-token", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var got models.Scan
		unmarshalData(t, w, &got)
		assert.Equal(t, submitted.ID, got.ID)
	})

	t.Run("Cancel", func(t *testing.T) {
		w := h.do(http.MethodPost, "/registry/servers/"+created.ID+"/scans/"+submitted.ID+"/cancel", "owner-token", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var got models.Scan
		unmarshalData(t, w, &got)
		assert.Equal(t, models.ScanCancelled, got.Status)

		// Cancelling twice is an invalid state transition.
		w = h.do(http.MethodPost, "/registry/servers/"+created.ID+"/scans/"+submitted.ID+"/cancel", "owner-token", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("UnknownScan", func(t *testing.T) {
		w := h.do(http.MethodGet, "/registry/servers/"+created.ID+"/scans/no-such-scan", "owner-token", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestUploadLocalScan(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(http.MethodPost, "/registry/servers", "owner-token", models.RegisterServerRequest{
		CanonicalID:   "acme/local-tools",
		Name:          "Local Tools",
		SourceType:    models.SourceLocalDeclared,
		Version:       "0.4.0",
		DeclaredTools: models.StringArray{"lookup"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.Server
	unmarshalData(t, w, &created)

	report := `{"risk_score": 0.2, "scanner_version": "2.3.1", "summary": "clean", "tools": [{"name": "lookup"}]}`
	w = h.do(http.MethodPost, "/registry/servers/"+created.ID+"/scan/upload", "owner-token",
		fmt.Sprintf(`{"scan_output": %s}`, report))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var uploaded models.Scan
	unmarshalData(t, w, &uploaded)
	assert.Equal(t, models.ScanCompleted, uploaded.Status)
	require.NotNil(t, uploaded.RiskScore)
	assert.InDelta(t, 0.2, *uploaded.RiskScore, 1e-9)
	assert.Equal(t, "2.3.1", uploaded.ScannerVersion)

	t.Run("ServerMovedToScannedPass", func(t *testing.T) {
		w := h.do(http.MethodGet, "/registry/servers/"+created.ID, "owner-token", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var got models.Server
		unmarshalData(t, w, &got)
		assert.Equal(t, models.StatusScannedPass, got.Status)
	})

	t.Run("ScheduledScanRejected", func(t *testing.T) {
		w := h.do(http.MethodPost, "/registry/servers/"+created.ID+"/scan", "owner-token", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("UnparsableReport", func(t *testing.T) {
		other := h.registerLocalServer(t, "acme/local-other")
		w := h.do(http.MethodPost, "/registry/servers/"+other.ID+"/scan/upload", "owner-token",
			`{"scan_output": "exit code 1: scanner crashed before emitting a report"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	})
}

func TestUploadRejectedForExternalServer(t *testing.T) {
	h := newHarness(t, nil)
	created := h.registerServer(t, "acme/external")

	w := h.do(http.MethodPost, "/registry/servers/"+created.ID+"/scan/upload", "owner-token",
		`{"scan_output": {"risk_score": 0.1}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApprovalFlow(t *testing.T) {
	h := newHarness(t, nil)
	created := h.registerServer(t, "acme/approvable")
	h.forceStatus(t, created.ID, models.StatusScannedPass)

	t.Run("OwnerCannotApprove", func(t *testing.T) {
		w := h.do(http.MethodPost, "/registry/servers/"+created.ID+"/approve", "owner-token", models.ApproveRequest{
			Reason: "lgtm",
		})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("ReasonRequired", func(t *testing.T) {
		w := h.do(http.MethodPost, "/registry/servers/"+created.ID+"/approve", "admin-token", `{"reason": ""}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("AdminApproves", func(t *testing.T) {
		w := h.do(http.MethodPost, "/registry/servers/"+created.ID+"/approve", "admin-token", models.ApproveRequest{
			Reason: "scan clean, owner vouched",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var approval models.Approval
		unmarshalData(t, w, &approval)
		assert.Equal(t, models.ActionApproved, approval.Action)
		assert.Equal(t, "root", approval.Actor)
		assert.Equal(t, "acme/approvable", approval.ServerCanonicalID)
	})

	t.Run("ApproveFromApprovedConflicts", func(t *testing.T) {
		w := h.do(http.MethodPost, "/registry/servers/"+created.ID+"/approve", "admin-token", models.ApproveRequest{
			Reason: "again",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("SuspendAndReinstate", func(t *testing.T) {
		w := h.do(http.MethodPost, "/registry/servers/"+created.ID+"/suspend", "admin-token", models.DecisionRequest{
			Reason: "incident 4821",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = h.do(http.MethodPost, "/registry/servers/"+created.ID+"/reinstate", "admin-token", models.DecisionRequest{
			Reason: "incident resolved",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var approval models.Approval
		unmarshalData(t, w, &approval)
		assert.Equal(t, models.ActionReinstated, approval.Action)
	})

	t.Run("Deprecate", func(t *testing.T) {
		w := h.do(http.MethodPost, "/registry/servers/"+created.ID+"/deprecate", "admin-token", models.DecisionRequest{
			Reason: "superseded by v2",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		// Deprecated is terminal.
		w = h.do(http.MethodPost, "/registry/servers/"+created.ID+"/reinstate", "admin-token", models.DecisionRequest{
			Reason: "bring it back",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("ApprovalHistory", func(t *testing.T) {
		w := h.do(http.MethodGet, "/registry/servers/"+created.ID+"/approvals", "owner-token", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var approvals []models.Approval
		unmarshalData(t, w, &approvals)
		require.Len(t, approvals, 4)
		// Newest first.
		assert.Equal(t, models.ActionDeprecated, approvals[0].Action)
	})
}

func TestApproveDraftRejected(t *testing.T) {
	h := newHarness(t, nil)
	created := h.registerServer(t, "acme/too-early")

	w := h.do(http.MethodPost, "/registry/servers/"+created.ID+"/approve", "admin-token", models.ApproveRequest{
		Reason: "impatient",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestApproveFailedScanNeedsOverride(t *testing.T) {
	h := newHarness(t, nil)
	created := h.registerServer(t, "acme/risky")
	h.forceStatus(t, created.ID, models.StatusScannedFail)

	w := h.do(http.MethodPost, "/registry/servers/"+created.ID+"/approve", "admin-token", models.ApproveRequest{
		Reason: "business critical",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(http.MethodPost, "/registry/servers/"+created.ID+"/approve", "admin-token", models.ApproveRequest{
		Reason:         "business critical",
		OverrideReason: "risk accepted by CISO ticket SEC-991",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var approval models.Approval
	unmarshalData(t, w, &approval)
	assert.Contains(t, approval.Notes, "override: risk accepted")
}

func TestRequestApproval(t *testing.T) {
	h := newHarness(t, nil)
	created := h.registerServer(t, "acme/queued")
	h.forceStatus(t, created.ID, models.StatusScannedPass)

	w := h.do(http.MethodPost, "/registry/servers/"+created.ID+"/request-approval", "owner-token", models.DecisionRequest{
		Reason: "ready for review",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got models.Server
	unmarshalData(t, w, &got)
	assert.Equal(t, models.StatusPendingApproval, got.Status)
}

func TestDenyServer(t *testing.T) {
	h := newHarness(t, nil)
	created := h.registerServer(t, "acme/denied")
	h.forceStatus(t, created.ID, models.StatusPendingApproval)

	w := h.do(http.MethodPost, "/registry/servers/"+created.ID+"/deny", "admin-token", models.DecisionRequest{
		Reason: "exfiltration-shaped tool surface",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var approval models.Approval
	unmarshalData(t, w, &approval)
	assert.Equal(t, models.ActionDenied, approval.Action)

	var gotStatus string
	{
		w := h.do(http.MethodGet, "/registry/servers/"+created.ID, "owner-token", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var got models.Server
		unmarshalData(t, w, &got)
		gotStatus = got.Status.String()
	}
	assert.Equal(t, models.StatusDenied.String(), gotStatus)
}

func TestWatchScan(t *testing.T) {
	h := newHarness(t, nil)
	created := h.registerLocalServer(t, "acme/watched")

	report := `{"risk_score": 0.1, "scanner_version": "2.3.1", "summary": "clean", "tools": []}`
	w := h.do(http.MethodPost, "/registry/servers/"+created.ID+"/scan/upload", "owner-token",
		fmt.Sprintf(`{"scan_output": %s}`, report))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var uploaded models.Scan
	unmarshalData(t, w, &uploaded)

	// Streaming needs a real server; a ResponseRecorder cannot signal
	// client departure.
	ts := httptest.NewServer(h.server.Router())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet,
		ts.URL+"/registry/servers/"+created.ID+"/scans/"+uploaded.ID+"/watch", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer owner-token")

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// The scan is already terminal, so the stream emits one frame and ends.
	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(payload)
	assert.Contains(t, body, "event:scan")
	assert.Contains(t, body, uploaded.ID)
	assert.Contains(t, body, "Completed")
	assert.Equal(t, 1, strings.Count(body, "event:scan"))
}

// registerLocalServer registers a LocalDeclared server, which takes uploaded
// scan results instead of scheduled scans.
func (h *harness) registerLocalServer(t *testing.T, canonicalID string) models.Server {
	t.Helper()

	w := h.do(http.MethodPost, "/registry/servers", "owner-token", models.RegisterServerRequest{
		CanonicalID:   canonicalID,
		Name:          "Local " + canonicalID,
		SourceType:    models.SourceLocalDeclared,
		Version:       "0.1.0",
		DeclaredTools: models.StringArray{"lookup"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var server models.Server
	unmarshalData(t, w, &server)
	return server
}
