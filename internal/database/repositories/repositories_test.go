package repositories

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vantagesec/mcpwarden/internal/models"
)

func setupRepositoryDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.Server{},
		&models.Scan{},
		&models.Approval{},
		&models.AuditEvent{},
	)
	require.NoError(t, err)

	return db
}

func newTestServer(canonicalID string) *models.Server {
	return &models.Server{
		CanonicalID:   canonicalID,
		Name:          "Test Server",
		OwnerTeam:     "platform",
		SourceType:    models.SourceExternalRepo,
		SourceURL:     "https://github.com/example/" + canonicalID,
		Version:       "1.0.0",
		Status:        models.StatusDraft,
		DeclaredTools: models.StringArray{"search", "fetch"},
		CreatedBy:     "alice",
	}
}

func TestServerRepository_CreateAndGet(t *testing.T) {
	repo := NewServerRepository(setupRepositoryDB(t))
	ctx := context.Background()

	server := newTestServer("acme/search-tools")
	require.NoError(t, repo.Create(ctx, server))
	require.NotEmpty(t, server.ID)

	t.Run("GetByID", func(t *testing.T) {
		got, err := repo.GetByID(ctx, server.ID)
		require.NoError(t, err)
		assert.Equal(t, "acme/search-tools", got.CanonicalID)
		assert.Equal(t, models.StatusDraft, got.Status)
		assert.Equal(t, models.StringArray{"search", "fetch"}, got.DeclaredTools)
	})

	t.Run("GetByCanonicalID", func(t *testing.T) {
		got, err := repo.GetByCanonicalID(ctx, "acme/search-tools")
		require.NoError(t, err)
		assert.Equal(t, server.ID, got.ID)

		// Lookup is case-insensitive because ids are stored lowercased
		got, err = repo.GetByCanonicalID(ctx, "ACME/Search-Tools")
		require.NoError(t, err)
		assert.Equal(t, server.ID, got.ID)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = repo.GetByCanonicalID(ctx, "nowhere/nothing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("DuplicateCanonicalID", func(t *testing.T) {
		dup := newTestServer("acme/search-tools")
		err := repo.Create(ctx, dup)
		assert.ErrorIs(t, err, ErrDuplicateKey)
	})
}

func TestServerRepository_Update(t *testing.T) {
	repo := NewServerRepository(setupRepositoryDB(t))
	ctx := context.Background()

	server := newTestServer("acme/update-me")
	require.NoError(t, repo.Create(ctx, server))

	server.Status = models.StatusApproved
	server.Version = "1.1.0"
	require.NoError(t, repo.Update(ctx, server))

	got, err := repo.GetByID(ctx, server.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	assert.Equal(t, "1.1.0", got.Version)

	// Zero-valued fields must be written too, or a reset to Draft would
	// silently be skipped
	got.Status = models.StatusDraft
	require.NoError(t, repo.Update(ctx, got))

	again, err := repo.GetByID(ctx, server.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, again.Status)
}

func TestServerRepository_Delete(t *testing.T) {
	repo := NewServerRepository(setupRepositoryDB(t))
	ctx := context.Background()

	server := newTestServer("acme/delete-me")
	require.NoError(t, repo.Create(ctx, server))

	require.NoError(t, repo.Delete(ctx, server.ID))

	_, err := repo.GetByID(ctx, server.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, server.ID), ErrNotFound)
}

func TestServerRepository_List(t *testing.T) {
	repo := NewServerRepository(setupRepositoryDB(t))
	ctx := context.Background()

	approved := models.StatusApproved

	a := newTestServer("acme/alpha")
	a.Status = models.StatusApproved
	a.Tags = models.StringArray{"search", "production"}
	require.NoError(t, repo.Create(ctx, a))

	b := newTestServer("acme/beta")
	b.OwnerTeam = "data"
	require.NoError(t, repo.Create(ctx, b))

	c := newTestServer("widgets/gamma")
	c.Status = models.StatusApproved
	c.CreatedBy = "carol"
	require.NoError(t, repo.Create(ctx, c))

	t.Run("All", func(t *testing.T) {
		servers, count, err := repo.List(ctx, ServerFilter{Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
		assert.Len(t, servers, 3)
	})

	t.Run("ByStatus", func(t *testing.T) {
		servers, count, err := repo.List(ctx, ServerFilter{Status: &approved, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
		assert.Len(t, servers, 2)
	})

	t.Run("ByOwnerTeam", func(t *testing.T) {
		servers, count, err := repo.List(ctx, ServerFilter{OwnerTeam: "data", Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
		require.Len(t, servers, 1)
		assert.Equal(t, "acme/beta", servers[0].CanonicalID)
	})

	t.Run("ByTag", func(t *testing.T) {
		servers, count, err := repo.List(ctx, ServerFilter{Tag: "production", Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
		require.Len(t, servers, 1)
		assert.Equal(t, "acme/alpha", servers[0].CanonicalID)
	})

	t.Run("ByQuery", func(t *testing.T) {
		_, count, err := repo.List(ctx, ServerFilter{Query: "widgets", Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("Pagination", func(t *testing.T) {
		servers, count, err := repo.List(ctx, ServerFilter{Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
		assert.Len(t, servers, 2)

		servers, _, err = repo.List(ctx, ServerFilter{Offset: 2, Limit: 2})
		require.NoError(t, err)
		assert.Len(t, servers, 1)
	})

	t.Run("AccessScopeByCreator", func(t *testing.T) {
		_, count, err := repo.List(ctx, ServerFilter{
			Access: &AccessScope{PrincipalID: "carol"},
			Limit:  10,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count, "carol only sees her own registration")
	})

	t.Run("AccessScopeByTeam", func(t *testing.T) {
		servers, count, err := repo.List(ctx, ServerFilter{
			Access: &AccessScope{PrincipalID: "carol", Teams: []string{"data"}},
			Limit:  10,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
		got := []string{servers[0].CanonicalID, servers[1].CanonicalID}
		assert.ElementsMatch(t, []string{"widgets/gamma", "acme/beta"}, got)
	})
}

func TestServerRepository_ListByStatuses(t *testing.T) {
	repo := NewServerRepository(setupRepositoryDB(t))
	ctx := context.Background()

	a := newTestServer("acme/scanning")
	a.Status = models.StatusScanning
	require.NoError(t, repo.Create(ctx, a))

	b := newTestServer("acme/approved")
	b.Status = models.StatusApproved
	require.NoError(t, repo.Create(ctx, b))

	servers, err := repo.ListByStatuses(ctx, models.StatusScanning, models.StatusPendingScan)
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, "acme/scanning", servers[0].CanonicalID)
}

func TestServerRepository_CountByStatus(t *testing.T) {
	repo := NewServerRepository(setupRepositoryDB(t))
	ctx := context.Background()

	for i, status := range []models.ServerStatus{
		models.StatusApproved,
		models.StatusApproved,
		models.StatusPendingScan,
	} {
		s := newTestServer("acme/count-" + string(rune('a'+i)))
		s.Status = status
		require.NoError(t, repo.Create(ctx, s))
	}

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[models.StatusApproved])
	assert.Equal(t, int64(1), counts[models.StatusPendingScan])
	assert.Equal(t, int64(0), counts[models.StatusDenied])
}

func TestServerRepository_TransitionStatus(t *testing.T) {
	repo := NewServerRepository(setupRepositoryDB(t))
	ctx := context.Background()

	server := newTestServer("acme/transitions")
	require.NoError(t, repo.Create(ctx, server))

	t.Run("Success", func(t *testing.T) {
		err := repo.TransitionStatus(ctx, server.ID, models.StatusDraft, models.StatusPendingScan)
		require.NoError(t, err)

		got, err := repo.GetByID(ctx, server.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPendingScan, got.Status)
	})

	t.Run("StaleFromState", func(t *testing.T) {
		// The server is PendingScan now, so a transition assuming Draft lost
		// the race
		err := repo.TransitionStatus(ctx, server.ID, models.StatusDraft, models.StatusScanning)
		assert.ErrorIs(t, err, ErrConcurrentUpdate)
	})

	t.Run("NotFound", func(t *testing.T) {
		err := repo.TransitionStatus(ctx, "missing-id", models.StatusDraft, models.StatusPendingScan)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestScanRepository_CreateAndList(t *testing.T) {
	db := setupRepositoryDB(t)
	servers := NewServerRepository(db)
	scans := NewScanRepository(db)
	ctx := context.Background()

	server := newTestServer("acme/scanned")
	require.NoError(t, servers.Create(ctx, server))

	first := &models.Scan{
		ServerID:    server.ID,
		Status:      models.ScanCompleted,
		StartedAt:   time.Now().Add(-2 * time.Hour),
		TriggeredBy: "alice",
	}
	require.NoError(t, scans.Create(ctx, first))

	second := &models.Scan{
		ServerID:    server.ID,
		Status:      models.ScanRunning,
		StartedAt:   time.Now().Add(-time.Minute),
		TriggeredBy: "bob",
	}
	require.NoError(t, scans.Create(ctx, second))

	t.Run("ListByServerNewestFirst", func(t *testing.T) {
		got, count, err := scans.ListByServer(ctx, server.ID, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
		require.Len(t, got, 2)
		assert.Equal(t, second.ID, got[0].ID)
		assert.Equal(t, first.ID, got[1].ID)
	})

	t.Run("ListUnfinished", func(t *testing.T) {
		got, err := scans.ListUnfinished(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, second.ID, got[0].ID)
	})

	t.Run("GetByID", func(t *testing.T) {
		got, err := scans.GetByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ScanCompleted, got.Status)

		_, err = scans.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestScanRepository_RecordCompletion(t *testing.T) {
	db := setupRepositoryDB(t)
	servers := NewServerRepository(db)
	scans := NewScanRepository(db)
	ctx := context.Background()

	t.Run("ServerMovesWithScan", func(t *testing.T) {
		server := newTestServer("acme/complete-pass")
		server.Status = models.StatusScanning
		require.NoError(t, servers.Create(ctx, server))

		scan := &models.Scan{
			ServerID:    server.ID,
			Status:      models.ScanRunning,
			StartedAt:   time.Now().Add(-time.Minute),
			TriggeredBy: "alice",
		}
		require.NoError(t, scans.Create(ctx, scan))

		risk := 0.25
		now := time.Now()
		scan.Status = models.ScanCompleted
		scan.RiskScore = &risk
		scan.FinishedAt = &now

		moved, err := scans.RecordCompletion(ctx, scan, models.StatusScanning, models.StatusScannedPass)
		require.NoError(t, err)
		assert.True(t, moved)

		got, err := servers.GetByID(ctx, server.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusScannedPass, got.Status)
		require.NotNil(t, got.LatestScanID)
		assert.Equal(t, scan.ID, *got.LatestScanID)
		require.NotNil(t, got.LatestRiskScore)
		assert.Equal(t, risk, *got.LatestRiskScore)
	})

	t.Run("DeniedServerKeepsState", func(t *testing.T) {
		server := newTestServer("acme/denied-mid-scan")
		server.Status = models.StatusDenied
		require.NoError(t, servers.Create(ctx, server))

		scan := &models.Scan{
			ServerID:    server.ID,
			Status:      models.ScanRunning,
			StartedAt:   time.Now(),
			TriggeredBy: "alice",
		}
		require.NoError(t, scans.Create(ctx, scan))

		now := time.Now()
		scan.Status = models.ScanCompleted
		scan.FinishedAt = &now

		moved, err := scans.RecordCompletion(ctx, scan, models.StatusScanning, models.StatusScannedPass)
		require.NoError(t, err)
		assert.False(t, moved)

		got, err := servers.GetByID(ctx, server.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusDenied, got.Status)
		assert.Nil(t, got.LatestScanID)

		// The scan outcome itself is still recorded
		persisted, err := scans.GetByID(ctx, scan.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ScanCompleted, persisted.Status)
	})
}

func TestApprovalRepository_RecordDecision(t *testing.T) {
	db := setupRepositoryDB(t)
	servers := NewServerRepository(db)
	approvals := NewApprovalRepository(db)
	ctx := context.Background()

	server := newTestServer("acme/approve-me")
	server.Status = models.StatusScannedPass
	require.NoError(t, servers.Create(ctx, server))

	approval := &models.Approval{
		ServerID:          server.ID,
		ServerCanonicalID: server.CanonicalID,
		Actor:             "carol",
		Action:            models.ActionApproved,
		Reason:            "reviewed scan, risk acceptable",
		Timestamp:         time.Now(),
	}

	require.NoError(t, approvals.RecordDecision(ctx, approval, models.StatusScannedPass, models.StatusApproved))

	got, err := servers.GetByID(ctx, server.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)

	history, count, err := approvals.ListByServer(ctx, server.ID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	require.Len(t, history, 1)
	assert.Equal(t, models.ActionApproved, history[0].Action)

	t.Run("StaleStateWritesNothing", func(t *testing.T) {
		stale := &models.Approval{
			ServerID:          server.ID,
			ServerCanonicalID: server.CanonicalID,
			Actor:             "dave",
			Action:            models.ActionApproved,
			Reason:            "double approval",
			Timestamp:         time.Now(),
		}

		err := approvals.RecordDecision(ctx, stale, models.StatusScannedPass, models.StatusApproved)
		assert.ErrorIs(t, err, ErrConcurrentUpdate)

		// The losing decision must not appear in history
		_, count, err := approvals.ListByServer(ctx, server.ID, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("MissingServer", func(t *testing.T) {
		orphan := &models.Approval{
			ServerID:          "missing-id",
			ServerCanonicalID: "missing/server",
			Actor:             "carol",
			Action:            models.ActionDenied,
			Reason:            "no such server",
			Timestamp:         time.Now(),
		}
		err := approvals.RecordDecision(ctx, orphan, models.StatusScannedPass, models.StatusDenied)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestApprovalRepository_GetLatestByServer(t *testing.T) {
	db := setupRepositoryDB(t)
	servers := NewServerRepository(db)
	approvals := NewApprovalRepository(db)
	ctx := context.Background()

	server := newTestServer("acme/history")
	require.NoError(t, servers.Create(ctx, server))

	older := &models.Approval{
		ServerID:          server.ID,
		ServerCanonicalID: server.CanonicalID,
		Actor:             "carol",
		Action:            models.ActionApproved,
		Reason:            "initial approval",
		Timestamp:         time.Now().Add(-time.Hour),
	}
	require.NoError(t, approvals.Create(ctx, older))

	newer := &models.Approval{
		ServerID:          server.ID,
		ServerCanonicalID: server.CanonicalID,
		Actor:             "carol",
		Action:            models.ActionSuspended,
		Reason:            "incident response",
		Timestamp:         time.Now(),
	}
	require.NoError(t, approvals.Create(ctx, newer))

	latest, err := approvals.GetLatestByServer(ctx, server.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionSuspended, latest.Action)

	_, err = approvals.GetLatestByServer(ctx, "missing-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApprovalRepository_ListExpired(t *testing.T) {
	db := setupRepositoryDB(t)
	servers := NewServerRepository(db)
	approvals := NewApprovalRepository(db)
	ctx := context.Background()
	now := time.Now()

	// Server whose newest approval is an expired grant: must be reported
	expired := newTestServer("acme/expired")
	expired.Status = models.StatusApproved
	require.NoError(t, servers.Create(ctx, expired))

	past := now.Add(-time.Hour)
	require.NoError(t, approvals.Create(ctx, &models.Approval{
		ServerID:          expired.ID,
		ServerCanonicalID: expired.CanonicalID,
		Actor:             "carol",
		Action:            models.ActionApproved,
		Reason:            "time-boxed pilot",
		Timestamp:         now.Add(-48 * time.Hour),
		ExpiresAt:         &past,
	}))

	// Server whose expired grant was superseded by a fresh one: not reported
	renewed := newTestServer("acme/renewed")
	renewed.Status = models.StatusApproved
	require.NoError(t, servers.Create(ctx, renewed))

	future := now.Add(24 * time.Hour)
	require.NoError(t, approvals.Create(ctx, &models.Approval{
		ServerID:          renewed.ID,
		ServerCanonicalID: renewed.CanonicalID,
		Actor:             "carol",
		Action:            models.ActionApproved,
		Reason:            "time-boxed pilot",
		Timestamp:         now.Add(-48 * time.Hour),
		ExpiresAt:         &past,
	}))
	require.NoError(t, approvals.Create(ctx, &models.Approval{
		ServerID:          renewed.ID,
		ServerCanonicalID: renewed.CanonicalID,
		Actor:             "carol",
		Action:            models.ActionApproved,
		Reason:            "renewed after review",
		Timestamp:         now.Add(-time.Hour),
		ExpiresAt:         &future,
	}))

	// Server with an open-ended grant: not reported
	openEnded := newTestServer("acme/open-ended")
	openEnded.Status = models.StatusApproved
	require.NoError(t, servers.Create(ctx, openEnded))

	require.NoError(t, approvals.Create(ctx, &models.Approval{
		ServerID:          openEnded.ID,
		ServerCanonicalID: openEnded.CanonicalID,
		Actor:             "carol",
		Action:            models.ActionApproved,
		Reason:            "standing approval",
		Timestamp:         now.Add(-time.Hour),
	}))

	got, err := approvals.ListExpired(ctx, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, expired.ID, got[0].ServerID)
}

func TestAuditRepository_InsertAndQuery(t *testing.T) {
	repo := NewAuditRepository(setupRepositoryDB(t))
	ctx := context.Background()
	now := time.Now()

	events := []*models.AuditEvent{
		{
			Timestamp:         now.Add(-3 * time.Hour),
			Actor:             "alice",
			Team:              "platform",
			ServerCanonicalID: "acme/search-tools",
			ToolName:          "search",
			Decision:          models.DecisionAllowed,
			LatencyMs:         12,
		},
		{
			Timestamp:         now.Add(-2 * time.Hour),
			Actor:             "bob",
			Team:              "data",
			ServerCanonicalID: "acme/search-tools",
			ToolName:          "fetch",
			Decision:          models.DecisionDeniedServerNotApproved,
			Reason:            "server not in Approved state",
			LatencyMs:         2,
		},
		{
			Timestamp:         now.Add(-time.Hour),
			Actor:             "alice",
			Team:              "platform",
			ServerCanonicalID: "widgets/gamma",
			ToolName:          "render",
			Decision:          models.DecisionAllowed,
			LatencyMs:         40,
		},
	}
	require.NoError(t, repo.Insert(ctx, events))
	require.NoError(t, repo.Insert(ctx, nil)) // empty batch is a no-op

	t.Run("All", func(t *testing.T) {
		got, count, err := repo.Query(ctx, models.AuditFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
		require.Len(t, got, 3)
		// Newest first
		assert.Equal(t, "widgets/gamma", got[0].ServerCanonicalID)
	})

	t.Run("ByDecision", func(t *testing.T) {
		got, count, err := repo.Query(ctx, models.AuditFilter{Decision: "DeniedServerNotApproved"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
		require.Len(t, got, 1)
		assert.Equal(t, "bob", got[0].Actor)
	})

	t.Run("UnknownDecisionMatchesNothing", func(t *testing.T) {
		_, count, err := repo.Query(ctx, models.AuditFilter{Decision: "NotADecision"})
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)
	})

	t.Run("ByTeamAndWindow", func(t *testing.T) {
		start := now.Add(-90 * time.Minute)
		got, count, err := repo.Query(ctx, models.AuditFilter{
			Team:      "platform",
			StartDate: &start,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
		require.Len(t, got, 1)
		assert.Equal(t, "widgets/gamma", got[0].ServerCanonicalID)
	})

	t.Run("ByServerAndTool", func(t *testing.T) {
		_, count, err := repo.Query(ctx, models.AuditFilter{
			ServerCanonicalID: "acme/search-tools",
			ToolName:          "search",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})
}

func TestAuditRepository_Stats(t *testing.T) {
	repo := NewAuditRepository(setupRepositoryDB(t))
	ctx := context.Background()
	now := time.Now()

	var events []*models.AuditEvent
	for i := 0; i < 4; i++ {
		events = append(events, &models.AuditEvent{
			Timestamp:         now.Add(-time.Duration(i) * time.Minute),
			Actor:             "alice",
			Team:              "platform",
			ServerCanonicalID: "acme/busy",
			ToolName:          "search",
			Decision:          models.DecisionAllowed,
			LatencyMs:         10,
		})
	}
	events = append(events, &models.AuditEvent{
		Timestamp:         now,
		Actor:             "bob",
		Team:              "data",
		ServerCanonicalID: "acme/quiet",
		ToolName:          "fetch",
		Decision:          models.DecisionDeniedHighRisk,
		LatencyMs:         20,
	})
	require.NoError(t, repo.Insert(ctx, events))

	stats, err := repo.Stats(ctx, models.AuditFilter{})
	require.NoError(t, err)

	assert.Equal(t, int64(5), stats.Total)
	assert.Equal(t, int64(4), stats.ByDecision["Allowed"])
	assert.Equal(t, int64(1), stats.ByDecision["DeniedHighRisk"])

	require.NotEmpty(t, stats.TopServers)
	assert.Equal(t, "acme/busy", stats.TopServers[0].Key)
	assert.Equal(t, int64(4), stats.TopServers[0].Count)

	require.NotEmpty(t, stats.TopTeams)
	assert.Equal(t, "platform", stats.TopTeams[0].Key)

	assert.InDelta(t, 12.0, stats.MeanLatencyMs, 0.001)

	t.Run("EmptyWindow", func(t *testing.T) {
		start := now.Add(time.Hour)
		stats, err := repo.Stats(ctx, models.AuditFilter{StartDate: &start})
		require.NoError(t, err)
		assert.Equal(t, int64(0), stats.Total)
		assert.Empty(t, stats.ByDecision)
		assert.Zero(t, stats.MeanLatencyMs)
	})
}

// setupMockRepositoryTest wires a repository to sqlmock for error-path tests
// that sqlite cannot produce.
func setupMockRepositoryTest(t *testing.T) (ServerRepository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       db,
		DriverName: "postgres",
	})
	gormDB, err := gorm.Open(dialector, &gorm.Config{})
	require.NoError(t, err)

	return NewServerRepository(gormDB), mock
}

func TestServerRepository_CreateDuplicatePostgres(t *testing.T) {
	repo, mock := setupMockRepositoryTest(t)
	ctx := context.Background()

	mock.ExpectBegin()
	// Status carries a column default, so gorm issues the insert as a query
	// with a RETURNING clause
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "mcp_servers"`)).
		WillReturnError(errors.New(`duplicate key value violates unique constraint "idx_mcp_servers_canonical_id"`))
	mock.ExpectRollback()

	err := repo.Create(ctx, newTestServer("acme/dup"))
	assert.ErrorIs(t, err, ErrDuplicateKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsDuplicateKeyError(t *testing.T) {
	assert.True(t, isDuplicateKeyError(errors.New("duplicate key value violates unique constraint")))
	assert.True(t, isDuplicateKeyError(errors.New("UNIQUE constraint failed: mcp_servers.canonical_id")))
	assert.True(t, isDuplicateKeyError(errors.New("Duplicate entry 'x' for key 'y'")))
	assert.False(t, isDuplicateKeyError(errors.New("connection refused")))
	assert.False(t, isDuplicateKeyError(nil))
}
