package scan

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vantagesec/mcpwarden/internal/config"
	"github.com/vantagesec/mcpwarden/internal/database/repositories"
	"github.com/vantagesec/mcpwarden/internal/models"
	"github.com/vantagesec/mcpwarden/internal/scheduler"
)

type harness struct {
	orchestrator *Orchestrator
	reconciler   *Reconciler
	sched        *scheduler.FakeScheduler
	servers      repositories.ServerRepository
	scans        repositories.ScanRepository
	approvals    repositories.ApprovalRepository
	cfg          *config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Server{}, &models.Scan{}, &models.Approval{}))

	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := &config.Config{}
	cfg.Scanner.Image = "registry.internal/mcp-scanner:2.3.1"
	cfg.Scanner.ScannerVersion = "2.3.1"
	cfg.Scanner.TimeoutSeconds = 300
	cfg.Scanner.ReconcileInterval = 15 * time.Second
	cfg.Policy.ScanPassThreshold = 0.6

	servers := repositories.NewServerRepository(db)
	scans := repositories.NewScanRepository(db)
	approvals := repositories.NewApprovalRepository(db)
	sched := scheduler.NewFakeScheduler()

	orchestrator := NewOrchestrator(servers, scans, sched, cfg, log)
	reconciler := NewReconciler(orchestrator, servers, scans, approvals, sched, cfg, log)

	return &harness{
		orchestrator: orchestrator,
		reconciler:   reconciler,
		sched:        sched,
		servers:      servers,
		scans:        scans,
		approvals:    approvals,
		cfg:          cfg,
	}
}

func (h *harness) createServer(t *testing.T, canonicalID string, status models.ServerStatus) *models.Server {
	t.Helper()

	server := &models.Server{
		CanonicalID:   canonicalID,
		Name:          "Search Tools",
		OwnerTeam:     "platform",
		SourceType:    models.SourceExternalRepo,
		SourceURL:     "https://github.com/example/" + canonicalID,
		Version:       "1.0.0",
		Status:        status,
		DeclaredTools: models.StringArray{"search", "fetch"},
		CreatedBy:     "alice",
	}
	require.NoError(t, h.servers.Create(context.Background(), server))
	return server
}

func (h *harness) serverStatus(t *testing.T, id string) models.ServerStatus {
	t.Helper()
	server, err := h.servers.GetByID(context.Background(), id)
	require.NoError(t, err)
	return server.Status
}

func (h *harness) reloadScan(t *testing.T, id string) *models.Scan {
	t.Helper()
	scan, err := h.scans.GetByID(context.Background(), id)
	require.NoError(t, err)
	return scan
}

func TestOrchestratorLaunch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	server := h.createServer(t, "acme/search-tools", models.StatusPendingScan)

	scan, err := h.orchestrator.Launch(ctx, server, "alice")
	require.NoError(t, err)
	require.NotNil(t, scan)

	assert.Equal(t, models.ScanRunning, scan.Status)
	assert.Equal(t, scheduler.JobName(scan.ID), scan.JobName)
	assert.Equal(t, "2.3.1", scan.ScannerVersion)
	assert.Equal(t, "alice", scan.TriggeredBy)
	assert.Nil(t, scan.FinishedAt)

	submitted := h.sched.Submitted()
	require.Len(t, submitted, 1)
	job := submitted[0]
	assert.Equal(t, scan.JobName, job.Name)
	assert.Equal(t, "registry.internal/mcp-scanner:2.3.1", job.Image)
	assert.Equal(t, []string{"scan", "repo", "--shallow", "--url", server.SourceURL}, job.Command)
	assert.Equal(t, 300*time.Second, job.Timeout)
	assert.Equal(t, scan.ID, job.Labels[scheduler.LabelScanID])

	var spec descriptor
	decoded, err := base64.StdEncoding.DecodeString(job.Env[EnvScanSpec])
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(decoded, &spec))
	assert.Equal(t, scan.ID, spec.ScanID)
	assert.Equal(t, "acme/search-tools", spec.CanonicalID)
	assert.Equal(t, "ExternalRepo", spec.SourceType)
	assert.Equal(t, server.SourceURL, spec.SourceURL)
	assert.Equal(t, []string{"search", "fetch"}, spec.DeclaredTools)
	assert.Equal(t, scan.ID, job.Env[EnvScanID])

	assert.Equal(t, models.StatusScanning, h.serverStatus(t, server.ID))
	assert.Equal(t, models.ScanRunning, h.reloadScan(t, scan.ID).Status)
}

func TestOrchestratorLaunchDynamicEndpoint(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	t.Run("Enabled", func(t *testing.T) {
		h.cfg.Scanner.EnableDynamicTesting = true
		server := h.createServer(t, "acme/dynamic", models.StatusPendingScan)
		server.TestEndpoint = "https://staging.acme.dev/mcp"
		require.NoError(t, h.servers.Update(ctx, server))

		_, err := h.orchestrator.Launch(ctx, server, "alice")
		require.NoError(t, err)

		jobs := h.sched.Submitted()
		job := jobs[len(jobs)-1]
		assert.Contains(t, job.Command, "--dynamic-endpoint")
		assert.Contains(t, job.Command, "https://staging.acme.dev/mcp")
	})

	t.Run("DisabledByConfig", func(t *testing.T) {
		h.cfg.Scanner.EnableDynamicTesting = false
		server := h.createServer(t, "acme/static", models.StatusPendingScan)
		server.TestEndpoint = "https://staging.acme.dev/mcp"
		require.NoError(t, h.servers.Update(ctx, server))

		_, err := h.orchestrator.Launch(ctx, server, "alice")
		require.NoError(t, err)

		jobs := h.sched.Submitted()
		job := jobs[len(jobs)-1]
		assert.NotContains(t, job.Command, "--dynamic-endpoint")
	})
}

func TestOrchestratorLaunchArtifactCommand(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	server := h.createServer(t, "acme/packaged", models.StatusPendingScan)
	server.SourceType = models.SourceContainerImage
	server.SourceURL = "registry.example.com/acme/mcp:1.2.0"
	require.NoError(t, h.servers.Update(ctx, server))

	_, err := h.orchestrator.Launch(ctx, server, "alice")
	require.NoError(t, err)

	jobs := h.sched.Submitted()
	require.Len(t, jobs, 1)
	assert.Equal(t, []string{"scan", "artifact", "--ref", server.SourceURL}, jobs[0].Command)
}

func TestOrchestratorLaunchRejectsLocalDeclared(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	server := h.createServer(t, "acme/local", models.StatusPendingScan)
	server.SourceType = models.SourceLocalDeclared
	require.NoError(t, h.servers.Update(ctx, server))

	scan, err := h.orchestrator.Launch(ctx, server, "alice")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	assert.Nil(t, scan)
	assert.Empty(t, h.sched.Submitted())

	scans, total, err := h.scans.ListByServer(ctx, server.ID, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, scans)
}

func TestOrchestratorLaunchSubmissionFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	server := h.createServer(t, "acme/unlucky", models.StatusPendingScan)

	h.sched.FailSubmit(errors.New("scheduler backend down"))

	scan, err := h.orchestrator.Launch(ctx, server, "alice")
	require.Error(t, err)
	require.NotNil(t, scan, "the failed scan row is returned alongside the error")

	assert.Equal(t, models.ScanFailed, scan.Status)
	assert.Contains(t, scan.ErrorMessage, "scheduler backend down")
	require.NotNil(t, scan.FinishedAt)

	stored := h.reloadScan(t, scan.ID)
	assert.Equal(t, models.ScanFailed, stored.Status)
	assert.Equal(t, models.StatusScannedFail, h.serverStatus(t, server.ID),
		"a failed submission must not strand the server in PendingScan")
}

func TestOrchestratorCancel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	server := h.createServer(t, "acme/cancelled", models.StatusPendingScan)

	scan, err := h.orchestrator.Launch(ctx, server, "alice")
	require.NoError(t, err)

	require.NoError(t, h.orchestrator.Cancel(ctx, scan))

	assert.Equal(t, models.ScanCancelled, scan.Status)
	require.NotNil(t, scan.FinishedAt)
	assert.Equal(t, models.ScanCancelled, h.reloadScan(t, scan.ID).Status)

	assert.Equal(t, models.StatusScanning, h.serverStatus(t, server.ID),
		"an explicit cancel leaves the server lifecycle alone")
	assert.Len(t, h.sched.RemovedHandles(), 1)

	err = h.orchestrator.Cancel(ctx, scan)
	assert.ErrorIs(t, err, models.ErrInvalidState, "a terminal scan cannot be cancelled again")
}
