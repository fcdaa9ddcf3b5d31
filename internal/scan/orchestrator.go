package scan

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vantagesec/mcpwarden/internal/config"
	"github.com/vantagesec/mcpwarden/internal/database/repositories"
	"github.com/vantagesec/mcpwarden/internal/metrics"
	"github.com/vantagesec/mcpwarden/internal/models"
	"github.com/vantagesec/mcpwarden/internal/scheduler"
)

// Environment passed to scanner workloads.
const (
	// EnvScanSpec carries the base64-encoded JSON scan descriptor.
	EnvScanSpec = "MCPWARDEN_SCAN_SPEC"
	// EnvScanID carries the scan's UUID for log correlation.
	EnvScanID = "MCPWARDEN_SCAN_ID"
	// EnvAnalysisAPIURL points the scanner at a deeper-analysis backend.
	EnvAnalysisAPIURL = "MCPWARDEN_ANALYSIS_API_URL"
)

// Placement hints recorded on workloads. The Docker backend stores them as
// labels; a cluster backend would map them onto real scheduling fields.
const (
	labelNamespace      = "com.vantagesec.mcpwarden.namespace"
	labelServiceAccount = "com.vantagesec.mcpwarden.service-account"
	labelTTLSeconds     = "com.vantagesec.mcpwarden.ttl-seconds"
)

// descriptor is the document the scanner workload receives via EnvScanSpec.
// It tells the scanner what to fetch and which tools the owner claimed.
type descriptor struct {
	ScanID        string         `json:"scan_id"`
	CanonicalID   string         `json:"canonical_id"`
	SourceType    string         `json:"source_type"`
	SourceURL     string         `json:"source_url,omitempty"`
	TestEndpoint  string         `json:"test_endpoint,omitempty"`
	MCPConfig     models.JSONMap `json:"mcp_config,omitempty"`
	DeclaredTools []string       `json:"declared_tools,omitempty"`
}

// Orchestrator launches scanner workloads and records their outcomes. All
// terminal scan writes go through it so the scan row and the server row can
// never disagree about how a run ended.
type Orchestrator struct {
	servers repositories.ServerRepository
	scans   repositories.ScanRepository
	sched   scheduler.Scheduler
	cfg     *config.Config
	log     *logrus.Logger
}

// NewOrchestrator creates a scan orchestrator
func NewOrchestrator(
	servers repositories.ServerRepository,
	scans repositories.ScanRepository,
	sched scheduler.Scheduler,
	cfg *config.Config,
	log *logrus.Logger,
) *Orchestrator {
	return &Orchestrator{
		servers: servers,
		scans:   scans,
		sched:   sched,
		cfg:     cfg,
		log:     log,
	}
}

// Launch creates a Pending scan row for the server and submits its workload.
// On successful submission the scan moves to Running and the server from
// PendingScan to Scanning. A failed submission finishes the scan as Failed
// and moves the server to ScannedFail; the failed scan row is returned
// alongside the error so the caller can surface both.
func (o *Orchestrator) Launch(ctx context.Context, server *models.Server, triggeredBy string) (*models.Scan, error) {
	if server.SourceType == models.SourceLocalDeclared {
		return nil, fmt.Errorf("%w: %s servers take uploaded scan results, not orchestrated scans",
			models.ErrInvalidArgument, server.SourceType)
	}

	scan := &models.Scan{
		ID:             uuid.NewString(),
		ServerID:       server.ID,
		ScannerVersion: o.cfg.Scanner.ScannerVersion,
		Status:         models.ScanPending,
		StartedAt:      time.Now().UTC(),
		TriggeredBy:    triggeredBy,
	}
	scan.JobName = scheduler.JobName(scan.ID)

	if err := o.scans.Create(ctx, scan); err != nil {
		return nil, err
	}

	job, err := o.buildJob(server, scan)
	if err == nil {
		_, err = o.sched.Submit(ctx, job)
	}
	if err != nil {
		o.failSubmission(ctx, scan, err)
		return scan, fmt.Errorf("submit scan workload: %w", err)
	}

	scan.Status = models.ScanRunning
	if uerr := o.scans.Update(ctx, scan); uerr != nil {
		// The workload is already running; the reconciler promotes the row
		// on its next sweep.
		o.log.WithError(uerr).WithField("scan_id", scan.ID).
			Error("Failed to mark scan running")
	}
	if terr := o.servers.TransitionStatus(ctx, server.ID, models.StatusPendingScan, models.StatusScanning); terr != nil {
		o.log.WithError(terr).WithFields(logrus.Fields{
			"server_id":    server.ID,
			"canonical_id": server.CanonicalID,
		}).Warn("Server left PendingScan during workload submission")
	} else {
		server.Status = models.StatusScanning
	}

	o.log.WithFields(logrus.Fields{
		"scan_id":      scan.ID,
		"server_id":    server.ID,
		"canonical_id": server.CanonicalID,
		"job_name":     scan.JobName,
		"image":        o.cfg.Scanner.Image,
		"triggered_by": triggeredBy,
	}).Info("Scan workload submitted")

	return scan, nil
}

// Cancel tears down the scan's workload and finishes the scan as Cancelled.
// The server's lifecycle state is deliberately left alone: an explicit cancel
// is an administrative action, not a scan outcome.
func (o *Orchestrator) Cancel(ctx context.Context, scan *models.Scan) error {
	if scan.Status.Terminal() {
		return fmt.Errorf("%w: scan is already %s", models.ErrInvalidState, scan.Status)
	}

	o.teardownWorkload(ctx, scan)

	now := time.Now().UTC()
	scan.Status = models.ScanCancelled
	scan.FinishedAt = &now
	if err := o.scans.Update(ctx, scan); err != nil {
		return err
	}

	metrics.RecordScanRun(scan.Status.String(), now.Sub(scan.StartedAt).Seconds())
	o.log.WithFields(logrus.Fields{
		"scan_id":   scan.ID,
		"server_id": scan.ServerID,
		"job_name":  scan.JobName,
	}).Info("Scan cancelled")

	return nil
}

// Complete ingests a terminal workload's output. A parsable report finishes
// the scan as Completed; the server passes only when the workload itself
// succeeded and the normalized risk score is at or below the pass threshold.
// Unparsable output finishes the scan as Failed.
func (o *Orchestrator) Complete(ctx context.Context, scan *models.Scan, logs string, workloadSucceeded bool) error {
	from := serverPhaseFor(scan.Status)
	now := time.Now().UTC()
	scan.FinishedAt = &now

	result, perr := ParseReport(logs)
	if perr != nil {
		scan.Status = models.ScanFailed
		scan.ErrorMessage = perr.Error()
		return o.finish(ctx, scan, from, models.StatusScannedFail)
	}

	scan.Status = models.ScanCompleted
	scan.RiskScore = &result.RiskScore
	scan.Summary = result.Summary
	scan.ReportJSON = result.Raw
	scan.Issues = result.Issues
	scan.DiscoveredTools = result.DiscoveredTools
	if result.ScannerVersion != "" {
		scan.ScannerVersion = result.ScannerVersion
	}

	target := models.StatusScannedFail
	if workloadSucceeded && result.RiskScore <= o.cfg.Policy.ScanPassThreshold {
		target = models.StatusScannedPass
	}
	return o.finish(ctx, scan, from, target)
}

// Fail finishes a scan with the given unsuccessful terminal status and moves
// its server into ScannedFail.
func (o *Orchestrator) Fail(ctx context.Context, scan *models.Scan, status models.ScanStatus, message string) error {
	from := serverPhaseFor(scan.Status)
	now := time.Now().UTC()
	scan.Status = status
	scan.ErrorMessage = message
	scan.FinishedAt = &now
	return o.finish(ctx, scan, from, models.StatusScannedFail)
}

// serverPhaseFor maps a scan's pre-terminal status to the server state the
// lifecycle should be in. A scan that never started leaves its server in
// PendingScan, not Scanning, and the completion write must expect that.
func serverPhaseFor(status models.ScanStatus) models.ServerStatus {
	if status == models.ScanPending {
		return models.StatusPendingScan
	}
	return models.StatusScanning
}

// teardownWorkload stops and removes the scan's workload. Both calls are
// best-effort; a workload that is already gone is fine.
func (o *Orchestrator) teardownWorkload(ctx context.Context, scan *models.Scan) {
	if scan.JobName == "" {
		return
	}
	if err := o.sched.Cancel(ctx, scan.JobName); err != nil && !errors.Is(err, scheduler.ErrJobNotFound) {
		o.log.WithError(err).WithField("job_name", scan.JobName).Warn("Failed to stop scan workload")
	}
	if err := o.sched.Remove(ctx, scan.JobName); err != nil && !errors.Is(err, scheduler.ErrJobNotFound) {
		o.log.WithError(err).WithField("job_name", scan.JobName).Warn("Failed to remove scan workload")
	}
}

// failSubmission finishes a scan whose workload never started. The server
// moves PendingScan -> ScannedFail so a broken scanner image or unreachable
// backend cannot strand servers in PendingScan.
func (o *Orchestrator) failSubmission(ctx context.Context, scan *models.Scan, cause error) {
	now := time.Now().UTC()
	scan.Status = models.ScanFailed
	scan.ErrorMessage = cause.Error()
	scan.FinishedAt = &now

	if err := o.finish(ctx, scan, models.StatusPendingScan, models.StatusScannedFail); err != nil {
		o.log.WithError(err).WithField("scan_id", scan.ID).
			Error("Failed to record scan submission failure")
		return
	}

	o.log.WithError(cause).WithFields(logrus.Fields{
		"scan_id":   scan.ID,
		"server_id": scan.ServerID,
		"job_name":  scan.JobName,
	}).Error("Scan workload submission failed")
}

// finish writes the terminal scan and its server-side effect in one
// transaction and records metrics for the run.
func (o *Orchestrator) finish(ctx context.Context, scan *models.Scan, from, target models.ServerStatus) error {
	moved, err := o.scans.RecordCompletion(ctx, scan, from, target)
	if err != nil {
		return err
	}

	metrics.RecordScanRun(scan.Status.String(), scan.FinishedAt.Sub(scan.StartedAt).Seconds())
	if scan.Status == models.ScanCompleted && scan.RiskScore != nil {
		metrics.RecordRiskScore(*scan.RiskScore)
	}

	entry := o.log.WithFields(logrus.Fields{
		"scan_id":        scan.ID,
		"server_id":      scan.ServerID,
		"scan_status":    scan.Status.String(),
		"server_status":  target.String(),
		"server_updated": moved,
	})
	if scan.RiskScore != nil {
		entry = entry.WithField("risk_score", *scan.RiskScore)
	}
	entry.Info("Scan finished")

	return nil
}

// buildJob assembles the scanner workload for a server.
func (o *Orchestrator) buildJob(server *models.Server, scan *models.Scan) (scheduler.Job, error) {
	command, err := workloadCommand(server, o.cfg)
	if err != nil {
		return scheduler.Job{}, err
	}

	spec, err := json.Marshal(descriptor{
		ScanID:        scan.ID,
		CanonicalID:   server.CanonicalID,
		SourceType:    server.SourceType.String(),
		SourceURL:     server.SourceURL,
		TestEndpoint:  server.TestEndpoint,
		MCPConfig:     server.MCPConfig,
		DeclaredTools: server.DeclaredTools,
	})
	if err != nil {
		return scheduler.Job{}, fmt.Errorf("marshal scan descriptor: %w", err)
	}

	env := map[string]string{
		EnvScanSpec: base64.StdEncoding.EncodeToString(spec),
		EnvScanID:   scan.ID,
	}
	if o.cfg.Scanner.AnalysisAPIURL != "" {
		env[EnvAnalysisAPIURL] = o.cfg.Scanner.AnalysisAPIURL
	}

	labels := map[string]string{
		scheduler.LabelScanID: scan.ID,
	}
	if ns := o.cfg.Scanner.JobNamespace; ns != "" {
		labels[labelNamespace] = ns
	}
	if sa := o.cfg.Scanner.JobServiceAccount; sa != "" {
		labels[labelServiceAccount] = sa
	}
	if ttl := o.cfg.Scanner.TTLSecondsAfterFinished; ttl > 0 {
		labels[labelTTLSeconds] = fmt.Sprintf("%d", ttl)
	}

	return scheduler.Job{
		Name:    scan.JobName,
		Image:   o.cfg.Scanner.Image,
		Command: command,
		Env:     env,
		Labels:  labels,
		Timeout: time.Duration(o.cfg.Scanner.TimeoutSeconds) * time.Second,
	}, nil
}

// workloadCommand selects the scanner invocation for the server's source
// type. Repository sources are cloned shallow inside the workload; artifact
// sources are fetched by reference.
func workloadCommand(server *models.Server, cfg *config.Config) ([]string, error) {
	var command []string
	switch server.SourceType {
	case models.SourceExternalRepo, models.SourceInternalRepo:
		command = []string{"scan", "repo", "--shallow", "--url", server.SourceURL}
	case models.SourceContainerImage, models.SourcePackageArtifact:
		command = []string{"scan", "artifact", "--ref", server.SourceURL}
	default:
		return nil, fmt.Errorf("%w: source type %s cannot be scanned", models.ErrInvalidArgument, server.SourceType)
	}
	if cfg.Scanner.EnableDynamicTesting && server.TestEndpoint != "" {
		command = append(command, "--dynamic-endpoint", server.TestEndpoint)
	}
	return command, nil
}
