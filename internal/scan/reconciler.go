package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vantagesec/mcpwarden/internal/config"
	"github.com/vantagesec/mcpwarden/internal/database/repositories"
	"github.com/vantagesec/mcpwarden/internal/metrics"
	"github.com/vantagesec/mcpwarden/internal/models"
	"github.com/vantagesec/mcpwarden/internal/scheduler"
)

// defaultReconcileInterval is used when configuration does not set one.
const defaultReconcileInterval = 15 * time.Second

// submissionGrace is how long a Pending scan may exist without a visible
// workload before the reconciler declares the submission lost. Submissions
// normally flip the row to Running within a second; the grace keeps a sweep
// from racing an in-flight Launch.
const submissionGrace = 30 * time.Second

// expiryActor is recorded on approvals revoked by the reconciler.
const expiryActor = "system"

// Reconciler drives unfinished scans to a terminal state. It is a singleton
// background loop: each sweep inspects every Pending or Running scan's
// workload, ingests finished ones, times out overdue ones, and fails scans
// whose workload disappeared. The sweep also refreshes the registry gauges
// and revokes expired approvals, so those housekeeping jobs ride the same
// cadence.
type Reconciler struct {
	orchestrator *Orchestrator
	servers      repositories.ServerRepository
	scans        repositories.ScanRepository
	approvals    repositories.ApprovalRepository
	sched        scheduler.Scheduler
	cfg          *config.Config
	log          *logrus.Logger
}

// NewReconciler creates a scan reconciler
func NewReconciler(
	orchestrator *Orchestrator,
	servers repositories.ServerRepository,
	scans repositories.ScanRepository,
	approvals repositories.ApprovalRepository,
	sched scheduler.Scheduler,
	cfg *config.Config,
	log *logrus.Logger,
) *Reconciler {
	return &Reconciler{
		orchestrator: orchestrator,
		servers:      servers,
		scans:        scans,
		approvals:    approvals,
		sched:        sched,
		cfg:          cfg,
		log:          log,
	}
}

// Run sweeps immediately, then on every tick until the context is cancelled.
// It blocks; callers run it on its own goroutine.
func (r *Reconciler) Run(ctx context.Context) {
	interval := r.cfg.Scanner.ReconcileInterval
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	r.log.WithField("interval", interval.String()).Info("Scan reconciler started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("Scan reconciler stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep performs one reconciliation pass.
func (r *Reconciler) Sweep(ctx context.Context) {
	unfinished, err := r.scans.ListUnfinished(ctx)
	if err != nil {
		r.log.WithError(err).Error("Reconciler failed to list unfinished scans")
		return
	}

	active := 0
	for i := range unfinished {
		if ctx.Err() != nil {
			return
		}
		if r.reconcileScan(ctx, &unfinished[i]) {
			active++
		}
	}
	metrics.SetPendingScans(int64(active))

	r.refreshApprovedGauge(ctx)
	r.expireApprovals(ctx)
}

// reconcileScan inspects one scan's workload and applies the matching
// transition. It reports whether the scan is still active after the pass.
func (r *Reconciler) reconcileScan(ctx context.Context, scan *models.Scan) bool {
	entry := r.log.WithFields(logrus.Fields{
		"scan_id":  scan.ID,
		"job_name": scan.JobName,
	})

	status, err := r.sched.Status(ctx, scan.JobName)
	if err != nil {
		if !errors.Is(err, scheduler.ErrJobNotFound) {
			// Backend hiccup; leave the scan for the next sweep.
			entry.WithError(err).Warn("Reconciler could not inspect scan workload")
			return true
		}
		if scan.Status == models.ScanPending && time.Since(scan.StartedAt) < submissionGrace {
			// Launch may still be between Create and Submit.
			return true
		}
		if ferr := r.orchestrator.Fail(ctx, scan, models.ScanFailed, "scan workload not found"); ferr != nil {
			entry.WithError(ferr).Error("Failed to record missing scan workload")
			return true
		}
		return false
	}

	timeout := time.Duration(r.cfg.Scanner.TimeoutSeconds) * time.Second

	switch {
	case status.Phase.Terminal():
		return r.ingest(ctx, scan, status, entry)

	case timeout > 0 && time.Since(scan.StartedAt) > timeout:
		r.orchestrator.teardownWorkload(ctx, scan)
		message := fmt.Sprintf("scan exceeded %s deadline", timeout)
		if ferr := r.orchestrator.Fail(ctx, scan, models.ScanTimedOut, message); ferr != nil {
			entry.WithError(ferr).Error("Failed to record scan timeout")
			return true
		}
		entry.WithField("timeout", timeout.String()).Warn("Scan timed out")
		return false

	default:
		if scan.Status == models.ScanPending {
			// The workload exists, so the submitter died between Submit and
			// the row update. Promote the row and the server to match
			// reality; the server is usually already Scanning, in which case
			// the conditional transition loses quietly.
			scan.Status = models.ScanRunning
			if uerr := r.scans.Update(ctx, scan); uerr != nil {
				entry.WithError(uerr).Error("Failed to promote pending scan to running")
				scan.Status = models.ScanPending
				return true
			}
			terr := r.servers.TransitionStatus(ctx, scan.ServerID, models.StatusPendingScan, models.StatusScanning)
			if terr != nil && !errors.Is(terr, repositories.ErrConcurrentUpdate) {
				entry.WithError(terr).Warn("Failed to move server into Scanning for promoted scan")
			}
			entry.Info("Promoted orphaned pending scan to running")
		}
		return true
	}
}

// ingest collects a terminal workload's output and finishes the scan. The
// workload is removed afterwards to reclaim resources.
func (r *Reconciler) ingest(ctx context.Context, scan *models.Scan, status *scheduler.JobStatus, entry *logrus.Entry) bool {
	logs, err := r.sched.Logs(ctx, scan.JobName, 0)
	if err != nil {
		if !errors.Is(err, scheduler.ErrJobNotFound) {
			entry.WithError(err).Warn("Failed to fetch scan workload logs")
			return true
		}
		// Something else reclaimed the workload between Status and Logs.
		if ferr := r.orchestrator.Fail(ctx, scan, models.ScanFailed, "scan workload removed before logs were collected"); ferr != nil {
			entry.WithError(ferr).Error("Failed to record lost scan workload")
			return true
		}
		return false
	}

	succeeded := status.Phase == scheduler.PhaseSucceeded
	if cerr := r.orchestrator.Complete(ctx, scan, logs, succeeded); cerr != nil {
		entry.WithError(cerr).Error("Failed to record scan completion")
		return true
	}

	if rerr := r.sched.Remove(ctx, scan.JobName); rerr != nil && !errors.Is(rerr, scheduler.ErrJobNotFound) {
		entry.WithError(rerr).Debug("Failed to remove finished scan workload")
	}
	return false
}

// refreshApprovedGauge republishes the approved-server count so the gauge
// survives process restarts and out-of-band database edits.
func (r *Reconciler) refreshApprovedGauge(ctx context.Context) {
	counts, err := r.servers.CountByStatus(ctx)
	if err != nil {
		r.log.WithError(err).Warn("Failed to count servers for gauges")
		return
	}
	metrics.SetApprovedServers(counts[models.StatusApproved])
}

// expireApprovals suspends servers whose newest approval has lapsed. Each
// revocation is recorded as a system approval so the audit trail explains
// the suspension.
func (r *Reconciler) expireApprovals(ctx context.Context) {
	expired, err := r.approvals.ListExpired(ctx, time.Now().UTC())
	if err != nil {
		r.log.WithError(err).Error("Failed to list expired approvals")
		return
	}

	for i := range expired {
		grant := &expired[i]
		revocation := &models.Approval{
			ServerID:          grant.ServerID,
			ServerCanonicalID: grant.ServerCanonicalID,
			Actor:             expiryActor,
			Action:            models.ActionRevoked,
			Reason:            "approval expired",
			Timestamp:         time.Now().UTC(),
			ScanID:            grant.ScanID,
		}

		err := r.approvals.RecordDecision(ctx, revocation, models.StatusApproved, models.StatusSuspended)
		switch {
		case err == nil:
			r.log.WithFields(logrus.Fields{
				"server_id":    grant.ServerID,
				"canonical_id": grant.ServerCanonicalID,
				"approval_id":  grant.ID,
				"expired_at":   grant.ExpiresAt,
			}).Info("Expired approval revoked")
		case errors.Is(err, repositories.ErrConcurrentUpdate), errors.Is(err, repositories.ErrNotFound):
			// The server moved or vanished since the listing; the next sweep
			// sees the new state.
		default:
			r.log.WithError(err).WithField("server_id", grant.ServerID).
				Error("Failed to revoke expired approval")
		}
	}
}
