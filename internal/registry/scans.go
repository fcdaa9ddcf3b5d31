package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vantagesec/mcpwarden/internal/database/repositories"
	"github.com/vantagesec/mcpwarden/internal/metrics"
	"github.com/vantagesec/mcpwarden/internal/models"
	"github.com/vantagesec/mcpwarden/internal/scan"
)

// SubmitForScan moves the server to PendingScan and launches a scan workload.
// The status transition is conditional on the state the caller observed, so a
// concurrent submit loses with Conflict instead of double-scanning.
func (s *service) SubmitForScan(ctx context.Context, principal models.Principal, id string) (*models.Scan, error) {
	server, err := s.loadChecked(ctx, principal, id)
	if err != nil {
		return nil, err
	}

	if server.SourceType == models.SourceLocalDeclared {
		return nil, fmt.Errorf("%w: %s servers take uploaded scan results, not scheduled scans", models.ErrInvalidArgument, server.SourceType)
	}
	if !server.CanSubmitForScan() {
		return nil, fmt.Errorf("%w: cannot submit a scan while %s", models.ErrInvalidState, server.Status)
	}

	if err := s.servers.TransitionStatus(ctx, server.ID, server.Status, models.StatusPendingScan); err != nil {
		switch {
		case errors.Is(err, repositories.ErrConcurrentUpdate):
			return nil, fmt.Errorf("%w: server status changed concurrently", models.ErrConflict)
		case errors.Is(err, repositories.ErrNotFound):
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	server.Status = models.StatusPendingScan

	scanRow, err := s.orchestrator.Launch(ctx, server, principal.ID)
	if err != nil {
		// The orchestrator already recorded the failed scan and moved the
		// server to ScannedFail; surface the cause as an upstream failure.
		return scanRow, fmt.Errorf("%w: %v", models.ErrUpstream, err)
	}

	s.log.WithFields(logrus.Fields{
		"server_id":    server.ID,
		"canonical_id": server.CanonicalID,
		"scan_id":      scanRow.ID,
		"triggered_by": principal.ID,
	}).Info("Scan submitted")
	return scanRow, nil
}

// UploadLocalScan ingests the output of a locally executed scanner run for a
// LocalDeclared server. The parsed result is written as a Completed scan and
// the server moves to ScannedPass or ScannedFail in the same transaction, the
// same way an orchestrated completion lands.
func (s *service) UploadLocalScan(ctx context.Context, principal models.Principal, id string, req *models.UploadScanRequest) (*models.Scan, error) {
	server, err := s.loadChecked(ctx, principal, id)
	if err != nil {
		return nil, err
	}

	if server.SourceType != models.SourceLocalDeclared {
		return nil, fmt.Errorf("%w: scan upload is only for %s servers", models.ErrInvalidArgument, models.SourceLocalDeclared)
	}
	if !server.CanSubmitForScan() {
		return nil, fmt.Errorf("%w: cannot accept a scan upload while %s", models.ErrInvalidState, server.Status)
	}

	result, err := scan.ParseReport(string(req.ScanOutput))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidArgument, err)
	}

	now := time.Now().UTC()
	startedAt := now
	if req.ScannedAt != nil {
		startedAt = req.ScannedAt.UTC()
	}
	scannerVersion := result.ScannerVersion
	if scannerVersion == "" {
		scannerVersion = req.ScannerVersion
	}

	riskScore := result.RiskScore
	scanRow := &models.Scan{
		ID:              uuid.NewString(),
		ServerID:        server.ID,
		ScannerVersion:  scannerVersion,
		Status:          models.ScanCompleted,
		RiskScore:       &riskScore,
		Summary:         result.Summary,
		ReportJSON:      result.Raw,
		Issues:          result.Issues,
		DiscoveredTools: result.DiscoveredTools,
		StartedAt:       startedAt,
		FinishedAt:      &now,
		TriggeredBy:     principal.ID,
	}

	target := models.StatusScannedFail
	if riskScore <= s.cfg.Policy.ScanPassThreshold {
		target = models.StatusScannedPass
	}

	moved, err := s.scans.RecordCompletion(ctx, scanRow, server.Status, target)
	if err != nil {
		return nil, err
	}
	if moved {
		server.Status = target
	}

	metrics.RecordScanRun(scanRow.Status.String(), now.Sub(startedAt).Seconds())
	metrics.RecordRiskScore(riskScore)
	s.log.WithFields(logrus.Fields{
		"server_id":      server.ID,
		"canonical_id":   server.CanonicalID,
		"scan_id":        scanRow.ID,
		"risk_score":     riskScore,
		"server_status":  target.String(),
		"server_updated": moved,
		"uploaded_by":    principal.ID,
	}).Info("Local scan result uploaded")

	return scanRow, nil
}

// GetScan returns one scan of a server the principal can access.
func (s *service) GetScan(ctx context.Context, principal models.Principal, serverID, scanID string) (*models.Scan, error) {
	if _, err := s.loadChecked(ctx, principal, serverID); err != nil {
		return nil, err
	}
	return s.loadScan(ctx, serverID, scanID)
}

// ListScans returns a server's scan history, newest first.
func (s *service) ListScans(ctx context.Context, principal models.Principal, serverID string, offset, limit int) ([]models.Scan, int64, error) {
	if _, err := s.loadChecked(ctx, principal, serverID); err != nil {
		return nil, 0, err
	}
	return s.scans.ListByServer(ctx, serverID, offset, normalizeLimit(limit))
}

// LatestScan returns the most recently started scan, running ones included.
func (s *service) LatestScan(ctx context.Context, principal models.Principal, serverID string) (*models.Scan, error) {
	if _, err := s.loadChecked(ctx, principal, serverID); err != nil {
		return nil, err
	}
	scans, _, err := s.scans.ListByServer(ctx, serverID, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(scans) == 0 {
		return nil, fmt.Errorf("%w: server has no scans", models.ErrNotFound)
	}
	return &scans[0], nil
}

// CancelScan stops a running scan and tears down its workload. The server's
// status is left alone; cancelling is an administrative action, not a verdict.
func (s *service) CancelScan(ctx context.Context, principal models.Principal, serverID, scanID string) (*models.Scan, error) {
	server, err := s.loadChecked(ctx, principal, serverID)
	if err != nil {
		return nil, err
	}
	scanRow, err := s.loadScan(ctx, serverID, scanID)
	if err != nil {
		return nil, err
	}

	if err := s.orchestrator.Cancel(ctx, scanRow); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"server_id":    server.ID,
		"canonical_id": server.CanonicalID,
		"scan_id":      scanRow.ID,
		"cancelled_by": principal.ID,
	}).Info("Scan cancelled")
	return scanRow, nil
}

// loadScan fetches a scan and checks it belongs to the server in the path.
func (s *service) loadScan(ctx context.Context, serverID, scanID string) (*models.Scan, error) {
	scanRow, err := s.scans.GetByID(ctx, scanID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	if scanRow.ServerID != serverID {
		return nil, models.ErrNotFound
	}
	return scanRow, nil
}
