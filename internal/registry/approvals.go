package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vantagesec/mcpwarden/internal/database/repositories"
	"github.com/vantagesec/mcpwarden/internal/metrics"
	"github.com/vantagesec/mcpwarden/internal/models"
)

// Approve grants a server admission. Permitted from ScannedPass and
// PendingApproval; from ScannedFail only with an explicit override reason,
// which is recorded in the approval notes.
func (s *service) Approve(ctx context.Context, principal models.Principal, id string, req *models.ApproveRequest) (*models.Approval, error) {
	server, err := s.loadForDecision(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	if err := validateReason(req.Reason); err != nil {
		return nil, err
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now().UTC()) {
		return nil, fmt.Errorf("%w: expiry must be in the future", models.ErrInvalidArgument)
	}

	notes := req.Notes
	switch server.Status {
	case models.StatusScannedPass, models.StatusPendingApproval:
	case models.StatusScannedFail:
		if strings.TrimSpace(req.OverrideReason) == "" {
			return nil, fmt.Errorf("%w: approving a failed scan requires an override reason", models.ErrInvalidState)
		}
		if notes != "" {
			notes += "\n"
		}
		notes += "override: " + req.OverrideReason
	default:
		return nil, fmt.Errorf("%w: cannot approve a server in state %s", models.ErrInvalidState, server.Status)
	}

	approval := s.newApproval(server, principal, models.ActionApproved, req.Reason, notes)
	approval.ExpiresAt = req.ExpiresAt
	if err := s.record(ctx, approval, server.Status, models.StatusApproved); err != nil {
		return nil, err
	}

	entry := s.log.WithFields(logrus.Fields{
		"server_id":    server.ID,
		"canonical_id": server.CanonicalID,
		"actor":        principal.ID,
		"from_status":  server.Status.String(),
	})
	if server.Status == models.StatusScannedFail {
		entry.Warn("Server approved with scan-failure override")
	} else {
		entry.Info("Server approved")
	}
	return approval, nil
}

// Deny rejects a server from any state the machine still allows out of.
func (s *service) Deny(ctx context.Context, principal models.Principal, id string, req *models.DecisionRequest) (*models.Approval, error) {
	return s.decide(ctx, principal, id, req, models.ActionDenied, models.StatusDenied, nil)
}

// Suspend pulls an approved server out of rotation without erasing its
// approval history.
func (s *service) Suspend(ctx context.Context, principal models.Principal, id string, req *models.DecisionRequest) (*models.Approval, error) {
	return s.decide(ctx, principal, id, req, models.ActionSuspended, models.StatusSuspended, []models.ServerStatus{models.StatusApproved})
}

// Reinstate returns a suspended server to approved.
func (s *service) Reinstate(ctx context.Context, principal models.Principal, id string, req *models.DecisionRequest) (*models.Approval, error) {
	return s.decide(ctx, principal, id, req, models.ActionReinstated, models.StatusApproved, []models.ServerStatus{models.StatusSuspended})
}

// Deprecate retires a server permanently. Deprecated is terminal.
func (s *service) Deprecate(ctx context.Context, principal models.Principal, id string, req *models.DecisionRequest) (*models.Approval, error) {
	return s.decide(ctx, principal, id, req, models.ActionDeprecated, models.StatusDeprecated, []models.ServerStatus{models.StatusApproved, models.StatusSuspended})
}

// RequestApproval queues a scanned-pass server for an admin decision. Unlike
// the decision operations it is open to the owner and records no approval
// row; the request itself is not a verdict.
func (s *service) RequestApproval(ctx context.Context, principal models.Principal, id string, req *models.DecisionRequest) (*models.Server, error) {
	server, err := s.loadChecked(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	if err := validateReason(req.Reason); err != nil {
		return nil, err
	}
	if server.Status != models.StatusScannedPass {
		return nil, fmt.Errorf("%w: cannot request approval for a server in state %s", models.ErrInvalidState, server.Status)
	}

	if err := s.servers.TransitionStatus(ctx, server.ID, server.Status, models.StatusPendingApproval); err != nil {
		switch {
		case errors.Is(err, repositories.ErrConcurrentUpdate):
			return nil, fmt.Errorf("%w: server state changed concurrently", models.ErrConflict)
		case errors.Is(err, repositories.ErrNotFound):
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	server.Status = models.StatusPendingApproval

	s.log.WithFields(logrus.Fields{
		"server_id":    server.ID,
		"canonical_id": server.CanonicalID,
		"requested_by": principal.ID,
		"reason":       req.Reason,
	}).Info("Approval requested")
	return server, nil
}

// ListApprovals returns a server's decision history, newest first.
func (s *service) ListApprovals(ctx context.Context, principal models.Principal, serverID string, offset, limit int) ([]models.Approval, int64, error) {
	server, err := s.loadChecked(ctx, principal, serverID)
	if err != nil {
		return nil, 0, err
	}
	return s.approvals.ListByServer(ctx, server.ID, offset, normalizeLimit(limit))
}

// decide implements the single-target decision operations. A nil from set
// defers entirely to the state machine table.
func (s *service) decide(
	ctx context.Context,
	principal models.Principal,
	id string,
	req *models.DecisionRequest,
	action models.ApprovalAction,
	target models.ServerStatus,
	from []models.ServerStatus,
) (*models.Approval, error) {
	server, err := s.loadForDecision(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	if err := validateReason(req.Reason); err != nil {
		return nil, err
	}

	permitted := models.CanTransition(server.Status, target)
	if from != nil {
		permitted = false
		for _, status := range from {
			if server.Status == status {
				permitted = true
				break
			}
		}
	}
	if !permitted {
		return nil, fmt.Errorf("%w: cannot move a server from %s to %s", models.ErrInvalidState, server.Status, target)
	}

	approval := s.newApproval(server, principal, action, req.Reason, req.Notes)
	if err := s.record(ctx, approval, server.Status, target); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"server_id":    server.ID,
		"canonical_id": server.CanonicalID,
		"actor":        principal.ID,
		"action":       action.String(),
		"from_status":  server.Status.String(),
		"to_status":    target.String(),
	}).Info("Approval decision recorded")
	return approval, nil
}

// loadForDecision fetches the server and enforces the admin-only rule shared
// by all decision operations.
func (s *service) loadForDecision(ctx context.Context, principal models.Principal, id string) (*models.Server, error) {
	if !principal.IsAdmin() {
		return nil, fmt.Errorf("%w: approval decisions require an admin role", models.ErrForbidden)
	}
	server, err := s.servers.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return server, nil
}

// newApproval builds the append-only decision row. The canonical id and
// latest scan id are snapshotted so the record stays meaningful after the
// server changes or disappears.
func (s *service) newApproval(server *models.Server, principal models.Principal, action models.ApprovalAction, reason, notes string) *models.Approval {
	return &models.Approval{
		ServerID:          server.ID,
		ServerCanonicalID: server.CanonicalID,
		Actor:             principal.ID,
		Action:            action,
		Reason:            reason,
		Notes:             notes,
		Timestamp:         time.Now().UTC(),
		ScanID:            server.LatestScanID,
	}
}

// record writes the decision and the status transition atomically.
func (s *service) record(ctx context.Context, approval *models.Approval, from, to models.ServerStatus) error {
	if err := s.approvals.RecordDecision(ctx, approval, from, to); err != nil {
		switch {
		case errors.Is(err, repositories.ErrConcurrentUpdate):
			return fmt.Errorf("%w: server state changed concurrently", models.ErrConflict)
		case errors.Is(err, repositories.ErrNotFound):
			return models.ErrNotFound
		}
		return err
	}
	metrics.RecordApprovalDecision(approval.Action.String())
	return nil
}

func validateReason(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("%w: a reason is required", models.ErrInvalidArgument)
	}
	return nil
}
