package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/vantagesec/mcpwarden/internal/models"
)

// ApprovalRepository defines the interface for approval data operations.
// Approvals are append-only: there is no update or delete.
type ApprovalRepository interface {
	Create(ctx context.Context, approval *models.Approval) error
	GetByID(ctx context.Context, id string) (*models.Approval, error)
	ListByServer(ctx context.Context, serverID string, offset, limit int) ([]models.Approval, int64, error)
	GetLatestByServer(ctx context.Context, serverID string) (*models.Approval, error)
	ListExpired(ctx context.Context, now time.Time) ([]models.Approval, error)

	// RecordDecision appends the approval and moves the server to its new
	// state in one transaction, so a recorded decision and the resulting
	// state can never diverge. The server update is conditional on the
	// expected state; a race loses with ErrConcurrentUpdate and nothing is
	// written.
	RecordDecision(ctx context.Context, approval *models.Approval, fromStatus, toStatus models.ServerStatus) error
}

// approvalRepo implements the ApprovalRepository interface
type approvalRepo struct {
	db *gorm.DB
}

// NewApprovalRepository creates a new approval repository
func NewApprovalRepository(db *gorm.DB) ApprovalRepository {
	return &approvalRepo{
		db: db,
	}
}

// Create appends an approval record
func (r *approvalRepo) Create(ctx context.Context, approval *models.Approval) error {
	result := r.db.WithContext(ctx).Create(approval)
	if result.Error != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseOperation, result.Error)
	}
	return nil
}

// GetByID finds an approval by its UUID
func (r *approvalRepo) GetByID(ctx context.Context, id string) (*models.Approval, error) {
	var approval models.Approval
	result := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&approval)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrDatabaseOperation, result.Error)
	}

	return &approval, nil
}

// ListByServer lists approvals for a server, newest first
func (r *approvalRepo) ListByServer(ctx context.Context, serverID string, offset, limit int) ([]models.Approval, int64, error) {
	var approvals []models.Approval
	var count int64

	query := r.db.WithContext(ctx).
		Model(&models.Approval{}).
		Where("server_id = ?", serverID)

	if err := query.Count(&count).Error; err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrDatabaseOperation, err)
	}

	result := query.
		Order("timestamp DESC").
		Offset(offset).
		Limit(limit).
		Find(&approvals)

	if result.Error != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrDatabaseOperation, result.Error)
	}

	return approvals, count, nil
}

// GetLatestByServer returns the newest approval for a server
func (r *approvalRepo) GetLatestByServer(ctx context.Context, serverID string) (*models.Approval, error) {
	var approval models.Approval
	result := r.db.WithContext(ctx).
		Where("server_id = ?", serverID).
		Order("timestamp DESC").
		First(&approval)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrDatabaseOperation, result.Error)
	}

	return &approval, nil
}

// ListExpired returns, per server, the newest approval when it grants access
// and its expiry has passed. Superseded grants do not count.
func (r *approvalRepo) ListExpired(ctx context.Context, now time.Time) ([]models.Approval, error) {
	var approvals []models.Approval
	result := r.db.WithContext(ctx).
		Where("action = ?", models.ActionApproved).
		Where("expires_at IS NOT NULL AND expires_at < ?", now).
		Where("timestamp = (SELECT MAX(a2.timestamp) FROM mcp_approvals a2 WHERE a2.server_id = mcp_approvals.server_id)").
		Find(&approvals)

	if result.Error != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseOperation, result.Error)
	}

	return approvals, nil
}

// RecordDecision appends the approval and transitions the server atomically
func (r *approvalRepo) RecordDecision(ctx context.Context, approval *models.Approval, fromStatus, toStatus models.ServerStatus) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Server{}).
			Where("id = ? AND status = ?", approval.ServerID, fromStatus).
			Update("status", toStatus)
		if result.Error != nil {
			return fmt.Errorf("%w: %v", ErrDatabaseOperation, result.Error)
		}

		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Server{}).
				Where("id = ?", approval.ServerID).
				Count(&count).Error; err != nil {
				return fmt.Errorf("%w: %v", ErrDatabaseOperation, err)
			}
			if count == 0 {
				return ErrNotFound
			}
			return ErrConcurrentUpdate
		}

		if err := tx.Create(approval).Error; err != nil {
			return fmt.Errorf("%w: %v", ErrDatabaseOperation, err)
		}

		return nil
	})
}
