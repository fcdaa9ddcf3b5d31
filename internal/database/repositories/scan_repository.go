package repositories

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/vantagesec/mcpwarden/internal/models"
)

// ScanRepository defines the interface for scan data operations
type ScanRepository interface {
	Create(ctx context.Context, scan *models.Scan) error
	GetByID(ctx context.Context, id string) (*models.Scan, error)
	Update(ctx context.Context, scan *models.Scan) error
	ListByServer(ctx context.Context, serverID string, offset, limit int) ([]models.Scan, int64, error)
	ListUnfinished(ctx context.Context) ([]models.Scan, error)

	// RecordCompletion persists a finished scan and moves its server in one
	// transaction. The scan row is inserted when it does not exist yet, which
	// is the case for uploaded results. The server update is conditional on
	// the expected state; the returned bool reports whether the server row
	// moved. A server that was denied or deleted mid-scan keeps its state
	// while the scan outcome is still recorded.
	RecordCompletion(ctx context.Context, scan *models.Scan, fromStatus, toStatus models.ServerStatus) (bool, error)
}

// scanRepo implements the ScanRepository interface
type scanRepo struct {
	db *gorm.DB
}

// NewScanRepository creates a new scan repository
func NewScanRepository(db *gorm.DB) ScanRepository {
	return &scanRepo{
		db: db,
	}
}

// Create creates a new scan record
func (r *scanRepo) Create(ctx context.Context, scan *models.Scan) error {
	result := r.db.WithContext(ctx).Create(scan)
	if result.Error != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseOperation, result.Error)
	}
	return nil
}

// GetByID finds a scan by its UUID
func (r *scanRepo) GetByID(ctx context.Context, id string) (*models.Scan, error) {
	var scan models.Scan
	result := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&scan)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrDatabaseOperation, result.Error)
	}

	return &scan, nil
}

// Update updates a scan record
func (r *scanRepo) Update(ctx context.Context, scan *models.Scan) error {
	result := r.db.WithContext(ctx).
		Model(scan).
		Select("*").
		Updates(scan)

	if result.Error != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseOperation, result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// ListByServer lists scans for a server, newest first
func (r *scanRepo) ListByServer(ctx context.Context, serverID string, offset, limit int) ([]models.Scan, int64, error) {
	var scans []models.Scan
	var count int64

	query := r.db.WithContext(ctx).
		Model(&models.Scan{}).
		Where("server_id = ?", serverID)

	if err := query.Count(&count).Error; err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrDatabaseOperation, err)
	}

	result := query.
		Order("started_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&scans)

	if result.Error != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrDatabaseOperation, result.Error)
	}

	return scans, count, nil
}

// ListUnfinished lists scans that have not reached a terminal state
func (r *scanRepo) ListUnfinished(ctx context.Context) ([]models.Scan, error) {
	var scans []models.Scan
	result := r.db.WithContext(ctx).
		Where("status IN ?", []models.ScanStatus{models.ScanPending, models.ScanRunning}).
		Find(&scans)

	if result.Error != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseOperation, result.Error)
	}

	return scans, nil
}

// RecordCompletion persists a finished scan and its server-side effects
func (r *scanRepo) RecordCompletion(ctx context.Context, scan *models.Scan, fromStatus, toStatus models.ServerStatus) (bool, error) {
	serverUpdated := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(scan).Select("*").Updates(scan)
		if result.Error != nil {
			return fmt.Errorf("%w: %v", ErrDatabaseOperation, result.Error)
		}
		if result.RowsAffected == 0 {
			// Uploaded results arrive already terminal, without a prior
			// pending row.
			if err := tx.Create(scan).Error; err != nil {
				return fmt.Errorf("%w: %v", ErrDatabaseOperation, err)
			}
		}

		result = tx.Model(&models.Server{}).
			Where("id = ? AND status = ?", scan.ServerID, fromStatus).
			Updates(map[string]interface{}{
				"status":            toStatus,
				"latest_scan_id":    scan.ID,
				"latest_risk_score": scan.RiskScore,
			})
		if result.Error != nil {
			return fmt.Errorf("%w: %v", ErrDatabaseOperation, result.Error)
		}

		serverUpdated = result.RowsAffected > 0
		return nil
	})

	if err != nil {
		return false, err
	}

	return serverUpdated, nil
}
