package repositories

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/vantagesec/mcpwarden/internal/models"
)

// auditInsertBatchSize bounds a single multi-row insert from the writer
const auditInsertBatchSize = 200

// auditTopN is how many buckets the stats aggregation keeps per dimension
const auditTopN = 10

// AuditRepository defines the interface for audit event storage. Events are
// append-only and written in batches by the recorder's background workers.
type AuditRepository interface {
	Insert(ctx context.Context, events []*models.AuditEvent) error
	Query(ctx context.Context, filter models.AuditFilter) ([]models.AuditEvent, int64, error)
	Stats(ctx context.Context, filter models.AuditFilter) (*models.AuditStats, error)
}

// auditRepo implements the AuditRepository interface
type auditRepo struct {
	db *gorm.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepo{
		db: db,
	}
}

// Insert writes a batch of audit events
func (r *auditRepo) Insert(ctx context.Context, events []*models.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).CreateInBatches(events, auditInsertBatchSize)
	if result.Error != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseOperation, result.Error)
	}

	return nil
}

// Query lists audit events matching the filter, newest first
func (r *auditRepo) Query(ctx context.Context, filter models.AuditFilter) ([]models.AuditEvent, int64, error) {
	filter.Normalize()

	var events []models.AuditEvent
	var count int64

	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.AuditEvent{}), filter)

	if err := query.Count(&count).Error; err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrDatabaseOperation, err)
	}

	result := query.
		Order("timestamp DESC").
		Offset(filter.Offset).
		Limit(filter.Limit).
		Find(&events)

	if result.Error != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrDatabaseOperation, result.Error)
	}

	return events, count, nil
}

// Stats aggregates audit events over the filter window
func (r *auditRepo) Stats(ctx context.Context, filter models.AuditFilter) (*models.AuditStats, error) {
	stats := &models.AuditStats{
		ByDecision: make(map[string]int64),
	}

	base := func() *gorm.DB {
		return r.applyFilter(r.db.WithContext(ctx).Model(&models.AuditEvent{}), filter)
	}

	if err := base().Count(&stats.Total).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseOperation, err)
	}

	type decisionRow struct {
		Decision models.Decision
		Count    int64
	}
	var decisions []decisionRow
	if err := base().
		Select("decision, COUNT(*) as count").
		Group("decision").
		Find(&decisions).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseOperation, err)
	}
	for _, row := range decisions {
		stats.ByDecision[row.Decision.String()] = row.Count
	}

	type bucketRow struct {
		Key   string
		Count int64
	}

	var servers []bucketRow
	if err := base().
		Select("server_canonical_id as key, COUNT(*) as count").
		Group("server_canonical_id").
		Order("count DESC").
		Limit(auditTopN).
		Find(&servers).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseOperation, err)
	}
	for _, row := range servers {
		stats.TopServers = append(stats.TopServers, models.AuditBucket{Key: row.Key, Count: row.Count})
	}

	var teams []bucketRow
	if err := base().
		Where("team <> ''").
		Select("team as key, COUNT(*) as count").
		Group("team").
		Order("count DESC").
		Limit(auditTopN).
		Find(&teams).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseOperation, err)
	}
	for _, row := range teams {
		stats.TopTeams = append(stats.TopTeams, models.AuditBucket{Key: row.Key, Count: row.Count})
	}

	if stats.Total > 0 {
		var mean *float64
		if err := base().
			Select("AVG(latency_ms)").
			Scan(&mean).Error; err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseOperation, err)
		}
		if mean != nil {
			stats.MeanLatencyMs = *mean
		}
	}

	return stats, nil
}

// applyFilter translates an AuditFilter into WHERE clauses
func (r *auditRepo) applyFilter(query *gorm.DB, filter models.AuditFilter) *gorm.DB {
	if filter.StartDate != nil {
		query = query.Where("timestamp >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		query = query.Where("timestamp <= ?", *filter.EndDate)
	}
	if filter.Team != "" {
		query = query.Where("team = ?", filter.Team)
	}
	if filter.ServerCanonicalID != "" {
		query = query.Where("server_canonical_id = ?", filter.ServerCanonicalID)
	}
	if filter.ToolName != "" {
		query = query.Where("tool_name = ?", filter.ToolName)
	}
	if filter.Actor != "" {
		query = query.Where("actor = ?", filter.Actor)
	}
	if filter.Decision != "" {
		if decision, err := models.ParseDecision(filter.Decision); err == nil {
			query = query.Where("decision = ?", decision)
		} else {
			// An unknown decision name matches nothing rather than everything
			query = query.Where("1 = 0")
		}
	}
	return query
}
