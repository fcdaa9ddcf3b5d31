package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/vantagesec/mcpwarden/internal/models"
)

// Common repository errors
var (
	ErrNotFound          = errors.New("entity not found")
	ErrDuplicateKey      = errors.New("duplicate key violation")
	ErrInvalidInput      = errors.New("invalid input")
	ErrDatabaseOperation = errors.New("database operation failed")
	ErrConcurrentUpdate  = errors.New("concurrent update detected")
)

// AccessScope restricts a listing to rows a non-admin principal can see:
// their own registrations and their teams' servers.
type AccessScope struct {
	PrincipalID string
	Teams       []string
}

// ServerFilter narrows a server listing. Zero values mean "any".
type ServerFilter struct {
	Status    *models.ServerStatus
	OwnerTeam string
	Tag       string
	Query     string
	Access    *AccessScope
	Offset    int
	Limit     int
}

// ServerRepository defines the interface for server data operations
type ServerRepository interface {
	Create(ctx context.Context, server *models.Server) error
	GetByID(ctx context.Context, id string) (*models.Server, error)
	GetByCanonicalID(ctx context.Context, canonicalID string) (*models.Server, error)
	Update(ctx context.Context, server *models.Server) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ServerFilter) ([]models.Server, int64, error)
	ListByStatuses(ctx context.Context, statuses ...models.ServerStatus) ([]models.Server, error)
	CountByStatus(ctx context.Context) (map[models.ServerStatus]int64, error)
	TransitionStatus(ctx context.Context, id string, from, to models.ServerStatus) error
}

// serverRepo implements the ServerRepository interface
type serverRepo struct {
	db *gorm.DB
}

// NewServerRepository creates a new server repository
func NewServerRepository(db *gorm.DB) ServerRepository {
	return &serverRepo{
		db: db,
	}
}

// Create creates a new server registration
func (r *serverRepo) Create(ctx context.Context, server *models.Server) error {
	result := r.db.WithContext(ctx).Create(server)
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return fmt.Errorf("%w: canonical id already registered", ErrDuplicateKey)
		}
		return fmt.Errorf("%w: %v", ErrDatabaseOperation, result.Error)
	}
	return nil
}

// GetByID finds a server by its UUID
func (r *serverRepo) GetByID(ctx context.Context, id string) (*models.Server, error) {
	var server models.Server
	result := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&server)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrDatabaseOperation, result.Error)
	}

	return &server, nil
}

// GetByCanonicalID finds a server by its canonical id
func (r *serverRepo) GetByCanonicalID(ctx context.Context, canonicalID string) (*models.Server, error) {
	var server models.Server
	result := r.db.WithContext(ctx).
		Where("canonical_id = ?", strings.ToLower(canonicalID)).
		First(&server)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrDatabaseOperation, result.Error)
	}

	return &server, nil
}

// Update updates a server
func (r *serverRepo) Update(ctx context.Context, server *models.Server) error {
	result := r.db.WithContext(ctx).
		Model(server).
		Omit("CreatedAt"). // Never update CreatedAt
		Select("*").
		Updates(server)

	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return fmt.Errorf("%w: canonical id already registered", ErrDuplicateKey)
		}
		return fmt.Errorf("%w: %v", ErrDatabaseOperation, result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete deletes a server. Scans and approvals go with it via the
// foreign key cascade; audit events keep their canonical id snapshot.
func (r *serverRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.Server{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseOperation, result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// List lists servers matching the filter with pagination
func (r *serverRepo) List(ctx context.Context, filter ServerFilter) ([]models.Server, int64, error) {
	var servers []models.Server
	var count int64

	query := r.db.WithContext(ctx).Model(&models.Server{})

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.OwnerTeam != "" {
		query = query.Where("owner_team = ?", filter.OwnerTeam)
	}
	if filter.Tag != "" {
		// Tags are stored as a JSON array in a text column
		query = query.Where("tags LIKE ?", "%\""+filter.Tag+"\"%")
	}
	if filter.Query != "" {
		like := "%" + strings.ToLower(filter.Query) + "%"
		query = query.Where("canonical_id LIKE ? OR LOWER(name) LIKE ?", like, like)
	}
	if filter.Access != nil {
		if len(filter.Access.Teams) > 0 {
			// Team claims are matched case-insensitively, like Principal.InTeam.
			teams := make([]string, len(filter.Access.Teams))
			for i, team := range filter.Access.Teams {
				teams[i] = strings.ToLower(team)
			}
			query = query.Where("created_by = ? OR LOWER(owner_team) IN ?", filter.Access.PrincipalID, teams)
		} else {
			query = query.Where("created_by = ?", filter.Access.PrincipalID)
		}
	}

	if err := query.Count(&count).Error; err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrDatabaseOperation, err)
	}

	query = query.Order("created_at DESC")
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	result := query.Find(&servers)
	if result.Error != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrDatabaseOperation, result.Error)
	}

	return servers, count, nil
}

// ListByStatuses lists all servers in any of the given states
func (r *serverRepo) ListByStatuses(ctx context.Context, statuses ...models.ServerStatus) ([]models.Server, error) {
	var servers []models.Server
	result := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Find(&servers)

	if result.Error != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseOperation, result.Error)
	}

	return servers, nil
}

// CountByStatus returns the number of servers per lifecycle state
func (r *serverRepo) CountByStatus(ctx context.Context) (map[models.ServerStatus]int64, error) {
	type row struct {
		Status models.ServerStatus
		Count  int64
	}

	var rows []row
	result := r.db.WithContext(ctx).
		Model(&models.Server{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Find(&rows)

	if result.Error != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseOperation, result.Error)
	}

	counts := make(map[models.ServerStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}

	return counts, nil
}

// TransitionStatus moves a server from one state to another. The update is
// conditional on the current state, so two racing transitions cannot both
// win; the loser gets ErrConcurrentUpdate.
func (r *serverRepo) TransitionStatus(ctx context.Context, id string, from, to models.ServerStatus) error {
	result := r.db.WithContext(ctx).
		Model(&models.Server{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)

	if result.Error != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseOperation, result.Error)
	}

	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).
			Model(&models.Server{}).
			Where("id = ?", id).
			Count(&count).Error; err != nil {
			return fmt.Errorf("%w: %v", ErrDatabaseOperation, err)
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrConcurrentUpdate
	}

	return nil
}

// isDuplicateKeyError checks if an error is a duplicate key error
func isDuplicateKeyError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "duplicate key") ||
		strings.Contains(err.Error(), "Duplicate entry") ||
		strings.Contains(err.Error(), "UNIQUE constraint failed"))
}
