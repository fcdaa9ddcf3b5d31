package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/vantagesec/mcpwarden/internal/config"
)

// Database represents the interface for database operations
type Database interface {
	// DB returns the underlying database instance
	DB() *gorm.DB

	// Connect establishes a connection to the database
	Connect() error

	// Close closes the database connection
	Close() error

	// Migrate runs database migrations for the given models
	Migrate(models ...interface{}) error

	// Ping checks if the database is reachable
	Ping() error

	// Transaction executes the given function within a transaction
	Transaction(fn func(tx *gorm.DB) error) error
}

// Factory defines interface for creating database instances
type Factory interface {
	// Create returns a database instance based on the configuration and logger
	Create(cfg *config.Config, log *logrus.Logger) (Database, error)
}

// DefaultFactory implements the Factory interface
type DefaultFactory struct{}

// NewFactory creates a new database factory
func NewFactory() Factory {
	return &DefaultFactory{}
}

// Create creates a new database instance based on the configuration and logger
func (f *DefaultFactory) Create(cfg *config.Config, log *logrus.Logger) (Database, error) {
	switch cfg.Database.Type {
	case "postgres":
		return NewPostgresDB(cfg, log)
	case "sqlite":
		return NewSQLiteDB(cfg, log)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
	}
}

// InitDatabase creates a database from the configuration and connects it
func InitDatabase(cfg *config.Config, log *logrus.Logger) (Database, error) {
	db, err := NewFactory().Create(cfg, log)
	if err != nil {
		log.WithError(err).Error("Failed to create database instance")
		return nil, err
	}

	log.WithField("type", cfg.Database.Type).Info("Connecting to database")
	if err := db.Connect(); err != nil {
		log.WithError(err).Error("Failed to connect to database")
		return nil, err
	}
	log.Info("Database connection established")

	return db, nil
}

// MockDatabase is a mock implementation of the Database interface for testing
type MockDatabase struct {
	mockDB *gorm.DB
	Err    error
	Closed bool
}

// NewMockDatabase creates a new mock database
func NewMockDatabase(db *gorm.DB, err error) *MockDatabase {
	return &MockDatabase{
		mockDB: db,
		Err:    err,
	}
}

// DB returns the underlying database instance
func (m *MockDatabase) DB() *gorm.DB {
	return m.mockDB
}

// Connect mock implementation
func (m *MockDatabase) Connect() error {
	return m.Err
}

// Close mock implementation
func (m *MockDatabase) Close() error {
	m.Closed = true
	return m.Err
}

// Migrate mock implementation
func (m *MockDatabase) Migrate(models ...interface{}) error {
	return m.Err
}

// Ping mock implementation
func (m *MockDatabase) Ping() error {
	return m.Err
}

// Transaction mock implementation
func (m *MockDatabase) Transaction(fn func(tx *gorm.DB) error) error {
	if m.Err != nil {
		return m.Err
	}
	if m.mockDB == nil {
		return fmt.Errorf("mock database instance is nil")
	}
	return fn(m.mockDB)
}
