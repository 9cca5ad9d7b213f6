package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Transaction record operations
	SaveRecord(ctx context.Context, tenantID string, rec *TransactionRecord) error
	SaveRecords(ctx context.Context, tenantID string, recs []*TransactionRecord) error
	GetRecord(ctx context.Context, tenantID string, recordID string) (*TransactionRecord, error)

	// ListReturns retrieves the full returns partition for a tenant.
	// The window aggregates are computed over this set.
	ListReturns(ctx context.Context, tenantID string) ([]*TransactionRecord, error)

	// ListReturnsByCustomer retrieves a customer's return rows since a
	// point in time (audit / incremental aggregate support).
	ListReturnsByCustomer(ctx context.Context, tenantID string, customerID string, since time.Time) ([]*TransactionRecord, error)

	// Classification results
	SaveClassification(ctx context.Context, tenantID string, c *Classification) error
	GetClassification(ctx context.Context, tenantID string, classificationID string) (*Classification, error)
	GetClassificationByRecord(ctx context.Context, tenantID string, recordID string) (*Classification, error)

	// Screen configuration operations
	SaveScreenConfig(ctx context.Context, tenantID string, screen *ScreenConfig) error
	GetScreenConfig(ctx context.Context, tenantID string, screenID string) (*ScreenConfig, error)
	ListScreenConfigs(ctx context.Context, tenantID string) ([]*ScreenConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
