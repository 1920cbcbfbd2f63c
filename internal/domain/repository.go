package domain

import (
	"context"
	"time"
)

// Repository defines the interface for audit persistence. Every served
// prediction is stored together with its invoice snapshot so the review
// UI and the audit pipeline can retrieve it later.
type Repository interface {
	// Prediction audit trail
	SavePrediction(ctx context.Context, rec *PredictionRecord) error
	GetPrediction(ctx context.Context, id string) (*PredictionRecord, error)

	// ListPredictionsByInvoice returns prior predictions for an invoice ID
	// since the given time, newest first. Used for duplicate-submission
	// tracking and audit queries.
	ListPredictionsByInvoice(ctx context.Context, invoiceID string, since time.Time) ([]*PredictionRecord, error)

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
