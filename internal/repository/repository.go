// Package repository provides audit persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/shrike/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SavePrediction stores a served prediction with its invoice snapshot.
func (r *SQLRepository) SavePrediction(ctx context.Context, rec *domain.PredictionRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: record ID is required", ErrInvalidInput)
	}
	if rec.InvoiceID == "" {
		return fmt.Errorf("%w: invoice ID is required", ErrInvalidInput)
	}

	invoice, err := json.Marshal(rec.Invoice)
	if err != nil {
		return fmt.Errorf("failed to marshal invoice snapshot: %w", err)
	}
	riskFactors, err := json.Marshal(rec.Result.RiskFactors)
	if err != nil {
		return fmt.Errorf("failed to marshal risk factors: %w", err)
	}
	warnings, _ := json.Marshal(rec.Result.Warnings)

	isFake := 0
	if rec.Result.IsFake {
		isFake = 1
	}

	query := `
		INSERT INTO predictions (
			id, invoice_id, vendor_name, invoice, is_fake, confidence,
			score, model_used, risk_factors, warnings, trace_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, rec.InvoiceID, rec.Invoice.VendorName,
		string(invoice), isFake, rec.Result.Confidence,
		rec.Score, rec.Result.ModelUsed,
		string(riskFactors), string(warnings),
		rec.TraceID, rec.CreatedAt,
	)
	return err
}

// GetPrediction retrieves a prediction record by ID.
func (r *SQLRepository) GetPrediction(ctx context.Context, id string) (*domain.PredictionRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: record ID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, invoice_id, invoice, is_fake, confidence,
			   score, model_used, risk_factors, warnings, trace_id, created_at
		FROM predictions
		WHERE id = ?
	`

	rec, err := r.scanPrediction(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListPredictionsByInvoice returns prior predictions for an invoice ID
// since the given time, newest first.
func (r *SQLRepository) ListPredictionsByInvoice(ctx context.Context, invoiceID string, since time.Time) ([]*domain.PredictionRecord, error) {
	if invoiceID == "" {
		return nil, fmt.Errorf("%w: invoice ID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, invoice_id, invoice, is_fake, confidence,
			   score, model_used, risk_factors, warnings, trace_id, created_at
		FROM predictions
		WHERE invoice_id = ? AND created_at >= ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), invoiceID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.PredictionRecord
	for rows.Next() {
		rec, err := r.scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) scanPrediction(row scanner) (*domain.PredictionRecord, error) {
	var rec domain.PredictionRecord
	var invoice, riskFactors, warnings string
	var isFake int

	if err := row.Scan(
		&rec.ID, &rec.InvoiceID, &invoice, &isFake, &rec.Result.Confidence,
		&rec.Score, &rec.Result.ModelUsed, &riskFactors, &warnings,
		&rec.TraceID, &rec.CreatedAt,
	); err != nil {
		return nil, err
	}

	rec.Result.IsFake = isFake == 1
	if err := json.Unmarshal([]byte(invoice), &rec.Invoice); err != nil {
		return nil, fmt.Errorf("failed to parse invoice snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(riskFactors), &rec.Result.RiskFactors); err != nil {
		return nil, fmt.Errorf("failed to parse risk factors: %w", err)
	}
	if warnings != "" {
		json.Unmarshal([]byte(warnings), &rec.Result.Warnings)
	}

	return &rec, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
