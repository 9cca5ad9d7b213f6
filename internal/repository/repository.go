// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/retail-insights/kestrel/internal/domain"
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

const recordColumns = `id, tenant_id, invoice_no, invoice_date, stock_code,
	   description_clean, quantity, unit_price, order_value,
	   customer_id, country, customer_type, created_at`

// SaveRecord stores a transaction record with tenant isolation.
func (r *SQLRepository) SaveRecord(ctx context.Context, tenantID string, rec *domain.TransactionRecord) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO records (
			id, tenant_id, invoice_no, invoice_date, stock_code,
			description_clean, quantity, unit_price, order_value,
			customer_id, country, customer_type, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, tenantID, rec.InvoiceNo, rec.InvoiceDate, rec.StockCode,
		rec.DescriptionClean, rec.Quantity, rec.UnitPrice, rec.OrderValue,
		rec.CustomerID, rec.Country, rec.CustomerType, rec.CreatedAt,
	)
	return err
}

// SaveRecords stores a batch of records in a single transaction.
func (r *SQLRepository) SaveRecords(ctx context.Context, tenantID string, recs []*domain.TransactionRecord) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if len(recs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := r.rebind(`
		INSERT INTO records (
			id, tenant_id, invoice_no, invoice_date, stock_code,
			description_clean, quantity, unit_price, order_value,
			customer_id, country, customer_type, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	for _, rec := range recs {
		if _, err := tx.ExecContext(ctx, query,
			rec.ID, tenantID, rec.InvoiceNo, rec.InvoiceDate, rec.StockCode,
			rec.DescriptionClean, rec.Quantity, rec.UnitPrice, rec.OrderValue,
			rec.CustomerID, rec.Country, rec.CustomerType, rec.CreatedAt,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetRecord retrieves a record by ID with tenant isolation.
func (r *SQLRepository) GetRecord(ctx context.Context, tenantID string, recordID string) (*domain.TransactionRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT ` + recordColumns + `
		FROM records
		WHERE tenant_id = ? AND id = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, recordID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// ListReturns retrieves the full returns partition for a tenant,
// ordered by invoice date for deterministic aggregation audits.
func (r *SQLRepository) ListReturns(ctx context.Context, tenantID string) ([]*domain.TransactionRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT ` + recordColumns + `
		FROM records
		WHERE tenant_id = ? AND quantity < 0
		ORDER BY invoice_date, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListReturnsByCustomer retrieves a customer's return rows since a point
// in time with tenant isolation.
func (r *SQLRepository) ListReturnsByCustomer(ctx context.Context, tenantID string, customerID string, since time.Time) ([]*domain.TransactionRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT ` + recordColumns + `
		FROM records
		WHERE tenant_id = ?
		  AND customer_id = ?
		  AND quantity < 0
		  AND invoice_date >= ?
		ORDER BY invoice_date, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, customerID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.TransactionRecord, error) {
	var rec domain.TransactionRecord
	err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.InvoiceNo, &rec.InvoiceDate, &rec.StockCode,
		&rec.DescriptionClean, &rec.Quantity, &rec.UnitPrice, &rec.OrderValue,
		&rec.CustomerID, &rec.Country, &rec.CustomerType, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]*domain.TransactionRecord, error) {
	var records []*domain.TransactionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SaveClassification stores a classification result with tenant isolation.
func (r *SQLRepository) SaveClassification(ctx context.Context, tenantID string, c *domain.Classification) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	salesLabels, _ := json.Marshal(c.Sales)
	returnLabels, _ := json.Marshal(c.Returns)
	screenResults, _ := json.Marshal(c.ScreenResults)
	metadata, _ := json.Marshal(c.Metadata)

	query := `
		INSERT INTO classifications (
			id, tenant_id, record_id, partition_name, timestamp,
			sales_labels, return_labels, screen_results, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		c.ID, tenantID, c.RecordID, string(c.Partition), c.Timestamp,
		string(salesLabels), string(returnLabels), string(screenResults), string(metadata),
	)
	return err
}

// GetClassification retrieves a classification by ID with tenant isolation.
func (r *SQLRepository) GetClassification(ctx context.Context, tenantID string, classificationID string) (*domain.Classification, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, record_id, partition_name, timestamp,
			   sales_labels, return_labels, screen_results, metadata
		FROM classifications
		WHERE tenant_id = ? AND id = ?
	`

	return r.queryClassification(ctx, query, tenantID, classificationID)
}

// GetClassificationByRecord retrieves the latest classification for a record.
func (r *SQLRepository) GetClassificationByRecord(ctx context.Context, tenantID string, recordID string) (*domain.Classification, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, record_id, partition_name, timestamp,
			   sales_labels, return_labels, screen_results, metadata
		FROM classifications
		WHERE tenant_id = ? AND record_id = ?
		ORDER BY timestamp DESC
		LIMIT 1
	`

	return r.queryClassification(ctx, query, tenantID, recordID)
}

func (r *SQLRepository) queryClassification(ctx context.Context, query string, args ...any) (*domain.Classification, error) {
	var c domain.Classification
	var partition string
	var salesLabels, returnLabels, screenResults, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), args...).Scan(
		&c.ID, &c.TenantID, &c.RecordID, &partition, &c.Timestamp,
		&salesLabels, &returnLabels, &screenResults, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	c.Partition = domain.Partition(partition)
	if salesLabels != "" && salesLabels != "null" {
		json.Unmarshal([]byte(salesLabels), &c.Sales)
	}
	if returnLabels != "" && returnLabels != "null" {
		json.Unmarshal([]byte(returnLabels), &c.Returns)
	}
	if screenResults != "" && screenResults != "null" {
		json.Unmarshal([]byte(screenResults), &c.ScreenResults)
	}
	json.Unmarshal([]byte(metadata), &c.Metadata)

	return &c, nil
}

// SaveScreenConfig stores a screen configuration with tenant isolation.
func (r *SQLRepository) SaveScreenConfig(ctx context.Context, tenantID string, screen *domain.ScreenConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	enabled := 0
	if screen.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO screen_configs (
			id, tenant_id, name, description, version, expression, reason, severity, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			reason = excluded.reason,
			severity = excluded.severity,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		screen.ID, tenantID, screen.Name, screen.Description,
		screen.Version, screen.Expression, screen.Reason, screen.Severity, enabled,
		now, now,
	)
	return err
}

// GetScreenConfig retrieves a screen configuration with tenant isolation.
func (r *SQLRepository) GetScreenConfig(ctx context.Context, tenantID string, screenID string) (*domain.ScreenConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, reason, severity, enabled
		FROM screen_configs
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var cfg domain.ScreenConfig
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, screenID).Scan(
		&cfg.ID, &cfg.TenantID, &cfg.Name, &cfg.Description,
		&cfg.Version, &cfg.Expression, &cfg.Reason, &cfg.Severity, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg.Enabled = enabled == 1

	return &cfg, nil
}

// ListScreenConfigs retrieves all active screen configurations for a tenant.
func (r *SQLRepository) ListScreenConfigs(ctx context.Context, tenantID string) ([]*domain.ScreenConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, reason, severity, enabled
		FROM screen_configs
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.ScreenConfig
	for rows.Next() {
		var cfg domain.ScreenConfig
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.TenantID, &cfg.Name, &cfg.Description,
			&cfg.Version, &cfg.Expression, &cfg.Reason, &cfg.Severity, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Enabled = enabled == 1
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
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
