package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Certificate Operations
// =============================================================================

// certificateRow represents a certificate row in the database.
type certificateRow struct {
	Domain      string  `db:"domain"`
	State       string  `db:"state"`
	Resolver    string  `db:"resolver"`
	SerialHex   string  `db:"serial_hex"`
	NotBefore   *string `db:"not_before"`
	NotAfter    *string `db:"not_after"`
	Failures    int     `db:"failures"`
	LastError   string  `db:"last_error"`
	LastAttempt *string `db:"last_attempt"`
	CreatedAt   string  `db:"created_at"`
	UpdatedAt   string  `db:"updated_at"`
}

func (s *SQLiteStore) UpsertCertificate(ctx context.Context, rec *CertificateRecord) error {
	return upsertCertificate(ctx, s.db, rec)
}

func (s *SQLiteStore) GetCertificate(ctx context.Context, domain string) (*CertificateRecord, error) {
	return getCertificate(ctx, s.db, domain)
}

func (s *SQLiteStore) ListCertificates(ctx context.Context, opts ListOptions) ([]CertificateRecord, error) {
	return listCertificates(ctx, s.db, opts)
}

func (s *SQLiteStore) DeleteCertificate(ctx context.Context, domain string) error {
	return deleteCertificate(ctx, s.db, domain)
}

// =============================================================================
// Deployment Operations
// =============================================================================

// deploymentRow represents a deployment row in the database.
type deploymentRow struct {
	ID        string  `db:"id"`
	StackName string  `db:"stack_name"`
	Hostname  string  `db:"hostname"`
	Status    string  `db:"status"`
	Spec      string  `db:"spec"`
	Error     string  `db:"error_message"`
	CreatedAt string  `db:"created_at"`
	UpdatedAt string  `db:"updated_at"`
	StartedAt *string `db:"started_at"`
	StoppedAt *string `db:"stopped_at"`
}

func (s *SQLiteStore) CreateDeployment(ctx context.Context, rec *DeploymentRecord) error {
	return createDeployment(ctx, s.db, rec)
}

func (s *SQLiteStore) GetDeployment(ctx context.Context, id string) (*DeploymentRecord, error) {
	return getDeployment(ctx, s.db, id)
}

func (s *SQLiteStore) UpdateDeployment(ctx context.Context, rec *DeploymentRecord) error {
	return updateDeployment(ctx, s.db, rec)
}

func (s *SQLiteStore) DeleteDeployment(ctx context.Context, id string) error {
	return deleteDeployment(ctx, s.db, id)
}

func (s *SQLiteStore) ListDeployments(ctx context.Context, opts ListOptions) ([]DeploymentRecord, error) {
	return listDeployments(ctx, s.db, opts)
}

// =============================================================================
// Route Event Operations
// =============================================================================

func (s *SQLiteStore) AppendRouteEvent(ctx context.Context, ev *RouteEvent) error {
	return appendRouteEvent(ctx, s.db, ev)
}

func (s *SQLiteStore) ListRouteEvents(ctx context.Context, opts ListOptions) ([]RouteEvent, error) {
	return listRouteEvents(ctx, s.db, opts)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// =============================================================================
// Transaction Store
// =============================================================================

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) UpsertCertificate(ctx context.Context, rec *CertificateRecord) error {
	return upsertCertificate(ctx, s.tx, rec)
}

func (s *txSQLiteStore) GetCertificate(ctx context.Context, domain string) (*CertificateRecord, error) {
	return getCertificate(ctx, s.tx, domain)
}

func (s *txSQLiteStore) ListCertificates(ctx context.Context, opts ListOptions) ([]CertificateRecord, error) {
	return listCertificates(ctx, s.tx, opts)
}

func (s *txSQLiteStore) DeleteCertificate(ctx context.Context, domain string) error {
	return deleteCertificate(ctx, s.tx, domain)
}

func (s *txSQLiteStore) CreateDeployment(ctx context.Context, rec *DeploymentRecord) error {
	return createDeployment(ctx, s.tx, rec)
}

func (s *txSQLiteStore) GetDeployment(ctx context.Context, id string) (*DeploymentRecord, error) {
	return getDeployment(ctx, s.tx, id)
}

func (s *txSQLiteStore) UpdateDeployment(ctx context.Context, rec *DeploymentRecord) error {
	return updateDeployment(ctx, s.tx, rec)
}

func (s *txSQLiteStore) DeleteDeployment(ctx context.Context, id string) error {
	return deleteDeployment(ctx, s.tx, id)
}

func (s *txSQLiteStore) ListDeployments(ctx context.Context, opts ListOptions) ([]DeploymentRecord, error) {
	return listDeployments(ctx, s.tx, opts)
}

func (s *txSQLiteStore) AppendRouteEvent(ctx context.Context, ev *RouteEvent) error {
	return appendRouteEvent(ctx, s.tx, ev)
}

func (s *txSQLiteStore) ListRouteEvents(ctx context.Context, opts ListOptions) ([]RouteEvent, error) {
	return listRouteEvents(ctx, s.tx, opts)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just run the function
	return fn(s)
}

func (s *txSQLiteStore) Close() error {
	// No-op for tx store
	return nil
}

// =============================================================================
// Shared Implementation Functions
// =============================================================================

func upsertCertificate(ctx context.Context, exec executor, rec *CertificateRecord) error {
	query := `
		INSERT INTO certificates (
			domain, state, resolver, serial_hex, not_before, not_after,
			failures, last_error, last_attempt, created_at, updated_at
		) VALUES (
			:domain, :state, :resolver, :serial_hex, :not_before, :not_after,
			:failures, :last_error, :last_attempt, :created_at, :updated_at
		)
		ON CONFLICT(domain) DO UPDATE SET
			state = excluded.state,
			resolver = excluded.resolver,
			serial_hex = excluded.serial_hex,
			not_before = excluded.not_before,
			not_after = excluded.not_after,
			failures = excluded.failures,
			last_error = excluded.last_error,
			last_attempt = excluded.last_attempt,
			updated_at = excluded.updated_at`

	now := time.Now().UTC()
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	row := map[string]any{
		"domain":       rec.Domain,
		"state":        rec.State,
		"resolver":     rec.Resolver,
		"serial_hex":   rec.SerialHex,
		"not_before":   formatTimePtr(rec.NotBefore),
		"not_after":    formatTimePtr(rec.NotAfter),
		"failures":     rec.Failures,
		"last_error":   rec.LastError,
		"last_attempt": formatTimePtr(rec.LastAttempt),
		"created_at":   createdAt.Format(time.RFC3339),
		"updated_at":   now.Format(time.RFC3339),
	}

	_, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("UpsertCertificate", "certificate", rec.Domain, err.Error(), err)
	}

	return nil
}

func getCertificate(ctx context.Context, exec executor, domain string) (*CertificateRecord, error) {
	query := `SELECT * FROM certificates WHERE domain = ?`

	var row certificateRow
	err := exec.GetContext(ctx, &row, query, domain)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetCertificate", "certificate", domain, "certificate not found", ErrNotFound)
		}
		return nil, NewStoreError("GetCertificate", "certificate", domain, err.Error(), err)
	}

	return rowToCertificate(&row), nil
}

func listCertificates(ctx context.Context, exec executor, opts ListOptions) ([]CertificateRecord, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM certificates ORDER BY domain LIMIT ? OFFSET ?`

	var rows []certificateRow
	err := exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListCertificates", "certificate", "", err.Error(), err)
	}

	records := make([]CertificateRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, *rowToCertificate(&row))
	}

	return records, nil
}

func deleteCertificate(ctx context.Context, exec executor, domain string) error {
	query := `DELETE FROM certificates WHERE domain = ?`

	result, err := exec.ExecContext(ctx, query, domain)
	if err != nil {
		return NewStoreError("DeleteCertificate", "certificate", domain, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("DeleteCertificate", "certificate", domain, "certificate not found", ErrNotFound)
	}

	return nil
}

func createDeployment(ctx context.Context, exec executor, rec *DeploymentRecord) error {
	query := `
		INSERT INTO deployments (
			id, stack_name, hostname, status, spec, error_message,
			created_at, updated_at, started_at, stopped_at
		) VALUES (
			:id, :stack_name, :hostname, :status, :spec, :error_message,
			:created_at, :updated_at, :started_at, :stopped_at
		)`

	now := time.Now().UTC()
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	row := map[string]any{
		"id":            rec.ID,
		"stack_name":    rec.StackName,
		"hostname":      rec.Hostname,
		"status":        rec.Status,
		"spec":          rec.Spec,
		"error_message": rec.Error,
		"created_at":    createdAt.Format(time.RFC3339),
		"updated_at":    updatedAt.Format(time.RFC3339),
		"started_at":    formatTimePtr(rec.StartedAt),
		"stopped_at":    formatTimePtr(rec.StoppedAt),
	}

	_, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: deployments.id") {
			return NewStoreError("CreateDeployment", "deployment", rec.ID, "deployment with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateDeployment", "deployment", rec.ID, err.Error(), err)
	}

	return nil
}

func getDeployment(ctx context.Context, exec executor, id string) (*DeploymentRecord, error) {
	query := `SELECT * FROM deployments WHERE id = ?`

	var row deploymentRow
	err := exec.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetDeployment", "deployment", id, "deployment not found", ErrNotFound)
		}
		return nil, NewStoreError("GetDeployment", "deployment", id, err.Error(), err)
	}

	return rowToDeployment(&row), nil
}

func updateDeployment(ctx context.Context, exec executor, rec *DeploymentRecord) error {
	query := `
		UPDATE deployments SET
			stack_name = :stack_name,
			hostname = :hostname,
			status = :status,
			spec = :spec,
			error_message = :error_message,
			updated_at = :updated_at,
			started_at = :started_at,
			stopped_at = :stopped_at
		WHERE id = :id`

	row := map[string]any{
		"id":            rec.ID,
		"stack_name":    rec.StackName,
		"hostname":      rec.Hostname,
		"status":        rec.Status,
		"spec":          rec.Spec,
		"error_message": rec.Error,
		"updated_at":    time.Now().UTC().Format(time.RFC3339),
		"started_at":    formatTimePtr(rec.StartedAt),
		"stopped_at":    formatTimePtr(rec.StoppedAt),
	}

	result, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("UpdateDeployment", "deployment", rec.ID, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("UpdateDeployment", "deployment", rec.ID, "deployment not found", ErrNotFound)
	}

	return nil
}

func deleteDeployment(ctx context.Context, exec executor, id string) error {
	query := `DELETE FROM deployments WHERE id = ?`

	result, err := exec.ExecContext(ctx, query, id)
	if err != nil {
		return NewStoreError("DeleteDeployment", "deployment", id, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("DeleteDeployment", "deployment", id, "deployment not found", ErrNotFound)
	}

	return nil
}

func listDeployments(ctx context.Context, exec executor, opts ListOptions) ([]DeploymentRecord, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM deployments ORDER BY created_at DESC LIMIT ? OFFSET ?`

	var rows []deploymentRow
	err := exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListDeployments", "deployment", "", err.Error(), err)
	}

	records := make([]DeploymentRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, *rowToDeployment(&row))
	}

	return records, nil
}

func appendRouteEvent(ctx context.Context, exec executor, ev *RouteEvent) error {
	query := `
		INSERT INTO route_events (action, rule, service, container_id, address, created_at)
		VALUES (:action, :rule, :service, :container_id, :address, :created_at)`

	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	row := map[string]any{
		"action":       ev.Action,
		"rule":         ev.Rule,
		"service":      ev.Service,
		"container_id": ev.ContainerID,
		"address":      ev.Address,
		"created_at":   createdAt.Format(time.RFC3339),
	}

	result, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("AppendRouteEvent", "route_event", "", err.Error(), err)
	}

	if id, err := result.LastInsertId(); err == nil {
		ev.ID = id
	}

	return nil
}

func listRouteEvents(ctx context.Context, exec executor, opts ListOptions) ([]RouteEvent, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM route_events ORDER BY id DESC LIMIT ? OFFSET ?`

	type routeEventRow struct {
		ID          int64  `db:"id"`
		Action      string `db:"action"`
		Rule        string `db:"rule"`
		Service     string `db:"service"`
		ContainerID string `db:"container_id"`
		Address     string `db:"address"`
		CreatedAt   string `db:"created_at"`
	}

	var rows []routeEventRow
	err := exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListRouteEvents", "route_event", "", err.Error(), err)
	}

	events := make([]RouteEvent, 0, len(rows))
	for _, row := range rows {
		createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)
		events = append(events, RouteEvent{
			ID:          row.ID,
			Action:      row.Action,
			Rule:        row.Rule,
			Service:     row.Service,
			ContainerID: row.ContainerID,
			Address:     row.Address,
			CreatedAt:   createdAt,
		})
	}

	return events, nil
}

// =============================================================================
// Row Conversion Functions
// =============================================================================

func rowToCertificate(row *certificateRow) *CertificateRecord {
	createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339, row.UpdatedAt)

	return &CertificateRecord{
		Domain:      row.Domain,
		State:       row.State,
		Resolver:    row.Resolver,
		SerialHex:   row.SerialHex,
		NotBefore:   parseTimePtr(row.NotBefore),
		NotAfter:    parseTimePtr(row.NotAfter),
		Failures:    row.Failures,
		LastError:   row.LastError,
		LastAttempt: parseTimePtr(row.LastAttempt),
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}
}

func rowToDeployment(row *deploymentRow) *DeploymentRecord {
	createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339, row.UpdatedAt)

	return &DeploymentRecord{
		ID:        row.ID,
		StackName: row.StackName,
		Hostname:  row.Hostname,
		Status:    row.Status,
		Spec:      row.Spec,
		Error:     row.Error,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		StartedAt: parseTimePtr(row.StartedAt),
		StoppedAt: parseTimePtr(row.StoppedAt),
	}
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func parseTimePtr(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil
	}
	return &t
}
