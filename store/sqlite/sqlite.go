/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence interface of the leave engine on one SQLite
  database: the leave store with its balance journal and audit log, the
  employee directory and the notification inbox.

INTERFACES IMPLEMENTED:
  leave.TxStore:   Leave types, balances, applications, journal, audit (transactional)
  leave.Directory: Employees and departments
  leave.Inbox:     Persisted notifications

KEY TABLES:
  leave_types:         Catalogue of leave types (unique name)
  leave_balances:      One row per (employee, leave type, year), versioned
  leave_applications:  Applications and their lifecycle state
  ledger_transactions: Append-only journal of balance mutations
  audit_log:           Who did what when
  employees:           Directory, soft-deactivated via is_active
  departments:         Directory enrichment
  notifications:       In-app inbox

BALANCE WRITES:
  UpdateBalance is a compare-and-swap on the version column. A moved
  version yields generic.ErrConcurrentModification, a vanished row
  generic.ErrBalanceNotFound.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single database connection, so
  ":memory:" is one database and writers are serialized. Inside WithTx all
  queries go through the *sql.Tx; the Store's own methods must not be
  called from within fn.

ERRORS:
  Driver errors are wrapped as generic.InternalError at this boundary.
  Unique-key violations become generic.ErrConflict.

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := leave.NewService(store, store, store, leave.Options{})

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - leave/store.go: Interface definitions
  - store/memory/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ leave.TxStore   = (*Store)(nil)
	_ leave.Directory = (*Store)(nil)
	_ leave.Inbox     = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := newWithDB(db)
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func newWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Directory
	CREATE TABLE IF NOT EXISTS departments (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		email TEXT,
		department_id TEXT,
		manager_id TEXT,
		role TEXT NOT NULL DEFAULT 'employee',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employees_manager
		ON employees(manager_id) WHERE manager_id IS NOT NULL;

	-- Leave types
	CREATE TABLE IF NOT EXISTS leave_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		name_key TEXT NOT NULL UNIQUE,
		description TEXT,
		requires_approval BOOLEAN NOT NULL DEFAULT TRUE,
		is_paid BOOLEAN NOT NULL DEFAULT TRUE,
		annual_allocation TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Balances (one bucket per employee, leave type and year)
	CREATE TABLE IF NOT EXISTS leave_balances (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL REFERENCES leave_types(id),
		year INTEGER NOT NULL,
		allocated TEXT NOT NULL,
		used TEXT NOT NULL,
		remaining TEXT NOT NULL,
		unit TEXT NOT NULL DEFAULT 'days',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(employee_id, leave_type_id, year)
	);

	-- Applications
	CREATE TABLE IF NOT EXISTS leave_applications (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL REFERENCES leave_types(id),
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		total_days TEXT NOT NULL,
		reason TEXT NOT NULL,
		attachments TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		approver_id TEXT,
		applied_on TEXT NOT NULL,
		decided_on TEXT,
		rejection_reason TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_applications_employee
		ON leave_applications(employee_id, applied_on DESC);
	CREATE INDEX IF NOT EXISTS idx_applications_status
		ON leave_applications(status, applied_on DESC);

	-- Journal (append-only)
	CREATE TABLE IF NOT EXISTS ledger_transactions (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		delta_value TEXT NOT NULL,
		delta_unit TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		reference_id TEXT,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		metadata_json TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_key
		ON ledger_transactions(employee_id, leave_type_id, year);
	CREATE INDEX IF NOT EXISTS idx_ledger_reference
		ON ledger_transactions(reference_id) WHERE reference_id IS NOT NULL;

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		ts TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		employee_id TEXT,
		leave_type_id TEXT,
		subject TEXT,
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_subject
		ON audit_log(subject);

	-- Notification inbox
	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT 'system',
		link TEXT,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_employee
		ON notifications(employee_id, is_read, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes fn within a database transaction.
// If fn returns error, transaction is rolled back.
func (s *Store) WithTx(ctx context.Context, fn func(leave.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbErr("begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(conn{q: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return dbErr("commit transaction", err)
	}
	return nil
}

func (s *Store) read(fn func(c conn) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(conn{q: s.db})
}

func (s *Store) write(fn func(c conn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(conn{q: s.db})
}

// =============================================================================
// leave.Store - lock, then delegate to conn
// =============================================================================

func (s *Store) Append(ctx context.Context, tx generic.Transaction) error {
	return s.write(func(c conn) error { return c.Append(ctx, tx) })
}

func (s *Store) Load(ctx context.Context, key generic.BalanceKey) (out []generic.Transaction, err error) {
	err = s.read(func(c conn) error { out, err = c.Load(ctx, key); return err })
	return out, err
}

func (s *Store) Exists(ctx context.Context, idempotencyKey string) (ok bool, err error) {
	err = s.read(func(c conn) error { ok, err = c.Exists(ctx, idempotencyKey); return err })
	return ok, err
}

func (s *Store) Record(ctx context.Context, e generic.AuditEntry) error {
	return s.write(func(c conn) error { return c.Record(ctx, e) })
}

func (s *Store) Query(ctx context.Context, f generic.AuditFilter) (out []generic.AuditEntry, err error) {
	err = s.read(func(c conn) error { out, err = c.Query(ctx, f); return err })
	return out, err
}

func (s *Store) GetLeaveType(ctx context.Context, id generic.ResourceID) (lt *leave.LeaveType, err error) {
	err = s.read(func(c conn) error { lt, err = c.GetLeaveType(ctx, id); return err })
	return lt, err
}

func (s *Store) GetLeaveTypeByName(ctx context.Context, name string) (lt *leave.LeaveType, err error) {
	err = s.read(func(c conn) error { lt, err = c.GetLeaveTypeByName(ctx, name); return err })
	return lt, err
}

func (s *Store) ListLeaveTypes(ctx context.Context) (out []leave.LeaveType, err error) {
	err = s.read(func(c conn) error { out, err = c.ListLeaveTypes(ctx); return err })
	return out, err
}

func (s *Store) SaveLeaveType(ctx context.Context, lt leave.LeaveType) error {
	return s.write(func(c conn) error { return c.SaveLeaveType(ctx, lt) })
}

func (s *Store) GetBalance(ctx context.Context, key generic.BalanceKey) (b *generic.Balance, err error) {
	err = s.read(func(c conn) error { b, err = c.GetBalance(ctx, key); return err })
	return b, err
}

func (s *Store) ListBalances(ctx context.Context, employeeID generic.EntityID, year int) (out []generic.Balance, err error) {
	err = s.read(func(c conn) error { out, err = c.ListBalances(ctx, employeeID, year); return err })
	return out, err
}

func (s *Store) CreateBalance(ctx context.Context, b generic.Balance) error {
	return s.write(func(c conn) error { return c.CreateBalance(ctx, b) })
}

func (s *Store) UpdateBalance(ctx context.Context, b generic.Balance, expectedVersion int64) error {
	return s.write(func(c conn) error { return c.UpdateBalance(ctx, b, expectedVersion) })
}

func (s *Store) CreateApplication(ctx context.Context, app leave.Application) error {
	return s.write(func(c conn) error { return c.CreateApplication(ctx, app) })
}

func (s *Store) GetApplication(ctx context.Context, id leave.ApplicationID) (app *leave.Application, err error) {
	err = s.read(func(c conn) error { app, err = c.GetApplication(ctx, id); return err })
	return app, err
}

func (s *Store) UpdateApplication(ctx context.Context, app leave.Application) error {
	return s.write(func(c conn) error { return c.UpdateApplication(ctx, app) })
}

func (s *Store) ListApplications(ctx context.Context, q leave.ApplicationQuery) (out []leave.Application, err error) {
	err = s.read(func(c conn) error { out, err = c.ListApplications(ctx, q); return err })
	return out, err
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"notifications", "audit_log", "ledger_transactions", "leave_applications",
		"leave_balances", "leave_types", "employees", "departments",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return dbErr("reset "+table, err)
		}
	}
	return nil
}
