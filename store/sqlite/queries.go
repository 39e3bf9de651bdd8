package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn runs the leave.Store queries without locking. Store wraps it with
// the mutex; WithTx hands it out bound to the open transaction.
type conn struct {
	q querier
}

var _ leave.Store = conn{}

// =============================================================================
// JOURNAL (generic.Store)
// =============================================================================

func (c conn) Append(ctx context.Context, tx generic.Transaction) error {
	metadataJSON, _ := json.Marshal(tx.Metadata)

	query := `
		INSERT INTO ledger_transactions
		(id, employee_id, leave_type_id, year, delta_value, delta_unit, tx_type,
		 reference_id, reason, idempotency_key, metadata_json, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.q.ExecContext(ctx, query,
		tx.ID,
		tx.Key.EntityID,
		tx.Key.ResourceID,
		tx.Key.Year,
		tx.Delta.Value.String(),
		tx.Delta.Unit,
		tx.Type,
		nullString(tx.ReferenceID),
		tx.Reason,
		nullString(tx.IdempotencyKey),
		string(metadataJSON),
		tx.CreatedBy,
		formatTime(tx.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		return dbErr("append transaction", err)
	}
	return nil
}

func (c conn) Load(ctx context.Context, key generic.BalanceKey) ([]generic.Transaction, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT id, employee_id, leave_type_id, year, delta_value, delta_unit, tx_type,
		       reference_id, reason, idempotency_key, metadata_json, created_by, created_at
		FROM ledger_transactions
		WHERE employee_id = ? AND leave_type_id = ? AND year = ?
		ORDER BY created_at ASC, rowid ASC
	`, key.EntityID, key.ResourceID, key.Year)
	if err != nil {
		return nil, dbErr("load transactions", err)
	}
	defer rows.Close()

	var txs []generic.Transaction
	for rows.Next() {
		var tx generic.Transaction
		var deltaValue, deltaUnit, createdAt string
		var refID, reason, idemKey, metadataJSON, createdBy sql.NullString
		if err := rows.Scan(&tx.ID, &tx.Key.EntityID, &tx.Key.ResourceID, &tx.Key.Year,
			&deltaValue, &deltaUnit, &tx.Type, &refID, &reason, &idemKey, &metadataJSON,
			&createdBy, &createdAt); err != nil {
			return nil, dbErr("scan transaction", err)
		}
		delta, err := parseAmount(deltaValue, deltaUnit)
		if err != nil {
			return nil, dbErr("scan transaction", err)
		}
		tx.Delta = delta
		tx.ReferenceID = refID.String
		tx.Reason = reason.String
		tx.IdempotencyKey = idemKey.String
		tx.CreatedBy = createdBy.String
		tx.CreatedAt = parseTime(createdAt)
		if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
			_ = json.Unmarshal([]byte(metadataJSON.String), &tx.Metadata)
		}
		txs = append(txs, tx)
	}
	return txs, rowsErr(rows)
}

func (c conn) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	var count int
	err := c.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ledger_transactions WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)
	if err != nil {
		return false, dbErr("check idempotency key", err)
	}
	return count > 0, nil
}

// =============================================================================
// AUDIT LOG (generic.AuditLog)
// =============================================================================

func (c conn) Record(ctx context.Context, e generic.AuditEntry) error {
	payloadJSON, _ := json.Marshal(e.Payload)
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO audit_log (id, ts, actor_id, action, employee_id, leave_type_id, subject, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, formatTime(e.Timestamp), e.ActorID, e.Action,
		nullString(string(e.EntityID)), nullString(string(e.ResourceID)), nullString(e.Subject),
		string(payloadJSON),
	)
	if err != nil {
		return dbErr("record audit entry", err)
	}
	return nil
}

// Query narrows by subject in SQL and applies the rest of the filter in Go.
func (c conn) Query(ctx context.Context, f generic.AuditFilter) ([]generic.AuditEntry, error) {
	query := `SELECT id, ts, actor_id, action, employee_id, leave_type_id, subject, payload_json FROM audit_log`
	var args []any
	if f.Subject != "" {
		query += ` WHERE subject = ?`
		args = append(args, f.Subject)
	}
	query += ` ORDER BY ts ASC, rowid ASC`

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbErr("query audit log", err)
	}
	defer rows.Close()

	var out []generic.AuditEntry
	for rows.Next() {
		var e generic.AuditEntry
		var ts string
		var employeeID, leaveTypeID, subject, payloadJSON sql.NullString
		if err := rows.Scan(&e.ID, &ts, &e.ActorID, &e.Action, &employeeID, &leaveTypeID, &subject, &payloadJSON); err != nil {
			return nil, dbErr("scan audit entry", err)
		}
		e.Timestamp = parseTime(ts)
		e.EntityID = generic.EntityID(employeeID.String)
		e.ResourceID = generic.ResourceID(leaveTypeID.String)
		e.Subject = subject.String
		if payloadJSON.Valid {
			_ = json.Unmarshal([]byte(payloadJSON.String), &e.Payload)
		}
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out, rowsErr(rows)
}

// =============================================================================
// LEAVE TYPES
// =============================================================================

const leaveTypeColumns = `id, name, description, requires_approval, is_paid, annual_allocation, created_at, updated_at`

func (c conn) GetLeaveType(ctx context.Context, id generic.ResourceID) (*leave.LeaveType, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+leaveTypeColumns+` FROM leave_types WHERE id = ?`, id)
	return scanLeaveType(row)
}

func (c conn) GetLeaveTypeByName(ctx context.Context, name string) (*leave.LeaveType, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+leaveTypeColumns+` FROM leave_types WHERE name_key = ?`, nameKey(name))
	return scanLeaveType(row)
}

func (c conn) ListLeaveTypes(ctx context.Context) ([]leave.LeaveType, error) {
	rows, err := c.q.QueryContext(ctx, `SELECT `+leaveTypeColumns+` FROM leave_types ORDER BY name`)
	if err != nil {
		return nil, dbErr("list leave types", err)
	}
	defer rows.Close()

	var out []leave.LeaveType
	for rows.Next() {
		lt, err := scanLeaveType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *lt)
	}
	return out, rowsErr(rows)
}

func (c conn) SaveLeaveType(ctx context.Context, lt leave.LeaveType) error {
	query := `
		INSERT INTO leave_types
		(id, name, name_key, description, requires_approval, is_paid, annual_allocation, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			name_key = excluded.name_key,
			description = excluded.description,
			requires_approval = excluded.requires_approval,
			is_paid = excluded.is_paid,
			annual_allocation = excluded.annual_allocation,
			updated_at = excluded.updated_at
	`
	created := lt.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	updated := lt.UpdatedAt
	if updated.IsZero() {
		updated = created
	}
	_, err := c.q.ExecContext(ctx, query,
		lt.ID, lt.Name, nameKey(lt.Name), lt.Description, lt.RequiresApproval, lt.IsPaid,
		lt.AnnualAllocation.Value.String(), formatTime(created), formatTime(updated),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: leave type %q already exists", generic.ErrConflict, lt.Name)
		}
		return dbErr("save leave type", err)
	}
	return nil
}

// =============================================================================
// BALANCES
// =============================================================================

const balanceColumns = `id, employee_id, leave_type_id, year, allocated, used, remaining, unit, version, created_at, updated_at`

func (c conn) GetBalance(ctx context.Context, key generic.BalanceKey) (*generic.Balance, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT `+balanceColumns+` FROM leave_balances WHERE employee_id = ? AND leave_type_id = ? AND year = ?`,
		key.EntityID, key.ResourceID, key.Year)
	return scanBalance(row)
}

func (c conn) ListBalances(ctx context.Context, employeeID generic.EntityID, year int) ([]generic.Balance, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT `+balanceColumns+` FROM leave_balances WHERE employee_id = ? AND year = ? ORDER BY leave_type_id`,
		employeeID, year)
	if err != nil {
		return nil, dbErr("list balances", err)
	}
	defer rows.Close()

	var out []generic.Balance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rowsErr(rows)
}

func (c conn) CreateBalance(ctx context.Context, b generic.Balance) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO leave_balances (`+balanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.ID, b.Key.EntityID, b.Key.ResourceID, b.Key.Year,
		b.Allocated.Value.String(), b.Used.Value.String(), b.Remaining.Value.String(), unitOf(b.Allocated),
		b.Version, formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: balance %s already exists", generic.ErrConflict, b.Key)
		}
		return dbErr("create balance", err)
	}
	return nil
}

// UpdateBalance is a compare-and-swap on version.
func (c conn) UpdateBalance(ctx context.Context, b generic.Balance, expectedVersion int64) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE leave_balances
		SET allocated = ?, used = ?, remaining = ?, version = ?, updated_at = ?
		WHERE employee_id = ? AND leave_type_id = ? AND year = ? AND version = ?
	`,
		b.Allocated.Value.String(), b.Used.Value.String(), b.Remaining.Value.String(),
		b.Version, formatTime(b.UpdatedAt),
		b.Key.EntityID, b.Key.ResourceID, b.Key.Year, expectedVersion,
	)
	if err != nil {
		return dbErr("update balance", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbErr("update balance", err)
	}
	if n == 1 {
		return nil
	}

	var current int64
	err = c.q.QueryRowContext(ctx,
		`SELECT version FROM leave_balances WHERE employee_id = ? AND leave_type_id = ? AND year = ?`,
		b.Key.EntityID, b.Key.ResourceID, b.Key.Year,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", generic.ErrBalanceNotFound, b.Key)
	}
	if err != nil {
		return dbErr("update balance", err)
	}
	return fmt.Errorf("%w: balance %s at version %d, expected %d",
		generic.ErrConcurrentModification, b.Key, current, expectedVersion)
}

// =============================================================================
// APPLICATIONS
// =============================================================================

const applicationColumns = `id, employee_id, leave_type_id, start_date, end_date, total_days, reason, attachments,
	status, approver_id, applied_on, decided_on, rejection_reason, updated_at`

func (c conn) CreateApplication(ctx context.Context, app leave.Application) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO leave_applications (`+applicationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, applicationArgs(app)...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: application %s already exists", generic.ErrConflict, app.ID)
		}
		return dbErr("create application", err)
	}
	return nil
}

func (c conn) GetApplication(ctx context.Context, id leave.ApplicationID) (*leave.Application, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM leave_applications WHERE id = ?`, id)
	return scanApplication(row)
}

func (c conn) UpdateApplication(ctx context.Context, app leave.Application) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE leave_applications
		SET start_date = ?, end_date = ?, total_days = ?, reason = ?, attachments = ?, status = ?,
		    approver_id = ?, decided_on = ?, rejection_reason = ?, updated_at = ?
		WHERE id = ?
	`,
		app.StartDate.String(), app.EndDate.String(), app.TotalDays.Value.String(), app.Reason,
		nullString(app.Attachments), app.Status, nullString(string(app.ApproverID)),
		nullTime(app.DecidedOn), nullString(app.RejectionReason), formatTime(app.UpdatedAt),
		app.ID,
	)
	if err != nil {
		return dbErr("update application", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &generic.NotFoundError{Kind: "application", ID: string(app.ID)}
	}
	return nil
}

func (c conn) ListApplications(ctx context.Context, q leave.ApplicationQuery) ([]leave.Application, error) {
	if q.EmployeeIDs != nil && len(q.EmployeeIDs) == 0 {
		return []leave.Application{}, nil
	}

	var where []string
	var args []any
	if q.EmployeeIDs != nil {
		placeholders := make([]string, len(q.EmployeeIDs))
		for i, id := range q.EmployeeIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		where = append(where, "employee_id IN ("+strings.Join(placeholders, ", ")+")")
	}
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, q.Status)
	}

	query := `SELECT ` + applicationColumns + ` FROM leave_applications`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	page := q.Page.Normalize()
	query += " ORDER BY applied_on DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, page.Limit, page.Offset)

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbErr("list applications", err)
	}
	defer rows.Close()

	out := []leave.Application{}
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *app)
	}
	return out, rowsErr(rows)
}

// =============================================================================
// SCANNERS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanLeaveType(row scanner) (*leave.LeaveType, error) {
	var lt leave.LeaveType
	var description sql.NullString
	var allocation, createdAt, updatedAt string
	err := row.Scan(&lt.ID, &lt.Name, &description, &lt.RequiresApproval, &lt.IsPaid, &allocation, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr("scan leave type", err)
	}
	amount, err := parseAmount(allocation, string(generic.UnitDays))
	if err != nil {
		return nil, dbErr("scan leave type", err)
	}
	lt.Description = description.String
	lt.AnnualAllocation = amount
	lt.CreatedAt = parseTime(createdAt)
	lt.UpdatedAt = parseTime(updatedAt)
	return &lt, nil
}

func scanBalance(row scanner) (*generic.Balance, error) {
	var b generic.Balance
	var allocated, used, remaining, unit, createdAt, updatedAt string
	err := row.Scan(&b.ID, &b.Key.EntityID, &b.Key.ResourceID, &b.Key.Year,
		&allocated, &used, &remaining, &unit, &b.Version, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr("scan balance", err)
	}
	var perr error
	parse := func(s string) generic.Amount {
		a, err := parseAmount(s, unit)
		if err != nil && perr == nil {
			perr = err
		}
		return a
	}
	b.Allocated = parse(allocated)
	b.Used = parse(used)
	b.Remaining = parse(remaining)
	if perr != nil {
		return nil, dbErr("scan balance", perr)
	}
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)
	return &b, nil
}

func scanApplication(row scanner) (*leave.Application, error) {
	var app leave.Application
	var start, end, totalDays, appliedOn, updatedAt string
	var attachments, approverID, decidedOn, rejection sql.NullString
	err := row.Scan(&app.ID, &app.EmployeeID, &app.LeaveTypeID, &start, &end, &totalDays, &app.Reason,
		&attachments, &app.Status, &approverID, &appliedOn, &decidedOn, &rejection, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr("scan application", err)
	}
	if app.StartDate, err = generic.ParseDate(start); err != nil {
		return nil, dbErr("scan application", err)
	}
	if app.EndDate, err = generic.ParseDate(end); err != nil {
		return nil, dbErr("scan application", err)
	}
	if app.TotalDays, err = parseAmount(totalDays, string(generic.UnitDays)); err != nil {
		return nil, dbErr("scan application", err)
	}
	app.Attachments = attachments.String
	app.ApproverID = generic.EntityID(approverID.String)
	app.RejectionReason = rejection.String
	app.AppliedOn = parseTime(appliedOn)
	app.UpdatedAt = parseTime(updatedAt)
	if decidedOn.Valid {
		t := parseTime(decidedOn.String)
		app.DecidedOn = &t
	}
	return &app, nil
}

func applicationArgs(app leave.Application) []any {
	return []any{
		app.ID, app.EmployeeID, app.LeaveTypeID, app.StartDate.String(), app.EndDate.String(),
		app.TotalDays.Value.String(), app.Reason, nullString(app.Attachments), app.Status,
		nullString(string(app.ApproverID)), formatTime(app.AppliedOn), nullTime(app.DecidedOn),
		nullString(app.RejectionReason), formatTime(app.UpdatedAt),
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// Fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseAmount(value, unit string) (generic.Amount, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return generic.Amount{}, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return generic.Amount{Value: d, Unit: generic.Unit(unit)}, nil
}

func unitOf(a generic.Amount) string {
	if a.Unit == "" {
		return string(generic.UnitDays)
	}
	return string(a.Unit)
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func rowsErr(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		return dbErr("iterate rows", err)
	}
	return nil
}

func dbErr(op string, err error) error {
	return &generic.InternalError{Op: op, Err: err}
}
