package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// DIRECTORY (leave.Directory)
// =============================================================================

const employeeColumns = `id, full_name, email, department_id, manager_id, role, is_active, created_at`

// SaveEmployee inserts or replaces an employee record.
func (s *Store) SaveEmployee(ctx context.Context, e leave.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	role := e.Role
	if role == "" {
		role = leave.RoleEmployee
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (`+employeeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			full_name = excluded.full_name,
			email = excluded.email,
			department_id = excluded.department_id,
			manager_id = excluded.manager_id,
			role = excluded.role,
			is_active = excluded.is_active
	`,
		e.ID, e.FullName, nullString(e.Email), nullString(e.DepartmentID),
		nullString(string(e.ManagerID)), role, e.IsActive, formatTime(created),
	)
	if err != nil {
		return dbErr("save employee", err)
	}
	return nil
}

// DeactivateEmployee soft-deletes an employee. Their history stays.
func (s *Store) DeactivateEmployee(ctx context.Context, id generic.EntityID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE employees SET is_active = FALSE WHERE id = ?`, id)
	if err != nil {
		return dbErr("deactivate employee", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &generic.NotFoundError{Kind: "employee", ID: string(id)}
	}
	return nil
}

func (s *Store) Employee(ctx context.Context, id generic.EntityID) (*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = ?`, id)
	return scanEmployee(row)
}

// ListEmployees returns every employee ordered by name.
func (s *Store) ListEmployees(ctx context.Context, activeOnly bool) ([]leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + employeeColumns + ` FROM employees`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY full_name, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, dbErr("list employees", err)
	}
	defer rows.Close()

	var out []leave.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rowsErr(rows)
}

// DirectReports lists the employees whose manager is managerID, active or not.
func (s *Store) DirectReports(ctx context.Context, managerID generic.EntityID) ([]generic.EntityID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM employees WHERE manager_id = ? ORDER BY id`, managerID)
	if err != nil {
		return nil, dbErr("list direct reports", err)
	}
	defer rows.Close()

	var out []generic.EntityID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, dbErr("scan direct report", err)
		}
		out = append(out, generic.EntityID(id))
	}
	return out, rowsErr(rows)
}

func (s *Store) SaveDepartment(ctx context.Context, d leave.Department) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO departments (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, d.ID, d.Name)
	if err != nil {
		return dbErr("save department", err)
	}
	return nil
}

func (s *Store) Department(ctx context.Context, id string) (*leave.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var d leave.Department
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM departments WHERE id = ?`, id).Scan(&d.ID, &d.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr("get department", err)
	}
	return &d, nil
}

func scanEmployee(row scanner) (*leave.Employee, error) {
	var e leave.Employee
	var email, departmentID, managerID sql.NullString
	var createdAt string
	err := row.Scan(&e.ID, &e.FullName, &email, &departmentID, &managerID, &e.Role, &e.IsActive, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr("scan employee", err)
	}
	e.Email = email.String
	e.DepartmentID = departmentID.String
	e.ManagerID = generic.EntityID(managerID.String)
	e.CreatedAt = parseTime(createdAt)
	return &e, nil
}

// =============================================================================
// INBOX (leave.Inbox)
// =============================================================================

func (s *Store) Notify(ctx context.Context, n leave.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Category == "" {
		n.Category = leave.CategorySystem
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, employee_id, title, message, category, link, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.EmployeeID, n.Title, n.Message, n.Category, nullString(n.Link), n.Read, formatTime(n.CreatedAt))
	if err != nil {
		return dbErr("store notification", err)
	}
	return nil
}

// ListNotifications returns the recipient's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, employeeID generic.EntityID, unreadOnly bool, page leave.Page) ([]leave.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	page = page.Normalize()
	query := `SELECT id, employee_id, title, message, category, link, is_read, created_at
		FROM notifications WHERE employee_id = ?`
	if unreadOnly {
		query += ` AND is_read = FALSE`
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, employeeID, page.Limit, page.Offset)
	if err != nil {
		return nil, dbErr("list notifications", err)
	}
	defer rows.Close()

	out := []leave.Notification{}
	for rows.Next() {
		var n leave.Notification
		var link sql.NullString
		var createdAt string
		if err := rows.Scan(&n.ID, &n.EmployeeID, &n.Title, &n.Message, &n.Category, &link, &n.Read, &createdAt); err != nil {
			return nil, dbErr("scan notification", err)
		}
		n.Link = link.String
		n.CreatedAt = parseTime(createdAt)
		out = append(out, n)
	}
	return out, rowsErr(rows)
}

func (s *Store) MarkNotificationRead(ctx context.Context, employeeID generic.EntityID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = ? AND employee_id = ?`, id, employeeID)
	if err != nil {
		return dbErr("mark notification read", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbErr("mark notification read", err)
	}
	if n == 0 {
		return &generic.NotFoundError{Kind: "notification", ID: id}
	}
	return nil
}
