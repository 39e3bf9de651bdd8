// Package memory provides an in-memory leave.TxStore, leave.Directory and
// leave.Inbox for tests and local experiments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// STATE - Everything the store holds, copyable for rollback
// =============================================================================

type state struct {
	leaveTypes    map[generic.ResourceID]leave.LeaveType
	balances      map[generic.BalanceKey]generic.Balance
	applications  map[leave.ApplicationID]leave.Application
	transactions  map[generic.BalanceKey][]generic.Transaction
	idempotency   map[string]bool
	audit         []generic.AuditEntry
	employees     map[generic.EntityID]leave.Employee
	departments   map[string]leave.Department
	notifications []leave.Notification
}

func newState() *state {
	return &state{
		leaveTypes:   make(map[generic.ResourceID]leave.LeaveType),
		balances:     make(map[generic.BalanceKey]generic.Balance),
		applications: make(map[leave.ApplicationID]leave.Application),
		transactions: make(map[generic.BalanceKey][]generic.Transaction),
		idempotency:  make(map[string]bool),
		employees:    make(map[generic.EntityID]leave.Employee),
		departments:  make(map[string]leave.Department),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.leaveTypes {
		c.leaveTypes[k] = v
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.applications {
		c.applications[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = append([]generic.Transaction(nil), v...)
	}
	for k, v := range s.idempotency {
		c.idempotency[k] = v
	}
	c.audit = append([]generic.AuditEntry(nil), s.audit...)
	for k, v := range s.employees {
		c.employees[k] = v
	}
	for k, v := range s.departments {
		c.departments[k] = v
	}
	c.notifications = append([]leave.Notification(nil), s.notifications...)
	return c
}

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	st *state
}

var (
	_ leave.TxStore   = (*Memory)(nil)
	_ leave.Directory = (*Memory)(nil)
	_ leave.Inbox     = (*Memory)(nil)
)

func New() *Memory {
	return &Memory{st: newState()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// Transactions are serialized.
func (m *Memory) WithTx(ctx context.Context, fn func(leave.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(&view{st: m.st}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

func (m *Memory) read(fn func(v *view) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&view{st: m.st})
}

func (m *Memory) write(fn func(v *view) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&view{st: m.st})
}

// Journal

func (m *Memory) Append(ctx context.Context, tx generic.Transaction) error {
	return m.write(func(v *view) error { return v.Append(ctx, tx) })
}

func (m *Memory) Load(ctx context.Context, key generic.BalanceKey) (out []generic.Transaction, err error) {
	err = m.read(func(v *view) error { out, err = v.Load(ctx, key); return err })
	return out, err
}

func (m *Memory) Exists(ctx context.Context, idempotencyKey string) (ok bool, err error) {
	err = m.read(func(v *view) error { ok, err = v.Exists(ctx, idempotencyKey); return err })
	return ok, err
}

// Audit

func (m *Memory) Record(ctx context.Context, e generic.AuditEntry) error {
	return m.write(func(v *view) error { return v.Record(ctx, e) })
}

func (m *Memory) Query(ctx context.Context, f generic.AuditFilter) (out []generic.AuditEntry, err error) {
	err = m.read(func(v *view) error { out, err = v.Query(ctx, f); return err })
	return out, err
}

// Leave types

func (m *Memory) GetLeaveType(ctx context.Context, id generic.ResourceID) (lt *leave.LeaveType, err error) {
	err = m.read(func(v *view) error { lt, err = v.GetLeaveType(ctx, id); return err })
	return lt, err
}

func (m *Memory) GetLeaveTypeByName(ctx context.Context, name string) (lt *leave.LeaveType, err error) {
	err = m.read(func(v *view) error { lt, err = v.GetLeaveTypeByName(ctx, name); return err })
	return lt, err
}

func (m *Memory) ListLeaveTypes(ctx context.Context) (out []leave.LeaveType, err error) {
	err = m.read(func(v *view) error { out, err = v.ListLeaveTypes(ctx); return err })
	return out, err
}

func (m *Memory) SaveLeaveType(ctx context.Context, lt leave.LeaveType) error {
	return m.write(func(v *view) error { return v.SaveLeaveType(ctx, lt) })
}

// Balances

func (m *Memory) GetBalance(ctx context.Context, key generic.BalanceKey) (b *generic.Balance, err error) {
	err = m.read(func(v *view) error { b, err = v.GetBalance(ctx, key); return err })
	return b, err
}

func (m *Memory) ListBalances(ctx context.Context, employeeID generic.EntityID, year int) (out []generic.Balance, err error) {
	err = m.read(func(v *view) error { out, err = v.ListBalances(ctx, employeeID, year); return err })
	return out, err
}

func (m *Memory) CreateBalance(ctx context.Context, b generic.Balance) error {
	return m.write(func(v *view) error { return v.CreateBalance(ctx, b) })
}

func (m *Memory) UpdateBalance(ctx context.Context, b generic.Balance, expectedVersion int64) error {
	return m.write(func(v *view) error { return v.UpdateBalance(ctx, b, expectedVersion) })
}

// Applications

func (m *Memory) CreateApplication(ctx context.Context, app leave.Application) error {
	return m.write(func(v *view) error { return v.CreateApplication(ctx, app) })
}

func (m *Memory) GetApplication(ctx context.Context, id leave.ApplicationID) (app *leave.Application, err error) {
	err = m.read(func(v *view) error { app, err = v.GetApplication(ctx, id); return err })
	return app, err
}

func (m *Memory) UpdateApplication(ctx context.Context, app leave.Application) error {
	return m.write(func(v *view) error { return v.UpdateApplication(ctx, app) })
}

func (m *Memory) ListApplications(ctx context.Context, q leave.ApplicationQuery) (out []leave.Application, err error) {
	err = m.read(func(v *view) error { out, err = v.ListApplications(ctx, q); return err })
	return out, err
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (m *Memory) SaveEmployee(_ context.Context, e leave.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.employees[e.ID] = e
	return nil
}

func (m *Memory) SaveDepartment(_ context.Context, d leave.Department) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.departments[d.ID] = d
	return nil
}

func (m *Memory) Employee(_ context.Context, id generic.EntityID) (*leave.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.st.employees[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// DirectReports returns employees whose manager is managerID, deactivated
// ones included.
func (m *Memory) DirectReports(_ context.Context, managerID generic.EntityID) ([]generic.EntityID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []generic.EntityID
	for _, e := range m.st.employees {
		if e.ManagerID == managerID {
			out = append(out, e.ID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *Memory) Department(_ context.Context, id string) (*leave.Department, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.st.departments[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

// =============================================================================
// INBOX
// =============================================================================

func (m *Memory) Notify(_ context.Context, n leave.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.notifications = append(m.st.notifications, n)
	return nil
}

// ListNotifications returns the recipient's notifications, newest first.
func (m *Memory) ListNotifications(_ context.Context, employeeID generic.EntityID, unreadOnly bool, page leave.Page) ([]leave.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []leave.Notification
	for i := len(m.st.notifications) - 1; i >= 0; i-- {
		n := m.st.notifications[i]
		if n.EmployeeID != employeeID || (unreadOnly && n.Read) {
			continue
		}
		out = append(out, n)
	}
	return paginate(out, page.Normalize()), nil
}

func (m *Memory) MarkNotificationRead(_ context.Context, employeeID generic.EntityID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.st.notifications {
		n := &m.st.notifications[i]
		if n.ID == id && n.EmployeeID == employeeID {
			n.Read = true
			return nil
		}
	}
	return &generic.NotFoundError{Kind: "notification", ID: id}
}

// =============================================================================
// VIEW - Lock-free operations on the state, used inside and outside WithTx
// =============================================================================

type view struct {
	st *state
}

func (v *view) Append(_ context.Context, tx generic.Transaction) error {
	if tx.IdempotencyKey != "" && v.st.idempotency[tx.IdempotencyKey] {
		return generic.ErrDuplicateIdempotencyKey
	}
	v.st.transactions[tx.Key] = append(v.st.transactions[tx.Key], tx)
	if tx.IdempotencyKey != "" {
		v.st.idempotency[tx.IdempotencyKey] = true
	}
	return nil
}

func (v *view) Load(_ context.Context, key generic.BalanceKey) ([]generic.Transaction, error) {
	txs := v.st.transactions[key]
	out := make([]generic.Transaction, len(txs))
	copy(out, txs)
	return out, nil
}

func (v *view) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	return v.st.idempotency[idempotencyKey], nil
}

func (v *view) Record(_ context.Context, e generic.AuditEntry) error {
	v.st.audit = append(v.st.audit, e)
	return nil
}

func (v *view) Query(_ context.Context, f generic.AuditFilter) ([]generic.AuditEntry, error) {
	var out []generic.AuditEntry
	for _, e := range v.st.audit {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (v *view) GetLeaveType(_ context.Context, id generic.ResourceID) (*leave.LeaveType, error) {
	lt, ok := v.st.leaveTypes[id]
	if !ok {
		return nil, nil
	}
	return &lt, nil
}

func (v *view) GetLeaveTypeByName(_ context.Context, name string) (*leave.LeaveType, error) {
	want := strings.ToLower(strings.TrimSpace(name))
	for _, lt := range v.st.leaveTypes {
		if lt.NormalizedName() == want {
			found := lt
			return &found, nil
		}
	}
	return nil, nil
}

func (v *view) ListLeaveTypes(_ context.Context) ([]leave.LeaveType, error) {
	out := make([]leave.LeaveType, 0, len(v.st.leaveTypes))
	for _, lt := range v.st.leaveTypes {
		out = append(out, lt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (v *view) SaveLeaveType(_ context.Context, lt leave.LeaveType) error {
	for _, other := range v.st.leaveTypes {
		if other.ID != lt.ID && other.NormalizedName() == lt.NormalizedName() {
			return fmt.Errorf("%w: leave type %q already exists", generic.ErrConflict, lt.Name)
		}
	}
	v.st.leaveTypes[lt.ID] = lt
	return nil
}

func (v *view) GetBalance(_ context.Context, key generic.BalanceKey) (*generic.Balance, error) {
	b, ok := v.st.balances[key]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (v *view) ListBalances(_ context.Context, employeeID generic.EntityID, year int) ([]generic.Balance, error) {
	var out []generic.Balance
	for k, b := range v.st.balances {
		if k.EntityID == employeeID && k.Year == year {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.ResourceID < out[j].Key.ResourceID })
	return out, nil
}

func (v *view) CreateBalance(_ context.Context, b generic.Balance) error {
	if _, ok := v.st.balances[b.Key]; ok {
		return fmt.Errorf("%w: balance %s already exists", generic.ErrConflict, b.Key)
	}
	v.st.balances[b.Key] = b
	return nil
}

func (v *view) UpdateBalance(_ context.Context, b generic.Balance, expectedVersion int64) error {
	current, ok := v.st.balances[b.Key]
	if !ok {
		return fmt.Errorf("%w: %s", generic.ErrBalanceNotFound, b.Key)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: balance %s at version %d, expected %d",
			generic.ErrConcurrentModification, b.Key, current.Version, expectedVersion)
	}
	v.st.balances[b.Key] = b
	return nil
}

func (v *view) CreateApplication(_ context.Context, app leave.Application) error {
	if _, ok := v.st.applications[app.ID]; ok {
		return fmt.Errorf("%w: application %s already exists", generic.ErrConflict, app.ID)
	}
	v.st.applications[app.ID] = app
	return nil
}

func (v *view) GetApplication(_ context.Context, id leave.ApplicationID) (*leave.Application, error) {
	app, ok := v.st.applications[id]
	if !ok {
		return nil, nil
	}
	return &app, nil
}

func (v *view) UpdateApplication(_ context.Context, app leave.Application) error {
	if _, ok := v.st.applications[app.ID]; !ok {
		return &generic.NotFoundError{Kind: "application", ID: string(app.ID)}
	}
	v.st.applications[app.ID] = app
	return nil
}

func (v *view) ListApplications(_ context.Context, q leave.ApplicationQuery) ([]leave.Application, error) {
	var wanted map[generic.EntityID]bool
	if q.EmployeeIDs != nil {
		wanted = make(map[generic.EntityID]bool, len(q.EmployeeIDs))
		for _, id := range q.EmployeeIDs {
			wanted[id] = true
		}
	}
	var out []leave.Application
	for _, app := range v.st.applications {
		if wanted != nil && !wanted[app.EmployeeID] {
			continue
		}
		if q.Status != "" && app.Status != q.Status {
			continue
		}
		out = append(out, app)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AppliedOn.Equal(out[j].AppliedOn) {
			return out[i].AppliedOn.After(out[j].AppliedOn)
		}
		return out[i].ID > out[j].ID
	})
	return paginate(out, q.Page.Normalize()), nil
}

func paginate[T any](items []T, p leave.Page) []T {
	if p.Offset >= len(items) {
		return []T{}
	}
	end := p.Offset + p.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[p.Offset:end]
}
