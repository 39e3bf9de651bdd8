package leave

import (
	"context"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// STORE - Persistence for leave types, balances and applications
// =============================================================================

// Store persists the leave domain. It embeds the journal and the audit log
// so a ledger mutation, its journal entry and its audit entry share one
// transaction.
//
// Getters return (nil, nil) when the row does not exist.
type Store interface {
	generic.Store
	generic.AuditLog

	GetLeaveType(ctx context.Context, id generic.ResourceID) (*LeaveType, error)
	GetLeaveTypeByName(ctx context.Context, name string) (*LeaveType, error)
	ListLeaveTypes(ctx context.Context) ([]LeaveType, error)
	// SaveLeaveType inserts or updates. A name held by another type is ErrConflict.
	SaveLeaveType(ctx context.Context, lt LeaveType) error

	GetBalance(ctx context.Context, key generic.BalanceKey) (*generic.Balance, error)
	ListBalances(ctx context.Context, employeeID generic.EntityID, year int) ([]generic.Balance, error)
	// CreateBalance fails with ErrConflict when the key exists.
	CreateBalance(ctx context.Context, b generic.Balance) error
	// UpdateBalance writes b only if the stored version still equals
	// expectedVersion: ErrBalanceNotFound if the row is gone,
	// ErrConcurrentModification if it moved.
	UpdateBalance(ctx context.Context, b generic.Balance, expectedVersion int64) error

	CreateApplication(ctx context.Context, app Application) error
	GetApplication(ctx context.Context, id ApplicationID) (*Application, error)
	UpdateApplication(ctx context.Context, app Application) error
	ListApplications(ctx context.Context, q ApplicationQuery) ([]Application, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// Directory answers employee and department lookups.
type Directory interface {
	Employee(ctx context.Context, id generic.EntityID) (*Employee, error)
	DirectReports(ctx context.Context, managerID generic.EntityID) ([]generic.EntityID, error)
	Department(ctx context.Context, id string) (*Department, error)
}

// Notifier delivers a notification. Callers treat it as fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Inbox is a Notifier that keeps what it receives for the recipient to read.
type Inbox interface {
	Notifier
	ListNotifications(ctx context.Context, employeeID generic.EntityID, unreadOnly bool, page Page) ([]Notification, error)
	// MarkNotificationRead fails with ErrNotFound unless the notification
	// exists and belongs to employeeID.
	MarkNotificationRead(ctx context.Context, employeeID generic.EntityID, id string) error
}

type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }
