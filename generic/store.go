/*
store.go - Persistence interface for the balance journal and audit log

PURPOSE:
  Defines the interface between the ledger logic and the database for the
  two append-only records: the journal of balance mutations and the audit
  log. Balance rows themselves are stored by the domain store
  (leave.Store), which embeds both interfaces so that a journal entry is
  written in the same transaction as the row it explains.

APPEND-ONLY CONTRACT:
  - Append(): Single journal write
  - Record(): Single audit write
  - NO Update() or Delete() methods exist

IDEMPOTENCY:
  Every journal write carries an idempotency key ("approve:<app>",
  "cancel:<app>", "allocate:<key>"). If the key already exists the write is
  rejected, so one application can never be debited or credited twice.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - store/memory/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: Journal built on Store
  - leave/store.go: Domain store embedding Store and AuditLog
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Interface for journal persistence (append-only)
// =============================================================================

// Store handles persistence of journal transactions.
// IMPORTANT: Store is APPEND-ONLY. No Update, No Delete. Ever.
type Store interface {
	// Append persists a transaction. Returns ErrDuplicateIdempotencyKey if the key exists.
	Append(ctx context.Context, tx Transaction) error

	// Load returns all transactions for one balance key, oldest first.
	Load(ctx context.Context, key BalanceKey) ([]Transaction, error)

	// Exists checks if idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// =============================================================================
// AUDIT LOG - Separate from the journal, tracks who did what when
// =============================================================================

type AuditEntry struct {
	ID         string
	Timestamp  time.Time
	ActorID    EntityID
	Action     AuditAction
	EntityID   EntityID   // employee the action concerns
	ResourceID ResourceID // leave type, when relevant
	Subject    string     // application id or balance key
	Payload    map[string]any
}

type AuditAction string

const (
	AuditRequestCreated   AuditAction = "request_created"
	AuditRequestApproved  AuditAction = "request_approved"
	AuditRequestRejected  AuditAction = "request_rejected"
	AuditRequestCanceled  AuditAction = "request_canceled"
	AuditRequestEdited    AuditAction = "request_edited"
	AuditLeaveTypeChanged AuditAction = "leave_type_changed"
	AuditBalanceAllocated AuditAction = "balance_allocated"
)

// AuditLog stores audit entries. Also append-only.
type AuditLog interface {
	Record(ctx context.Context, entry AuditEntry) error
	Query(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	EntityID *EntityID
	ActorID  *EntityID
	Subject  string
	Actions  []AuditAction
	From     *time.Time
	To       *time.Time
}

// Matches reports whether e passes the filter.
func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.EntityID != nil && e.EntityID != *f.EntityID {
		return false
	}
	if f.ActorID != nil && e.ActorID != *f.ActorID {
		return false
	}
	if f.Subject != "" && e.Subject != f.Subject {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if a == e.Action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	return true
}
