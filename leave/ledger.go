/*
ledger.go - Balance ledger over the leave store

PURPOSE:
  The ledger owns every mutation of a balance bucket. Each mutation is a
  read, a pure bucket transition (generic.Balance.Debit / Credit), a
  compare-and-swap write of the row and a journal entry, all against the
  same Store. Callers that need atomicity with an application write pass
  the transaction-scoped Store from TxStore.WithTx.

OPERATIONS:
  Get:             Pure lookup, nil when absent
  ReserveCheck:    Read-only sufficiency check, fails closed on a missing row
  Debit:           used += days, CAS on version, journal "approve:<app>"
  Credit:          used -= days, rejects over-credit, journal "cancel:<app>"
  Open:            Create the bucket for a year, journal "allocate:<key>"
  ListForEmployee: All buckets of one employee for one year

CONCURRENCY:
  ReserveCheck does not reserve. Two approvals racing on the same bucket
  both pass the check; the second UpdateBalance sees a moved version and
  fails with ErrConcurrentModification, rolling back its transaction.

SEE ALSO:
  - generic/balance.go: Bucket math and invariants
  - generic/ledger.go: Journal with idempotency keys
  - request.go: Lifecycle operations that drive the ledger
*/
package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	store   Store
	journal *generic.Journal
	now     func() time.Time
}

// Posting describes why a mutation happens, for the journal.
type Posting struct {
	Reference      string // application id, or the balance key for allocations
	Actor          generic.EntityID
	Reason         string
	IdempotencyKey string
}

func NewLedger(store Store, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: store, journal: generic.NewJournal(store), now: now}
}

func ApproveKey(id ApplicationID) string { return "approve:" + string(id) }
func CancelKey(id ApplicationID) string  { return "cancel:" + string(id) }
func AllocateKey(key generic.BalanceKey) string {
	return "allocate:" + key.String()
}

// Get returns the bucket or nil.
func (l *Ledger) Get(ctx context.Context, key generic.BalanceKey) (*generic.Balance, error) {
	return l.store.GetBalance(ctx, key)
}

func (l *Ledger) ListForEmployee(ctx context.Context, employeeID generic.EntityID, year int) ([]generic.Balance, error) {
	return l.store.ListBalances(ctx, employeeID, year)
}

// ReserveCheck verifies that days fit in the bucket without changing it.
// A missing bucket counts as zero available.
func (l *Ledger) ReserveCheck(ctx context.Context, key generic.BalanceKey, days generic.Amount) error {
	b, err := l.store.GetBalance(ctx, key)
	if err != nil {
		return err
	}
	if b == nil {
		return &generic.InsufficientBalanceError{
			Key:       key,
			Available: days.Zero(),
			Requested: days,
			NoBalance: true,
		}
	}
	if !b.CanCover(days) {
		return &generic.InsufficientBalanceError{Key: key, Available: b.Remaining, Requested: days}
	}
	return nil
}

// Debit moves days from remaining to used.
func (l *Ledger) Debit(ctx context.Context, key generic.BalanceKey, days generic.Amount, p Posting) (generic.Balance, error) {
	return l.mutate(ctx, key, days.Neg(), generic.TxDebit, p, func(b generic.Balance, at time.Time) (generic.Balance, error) {
		return b.Debit(days, at)
	})
}

// Credit restores days previously debited.
func (l *Ledger) Credit(ctx context.Context, key generic.BalanceKey, days generic.Amount, p Posting) (generic.Balance, error) {
	return l.mutate(ctx, key, days, generic.TxCredit, p, func(b generic.Balance, at time.Time) (generic.Balance, error) {
		return b.Credit(days, at)
	})
}

func (l *Ledger) mutate(
	ctx context.Context,
	key generic.BalanceKey,
	delta generic.Amount,
	txType generic.TransactionType,
	p Posting,
	apply func(generic.Balance, time.Time) (generic.Balance, error),
) (generic.Balance, error) {
	current, err := l.store.GetBalance(ctx, key)
	if err != nil {
		return generic.Balance{}, err
	}
	if current == nil {
		return generic.Balance{}, fmt.Errorf("%w: %s", generic.ErrBalanceNotFound, key)
	}

	at := l.now()
	next, err := apply(*current, at)
	if err != nil {
		return *current, err
	}
	if err := l.store.UpdateBalance(ctx, next, current.Version); err != nil {
		return *current, err
	}
	if err := l.journal.Append(ctx, l.entry(key, delta, txType, p, at)); err != nil {
		return *current, err
	}
	return next, nil
}

// Open creates the bucket for a year with its allocation.
func (l *Ledger) Open(ctx context.Context, key generic.BalanceKey, allocated generic.Amount, p Posting) (generic.Balance, error) {
	if allocated.IsNegative() {
		return generic.Balance{}, generic.NewValidationError("allocated", "must not be negative")
	}
	existing, err := l.store.GetBalance(ctx, key)
	if err != nil {
		return generic.Balance{}, err
	}
	if existing != nil {
		return *existing, fmt.Errorf("%w: balance %s already exists", generic.ErrConflict, key)
	}

	at := l.now()
	b := generic.NewBalance(uuid.NewString(), key, allocated, at)
	if err := l.store.CreateBalance(ctx, b); err != nil {
		return generic.Balance{}, err
	}
	if p.IdempotencyKey == "" {
		p.IdempotencyKey = AllocateKey(key)
	}
	if p.Reference == "" {
		p.Reference = key.String()
	}
	if err := l.journal.Append(ctx, l.entry(key, allocated, generic.TxAllocation, p, at)); err != nil {
		return generic.Balance{}, err
	}
	return b, nil
}

// Reconcile checks the stored bucket against its journal.
func (l *Ledger) Reconcile(ctx context.Context, key generic.BalanceKey) error {
	b, err := l.store.GetBalance(ctx, key)
	if err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("%w: %s", generic.ErrBalanceNotFound, key)
	}
	return l.journal.Reconcile(ctx, *b)
}

func (l *Ledger) entry(key generic.BalanceKey, delta generic.Amount, txType generic.TransactionType, p Posting, at time.Time) generic.Transaction {
	return generic.Transaction{
		ID:             generic.TransactionID(uuid.NewString()),
		Key:            key,
		Delta:          delta,
		Type:           txType,
		ReferenceID:    p.Reference,
		Reason:         p.Reason,
		IdempotencyKey: p.IdempotencyKey,
		CreatedBy:      string(p.Actor),
		CreatedAt:      at,
	}
}
