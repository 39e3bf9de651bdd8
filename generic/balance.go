/*
balance.go - Balance bucket and its invariants

PURPOSE:
  A Balance is the stored allocation for one (employee, leave type, year).
  It answers "how much can this employee still take?" without replaying
  history; the journal in ledger.go keeps the history alongside it.

BALANCE COMPONENTS:
  Allocated: Days granted for the year
  Used:      Days consumed by approved applications
  Remaining: Allocated - Used, recomputed after every mutation
  Version:   Compare-and-swap counter, bumped on every write

INVARIANTS:
  1. Used >= 0
  2. Remaining == Allocated - Used
  3. A debit never drives Remaining below zero
  4. A credit never drives Used below zero (rejected, not clamped)

EXAMPLE:
  Employee has 20 days Annual, approves a 5 day request, then cancels it:

    NewBalance(key, 20)  -> allocated 20, used 0, remaining 20
    Debit(5)             -> allocated 20, used 5, remaining 15
    Credit(5)            -> allocated 20, used 0, remaining 20

SEE ALSO:
  - ledger.go: Journal entries written next to each mutation
  - leave/ledger.go: Store-backed ledger operations
*/
package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// BALANCE - One bucket per (employee, leave type, year)
// =============================================================================

type Balance struct {
	ID        string
	Key       BalanceKey
	Allocated Amount
	Used      Amount
	Remaining Amount
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewBalance opens an untouched bucket.
func NewBalance(id string, key BalanceKey, allocated Amount, at time.Time) Balance {
	return Balance{
		ID:        id,
		Key:       key,
		Allocated: allocated,
		Used:      allocated.Zero(),
		Remaining: allocated,
		Version:   1,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

// Available returns what can still be requested.
func (b Balance) Available() Amount {
	return b.Remaining
}

// CanCover checks if the given amount fits in what remains.
func (b Balance) CanCover(days Amount) bool {
	return !days.GreaterThan(b.Remaining)
}

// Check verifies the bucket invariants.
func (b Balance) Check() error {
	if b.Used.IsNegative() {
		return fmt.Errorf("%w: %s used %v < 0", ErrLedgerInvariant, b.Key, b.Used.Value)
	}
	if !b.Remaining.Equal(b.Allocated.Sub(b.Used)) {
		return fmt.Errorf("%w: %s remaining %v != allocated %v - used %v",
			ErrLedgerInvariant, b.Key, b.Remaining.Value, b.Allocated.Value, b.Used.Value)
	}
	return nil
}

// Debit returns a copy with days moved from remaining to used.
// The receiver is unchanged.
func (b Balance) Debit(days Amount, at time.Time) (Balance, error) {
	if !days.IsPositive() {
		return b, NewValidationError("days", "debit must be positive")
	}
	if !b.CanCover(days) {
		return b, &InsufficientBalanceError{Key: b.Key, Available: b.Remaining, Requested: days}
	}
	next := b
	next.Used = b.Used.Add(days)
	next.Remaining = next.Allocated.Sub(next.Used)
	next.Version = b.Version + 1
	next.UpdatedAt = at
	return next, next.Check()
}

// Credit is the inverse of Debit.
func (b Balance) Credit(days Amount, at time.Time) (Balance, error) {
	if !days.IsPositive() {
		return b, NewValidationError("days", "credit must be positive")
	}
	if days.GreaterThan(b.Used) {
		return b, fmt.Errorf("%w: %s credit %v exceeds used %v",
			ErrLedgerInvariant, b.Key, days.Value, b.Used.Value)
	}
	next := b
	next.Used = b.Used.Sub(days)
	next.Remaining = next.Allocated.Sub(next.Used)
	next.Version = b.Version + 1
	next.UpdatedAt = at
	return next, next.Check()
}
