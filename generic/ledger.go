/*
ledger.go - Append-only journal of balance mutations

PURPOSE:
  The Journal records every allocation, debit, credit and adjustment made
  to a balance bucket. The bucket row answers "what is the balance now";
  the journal answers "how did it get there" and guards against applying
  the same mutation twice.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IDEMPOTENT: Same idempotency key = rejected second write
  3. RECONCILABLE: Replaying the journal for a key reproduces the bucket

CORRECTIONS:
  A cancelled approval is not erased. A credit entry is appended next to
  the debit, and both stay in the journal:

    Annual/2025: [allocation +20, debit -5, credit +5] -> used 0, remaining 20

SEE ALSO:
  - store.go: Low-level persistence interface
  - balance.go: The bucket the journal explains
  - leave/ledger.go: Writes bucket and journal in one store transaction
*/
package generic

import (
	"context"
	"fmt"
)

// =============================================================================
// JOURNAL - Append-only transaction log
// =============================================================================

type Journal struct {
	Store Store
}

func NewJournal(store Store) *Journal {
	return &Journal{Store: store}
}

// Append adds a transaction. Fails with ErrDuplicateIdempotencyKey if the key exists.
func (j *Journal) Append(ctx context.Context, tx Transaction) error {
	if tx.IdempotencyKey != "" {
		exists, err := j.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrDuplicateIdempotencyKey, tx.IdempotencyKey)
		}
	}
	return j.Store.Append(ctx, tx)
}

// Transactions returns the history of one bucket, oldest first.
func (j *Journal) Transactions(ctx context.Context, key BalanceKey) ([]Transaction, error) {
	return j.Store.Load(ctx, key)
}

// Replay folds the history of one bucket into allocated and used totals.
// Debits carry a negative delta, credits a positive one.
func (j *Journal) Replay(ctx context.Context, key BalanceKey) (allocated, used Amount, err error) {
	txs, err := j.Transactions(ctx, key)
	if err != nil {
		return Amount{}, Amount{}, err
	}
	allocated = NewAmount(0, UnitDays)
	used = NewAmount(0, UnitDays)
	for _, tx := range txs {
		switch tx.Type {
		case TxAllocation, TxAdjustment:
			allocated = allocated.Add(tx.Delta)
		case TxDebit, TxCredit:
			used = used.Sub(tx.Delta)
		}
	}
	return allocated, used, nil
}

// Reconcile checks that the bucket matches its journal.
func (j *Journal) Reconcile(ctx context.Context, b Balance) error {
	allocated, used, err := j.Replay(ctx, b.Key)
	if err != nil {
		return err
	}
	if !allocated.Equal(b.Allocated) || !used.Equal(b.Used) {
		return fmt.Errorf("%w: %s journal allocated %v used %v, bucket allocated %v used %v",
			ErrLedgerInvariant, b.Key, allocated.Value, used.Value, b.Allocated.Value, b.Used.Value)
	}
	return b.Check()
}
