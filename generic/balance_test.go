package generic_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var t0 = time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

func days(n float64) generic.Amount {
	return generic.Days(n)
}

func annualKey() generic.BalanceKey {
	return generic.BalanceKey{EntityID: "emp-1", ResourceID: "annual", Year: 2025}
}

// =============================================================================
// BALANCE BUCKET TESTS
// =============================================================================

func TestBalance_New_RemainingEqualsAllocated(t *testing.T) {
	b := generic.NewBalance("b1", annualKey(), days(20), t0)

	assert.True(t, b.Remaining.Equal(days(20)))
	assert.True(t, b.Used.IsZero())
	assert.Equal(t, int64(1), b.Version)
	require.NoError(t, b.Check())
}

func TestBalance_DebitThenCredit_RestoresExactly(t *testing.T) {
	// GIVEN: 20 days allocated
	b := generic.NewBalance("b1", annualKey(), days(20), t0)

	// WHEN: 5 days approved
	debited, err := b.Debit(days(5), t0)
	require.NoError(t, err)

	// THEN: used 5, remaining 15
	assert.True(t, debited.Used.Equal(days(5)))
	assert.True(t, debited.Remaining.Equal(days(15)))
	assert.Equal(t, int64(2), debited.Version)

	// WHEN: the same 5 days are cancelled
	credited, err := debited.Credit(days(5), t0)
	require.NoError(t, err)

	// THEN: back to the original bucket
	assert.True(t, credited.Used.IsZero())
	assert.True(t, credited.Remaining.Equal(days(20)))
	require.NoError(t, credited.Check())
}

func TestBalance_Debit_InsufficientLeavesReceiverUnchanged(t *testing.T) {
	// GIVEN: 10 allocated, 9 used
	b := generic.NewBalance("b1", annualKey(), days(10), t0)
	b, err := b.Debit(days(9), t0)
	require.NoError(t, err)

	// WHEN: 2 more days are debited
	after, err := b.Debit(days(2), t0)

	// THEN: insufficient with available 1, nothing changed
	require.Error(t, err)
	assert.True(t, errors.Is(err, generic.ErrInsufficientBalance))
	var ib *generic.InsufficientBalanceError
	require.True(t, errors.As(err, &ib))
	assert.True(t, ib.Available.Equal(days(1)))
	assert.True(t, ib.Requested.Equal(days(2)))
	assert.True(t, after.Used.Equal(days(9)))
}

func TestBalance_Debit_ExactRemainingAllowed(t *testing.T) {
	b := generic.NewBalance("b1", annualKey(), days(3), t0)

	after, err := b.Debit(days(3), t0)

	require.NoError(t, err)
	assert.True(t, after.Remaining.IsZero())
}

func TestBalance_Debit_NonPositiveRejected(t *testing.T) {
	b := generic.NewBalance("b1", annualKey(), days(3), t0)

	_, err := b.Debit(days(0), t0)

	assert.True(t, errors.Is(err, generic.ErrValidation))
}

func TestBalance_Credit_OverCreditRejected(t *testing.T) {
	// GIVEN: 2 days used
	b := generic.NewBalance("b1", annualKey(), days(10), t0)
	b, err := b.Debit(days(2), t0)
	require.NoError(t, err)

	// WHEN: crediting 3 days
	_, err = b.Credit(days(3), t0)

	// THEN: rejected rather than clamped
	assert.True(t, errors.Is(err, generic.ErrLedgerInvariant))
}

func TestBalance_Check_DetectsDrift(t *testing.T) {
	b := generic.NewBalance("b1", annualKey(), days(10), t0)
	b.Remaining = days(9)

	assert.True(t, errors.Is(b.Check(), generic.ErrLedgerInvariant))
}

// =============================================================================
// JOURNAL TESTS
// =============================================================================

func TestJournal_DuplicateIdempotencyKey_Rejected(t *testing.T) {
	ctx := context.Background()
	j := generic.NewJournal(memory.New())

	tx := generic.Transaction{
		ID:             "tx-1",
		Key:            annualKey(),
		Delta:          days(-5),
		Type:           generic.TxDebit,
		IdempotencyKey: "approve:app-1",
	}
	require.NoError(t, j.Append(ctx, tx))

	tx.ID = "tx-2"
	err := j.Append(ctx, tx)

	assert.True(t, errors.Is(err, generic.ErrDuplicateIdempotencyKey))
	assert.True(t, errors.Is(err, generic.ErrConflict))
}

func TestJournal_ReplayMatchesBucket(t *testing.T) {
	// GIVEN: allocation +20, debit -5, credit +5, debit -3
	ctx := context.Background()
	j := generic.NewJournal(memory.New())
	key := annualKey()
	entries := []generic.Transaction{
		{ID: "1", Key: key, Delta: days(20), Type: generic.TxAllocation, IdempotencyKey: "allocate:1"},
		{ID: "2", Key: key, Delta: days(-5), Type: generic.TxDebit, IdempotencyKey: "approve:a"},
		{ID: "3", Key: key, Delta: days(5), Type: generic.TxCredit, IdempotencyKey: "cancel:a"},
		{ID: "4", Key: key, Delta: days(-3), Type: generic.TxDebit, IdempotencyKey: "approve:b"},
	}
	for _, e := range entries {
		require.NoError(t, j.Append(ctx, e))
	}

	// WHEN: replaying
	allocated, used, err := j.Replay(ctx, key)
	require.NoError(t, err)

	// THEN: allocated 20, used 3, and a matching bucket reconciles
	assert.True(t, allocated.Equal(days(20)))
	assert.True(t, used.Equal(days(3)))

	b := generic.NewBalance("b1", key, days(20), t0)
	b, err = b.Debit(days(3), t0)
	require.NoError(t, err)
	assert.NoError(t, j.Reconcile(ctx, b))

	b.Used = days(4)
	b.Remaining = days(16)
	assert.True(t, errors.Is(j.Reconcile(ctx, b), generic.ErrLedgerInvariant))
}

// =============================================================================
// ERROR TAXONOMY TESTS
// =============================================================================

func TestInternal_WrapsUnknownOnly(t *testing.T) {
	cause := errors.New("disk full")

	err := generic.Internal("save application", cause)

	assert.True(t, errors.Is(err, generic.ErrInternal))
	assert.True(t, errors.Is(err, cause))

	forbidden := &generic.ForbiddenError{ActorID: "emp-1", Operation: "approve"}
	assert.Same(t, forbidden, generic.Internal("approve", forbidden).(*generic.ForbiddenError))
	assert.Nil(t, generic.Internal("noop", nil))
}
