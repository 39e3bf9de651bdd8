package leave_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/memory"
)

func newTestLedger(t *testing.T) (*leave.Ledger, *memory.Memory) {
	store := memory.New()
	return leave.NewLedger(store, nil), store
}

var key2025 = generic.BalanceKey{EntityID: "alice", ResourceID: annual, Year: 2025}

func TestLedger_OpenTwice_Conflict(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger(t)

	_, err := ledger.Open(ctx, key2025, generic.Days(20), leave.Posting{Actor: "adm"})
	require.NoError(t, err)
	_, err = ledger.Open(ctx, key2025, generic.Days(25), leave.Posting{Actor: "adm"})

	assert.True(t, errors.Is(err, generic.ErrConflict))
}

func TestLedger_DebitMissingRow_BalanceNotFound(t *testing.T) {
	ledger, _ := newTestLedger(t)

	_, err := ledger.Debit(context.Background(), key2025, generic.Days(1), leave.Posting{IdempotencyKey: "approve:x"})

	assert.True(t, errors.Is(err, generic.ErrBalanceNotFound))
}

func TestLedger_DebitSameApplicationTwice_Rejected(t *testing.T) {
	// GIVEN: an approval already journaled for app-1
	ctx := context.Background()
	store := memory.New()
	ledger := leave.NewLedger(store, nil)
	_, err := ledger.Open(ctx, key2025, generic.Days(20), leave.Posting{Actor: "adm"})
	require.NoError(t, err)
	posting := leave.Posting{Reference: "app-1", IdempotencyKey: leave.ApproveKey("app-1")}
	_, err = ledger.Debit(ctx, key2025, generic.Days(5), posting)
	require.NoError(t, err)

	// WHEN: the same debit is replayed inside a transaction
	err = store.WithTx(ctx, func(tx leave.Store) error {
		_, err := leave.NewLedger(tx, nil).Debit(ctx, key2025, generic.Days(5), posting)
		return err
	})

	// THEN: the journal rejects it and the bucket rolls back
	assert.True(t, errors.Is(err, generic.ErrDuplicateIdempotencyKey))
	b, err := ledger.Get(ctx, key2025)
	require.NoError(t, err)
	assert.True(t, b.Used.Equal(generic.Days(5)))
	assert.NoError(t, ledger.Reconcile(ctx, key2025))
}

func TestLedger_StaleVersion_ConcurrentModification(t *testing.T) {
	ctx := context.Background()
	ledger, store := newTestLedger(t)
	opened, err := ledger.Open(ctx, key2025, generic.Days(20), leave.Posting{Actor: "adm"})
	require.NoError(t, err)
	_, err = ledger.Debit(ctx, key2025, generic.Days(1), leave.Posting{IdempotencyKey: "approve:a"})
	require.NoError(t, err)

	stale, err := opened.Debit(generic.Days(2), opened.UpdatedAt)
	require.NoError(t, err)
	err = store.UpdateBalance(ctx, stale, opened.Version)

	assert.True(t, errors.Is(err, generic.ErrConcurrentModification))
}

func TestLedger_ListForEmployee(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger(t)
	for _, k := range []generic.BalanceKey{
		key2025,
		{EntityID: "alice", ResourceID: "sick", Year: 2025},
		{EntityID: "alice", ResourceID: annual, Year: 2024},
		{EntityID: "bob", ResourceID: annual, Year: 2025},
	} {
		_, err := ledger.Open(ctx, k, generic.Days(10), leave.Posting{Actor: "adm"})
		require.NoError(t, err)
	}

	got, err := ledger.ListForEmployee(ctx, "alice", 2025)

	require.NoError(t, err)
	assert.Len(t, got, 2)
}
