package service

import (
	"context"
	"testing"

	"github.com/gigpay/taskpay/internal/domain"
	"github.com/gigpay/taskpay/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreezeUnfreezeRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	workerID := store.addWorker(10000)
	svc := NewLedgerService(store)

	worker, err := svc.Freeze(ctx, workerID, 2500, "ORD-1", "collateral")
	require.NoError(t, err)
	assert.Equal(t, domain.Cents(7500), worker.AvailableCents)
	assert.Equal(t, domain.Cents(2500), worker.FrozenCents)

	worker, err = svc.Unfreeze(ctx, workerID, 2500, "ORD-1", "release")
	require.NoError(t, err)
	assert.Equal(t, domain.Cents(10000), worker.AvailableCents)
	assert.Equal(t, domain.Cents(0), worker.FrozenCents)

	records, err := svc.Records(ctx, workerID, 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	// Newest first: unfreeze, freeze, opening deposit.
	assert.Equal(t, domain.RecordKindUnfreeze, records[0].Kind)
	assert.Equal(t, domain.Cents(2500), records[0].AmountCents)
	assert.Equal(t, domain.RecordKindFreeze, records[1].Kind)
	assert.Equal(t, domain.Cents(-2500), records[1].AmountCents)
}

func TestFreezeInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	workerID := store.addWorker(1000)
	svc := NewLedgerService(store)

	_, err := svc.Freeze(ctx, workerID, 2000, "ORD-1", "collateral")
	require.ErrorIs(t, err, models.ErrInsufficientBalance)

	worker, err := store.Queries().GetWorker(ctx, workerID)
	require.NoError(t, err)
	assert.Equal(t, domain.Cents(1000), worker.AvailableCents)
	assert.Equal(t, domain.Cents(0), worker.FrozenCents)

	records, err := svc.Records(ctx, workerID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, records, 1, "a rejected freeze must leave no trace beyond the opening deposit")
}

func TestCreditAppendsRecord(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	workerID := store.addWorker(500)
	svc := NewLedgerService(store)

	worker, err := svc.Credit(ctx, workerID, 300, domain.RecordKindCommission, "ORD-7", "commission")
	require.NoError(t, err)
	assert.Equal(t, domain.Cents(800), worker.AvailableCents)

	records, err := svc.Records(ctx, workerID, 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, domain.RecordKindCommission, records[0].Kind)
	assert.Equal(t, domain.Cents(800), records[0].BalanceAfterCents)
	assert.Equal(t, "ORD-7", records[0].RelatedOrderRef)
}

func TestReconcileConsistentAfterMoves(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	workerID := store.addWorker(10000)
	svc := NewLedgerService(store)

	_, err := svc.Freeze(ctx, workerID, 4000, "ORD-1", "collateral")
	require.NoError(t, err)
	_, err = svc.Unfreeze(ctx, workerID, 4000, "ORD-1", "release")
	require.NoError(t, err)
	_, err = svc.Credit(ctx, workerID, 200, domain.RecordKindCommission, "ORD-1", "commission")
	require.NoError(t, err)

	result, err := svc.Reconcile(ctx, workerID)
	require.NoError(t, err)
	assert.True(t, result.Consistent())
	assert.Equal(t, domain.Cents(10200), result.CalculatedBalance)
	assert.Equal(t, domain.Cents(10200), result.RecordedBalance)
	assert.Equal(t, 4, result.RecordCount)
}

func TestReconcileDetectsDrift(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	workerID := store.addWorker(5000)
	svc := NewLedgerService(store)

	// Poke the balance behind the ledger's back.
	w := store.workers[workerID]
	w.AvailableCents += 100
	store.workers[workerID] = w

	result, err := svc.Reconcile(ctx, workerID)
	require.NoError(t, err)
	assert.False(t, result.Consistent())
	assert.Equal(t, domain.Cents(-100), result.Drift)
}

func TestReconcileUnknownWorker(t *testing.T) {
	store := newMemStore()
	svc := NewLedgerService(store)

	_, err := svc.Reconcile(context.Background(), uuid.New())
	require.ErrorIs(t, err, models.ErrNotFoundOrWrongState)
}
