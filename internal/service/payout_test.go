package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gigpay/taskpay/internal/domain"
	"github.com/gigpay/taskpay/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayoutClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	workerID := store.addWorker(0)
	orderID := store.addPayout(50000, 1500, time.Now().Add(time.Hour))
	svc := NewPayoutService(store)

	claimed, err := svc.Claim(ctx, orderID, workerID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusClaimed, claimed.Status)
	require.NotNil(t, claimed.ClaimantID)
	assert.Equal(t, workerID, *claimed.ClaimantID)

	// Claiming has no balance effect.
	worker, err := store.Queries().GetWorker(ctx, workerID)
	require.NoError(t, err)
	assert.Equal(t, domain.Cents(0), worker.AvailableCents)
	assert.Equal(t, domain.Cents(0), worker.FrozenCents)

	require.NoError(t, svc.UploadProof(ctx, orderID, workerID, "https://proof.example/p1.png"))

	result, err := svc.Complete(ctx, orderID, workerID)
	require.NoError(t, err)
	assert.Equal(t, domain.Cents(1500), result.Reward)
	assert.Equal(t, domain.Cents(1500), result.NewBalance)

	order, err := store.Queries().GetPayoutOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, order.Status)
}

func TestPayoutClaimAtMostOneActive(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	workerID := store.addWorker(0)
	first := store.addPayout(10000, 500, time.Now().Add(time.Hour))
	second := store.addPayout(20000, 900, time.Now().Add(time.Hour))
	svc := NewPayoutService(store)

	_, err := svc.Claim(ctx, first, workerID)
	require.NoError(t, err)

	_, err = svc.Claim(ctx, second, workerID)
	require.ErrorIs(t, err, models.ErrAlreadyHasActiveTask)

	order, err := store.Queries().GetPayoutOrder(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, order.Status)
}

func TestPayoutClaimAlreadyClaimed(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	orderID := store.addPayout(10000, 500, time.Now().Add(time.Hour))
	svc := NewPayoutService(store)

	_, err := svc.Claim(ctx, orderID, store.addWorker(0))
	require.NoError(t, err)

	_, err = svc.Claim(ctx, orderID, store.addWorker(0))
	require.ErrorIs(t, err, models.ErrNotFoundOrWrongState)
}

func TestPayoutClaimExpiredOrder(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	workerID := store.addWorker(0)
	orderID := store.addPayout(10000, 500, time.Now().Add(-time.Minute))
	svc := NewPayoutService(store)

	_, err := svc.Claim(ctx, orderID, workerID)
	require.ErrorIs(t, err, models.ErrExpired)

	order, err := store.Queries().GetPayoutOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusExpired, order.Status, "lazy expiry flips the order on access")
}

func TestPayoutCompleteRequiresProof(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	workerID := store.addWorker(0)
	orderID := store.addPayout(10000, 500, time.Now().Add(time.Hour))
	svc := NewPayoutService(store)

	_, err := svc.Claim(ctx, orderID, workerID)
	require.NoError(t, err)

	_, err = svc.Complete(ctx, orderID, workerID)
	require.ErrorIs(t, err, models.ErrProofMissing)

	order, err := store.Queries().GetPayoutOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusClaimed, order.Status)
}

func TestPayoutCompleteWrongWorker(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	workerID := store.addWorker(0)
	orderID := store.addPayout(10000, 500, time.Now().Add(time.Hour))
	svc := NewPayoutService(store)

	_, err := svc.Claim(ctx, orderID, workerID)
	require.NoError(t, err)
	require.NoError(t, svc.UploadProof(ctx, orderID, workerID, "https://proof.example/p1.png"))

	_, err = svc.Complete(ctx, orderID, uuid.New())
	require.ErrorIs(t, err, models.ErrNotFoundOrWrongState)
}

func TestPayoutConcurrentClaimsOneOrder(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	orderID := store.addPayout(10000, 500, time.Now().Add(time.Hour))
	svc := NewPayoutService(store)

	const racers = 16
	results := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		workerID := store.addWorker(0)
		go func() {
			defer wg.Done()
			_, err := svc.Claim(ctx, orderID, workerID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, models.ErrNotFoundOrWrongState)
		}
	}
	assert.Equal(t, 1, wins, "exactly one racer may claim the order")
}

func TestPayoutConcurrentClaimsOneWorker(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	workerID := store.addWorker(0)
	svc := NewPayoutService(store)

	const racers = 16
	orderIDs := make([]uuid.UUID, racers)
	for i := range orderIDs {
		orderIDs[i] = store.addPayout(10000, 500, time.Now().Add(time.Hour))
	}

	results := make(chan error, racers)
	var wg sync.WaitGroup
	for _, orderID := range orderIDs {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := svc.Claim(ctx, id, workerID)
			results <- err
		}(orderID)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, models.ErrAlreadyHasActiveTask)
		}
	}
	assert.Equal(t, 1, wins, "a worker holds at most one claimed order")
}

func TestPayoutUploadProofOverwrites(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	workerID := store.addWorker(0)
	orderID := store.addPayout(10000, 500, time.Now().Add(time.Hour))
	svc := NewPayoutService(store)

	_, err := svc.Claim(ctx, orderID, workerID)
	require.NoError(t, err)

	require.NoError(t, svc.UploadProof(ctx, orderID, workerID, "https://proof.example/first.png"))
	require.NoError(t, svc.UploadProof(ctx, orderID, workerID, "https://proof.example/second.png"))

	order, err := store.Queries().GetPayoutOrder(ctx, orderID)
	require.NoError(t, err)
	require.NotNil(t, order.ProofURL)
	assert.Equal(t, "https://proof.example/second.png", *order.ProofURL)
}
