package repository

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gigpay/taskpay/internal/db"
	"github.com/gigpay/taskpay/internal/domain"
	"github.com/gigpay/taskpay/internal/models"
	"github.com/gigpay/taskpay/internal/service"
	"github.com/gigpay/taskpay/internal/testutil/dblock"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	_ = godotenv.Load("../../.env") // Load from root
}

func testStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}
	release := dblock.Acquire()
	t.Cleanup(release)

	pool, err := db.Connect(context.Background(), os.Getenv("DATABASE_URL"))
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return NewStore(pool)
}

func TestWorkerBalanceMoves(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	worker, err := store.queries.CreateWorker(ctx, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, domain.Cents(0), worker.AvailableCents)
	assert.Equal(t, domain.Cents(0), worker.FrozenCents)

	worker, err = store.queries.CreditWorkerFunds(ctx, worker.ID, 10000)
	require.NoError(t, err)
	assert.Equal(t, domain.Cents(10000), worker.AvailableCents)

	worker, err = store.queries.FreezeWorkerFunds(ctx, worker.ID, 4000)
	require.NoError(t, err)
	assert.Equal(t, domain.Cents(6000), worker.AvailableCents)
	assert.Equal(t, domain.Cents(4000), worker.FrozenCents)

	// Guard failure returns no row.
	_, err = store.queries.FreezeWorkerFunds(ctx, worker.ID, 7000)
	assert.Error(t, err)

	worker, err = store.queries.UnfreezeWorkerFunds(ctx, worker.ID, 4000)
	require.NoError(t, err)
	assert.Equal(t, domain.Cents(10000), worker.AvailableCents)
	assert.Equal(t, domain.Cents(0), worker.FrozenCents)
}

func TestLedgerSumMatchesBalance(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	worker, err := store.queries.CreateWorker(ctx, uuid.New())
	require.NoError(t, err)

	svc := service.NewLedgerService(store)
	_, err = svc.Credit(ctx, worker.ID, 10000, domain.RecordKindDeposit, "", "seed balance")
	require.NoError(t, err)
	_, err = svc.Freeze(ctx, worker.ID, 4000, "ORD1", "test freeze")
	require.NoError(t, err)
	_, err = svc.Unfreeze(ctx, worker.ID, 4000, "ORD1", "test unfreeze")
	require.NoError(t, err)

	result, err := svc.Reconcile(ctx, worker.ID)
	require.NoError(t, err)
	assert.True(t, result.Consistent())
	assert.Equal(t, domain.Cents(10000), result.CalculatedBalance)
	assert.Equal(t, 3, result.RecordCount)
}

func TestPayoutClaimLifecycle(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	worker, err := store.queries.CreateWorker(ctx, uuid.New())
	require.NoError(t, err)

	order := models.PayoutOrder{
		ID:              uuid.New(),
		OrderNo:         domain.NewOrderNo("PAYOUT"),
		AmountCents:     20000,
		CommissionCents: 1000,
		Status:          domain.TaskStatusPending,
		ExpiresAt:       time.Now().Add(time.Hour),
	}
	require.NoError(t, store.queries.InsertPayoutOrder(ctx, order))

	rows, err := store.queries.ClaimPayoutOrder(ctx, order.ID, worker.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	// Second claim misses the status guard.
	rows, err = store.queries.ClaimPayoutOrder(ctx, order.ID, uuid.New(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)

	busy, err := store.queries.HasActivePayoutClaim(ctx, worker.ID)
	require.NoError(t, err)
	assert.True(t, busy)

	// Completion requires proof.
	rows, err = store.queries.CompletePayoutOrder(ctx, order.ID, worker.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)

	rows, err = store.queries.SetPayoutOrderProof(ctx, order.ID, worker.ID, "https://proofs.example/1.jpg")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rows, err = store.queries.CompletePayoutOrder(ctx, order.ID, worker.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
}

func TestConcurrentPayoutClaimsSingleWinner(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	order := models.PayoutOrder{
		ID:              uuid.New(),
		OrderNo:         domain.NewOrderNo("PAYOUT"),
		AmountCents:     20000,
		CommissionCents: 1000,
		Status:          domain.TaskStatusPending,
		ExpiresAt:       time.Now().Add(time.Hour),
	}
	require.NoError(t, store.queries.InsertPayoutOrder(ctx, order))

	const racers = 10
	workers := make([]uuid.UUID, racers)
	for i := range workers {
		w, err := store.queries.CreateWorker(ctx, uuid.New())
		require.NoError(t, err)
		workers[i] = w.ID
	}

	// All racers hit the same guarded UPDATE; the status check admits
	// exactly one of them.
	claims := make(chan int64, racers)
	var wg sync.WaitGroup
	for _, workerID := range workers {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			rows, err := store.queries.ClaimPayoutOrder(ctx, order.ID, id, time.Now())
			assert.NoError(t, err)
			claims <- rows
		}(workerID)
	}
	wg.Wait()
	close(claims)

	var total int64
	for rows := range claims {
		total += rows
	}
	assert.Equal(t, int64(1), total)

	claimed, err := store.queries.GetPayoutOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusClaimed, claimed.Status)
	require.NotNil(t, claimed.ClaimantID)
	assert.Contains(t, workers, *claimed.ClaimantID)
}

func TestSettingsReadAbsentKey(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	enabled, err := store.queries.GetSettingBool(ctx, "no.such.key")
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, store.queries.SetSetting(ctx, domain.SettingPayinEnabled, "true"))
	enabled, err = store.queries.GetSettingBool(ctx, domain.SettingPayinEnabled)
	require.NoError(t, err)
	assert.True(t, enabled)
}
