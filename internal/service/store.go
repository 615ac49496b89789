package service

import (
	"context"
	"time"

	"github.com/gigpay/taskpay/internal/domain"
	"github.com/gigpay/taskpay/internal/models"
	"github.com/google/uuid"
)

// Queries is the data-access surface the settlement services run against.
// The conditional mutations (claim, complete, freeze, settle) return the
// number of rows affected so callers can verify exactly-one semantics; the
// guards are encoded in the statements themselves so a lost race shows up as
// zero rows, never as a partial write.
type Queries interface {
	WorkerQueries
	LedgerQueries
	PayoutQueries
	AllocationQueries
	PayinOrderQueries
	AccountQueries
	SettingsQueries
}

// Store provides query access and transaction scoping. Every multi-step
// money move runs inside RunInTx; the per-account serialization guarantee
// comes from row locks taken via the ForUpdate queries inside that
// transaction.
type Store interface {
	Queries() Queries
	RunInTx(ctx context.Context, fn func(q Queries) error) error
}

type WorkerQueries interface {
	GetWorker(ctx context.Context, id uuid.UUID) (models.Worker, error)
	// GetWorkerForUpdate locks the worker row for the rest of the
	// transaction.
	GetWorkerForUpdate(ctx context.Context, id uuid.UUID) (models.Worker, error)
	// FreezeWorkerFunds moves amount from available to frozen, guarded by
	// available >= amount. Returns the updated row; pgx.ErrNoRows when the
	// guard fails.
	FreezeWorkerFunds(ctx context.Context, id uuid.UUID, amount domain.Cents) (models.Worker, error)
	// UnfreezeWorkerFunds moves amount from frozen back to available,
	// guarded by frozen >= amount.
	UnfreezeWorkerFunds(ctx context.Context, id uuid.UUID, amount domain.Cents) (models.Worker, error)
	// CreditWorkerFunds increments the available balance directly.
	CreditWorkerFunds(ctx context.Context, id uuid.UUID, amount domain.Cents) (models.Worker, error)
}

type LedgerQueries interface {
	InsertLedgerRecord(ctx context.Context, rec models.LedgerRecord) error
	ListLedgerRecords(ctx context.Context, workerID uuid.UUID, limit, offset int32) ([]models.LedgerRecord, error)
	// SumLedgerAmounts replays the signed amounts of every record for the
	// worker and returns the total and record count.
	SumLedgerAmounts(ctx context.Context, workerID uuid.UUID) (domain.Cents, int, error)
}

type PayoutQueries interface {
	GetPayoutOrder(ctx context.Context, id uuid.UUID) (models.PayoutOrder, error)
	GetPayoutOrderForUpdate(ctx context.Context, id uuid.UUID) (models.PayoutOrder, error)
	HasActivePayoutClaim(ctx context.Context, workerID uuid.UUID) (bool, error)
	// ClaimPayoutOrder transitions pending -> claimed for an unexpired order.
	ClaimPayoutOrder(ctx context.Context, orderID, workerID uuid.UUID, now time.Time) (int64, error)
	SetPayoutOrderProof(ctx context.Context, orderID, workerID uuid.UUID, proofURL string) (int64, error)
	CompletePayoutOrder(ctx context.Context, orderID, workerID uuid.UUID, now time.Time) (int64, error)
	MarkPayoutOrderExpired(ctx context.Context, orderID uuid.UUID) (int64, error)
	ListAvailablePayoutOrders(ctx context.Context, now time.Time, limit, offset int32) ([]models.PayoutOrder, error)
	ListClaimedPayoutOrders(ctx context.Context, workerID uuid.UUID) ([]models.PayoutOrder, error)
	// ListExpiredPayoutOrders returns pending/claimed orders past expiry,
	// locked with SKIP LOCKED so concurrent sweepers never double-process.
	ListExpiredPayoutOrders(ctx context.Context, now time.Time, limit int32) ([]models.PayoutOrder, error)
}

type AllocationQueries interface {
	GetPayinAllocation(ctx context.Context, id uuid.UUID) (models.PayinAllocation, error)
	GetPayinAllocationForUpdate(ctx context.Context, id uuid.UUID) (models.PayinAllocation, error)
	HasActiveAllocationClaim(ctx context.Context, workerID uuid.UUID) (bool, error)
	ClaimPayinAllocation(ctx context.Context, allocID, workerID, accountID uuid.UUID, now time.Time) (int64, error)
	SetPayinAllocationProof(ctx context.Context, allocID, workerID uuid.UUID, proofURL string) (int64, error)
	CompletePayinAllocation(ctx context.Context, allocID, workerID uuid.UUID, now time.Time) (int64, error)
	MarkPayinAllocationExpired(ctx context.Context, allocID uuid.UUID) (int64, error)
	ListAssignedAllocations(ctx context.Context, workerID uuid.UUID, limit, offset int32) ([]models.PayinAllocation, error)
	ListExpiredAllocations(ctx context.Context, now time.Time, limit int32) ([]models.PayinAllocation, error)
}

type PayinOrderQueries interface {
	InsertPayinOrder(ctx context.Context, order models.PayinOrder) error
	GetPayinOrder(ctx context.Context, id uuid.UUID) (models.PayinOrder, error)
	GetPayinOrderForUpdate(ctx context.Context, id uuid.UUID) (models.PayinOrder, error)
	// GetPayinOrderByNoForUpdate locks the order addressed by merchant
	// order number; the webhook settles under this lock.
	GetPayinOrderByNoForUpdate(ctx context.Context, orderNo string) (models.PayinOrder, error)
	GetActivePayinOrder(ctx context.Context, workerID uuid.UUID) (models.PayinOrder, error)
	SetPayinOrderGatewayResult(ctx context.Context, id uuid.UUID, externalOrderID, payData, status string) (int64, error)
	SetPayinOrderStatus(ctx context.Context, id uuid.UUID, status string, proofURL *string) (int64, error)
	ListExpiredPayinOrders(ctx context.Context, now time.Time, limit int32) ([]models.PayinOrder, error)
}

type AccountQueries interface {
	GetPaymentAccount(ctx context.Context, id uuid.UUID) (models.PaymentAccount, error)
	// GetActivePayinAccounts returns, among the given ids, the accounts that
	// belong to the worker, are active and payin-enabled.
	GetActivePayinAccounts(ctx context.Context, workerID uuid.UUID, ids []uuid.UUID) ([]models.PaymentAccount, error)
}

type SettingsQueries interface {
	// GetSettingBool reads a system-settings flag; absent keys read false.
	GetSettingBool(ctx context.Context, key string) (bool, error)
}
