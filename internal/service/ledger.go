package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gigpay/taskpay/internal/domain"
	"github.com/gigpay/taskpay/internal/models"
	"github.com/gigpay/taskpay/internal/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// LedgerService owns the worker balance pair and the append-only record
// trail. Every mutation applies the balance update and the record insert in
// one transaction; a half-applied state is not observable.
type LedgerService struct {
	store Store
}

func NewLedgerService(store Store) *LedgerService {
	return &LedgerService{store: store}
}

// Freeze moves amount from available to frozen in its own transaction.
func (s *LedgerService) Freeze(ctx context.Context, workerID uuid.UUID, amount domain.Cents, orderRef, description string) (models.Worker, error) {
	var worker models.Worker
	err := s.store.RunInTx(ctx, func(q Queries) error {
		var err error
		worker, err = freezeFunds(ctx, q, workerID, amount, orderRef, description)
		return err
	})
	return worker, err
}

// Unfreeze moves amount from frozen back to available in its own
// transaction.
func (s *LedgerService) Unfreeze(ctx context.Context, workerID uuid.UUID, amount domain.Cents, orderRef, description string) (models.Worker, error) {
	var worker models.Worker
	err := s.store.RunInTx(ctx, func(q Queries) error {
		var err error
		worker, err = unfreezeFunds(ctx, q, workerID, amount, orderRef, description)
		return err
	})
	return worker, err
}

// Credit increments the available balance directly; used for commission
// rewards not tied to a prior freeze.
func (s *LedgerService) Credit(ctx context.Context, workerID uuid.UUID, amount domain.Cents, kind, orderRef, description string) (models.Worker, error) {
	var worker models.Worker
	err := s.store.RunInTx(ctx, func(q Queries) error {
		var err error
		worker, err = creditFunds(ctx, q, workerID, amount, kind, orderRef, description)
		return err
	})
	return worker, err
}

// Records returns a page of the worker's ledger trail, newest first.
func (s *LedgerService) Records(ctx context.Context, workerID uuid.UUID, limit, offset int32) ([]models.LedgerRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.Queries().ListLedgerRecords(ctx, workerID, limit, offset)
}

// Reconcile replays every ledger record chronologically and compares the
// result with the stored available balance. Audit only: it never mutates.
func (s *LedgerService) Reconcile(ctx context.Context, workerID uuid.UUID) (models.ReconcileResult, error) {
	var result models.ReconcileResult
	err := s.store.RunInTx(ctx, func(q Queries) error {
		worker, err := q.GetWorker(ctx, workerID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrNotFoundOrWrongState
			}
			return fmt.Errorf("load worker: %w", err)
		}
		sum, count, err := q.SumLedgerAmounts(ctx, workerID)
		if err != nil {
			return fmt.Errorf("sum ledger records: %w", err)
		}
		result = models.ReconcileResult{
			WorkerID:          workerID,
			CalculatedBalance: sum,
			RecordedBalance:   worker.AvailableCents,
			Drift:             sum - worker.AvailableCents,
			RecordCount:       count,
		}
		return nil
	})
	if err != nil {
		return models.ReconcileResult{}, err
	}
	if !result.Consistent() {
		observability.IncrementLedgerDrift()
		zap.L().Error("ledger drift detected",
			zap.String("worker_id", workerID.String()),
			zap.Int64("drift_cents", int64(result.Drift)),
		)
	}
	return result, nil
}

// freezeFunds locks the worker row, applies the guarded balance move and
// appends the paired ledger record. Freeze amounts are recorded negative so
// the signed running sum tracks the available balance.
func freezeFunds(ctx context.Context, q Queries, workerID uuid.UUID, amount domain.Cents, orderRef, description string) (models.Worker, error) {
	if amount <= 0 {
		return models.Worker{}, fmt.Errorf("invalid freeze amount: %s", amount)
	}
	worker, err := q.GetWorkerForUpdate(ctx, workerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Worker{}, models.ErrNotFoundOrWrongState
		}
		return models.Worker{}, fmt.Errorf("lock worker: %w", err)
	}
	if worker.AvailableCents < amount {
		return models.Worker{}, models.ErrInsufficientBalance
	}

	updated, err := q.FreezeWorkerFunds(ctx, workerID, amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Worker{}, models.ErrInsufficientBalance
		}
		return models.Worker{}, fmt.Errorf("freeze funds: %w", err)
	}

	if err := q.InsertLedgerRecord(ctx, models.LedgerRecord{
		WorkerID:          workerID,
		Kind:              domain.RecordKindFreeze,
		AmountCents:       -amount,
		BalanceAfterCents: updated.AvailableCents,
		RelatedOrderRef:   orderRef,
		Description:       description,
	}); err != nil {
		return models.Worker{}, fmt.Errorf("append freeze record: %w", err)
	}
	return updated, nil
}

// unfreezeFunds is the inverse move. A frozen balance short of the amount is
// a defensive invariant failure, not a user error.
func unfreezeFunds(ctx context.Context, q Queries, workerID uuid.UUID, amount domain.Cents, orderRef, description string) (models.Worker, error) {
	if amount <= 0 {
		return models.Worker{}, fmt.Errorf("invalid unfreeze amount: %s", amount)
	}
	if _, err := q.GetWorkerForUpdate(ctx, workerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Worker{}, models.ErrNotFoundOrWrongState
		}
		return models.Worker{}, fmt.Errorf("lock worker: %w", err)
	}

	updated, err := q.UnfreezeWorkerFunds(ctx, workerID, amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			zap.L().Error("unfreeze exceeds frozen balance",
				zap.String("worker_id", workerID.String()),
				zap.String("amount", amount.String()),
				zap.String("order_ref", orderRef),
			)
			return models.Worker{}, models.ErrLedgerInconsistency
		}
		return models.Worker{}, fmt.Errorf("unfreeze funds: %w", err)
	}

	if err := q.InsertLedgerRecord(ctx, models.LedgerRecord{
		WorkerID:          workerID,
		Kind:              domain.RecordKindUnfreeze,
		AmountCents:       amount,
		BalanceAfterCents: updated.AvailableCents,
		RelatedOrderRef:   orderRef,
		Description:       description,
	}); err != nil {
		return models.Worker{}, fmt.Errorf("append unfreeze record: %w", err)
	}
	return updated, nil
}

func creditFunds(ctx context.Context, q Queries, workerID uuid.UUID, amount domain.Cents, kind, orderRef, description string) (models.Worker, error) {
	if amount <= 0 {
		return models.Worker{}, fmt.Errorf("invalid credit amount: %s", amount)
	}
	if _, err := q.GetWorkerForUpdate(ctx, workerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Worker{}, models.ErrNotFoundOrWrongState
		}
		return models.Worker{}, fmt.Errorf("lock worker: %w", err)
	}

	updated, err := q.CreditWorkerFunds(ctx, workerID, amount)
	if err != nil {
		return models.Worker{}, fmt.Errorf("credit funds: %w", err)
	}

	if err := q.InsertLedgerRecord(ctx, models.LedgerRecord{
		WorkerID:          workerID,
		Kind:              kind,
		AmountCents:       amount,
		BalanceAfterCents: updated.AvailableCents,
		RelatedOrderRef:   orderRef,
		Description:       description,
	}); err != nil {
		return models.Worker{}, fmt.Errorf("append %s record: %w", kind, err)
	}
	return updated, nil
}
