package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gigpay/taskpay/internal/domain"
	"github.com/gigpay/taskpay/internal/models"
	"github.com/gigpay/taskpay/internal/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// AllocationService governs manual collection tasks. Claiming freezes the
// task amount against the worker's balance as collateral; confirming the
// payer's transfer releases the freeze and credits the commission.
type AllocationService struct {
	store Store
}

func NewAllocationService(store Store) *AllocationService {
	return &AllocationService{store: store}
}

// Claim takes a pending allocation for the worker, freezing the task amount
// and binding the collection account the payer will transfer into. The
// account must belong to the worker, be active and payin-enabled.
func (s *AllocationService) Claim(ctx context.Context, allocID, workerID, accountID uuid.UUID) (models.PayinAllocation, error) {
	var claimed models.PayinAllocation
	err := s.store.RunInTx(ctx, func(q Queries) error {
		enabled, err := q.GetSettingBool(ctx, domain.SettingPayinEnabled)
		if err != nil {
			return fmt.Errorf("read payin flag: %w", err)
		}
		if !enabled {
			return models.ErrFeatureDisabled
		}

		busy, err := q.HasActiveAllocationClaim(ctx, workerID)
		if err != nil {
			return fmt.Errorf("check active claim: %w", err)
		}
		if busy {
			return models.ErrAlreadyHasActiveTask
		}

		accounts, err := q.GetActivePayinAccounts(ctx, workerID, []uuid.UUID{accountID})
		if err != nil {
			return fmt.Errorf("load collection account: %w", err)
		}
		if len(accounts) == 0 {
			return models.ErrAccountUnusable
		}

		alloc, err := q.GetPayinAllocationForUpdate(ctx, allocID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrNotFoundOrWrongState
			}
			return fmt.Errorf("load allocation: %w", err)
		}
		if alloc.Status != domain.TaskStatusPending {
			return models.ErrNotFoundOrWrongState
		}
		now := time.Now()
		if !alloc.ExpiresAt.After(now) {
			if _, err := q.MarkPayinAllocationExpired(ctx, allocID); err != nil {
				return fmt.Errorf("expire allocation: %w", err)
			}
			return models.ErrExpired
		}

		if _, err := freezeFunds(ctx, q, workerID, alloc.AmountCents, alloc.OrderNo,
			fmt.Sprintf("collateral for collection task %s", alloc.OrderNo)); err != nil {
			return err
		}

		rows, err := q.ClaimPayinAllocation(ctx, allocID, workerID, accountID, now)
		if err != nil {
			return fmt.Errorf("claim allocation: %w", err)
		}
		if err := requireExactlyOne(rows, "claim allocation"); err != nil {
			return err
		}

		claimed, err = q.GetPayinAllocation(ctx, allocID)
		if err != nil {
			return fmt.Errorf("reload allocation: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.PayinAllocation{}, err
	}
	observability.IncrementSettlement("allocation", "claimed")
	return claimed, nil
}

// UploadProof attaches evidence of the payer's transfer. Idempotent:
// re-uploading overwrites.
func (s *AllocationService) UploadProof(ctx context.Context, allocID, workerID uuid.UUID, proofURL string) error {
	if proofURL == "" {
		return fmt.Errorf("proof url is required")
	}
	return s.store.RunInTx(ctx, func(q Queries) error {
		alloc, err := q.GetPayinAllocationForUpdate(ctx, allocID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrNotFoundOrWrongState
			}
			return fmt.Errorf("load allocation: %w", err)
		}
		if alloc.Status != domain.TaskStatusClaimed || alloc.ClaimantID == nil || *alloc.ClaimantID != workerID {
			return models.ErrNotFoundOrWrongState
		}
		if !alloc.ExpiresAt.After(time.Now()) {
			return models.ErrExpired
		}

		rows, err := q.SetPayinAllocationProof(ctx, allocID, workerID, proofURL)
		if err != nil {
			return fmt.Errorf("set allocation proof: %w", err)
		}
		return requireExactlyOne(rows, "set allocation proof")
	})
}

// Confirm settles a claimed allocation after the payer's money arrived: the
// collateral freeze is released and the commission credited, all in one
// transaction with the terminal transition.
func (s *AllocationService) Confirm(ctx context.Context, allocID, workerID uuid.UUID) (SettlementResult, error) {
	var result SettlementResult
	err := s.store.RunInTx(ctx, func(q Queries) error {
		alloc, err := q.GetPayinAllocationForUpdate(ctx, allocID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrNotFoundOrWrongState
			}
			return fmt.Errorf("load allocation: %w", err)
		}
		if alloc.Status != domain.TaskStatusClaimed || alloc.ClaimantID == nil || *alloc.ClaimantID != workerID {
			return models.ErrNotFoundOrWrongState
		}
		if !alloc.ExpiresAt.After(time.Now()) {
			return models.ErrExpired
		}
		if alloc.ProofURL == nil || *alloc.ProofURL == "" {
			return models.ErrProofMissing
		}

		rows, err := q.CompletePayinAllocation(ctx, allocID, workerID, time.Now())
		if err != nil {
			return fmt.Errorf("complete allocation: %w", err)
		}
		if err := requireExactlyOne(rows, "complete allocation"); err != nil {
			return err
		}

		if _, err := unfreezeFunds(ctx, q, workerID, alloc.AmountCents, alloc.OrderNo,
			fmt.Sprintf("release collateral for collection task %s", alloc.OrderNo)); err != nil {
			return err
		}
		worker, err := creditFunds(ctx, q, workerID, alloc.CommissionCents, domain.RecordKindTaskReward,
			alloc.OrderNo, fmt.Sprintf("collection task commission (order %s)", alloc.OrderNo))
		if err != nil {
			return err
		}

		result = SettlementResult{
			OrderID:     alloc.ID,
			OrderNo:     alloc.OrderNo,
			Reward:      alloc.CommissionCents,
			NewBalance:  worker.AvailableCents,
			FrozenCents: worker.FrozenCents,
		}
		return nil
	})
	if err != nil {
		observability.IncrementSettlement("allocation", "failed")
		return SettlementResult{}, err
	}
	observability.IncrementSettlement("allocation", "completed")
	zap.L().Info("allocation confirmed",
		zap.String("allocation_id", result.OrderID.String()),
		zap.String("worker_id", workerID.String()),
		zap.String("commission", result.Reward.String()),
	)
	return result, nil
}

// Assigned lists the worker's allocations, newest first.
func (s *AllocationService) Assigned(ctx context.Context, workerID uuid.UUID, limit, offset int32) ([]models.PayinAllocation, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.Queries().ListAssignedAllocations(ctx, workerID, limit, offset)
}
