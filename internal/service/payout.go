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

// PayoutService governs the claim -> upload proof -> complete lifecycle of
// disbursement orders. Claiming has no balance effect; the reward is
// credited on completion.
type PayoutService struct {
	store Store
}

func NewPayoutService(store Store) *PayoutService {
	return &PayoutService{store: store}
}

// SettlementResult is returned by the completing operations of all task
// flows: the finished order reference plus the worker's refreshed balance.
type SettlementResult struct {
	OrderID     uuid.UUID    `json:"order_id"`
	OrderNo     string       `json:"order_no"`
	Reward      domain.Cents `json:"reward_cents"`
	NewBalance  domain.Cents `json:"new_balance_cents"`
	FrozenCents domain.Cents `json:"frozen_cents"`
}

// Claim assigns a pending, unexpired order to the worker. A worker may hold
// at most one claimed payout order; the conditional update plus the partial
// unique index make the check-then-claim race-free.
func (s *PayoutService) Claim(ctx context.Context, orderID, workerID uuid.UUID) (models.PayoutOrder, error) {
	var claimed models.PayoutOrder
	err := s.store.RunInTx(ctx, func(q Queries) error {
		busy, err := q.HasActivePayoutClaim(ctx, workerID)
		if err != nil {
			return fmt.Errorf("check active claim: %w", err)
		}
		if busy {
			return models.ErrAlreadyHasActiveTask
		}

		order, err := q.GetPayoutOrderForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrNotFoundOrWrongState
			}
			return fmt.Errorf("load payout order: %w", err)
		}
		if order.Status != domain.TaskStatusPending {
			return models.ErrNotFoundOrWrongState
		}
		now := time.Now()
		if !order.ExpiresAt.After(now) {
			// Lazy expiry: flip the order on access instead of waiting
			// for the sweeper.
			if _, err := q.MarkPayoutOrderExpired(ctx, orderID); err != nil {
				return fmt.Errorf("expire payout order: %w", err)
			}
			return models.ErrExpired
		}

		rows, err := q.ClaimPayoutOrder(ctx, orderID, workerID, now)
		if err != nil {
			return fmt.Errorf("claim payout order: %w", err)
		}
		if err := requireExactlyOne(rows, "claim payout order"); err != nil {
			return err
		}

		claimed, err = q.GetPayoutOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("reload payout order: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.PayoutOrder{}, err
	}
	observability.IncrementSettlement("payout", "claimed")
	return claimed, nil
}

// UploadProof attaches the proof-of-payment artifact. Idempotent:
// re-uploading overwrites.
func (s *PayoutService) UploadProof(ctx context.Context, orderID, workerID uuid.UUID, proofURL string) error {
	if proofURL == "" {
		return fmt.Errorf("proof url is required")
	}
	return s.store.RunInTx(ctx, func(q Queries) error {
		order, err := q.GetPayoutOrderForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrNotFoundOrWrongState
			}
			return fmt.Errorf("load payout order: %w", err)
		}
		if order.Status != domain.TaskStatusClaimed || order.ClaimantID == nil || *order.ClaimantID != workerID {
			return models.ErrNotFoundOrWrongState
		}
		if !order.ExpiresAt.After(time.Now()) {
			return models.ErrExpired
		}

		rows, err := q.SetPayoutOrderProof(ctx, orderID, workerID, proofURL)
		if err != nil {
			return fmt.Errorf("set payout proof: %w", err)
		}
		return requireExactlyOne(rows, "set payout proof")
	})
}

// Complete finishes a claimed order with proof attached: the commission is
// credited as a task reward and the order reaches its terminal state, both
// inside one transaction.
func (s *PayoutService) Complete(ctx context.Context, orderID, workerID uuid.UUID) (SettlementResult, error) {
	var result SettlementResult
	err := s.store.RunInTx(ctx, func(q Queries) error {
		order, err := q.GetPayoutOrderForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrNotFoundOrWrongState
			}
			return fmt.Errorf("load payout order: %w", err)
		}
		if order.Status != domain.TaskStatusClaimed || order.ClaimantID == nil || *order.ClaimantID != workerID {
			return models.ErrNotFoundOrWrongState
		}
		if order.ProofURL == nil || *order.ProofURL == "" {
			return models.ErrProofMissing
		}

		rows, err := q.CompletePayoutOrder(ctx, orderID, workerID, time.Now())
		if err != nil {
			return fmt.Errorf("complete payout order: %w", err)
		}
		if err := requireExactlyOne(rows, "complete payout order"); err != nil {
			return err
		}

		worker, err := creditFunds(ctx, q, workerID, order.CommissionCents, domain.RecordKindTaskReward,
			order.OrderNo, fmt.Sprintf("payout task reward (order %s)", order.OrderNo))
		if err != nil {
			return err
		}

		result = SettlementResult{
			OrderID:     order.ID,
			OrderNo:     order.OrderNo,
			Reward:      order.CommissionCents,
			NewBalance:  worker.AvailableCents,
			FrozenCents: worker.FrozenCents,
		}
		return nil
	})
	if err != nil {
		observability.IncrementSettlement("payout", "failed")
		return SettlementResult{}, err
	}
	observability.IncrementSettlement("payout", "completed")
	zap.L().Info("payout order completed",
		zap.String("order_id", result.OrderID.String()),
		zap.String("worker_id", workerID.String()),
		zap.String("reward", result.Reward.String()),
	)
	return result, nil
}

// Available lists claimable orders, oldest first.
func (s *PayoutService) Available(ctx context.Context, limit, offset int32) ([]models.PayoutOrder, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.Queries().ListAvailablePayoutOrders(ctx, time.Now(), limit, offset)
}

// Claimed lists the worker's currently claimed orders (at most one by
// invariant, returned as a slice for the listing contract).
func (s *PayoutService) Claimed(ctx context.Context, workerID uuid.UUID) ([]models.PayoutOrder, error) {
	return s.store.Queries().ListClaimedPayoutOrders(ctx, workerID)
}
