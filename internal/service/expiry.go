package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gigpay/taskpay/internal/domain"
	"github.com/gigpay/taskpay/internal/observability"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExpiryService sweeps orders past their deadline into terminal states and
// returns any collateral they still hold. Each order is handled in its own
// transaction so one poisoned row cannot stall the whole sweep.
type ExpiryService struct {
	store     Store
	batchSize int32
}

func NewExpiryService(store Store, batchSize int32) *ExpiryService {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ExpiryService{store: store, batchSize: batchSize}
}

// SweepResult counts the orders expired in one pass.
type SweepResult struct {
	PayoutOrders int
	Allocations  int
	PayinOrders  int
}

// Sweep runs one expiry pass over all three order kinds.
func (s *ExpiryService) Sweep(ctx context.Context) (SweepResult, error) {
	now := time.Now()
	var result SweepResult

	payouts, err := s.store.Queries().ListExpiredPayoutOrders(ctx, now, s.batchSize)
	if err != nil {
		return result, fmt.Errorf("list expired payout orders: %w", err)
	}
	for _, order := range payouts {
		if err := s.expirePayout(ctx, order.ID); err != nil {
			zap.L().Error("expire payout order failed",
				zap.String("order_no", order.OrderNo), zap.Error(err))
			continue
		}
		result.PayoutOrders++
	}

	allocs, err := s.store.Queries().ListExpiredAllocations(ctx, now, s.batchSize)
	if err != nil {
		return result, fmt.Errorf("list expired allocations: %w", err)
	}
	for _, alloc := range allocs {
		if err := s.expireAllocation(ctx, alloc.ID); err != nil {
			zap.L().Error("expire allocation failed",
				zap.String("order_no", alloc.OrderNo), zap.Error(err))
			continue
		}
		result.Allocations++
	}

	orders, err := s.store.Queries().ListExpiredPayinOrders(ctx, now, s.batchSize)
	if err != nil {
		return result, fmt.Errorf("list expired payin orders: %w", err)
	}
	for _, order := range orders {
		if err := s.expirePayinOrder(ctx, order.ID); err != nil {
			zap.L().Error("close expired payin order failed",
				zap.String("order_no", order.OrderNo), zap.Error(err))
			continue
		}
		result.PayinOrders++
	}

	if n := result.PayoutOrders + result.Allocations + result.PayinOrders; n > 0 {
		observability.IncrementSettlement("expiry", "swept")
		zap.L().Info("expiry sweep",
			zap.Int("payout_orders", result.PayoutOrders),
			zap.Int("allocations", result.Allocations),
			zap.Int("payin_orders", result.PayinOrders),
		)
	}
	return result, nil
}

func (s *ExpiryService) expirePayout(ctx context.Context, orderID uuid.UUID) error {
	return s.store.RunInTx(ctx, func(q Queries) error {
		order, err := q.GetPayoutOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if domain.IsTerminalTaskStatus(order.Status) || order.ExpiresAt.After(time.Now()) {
			return nil
		}
		rows, err := q.MarkPayoutOrderExpired(ctx, orderID)
		if err != nil {
			return err
		}
		return requireExactlyOne(rows, "expire payout order")
	})
}

func (s *ExpiryService) expireAllocation(ctx context.Context, allocID uuid.UUID) error {
	return s.store.RunInTx(ctx, func(q Queries) error {
		alloc, err := q.GetPayinAllocationForUpdate(ctx, allocID)
		if err != nil {
			return err
		}
		if domain.IsTerminalTaskStatus(alloc.Status) || alloc.ExpiresAt.After(time.Now()) {
			return nil
		}
		rows, err := q.MarkPayinAllocationExpired(ctx, allocID)
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "expire allocation"); err != nil {
			return err
		}
		// A claimed allocation holds frozen collateral that must come back.
		if alloc.Status == domain.TaskStatusClaimed && alloc.ClaimantID != nil {
			_, err = unfreezeFunds(ctx, q, *alloc.ClaimantID, alloc.AmountCents, alloc.OrderNo,
				fmt.Sprintf("release collateral, collection task %s expired", alloc.OrderNo))
			return err
		}
		return nil
	})
}

func (s *ExpiryService) expirePayinOrder(ctx context.Context, orderID uuid.UUID) error {
	return s.store.RunInTx(ctx, func(q Queries) error {
		order, err := q.GetPayinOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if domain.IsTerminalPayinStatus(order.Status) || order.ExpiresAt.After(time.Now()) {
			return nil
		}
		rows, err := q.SetPayinOrderStatus(ctx, orderID, domain.PayinStatusClosed, nil)
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "close payin order"); err != nil {
			return err
		}
		_, err = unfreezeFunds(ctx, q, order.WorkerID, order.AmountCents, order.OrderNo,
			fmt.Sprintf("release collateral, collection order %s expired", order.OrderNo))
		return err
	})
}
