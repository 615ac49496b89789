package repository

import (
	"context"
	"fmt"

	"github.com/gigpay/taskpay/internal/models"
)

// InsertPayoutOrder posts a disbursement task to the shared pool.
func (q *Queries) InsertPayoutOrder(ctx context.Context, order models.PayoutOrder) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO payout_orders (id, order_no, amount_cents, commission_cents, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		order.ID, order.OrderNo, order.AmountCents, order.CommissionCents, order.Status, order.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert payout order: %w", err)
	}
	return nil
}

// InsertPayinAllocation posts a collection task.
func (q *Queries) InsertPayinAllocation(ctx context.Context, alloc models.PayinAllocation) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO payin_allocations (id, order_no, amount_cents, commission_cents, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		alloc.ID, alloc.OrderNo, alloc.AmountCents, alloc.CommissionCents, alloc.Status, alloc.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert payin allocation: %w", err)
	}
	return nil
}
