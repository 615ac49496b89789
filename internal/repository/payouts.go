package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/gigpay/taskpay/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const payoutColumns = `id, order_no, amount_cents, commission_cents, status, claimant_id,
	proof_url, expires_at, claimed_at, completed_at, created_at, updated_at`

func scanPayoutOrder(row pgx.Row) (models.PayoutOrder, error) {
	var o models.PayoutOrder
	err := row.Scan(&o.ID, &o.OrderNo, &o.AmountCents, &o.CommissionCents, &o.Status, &o.ClaimantID,
		&o.ProofURL, &o.ExpiresAt, &o.ClaimedAt, &o.CompletedAt, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func collectPayoutOrders(rows pgx.Rows) ([]models.PayoutOrder, error) {
	defer rows.Close()
	var orders []models.PayoutOrder
	for rows.Next() {
		o, err := scanPayoutOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payout order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (q *Queries) GetPayoutOrder(ctx context.Context, id uuid.UUID) (models.PayoutOrder, error) {
	return scanPayoutOrder(q.db.QueryRow(ctx,
		`SELECT `+payoutColumns+` FROM payout_orders WHERE id = $1`, id))
}

func (q *Queries) GetPayoutOrderForUpdate(ctx context.Context, id uuid.UUID) (models.PayoutOrder, error) {
	return scanPayoutOrder(q.db.QueryRow(ctx,
		`SELECT `+payoutColumns+` FROM payout_orders WHERE id = $1 FOR UPDATE`, id))
}

func (q *Queries) HasActivePayoutClaim(ctx context.Context, workerID uuid.UUID) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM payout_orders WHERE claimant_id = $1 AND status = 'claimed'
		)`, workerID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active payout claim: %w", err)
	}
	return exists, nil
}

func (q *Queries) ClaimPayoutOrder(ctx context.Context, orderID, workerID uuid.UUID, now time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE payout_orders
		SET status = 'claimed', claimant_id = $2, claimed_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND expires_at > $3`,
		orderID, workerID, now)
	if err != nil {
		return 0, fmt.Errorf("claim payout order: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) SetPayoutOrderProof(ctx context.Context, orderID, workerID uuid.UUID, proofURL string) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE payout_orders
		SET proof_url = $3, updated_at = NOW()
		WHERE id = $1 AND claimant_id = $2 AND status = 'claimed'`,
		orderID, workerID, proofURL)
	if err != nil {
		return 0, fmt.Errorf("set payout proof: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) CompletePayoutOrder(ctx context.Context, orderID, workerID uuid.UUID, now time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE payout_orders
		SET status = 'completed', completed_at = $3, updated_at = NOW()
		WHERE id = $1 AND claimant_id = $2 AND status = 'claimed' AND proof_url IS NOT NULL`,
		orderID, workerID, now)
	if err != nil {
		return 0, fmt.Errorf("complete payout order: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) MarkPayoutOrderExpired(ctx context.Context, orderID uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE payout_orders
		SET status = 'expired', updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'claimed')`,
		orderID)
	if err != nil {
		return 0, fmt.Errorf("expire payout order: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) ListAvailablePayoutOrders(ctx context.Context, now time.Time, limit, offset int32) ([]models.PayoutOrder, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+payoutColumns+`
		FROM payout_orders
		WHERE status = 'pending' AND expires_at > $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3`,
		now, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list available payout orders: %w", err)
	}
	return collectPayoutOrders(rows)
}

func (q *Queries) ListClaimedPayoutOrders(ctx context.Context, workerID uuid.UUID) ([]models.PayoutOrder, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+payoutColumns+`
		FROM payout_orders
		WHERE claimant_id = $1 AND status = 'claimed'
		ORDER BY claimed_at DESC`,
		workerID)
	if err != nil {
		return nil, fmt.Errorf("list claimed payout orders: %w", err)
	}
	return collectPayoutOrders(rows)
}

func (q *Queries) ListExpiredPayoutOrders(ctx context.Context, now time.Time, limit int32) ([]models.PayoutOrder, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+payoutColumns+`
		FROM payout_orders
		WHERE status IN ('pending', 'claimed') AND expires_at <= $1
		ORDER BY expires_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`,
		now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired payout orders: %w", err)
	}
	return collectPayoutOrders(rows)
}
