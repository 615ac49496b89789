package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/gigpay/taskpay/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const payinOrderColumns = `id, worker_id, account_id, order_no, amount_cents, commission_cents, status,
	way_code, currency, external_order_id, pay_data, transfer_proof_url, expires_at, created_at, updated_at`

func scanPayinOrder(row pgx.Row) (models.PayinOrder, error) {
	var o models.PayinOrder
	err := row.Scan(&o.ID, &o.WorkerID, &o.AccountID, &o.OrderNo, &o.AmountCents, &o.CommissionCents, &o.Status,
		&o.WayCode, &o.Currency, &o.ExternalOrderID, &o.PayData, &o.TransferProofURL, &o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (q *Queries) InsertPayinOrder(ctx context.Context, order models.PayinOrder) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO payin_orders (id, worker_id, account_id, order_no, amount_cents, commission_cents,
			status, way_code, currency, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		order.ID, order.WorkerID, order.AccountID, order.OrderNo, order.AmountCents, order.CommissionCents,
		order.Status, order.WayCode, order.Currency, order.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert payin order: %w", err)
	}
	return nil
}

func (q *Queries) GetPayinOrder(ctx context.Context, id uuid.UUID) (models.PayinOrder, error) {
	return scanPayinOrder(q.db.QueryRow(ctx,
		`SELECT `+payinOrderColumns+` FROM payin_orders WHERE id = $1`, id))
}

func (q *Queries) GetPayinOrderForUpdate(ctx context.Context, id uuid.UUID) (models.PayinOrder, error) {
	return scanPayinOrder(q.db.QueryRow(ctx,
		`SELECT `+payinOrderColumns+` FROM payin_orders WHERE id = $1 FOR UPDATE`, id))
}

func (q *Queries) GetPayinOrderByNoForUpdate(ctx context.Context, orderNo string) (models.PayinOrder, error) {
	return scanPayinOrder(q.db.QueryRow(ctx,
		`SELECT `+payinOrderColumns+` FROM payin_orders WHERE order_no = $1 FOR UPDATE`, orderNo))
}

func (q *Queries) GetActivePayinOrder(ctx context.Context, workerID uuid.UUID) (models.PayinOrder, error) {
	return scanPayinOrder(q.db.QueryRow(ctx, `
		SELECT `+payinOrderColumns+`
		FROM payin_orders
		WHERE worker_id = $1 AND status IN ('created', 'paying')
		ORDER BY created_at DESC
		LIMIT 1`,
		workerID))
}

// SetPayinOrderGatewayResult records the gateway's reference on a live
// order. Terminal rows never match: the success notify can settle the order
// before this write lands, and a settled order must not be dragged back.
func (q *Queries) SetPayinOrderGatewayResult(ctx context.Context, id uuid.UUID, externalOrderID, payData, status string) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE payin_orders
		SET external_order_id = $2,
		    pay_data = NULLIF($3, ''),
		    status = $4,
		    updated_at = NOW()
		WHERE id = $1 AND status IN ('created', 'paying')`,
		id, externalOrderID, payData, status)
	if err != nil {
		return 0, fmt.Errorf("set payin gateway result: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SetPayinOrderStatus transitions a live order; terminal rows never match.
func (q *Queries) SetPayinOrderStatus(ctx context.Context, id uuid.UUID, status string, proofURL *string) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE payin_orders
		SET status = $2,
		    transfer_proof_url = COALESCE($3, transfer_proof_url),
		    updated_at = NOW()
		WHERE id = $1 AND status IN ('created', 'paying')`,
		id, status, proofURL)
	if err != nil {
		return 0, fmt.Errorf("set payin order status: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) ListExpiredPayinOrders(ctx context.Context, now time.Time, limit int32) ([]models.PayinOrder, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+payinOrderColumns+`
		FROM payin_orders
		WHERE status IN ('created', 'paying') AND expires_at <= $1
		ORDER BY expires_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`,
		now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired payin orders: %w", err)
	}
	defer rows.Close()

	var orders []models.PayinOrder
	for rows.Next() {
		o, err := scanPayinOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payin order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
