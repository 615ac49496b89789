package repository

import (
	"context"
	"fmt"

	"github.com/gigpay/taskpay/internal/domain"
	"github.com/gigpay/taskpay/internal/models"
	"github.com/google/uuid"
)

func (q *Queries) InsertLedgerRecord(ctx context.Context, rec models.LedgerRecord) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO ledger_records (worker_id, kind, amount_cents, balance_after_cents, related_order_ref, description)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.WorkerID, rec.Kind, rec.AmountCents, rec.BalanceAfterCents, rec.RelatedOrderRef, rec.Description)
	if err != nil {
		return fmt.Errorf("insert ledger record: %w", err)
	}
	return nil
}

func (q *Queries) ListLedgerRecords(ctx context.Context, workerID uuid.UUID, limit, offset int32) ([]models.LedgerRecord, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, worker_id, kind, amount_cents, balance_after_cents, related_order_ref, description, created_at
		FROM ledger_records
		WHERE worker_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3`,
		workerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list ledger records: %w", err)
	}
	defer rows.Close()

	var records []models.LedgerRecord
	for rows.Next() {
		var r models.LedgerRecord
		if err := rows.Scan(&r.ID, &r.WorkerID, &r.Kind, &r.AmountCents, &r.BalanceAfterCents,
			&r.RelatedOrderRef, &r.Description, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (q *Queries) SumLedgerAmounts(ctx context.Context, workerID uuid.UUID) (domain.Cents, int, error) {
	var (
		sum   domain.Cents
		count int
	)
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0), COUNT(*)
		FROM ledger_records
		WHERE worker_id = $1`,
		workerID).Scan(&sum, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("sum ledger records: %w", err)
	}
	return sum, count, nil
}
