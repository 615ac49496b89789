package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/gigpay/taskpay/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const allocationColumns = `id, order_no, amount_cents, commission_cents, status, claimant_id,
	collection_account_id, proof_url, expires_at, claimed_at, completed_at, created_at, updated_at`

func scanAllocation(row pgx.Row) (models.PayinAllocation, error) {
	var a models.PayinAllocation
	err := row.Scan(&a.ID, &a.OrderNo, &a.AmountCents, &a.CommissionCents, &a.Status, &a.ClaimantID,
		&a.CollectionAccountID, &a.ProofURL, &a.ExpiresAt, &a.ClaimedAt, &a.CompletedAt, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func collectAllocations(rows pgx.Rows) ([]models.PayinAllocation, error) {
	defer rows.Close()
	var allocs []models.PayinAllocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		allocs = append(allocs, a)
	}
	return allocs, rows.Err()
}

func (q *Queries) GetPayinAllocation(ctx context.Context, id uuid.UUID) (models.PayinAllocation, error) {
	return scanAllocation(q.db.QueryRow(ctx,
		`SELECT `+allocationColumns+` FROM payin_allocations WHERE id = $1`, id))
}

func (q *Queries) GetPayinAllocationForUpdate(ctx context.Context, id uuid.UUID) (models.PayinAllocation, error) {
	return scanAllocation(q.db.QueryRow(ctx,
		`SELECT `+allocationColumns+` FROM payin_allocations WHERE id = $1 FOR UPDATE`, id))
}

func (q *Queries) HasActiveAllocationClaim(ctx context.Context, workerID uuid.UUID) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM payin_allocations WHERE claimant_id = $1 AND status = 'claimed'
		)`, workerID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active allocation claim: %w", err)
	}
	return exists, nil
}

func (q *Queries) ClaimPayinAllocation(ctx context.Context, allocID, workerID, accountID uuid.UUID, now time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE payin_allocations
		SET status = 'claimed', claimant_id = $2, collection_account_id = $3, claimed_at = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND expires_at > $4`,
		allocID, workerID, accountID, now)
	if err != nil {
		return 0, fmt.Errorf("claim allocation: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) SetPayinAllocationProof(ctx context.Context, allocID, workerID uuid.UUID, proofURL string) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE payin_allocations
		SET proof_url = $3, updated_at = NOW()
		WHERE id = $1 AND claimant_id = $2 AND status = 'claimed'`,
		allocID, workerID, proofURL)
	if err != nil {
		return 0, fmt.Errorf("set allocation proof: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) CompletePayinAllocation(ctx context.Context, allocID, workerID uuid.UUID, now time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE payin_allocations
		SET status = 'completed', completed_at = $3, updated_at = NOW()
		WHERE id = $1 AND claimant_id = $2 AND status = 'claimed' AND proof_url IS NOT NULL`,
		allocID, workerID, now)
	if err != nil {
		return 0, fmt.Errorf("complete allocation: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) MarkPayinAllocationExpired(ctx context.Context, allocID uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE payin_allocations
		SET status = 'expired', updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'claimed')`,
		allocID)
	if err != nil {
		return 0, fmt.Errorf("expire allocation: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) ListAssignedAllocations(ctx context.Context, workerID uuid.UUID, limit, offset int32) ([]models.PayinAllocation, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+allocationColumns+`
		FROM payin_allocations
		WHERE claimant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		workerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list assigned allocations: %w", err)
	}
	return collectAllocations(rows)
}

func (q *Queries) ListExpiredAllocations(ctx context.Context, now time.Time, limit int32) ([]models.PayinAllocation, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+allocationColumns+`
		FROM payin_allocations
		WHERE status IN ('pending', 'claimed') AND expires_at <= $1
		ORDER BY expires_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`,
		now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired allocations: %w", err)
	}
	return collectAllocations(rows)
}
