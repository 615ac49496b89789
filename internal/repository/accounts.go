package repository

import (
	"context"
	"fmt"

	"github.com/gigpay/taskpay/internal/models"
	"github.com/google/uuid"
)

const accountColumns = `id, worker_id, kind, details, is_active, payin_enabled, created_at, updated_at`

func (q *Queries) GetPaymentAccount(ctx context.Context, id uuid.UUID) (models.PaymentAccount, error) {
	var a models.PaymentAccount
	err := q.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM payment_accounts WHERE id = $1`, id).
		Scan(&a.ID, &a.WorkerID, &a.Kind, &a.Details, &a.IsActive, &a.PayinEnabled, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (q *Queries) GetActivePayinAccounts(ctx context.Context, workerID uuid.UUID, ids []uuid.UUID) ([]models.PaymentAccount, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+accountColumns+`
		FROM payment_accounts
		WHERE worker_id = $1 AND id = ANY($2) AND is_active AND payin_enabled`,
		workerID, ids)
	if err != nil {
		return nil, fmt.Errorf("list payin accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.PaymentAccount
	for rows.Next() {
		var a models.PaymentAccount
		if err := rows.Scan(&a.ID, &a.WorkerID, &a.Kind, &a.Details, &a.IsActive, &a.PayinEnabled,
			&a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan payment account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// CreatePaymentAccount stores a validated account; Details must come from
// models.EncodeAccountDetails.
func (q *Queries) CreatePaymentAccount(ctx context.Context, account models.PaymentAccount) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO payment_accounts (id, worker_id, kind, details, is_active, payin_enabled)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		account.ID, account.WorkerID, account.Kind, account.Details, account.IsActive, account.PayinEnabled)
	if err != nil {
		return fmt.Errorf("create payment account: %w", err)
	}
	return nil
}
