package repository

import (
	"context"
	"fmt"

	"github.com/gigpay/taskpay/internal/domain"
	"github.com/gigpay/taskpay/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const workerColumns = `id, available_cents, frozen_cents, created_at, updated_at`

func scanWorker(row pgx.Row) (models.Worker, error) {
	var w models.Worker
	err := row.Scan(&w.ID, &w.AvailableCents, &w.FrozenCents, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

func (q *Queries) GetWorker(ctx context.Context, id uuid.UUID) (models.Worker, error) {
	return scanWorker(q.db.QueryRow(ctx,
		`SELECT `+workerColumns+` FROM workers WHERE id = $1`, id))
}

func (q *Queries) GetWorkerForUpdate(ctx context.Context, id uuid.UUID) (models.Worker, error) {
	return scanWorker(q.db.QueryRow(ctx,
		`SELECT `+workerColumns+` FROM workers WHERE id = $1 FOR UPDATE`, id))
}

// FreezeWorkerFunds applies the guarded available -> frozen move. A guard
// miss returns pgx.ErrNoRows from the empty RETURNING set.
func (q *Queries) FreezeWorkerFunds(ctx context.Context, id uuid.UUID, amount domain.Cents) (models.Worker, error) {
	return scanWorker(q.db.QueryRow(ctx, `
		UPDATE workers
		SET available_cents = available_cents - $2,
		    frozen_cents = frozen_cents + $2,
		    updated_at = NOW()
		WHERE id = $1 AND available_cents >= $2
		RETURNING `+workerColumns,
		id, amount))
}

func (q *Queries) UnfreezeWorkerFunds(ctx context.Context, id uuid.UUID, amount domain.Cents) (models.Worker, error) {
	return scanWorker(q.db.QueryRow(ctx, `
		UPDATE workers
		SET available_cents = available_cents + $2,
		    frozen_cents = frozen_cents - $2,
		    updated_at = NOW()
		WHERE id = $1 AND frozen_cents >= $2
		RETURNING `+workerColumns,
		id, amount))
}

func (q *Queries) CreditWorkerFunds(ctx context.Context, id uuid.UUID, amount domain.Cents) (models.Worker, error) {
	return scanWorker(q.db.QueryRow(ctx, `
		UPDATE workers
		SET available_cents = available_cents + $2,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+workerColumns,
		id, amount))
}

// CreateWorker inserts a worker with a zero balance pair.
func (q *Queries) CreateWorker(ctx context.Context, id uuid.UUID) (models.Worker, error) {
	w, err := scanWorker(q.db.QueryRow(ctx, `
		INSERT INTO workers (id, available_cents, frozen_cents)
		VALUES ($1, 0, 0)
		RETURNING `+workerColumns,
		id))
	if err != nil {
		return models.Worker{}, fmt.Errorf("create worker: %w", err)
	}
	return w, nil
}
