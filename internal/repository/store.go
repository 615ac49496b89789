package repository

import (
	"context"
	"fmt"

	"github.com/gigpay/taskpay/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the subset of pgx shared by pools and transactions, so every query
// runs identically inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries implements service.Queries against a Postgres handle.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx rebinds the query set to a transaction.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// Store provides query access and transaction scoping over a pgx pool.
type Store struct {
	db      *pgxpool.Pool
	queries *Queries
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{
		db:      db,
		queries: New(db),
	}
}

// Queries returns the non-transactional query set.
func (s *Store) Queries() service.Queries {
	return s.queries
}

// RunInTx executes fn within a database transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(q service.Queries) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(s.queries.WithTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
