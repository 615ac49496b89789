package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrNotFound     = errors.New("idempotency key not found")
	ErrHashMismatch = errors.New("idempotency key body mismatch")
	ErrInProgress   = errors.New("idempotency key in progress")
)

const redisKeyPrefix = "idempotency"

type Record struct {
	Key         string
	RequestHash string
	Status      int
	Body        []byte
	ContentType string
	ServedBy    string
}

// Store replays responses for repeated mutation requests. Postgres is the
// source of truth; Redis fronts it as a read-through cache.
type Store struct {
	redis redis.Cmdable
	db    *pgxpool.Pool
	ttl   time.Duration
}

func NewStore(redis redis.Cmdable, db *pgxpool.Pool, ttl time.Duration) *Store {
	return &Store{redis: redis, db: db, ttl: ttl}
}

type cacheEnvelope struct {
	Key         string `json:"key"`
	Hash        string `json:"hash"`
	Status      int    `json:"status"`
	Body        []byte `json:"body"`
	ContentType string `json:"content_type"`
}

type keyRow struct {
	Key         string
	RequestHash string
	Status      int32
	Body        []byte
	ContentType string
	InProgress  bool
}

func (s *Store) Lookup(ctx context.Context, key, requestHash string) (*Record, error) {
	if s.redis != nil {
		val, err := s.redis.Get(ctx, redisKey(key)).Result()
		if err == nil {
			var env cacheEnvelope
			if json.Unmarshal([]byte(val), &env) == nil {
				if env.Hash != requestHash {
					return nil, ErrHashMismatch
				}
				return &Record{
					Key:         env.Key,
					RequestHash: env.Hash,
					Status:      env.Status,
					Body:        env.Body,
					ContentType: env.ContentType,
					ServedBy:    "redis",
				}, nil
			}
		} else if err != redis.Nil {
			zap.L().Warn("redis idempotency lookup failed", zap.Error(err))
		}
	}

	var row keyRow
	err := s.db.QueryRow(ctx, `
		SELECT idempotency_key, request_hash, COALESCE(response_status, 0),
		       COALESCE(response_body, ''::bytea), COALESCE(content_type, ''), in_progress
		FROM idempotency_keys
		WHERE idempotency_key = $1`,
		key).Scan(&row.Key, &row.RequestHash, &row.Status, &row.Body, &row.ContentType, &row.InProgress)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}

	if row.RequestHash != requestHash {
		return nil, ErrHashMismatch
	}
	if row.InProgress {
		return nil, ErrInProgress
	}
	rec := Record{
		Key:         row.Key,
		RequestHash: row.RequestHash,
		Status:      int(row.Status),
		Body:        row.Body,
		ContentType: row.ContentType,
		ServedBy:    "postgres",
	}
	s.cache(ctx, rec)
	return &rec, nil
}

// Reserve claims the key for the current request. False means another
// request holds or held it.
func (s *Store) Reserve(ctx context.Context, key, requestHash, method, path string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO idempotency_keys (idempotency_key, request_hash, method, path, in_progress)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		key, requestHash, method, path)
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) Finalize(ctx context.Context, key, requestHash string, status int, body []byte, contentType string) (*Record, error) {
	var row keyRow
	err := s.db.QueryRow(ctx, `
		UPDATE idempotency_keys
		SET response_status = $3, response_body = $4, content_type = $5,
		    in_progress = FALSE, updated_at = NOW()
		WHERE idempotency_key = $1 AND request_hash = $2
		RETURNING idempotency_key, request_hash, response_status, response_body, content_type, in_progress`,
		key, requestHash, status, body, contentType).
		Scan(&row.Key, &row.RequestHash, &row.Status, &row.Body, &row.ContentType, &row.InProgress)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("finalize idempotency key: %w", err)
	}

	rec := &Record{
		Key:         row.Key,
		RequestHash: row.RequestHash,
		Status:      int(row.Status),
		Body:        row.Body,
		ContentType: row.ContentType,
		ServedBy:    "postgres",
	}
	s.cache(ctx, *rec)
	return rec, nil
}

// WaitForCompletion polls until a concurrent holder of the key finalizes.
func (s *Store) WaitForCompletion(ctx context.Context, key, requestHash string) (*Record, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		rec, err := s.Lookup(ctx, key, requestHash)
		if err == nil {
			return rec, nil
		}
		if errors.Is(err, ErrInProgress) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-ticker.C:
				continue
			}
		}
		return nil, err
	}
}

func (s *Store) cache(ctx context.Context, rec Record) {
	if s.redis == nil {
		return
	}
	env := cacheEnvelope{
		Key:         rec.Key,
		Hash:        rec.RequestHash,
		Status:      rec.Status,
		Body:        rec.Body,
		ContentType: rec.ContentType,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		zap.L().Warn("marshal idempotency cache", zap.Error(err))
		return
	}
	if err := s.redis.Set(ctx, redisKey(rec.Key), payload, s.ttl).Err(); err != nil {
		zap.L().Warn("redis idempotency cache set failed", zap.Error(err))
	}
}

func redisKey(key string) string {
	return fmt.Sprintf("%s:%s", redisKeyPrefix, key)
}
