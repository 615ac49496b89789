package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

func (q *Queries) GetSettingBool(ctx context.Context, key string) (bool, error) {
	var value bool
	err := q.db.QueryRow(ctx,
		`SELECT value::boolean FROM system_settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting upserts a system setting.
func (q *Queries) SetSetting(ctx context.Context, key, value string) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO system_settings (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}
