package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresCredentialRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresCredentialRepository returns a Postgres-backed implementation
// over the credential_entries table.
func NewPostgresCredentialRepository(pool *pgxpool.Pool) CredentialRepository {
	return &postgresCredentialRepository{pool: pool}
}

func (r *postgresCredentialRepository) Get(ctx context.Context, scope string, keys ...string) (map[string]string, error) {
	const query = `
        SELECT entry_key, entry_value
        FROM credential_entries
        WHERE scope=$1 AND entry_key = ANY($2)
          AND (retain_until IS NULL OR retain_until > NOW())`

	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx, query, scope, keys)
	if err != nil {
		return nil, fmt.Errorf("select credential entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, val string
		if err := rows.Scan(&key, &val); err != nil {
			return nil, err
		}
		out[key] = val
	}
	return out, rows.Err()
}

func (r *postgresCredentialRepository) Put(ctx context.Context, scope string, entries map[string]string, retainUntil time.Time) error {
	const (
		upsert = `
        INSERT INTO credential_entries (scope, entry_key, entry_value, retain_until)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (scope, entry_key)
        DO UPDATE SET entry_value=EXCLUDED.entry_value, retain_until=EXCLUDED.retain_until, updated_at=NOW()`
		retain = `UPDATE credential_entries SET retain_until=$2 WHERE scope=$1`
		prune  = `DELETE FROM credential_entries WHERE retain_until <= NOW()`
	)

	if len(entries) == 0 {
		return nil
	}
	var until *time.Time
	if !retainUntil.IsZero() {
		until = &retainUntil
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		batch.Queue(prune)
		for key, val := range entries {
			batch.Queue(upsert, scope, key, val, until)
		}
		batch.Queue(retain, scope, until)
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert credential entries: %w", err)
		}
		return nil
	})
}

func (r *postgresCredentialRepository) Delete(ctx context.Context, scope string, keys ...string) error {
	const query = `
        DELETE FROM credential_entries
        WHERE scope=$1 AND entry_key = ANY($2)`

	if len(keys) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, query, scope, keys)
	return err
}
