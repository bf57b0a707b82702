package kv

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists TTL key-value entries in PostgreSQL.
//
// Schema (managed externally, not by this package):
//
//	CREATE TABLE humanpass.kv (
//	    key        text PRIMARY KEY,
//	    value      bytea NOT NULL,
//	    expires_at timestamptz
//	);
//
// Expired rows are filtered on read and reaped opportunistically; a row
// past its expiry is indistinguishable from an absent one.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore.
type StoreOption func(*PostgresStore) error

// WithSchema sets the DB schema used by the store (default: "humanpass").
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("kv: empty schema")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "humanpass"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("kv: nil db pool")
	}
	return st, nil
}

func (s *PostgresStore) table() string {
	return pgIdent(s.schema, "kv")
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}

// Get returns the value for key when present and unexpired.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var value []byte
	var expiresAt *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT value, expires_at FROM `+s.table()+` WHERE key = $1`,
		key,
	).Scan(&value, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	if expiresAt != nil && !expiresAt.After(time.Now().UTC()) {
		// Lazy reaping; losing the race to another reaper is fine.
		_, _ = s.pool.Exec(ctx, `DELETE FROM `+s.table()+` WHERE key = $1 AND expires_at <= now()`, key)
		return nil, false, nil
	}

	return value, true, nil
}

// Put upserts key with the given TTL. Last write wins.
func (s *PostgresStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().UTC().Add(ttl)
		expiresAt = &t
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (key, value, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, expiresAt,
	)
	return err
}

// Delete removes key. Idempotent.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM `+s.table()+` WHERE key = $1`, key)
	return err
}
