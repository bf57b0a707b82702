package link

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists links in PostgreSQL.
//
// Schema (managed externally, not by this package):
//
//	CREATE TABLE humanpass.links (
//	    id         text PRIMARY KEY,
//	    user_id    text NOT NULL,
//	    short_code text NOT NULL UNIQUE,
//	    label      text,
//	    created_at timestamptz NOT NULL
//	);
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
			return errors.New("link: empty schema")
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
		return nil, errors.New("link: nil db pool")
	}
	return st, nil
}

func (s *PostgresStore) table() string {
	return pgIdent(s.schema, "links")
}

// CreateWithCleanup runs the retention sweep and the insert in one
// transaction so readers observe both effects or neither.
func (s *PostgresStore) CreateWithCleanup(ctx context.Context, l Link, cutoff time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM `+s.table()+` WHERE created_at < $1`, cutoff,
	); err != nil {
		return err
	}

	var label *string
	if l.Label != "" {
		label = &l.Label
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO `+s.table()+` (id, user_id, short_code, label, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		l.ID, l.UserID, l.ShortCode, label, l.CreatedAt,
	); err != nil {
		if pgIsUniqueViolation(err) {
			return ErrDuplicateCode
		}
		return err
	}

	return tx.Commit(ctx)
}

// GetByShortCode fetches a link by short code.
func (s *PostgresStore) GetByShortCode(ctx context.Context, shortCode string) (Link, error) {
	if err := ctx.Err(); err != nil {
		return Link{}, err
	}

	var out Link
	var label *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, short_code, label, created_at
		   FROM `+s.table()+` WHERE short_code = $1`,
		shortCode,
	).Scan(&out.ID, &out.UserID, &out.ShortCode, &label, &out.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Link{}, ErrNotFound
		}
		return Link{}, err
	}
	if label != nil {
		out.Label = *label
	}
	return out, nil
}

// ListByUser returns the user's links, newest first.
func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, short_code, label, created_at
		   FROM `+s.table()+`
		  WHERE user_id = $1
		  ORDER BY created_at DESC
		  LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Link
	for rows.Next() {
		var l Link
		var label *string
		if err := rows.Scan(&l.ID, &l.UserID, &l.ShortCode, &label, &l.CreatedAt); err != nil {
			return nil, err
		}
		if label != nil {
			l.Label = *label
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// UpdateLabel sets the label scoped to (short_code, user_id). Zero rows
// affected is not an error by contract.
func (s *PostgresStore) UpdateLabel(ctx context.Context, shortCode, userID, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+` SET label = $1 WHERE short_code = $2 AND user_id = $3`,
		label, shortCode, userID,
	)
	return err
}

// Count returns the total number of stored links.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM `+s.table()).Scan(&n)
	return n, err
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}

func pgIsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505"
}
