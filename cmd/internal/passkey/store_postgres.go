package passkey

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists users and credentials in PostgreSQL.
//
// Schema (managed externally, not by this package):
//
//	CREATE TABLE humanpass.users (
//	    id         text PRIMARY KEY,
//	    created_at timestamptz NOT NULL
//	);
//
//	CREATE TABLE humanpass.credentials (
//	    credential_id text PRIMARY KEY,
//	    user_id       text NOT NULL REFERENCES humanpass.users (id),
//	    credential    bytea NOT NULL,
//	    created_at    timestamptz NOT NULL
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
			return errors.New("passkey: empty schema")
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
		return nil, errors.New("passkey: nil db pool")
	}
	return st, nil
}

func (s *PostgresStore) usersTable() string {
	return pgx.Identifier{s.schema, "users"}.Sanitize()
}

func (s *PostgresStore) credentialsTable() string {
	return pgx.Identifier{s.schema, "credentials"}.Sanitize()
}

func (s *PostgresStore) CreateUser(ctx context.Context, u User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.usersTable()+` (id, created_at) VALUES ($1, $2)
		 ON CONFLICT (id) DO NOTHING`,
		u.ID, u.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	var out User
	err := s.pool.QueryRow(ctx,
		`SELECT id, created_at FROM `+s.usersTable()+` WHERE id = $1`, id,
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return out, nil
}

func (s *PostgresStore) CreateCredential(ctx context.Context, c Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.credentialsTable()+` (credential_id, user_id, credential, created_at)
		 VALUES ($1, $2, $3, $4)`,
		c.CredentialID, c.UserID, c.CredentialJSON, c.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetCredential(ctx context.Context, credentialID string) (Credential, error) {
	if err := ctx.Err(); err != nil {
		return Credential{}, err
	}
	var out Credential
	err := s.pool.QueryRow(ctx,
		`SELECT credential_id, user_id, credential, created_at
		   FROM `+s.credentialsTable()+` WHERE credential_id = $1`,
		credentialID,
	).Scan(&out.CredentialID, &out.UserID, &out.CredentialJSON, &out.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credential{}, ErrNotFound
		}
		return Credential{}, err
	}
	return out, nil
}

func (s *PostgresStore) ListCredentialsByUser(ctx context.Context, userID string) ([]Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT credential_id, user_id, credential, created_at
		   FROM `+s.credentialsTable()+` WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Credential
	for rows.Next() {
		var c Credential
		if err := rows.Scan(&c.CredentialID, &c.UserID, &c.CredentialJSON, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateCredential(ctx context.Context, c Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.credentialsTable()+` SET credential = $1 WHERE credential_id = $2`,
		c.CredentialJSON, c.CredentialID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
