package passkey

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports a missing user or credential.
var ErrNotFound = errors.New("passkey: not found")

// User is an account created by a successful registration ceremony.
// There is no profile; the ID is the identity.
type User struct {
	ID        string
	CreatedAt time.Time
}

// Credential is a stored WebAuthn credential. CredentialJSON holds the
// library's own credential encoding verbatim so counter bookkeeping and
// attestation details survive round trips without a column per field.
type Credential struct {
	CredentialID   string
	UserID         string
	CredentialJSON []byte
	CreatedAt      time.Time
}

// Store persists users and their credentials.
type Store interface {
	// CreateUser inserts a user record.
	CreateUser(ctx context.Context, u User) error

	// GetUser fetches a user by ID, or ErrNotFound.
	GetUser(ctx context.Context, id string) (User, error)

	// CreateCredential inserts a credential record.
	CreateCredential(ctx context.Context, c Credential) error

	// GetCredential fetches a credential by its encoded ID, or ErrNotFound.
	GetCredential(ctx context.Context, credentialID string) (Credential, error)

	// ListCredentialsByUser returns all credentials for a user.
	ListCredentialsByUser(ctx context.Context, userID string) ([]Credential, error)

	// UpdateCredential replaces the stored CredentialJSON (sign counter
	// updates after a login). Missing rows are ErrNotFound.
	UpdateCredential(ctx context.Context, c Credential) error
}
