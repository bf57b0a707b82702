package passkey

import (
	"context"
	"sync"
)

// MemoryStore is the in-process Store used when no database is
// configured and in tests.
type MemoryStore struct {
	mu          sync.Mutex
	users       map[string]User
	credentials map[string]Credential
}

// NewMemoryStore constructs an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]User),
		credentials: make(map[string]Credential),
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, u User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) CreateCredential(ctx context.Context, c Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[c.CredentialID] = cloneCredential(c)
	return nil
}

func (s *MemoryStore) GetCredential(ctx context.Context, credentialID string) (Credential, error) {
	if err := ctx.Err(); err != nil {
		return Credential{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[credentialID]
	if !ok {
		return Credential{}, ErrNotFound
	}
	return cloneCredential(c), nil
}

func (s *MemoryStore) ListCredentialsByUser(ctx context.Context, userID string) ([]Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Credential
	for _, c := range s.credentials {
		if c.UserID == userID {
			out = append(out, cloneCredential(c))
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateCredential(ctx context.Context, c Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.credentials[c.CredentialID]
	if !ok {
		return ErrNotFound
	}
	c.CreatedAt = existing.CreatedAt
	s.credentials[c.CredentialID] = cloneCredential(c)
	return nil
}

func cloneCredential(c Credential) Credential {
	if c.CredentialJSON != nil {
		buf := make([]byte, len(c.CredentialJSON))
		copy(buf, c.CredentialJSON)
		c.CredentialJSON = buf
	}
	return c
}
