package auth

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store. It backs local development and the HTTP
// layer's tests; durable deployments use PGStore.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]*User
	clients map[string]*Client
	tokens  map[string]*RefreshToken
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]*User),
		clients: make(map[string]*Client),
		tokens:  make(map[string]*RefreshToken),
	}
}

// SeedUser inserts or replaces a user record.
func (s *MemoryStore) SeedUser(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

// SeedClient inserts or replaces a client record.
func (s *MemoryStore) SeedClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.clients[c.ID] = &cp
}

func (s *MemoryStore) Users(context.Context) UserStore                 { return (*memoryUsers)(s) }
func (s *MemoryStore) Clients(context.Context) ClientStore             { return (*memoryClients)(s) }
func (s *MemoryStore) RefreshTokens(context.Context) RefreshTokenStore { return (*memoryTokens)(s) }

type memoryUsers MemoryStore

func (s *memoryUsers) FindByID(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

func (s *memoryUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryUsers) UpdateLastLogin(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	t := at
	u.LastLoginAt = &t
	return nil
}

type memoryClients MemoryStore

func (s *memoryClients) FindByID(_ context.Context, id string) (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

func (s *memoryClients) FindByClientID(_ context.Context, clientID string) (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		if c.ClientID == clientID {
			out := *c
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

type memoryTokens MemoryStore

func (s *memoryTokens) Create(_ context.Context, tok *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tokens[tok.ID]; exists {
		return ErrConflict
	}
	for _, existing := range s.tokens {
		if existing.TokenHash == tok.TokenHash {
			return ErrConflict
		}
	}
	cp := *tok
	s.tokens[tok.ID] = &cp
	return nil
}

func (s *memoryTokens) FindByID(_ context.Context, id string) (*RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.tokens[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *tok
	return &out, nil
}

func (s *memoryTokens) FindByHash(_ context.Context, tokenHash string) (*RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tok := range s.tokens {
		if tok.TokenHash == tokenHash {
			out := *tok
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryTokens) MarkRevoked(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok {
		return ErrNotFound
	}
	tok.Revoked = true
	return nil
}

func (s *memoryTokens) MarkReplaced(_ context.Context, oldID, newID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[oldID]
	if !ok {
		return ErrNotFound
	}
	tok.Revoked = true
	tok.ReplacedBy = &newID
	return nil
}

func (s *memoryTokens) RevokeAllForUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tok := range s.tokens {
		if tok.UserID == userID {
			tok.Revoked = true
		}
	}
	return nil
}

func (s *memoryTokens) TouchLastUsed(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok {
		return ErrNotFound
	}
	t := at
	tok.LastUsedAt = &t
	return nil
}
