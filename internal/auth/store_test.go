package auth

import (
	"context"
	"time"
)

// fakeStore is an in-memory Store used by the engine and resolver tests.
type fakeStore struct {
	users   fakeUsers
	clients fakeClients
	tokens  fakeTokens
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   fakeUsers{byID: map[string]*User{}},
		clients: fakeClients{byID: map[string]*Client{}},
		tokens:  fakeTokens{byID: map[string]*RefreshToken{}},
	}
}

func (f *fakeStore) Users(context.Context) UserStore                 { return &f.users }
func (f *fakeStore) Clients(context.Context) ClientStore             { return &f.clients }
func (f *fakeStore) RefreshTokens(context.Context) RefreshTokenStore { return &f.tokens }

func (f *fakeStore) addUser(u *User) { f.users.byID[u.ID] = u }

func (f *fakeStore) addClient(c *Client) { f.clients.byID[c.ID] = c }

type fakeUsers struct {
	byID map[string]*User
}

func (f *fakeUsers) FindByID(_ context.Context, id string) (*User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeUsers) UpdateLastLogin(_ context.Context, userID string, at time.Time) error {
	u, ok := f.byID[userID]
	if !ok {
		return ErrNotFound
	}
	t := at
	u.LastLoginAt = &t
	return nil
}

type fakeClients struct {
	byID map[string]*Client
}

func (f *fakeClients) FindByID(_ context.Context, id string) (*Client, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (f *fakeClients) FindByClientID(_ context.Context, clientID string) (*Client, error) {
	for _, c := range f.byID {
		if c.ClientID == clientID {
			return c, nil
		}
	}
	return nil, ErrNotFound
}

type fakeTokens struct {
	byID      map[string]*RefreshToken
	createErr error
}

func (f *fakeTokens) Create(_ context.Context, tok *RefreshToken) error {
	if f.createErr != nil {
		return f.createErr
	}
	if _, exists := f.byID[tok.ID]; exists {
		return ErrConflict
	}
	cp := *tok
	f.byID[tok.ID] = &cp
	return nil
}

func (f *fakeTokens) FindByID(_ context.Context, id string) (*RefreshToken, error) {
	tok, ok := f.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (f *fakeTokens) FindByHash(_ context.Context, tokenHash string) (*RefreshToken, error) {
	for _, tok := range f.byID {
		if tok.TokenHash == tokenHash {
			cp := *tok
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeTokens) MarkRevoked(_ context.Context, id string) error {
	tok, ok := f.byID[id]
	if !ok {
		return ErrNotFound
	}
	tok.Revoked = true
	return nil
}

func (f *fakeTokens) MarkReplaced(_ context.Context, oldID, newID string) error {
	tok, ok := f.byID[oldID]
	if !ok {
		return ErrNotFound
	}
	tok.Revoked = true
	tok.ReplacedBy = &newID
	return nil
}

func (f *fakeTokens) RevokeAllForUser(_ context.Context, userID string) error {
	for _, tok := range f.byID {
		if tok.UserID == userID {
			tok.Revoked = true
		}
	}
	return nil
}

func (f *fakeTokens) TouchLastUsed(_ context.Context, id string, at time.Time) error {
	tok, ok := f.byID[id]
	if !ok {
		return ErrNotFound
	}
	t := at
	tok.LastUsedAt = &t
	return nil
}

func (f *fakeTokens) activeCount() int {
	n := 0
	for _, tok := range f.byID {
		if !tok.Revoked {
			n++
		}
	}
	return n
}
