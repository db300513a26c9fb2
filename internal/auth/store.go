package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	Clients(ctx context.Context) ClientStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
}

// UserStore reads user records. Both lookups return the user with roles and
// role permissions eagerly loaded.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
}

// ClientStore reads machine-client records with permissions eagerly loaded.
type ClientStore interface {
	FindByID(ctx context.Context, id string) (*Client, error)
	FindByClientID(ctx context.Context, clientID string) (*Client, error)
}

// RefreshTokenStore manages refresh-token lifecycle flags.
//
// Create must enforce uniqueness on the record ID and return ErrConflict on
// violation; the engine treats that as a concurrent-rotation race. The
// read-then-write sequences in Rotate are expected to run inside one
// transactional unit so two presentations of the same secret cannot both
// succeed.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	FindByID(ctx context.Context, id string) (*RefreshToken, error)
	FindByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	MarkRevoked(ctx context.Context, id string) error
	MarkReplaced(ctx context.Context, oldID, newID string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}
