package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"credence.dev/internal/ids"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 14 * 24 * time.Hour

	refreshSecretBytes = 32
)

// Metrics receives session lifecycle events. Implementations must be safe
// for concurrent use.
type Metrics interface {
	LoginAttempt(result string)
	TokenRotated()
	ReuseDetected()
}

type nopMetrics struct{}

func (nopMetrics) LoginAttempt(string) {}
func (nopMetrics) TokenRotated()       {}
func (nopMetrics) ReuseDetected()      {}

// Service orchestrates the credential and session lifecycle: login, refresh
// rotation, logout, and client-credentials issuance. It is stateless between
// calls; all durable state lives in the Store.
type Service struct {
	store  Store
	hasher SecretHasher
	codec  *TokenCodec

	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	logger     *slog.Logger
	metrics    Metrics
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithAccessTTL configures access-token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl <= 0 {
			return fmt.Errorf("%w: access ttl must be greater than zero", ErrInvalidConfig)
		}
		s.accessTTL = ttl
		return nil
	}
}

// WithRefreshTTL configures refresh-token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl <= 0 {
			return fmt.Errorf("%w: refresh ttl must be greater than zero", ErrInvalidConfig)
		}
		s.refreshTTL = ttl
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithLogger sets the structured logger for lifecycle events. Secrets and
// raw tokens never reach the log.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// WithMetrics sets the metrics sink for lifecycle events.
func WithMetrics(m Metrics) ServiceOption {
	return func(s *Service) error {
		if m != nil {
			s.metrics = m
		}
		return nil
	}
}

// NewService constructs the session lifecycle engine.
func NewService(store Store, hasher SecretHasher, codec *TokenCodec, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if codec == nil {
		return nil, fmt.Errorf("%w: token codec is required", ErrInvalidConfig)
	}
	svc := &Service{
		store:      store,
		hasher:     hasher,
		codec:      codec,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:    nopMetrics{},
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// TokenPair carries an access token and, for user sessions, the opaque
// refresh secret with its token ID. The raw refresh secret is returned
// exactly once and never stored in plaintext anywhere.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	RefreshTokenID   string    `json:"refresh_jti,omitempty"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitzero"`
}

// LoginResult is the outcome of a successful login or rotation.
type LoginResult struct {
	User   *User
	Tokens TokenPair
}

// Login authenticates a user by email and password and opens a session.
// Unknown identifier, wrong password, and disabled account all fail with the
// same ErrUnauthorized so callers cannot enumerate accounts.
func (s *Service) Login(ctx context.Context, email, password string, meta RequestMeta) (LoginResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		s.metrics.LoginAttempt("denied")
		return LoginResult{}, ErrUnauthorized
	}
	s.logger.Info("login attempt", "email", email, "ip", meta.IP)

	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.LoginAttempt("denied")
			return LoginResult{}, ErrUnauthorized
		}
		return LoginResult{}, err
	}
	ok, err := s.hasher.Verify(password, user.HashedPassword)
	if err != nil || !ok {
		s.metrics.LoginAttempt("denied")
		return LoginResult{}, ErrUnauthorized
	}
	if !user.IsActive {
		s.metrics.LoginAttempt("denied")
		return LoginResult{}, ErrUnauthorized
	}

	now := s.now().UTC()
	if err := s.store.Users(ctx).UpdateLastLogin(ctx, user.ID, now); err != nil {
		return LoginResult{}, err
	}

	pair, err := s.mintUserTokens(ctx, user, meta)
	if err != nil {
		return LoginResult{}, err
	}

	s.metrics.LoginAttempt("ok")
	s.logger.Info("login successful", "user_id", user.ID, "refresh_jti", pair.RefreshTokenID)
	return LoginResult{User: user, Tokens: pair}, nil
}

// Rotate exchanges a refresh token for its successor, single-use. The stored
// record is located by token ID when presented (O(1)), else by secret hash.
//
// Any presentation of a dead token — revoked, expired, or hash-mismatched —
// is treated as a theft signal: every refresh token of that owner is revoked
// before ErrRefreshInvalid is returned. An unknown token fails with no side
// effects, since there is no owner to protect.
func (s *Service) Rotate(ctx context.Context, rawSecret, tokenID string, meta RequestMeta) (LoginResult, error) {
	rawSecret = strings.TrimSpace(rawSecret)
	if rawSecret == "" {
		return LoginResult{}, ErrRefreshInvalid
	}

	tokens := s.store.RefreshTokens(ctx)
	var (
		rec *RefreshToken
		err error
	)
	if tokenID != "" {
		rec, err = tokens.FindByID(ctx, tokenID)
	} else {
		rec, err = tokens.FindByHash(ctx, HashRefreshSecret(rawSecret))
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, ErrRefreshInvalid
		}
		return LoginResult{}, err
	}

	now := s.now().UTC()
	if rec.Revoked || !now.Before(rec.ExpiresAt) {
		return LoginResult{}, s.revokeFamily(ctx, rec, "dead token presented")
	}
	if !secureCompareHash(rec.TokenHash, rawSecret) {
		return LoginResult{}, s.revokeFamily(ctx, rec, "hash mismatch")
	}

	user, err := s.store.Users(ctx).FindByID(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, ErrRefreshInvalid
		}
		return LoginResult{}, err
	}

	// Permissions are re-resolved from live state; the old token's snapshot
	// is never reused.
	pair, newRec, err := s.issueUserSession(ctx, user, meta)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			// Concurrent rotation of the same secret lost the insert race.
			return LoginResult{}, ErrRefreshInvalid
		}
		return LoginResult{}, err
	}
	if err := tokens.MarkReplaced(ctx, rec.ID, newRec.ID); err != nil {
		return LoginResult{}, err
	}
	if err := tokens.TouchLastUsed(ctx, newRec.ID, now); err != nil {
		return LoginResult{}, err
	}

	s.metrics.TokenRotated()
	s.logger.Info("refresh token rotated", "user_id", user.ID, "old_jti", rec.ID, "new_jti", newRec.ID)
	return LoginResult{User: user, Tokens: pair}, nil
}

func (s *Service) revokeFamily(ctx context.Context, rec *RefreshToken, reason string) error {
	s.metrics.ReuseDetected()
	s.logger.Warn("refresh token reuse detected, revoking all sessions",
		"user_id", rec.UserID, "jti", rec.ID, "reason", reason)
	if err := s.store.RefreshTokens(ctx).RevokeAllForUser(ctx, rec.UserID); err != nil {
		return err
	}
	return ErrRefreshInvalid
}

// Logout revokes a single refresh token on behalf of its owner.
func (s *Service) Logout(ctx context.Context, ownerID, tokenID string) error {
	user, err := s.store.Users(ctx).FindByID(ctx, ownerID)
	if err != nil {
		return err
	}
	rec, err := s.store.RefreshTokens(ctx).FindByID(ctx, tokenID)
	if err != nil {
		return err
	}
	if rec.UserID != user.ID {
		return fmt.Errorf("%w: token does not belong to this user", ErrConflict)
	}
	if rec.Revoked {
		s.logger.Warn("revoking already revoked token", "user_id", user.ID, "jti", rec.ID)
	}
	if err := s.store.RefreshTokens(ctx).MarkRevoked(ctx, rec.ID); err != nil {
		return err
	}
	s.logger.Info("user logged out", "user_id", user.ID, "jti", rec.ID)
	return nil
}

// LogoutAll revokes every refresh token for the owner: the explicit
// "log out everywhere" operation and the automatic security response.
func (s *Service) LogoutAll(ctx context.Context, ownerID string) error {
	user, err := s.store.Users(ctx).FindByID(ctx, ownerID)
	if err != nil {
		return err
	}
	if err := s.store.RefreshTokens(ctx).RevokeAllForUser(ctx, user.ID); err != nil {
		return err
	}
	s.logger.Info("all sessions revoked", "user_id", user.ID)
	return nil
}

// RevokeByRawSecret revokes a refresh token located only by its raw secret.
// Best-effort: unknown and already-revoked tokens are silent no-ops so the
// caller learns nothing about token existence.
func (s *Service) RevokeByRawSecret(ctx context.Context, rawSecret string) error {
	rawSecret = strings.TrimSpace(rawSecret)
	if rawSecret == "" {
		return nil
	}
	rec, err := s.store.RefreshTokens(ctx).FindByHash(ctx, HashRefreshSecret(rawSecret))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if rec.Revoked {
		return nil
	}
	if err := s.store.RefreshTokens(ctx).MarkRevoked(ctx, rec.ID); err != nil {
		return err
	}
	s.logger.Info("refresh token revoked by raw secret", "user_id", rec.UserID, "jti", rec.ID)
	return nil
}

// ClientCredentials authenticates a machine client and issues a short-lived
// access token. Machine principals do not get rotating sessions. Absent,
// inactive, and mismatched clients fail identically.
func (s *Service) ClientCredentials(ctx context.Context, clientID, secret string) (TokenPair, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" || secret == "" {
		return TokenPair{}, ErrUnauthorized
	}
	client, err := s.store.Clients(ctx).FindByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrUnauthorized
		}
		return TokenPair{}, err
	}
	if !client.IsActive {
		return TokenPair{}, ErrUnauthorized
	}
	ok, err := s.hasher.Verify(secret, client.HashedSecret)
	if err != nil || !ok {
		return TokenPair{}, ErrUnauthorized
	}

	claims := AccessClaims{
		Type:        TypeClient,
		Permissions: SortedPermissions(ClientPermissions(client)),
	}
	claims.Subject = client.ID
	access, exp, err := s.codec.Encode(claims, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	s.logger.Info("client authenticated", "client_id", client.ClientID)
	return TokenPair{AccessToken: access, AccessExpiresAt: exp}, nil
}

func (s *Service) mintUserTokens(ctx context.Context, user *User, meta RequestMeta) (TokenPair, error) {
	pair, _, err := s.issueUserSession(ctx, user, meta)
	return pair, err
}

// issueUserSession signs a fresh access token and persists a new refresh
// record for the user.
func (s *Service) issueUserSession(ctx context.Context, user *User, meta RequestMeta) (TokenPair, *RefreshToken, error) {
	claims := AccessClaims{
		Type:                TypeUser,
		Permissions:         SortedPermissions(UserPermissions(user)),
		IsSuperuser:         user.IsSuperuser,
		ForcePasswordChange: user.ForcePasswordChange,
	}
	claims.Subject = user.ID
	access, accessExp, err := s.codec.Encode(claims, s.accessTTL)
	if err != nil {
		return TokenPair{}, nil, err
	}

	rawSecret, err := generateRefreshSecret()
	if err != nil {
		return TokenPair{}, nil, err
	}
	now := s.now().UTC()
	rec := &RefreshToken{
		ID:        ids.New(),
		UserID:    user.ID,
		TokenHash: HashRefreshSecret(rawSecret),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.refreshTTL),
		ClientIP:  meta.IP,
		UserAgent: meta.UserAgent,
	}
	if err := s.store.RefreshTokens(ctx).Create(ctx, rec); err != nil {
		return TokenPair{}, nil, err
	}

	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     rawSecret,
		RefreshTokenID:   rec.ID,
		RefreshExpiresAt: rec.ExpiresAt,
	}, rec, nil
}

func generateRefreshSecret() (string, error) {
	buf := make([]byte, refreshSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashRefreshSecret returns the hex SHA-256 digest stored in place of the
// raw refresh secret.
func HashRefreshSecret(rawSecret string) string {
	sum := sha256.Sum256([]byte(rawSecret))
	return hex.EncodeToString(sum[:])
}

func secureCompareHash(expectedHash, rawSecret string) bool {
	actual := HashRefreshSecret(rawSecret)
	if len(expectedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(actual)) == 1
}

// FormatRefreshToken concatenates the raw secret and its token ID for
// transport, "<raw>::<jti>".
func FormatRefreshToken(rawSecret, tokenID string) string {
	return rawSecret + "::" + tokenID
}

// SplitRefreshToken parses the transport form. A value without the "::"
// separator is treated as a bare raw secret.
func SplitRefreshToken(value string) (rawSecret, tokenID string) {
	if i := strings.Index(value, "::"); i >= 0 {
		return value[:i], value[i+2:]
	}
	return value, ""
}
