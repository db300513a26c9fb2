package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// PrincipalType discriminates the two principal kinds carried in tokens.
type PrincipalType string

const (
	TypeUser   PrincipalType = "user"
	TypeClient PrincipalType = "client"
)

// AccessClaims is the signed claim set of an access token. The validity
// window is [iat, exp); decoding applies no leeway.
type AccessClaims struct {
	Type                PrincipalType `json:"type"`
	Permissions         []string      `json:"permissions"`
	IsSuperuser         bool          `json:"is_superuser"`
	ForcePasswordChange bool          `json:"force_password_change"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies access tokens with HS256. Algorithm and
// secret are fixed at construction.
type TokenCodec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// CodecOption configures TokenCodec behavior.
type CodecOption func(*TokenCodec)

// WithCodecClock overrides the time source (useful for tests).
func WithCodecClock(fn func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewTokenCodec constructs a codec for the given signing secret and issuer.
func NewTokenCodec(secret []byte, issuer string, opts ...CodecOption) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: signing secret is required", ErrInvalidConfig)
	}
	c := &TokenCodec{
		secret: secret,
		issuer: strings.TrimSpace(issuer),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Encode signs the claim set with the given lifetime. The token ID (jti) is
// always generated server-side; any caller-supplied value is discarded.
func (c *TokenCodec) Encode(claims AccessClaims, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("%w: token ttl must be greater than zero", ErrInvalidConfig)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", time.Time{}, fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}

	now := c.now().UTC()
	exp := now.Add(ttl)
	claims.Issuer = c.issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(exp)
	claims.ID = uuid.NewString()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Decode verifies the signature and time bounds, strictly. Expiry is never
// extended or forgiven: a token is dead the instant now reaches exp.
func (c *TokenCodec) Decode(signed string) (*AccessClaims, error) {
	signed = strings.TrimSpace(signed)
	if signed == "" {
		return nil, ErrTokenMalformed
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return c.now().UTC() }),
		jwt.WithExpirationRequired(),
	)
	parsed, err := parser.ParseWithClaims(signed, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	if err := c.validateClaims(claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (c *TokenCodec) validateClaims(claims *AccessClaims) error {
	if strings.TrimSpace(claims.Subject) == "" {
		return ErrTokenMalformed
	}
	if claims.Type == "" {
		return ErrTokenMalformed
	}
	if c.issuer != "" && claims.Issuer != c.issuer {
		return ErrTokenMalformed
	}
	if claims.IssuedAt == nil {
		return ErrTokenMalformed
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return ErrTokenMalformed
	}
	return nil
}
