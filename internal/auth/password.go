package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2idParams configures secret hashing. The zero value is not usable;
// construct hashers with DefaultArgon2idParams or explicit values.
type Argon2idParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2idParams returns the production hashing parameters.
func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		Memory:      64 * 1024,
		Iterations:  2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// SecretHasher hashes and verifies passwords and client secrets using
// Argon2id. The encoded output is self-describing, so verification works
// even after parameters change.
type SecretHasher struct {
	params Argon2idParams
}

// NewSecretHasher constructs a hasher with explicit parameters.
func NewSecretHasher(params Argon2idParams) SecretHasher {
	if params.Parallelism == 0 {
		params.Parallelism = 1
	}
	if params.Iterations == 0 {
		params.Iterations = 1
	}
	if params.SaltLength < 8 {
		params.SaltLength = 16
	}
	if params.KeyLength < 16 {
		params.KeyLength = 32
	}
	if params.Memory < 8*1024 {
		params.Memory = 8 * 1024
	}
	return SecretHasher{params: params}
}

// Hash returns a PHC-encoded Argon2id hash of the secret.
func (h SecretHasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("%w: secret is empty", ErrInvalidInput)
	}
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(secret), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf(
		"$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		h.params.Memory,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether secret matches the encoded hash. A mismatch is not
// an error; errors indicate empty input or an unparseable hash.
func (h SecretHasher) Verify(secret, encoded string) (bool, error) {
	if secret == "" || encoded == "" {
		return false, fmt.Errorf("%w: secret and hash are required", ErrInvalidInput)
	}
	params, salt, key, err := decodeArgon2idHash(encoded)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(secret), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)
	return subtle.ConstantTimeCompare(computed, key) == 1, nil
}

func decodeArgon2idHash(encoded string) (Argon2idParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Argon2idParams{}, nil, nil, fmt.Errorf("%w: not an argon2id hash", ErrInvalidInput)
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Argon2idParams{}, nil, nil, fmt.Errorf("%w: unsupported argon2 version", ErrInvalidInput)
	}
	var params Argon2idParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return Argon2idParams{}, nil, nil, fmt.Errorf("%w: malformed argon2 parameters", ErrInvalidInput)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Argon2idParams{}, nil, nil, fmt.Errorf("%w: malformed salt", ErrInvalidInput)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return Argon2idParams{}, nil, nil, fmt.Errorf("%w: malformed key", ErrInvalidInput)
	}
	params.SaltLength = uint32(len(salt))
	params.KeyLength = uint32(len(key))
	return params, salt, key, nil
}
