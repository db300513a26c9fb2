package auth

import "time"

// User is a human account. Roles are loaded eagerly so permission
// resolution never needs a second round trip.
type User struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	FullName            string     `json:"full_name"`
	HashedPassword      string     `json:"-"`
	IsActive            bool       `json:"is_active"`
	IsSuperuser         bool       `json:"is_superuser"`
	ForcePasswordChange bool       `json:"force_password_change"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	Roles               []Role     `json:"roles,omitempty"`
}

// Role groups permissions.
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// Permission is a fine-grained capability.
type Permission struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Client is a machine principal authenticating with client credentials.
// Permissions are attached directly, without role indirection.
type Client struct {
	ID           string       `json:"id"`
	ClientID     string       `json:"client_id"`
	Name         string       `json:"name"`
	HashedSecret string       `json:"-"`
	IsActive     bool         `json:"is_active"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	Permissions  []Permission `json:"permissions,omitempty"`
}

// RefreshToken is a persisted refresh-token record. Only the SHA-256 hash of
// the opaque secret is stored. Records are never deleted: rotation and
// revocation flip flags so the chain remains auditable.
type RefreshToken struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	TokenHash  string     `json:"-"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	Revoked    bool       `json:"revoked"`
	ReplacedBy *string    `json:"replaced_by,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ClientIP   string     `json:"client_ip,omitempty"`
	UserAgent  string     `json:"user_agent,omitempty"`
}

// RequestMeta carries correlation data the HTTP layer attaches to session
// operations. Passed explicitly, never read from ambient state.
type RequestMeta struct {
	IP        string
	UserAgent string
}
