package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func pgStoreForTest(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPGStore(db), mock
}

func TestPGUserFindByEmail(t *testing.T) {
	store, mock := pgStoreForTest(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	userRows := sqlmock.NewRows([]string{
		"id", "email", "full_name", "hashed_password", "is_active", "is_superuser",
		"force_password_change", "last_login_at", "created_at", "updated_at",
	}).AddRow("u1", "alice@example.com", "Alice", "$argon2id$...", true, false, false, nil, now, now)
	mock.ExpectQuery("from users where email=\\$1").
		WithArgs("alice@example.com").
		WillReturnRows(userRows)

	roleRows := sqlmock.NewRows([]string{"r.id", "r.name", "p.id", "p.name"}).
		AddRow("r1", "member", "p1", "profile:read").
		AddRow("r1", "member", "p2", "profile:write").
		AddRow("r2", "auditor", nil, nil)
	mock.ExpectQuery("from user_roles ur").
		WithArgs("u1").
		WillReturnRows(roleRows)

	user, err := store.Users(context.Background()).FindByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if user.ID != "u1" || user.LastLoginAt != nil {
		t.Fatalf("unexpected user: %+v", user)
	}
	if len(user.Roles) != 2 {
		t.Fatalf("expected 2 roles, got %v", user.Roles)
	}
	if len(user.Roles[0].Permissions) != 2 {
		t.Fatalf("expected 2 permissions on %s, got %v", user.Roles[0].Name, user.Roles[0].Permissions)
	}
	// Role without grants comes back with an empty permission list.
	if len(user.Roles[1].Permissions) != 0 {
		t.Fatalf("expected no permissions on %s, got %v", user.Roles[1].Name, user.Roles[1].Permissions)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGUserFindByIDNotFound(t *testing.T) {
	store, mock := pgStoreForTest(t)

	mock.ExpectQuery("from users where id=\\$1").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.Users(context.Background()).FindByID(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGClientFindByClientID(t *testing.T) {
	store, mock := pgStoreForTest(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	clientRows := sqlmock.NewRows([]string{
		"id", "client_id", "name", "hashed_secret", "is_active", "created_at", "updated_at",
	}).AddRow("c1", "reporting-service", "Reporting", "$argon2id$...", true, now, now)
	mock.ExpectQuery("from clients where client_id=\\$1").
		WithArgs("reporting-service").
		WillReturnRows(clientRows)

	permRows := sqlmock.NewRows([]string{"p.id", "p.name"}).
		AddRow("p1", "reports:read")
	mock.ExpectQuery("from client_permissions cp").
		WithArgs("c1").
		WillReturnRows(permRows)

	client, err := store.Clients(context.Background()).FindByClientID(context.Background(), "reporting-service")
	if err != nil {
		t.Fatalf("FindByClientID: %v", err)
	}
	if client.ID != "c1" || len(client.Permissions) != 1 || client.Permissions[0].Name != "reports:read" {
		t.Fatalf("unexpected client: %+v", client)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGRefreshCreateUniqueViolation(t *testing.T) {
	store, mock := pgStoreForTest(t)

	mock.ExpectExec("insert into refresh_tokens").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "refresh_tokens_token_hash_key"})

	now := time.Now().UTC()
	err := store.RefreshTokens(context.Background()).Create(context.Background(), &RefreshToken{
		ID:        "rt1",
		UserID:    "u1",
		TokenHash: HashRefreshSecret("secret"),
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestPGRefreshFindByID(t *testing.T) {
	store, mock := pgStoreForTest(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "token_hash", "issued_at", "expires_at", "revoked",
		"replaced_by", "last_used_at", "client_ip", "user_agent",
	}).AddRow("rt1", "u1", "hash", now, now.Add(time.Hour), true, "rt2", now, "203.0.113.7", "curl/8.0")
	mock.ExpectQuery("from refresh_tokens where id=\\$1").
		WithArgs("rt1").
		WillReturnRows(rows)

	tok, err := store.RefreshTokens(context.Background()).FindByID(context.Background(), "rt1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if !tok.Revoked || tok.ReplacedBy == nil || *tok.ReplacedBy != "rt2" {
		t.Fatalf("unexpected token: %+v", tok)
	}
	if tok.LastUsedAt == nil || tok.ClientIP != "203.0.113.7" {
		t.Fatalf("nullable columns not decoded: %+v", tok)
	}
}

func TestPGRefreshFindByHashNullables(t *testing.T) {
	store, mock := pgStoreForTest(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "token_hash", "issued_at", "expires_at", "revoked",
		"replaced_by", "last_used_at", "client_ip", "user_agent",
	}).AddRow("rt1", "u1", "hash", now, now.Add(time.Hour), false, nil, nil, nil, nil)
	mock.ExpectQuery("from refresh_tokens where token_hash=\\$1").
		WithArgs("hash").
		WillReturnRows(rows)

	tok, err := store.RefreshTokens(context.Background()).FindByHash(context.Background(), "hash")
	if err != nil {
		t.Fatalf("FindByHash: %v", err)
	}
	if tok.ReplacedBy != nil || tok.LastUsedAt != nil || tok.ClientIP != "" || tok.UserAgent != "" {
		t.Fatalf("expected zero values for null columns: %+v", tok)
	}
}

func TestPGMarkReplacedMissingRow(t *testing.T) {
	store, mock := pgStoreForTest(t)

	mock.ExpectExec("update refresh_tokens set revoked=true, replaced_by=\\$2").
		WithArgs("ghost", "rt2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.RefreshTokens(context.Background()).MarkReplaced(context.Background(), "ghost", "rt2")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGMarkRevoked(t *testing.T) {
	store, mock := pgStoreForTest(t)

	mock.ExpectExec("update refresh_tokens set revoked=true where id=\\$1").
		WithArgs("rt1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.RefreshTokens(context.Background()).MarkRevoked(context.Background(), "rt1"); err != nil {
		t.Fatalf("MarkRevoked: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGRevokeAllForUser(t *testing.T) {
	store, mock := pgStoreForTest(t)

	mock.ExpectExec("update refresh_tokens set revoked=true where user_id=\\$1 and revoked=false").
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	if err := store.RefreshTokens(context.Background()).RevokeAllForUser(context.Background(), "u1"); err != nil {
		t.Fatalf("RevokeAllForUser: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
