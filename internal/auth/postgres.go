package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL through database/sql with the
// pgx stdlib driver.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users(context.Context) UserStore     { return &userStore{db: s.db} }
func (s *PGStore) Clients(context.Context) ClientStore { return &clientStore{db: s.db} }
func (s *PGStore) RefreshTokens(context.Context) RefreshTokenStore {
	return &refreshTokenStore{db: s.db}
}

const uniqueViolation = "23505"

func mapPGError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrConflict
	}
	return err
}

// User store ---------------------------------------------------------------

type userStore struct{ db *sql.DB }

const userColumns = `id, email, full_name, hashed_password, is_active, is_superuser,
	force_password_change, last_login_at, created_at, updated_at`

func (s *userStore) FindByID(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id)
	return s.scanUser(ctx, row)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1`, email)
	return s.scanUser(ctx, row)
}

func (s *userStore) scanUser(ctx context.Context, row *sql.Row) (*User, error) {
	var (
		u         User
		lastLogin sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.HashedPassword, &u.IsActive,
		&u.IsSuperuser, &u.ForcePasswordChange, &lastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	roles, err := s.loadRoles(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	return &u, nil
}

func (s *userStore) loadRoles(ctx context.Context, userID string) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`select r.id, r.name, p.id, p.name
		 from user_roles ur
		 join roles r on r.id = ur.role_id
		 left join role_permissions rp on rp.role_id = r.id
		 left join permissions p on p.id = rp.permission_id
		 where ur.user_id = $1
		 order by r.id, p.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		roles []Role
		index = map[string]int{}
	)
	for rows.Next() {
		var (
			roleID, roleName string
			permID, permName sql.NullString
		)
		if err := rows.Scan(&roleID, &roleName, &permID, &permName); err != nil {
			return nil, err
		}
		i, ok := index[roleID]
		if !ok {
			roles = append(roles, Role{ID: roleID, Name: roleName})
			i = len(roles) - 1
			index[roleID] = i
		}
		if permID.Valid {
			roles[i].Permissions = append(roles[i].Permissions, Permission{
				ID:   permID.String,
				Name: permName.String,
			})
		}
	}
	return roles, rows.Err()
}

func (s *userStore) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update users set last_login_at=$2, updated_at=now() where id=$1`, userID, at)
	return err
}

// Client store --------------------------------------------------------------

type clientStore struct{ db *sql.DB }

const clientColumns = `id, client_id, name, hashed_secret, is_active, created_at, updated_at`

func (s *clientStore) FindByID(ctx context.Context, id string) (*Client, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+clientColumns+` from clients where id=$1`, id)
	return s.scanClient(ctx, row)
}

func (s *clientStore) FindByClientID(ctx context.Context, clientID string) (*Client, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+clientColumns+` from clients where client_id=$1`, clientID)
	return s.scanClient(ctx, row)
}

func (s *clientStore) scanClient(ctx context.Context, row *sql.Row) (*Client, error) {
	var c Client
	if err := row.Scan(&c.ID, &c.ClientID, &c.Name, &c.HashedSecret, &c.IsActive,
		&c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	perms, err := s.loadPermissions(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	c.Permissions = perms
	return &c, nil
}

func (s *clientStore) loadPermissions(ctx context.Context, clientID string) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`select p.id, p.name
		 from client_permissions cp
		 join permissions p on p.id = cp.permission_id
		 where cp.client_id = $1
		 order by p.id`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// Refresh token store -------------------------------------------------------

type refreshTokenStore struct{ db *sql.DB }

const refreshColumns = `id, user_id, token_hash, issued_at, expires_at, revoked,
	replaced_by, last_used_at, client_ip, user_agent`

func (s *refreshTokenStore) Create(ctx context.Context, tok *RefreshToken) error {
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(id, user_id, token_hash, issued_at, expires_at, client_ip, user_agent)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		tok.ID, tok.UserID, tok.TokenHash, tok.IssuedAt, tok.ExpiresAt, tok.ClientIP, tok.UserAgent)
	if err != nil {
		return mapPGError(err)
	}
	return nil
}

func (s *refreshTokenStore) FindByID(ctx context.Context, id string) (*RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+refreshColumns+` from refresh_tokens where id=$1`, id)
	return scanRefreshToken(row)
}

func (s *refreshTokenStore) FindByHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+refreshColumns+` from refresh_tokens where token_hash=$1`, tokenHash)
	return scanRefreshToken(row)
}

func scanRefreshToken(row *sql.Row) (*RefreshToken, error) {
	var (
		tok        RefreshToken
		replacedBy sql.NullString
		lastUsed   sql.NullTime
		clientIP   sql.NullString
		userAgent  sql.NullString
	)
	if err := row.Scan(&tok.ID, &tok.UserID, &tok.TokenHash, &tok.IssuedAt, &tok.ExpiresAt,
		&tok.Revoked, &replacedBy, &lastUsed, &clientIP, &userAgent); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if replacedBy.Valid {
		v := replacedBy.String
		tok.ReplacedBy = &v
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		tok.LastUsedAt = &t
	}
	tok.ClientIP = clientIP.String
	tok.UserAgent = userAgent.String
	return &tok, nil
}

func (s *refreshTokenStore) MarkRevoked(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *refreshTokenStore) MarkReplaced(ctx context.Context, oldID, newID string) error {
	res, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true, replaced_by=$2 where id=$1`, oldID, newID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *refreshTokenStore) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true where user_id=$1 and revoked=false`, userID)
	return err
}

func (s *refreshTokenStore) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set last_used_at=$2 where id=$1`, id, at)
	return err
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
