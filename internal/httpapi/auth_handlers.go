package httpapi

import (
	"net/http"
	"strings"
	"time"

	"credence.dev/internal/audit"
	"credence.dev/internal/auth"
)

const (
	refreshCookieName = "refresh"
	refreshCookiePath = "/v1/auth"
	refreshHeader     = "Refresh-Token"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type clientTokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type userPayload struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	FullName            string     `json:"full_name,omitempty"`
	IsSuperuser         bool       `json:"is_superuser"`
	ForcePasswordChange bool       `json:"force_password_change"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
}

type sessionResponse struct {
	TokenType string      `json:"token_type"`
	User      userPayload `json:"user"`
	auth.TokenPair
}

func sessionPayload(res auth.LoginResult) sessionResponse {
	tokens := res.Tokens
	tokens.RefreshToken = auth.FormatRefreshToken(tokens.RefreshToken, tokens.RefreshTokenID)
	return sessionResponse{
		TokenType: "bearer",
		User: userPayload{
			ID:                  res.User.ID,
			Email:               res.User.Email,
			FullName:            res.User.FullName,
			IsSuperuser:         res.User.IsSuperuser,
			ForcePasswordChange: res.User.ForcePasswordChange,
			LastLoginAt:         res.User.LastLoginAt,
		},
		TokenPair: tokens,
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	res, err := a.engine.Login(r.Context(), req.Email, req.Password, requestMeta(r))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id": res.User.ID,
		"ip":      clientIP(r),
	})

	a.setRefreshCookie(w, res.Tokens)
	writeJSON(w, http.StatusOK, sessionPayload(res))
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	presented, ok := a.presentedRefreshToken(w, r)
	if !ok {
		return
	}
	rawSecret, tokenID := auth.SplitRefreshToken(presented)

	res, err := a.engine.Rotate(r.Context(), rawSecret, tokenID, requestMeta(r))
	if err != nil {
		a.clearRefreshCookie(w)
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.refresh", map[string]any{
		"user_id": res.User.ID,
		"old_jti": tokenID,
		"new_jti": res.Tokens.RefreshTokenID,
	})

	a.setRefreshCookie(w, res.Tokens)
	writeJSON(w, http.StatusOK, sessionPayload(res))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	presented := a.findRefreshToken(r)
	if presented == "" {
		a.clearRefreshCookie(w)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	rawSecret, tokenID := auth.SplitRefreshToken(presented)

	// Prefer an owner-checked revoke when the caller is authenticated,
	// otherwise fall back to best-effort revocation by the secret alone.
	principal := a.optionalPrincipal(r)
	if principal != nil && principal.Kind == auth.TypeUser && tokenID != "" {
		if err := a.engine.Logout(r.Context(), principal.SubjectID(), tokenID); err != nil {
			a.clearRefreshCookie(w)
			handleAuthError(w, r, err)
			return
		}
	} else {
		if err := a.engine.RevokeByRawSecret(r.Context(), rawSecret); err != nil {
			a.clearRefreshCookie(w)
			handleAuthError(w, r, err)
			return
		}
	}

	_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{"jti": tokenID})

	a.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok || principal.Kind != auth.TypeUser {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := a.engine.LogoutAll(r.Context(), principal.SubjectID()); err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.logout_all", nil)

	a.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleClientToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req clientTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.ClientID) == "" || req.ClientSecret == "" {
		writeError(w, r, http.StatusBadRequest, "client_id and client_secret are required")
		return
	}

	pair, err := a.engine.ClientCredentials(r.Context(), req.ClientID, req.ClientSecret)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.client_token", map[string]any{
		"client_id": req.ClientID,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"token_type":        "bearer",
		"access_token":      pair.AccessToken,
		"access_expires_at": pair.AccessExpiresAt,
	})
}

// handleUserSessions routes /v1/auth/users/{id}/logout-all: an administrative
// revocation of every session a user holds.
func (a *API) handleUserSessions(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/auth/users/")
	userID, ok := strings.CutSuffix(path, "/logout-all")
	userID = strings.TrimSuffix(userID, "/")
	if !ok || userID == "" || strings.Contains(userID, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	if err := a.requirePermission(r.Context(), "users:admin"); err != nil {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}

	if err := a.engine.LogoutAll(r.Context(), userID); err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.admin.logout_all", map[string]any{
		"target_user_id": userID,
	})

	w.WriteHeader(http.StatusNoContent)
}

// presentedRefreshToken locates the refresh token for an exchange. Absence is
// a 400: the caller forgot the token, nothing was presented to invalidate.
func (a *API) presentedRefreshToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	if tok := a.findRefreshToken(r); tok != "" {
		return tok, true
	}
	writeError(w, r, http.StatusBadRequest, "refresh token is required")
	return "", false
}

// findRefreshToken checks the cookie, then the Refresh-Token header, then the
// JSON body.
func (a *API) findRefreshToken(r *http.Request) string {
	if c, err := r.Cookie(refreshCookieName); err == nil {
		if v := strings.TrimSpace(c.Value); v != "" {
			return v
		}
	}
	if v := strings.TrimSpace(r.Header.Get(refreshHeader)); v != "" {
		return v
	}
	var req refreshRequest
	if err := decodeJSON(nopResponseWriter{}, r, &req); err == nil {
		return strings.TrimSpace(req.RefreshToken)
	}
	return ""
}

func (a *API) optionalPrincipal(r *http.Request) *auth.Principal {
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		return p
	}
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		return nil
	}
	return a.resolver.ResolveOptional(r.Context(), token)
}

func (a *API) setRefreshCookie(w http.ResponseWriter, tokens auth.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    auth.FormatRefreshToken(tokens.RefreshToken, tokens.RefreshTokenID),
		Path:     refreshCookiePath,
		MaxAge:   cookieMaxAge(tokens.RefreshExpiresAt),
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// nopResponseWriter satisfies decodeJSON's MaxBytesReader requirement when
// the body is parsed speculatively.
type nopResponseWriter struct{}

func (nopResponseWriter) Header() http.Header       { return http.Header{} }
func (nopResponseWriter) Write([]byte) (int, error) { return 0, nil }
func (nopResponseWriter) WriteHeader(int)           {}
