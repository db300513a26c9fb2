package auth

import "sort"

// UserPermissions computes the effective permission set for a user: the
// union of permission names across all assigned roles. Always recomputed
// from live role state; token payloads are never consulted.
func UserPermissions(u *User) map[string]struct{} {
	set := make(map[string]struct{})
	if u == nil {
		return set
	}
	for _, role := range u.Roles {
		for _, p := range role.Permissions {
			if p.Name == "" {
				continue
			}
			set[p.Name] = struct{}{}
		}
	}
	return set
}

// ClientPermissions computes the effective permission set for a machine
// client. Clients carry permissions directly, without role indirection.
func ClientPermissions(c *Client) map[string]struct{} {
	set := make(map[string]struct{})
	if c == nil {
		return set
	}
	for _, p := range c.Permissions {
		if p.Name == "" {
			continue
		}
		set[p.Name] = struct{}{}
	}
	return set
}

// SortedPermissions flattens a permission set for embedding into claims.
func SortedPermissions(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Authorize decides whether the principal may perform the operation gated by
// the given permission. Superusers bypass the permission set entirely (user
// principals only); disabled accounts and users flagged for a forced
// password change are denied regardless of their set.
func Authorize(p *Principal, permission string) error {
	if p == nil || permission == "" {
		return ErrUnauthorized
	}
	switch p.Kind {
	case TypeUser:
		if p.User == nil {
			return ErrUnauthorized
		}
		if p.User.IsSuperuser {
			return nil
		}
		if !p.User.IsActive {
			return ErrUnauthorized
		}
		if p.User.ForcePasswordChange {
			return ErrUnauthorized
		}
		if _, ok := UserPermissions(p.User)[permission]; ok {
			return nil
		}
		return ErrUnauthorized
	case TypeClient:
		if p.Client == nil || !p.Client.IsActive {
			return ErrUnauthorized
		}
		if _, ok := ClientPermissions(p.Client)[permission]; ok {
			return nil
		}
		return ErrUnauthorized
	default:
		return ErrUnauthorized
	}
}
