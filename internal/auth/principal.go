package auth

import "context"

// Principal is the authenticated identity attached to a request: a closed
// tagged union over user and client kinds. Exactly one of User or Client is
// populated, matching Kind. Principals live for a single request and are
// never persisted.
type Principal struct {
	Kind   PrincipalType
	Claims *AccessClaims
	User   *User
	Client *Client
}

// SubjectID returns the live record's identifier.
func (p *Principal) SubjectID() string {
	switch p.Kind {
	case TypeUser:
		if p.User != nil {
			return p.User.ID
		}
	case TypeClient:
		if p.Client != nil {
			return p.Client.ID
		}
	}
	return ""
}

// PrincipalResolver turns a bearer token into a hydrated principal. It
// always re-fetches the live record: claims embedded in the token are a
// snapshot for resource servers, never an authorization source here.
type PrincipalResolver struct {
	codec *TokenCodec
	store Store
}

// NewPrincipalResolver constructs a resolver over the given codec and store.
func NewPrincipalResolver(codec *TokenCodec, store Store) *PrincipalResolver {
	return &PrincipalResolver{codec: codec, store: store}
}

// Resolve decodes the bearer token and loads the live user or client. All
// decode and lookup failures collapse into ErrUnauthorized.
func (r *PrincipalResolver) Resolve(ctx context.Context, bearer string) (*Principal, error) {
	claims, err := r.codec.Decode(bearer)
	if err != nil {
		return nil, ErrUnauthorized
	}
	switch claims.Type {
	case TypeUser:
		user, err := r.store.Users(ctx).FindByID(ctx, claims.Subject)
		if err != nil {
			return nil, ErrUnauthorized
		}
		return &Principal{Kind: TypeUser, Claims: claims, User: user}, nil
	case TypeClient:
		client, err := r.store.Clients(ctx).FindByID(ctx, claims.Subject)
		if err != nil {
			return nil, ErrUnauthorized
		}
		return &Principal{Kind: TypeClient, Claims: claims, Client: client}, nil
	default:
		return nil, ErrUnauthorized
	}
}

// ResolveOptional is Resolve with every failure converted to absence, for
// endpoints that behave differently for authenticated and anonymous callers.
func (r *PrincipalResolver) ResolveOptional(ctx context.Context, bearer string) *Principal {
	if bearer == "" {
		return nil
	}
	principal, err := r.Resolve(ctx, bearer)
	if err != nil {
		return nil
	}
	return principal
}
