package auth

import (
	"context"
	"strings"

	"github.com/goliatone/go-family-auth/middleware/jwtware"
	"github.com/google/uuid"
)

// HeaderDevUserID is trusted only when the development override is enabled.
const HeaderDevUserID = "X-User-Id"

// AuthenticationResolver turns request headers into a Principal.
type AuthenticationResolver struct {
	tokens            TokenService
	revocations       RevocationStore
	logger            Logger
	authScheme        string
	trustedUserHeader bool
}

// ResolverOption configures an AuthenticationResolver
type ResolverOption func(*AuthenticationResolver)

// WithResolverLogger sets the logger
func WithResolverLogger(l Logger) ResolverOption {
	return func(r *AuthenticationResolver) {
		r.logger = normalizeLogger(l)
	}
}

// WithAuthScheme overrides the Authorization scheme, Bearer by default
func WithAuthScheme(scheme string) ResolverOption {
	return func(r *AuthenticationResolver) {
		if scheme != "" {
			r.authScheme = scheme
		}
	}
}

// WithTrustedUserHeader enables the X-User-Id development override. Never
// enable it on a deployment reachable by untrusted clients.
func WithTrustedUserHeader(enabled bool) ResolverOption {
	return func(r *AuthenticationResolver) {
		r.trustedUserHeader = enabled
	}
}

// NewAuthenticationResolver builds a resolver. A nil revocation store
// disables revocation checks.
func NewAuthenticationResolver(tokens TokenService, revocations RevocationStore, opts ...ResolverOption) *AuthenticationResolver {
	r := &AuthenticationResolver{
		tokens:      tokens,
		revocations: revocations,
		logger:      defLogger{},
		authScheme:  jwtware.DefaultAuthScheme,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.trustedUserHeader {
		r.logger.Warn("development user header override is enabled", "header", HeaderDevUserID)
	}
	return r
}

// Authenticate resolves the caller from an Authorization bearer token.
func (r *AuthenticationResolver) Authenticate(ctx context.Context, headers jwtware.Headers) (*Principal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := jwtware.TokenFromHeader(headers.Get(jwtware.HeaderAuthorization), r.authScheme)
	if err != nil {
		if p, ok := r.fromDevHeader(headers); ok {
			return p, nil
		}
		return nil, withSource(ErrUnauthenticated, err, nil)
	}

	p, err := r.resolveToken(ctx, raw)
	if err != nil {
		if p, ok := r.fromDevHeader(headers); ok {
			return p, nil
		}
		return nil, err
	}
	return p, nil
}

// Middleware adapts the resolver to jwtware.
func (r *AuthenticationResolver) Middleware() jwtware.Authenticator {
	return jwtware.AuthenticatorFunc(func(ctx context.Context, headers jwtware.Headers) (any, error) {
		p, err := r.Authenticate(ctx, headers)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

func (r *AuthenticationResolver) resolveToken(ctx context.Context, raw string) (*Principal, error) {
	claims, err := r.tokens.Validate(raw)
	if err != nil {
		return nil, withSource(ErrUnauthenticated, err, nil)
	}

	if claims.Kind() != TokenKindAccess {
		return nil, withSource(ErrUnauthenticated, ErrTokenKind, map[string]any{"kind": string(claims.Kind())})
	}

	userID, err := uuid.Parse(claims.UserID())
	if err != nil {
		return nil, withSource(ErrUnauthenticated, ErrTokenMalformed, nil)
	}

	if r.revocations != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		revoked, err := r.revocations.IsRevoked(ctx, raw)
		if err != nil {
			return nil, storeError(err, "revocation lookup")
		}
		if revoked {
			return nil, withSource(ErrUnauthenticated, ErrTokenRevoked, nil)
		}
	}

	return &Principal{
		UserID:     userID,
		Identifier: claims.Identifier(),
		Role:       NormalizeRole(claims.Role()),
		TokenID:    claims.TokenID(),
		ExpiresAt:  claims.Expires(),
		Source:     PrincipalFromToken,
	}, nil
}

func (r *AuthenticationResolver) fromDevHeader(headers jwtware.Headers) (*Principal, bool) {
	if !r.trustedUserHeader {
		return nil, false
	}

	raw := strings.TrimSpace(headers.Get(HeaderDevUserID))
	if raw == "" {
		return nil, false
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		r.logger.Warn("ignoring malformed development user header", "value", raw)
		return nil, false
	}

	r.logger.Warn("request authenticated through development user header", "user_id", id.String())
	return &Principal{
		UserID: id,
		Role:   RoleUser,
		Source: PrincipalFromDevHeader,
	}, true
}
