package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// MinSigningKeyLength is the shortest HS256 key accepted, in bytes.
const MinSigningKeyLength = 32

const (
	DefaultAccessTTL  = 2 * time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenService issues and validates bearer tokens
type TokenService interface {
	IssueAccess(userID, identifier, role string) (string, error)
	IssueRefresh(userID, identifier, role string) (string, error)
	IssueTokens(identity Identity) (TokenPair, error)
	Validate(tokenString string) (AuthClaims, error)
	RemainingTTL(tokenString string) time.Duration
	AccessTTL() time.Duration
}

// TokenOptions configures a TokenService.
type TokenOptions struct {
	SigningKey []byte
	Issuer     string
	Audience   []string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Clock      Clock
	Logger     Logger
	Decorator  ClaimsDecorator
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey []byte
	issuer     string
	audience   jwt.ClaimStrings
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      Clock
	logger     Logger
	decorator  ClaimsDecorator
}

var _ TokenService = (*TokenServiceImpl)(nil)

// NewTokenService creates a new TokenService instance. It fails when the
// signing key is shorter than MinSigningKeyLength.
func NewTokenService(opts TokenOptions) (TokenService, error) {
	if len(opts.SigningKey) < MinSigningKeyLength {
		return nil, withSource(ErrSigningKeyTooShort, nil, map[string]any{
			"min_bytes": MinSigningKeyLength,
			"bytes":     len(opts.SigningKey),
		})
	}

	if opts.AccessTTL <= 0 {
		opts.AccessTTL = DefaultAccessTTL
	}

	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = DefaultRefreshTTL
	}

	key := make([]byte, len(opts.SigningKey))
	copy(key, opts.SigningKey)

	return &TokenServiceImpl{
		signingKey: key,
		issuer:     opts.Issuer,
		audience:   jwt.ClaimStrings(opts.Audience),
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		clock:      normalizeClock(opts.Clock),
		logger:     normalizeLogger(opts.Logger),
		decorator:  normalizeClaimsDecorator(opts.Decorator),
	}, nil
}

// AccessTTL returns the configured access token lifetime
func (ts *TokenServiceImpl) AccessTTL() time.Duration {
	return ts.accessTTL
}

// IssueAccess mints a short lived access token
func (ts *TokenServiceImpl) IssueAccess(userID, identifier, role string) (string, error) {
	return ts.issue(TokenKindAccess, ts.accessTTL, userID, identifier, role)
}

// IssueRefresh mints a long lived refresh token
func (ts *TokenServiceImpl) IssueRefresh(userID, identifier, role string) (string, error) {
	return ts.issue(TokenKindRefresh, ts.refreshTTL, userID, identifier, role)
}

// IssueTokens mints an access and refresh token pair for identity
func (ts *TokenServiceImpl) IssueTokens(identity Identity) (TokenPair, error) {
	if identity == nil {
		return TokenPair{}, errors.New("identity is required", errors.CategoryBadInput)
	}

	access, err := ts.IssueAccess(identity.ID(), identity.Identifier(), identity.Role())
	if err != nil {
		return TokenPair{}, err
	}

	refresh, err := ts.IssueRefresh(identity.ID(), identity.Identifier(), identity.Role())
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    defaultTokenType,
		ExpiresIn:    int64(ts.accessTTL / time.Second),
	}, nil
}

func (ts *TokenServiceImpl) issue(kind TokenKind, ttl time.Duration, userID, identifier, role string) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required", errors.CategoryBadInput)
	}

	now := ts.clock.Now()
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   userID,
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UID:       userID,
		Phone:     identifier,
		UserRole:  NormalizeRole(role),
		TokenType: kind,
	}

	ensureTokenID(&claims.RegisteredClaims)

	pinned := pinClaims(claims)
	if err := ts.decorator.Decorate(claims); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "claims decorator failed")
	}
	if err := pinned.check(claims); err != nil {
		ts.logger.Error("claims decorator changed a pinned claim", "error", err)
		return "", err
	}

	return ts.signClaims(claims)
}

// signClaims signs the claims with the configured key.
func (ts *TokenServiceImpl) signClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Validate parses and validates a token string, returning structured claims.
// It does not consult revocation.
func (ts *TokenServiceImpl) Validate(tokenString string) (AuthClaims, error) {
	claims, err := ts.parse(tokenString, ts.clock.Now)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// RemainingTTL returns max(0, exp - now), or zero when the token cannot be
// parsed.
func (ts *TokenServiceImpl) RemainingTTL(tokenString string) time.Duration {
	now := ts.clock.Now()

	// expiry is checked below, so the parser runs with a clock pinned before
	// the issue time to read claims of already expired tokens.
	claims, err := ts.parse(tokenString, func() time.Time { return time.Unix(0, 0) })
	if err != nil {
		return 0
	}

	remaining := claims.Expires().Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (ts *TokenServiceImpl) parse(tokenString string, now func() time.Time) (*JWTClaims, error) {
	if tokenString == "" {
		return nil, ErrTokenMalformed
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Warn("token service rejected unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, withSource(ErrTokenExpired, err, nil)
		}
		return nil, withSource(ErrTokenMalformed, err, nil)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}
