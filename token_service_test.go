package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	auth "github.com/goliatone/go-family-auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testIdentity struct {
	id, identifier, role string
}

func (i testIdentity) ID() string         { return i.id }
func (i testIdentity) Identifier() string { return i.identifier }
func (i testIdentity) Role() string       { return i.role }

func TestNewTokenServiceRejectsShortKey(t *testing.T) {
	_, err := auth.NewTokenService(auth.TokenOptions{SigningKey: []byte("too-short")})
	require.Error(t, err)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeSigningKey))
	assert.Equal(t, auth.KindInternal, auth.KindOf(err))
}

func TestNewTokenServiceDefaults(t *testing.T) {
	tokens, err := auth.NewTokenService(auth.TokenOptions{SigningKey: []byte(testSigningKey)})
	require.NoError(t, err)
	assert.Equal(t, auth.DefaultAccessTTL, tokens.AccessTTL())
}

func TestIssueAccessValidatesUntilExpiry(t *testing.T) {
	clock := newFakeClock()
	tokens := newTestTokens(t, clock)
	userID := uuid.NewString()

	token, err := tokens.IssueAccess(userID, "+8613800000001", "user")
	require.NoError(t, err)

	claims, err := tokens.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID())
	assert.Equal(t, "+8613800000001", claims.Identifier())
	assert.Equal(t, auth.TokenKindAccess, claims.Kind())
	assert.True(t, clock.Now().Add(time.Hour).Equal(claims.Expires()))
	assert.NotEmpty(t, claims.TokenID())

	clock.Advance(time.Hour - time.Second)
	_, err = tokens.Validate(token)
	require.NoError(t, err, "token must be valid right before its expiry")

	clock.Advance(time.Second)
	_, err = tokens.Validate(token)
	require.Error(t, err)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeTokenExpired))
	assert.Equal(t, auth.KindUnauthenticated, auth.KindOf(err))
}

func TestIssueTokensPair(t *testing.T) {
	clock := newFakeClock()
	tokens := newTestTokens(t, clock)

	pair, err := tokens.IssueTokens(testIdentity{id: uuid.NewString(), identifier: "+8613800000002", role: auth.RoleAdmin})
	require.NoError(t, err)

	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int64(3600), pair.ExpiresIn)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	access, err := tokens.Validate(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, auth.TokenKindAccess, access.Kind())
	assert.Equal(t, auth.RoleAdmin, access.Role())

	refresh, err := tokens.Validate(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, auth.TokenKindRefresh, refresh.Kind())
	assert.True(t, clock.Now().Add(24*time.Hour).Equal(refresh.Expires()))
}

func TestIssuedTokensAreIndependent(t *testing.T) {
	tokens := newTestTokens(t, newFakeClock())
	userID := uuid.NewString()

	first, err := tokens.IssueAccess(userID, "", auth.RoleUser)
	require.NoError(t, err)
	second, err := tokens.IssueAccess(userID, "", auth.RoleUser)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)

	c1, err := tokens.Validate(first)
	require.NoError(t, err)
	c2, err := tokens.Validate(second)
	require.NoError(t, err)
	assert.NotEqual(t, c1.TokenID(), c2.TokenID())
}

func TestIssueRequiresUserID(t *testing.T) {
	tokens := newTestTokens(t, newFakeClock())
	_, err := tokens.IssueAccess("", "", auth.RoleUser)
	require.Error(t, err)
}

func TestRemainingTTL(t *testing.T) {
	clock := newFakeClock()
	tokens := newTestTokens(t, clock)

	token, err := tokens.IssueAccess(uuid.NewString(), "", auth.RoleUser)
	require.NoError(t, err)

	assert.Equal(t, time.Hour, tokens.RemainingTTL(token))

	clock.Advance(15 * time.Minute)
	assert.Equal(t, 45*time.Minute, tokens.RemainingTTL(token))

	clock.Advance(2 * time.Hour)
	assert.Equal(t, time.Duration(0), tokens.RemainingTTL(token))

	assert.Equal(t, time.Duration(0), tokens.RemainingTTL("garbage"))
}

func TestValidateRejectsForeignTokens(t *testing.T) {
	clock := newFakeClock()
	tokens := newTestTokens(t, clock)

	claims := jwt.MapClaims{
		"sub": uuid.NewString(),
		"uid": uuid.NewString(),
		"typ": "access",
		"iss": "family-test",
		"exp": clock.Now().Add(time.Hour).Unix(),
	}

	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{
			name: "empty",
			token: func(t *testing.T) string {
				return ""
			},
		},
		{
			name: "not a jwt",
			token: func(t *testing.T) string {
				return "not.a.jwt"
			},
		},
		{
			name: "different key",
			token: func(t *testing.T) string {
				s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
					SignedString([]byte("another-signing-key-of-32-bytes-or-more"))
				require.NoError(t, err)
				return s
			},
		},
		{
			name: "different algorithm",
			token: func(t *testing.T) string {
				s, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).
					SignedString([]byte(testSigningKey))
				require.NoError(t, err)
				return s
			},
		},
		{
			name: "unsigned",
			token: func(t *testing.T) string {
				s, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).
					SignedString(jwt.UnsafeAllowNoneSignatureType)
				require.NoError(t, err)
				return s
			},
		},
		{
			name: "missing expiry",
			token: func(t *testing.T) string {
				s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
					"sub": uuid.NewString(),
					"iss": "family-test",
				}).SignedString([]byte(testSigningKey))
				require.NoError(t, err)
				return s
			},
		},
		{
			name: "wrong issuer",
			token: func(t *testing.T) string {
				other := jwt.MapClaims{}
				for k, v := range claims {
					other[k] = v
				}
				other["iss"] = "someone-else"
				s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, other).
					SignedString([]byte(testSigningKey))
				require.NoError(t, err)
				return s
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tokens.Validate(tt.token(t))
			require.Error(t, err)
			assert.True(t, auth.HasTextCode(err, auth.TextCodeTokenMalformed))
		})
	}
}

func TestClaimsDecoratorAddsMetadata(t *testing.T) {
	tokens, err := auth.NewTokenService(auth.TokenOptions{
		SigningKey: []byte(testSigningKey),
		Decorator: auth.ClaimsDecoratorFunc(func(c *auth.JWTClaims) error {
			c.Metadata = map[string]any{"client": "ios"}
			return nil
		}),
	})
	require.NoError(t, err)

	token, err := tokens.IssueAccess(uuid.NewString(), "", auth.RoleUser)
	require.NoError(t, err)

	claims, err := tokens.Validate(token)
	require.NoError(t, err)
	jwtClaims, ok := claims.(*auth.JWTClaims)
	require.True(t, ok)
	assert.Equal(t, "ios", jwtClaims.Metadata["client"])
}

func TestClaimsDecoratorCannotChangePinnedClaims(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *auth.JWTClaims)
	}{
		{name: "subject", mutate: func(c *auth.JWTClaims) { c.RegisteredClaims.Subject = "someone-else" }},
		{name: "role", mutate: func(c *auth.JWTClaims) { c.UserRole = auth.RoleAdmin }},
		{name: "kind", mutate: func(c *auth.JWTClaims) { c.TokenType = auth.TokenKindRefresh }},
		{name: "expiry", mutate: func(c *auth.JWTClaims) {
			c.ExpiresAt = jwt.NewNumericDate(c.ExpiresAt.Add(24 * time.Hour))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := auth.NewTokenService(auth.TokenOptions{
				SigningKey: []byte(testSigningKey),
				Decorator: auth.ClaimsDecoratorFunc(func(c *auth.JWTClaims) error {
					tt.mutate(c)
					return nil
				}),
			})
			require.NoError(t, err)

			_, err = tokens.IssueAccess(uuid.NewString(), "", auth.RoleUser)
			require.Error(t, err)
			assert.True(t, auth.HasTextCode(err, auth.TextCodeClaimsMutated))
		})
	}
}
