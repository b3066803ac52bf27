package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind separates short lived access tokens from refresh tokens.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// AuthClaims represents the validated content of a token
type AuthClaims interface {
	Subject() string
	UserID() string
	Identifier() string
	Role() string
	Kind() TokenKind
	TokenID() string
	Expires() time.Time
	IssuedAt() time.Time
}

// JWTClaims is the concrete implementation of AuthClaims
type JWTClaims struct {
	jwt.RegisteredClaims
	UID       string    `json:"uid,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	UserRole  string    `json:"role,omitempty"`
	TokenType TokenKind `json:"typ,omitempty"`
	// Metadata holds extension claims set by a ClaimsDecorator.
	Metadata map[string]any `json:"meta,omitempty"`
}

var _ AuthClaims = (*JWTClaims)(nil)

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID
func (c *JWTClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// Identifier returns the login identifier the token was issued for
func (c *JWTClaims) Identifier() string {
	return c.Phone
}

// Role returns the application role, USER when absent
func (c *JWTClaims) Role() string {
	return NormalizeRole(c.UserRole)
}

// Kind returns the token kind
func (c *JWTClaims) Kind() TokenKind {
	return c.TokenType
}

// TokenID returns the jti claim
func (c *JWTClaims) TokenID() string {
	return c.RegisteredClaims.ID
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.IssuedAt.Time
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims == nil || claims.ID != "" {
		return
	}
	claims.ID = uuid.NewString()
}
