package auth

import (
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// pinnedClaims holds the claims a decorator must leave untouched.
type pinnedClaims struct {
	subject  string
	issuer   string
	uid      string
	phone    string
	role     string
	kind     TokenKind
	jti      string
	audience []string
	issued   time.Time
	expires  time.Time
}

func pinClaims(c *JWTClaims) pinnedClaims {
	return pinnedClaims{
		subject:  c.RegisteredClaims.Subject,
		issuer:   c.RegisteredClaims.Issuer,
		uid:      c.UID,
		phone:    c.Phone,
		role:     c.UserRole,
		kind:     c.TokenType,
		jti:      c.RegisteredClaims.ID,
		audience: slices.Clone([]string(c.RegisteredClaims.Audience)),
		issued:   numericTime(c.RegisteredClaims.IssuedAt),
		expires:  numericTime(c.RegisteredClaims.ExpiresAt),
	}
}

func (p pinnedClaims) check(c *JWTClaims) error {
	switch {
	case c.RegisteredClaims.Subject != p.subject:
		return pinnedClaimChanged("sub")
	case c.RegisteredClaims.Issuer != p.issuer:
		return pinnedClaimChanged("iss")
	case c.UID != p.uid:
		return pinnedClaimChanged("uid")
	case c.Phone != p.phone:
		return pinnedClaimChanged("phone")
	case c.UserRole != p.role:
		return pinnedClaimChanged("role")
	case c.TokenType != p.kind:
		return pinnedClaimChanged("typ")
	case c.RegisteredClaims.ID != p.jti:
		return pinnedClaimChanged("jti")
	case !slices.Equal([]string(c.RegisteredClaims.Audience), p.audience):
		return pinnedClaimChanged("aud")
	case !numericTime(c.RegisteredClaims.IssuedAt).Equal(p.issued):
		return pinnedClaimChanged("iat")
	case !numericTime(c.RegisteredClaims.ExpiresAt).Equal(p.expires):
		return pinnedClaimChanged("exp")
	}
	return nil
}

func numericTime(d *jwt.NumericDate) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}

func pinnedClaimChanged(field string) error {
	return withSource(ErrClaimsMutated, nil, map[string]any{
		"claim":   field,
		"message": fmt.Sprintf("decorator changed the %s claim", field),
	})
}
