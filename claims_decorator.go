package auth

// ClaimsDecorator adds extension claims to a token before it is signed.
// It may only touch Metadata. Identity, kind and lifetime claims are
// checked after decoration and the token is refused if they changed.
type ClaimsDecorator interface {
	Decorate(claims *JWTClaims) error
}

// ClaimsDecoratorFunc adapts a function into a ClaimsDecorator.
type ClaimsDecoratorFunc func(claims *JWTClaims) error

// Decorate implements ClaimsDecorator.
func (f ClaimsDecoratorFunc) Decorate(claims *JWTClaims) error {
	if f == nil {
		return nil
	}
	return f(claims)
}

type noopClaimsDecorator struct{}

func (noopClaimsDecorator) Decorate(*JWTClaims) error { return nil }

func normalizeClaimsDecorator(d ClaimsDecorator) ClaimsDecorator {
	if d == nil {
		return noopClaimsDecorator{}
	}
	return d
}
