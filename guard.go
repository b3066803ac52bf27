package auth

// AuthorizationGuard decides whether a principal may invoke an operation
// given the roles declared on the route.
type AuthorizationGuard struct {
	logger Logger
}

// NewAuthorizationGuard returns a guard logging denials to logger.
func NewAuthorizationGuard(logger Logger) *AuthorizationGuard {
	return &AuthorizationGuard{logger: normalizeLogger(logger)}
}

// Authorize returns nil when the principal may proceed. An empty required
// set is public. A missing principal yields ErrUnauthenticated and a role
// outside the set yields ErrForbidden.
func (g *AuthorizationGuard) Authorize(p *Principal, required RoleSet) error {
	if required.Empty() {
		return nil
	}

	if p == nil {
		return ErrUnauthenticated
	}

	role := NormalizeRole(p.Role)
	if required.Contains(role) {
		return nil
	}

	g.logger.Debug("authorization denied",
		"user_id", p.UserID.String(),
		"role", role,
		"required", required.String(),
	)

	return withSource(ErrForbidden, nil, map[string]any{
		"role":     role,
		"required": required.List(),
	})
}
