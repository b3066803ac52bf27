package auth

import (
	"sort"
	"strings"
)

// UserRole is the application wide role carried in tokens
type UserRole = string

const (
	// RoleAdmin operates the platform
	RoleAdmin UserRole = "ADMIN"
	// RoleUser is the default role for registered accounts
	RoleUser UserRole = "USER"
	// RoleGuest has read only access
	RoleGuest UserRole = "GUEST"
)

// FamilyRole is the role a user holds inside their family
type FamilyRole = string

const (
	FamilyRoleAdmin  FamilyRole = "admin"
	FamilyRoleMember FamilyRole = "member"
)

// NormalizeRole returns the role to use for a principal, defaulting to USER.
func NormalizeRole(role string) string {
	role = strings.TrimSpace(role)
	if role == "" {
		return RoleUser
	}
	return role
}

// RoleSet is the set of roles a route accepts. An empty set marks the
// route as public. Membership is case-insensitive.
type RoleSet struct {
	roles map[string]struct{}
}

// Roles builds a RoleSet from the given role names.
func Roles(roles ...string) RoleSet {
	rs := RoleSet{roles: make(map[string]struct{}, len(roles))}
	for _, r := range roles {
		r = strings.ToUpper(strings.TrimSpace(r))
		if r == "" {
			continue
		}
		rs.roles[r] = struct{}{}
	}
	return rs
}

// Public is the empty RoleSet.
func Public() RoleSet {
	return RoleSet{}
}

// Empty reports whether the set accepts any caller.
func (rs RoleSet) Empty() bool {
	return len(rs.roles) == 0
}

// Contains reports whether role is a member of the set, ignoring case.
func (rs RoleSet) Contains(role string) bool {
	if rs.Empty() {
		return false
	}
	_, ok := rs.roles[strings.ToUpper(strings.TrimSpace(role))]
	return ok
}

// List returns the roles in a stable order.
func (rs RoleSet) List() []string {
	out := make([]string, 0, len(rs.roles))
	for r := range rs.roles {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func (rs RoleSet) String() string {
	if rs.Empty() {
		return "public"
	}
	return strings.Join(rs.List(), ",")
}
