package auth_test

import (
	"testing"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-family-auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizationGuard(t *testing.T) {
	guard := auth.NewAuthorizationGuard(nil)
	principal := func(role string) *auth.Principal {
		return &auth.Principal{UserID: uuid.New(), Role: role}
	}

	tests := []struct {
		name      string
		principal *auth.Principal
		required  auth.RoleSet
		wantKind  auth.ErrorKind
	}{
		{name: "public route without principal", principal: nil, required: auth.Public()},
		{name: "public route with principal", principal: principal(auth.RoleGuest), required: auth.Roles()},
		{name: "admin on admin or user", principal: principal("ADMIN"), required: auth.Roles(auth.RoleAdmin, auth.RoleUser)},
		{name: "user on admin or user", principal: principal("USER"), required: auth.Roles(auth.RoleAdmin, auth.RoleUser)},
		{name: "guest on admin or user", principal: principal("GUEST"), required: auth.Roles(auth.RoleAdmin, auth.RoleUser), wantKind: auth.KindUnauthorized},
		{name: "lower case role", principal: principal("admin"), required: auth.Roles(auth.RoleAdmin)},
		{name: "lower case required", principal: principal("USER"), required: auth.Roles("user")},
		{name: "empty role defaults to user", principal: principal(""), required: auth.Roles(auth.RoleUser)},
		{name: "missing principal", principal: nil, required: auth.Roles(auth.RoleUser), wantKind: auth.KindUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.Authorize(tt.principal, tt.required)
			if tt.wantKind == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, auth.KindOf(err))
		})
	}
}

func TestAuthorizationGuardDenialMetadata(t *testing.T) {
	guard := auth.NewAuthorizationGuard(nil)
	err := guard.Authorize(&auth.Principal{UserID: uuid.New(), Role: "GUEST"}, auth.Roles("user", "admin"))
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, auth.TextCodeForbidden, richErr.TextCode)
	assert.Equal(t, "GUEST", richErr.Metadata["role"])
	assert.Equal(t, []string{"ADMIN", "USER"}, richErr.Metadata["required"])

	assert.Nil(t, auth.ErrForbidden.Metadata["role"], "shared sentinel is not mutated")
}

func TestRoleSet(t *testing.T) {
	rs := auth.Roles(" admin", "User", "", "USER")

	assert.False(t, rs.Empty())
	assert.True(t, rs.Contains("ADMIN"))
	assert.True(t, rs.Contains("user"))
	assert.False(t, rs.Contains("guest"))
	assert.Equal(t, []string{"ADMIN", "USER"}, rs.List())
	assert.Equal(t, "ADMIN,USER", rs.String())

	assert.True(t, auth.Public().Empty())
	assert.False(t, auth.Public().Contains("ADMIN"))
	assert.Equal(t, "public", auth.Public().String())
}

func TestNormalizeRole(t *testing.T) {
	assert.Equal(t, auth.RoleUser, auth.NormalizeRole(""))
	assert.Equal(t, auth.RoleUser, auth.NormalizeRole("   "))
	assert.Equal(t, "admin", auth.NormalizeRole(" admin "))
}
