package auth

// UserIdentity adapts a User into the Identity interface for token generation.
type UserIdentity struct {
	user *User
}

// NewIdentityFromUser returns an Identity adapter for the provided user.
func NewIdentityFromUser(user *User) Identity {
	if user == nil {
		return nil
	}
	return UserIdentity{user: user}
}

// ID returns the user's ID as a string.
func (u UserIdentity) ID() string {
	if u.user == nil {
		return ""
	}
	return u.user.ID.String()
}

// Identifier returns the phone number the user logs in with.
func (u UserIdentity) Identifier() string {
	if u.user == nil {
		return ""
	}
	return u.user.Phone
}

// Role returns the user's application role, USER when unset.
func (u UserIdentity) Role() string {
	if u.user == nil {
		return ""
	}
	return NormalizeRole(u.user.Role)
}

// User returns the wrapped record.
func (u UserIdentity) User() *User {
	return u.user
}
