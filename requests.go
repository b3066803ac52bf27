package auth

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const (
	MaxFamilyNameLength = 50
	MinPasswordLength   = 6
	MaxPasswordLength   = 72
)

// RegisterRequest is the payload for account registration
type RegisterRequest struct {
	Phone           string `json:"phone"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Nickname        string `json:"nickname"`
}

func (r RegisterRequest) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Phone, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(MinPasswordLength, MaxPasswordLength)),
		validation.Field(&r.ConfirmPassword, validation.Required),
		validation.Field(&r.Nickname, validation.Length(0, 50)),
	)
	if err != nil {
		return validationError(err)
	}
	if r.Password != r.ConfirmPassword {
		return invalidRequest("passwords do not match", map[string]any{"confirm_password": "must match password"})
	}
	return nil
}

// LoginRequest is the payload for login
type LoginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	return validationError(validation.ValidateStruct(&r,
		validation.Field(&r.Phone, validation.Required),
		validation.Field(&r.Password, validation.Required),
	))
}

// RefreshRequest is the payload for token refresh
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (r RefreshRequest) Validate() error {
	return validationError(validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	))
}

// LogoutRequest optionally carries the refresh token to revoke with the
// access token.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ChangePasswordRequest is the payload for changing the caller's password.
// The refresh token is optional and revoked along with the access token.
type ChangePasswordRequest struct {
	OldPassword  string `json:"old_password"`
	NewPassword  string `json:"new_password"`
	RefreshToken string `json:"refresh_token"`
}

func (r ChangePasswordRequest) Validate() error {
	return validationError(validation.ValidateStruct(&r,
		validation.Field(&r.OldPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(MinPasswordLength, MaxPasswordLength)),
	))
}

// CreateFamilyRequest is the payload for creating a family
type CreateFamilyRequest struct {
	Name string `json:"name"`
}

func (r CreateFamilyRequest) Validate() error {
	return validateFamilyName(r.Name)
}

// RenameFamilyRequest is the payload for renaming a family
type RenameFamilyRequest struct {
	Name string `json:"name"`
}

func (r RenameFamilyRequest) Validate() error {
	return validateFamilyName(r.Name)
}

// JoinFamilyRequest is the payload for joining a family
type JoinFamilyRequest struct {
	InviteCode string `json:"invite_code"`
}

func (r JoinFamilyRequest) Validate() error {
	return validationError(validation.Validate(strings.TrimSpace(r.InviteCode),
		validation.Required.Error("invite code is required"),
	))
}

func validateFamilyName(name string) error {
	name = strings.TrimSpace(name)
	return validationError(validation.Validate(name,
		validation.Required.Error("family name is required"),
		validation.RuneLength(1, MaxFamilyNameLength),
	))
}

// validateUserID checks the textual form of a user id from a path param
func validateUserID(raw string) error {
	return validationError(validation.Validate(raw, validation.Required, is.UUID))
}

func validationError(err error) error {
	if err == nil {
		return nil
	}

	meta := map[string]any{}
	if errs, ok := err.(validation.Errors); ok {
		for field, fieldErr := range errs {
			meta[field] = fieldErr.Error()
		}
	} else {
		meta["error"] = err.Error()
	}

	return invalidRequest("invalid request: "+err.Error(), meta)
}
