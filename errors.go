package auth

import (
	"context"
	stderrors "errors"

	goerrors "github.com/goliatone/go-errors"
)

// ErrorKind is the coarse classification callers branch on.
type ErrorKind string

const (
	KindUnauthenticated ErrorKind = "unauthenticated"
	KindUnauthorized    ErrorKind = "unauthorized"
	KindNotFound        ErrorKind = "not_found"
	KindConflict        ErrorKind = "conflict"
	KindInvalidRequest  ErrorKind = "invalid_request"
	KindInternal        ErrorKind = "internal"
)

// Text codes exposed at the HTTP boundary.
const (
	TextCodeUnauthenticated     = "UNAUTHENTICATED"
	TextCodeForbidden           = "FORBIDDEN"
	TextCodeTokenExpired        = "TOKEN_EXPIRED"
	TextCodeTokenMalformed      = "TOKEN_MALFORMED"
	TextCodeTokenKind           = "TOKEN_KIND_MISMATCH"
	TextCodeTokenRevoked        = "TOKEN_REVOKED"
	TextCodeSigningKey          = "SIGNING_KEY_TOO_SHORT"
	TextCodeClaimsMutated       = "CLAIMS_MUTATED"
	TextCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	TextCodeWrongPassword       = "CURRENT_PASSWORD_INCORRECT"
	TextCodePasswordChanged     = "PASSWORD_CHANGED_CONCURRENTLY"
	TextCodeAccountDisabled     = "ACCOUNT_DISABLED"
	TextCodeUserNotFound        = "USER_NOT_FOUND"
	TextCodeUserExists          = "USER_ALREADY_EXISTS"
	TextCodeAlreadyInFamily     = "ALREADY_IN_FAMILY"
	TextCodeNotInFamily         = "NOT_IN_FAMILY"
	TextCodeFamilyNotFound      = "FAMILY_NOT_FOUND"
	TextCodeInviteCodeInvalid   = "INVITE_CODE_INVALID"
	TextCodeInviteCodeExhausted = "INVITE_CODE_EXHAUSTED"
	TextCodeNotFamilyAdmin      = "NOT_FAMILY_ADMIN"
	TextCodeAdminMustTransfer   = "ADMIN_CANNOT_LEAVE"
	TextCodeCannotRemoveSelf    = "CANNOT_REMOVE_ADMIN"
	TextCodeMemberNotFound      = "MEMBER_NOT_FOUND"
	TextCodeFamilyChanged       = "FAMILY_CHANGED"
	TextCodeInvalidRequest      = "INVALID_REQUEST"
	TextCodeStoreUnavailable    = "STORE_UNAVAILABLE"
	TextCodeTransactionFailed   = "TRANSACTION_FAILED"
)

var (
	ErrUnauthenticated = goerrors.New("authentication required", goerrors.CategoryAuth).
				WithTextCode(TextCodeUnauthenticated).WithCode(goerrors.CodeUnauthorized)
	ErrForbidden = goerrors.New("insufficient role for this operation", goerrors.CategoryAuthz).
			WithTextCode(TextCodeForbidden).WithCode(goerrors.CodeForbidden)

	ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
			WithTextCode(TextCodeTokenExpired).WithCode(goerrors.CodeUnauthorized)
	ErrTokenMalformed = goerrors.New("token is malformed or has an invalid signature", goerrors.CategoryAuth).
				WithTextCode(TextCodeTokenMalformed).WithCode(goerrors.CodeUnauthorized)
	ErrTokenKind = goerrors.New("token cannot be used for this purpose", goerrors.CategoryAuth).
			WithTextCode(TextCodeTokenKind).WithCode(goerrors.CodeUnauthorized)
	ErrTokenRevoked = goerrors.New("token has been revoked", goerrors.CategoryAuth).
			WithTextCode(TextCodeTokenRevoked).WithCode(goerrors.CodeUnauthorized)
	ErrSigningKeyTooShort = goerrors.New("signing key must be at least 256 bits", goerrors.CategoryInternal).
				WithTextCode(TextCodeSigningKey).WithCode(goerrors.CodeInternal)
	ErrClaimsMutated = goerrors.New("claims decorator changed a pinned claim", goerrors.CategoryInternal).
				WithTextCode(TextCodeClaimsMutated).WithCode(goerrors.CodeInternal)

	ErrInvalidCredentials = goerrors.New("phone number or password is incorrect", goerrors.CategoryAuth).
				WithTextCode(TextCodeInvalidCredentials).WithCode(goerrors.CodeUnauthorized)
	ErrWrongPassword = goerrors.New("current password is incorrect", goerrors.CategoryBadInput).
				WithTextCode(TextCodeWrongPassword).WithCode(goerrors.CodeBadRequest)
	ErrPasswordChanged = goerrors.New("password changed concurrently, retry the operation", goerrors.CategoryConflict).
				WithTextCode(TextCodePasswordChanged).WithCode(goerrors.CodeConflict)
	ErrAccountDisabled = goerrors.New("account is disabled", goerrors.CategoryAuthz).
				WithTextCode(TextCodeAccountDisabled).WithCode(goerrors.CodeForbidden)
	ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
			WithTextCode(TextCodeUserNotFound).WithCode(goerrors.CodeNotFound)
	ErrUserAlreadyExists = goerrors.New("phone number is already registered", goerrors.CategoryConflict).
				WithTextCode(TextCodeUserExists).WithCode(goerrors.CodeConflict)

	ErrAlreadyInFamily = goerrors.New("user already belongs to a family", goerrors.CategoryConflict).
				WithTextCode(TextCodeAlreadyInFamily).WithCode(goerrors.CodeConflict)
	ErrNotInFamily = goerrors.New("user does not belong to a family", goerrors.CategoryNotFound).
			WithTextCode(TextCodeNotInFamily).WithCode(goerrors.CodeNotFound)
	ErrFamilyNotFound = goerrors.New("family not found", goerrors.CategoryNotFound).
				WithTextCode(TextCodeFamilyNotFound).WithCode(goerrors.CodeNotFound)
	ErrInviteCodeInvalid = goerrors.New("invite code is invalid or expired", goerrors.CategoryNotFound).
				WithTextCode(TextCodeInviteCodeInvalid).WithCode(goerrors.CodeNotFound)
	ErrInviteCodeExhausted = goerrors.New("unable to allocate a unique invite code", goerrors.CategoryInternal).
				WithTextCode(TextCodeInviteCodeExhausted).WithCode(goerrors.CodeInternal)
	ErrNotFamilyAdmin = goerrors.New("only the family admin can do this", goerrors.CategoryAuthz).
				WithTextCode(TextCodeNotFamilyAdmin).WithCode(goerrors.CodeForbidden)
	ErrAdminMustTransfer = goerrors.New("admin cannot leave while other members remain", goerrors.CategoryConflict).
				WithTextCode(TextCodeAdminMustTransfer).WithCode(goerrors.CodeConflict)
	ErrCannotRemoveSelf = goerrors.New("admin cannot remove themselves", goerrors.CategoryBadInput).
				WithTextCode(TextCodeCannotRemoveSelf).WithCode(goerrors.CodeBadRequest)
	ErrMemberNotFound = goerrors.New("member not found in this family", goerrors.CategoryNotFound).
				WithTextCode(TextCodeMemberNotFound).WithCode(goerrors.CodeNotFound)
	ErrFamilyChanged = goerrors.New("family changed concurrently, retry the operation", goerrors.CategoryConflict).
				WithTextCode(TextCodeFamilyChanged).WithCode(goerrors.CodeConflict)

	ErrInvalidRequest = goerrors.New("invalid request", goerrors.CategoryBadInput).
				WithTextCode(TextCodeInvalidRequest).WithCode(goerrors.CodeBadRequest)
	ErrStoreUnavailable = goerrors.New("backing store unavailable", goerrors.CategoryInternal).
				WithTextCode(TextCodeStoreUnavailable).WithCode(goerrors.CodeInternal)
	ErrTransactionFailed = goerrors.New("storage transaction failed", goerrors.CategoryInternal).
				WithTextCode(TextCodeTransactionFailed).WithCode(goerrors.CodeInternal)
)

// KindOf classifies err. Nil maps to the empty kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return KindInternal
	}

	switch richErr.Category {
	case goerrors.CategoryAuth:
		return KindUnauthenticated
	case goerrors.CategoryAuthz:
		return KindUnauthorized
	case goerrors.CategoryNotFound:
		return KindNotFound
	case goerrors.CategoryConflict:
		return KindConflict
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return KindInvalidRequest
	default:
		return KindInternal
	}
}

// HasTextCode reports whether err carries the given text code.
func HasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return false
	}
	return richErr.TextCode == code
}

// withSource returns a copy of base carrying err as its source and the
// optional metadata.
func withSource(base *goerrors.Error, err error, meta map[string]any) *goerrors.Error {
	clone := base.Clone()
	if clone == nil {
		clone = base
	}
	if err != nil {
		clone.Source = err
	}
	if len(meta) > 0 {
		clone.WithMetadata(meta)
	}
	return clone
}

// invalidRequest builds a bad input error with a specific message.
func invalidRequest(msg string, meta map[string]any) *goerrors.Error {
	e := goerrors.New(msg, goerrors.CategoryBadInput).
		WithTextCode(TextCodeInvalidRequest).WithCode(goerrors.CodeBadRequest)
	if len(meta) > 0 {
		e.WithMetadata(meta)
	}
	return e
}

// storeError maps a storage failure onto the taxonomy while keeping
// classified errors intact.
func storeError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr != nil {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return withSource(ErrStoreUnavailable, err, map[string]any{"operation": msg})
	}
	return withSource(ErrTransactionFailed, err, map[string]any{"operation": msg})
}
