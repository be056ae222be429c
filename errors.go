package authsession

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCredentials   = goerrors.TextCodeInvalidCredentials
	TextCodeAccountDisabled      = goerrors.TextCodeAccountDisabled
	TextCodeEmailInUse           = "EMAIL_IN_USE"
	TextCodeWeakPassword         = "WEAK_PASSWORD"
	TextCodeNoSuchAccount        = "NO_SUCH_ACCOUNT"
	TextCodeRateLimited          = goerrors.TextCodeTooManyAttempts
	TextCodeAuthorizationExpired = "AUTHORIZATION_EXPIRED"
	TextCodeUnknown              = "UNKNOWN_PROVIDER_ERROR"
	TextCodeNoSession            = goerrors.TextCodeSessionNotFound
	TextCodePermissionDenied     = "PERMISSION_DENIED"
	TextCodeProfileNotFound      = "PROFILE_NOT_FOUND"
)

// ErrInvalidCredentials wrong email/password pair
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountDisabled the provider account was disabled
var ErrAccountDisabled = goerrors.New("account disabled", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountDisabled).
	WithCode(goerrors.CodeForbidden)

// ErrEmailInUse another account already uses the email
var ErrEmailInUse = goerrors.New("email already in use", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailInUse).
	WithCode(goerrors.CodeConflict)

// ErrWeakPassword the password does not meet the provider rules
var ErrWeakPassword = goerrors.New("password is too weak", goerrors.CategoryValidation).
	WithTextCode(TextCodeWeakPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrNoSuchAccount no account for the given email
var ErrNoSuchAccount = goerrors.New("no account for email", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNoSuchAccount).
	WithCode(goerrors.CodeNotFound)

// ErrRateLimited too many attempts
var ErrRateLimited = goerrors.New("too many attempts, try again later", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeRateLimited).
	WithCode(goerrors.CodeTooManyRequests)

// ErrAuthorizationExpired the credential used on an outbound call was rejected.
// Handled internally by Transport.
var ErrAuthorizationExpired = goerrors.New("authorization expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeAuthorizationExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnknown wraps unmapped provider errors
var ErrUnknown = goerrors.New("unknown identity provider error", goerrors.CategoryExternal).
	WithTextCode(TextCodeUnknown).
	WithCode(goerrors.CodeInternal)

// ErrNoSession the operation needs an authenticated session
var ErrNoSession = goerrors.New("no authenticated session", goerrors.CategoryAuth).
	WithTextCode(TextCodeNoSession).
	WithCode(goerrors.CodeUnauthorized)

// ErrPermissionDenied the actor is not allowed to perform the change
var ErrPermissionDenied = goerrors.New("permission denied", goerrors.CategoryAuthz).
	WithTextCode(TextCodePermissionDenied).
	WithCode(goerrors.CodeForbidden)

// ErrProfileNotFound no profile document for the identity
var ErrProfileNotFound = goerrors.New("profile not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeProfileNotFound).
	WithCode(goerrors.CodeNotFound)

var taxonomy = map[string]struct{}{
	TextCodeInvalidCredentials:   {},
	TextCodeAccountDisabled:      {},
	TextCodeEmailInUse:           {},
	TextCodeWeakPassword:         {},
	TextCodeNoSuchAccount:        {},
	TextCodeRateLimited:          {},
	TextCodeAuthorizationExpired: {},
	TextCodeUnknown:              {},
	TextCodeNoSession:            {},
	TextCodePermissionDenied:     {},
	TextCodeProfileNotFound:      {},
}

// NewUnknownError wraps err as ErrUnknown keeping the original error as source
func NewUnknownError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	wrapped := ErrUnknown.Clone()
	wrapped.Source = err
	return wrapped.WithMetadata(map[string]any{
		"provider_message": err.Error(),
	})
}

// MapProviderError leaves taxonomy errors untouched and wraps anything else
// as ErrUnknown.
func MapProviderError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := taxonomy[TextCode(err)]; ok {
		return err
	}
	return NewUnknownError(err)
}

// TextCode returns the text code of a go-errors error, or ""
func TextCode(err error) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}

func hasTextCode(err error, code string) bool {
	return err != nil && TextCode(err) == code
}

func IsInvalidCredentials(err error) bool {
	return hasTextCode(err, TextCodeInvalidCredentials)
}

func IsAccountDisabled(err error) bool {
	return hasTextCode(err, TextCodeAccountDisabled)
}

func IsEmailInUse(err error) bool {
	return hasTextCode(err, TextCodeEmailInUse)
}

func IsWeakPassword(err error) bool {
	return hasTextCode(err, TextCodeWeakPassword)
}

func IsNoSuchAccount(err error) bool {
	return hasTextCode(err, TextCodeNoSuchAccount)
}

func IsRateLimited(err error) bool {
	return hasTextCode(err, TextCodeRateLimited)
}

func IsAuthorizationExpired(err error) bool {
	return hasTextCode(err, TextCodeAuthorizationExpired)
}

func IsUnknown(err error) bool {
	return hasTextCode(err, TextCodeUnknown)
}

func IsNoSession(err error) bool {
	return hasTextCode(err, TextCodeNoSession)
}

func IsPermissionDenied(err error) bool {
	return hasTextCode(err, TextCodePermissionDenied)
}

func IsProfileNotFound(err error) bool {
	return hasTextCode(err, TextCodeProfileNotFound)
}
