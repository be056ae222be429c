package local

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	authsession "github.com/goliatone/go-authsession"
	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

var errPasswordMismatch = errors.New("password mismatch")

func hashPassword(password string, cost int) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}
	return string(h), nil
}

// comparePassword returns errPasswordMismatch when password does not match hash
func comparePassword(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return errPasswordMismatch
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to compare password hash")
	}
	return nil
}

func validateEmail(email string) error {
	err := validation.Errors{
		"email": validation.Validate(email, validation.Required, is.EmailFormat),
	}.Filter()
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid email")
	}
	return nil
}

func validatePassword(password string, minLength int) error {
	if err := validation.Validate(password, validation.Required, validation.RuneLength(minLength, 0)); err != nil {
		return authsession.ErrWeakPassword.Clone().WithMetadata(map[string]any{
			"min_length": minLength,
			"reason":     err.Error(),
		})
	}
	return nil
}
