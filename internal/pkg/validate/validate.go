package validate

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/youme-api/internal/domain"
)

// MinPasswordLength mirrors the identity provider's own floor.
const MinPasswordLength = 6

// v is the package-level singleton validator. It is initialised once at
// package load time.
var v = validator.New()

// Struct validates the given struct using its validate tags.
// Returns a human-readable error wrapping domain.ErrInvalidInput, or nil.
func Struct(s interface{}) error {
	if err := v.Struct(s); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		var msgs []string
		for _, fe := range ve {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%s: %w", strings.Join(msgs, "; "), domain.ErrInvalidInput)
	}
	return nil
}

// Email checks that email is present and well formed.
func Email(email string) error {
	if strings.TrimSpace(email) == "" {
		return invalid("Email cannot be empty")
	}
	if v.Var(strings.TrimSpace(email), "email") != nil {
		return invalid("Please enter a valid email address")
	}
	return nil
}

// Password checks that password is present and long enough.
func Password(password string) error {
	if password == "" {
		return invalid("Password cannot be empty")
	}
	if v.Var(password, fmt.Sprintf("min=%d", MinPasswordLength)) != nil {
		return invalid(fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
	}
	return nil
}

// Credentials validates an email/password pair, email first.
func Credentials(email, password string) error {
	if err := Email(email); err != nil {
		return err
	}
	return Password(password)
}

type inputError struct{ msg string }

func (e *inputError) Error() string { return e.msg }

func (e *inputError) Unwrap() error { return domain.ErrInvalidInput }

func invalid(msg string) error { return &inputError{msg: msg} }
