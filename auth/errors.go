package auth

import "errors"

// ErrAuth is the root of every authentication failure.
var ErrAuth = errors.New("authentication failed")

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong
	// password. The two cases are not distinguished.
	ErrInvalidCredentials = authError("invalid email or password")

	// ErrUserExists is returned when signing up with a registered email.
	ErrUserExists = authError("an account with that email already exists")

	// ErrUnauthenticated is returned for a missing, unknown or expired token.
	ErrUnauthenticated = authError("not signed in")

	// ErrInvalidEmail is returned for an email without an @.
	ErrInvalidEmail = authError("invalid email address")

	// ErrWeakPassword is returned for passwords shorter than MinPasswordLength.
	ErrWeakPassword = authError("password must be at least 6 characters")

	// ErrPasswordTooLong is returned for passwords longer than MaxPasswordLength.
	ErrPasswordTooLong = authError("password must be at most 72 bytes")
)

func authError(msg string) error {
	return &sentinel{msg: msg}
}

type sentinel struct {
	msg string
}

func (e *sentinel) Error() string { return e.msg }

func (e *sentinel) Is(target error) bool { return target == ErrAuth }
