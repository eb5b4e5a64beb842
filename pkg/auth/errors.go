package auth

import "errors"

var (
	// Identity resolution failures. Unknown user and wrong password share
	// ErrInvalidCredentials so usernames cannot be enumerated.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrUserNotFound       = errors.New("user not found")

	// Gate failures.
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrAccessDenied    = errors.New("access denied")

	// Input errors.
	ErrEmptyPassword   = errors.New("password cannot be empty")
	ErrPasswordTooLong = errors.New("password exceeds 72 bytes")
	ErrInvalidRole     = errors.New("invalid role")
)

// Kind values returned by Kind
const (
	KindInvalidCredentials = "invalid_credentials"
	KindInvalidToken       = "invalid_token"
	KindUserNotFound       = "user_not_found"
	KindUnauthenticated    = "unauthenticated"
	KindAccessDenied       = "access_denied"
	KindInternal           = "internal"
)

// Kind classifies an error from the identity pipeline into a stable label
// for logs and metrics. Errors that are not authentication or authorization
// failures are reported as KindInternal.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.Is(err, ErrInvalidToken):
		return KindInvalidToken
	case errors.Is(err, ErrUserNotFound):
		return KindUserNotFound
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, ErrAccessDenied):
		return KindAccessDenied
	default:
		return KindInternal
	}
}
