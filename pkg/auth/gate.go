package auth

import "fmt"

// Authorize allows the request when user's role grants required. A nil user
// means identity resolution did not happen or failed and is rejected as
// unauthenticated.
func Authorize(user *User, required Capability) error {
	if user == nil {
		return ErrUnauthenticated
	}
	if !HasCapability(user.Role, required) {
		return fmt.Errorf("%w: role %q lacks %q", ErrAccessDenied, user.Role, required)
	}
	return nil
}

// AuthorizeIdentity is Authorize for an attached request identity
func AuthorizeIdentity(id *Identity, required Capability) error {
	if id == nil {
		return ErrUnauthenticated
	}
	return Authorize(id.User, required)
}
