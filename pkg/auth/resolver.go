package auth

import (
	"context"
	"errors"
	"fmt"
)

// UserFinder looks up users by name. Implementations return an error
// matching ErrUserNotFound when no such user exists; any other error is
// treated as an infrastructure fault.
type UserFinder interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
}

// dummyVerifier is implemented by hashers that can spend the cost of a
// verification without a real hash
type dummyVerifier interface {
	VerifyDummy(password string) bool
}

// IdentityResolver turns credentials or session tokens into users
type IdentityResolver struct {
	users  UserFinder
	hasher PasswordHasher
	tokens *TokenService
}

// NewIdentityResolver creates a resolver over the given collaborators
func NewIdentityResolver(users UserFinder, hasher PasswordHasher, tokens *TokenService) *IdentityResolver {
	return &IdentityResolver{
		users:  users,
		hasher: hasher,
		tokens: tokens,
	}
}

// ResolveByCredentials authenticates a username/password pair. An unknown
// user and a wrong password both yield ErrInvalidCredentials.
func (r *IdentityResolver) ResolveByCredentials(ctx context.Context, username, password string) (*User, error) {
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := r.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			r.burnVerification(password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		r.burnVerification(password)
		return nil, ErrInvalidCredentials
	}

	if !r.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// ResolveByToken authenticates a bearer token. A token naming a user that no
// longer exists yields ErrUserNotFound.
func (r *IdentityResolver) ResolveByToken(ctx context.Context, token string) (*User, error) {
	claims, err := r.tokens.Verify(token)
	if err != nil {
		return nil, err
	}

	user, err := r.users.FindByUsername(ctx, claims.Username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// IssueToken signs a session token for user
func (r *IdentityResolver) IssueToken(user *User) (string, error) {
	if user == nil {
		return "", errors.New("cannot issue token for nil user")
	}
	return r.tokens.Issue(user.Username)
}

func (r *IdentityResolver) burnVerification(password string) {
	if dv, ok := r.hasher.(dummyVerifier); ok {
		dv.VerifyDummy(password)
	}
}
