// Package auth provides identity and access control for the todo service.
//
// # Overview
//
// This package holds the authentication and authorization core: password
// hashing, session token issuance and verification, the fixed role table,
// identity resolution and the access gate. HTTP concerns live in
// pkg/middleware; persistence lives in pkg/storage.
//
// # Key Components
//
// Password hashing (bcrypt):
//
//	hasher := auth.NewBcryptHasher(auth.DefaultHashCost)
//	hash, err := hasher.Hash("pw123")
//	ok := hasher.Verify("pw123", hash)
//
// Session tokens (HS256 JWT, claims fixed to the username):
//
//	tokens, err := auth.NewTokenService(secret, auth.WithTokenTTL(24*time.Hour))
//	token, err := tokens.Issue("alice")
//	claims, err := tokens.Verify(token)
//
// Roles and capabilities:
//
//	admin  - create, read, update, delete
//	editor - read, update
//	writer - create
//
// Unknown roles have no capabilities. Signup without a role assigns writer.
//
// # Authentication Flow
//
//	resolver := auth.NewIdentityResolver(userStore, hasher, tokens)
//	user, err := resolver.ResolveByCredentials(ctx, "alice", "pw123")
//	user, err = resolver.ResolveByToken(ctx, token)
//	if err := auth.Authorize(user, auth.CapabilityDelete); err != nil {
//		// errors.Is(err, auth.ErrAccessDenied)
//	}
//
// # Errors
//
// Resolution and gate failures are sentinel errors checked with errors.Is:
//
//	ErrInvalidCredentials - unknown user or wrong password (deliberately merged)
//	ErrInvalidToken       - bad signature, malformed or expired token
//	ErrUserNotFound       - valid token for a user that no longer exists
//	ErrUnauthenticated    - no identity at all
//	ErrAccessDenied       - identity lacks the capability
//
// Kind maps an error to a stable label for logs and metrics. Store faults
// are wrapped and never match these sentinels.
//
// # Related Packages
//
//   - pkg/middleware: request pipeline built on this package
//   - pkg/storage: user and todo stores
package auth
