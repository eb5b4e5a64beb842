package auth

import (
	"fmt"
	"strings"
	"time"
)

// User represents an account that can sign in to the service
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Never expose hash
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Capabilities returns the capabilities granted by the user's role
func (u *User) Capabilities() []Capability {
	if u == nil {
		return nil
	}
	return CapabilitiesFor(u.Role)
}

// Role is a named bundle of capabilities
type Role string

const (
	RoleAdmin  Role = "admin"  // Full access to todos and users
	RoleEditor Role = "editor" // Can read and update todos
	RoleWriter Role = "writer" // Can only create todos
)

// DefaultRole is assigned when signup does not name a role.
// It is the least privileged role.
const DefaultRole = RoleWriter

// ParseRole normalizes a role name. An empty name yields DefaultRole.
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultRole, nil
	}
	switch r := Role(s); r {
	case RoleAdmin, RoleEditor, RoleWriter:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// Capability is an atomic permission on the todo resource
type Capability string

const (
	CapabilityCreate Capability = "create"
	CapabilityRead   Capability = "read"
	CapabilityUpdate Capability = "update"
	CapabilityDelete Capability = "delete"
)

// Scheme identifies how a request was authenticated
type Scheme string

const (
	SchemeBasic  Scheme = "basic"
	SchemeBearer Scheme = "bearer"
)

// Identity is the authenticated caller attached to a request.
// It is built once per request and never modified afterwards.
type Identity struct {
	User         *User
	Scheme       Scheme
	Capabilities []Capability
}

// NewIdentity builds an identity for an authenticated user
func NewIdentity(user *User, scheme Scheme) *Identity {
	return &Identity{
		User:         user,
		Scheme:       scheme,
		Capabilities: user.Capabilities(),
	}
}

// Can reports whether the identity holds the capability
func (id *Identity) Can(c Capability) bool {
	if id == nil {
		return false
	}
	for _, have := range id.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}
