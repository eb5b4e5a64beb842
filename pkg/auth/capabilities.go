package auth

// roleCapabilities is the fixed role table. The roles are not nested: an
// editor cannot create and a writer cannot read.
var roleCapabilities = map[Role][]Capability{
	RoleAdmin:  {CapabilityCreate, CapabilityRead, CapabilityUpdate, CapabilityDelete},
	RoleEditor: {CapabilityRead, CapabilityUpdate},
	RoleWriter: {CapabilityCreate},
}

// CapabilitiesFor returns a copy of the capabilities granted to role.
// Unknown roles get an empty set.
func CapabilitiesFor(role Role) []Capability {
	caps, ok := roleCapabilities[role]
	if !ok {
		return []Capability{}
	}
	out := make([]Capability, len(caps))
	copy(out, caps)
	return out
}

// HasCapability reports whether role grants c
func HasCapability(role Role, c Capability) bool {
	for _, have := range roleCapabilities[role] {
		if have == c {
			return true
		}
	}
	return false
}

// Roles lists every known role in a stable order
func Roles() []Role {
	return []Role{RoleAdmin, RoleEditor, RoleWriter}
}
