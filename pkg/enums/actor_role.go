package enums

// ActorRole is the role claim carried by identity provider tokens.
type ActorRole string

const (
	ActorRoleBuyer  ActorRole = "buyer"
	ActorRoleVendor ActorRole = "vendor"
	ActorRoleAdmin  ActorRole = "admin"
	// ActorRoleSystem is used by background jobs and never issued in tokens.
	ActorRoleSystem ActorRole = "system"
)

var tokenActorRoles = []ActorRole{
	ActorRoleBuyer,
	ActorRoleVendor,
	ActorRoleAdmin,
}

// String implements fmt.Stringer.
func (r ActorRole) String() string {
	return string(r)
}

// IsValid reports whether the role may appear in an access token.
func (r ActorRole) IsValid() bool {
	return member(r, tokenActorRoles)
}

// IsPrivileged reports whether the role may act on any order.
func (r ActorRole) IsPrivileged() bool {
	return r == ActorRoleAdmin || r == ActorRoleSystem
}

// ParseActorRole converts a token claim into an ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	return lookup("actor role", value, tokenActorRoles)
}
