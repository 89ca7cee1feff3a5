package models

// Role is the account role carried in tokens and identities.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Capability is an operation gated by role.
type Capability int

const (
	CapChat Capability = iota
	CapAdminQueryUsers
	CapAdminQueryMessages
	CapAdminPresence
)

var roleCapabilities = map[Role]map[Capability]bool{
	RoleUser: {
		CapChat: true,
	},
	RoleAdmin: {
		CapChat:               true,
		CapAdminQueryUsers:    true,
		CapAdminQueryMessages: true,
		CapAdminPresence:      true,
	},
}

// Identity is what the credential gate yields for one connection.
// It is immutable for the lifetime of the connection.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
}

// Can is the single authorization predicate for role-gated operations.
func (i Identity) Can(c Capability) bool {
	return roleCapabilities[i.Role][c]
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
