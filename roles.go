package authsession

// Role is the identity role kept in the profile document
type Role string

const (
	// RoleUser is the default role
	RoleUser Role = "user"
	// RoleAdmin can reach administrative screens
	RoleAdmin Role = "admin"
)

// IsValid checks if the role is one of the predefined roles
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsAdmin reports whether the role grants administrative access
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

func (r Role) String() string {
	return string(r)
}

// GetAllRoles returns all predefined roles
func GetAllRoles() []Role {
	return []Role{
		RoleUser,
		RoleAdmin,
	}
}

// ParseRole safely parses a string into a Role
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, role.IsValid()
}

// roleOrDefault falls back to RoleUser for empty or unknown values
func roleOrDefault(r Role) Role {
	if r.IsValid() {
		return r
	}
	return RoleUser
}
