package auth

// Role is the principal's authorisation level.
type Role string

const (
	RolePlayer     Role = "player"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RolePlayer || r == RoleAdmin || r == RoleSuperAdmin
}

// IsAdmin reports whether r may use admin operations.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// AdminRoles returns roles allowed on admin routes.
func AdminRoles() []Role {
	return []Role{RoleAdmin, RoleSuperAdmin}
}

// Principal is the authenticated caller.
type Principal struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}
