package auth

import "strings"

// Role is the access level embedded in a session token.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"

	// RoleUnauthenticated is reported when no valid session exists.
	RoleUnauthenticated Role = "unauthenticated"
)

// ParseRole normalizes s and reports whether it names an assignable role.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.TrimSpace(strings.ToLower(s))); r {
	case RoleAdmin, RoleUser:
		return r, true
	default:
		return "", false
	}
}

func (r Role) String() string { return string(r) }

// Identity is the authenticated caller as decoded from token claims.
type Identity struct {
	ID    string `json:"id"`
	NSTIN string `json:"nstin"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }
