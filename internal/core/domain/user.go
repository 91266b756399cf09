package domain

import "strings"

// Role is the normalized role of a portal user. The backend may send it as a
// bare string or as {"roleName": "..."}; both shapes become a Role at the
// API boundary and nothing past that point sees the raw form.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleResident Role = "RESIDENT"
)

// NormalizeRole trims surrounding whitespace. Case is preserved; comparisons
// go through Is.
func NormalizeRole(s string) Role {
	return Role(strings.TrimSpace(s))
}

// Is reports whether r and other name the same role, ignoring case.
func (r Role) Is(other Role) bool {
	return r != "" && strings.EqualFold(string(r), string(other))
}

// IsAdmin reports whether r is the administrator role.
func (r Role) IsAdmin() bool {
	return r.Is(RoleAdmin)
}

// User is the server-confirmed identity of whoever is using the portal.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	Role        Role   `json:"role"`
}

// Profile is what the profile endpoint returns, already normalized.
type Profile struct {
	ID          string
	Email       string
	DisplayName string
	Role        Role
}

// Claims are the unverified fields read out of a credential. They are a hint
// for the role before the profile fetch completes and are never used to
// authorize anything.
type Claims struct {
	Email  string
	UserID string
	Role   Role
}

// Credentials are what a user submits on the login form.
type Credentials struct {
	Identifier string `json:"email" validate:"required"`
	Password   string `json:"password" validate:"required"`
}
