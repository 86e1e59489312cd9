package domain

import "strings"

// AnonymousPrincipal is the identity the backend assigns to unauthenticated callers.
const AnonymousPrincipal Principal = "2vxsx-fae"

// Principal is the textual identity of a caller.
type Principal string

// IsAnonymous reports whether p carries no authenticated identity.
func (p Principal) IsAnonymous() bool {
	return p == "" || p == AnonymousPrincipal
}

// Short abbreviates the principal as "abcde...xyz" for status lines.
func (p Principal) Short() string {
	s := string(p)
	if len(s) <= 8 {
		return s
	}
	return s[:5] + "..." + s[len(s)-3:]
}

// UserRole is the access level the backend grants a caller.
type UserRole string

const (
	RoleAdmin UserRole = "admin"
	RoleUser  UserRole = "user"
	RoleGuest UserRole = "guest"
)

// ParseUserRole normalizes user input into a known role.
func ParseUserRole(value string) (UserRole, error) {
	role := UserRole(strings.ToLower(strings.TrimSpace(value)))
	switch role {
	case RoleAdmin, RoleUser, RoleGuest:
		return role, nil
	}
	return "", invalidRoleError(value)
}

// UserProfile is the caller's display profile.
type UserProfile struct {
	Name string `json:"name"`
}
