package enums

import "fmt"

// MemberRole represents a channel-level permissions role.
type MemberRole string

const (
	MemberRoleAdmin  MemberRole = "admin"
	MemberRoleMember MemberRole = "member"
)

var validMemberRoles = []MemberRole{
	MemberRoleAdmin,
	MemberRoleMember,
}

// String implements fmt.Stringer.
func (m MemberRole) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MemberRole.
func (m MemberRole) IsValid() bool {
	for _, candidate := range validMemberRoles {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMemberRole converts a raw string into a validated MemberRole.
func ParseMemberRole(raw string) (MemberRole, error) {
	role := MemberRole(raw)
	if !role.IsValid() {
		return "", fmt.Errorf("invalid member role %q", raw)
	}
	return role, nil
}
