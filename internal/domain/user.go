package domain

import "time"

// Role grants a user capabilities in workflow transitions and notification
// fan-out.
type Role string

const (
	RoleAgent    Role = "AGENT"
	RoleApprover Role = "APPROVER"
	RoleOnCall   Role = "ON_CALL"
	RoleAdmin    Role = "ADMIN"
)

// User is a directory identity supplied by the identity collaborator.
type User struct {
	ID          string
	Email       string
	DisplayName string
	Roles       []Role
	IsActive    bool
	CreatedAt   time.Time
}

// HasRole reports whether the user carries the given role.
func (u *User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
