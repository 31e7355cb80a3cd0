package domain

import (
	"time"
)

// Role is the single active application role of a user.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleOwner Role = "owner"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOwner, RoleUser:
		return true
	}
	return false
}

// Assignment is the user_roles row. A user has at most one.
type Assignment struct {
	ID        string    `json:"id,omitempty"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}
