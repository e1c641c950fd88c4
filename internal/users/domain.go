package users

import (
	"time"

	"github.com/obra-ledger/obra-ledger/internal/rbac"
)

// User represents a ledger participant.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Role      rbac.Role `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Actor projects the user onto the authorisation model.
func (u User) Actor() rbac.Actor {
	return rbac.Actor{ID: u.ID, Role: u.Role}
}
