// internal/domain/models/user.go
package models

import "time"

// Roles that take part in voting.
const (
	RoleAdmin       = "admin"
	RoleBoardMember = "board_member"
)

// User statuses.
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// User is a board member, administrator or staff account.
//
// NOTE:
//   - Profiles are managed elsewhere; this service only reads users to
//     resolve voters and summary recipients.
type User struct {
	ID        string    `bson:"_id" json:"id"`
	FullName  string    `bson:"full_name" json:"full_name"`
	Email     string    `bson:"email" json:"email"`
	Role      string    `bson:"role" json:"role"` // admin | board_member | staff
	Status    string    `bson:"status,omitempty" json:"status,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IsEligibleVoter reports whether the user's role and status put them on the
// voting roster.
func (u User) IsEligibleVoter() bool {
	if u.Status != "" && u.Status != UserStatusActive {
		return false
	}
	return u.Role == RoleAdmin || u.Role == RoleBoardMember
}
