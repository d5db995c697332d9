package models

import "github.com/google/uuid"

type UserRole string

const (
	RoleMentor UserRole = "mentor"
	RoleMentee UserRole = "mentee"
	RoleAdmin  UserRole = "admin"
)

// User is the slice of the profile service the messaging core reads.
type User struct {
	ID           uuid.UUID `db:"id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	Role         UserRole  `db:"role"`
	HourlyRate   *float64  `db:"hourly_rate"`
	ProfilePic   *string   `db:"profile_pic"`
	SessionCount int       `db:"session_count"`
	Rating       float64   `db:"rating"`
}

func (u *User) IsMentor() bool {
	return u.Role == RoleMentor
}

func (u *User) IsMentee() bool {
	return u.Role == RoleMentee
}
