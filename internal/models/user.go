package models

import "time"

// User represents a registered list owner
type User struct {
	ID           int64     `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Name         string    `json:"name" db:"name"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// FallbackDisplayName is shown for owners without a name.
const FallbackDisplayName = "Friend"

// DisplayName returns the best display name for the user
func (u *User) DisplayName() string {
	if u == nil || u.Name == "" {
		return FallbackDisplayName
	}
	return u.Name
}
