// Package model defines the data structures shared by the repository,
// service and handler layers.
package model

import "time"

// User is a registered account.
//
// ID is a UUID string generated by the application, not by the database, so
// the same code path works on SQLite and PostgreSQL.
//
// HashedPassword never leaves the server: the json:"-" tag keeps it out of
// every API response, including the superuser endpoints.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"-"`
	IsActive       bool      `json:"is_active"`
	IsSuperuser    bool      `json:"is_superuser"`
	IsVerified     bool      `json:"is_verified"`
	CreatedAt      time.Time `json:"created_at"`
}

// UserUpdate is a partial update of a user. Nil fields are left unchanged.
//
// The flag fields are only honoured on the superuser endpoints; the profile
// endpoints clear them before calling the service.
type UserUpdate struct {
	Email       *string `json:"email"`
	Password    *string `json:"password"`
	IsActive    *bool   `json:"is_active"`
	IsSuperuser *bool   `json:"is_superuser"`
	IsVerified  *bool   `json:"is_verified"`
}

// SelfService strips the fields a user may not change on their own account.
func (u UserUpdate) SelfService() UserUpdate {
	return UserUpdate{Email: u.Email, Password: u.Password}
}
