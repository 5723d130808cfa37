// Package domain contains core domain types for the WABCAST gateway.
package domain

import (
	"time"
)

// Account represents a registered account with its subscription window.
// The password is stored as a bcrypt hash and never in the clear.
type Account struct {
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	PasswordHash   string    `json:"-"`
	Active         bool      `json:"active"`
	SessionStart   time.Time `json:"session_start"`
	SessionExpires time.Time `json:"session_expires"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Usable returns true if the account is active and its subscription
// window has not elapsed at the given instant.
func (a *Account) Usable(now time.Time) bool {
	return a.Active && now.Before(a.SessionExpires)
}
