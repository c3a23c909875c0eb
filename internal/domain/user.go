// Package domain contains the core business entities for the security component.
// These are pure Go structs with no external dependencies, representing
// accounts, roles and their membership.
package domain

import (
	"strings"
	"time"
)

// PasswordEncoder maps a clear-text secret to its one-way encoded form.
// Implementations must be deterministic: the encoded value is compared for
// equality in the account store.
type PasswordEncoder interface {
	Encode(clear string) (string, error)
}

// User represents an account registered in the account store.
// A User value is a snapshot; it does not follow later store mutations.
type User struct {
	// ID is the unique identifier for the user (assigned by the store).
	ID int64 `json:"id"`

	// Login is the unique login name.
	Login string `json:"login"`

	// PasswordHash is the encoded password. Never exposed in API responses.
	PasswordHash string `json:"-"`

	// ConnectionCount is incremented on every successful authentication.
	ConnectionCount int64 `json:"connection_count"`

	// LastConnectionAt is the time of the last successful authentication.
	// Zero means the user never logged in.
	LastConnectionAt time.Time `json:"last_connection_at"`

	// ConsecutiveErrors counts failed attempts since the last success.
	ConsecutiveErrors int `json:"consecutive_errors"`

	// Disabled accounts are rejected even with correct credentials.
	Disabled bool `json:"disabled"`

	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`

	// Roles is only populated by a successful authentication or an explicit load.
	Roles []Role `json:"roles"`
}

// NewUser creates a new User with zeroed counters.
func NewUser(login, passwordHash string) *User {
	return &User{
		Login:        login,
		PasswordHash: passwordHash,
		Roles:        []Role{},
	}
}

// FullName returns the first and last name separated by a space.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsSamePassword reports whether clear encodes to the stored password.
func (u *User) IsSamePassword(enc PasswordEncoder, clear string) (bool, error) {
	encoded, err := enc.Encode(clear)
	if err != nil {
		return false, err
	}
	return encoded == u.PasswordHash, nil
}

// SetPassword encodes clear and stores the result.
func (u *User) SetPassword(enc PasswordEncoder, clear string) error {
	encoded, err := enc.Encode(clear)
	if err != nil {
		return err
	}
	u.PasswordHash = encoded
	return nil
}

// IsMemberOfRole reports whether the user holds a role with the same identity.
func (u *User) IsMemberOfRole(role Role) bool {
	for _, r := range u.Roles {
		if r.Equal(role) {
			return true
		}
	}
	return false
}

// AddRole adds role unless a role with the same identity is already present.
func (u *User) AddRole(role Role) {
	if u.IsMemberOfRole(role) {
		return
	}
	u.Roles = append(u.Roles, role)
}

// RemoveRole removes the role with the same identity, if any.
func (u *User) RemoveRole(role Role) {
	for i, r := range u.Roles {
		if r.Equal(role) {
			u.Roles = append(u.Roles[:i], u.Roles[i+1:]...)
			return
		}
	}
}

// CanAuthenticate returns true if the user is allowed to authenticate.
func (u *User) CanAuthenticate() bool {
	return !u.Disabled
}
