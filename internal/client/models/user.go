package models

import "time"

// Roles.
const (
	RoleDriver = "driver"
	RoleAdmin  = "admin"
)

// User is keyed by normalized email rather than a generated id.
type User struct {
	Email        string
	RemoteID     string
	Username     string
	PasswordHash string
	Role         string

	State      SyncState
	Tombstoned bool
	Revision   int64

	LastError   string
	Attempts    int
	LastLoginAt time.Time
	UpdatedAt   time.Time
}

// LastActivity is the later of the last login and the last local change.
func (u *User) LastActivity() time.Time {
	if u.LastLoginAt.After(u.UpdatedAt) {
		return u.LastLoginAt
	}
	return u.UpdatedAt
}

// Synced reports whether u has a confirmed remote identity.
func (u *User) Synced() bool {
	return u.State == StateSynced && u.RemoteID != "" && !u.Tombstoned
}
