// Package identity is the seam to the external identity store. The OAuth2
// core never stores or hashes end-user passwords itself; it only asks a
// Verifier whether a username/password pair is valid.
package identity

import (
	"context"
	"time"
)

// User is a reference to a verified end user.
type User struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Username  string    `gorm:"size:255;not null;uniqueIndex" json:"username"`
	Password  string    `gorm:"size:255;not null" json:"-"` // bcrypt hash
	CreatedAt time.Time `json:"created_at"`
}

func (User) TableName() string { return "users" }

// Verifier validates end-user credentials. A failed verification returns
// (nil, nil): like client authentication, wrong credentials are a normal
// outcome, not an error. Errors are reserved for store faults.
type Verifier interface {
	VerifyCredentials(ctx context.Context, username, password string) (*User, error)
}
