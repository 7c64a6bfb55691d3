package identity

import (
	"context"
	"crypto/subtle"

	"github.com/google/uuid"
)

// StaticVerifier checks credentials against a fixed username/password map.
// Development and test use only.
type StaticVerifier struct {
	users map[string]staticUser
}

type staticUser struct {
	id       string
	password string
}

var _ Verifier = (*StaticVerifier)(nil)

// NewStaticVerifier builds a verifier from a username -> password map.
func NewStaticVerifier(users map[string]string) *StaticVerifier {
	v := &StaticVerifier{users: make(map[string]staticUser, len(users))}
	for username, password := range users {
		v.users[username] = staticUser{id: uuid.NewString(), password: password}
	}
	return v
}

func (v *StaticVerifier) VerifyCredentials(ctx context.Context, username, password string) (*User, error) {
	u, ok := v.users[username]
	if !ok {
		return nil, nil
	}
	if subtle.ConstantTimeCompare([]byte(u.password), []byte(password)) != 1 {
		return nil, nil
	}
	return &User{ID: u.id, Username: username}, nil
}
