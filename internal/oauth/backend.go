package oauth

import (
	"context"
	"net/http"

	"github.com/arlofn/provider/internal/identity"
	"github.com/arlofn/provider/internal/storage"
)

// ClientBackend is one way of extracting and verifying client credentials
// from a token request. A backend that finds no credentials it understands,
// or credentials that do not match, returns (nil, nil); malformed input is
// a no-match, never an error. Errors are reserved for store faults.
type ClientBackend interface {
	Authenticate(ctx context.Context, r *http.Request) (*storage.Client, error)
}

// BackendChain tries each backend in order and returns the first match.
// The order is fixed: Authorization header, then request parameters, then
// the public password fallback.
type BackendChain struct {
	backends []ClientBackend
}

func NewBackendChain(store storage.Store, verifier identity.Verifier) *BackendChain {
	return &BackendChain{
		backends: []ClientBackend{
			&BasicBackend{store: store},
			&ParamsBackend{store: store},
			&PublicPasswordBackend{store: store, verifier: verifier},
		},
	}
}

func (c *BackendChain) Authenticate(ctx context.Context, r *http.Request) (*storage.Client, error) {
	for _, b := range c.backends {
		client, err := b.Authenticate(ctx, r)
		if err != nil {
			return nil, err
		}
		if client != nil {
			return client, nil
		}
	}
	return nil, nil
}

// requestParam reads a parameter from the form body first, falling back to
// the query string. A body that fails to parse is treated as absent.
func requestParam(r *http.Request, key string) string {
	if r.Form == nil {
		_ = r.ParseForm()
	}
	if v := r.PostForm.Get(key); v != "" {
		return v
	}
	return r.URL.Query().Get(key)
}

type contextKey string

const userContextKey contextKey = "oauth.user"

func withUser(ctx context.Context, user *identity.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the end user attached during public password
// authentication, or nil.
func UserFromContext(ctx context.Context) *identity.User {
	user, _ := ctx.Value(userContextKey).(*identity.User)
	return user
}
