package oauth

import (
	"context"
	"errors"
	"net/http"

	"github.com/arlofn/provider/internal/common/errorx"
	"github.com/arlofn/provider/internal/identity"
	"github.com/arlofn/provider/internal/storage"
)

// PublicPasswordBackend lets a public client authenticate with end-user
// credentials alone. It applies only to password-grant requests naming a
// public client; verified users are attached to the request context for
// the grant handler to pick up.
type PublicPasswordBackend struct {
	store    storage.Store
	verifier identity.Verifier
}

var _ ClientBackend = (*PublicPasswordBackend)(nil)

func (b *PublicPasswordBackend) Authenticate(ctx context.Context, r *http.Request) (*storage.Client, error) {
	if requestParam(r, "grant_type") != "password" {
		return nil, nil
	}

	clientID := requestParam(r, "client_id")
	if clientID == "" {
		return nil, nil
	}

	client, err := b.store.GetClient(ctx, clientID)
	if errors.Is(err, errorx.ErrInvalidClient) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if client.ClientType != storage.ClientTypePublic {
		// confidential clients must present their secret
		return nil, nil
	}

	username := requestParam(r, "username")
	password := requestParam(r, "password")
	if username == "" || password == "" {
		return nil, nil
	}

	user, err := b.verifier.VerifyCredentials(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}

	*r = *r.WithContext(withUser(r.Context(), user))
	return client, nil
}
