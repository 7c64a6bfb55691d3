package oauth

import (
	"context"
	"errors"
	"net/http"

	"github.com/arlofn/provider/internal/common/errorx"
	"github.com/arlofn/provider/internal/storage"
)

// ParamsBackend authenticates clients from client_id/client_secret request
// parameters, form body first then query string.
type ParamsBackend struct {
	store storage.Store
}

var _ ClientBackend = (*ParamsBackend)(nil)

func (b *ParamsBackend) Authenticate(ctx context.Context, r *http.Request) (*storage.Client, error) {
	clientID := requestParam(r, "client_id")
	clientSecret := requestParam(r, "client_secret")
	if clientID == "" || clientSecret == "" {
		return nil, nil
	}

	client, err := b.store.GetClientByCredentials(ctx, clientID, clientSecret)
	if errors.Is(err, errorx.ErrInvalidClient) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return client, nil
}
