package oauth

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/arlofn/provider/internal/common/errorx"
	"github.com/arlofn/provider/internal/storage"
)

// BasicBackend authenticates clients from an HTTP Basic Authorization
// header carrying client_id:client_secret.
type BasicBackend struct {
	store storage.Store
}

var _ ClientBackend = (*BasicBackend)(nil)

func (b *BasicBackend) Authenticate(ctx context.Context, r *http.Request) (*storage.Client, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, nil
	}

	scheme, payload, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Basic") {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// undecodable header, let the next backend try
		return nil, nil
	}

	clientID, clientSecret, found := strings.Cut(string(decoded), ":")
	if !found {
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
