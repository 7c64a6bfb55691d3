package oauth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/arlofn/provider/internal/common/errorx"
	"github.com/arlofn/provider/internal/storage"
)

// TokenBackend resolves bearer tokens to live access tokens. Lookups are
// scoped by client: a token issued to one client never authenticates for
// another. Unknown and expired tokens are a no-match.
type TokenBackend struct {
	store storage.Store
	clock Clock
}

func (b *TokenBackend) Authenticate(ctx context.Context, token string, client *storage.Client) (*storage.AccessToken, error) {
	if token == "" {
		return nil, nil
	}

	at, err := b.store.GetAccessToken(ctx, token, client.ClientID, b.clock.Now())
	if errors.Is(err, errorx.ErrInvalidToken) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return at, nil
}

// BearerToken extracts the token from an Authorization: Bearer header,
// falling back to the access_token request parameter.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			return token
		}
	}
	return requestParam(r, "access_token")
}
