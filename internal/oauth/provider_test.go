package oauth

import (
	"context"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arlofn/provider/internal/common/config"
	"github.com/arlofn/provider/internal/common/errorx"
	"github.com/arlofn/provider/internal/identity"
	"github.com/arlofn/provider/internal/storage"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestProvider(t *testing.T) (*Provider, storage.Store, *fakeClock) {
	t.Helper()
	store := storage.NewMemoryStore()
	verifier := identity.NewStaticVerifier(map[string]string{"alice": "wonderland"})
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	p := NewProvider(zap.NewNop(), store, verifier, config.OAuth2Config{
		AccessTokenTTL: time.Hour,
		CodeTTL:        10 * time.Minute,
	}, WithClock(clock))
	return p, store, clock
}

func registerTestClient(t *testing.T, p *Provider, clientType storage.ClientType) *storage.Client {
	t.Helper()
	client, err := p.RegisterClient(context.Background(),
		"Test App", "https://app.example.com", "https://app.example.com/cb", clientType, "owner-1")
	require.NoError(t, err)
	return client
}

func TestRegisterClient(t *testing.T) {
	p, store, _ := newTestProvider(t)
	ctx := context.Background()

	client := registerTestClient(t, p, storage.ClientTypeConfidential)
	assert.NotEmpty(t, client.ClientID)
	assert.NotEmpty(t, client.ClientSecret)
	assert.NotEqual(t, client.ClientID, client.ClientSecret)

	got, err := store.GetClient(ctx, client.ClientID)
	require.NoError(t, err)
	assert.Equal(t, client.ClientSecret, got.ClientSecret)
}

func TestRotateClientSecret(t *testing.T) {
	p, store, _ := newTestProvider(t)
	ctx := context.Background()

	client := registerTestClient(t, p, storage.ClientTypeConfidential)
	old := client.ClientSecret

	secret, err := p.RotateClientSecret(ctx, client)
	require.NoError(t, err)
	assert.NotEqual(t, old, secret)

	_, err = store.GetClientByCredentials(ctx, client.ClientID, old)
	assert.ErrorIs(t, err, errorx.ErrInvalidClient)
	_, err = store.GetClientByCredentials(ctx, client.ClientID, secret)
	assert.NoError(t, err)
}

func TestAuthorizationCodeFlow(t *testing.T) {
	p, _, _ := newTestProvider(t)
	ctx := context.Background()

	client := registerTestClient(t, p, storage.ClientTypeConfidential)

	grant, err := p.IssueGrant(ctx, client, "user-1", "", ScopeReadWrite)
	require.NoError(t, err)
	assert.Equal(t, client.RedirectURI, grant.RedirectURI)
	assert.NotEmpty(t, grant.Code)

	pair, err := p.ExchangeGrant(ctx, client, grant.Code, grant.RedirectURI)
	require.NoError(t, err)
	assert.Equal(t, "user-1", pair.AccessToken.UserID)
	assert.Equal(t, int(ScopeReadWrite), pair.AccessToken.Scope)
	assert.Equal(t, pair.AccessToken.ID, pair.RefreshToken.AccessTokenID)
	assert.Equal(t, int(ScopeReadWrite), pair.RefreshToken.Scope)

	// the issued token authenticates for its client
	at, err := p.AuthenticateToken(ctx, pair.AccessToken.Token, client)
	require.NoError(t, err)
	assert.Equal(t, "user-1", at.UserID)
}

func TestExchangeGrant_SingleUse(t *testing.T) {
	p, _, _ := newTestProvider(t)
	ctx := context.Background()

	client := registerTestClient(t, p, storage.ClientTypeConfidential)
	grant, err := p.IssueGrant(ctx, client, "user-1", "", ScopeRead)
	require.NoError(t, err)

	_, err = p.ExchangeGrant(ctx, client, grant.Code, grant.RedirectURI)
	require.NoError(t, err)

	_, err = p.ExchangeGrant(ctx, client, grant.Code, grant.RedirectURI)
	assert.ErrorIs(t, err, errorx.ErrInvalidGrant)
}

func TestExchangeGrant_Concurrent(t *testing.T) {
	p, _, _ := newTestProvider(t)
	ctx := context.Background()

	client := registerTestClient(t, p, storage.ClientTypeConfidential)
	grant, err := p.IssueGrant(ctx, client, "user-1", "", ScopeRead)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.ExchangeGrant(ctx, client, grant.Code, grant.RedirectURI)
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, errorx.ErrInvalidGrant)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestExchangeGrant_Expired(t *testing.T) {
	p, _, clock := newTestProvider(t)
	ctx := context.Background()

	client := registerTestClient(t, p, storage.ClientTypeConfidential)
	grant, err := p.IssueGrant(ctx, client, "user-1", "", ScopeRead)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	_, err = p.ExchangeGrant(ctx, client, grant.Code, grant.RedirectURI)
	assert.ErrorIs(t, err, errorx.ErrInvalidGrant)
}

func TestExchangeGrant_WrongClientOrRedirect(t *testing.T) {
	p, _, _ := newTestProvider(t)
	ctx := context.Background()

	client := registerTestClient(t, p, storage.ClientTypeConfidential)
	other := registerTestClient(t, p, storage.ClientTypeConfidential)
	grant, err := p.IssueGrant(ctx, client, "user-1", "", ScopeRead)
	require.NoError(t, err)

	_, err = p.ExchangeGrant(ctx, other, grant.Code, grant.RedirectURI)
	assert.ErrorIs(t, err, errorx.ErrInvalidGrant)

	_, err = p.ExchangeGrant(ctx, client, grant.Code, "https://evil.example.com/cb")
	assert.ErrorIs(t, err, errorx.ErrInvalidGrant)

	// failed attempts must not consume the grant
	_, err = p.ExchangeGrant(ctx, client, grant.Code, grant.RedirectURI)
	assert.NoError(t, err)
}

func TestIssueGrant_CodeEntropy(t *testing.T) {
	p, _, _ := newTestProvider(t)
	ctx := context.Background()

	client := registerTestClient(t, p, storage.ClientTypeConfidential)

	// codes carry the long token tier, same as secrets and tokens
	first, err := p.IssueGrant(ctx, client, "user-1", "", ScopeRead)
	require.NoError(t, err)
	assert.Len(t, first.Code, 43)

	second, err := p.IssueGrant(ctx, client, "user-1", "", ScopeRead)
	require.NoError(t, err)
	assert.NotEqual(t, first.Code, second.Code)
}

func TestIssueGrant_RedirectMismatch(t *testing.T) {
	p, _, _ := newTestProvider(t)

	client := registerTestClient(t, p, storage.ClientTypeConfidential)
	_, err := p.IssueGrant(context.Background(), client, "user-1", "https://evil.example.com/cb", ScopeRead)
	assert.ErrorIs(t, err, errorx.ErrInvalidRequest)
}

func TestPasswordGrant(t *testing.T) {
	p, _, _ := newTestProvider(t)
	ctx := context.Background()

	public := registerTestClient(t, p, storage.ClientTypePublic)
	pair, err := p.PasswordGrant(ctx, public, &identity.User{ID: "u-1", Username: "alice"}, ScopeRead)
	require.NoError(t, err)
	assert.Equal(t, "u-1", pair.AccessToken.UserID)

	confidential := registerTestClient(t, p, storage.ClientTypeConfidential)
	_, err = p.PasswordGrant(ctx, confidential, &identity.User{ID: "u-1"}, ScopeRead)
	assert.ErrorIs(t, err, errorx.ErrUnauthorizedClient)
}

func TestRefresh(t *testing.T) {
	p, _, _ := newTestProvider(t)
	ctx := context.Background()

	client := registerTestClient(t, p, storage.ClientTypePublic)
	pair, err := p.PasswordGrant(ctx, client, &identity.User{ID: "u-1"}, ScopeReadWrite)
	require.NoError(t, err)

	fresh, err := p.Refresh(ctx, client, pair.RefreshToken.Token)
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken.Token, fresh.AccessToken.Token)
	assert.NotEqual(t, pair.RefreshToken.Token, fresh.RefreshToken.Token)
	assert.Equal(t, "u-1", fresh.AccessToken.UserID)
	assert.Equal(t, int(ScopeReadWrite), fresh.AccessToken.Scope)

	// a rotated refresh token is dead
	_, err = p.Refresh(ctx, client, pair.RefreshToken.Token)
	assert.ErrorIs(t, err, errorx.ErrInvalidGrant)
}

func TestRefresh_AfterAccessTokenExpiry(t *testing.T) {
	p, _, clock := newTestProvider(t)
	ctx := context.Background()

	client := registerTestClient(t, p, storage.ClientTypePublic)
	pair, err := p.PasswordGrant(ctx, client, &identity.User{ID: "u-1"}, ScopeWrite)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	_, err = p.AuthenticateToken(ctx, pair.AccessToken.Token, client)
	assert.ErrorIs(t, err, errorx.ErrInvalidToken)

	fresh, err := p.Refresh(ctx, client, pair.RefreshToken.Token)
	require.NoError(t, err)
	assert.Equal(t, int(ScopeWrite), fresh.AccessToken.Scope)
}

func TestRefresh_Concurrent(t *testing.T) {
	p, _, _ := newTestProvider(t)
	ctx := context.Background()

	client := registerTestClient(t, p, storage.ClientTypePublic)
	pair, err := p.PasswordGrant(ctx, client, &identity.User{ID: "u-1"}, ScopeRead)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Refresh(ctx, client, pair.RefreshToken.Token)
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
}

func TestRefresh_WrongClient(t *testing.T) {
	p, _, _ := newTestProvider(t)
	ctx := context.Background()

	client := registerTestClient(t, p, storage.ClientTypePublic)
	other := registerTestClient(t, p, storage.ClientTypePublic)
	pair, err := p.PasswordGrant(ctx, client, &identity.User{ID: "u-1"}, ScopeRead)
	require.NoError(t, err)

	_, err = p.Refresh(ctx, other, pair.RefreshToken.Token)
	assert.ErrorIs(t, err, errorx.ErrInvalidGrant)
}

func TestRevoke(t *testing.T) {
	p, _, _ := newTestProvider(t)
	ctx := context.Background()

	client := registerTestClient(t, p, storage.ClientTypePublic)
	pair, err := p.PasswordGrant(ctx, client, &identity.User{ID: "u-1"}, ScopeRead)
	require.NoError(t, err)

	require.NoError(t, p.Revoke(ctx, client, pair.AccessToken.Token))

	_, err = p.AuthenticateToken(ctx, pair.AccessToken.Token, client)
	assert.ErrorIs(t, err, errorx.ErrInvalidToken)
	_, err = p.Refresh(ctx, client, pair.RefreshToken.Token)
	assert.ErrorIs(t, err, errorx.ErrInvalidGrant)

	// revoking again, or revoking someone else's token, is invalid_grant
	assert.ErrorIs(t, p.Revoke(ctx, client, pair.AccessToken.Token), errorx.ErrInvalidGrant)
}

func TestRevoke_ExpiredAccessToken(t *testing.T) {
	p, _, clock := newTestProvider(t)
	ctx := context.Background()

	client := registerTestClient(t, p, storage.ClientTypePublic)
	pair, err := p.PasswordGrant(ctx, client, &identity.User{ID: "u-1"}, ScopeRead)
	require.NoError(t, err)

	// the access token lapses but the refresh chain is still alive
	clock.Advance(2 * time.Hour)
	_, err = p.AuthenticateToken(ctx, pair.AccessToken.Token, client)
	require.ErrorIs(t, err, errorx.ErrInvalidToken)

	// revocation must still reach it and kill the paired refresh token
	require.NoError(t, p.Revoke(ctx, client, pair.AccessToken.Token))
	_, err = p.Refresh(ctx, client, pair.RefreshToken.Token)
	assert.ErrorIs(t, err, errorx.ErrInvalidGrant)
}

func TestRevoke_WrongClient(t *testing.T) {
	p, _, _ := newTestProvider(t)
	ctx := context.Background()

	client := registerTestClient(t, p, storage.ClientTypePublic)
	other := registerTestClient(t, p, storage.ClientTypePublic)
	pair, err := p.PasswordGrant(ctx, client, &identity.User{ID: "u-1"}, ScopeRead)
	require.NoError(t, err)

	assert.ErrorIs(t, p.Revoke(ctx, other, pair.AccessToken.Token), errorx.ErrInvalidGrant)

	// the token is untouched
	_, err = p.AuthenticateToken(ctx, pair.AccessToken.Token, client)
	assert.NoError(t, err)
}

func TestAuthenticateToken_Boundaries(t *testing.T) {
	p, _, clock := newTestProvider(t)
	ctx := context.Background()

	client := registerTestClient(t, p, storage.ClientTypePublic)
	other := registerTestClient(t, p, storage.ClientTypePublic)
	pair, err := p.PasswordGrant(ctx, client, &identity.User{ID: "u-1"}, ScopeRead)
	require.NoError(t, err)

	// cross-client lookup fails
	_, err = p.AuthenticateToken(ctx, pair.AccessToken.Token, other)
	assert.ErrorIs(t, err, errorx.ErrInvalidToken)

	// one microsecond before the deadline the token is still live
	clock.Advance(time.Hour - time.Microsecond)
	_, err = p.AuthenticateToken(ctx, pair.AccessToken.Token, client)
	assert.NoError(t, err)

	// expiry is strict: a token whose deadline equals now is dead
	clock.Advance(time.Microsecond)
	_, err = p.AuthenticateToken(ctx, pair.AccessToken.Token, client)
	assert.ErrorIs(t, err, errorx.ErrInvalidToken)
}

func TestResolveClient(t *testing.T) {
	p, _, _ := newTestProvider(t)
	ctx := context.Background()

	client := registerTestClient(t, p, storage.ClientTypeConfidential)

	body := url.Values{
		"client_id":     {client.ClientID},
		"client_secret": {client.ClientSecret},
	}
	r := httptest.NewRequest("POST", "/oauth/token", strings.NewReader(body.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	got, err := p.ResolveClient(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, client.ClientID, got.ClientID)

	r = httptest.NewRequest("POST", "/oauth/token", nil)
	_, err = p.ResolveClient(ctx, r)
	assert.ErrorIs(t, err, errorx.ErrInvalidClient)
}

func TestExpiresIn(t *testing.T) {
	p, _, _ := newTestProvider(t)
	ctx := context.Background()

	client := registerTestClient(t, p, storage.ClientTypePublic)
	pair, err := p.PasswordGrant(ctx, client, &identity.User{ID: "u-1"}, ScopeRead)
	require.NoError(t, err)

	assert.Equal(t, int64(3600), p.ExpiresIn(pair.AccessToken))
}
