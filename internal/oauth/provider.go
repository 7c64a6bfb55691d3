package oauth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arlofn/provider/internal/common/config"
	"github.com/arlofn/provider/internal/common/errorx"
	"github.com/arlofn/provider/internal/identity"
	"github.com/arlofn/provider/internal/storage"
	"github.com/arlofn/provider/pkg/metrics"
)

// TokenPair is the result of a successful grant: an access token and the
// refresh token issued alongside it.
type TokenPair struct {
	AccessToken  *storage.AccessToken
	RefreshToken *storage.RefreshToken
}

// Provider runs the OAuth2 grant lifecycle on top of a Store: client
// resolution, authorization codes, the token grants, revocation and bearer
// authentication.
type Provider struct {
	logger         *zap.Logger
	store          storage.Store
	gen            *Generator
	chain          *BackendChain
	tokens         *TokenBackend
	clock          Clock
	metrics        *metrics.Metrics
	accessTokenTTL time.Duration
}

// Option configures optional Provider collaborators.
type Option func(*Provider)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock Clock) Option {
	return func(p *Provider) { p.clock = clock }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Provider) { p.metrics = m }
}

func NewProvider(logger *zap.Logger, store storage.Store, verifier identity.Verifier, cfg config.OAuth2Config, opts ...Option) *Provider {
	p := &Provider{
		logger:         logger,
		store:          store,
		clock:          SystemClock,
		accessTokenTTL: cfg.AccessTokenTTL,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.accessTokenTTL <= 0 {
		p.accessTokenTTL = time.Hour
	}
	codeTTL := cfg.CodeTTL
	if codeTTL <= 0 {
		codeTTL = 10 * time.Minute
	}

	p.gen = NewGenerator(p.clock, codeTTL)
	p.chain = NewBackendChain(store, verifier)
	p.tokens = &TokenBackend{store: store, clock: p.clock}
	return p
}

// ResolveClient runs the backend chain against a token request. No match
// yields invalid_client without detail.
func (p *Provider) ResolveClient(ctx context.Context, r *http.Request) (*storage.Client, error) {
	client, err := p.chain.Authenticate(ctx, r)
	if err != nil {
		return nil, err
	}
	if client == nil {
		if p.metrics != nil {
			p.metrics.AuthFailure("client")
		}
		return nil, errorx.ErrInvalidClient
	}
	return client, nil
}

// LookupClient resolves a client by public identifier, without checking
// the secret. Used by the authorization endpoint.
func (p *Provider) LookupClient(ctx context.Context, clientID string) (*storage.Client, error) {
	return p.store.GetClient(ctx, clientID)
}

// AuthenticateToken resolves a bearer token within the given client's
// namespace.
func (p *Provider) AuthenticateToken(ctx context.Context, token string, client *storage.Client) (*storage.AccessToken, error) {
	at, err := p.tokens.Authenticate(ctx, token, client)
	if err != nil {
		return nil, err
	}
	if at == nil {
		if p.metrics != nil {
			p.metrics.AuthFailure("token")
		}
		return nil, errorx.ErrInvalidToken
	}
	return at, nil
}

// RegisterClient creates a client with generated credentials.
func (p *Provider) RegisterClient(ctx context.Context, name, url, redirectURI string, clientType storage.ClientType, userID string) (*storage.Client, error) {
	client := &storage.Client{
		ID:           uuid.NewString(),
		Name:         name,
		URL:          url,
		RedirectURI:  redirectURI,
		ClientID:     p.gen.ShortToken(),
		ClientSecret: p.gen.LongToken(),
		ClientType:   clientType,
		UserID:       userID,
	}
	if err := p.store.CreateClient(ctx, client); err != nil {
		return nil, err
	}

	p.logger.Info("registered client",
		zap.String("client_id", client.ClientID),
		zap.String("name", name))
	return client, nil
}

// RotateClientSecret replaces the client's secret. Tokens already issued
// stay valid; only future authentication needs the new secret.
func (p *Provider) RotateClientSecret(ctx context.Context, client *storage.Client) (string, error) {
	client.ClientSecret = p.gen.LongToken()
	if err := p.store.UpdateClient(ctx, client); err != nil {
		return "", err
	}
	return client.ClientSecret, nil
}

// DeleteClient removes a client and everything issued to it.
func (p *Provider) DeleteClient(ctx context.Context, clientID string) error {
	return p.store.DeleteClient(ctx, clientID)
}

// IssueGrant mints a single-use authorization code after the resource
// owner consents. An empty redirectURI falls back to the registered one; a
// non-empty one must match it exactly.
func (p *Provider) IssueGrant(ctx context.Context, client *storage.Client, userID, redirectURI string, scope Scope) (*storage.Grant, error) {
	if redirectURI == "" {
		redirectURI = client.RedirectURI
	} else if redirectURI != client.RedirectURI {
		return nil, errorx.ErrInvalidRequest
	}

	grant := &storage.Grant{
		ID:          uuid.NewString(),
		Code:        p.gen.LongToken(),
		ExpiresAt:   p.gen.CodeExpiry(),
		RedirectURI: redirectURI,
		Scope:       int(scope),
		ClientID:    client.ClientID,
		UserID:      userID,
	}
	if err := p.store.SaveGrant(ctx, grant); err != nil {
		return nil, err
	}

	if p.metrics != nil {
		p.metrics.GrantIssued()
	}
	p.logger.Debug("issued grant",
		zap.String("client_id", client.ClientID),
		zap.String("user_id", userID))
	return grant, nil
}

// ExchangeGrant trades an authorization code for a token pair. The code is
// consumed atomically; a second exchange of the same code fails with
// invalid_grant no matter how close the two requests run.
func (p *Provider) ExchangeGrant(ctx context.Context, client *storage.Client, code, redirectURI string) (*TokenPair, error) {
	grant, err := p.store.ConsumeGrant(ctx, code, client.ClientID, redirectURI, p.clock.Now())
	if err != nil {
		return nil, err
	}
	return p.issueTokenPair(ctx, client, grant.UserID, Scope(grant.Scope), "authorization_code")
}

// PasswordGrant issues a token pair directly against verified end-user
// credentials. Restricted to public clients; confidential clients go
// through the authorization-code flow.
func (p *Provider) PasswordGrant(ctx context.Context, client *storage.Client, user *identity.User, scope Scope) (*TokenPair, error) {
	if client.ClientType != storage.ClientTypePublic {
		return nil, errorx.ErrUnauthorizedClient
	}
	return p.issueTokenPair(ctx, client, user.ID, scope, "password")
}

// Refresh rotates a refresh token into a fresh token pair. The old token
// is expired first and exactly once; concurrent refreshes of the same
// token produce one pair and one invalid_grant.
func (p *Provider) Refresh(ctx context.Context, client *storage.Client, refreshToken string) (*TokenPair, error) {
	rt, err := p.store.RotateRefreshToken(ctx, refreshToken, client.ClientID)
	if err != nil {
		return nil, err
	}
	return p.issueTokenPair(ctx, client, rt.UserID, Scope(rt.Scope), "refresh_token")
}

// Revoke invalidates an access token and expires its paired refresh
// token. Tokens the client does not own revoke as invalid_grant. The
// lookup ignores expiry: a lapsed access token must still be revocable so
// its refresh chain can be killed.
func (p *Provider) Revoke(ctx context.Context, client *storage.Client, token string) error {
	at, err := p.store.GetAccessToken(ctx, token, client.ClientID, time.Time{})
	if err != nil {
		if errors.Is(err, errorx.ErrInvalidToken) {
			return errorx.ErrInvalidGrant
		}
		return err
	}

	if err := p.store.DeleteAccessToken(ctx, at.Token); err != nil {
		return err
	}
	if err := p.store.ExpireRefreshTokenByAccessToken(ctx, at.ID); err != nil {
		return err
	}

	if p.metrics != nil {
		p.metrics.TokenRevoked()
	}
	p.logger.Info("revoked token",
		zap.String("client_id", client.ClientID),
		zap.String("user_id", at.UserID))
	return nil
}

func (p *Provider) issueTokenPair(ctx context.Context, client *storage.Client, userID string, scope Scope, grantType string) (*TokenPair, error) {
	now := p.clock.Now()

	at := &storage.AccessToken{
		ID:        uuid.NewString(),
		Token:     p.gen.LongToken(),
		ExpiresAt: now.Add(p.accessTokenTTL),
		Scope:     int(scope),
		ClientID:  client.ClientID,
		UserID:    userID,
	}
	if err := p.store.SaveAccessToken(ctx, at); err != nil {
		return nil, err
	}

	rt := &storage.RefreshToken{
		ID:            uuid.NewString(),
		Token:         p.gen.LongToken(),
		AccessTokenID: at.ID,
		ClientID:      client.ClientID,
		UserID:        userID,
		Scope:         int(scope),
	}
	if err := p.store.SaveRefreshToken(ctx, rt); err != nil {
		return nil, err
	}

	if p.metrics != nil {
		p.metrics.TokenIssued(grantType)
	}
	p.logger.Debug("issued token pair",
		zap.String("client_id", client.ClientID),
		zap.String("user_id", userID),
		zap.String("grant_type", grantType))
	return &TokenPair{AccessToken: at, RefreshToken: rt}, nil
}

// ExpiresIn converts the access token's deadline to the wire's relative
// lifetime in seconds.
func (p *Provider) ExpiresIn(at *storage.AccessToken) int64 {
	return int64(at.ExpiresAt.Sub(p.clock.Now()).Seconds())
}
