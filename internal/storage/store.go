package storage

import (
	"context"
	"time"
)

// ClientType distinguishes confidential clients (web applications holding
// their secret server-side) from public ones (native and JS applications).
type ClientType int

const (
	ClientTypeConfidential ClientType = 0
	ClientTypePublic       ClientType = 1
)

// Client is a registered OAuth2 application.
type Client struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	Name         string     `gorm:"size:255" json:"name"`
	URL          string     `gorm:"size:255" json:"url"`
	RedirectURI  string     `gorm:"size:255" json:"redirect_uri"`
	ClientID     string     `gorm:"size:64;not null;uniqueIndex" json:"client_id"`
	ClientSecret string     `gorm:"size:255;not null" json:"client_secret"`
	ClientType   ClientType `gorm:"not null;default:0" json:"client_type"`
	UserID       string     `gorm:"size:36" json:"user_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (Client) TableName() string { return "oauth2_clients" }

// Grant is a single-use authorization code. Consumed (deleted) on exchange.
type Grant struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Code        string    `gorm:"size:64;not null;uniqueIndex" json:"code"`
	ExpiresAt   time.Time `gorm:"not null" json:"expires_at"`
	RedirectURI string    `gorm:"size:255" json:"redirect_uri"`
	Scope       int       `gorm:"not null;default:0" json:"scope"`
	ClientID    string    `gorm:"size:64;not null;index" json:"client_id"`
	UserID      string    `gorm:"size:36;not null" json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Grant) TableName() string { return "oauth2_grants" }

// AccessToken is an opaque bearer token. The token column carries a
// single-column index only; lookups filter on client and expiry in the
// query, matching the historical schema.
type AccessToken struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Token     string    `gorm:"size:64;not null;index" json:"token"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	Scope     int       `gorm:"not null;default:2" json:"scope"`
	ClientID  string    `gorm:"size:64;not null" json:"client_id"`
	UserID    string    `gorm:"size:36;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (AccessToken) TableName() string { return "oauth2_access_tokens" }

// RefreshToken pairs 1:1 with the access token it was issued alongside.
// Rotation flips Expired instead of deleting the row, keeping an audit
// trail. Scope and user are carried so a new pair can be minted after the
// paired access token is gone.
type RefreshToken struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	Token         string    `gorm:"size:64;not null;index:token_client_expired_idx,priority:1" json:"token"`
	Expired       bool      `gorm:"not null;default:false;index:token_client_expired_idx,priority:3" json:"expired"`
	AccessTokenID string    `gorm:"size:36;not null;uniqueIndex" json:"access_token_id"`
	ClientID      string    `gorm:"size:64;not null;index:token_client_expired_idx,priority:2" json:"client_id"`
	UserID        string    `gorm:"size:36;not null" json:"user_id"`
	Scope         int       `gorm:"not null;default:0" json:"scope"`
	CreatedAt     time.Time `json:"created_at"`
}

func (RefreshToken) TableName() string { return "oauth2_refresh_tokens" }

// Store is the persistent entity store. Not-found conditions are reported
// with errorx sentinels (ErrInvalidClient, ErrInvalidGrant,
// ErrInvalidToken); anything else is a store fault and is propagated
// unwrapped for the caller to handle.
type Store interface {
	CreateClient(ctx context.Context, client *Client) error
	GetClient(ctx context.Context, clientID string) (*Client, error)
	// GetClientByCredentials resolves a client only on an exact
	// client_id/client_secret match.
	GetClientByCredentials(ctx context.Context, clientID, clientSecret string) (*Client, error)
	UpdateClient(ctx context.Context, client *Client) error
	// DeleteClient cascades to the client's grants, access tokens and
	// refresh tokens.
	DeleteClient(ctx context.Context, clientID string) error

	SaveGrant(ctx context.Context, grant *Grant) error
	// ConsumeGrant atomically looks up a live grant by (code, client,
	// redirect_uri, expires > now) and deletes it. Two concurrent calls for
	// the same code cannot both succeed.
	ConsumeGrant(ctx context.Context, code, clientID, redirectURI string, now time.Time) (*Grant, error)

	SaveAccessToken(ctx context.Context, token *AccessToken) error
	// GetAccessToken is scoped by client and requires expires strictly
	// after now. A zero now makes the lookup expiry-agnostic, which the
	// revocation path relies on.
	GetAccessToken(ctx context.Context, token, clientID string, now time.Time) (*AccessToken, error)
	DeleteAccessToken(ctx context.Context, token string) error

	SaveRefreshToken(ctx context.Context, token *RefreshToken) error
	// RotateRefreshToken atomically looks up a refresh token by (token,
	// client, expired=false) and flips it to expired. Exactly one of two
	// concurrent rotations wins; the returned row reflects the state
	// before the flip.
	RotateRefreshToken(ctx context.Context, token, clientID string) (*RefreshToken, error)
	// ExpireRefreshTokenByAccessToken expires the refresh token paired with
	// the given access token, if any. Used by revocation.
	ExpireRefreshTokenByAccessToken(ctx context.Context, accessTokenID string) error

	Close() error
}
