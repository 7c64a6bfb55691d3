// Package handler exposes the OAuth2 provider over HTTP.
package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arlofn/provider/internal/common/errorx"
	"github.com/arlofn/provider/internal/oauth"
)

// OAuth serves the token, authorization, revocation and introspection
// endpoints.
type OAuth struct {
	logger   *zap.Logger
	provider *oauth.Provider
}

func NewOAuth(logger *zap.Logger, provider *oauth.Provider) *OAuth {
	return &OAuth{logger: logger, provider: provider}
}

// RegisterRoutes mounts the OAuth2 endpoints on the router.
func (h *OAuth) RegisterRoutes(r gin.IRouter) {
	r.POST("/oauth/token", h.Token)
	r.GET("/oauth/authorize", h.Authorize)
	r.POST("/oauth/revoke", h.Revoke)
	r.GET("/oauth/tokeninfo", h.TokenInfo)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope,omitempty"`
}

// Token handles POST /oauth/token: grant_type dispatch after resolving
// the client through the backend chain.
func (h *OAuth) Token(c *gin.Context) {
	ctx := c.Request.Context()

	client, err := h.provider.ResolveClient(ctx, c.Request)
	if err != nil {
		h.fail(c, err)
		return
	}

	var pair *oauth.TokenPair
	switch grantType := c.Request.FormValue("grant_type"); grantType {
	case "authorization_code":
		code := c.Request.FormValue("code")
		if code == "" {
			h.fail(c, errorx.ErrInvalidRequest)
			return
		}
		pair, err = h.provider.ExchangeGrant(ctx, client, code, c.Request.FormValue("redirect_uri"))

	case "password":
		// the public password backend attaches the verified user
		user := oauth.UserFromContext(c.Request.Context())
		if user == nil {
			h.fail(c, errorx.ErrInvalidGrant)
			return
		}
		var scope oauth.Scope
		scope, err = oauth.ParseScope(c.Request.FormValue("scope"))
		if err != nil {
			h.fail(c, err)
			return
		}
		pair, err = h.provider.PasswordGrant(ctx, client, user, scope)

	case "refresh_token":
		token := c.Request.FormValue("refresh_token")
		if token == "" {
			h.fail(c, errorx.ErrInvalidRequest)
			return
		}
		pair, err = h.provider.Refresh(ctx, client, token)

	case "":
		h.fail(c, errorx.ErrInvalidRequest)
		return

	default:
		h.fail(c, errorx.ErrUnsupportedGrantType)
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(200, tokenResponse{
		AccessToken:  pair.AccessToken.Token,
		TokenType:    "Bearer",
		ExpiresIn:    h.provider.ExpiresIn(pair.AccessToken),
		RefreshToken: pair.RefreshToken.Token,
		Scope:        oauth.Scope(pair.AccessToken.Scope).String(),
	})
}

// Authorize handles GET /oauth/authorize for a user already authenticated
// upstream; the user id arrives in the X-User-ID header. Returns the
// authorization code for the caller to deliver via redirect.
func (h *OAuth) Authorize(c *gin.Context) {
	ctx := c.Request.Context()

	if rt := c.Query("response_type"); rt != "code" {
		h.fail(c, errorx.ErrInvalidRequest)
		return
	}

	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		h.fail(c, errorx.ErrInvalidRequest)
		return
	}

	client, err := h.provider.LookupClient(ctx, c.Query("client_id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	scope, err := oauth.ParseScope(c.Query("scope"))
	if err != nil {
		h.fail(c, err)
		return
	}

	grant, err := h.provider.IssueGrant(ctx, client, userID, c.Query("redirect_uri"), scope)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(200, gin.H{
		"code":         grant.Code,
		"redirect_uri": grant.RedirectURI,
		"state":        c.Query("state"),
	})
}

// Revoke handles POST /oauth/revoke. The client must own the token.
func (h *OAuth) Revoke(c *gin.Context) {
	ctx := c.Request.Context()

	client, err := h.provider.ResolveClient(ctx, c.Request)
	if err != nil {
		h.fail(c, err)
		return
	}

	token := c.Request.FormValue("token")
	if token == "" {
		h.fail(c, errorx.ErrInvalidRequest)
		return
	}

	if err := h.provider.Revoke(ctx, client, token); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(200, gin.H{})
}

// TokenInfo handles GET /oauth/tokeninfo: echoes the scope, owner and
// remaining lifetime of a live bearer token. The lookup is scoped by the
// client_id parameter.
func (h *OAuth) TokenInfo(c *gin.Context) {
	ctx := c.Request.Context()

	client, err := h.provider.LookupClient(ctx, c.Query("client_id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	at, err := h.provider.AuthenticateToken(ctx, oauth.BearerToken(c.Request), client)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(200, gin.H{
		"client_id":  at.ClientID,
		"user_id":    at.UserID,
		"scope":      oauth.Scope(at.Scope).String(),
		"expires_in": h.provider.ExpiresIn(at),
	})
}

// fail converts any error to its RFC 6749 wire form. Store faults are
// logged with detail and answered without it.
func (h *OAuth) fail(c *gin.Context, err error) {
	oauthErr := errorx.ConvertToOAuth2Error(err)
	if oauthErr.HTTPStatus >= 500 {
		h.logger.Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}
	c.JSON(oauthErr.HTTPStatus, oauthErr)
}
