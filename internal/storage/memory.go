package storage

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/arlofn/provider/internal/common/errorx"
)

// MemoryStore implements the Store interface with in-process maps. Intended
// for tests and development; atomicity comes from the single write lock.
type MemoryStore struct {
	mu sync.RWMutex

	clients         map[string]*Client       // by client_id
	grants          map[string]*Grant        // by code
	accessTokens    map[string]*AccessToken  // by token
	refreshTokens   map[string]*RefreshToken // by token
	refreshByAccess map[string]string        // access token id -> refresh token
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clients:         make(map[string]*Client),
		grants:          make(map[string]*Grant),
		accessTokens:    make(map[string]*AccessToken),
		refreshTokens:   make(map[string]*RefreshToken),
		refreshByAccess: make(map[string]string),
	}
}

func (s *MemoryStore) CreateClient(ctx context.Context, client *Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.clients[client.ClientID]; exists {
		return errorx.ErrClientAlreadyExists
	}

	now := time.Now()
	client.CreatedAt = now
	client.UpdatedAt = now
	s.clients[client.ClientID] = client
	return nil
}

func (s *MemoryStore) GetClient(ctx context.Context, clientID string) (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if client, ok := s.clients[clientID]; ok {
		return client, nil
	}
	return nil, errorx.ErrInvalidClient
}

func (s *MemoryStore) GetClientByCredentials(ctx context.Context, clientID, clientSecret string) (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok || !secretsEqual(client.ClientSecret, clientSecret) {
		return nil, errorx.ErrInvalidClient
	}
	return client, nil
}

func (s *MemoryStore) UpdateClient(ctx context.Context, client *Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.clients[client.ClientID]; !exists {
		return errorx.ErrInvalidClient
	}

	client.UpdatedAt = time.Now()
	s.clients[client.ClientID] = client
	return nil
}

func (s *MemoryStore) DeleteClient(ctx context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.clients[clientID]; !exists {
		return errorx.ErrInvalidClient
	}
	delete(s.clients, clientID)

	// cascade
	for code, grant := range s.grants {
		if grant.ClientID == clientID {
			delete(s.grants, code)
		}
	}
	for token, at := range s.accessTokens {
		if at.ClientID == clientID {
			delete(s.accessTokens, token)
			delete(s.refreshByAccess, at.ID)
		}
	}
	for token, rt := range s.refreshTokens {
		if rt.ClientID == clientID {
			delete(s.refreshTokens, token)
		}
	}
	return nil
}

func (s *MemoryStore) SaveGrant(ctx context.Context, grant *Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	grant.CreatedAt = time.Now()
	s.grants[grant.Code] = grant
	return nil
}

func (s *MemoryStore) ConsumeGrant(ctx context.Context, code, clientID, redirectURI string, now time.Time) (*Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grant, ok := s.grants[code]
	if !ok || grant.ClientID != clientID || grant.RedirectURI != redirectURI || !grant.ExpiresAt.After(now) {
		return nil, errorx.ErrInvalidGrant
	}

	delete(s.grants, code)
	return grant, nil
}

func (s *MemoryStore) SaveAccessToken(ctx context.Context, token *AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token.CreatedAt = time.Now()
	s.accessTokens[token.Token] = token
	return nil
}

func (s *MemoryStore) GetAccessToken(ctx context.Context, token, clientID string, now time.Time) (*AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	at, ok := s.accessTokens[token]
	if !ok || at.ClientID != clientID || !at.ExpiresAt.After(now) {
		return nil, errorx.ErrInvalidToken
	}
	return at, nil
}

func (s *MemoryStore) DeleteAccessToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	at, ok := s.accessTokens[token]
	if !ok {
		return errorx.ErrInvalidToken
	}
	delete(s.accessTokens, token)
	delete(s.refreshByAccess, at.ID)
	return nil
}

func (s *MemoryStore) SaveRefreshToken(ctx context.Context, token *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token.CreatedAt = time.Now()
	s.refreshTokens[token.Token] = token
	s.refreshByAccess[token.AccessTokenID] = token.Token
	return nil
}

func (s *MemoryStore) RotateRefreshToken(ctx context.Context, token, clientID string) (*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, ok := s.refreshTokens[token]
	if !ok || rt.ClientID != clientID || rt.Expired {
		return nil, errorx.ErrInvalidGrant
	}

	prev := *rt
	rt.Expired = true
	return &prev, nil
}

func (s *MemoryStore) ExpireRefreshTokenByAccessToken(ctx context.Context, accessTokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.refreshByAccess[accessTokenID]
	if !ok {
		return nil
	}
	if rt, ok := s.refreshTokens[token]; ok {
		rt.Expired = true
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// secretsEqual compares secrets in constant time.
func secretsEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
