package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/arlofn/provider/internal/common/config"
	"github.com/arlofn/provider/internal/common/errorx"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements the Store interface on Redis. Records are JSON
// values under prefixed keys; grant and access-token keys carry a TTL
// matching their expiry. Single-use and rotate-once guarantees come from
// WATCH transactions on the affected key.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed store and verifies connectivity.
func NewRedisStore(cfg *config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "oauth"
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) clientKey(clientID string) string { return s.prefix + ":client:" + clientID }
func (s *RedisStore) grantKey(code string) string      { return s.prefix + ":grant:" + code }
func (s *RedisStore) tokenKey(token string) string     { return s.prefix + ":token:" + token }
func (s *RedisStore) refreshKey(token string) string   { return s.prefix + ":refresh:" + token }
func (s *RedisStore) refreshByAccessKey(accessTokenID string) string {
	return s.prefix + ":refresh_at:" + accessTokenID
}

func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) CreateClient(ctx context.Context, client *Client) error {
	now := time.Now()
	client.CreatedAt = now
	client.UpdatedAt = now

	data, err := json.Marshal(client)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, s.clientKey(client.ClientID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return errorx.ErrClientAlreadyExists
	}
	return nil
}

func (s *RedisStore) GetClient(ctx context.Context, clientID string) (*Client, error) {
	data, err := s.client.Get(ctx, s.clientKey(clientID)).Bytes()
	if err == redis.Nil {
		return nil, errorx.ErrInvalidClient
	}
	if err != nil {
		return nil, err
	}

	var client Client
	if err := json.Unmarshal(data, &client); err != nil {
		return nil, err
	}
	return &client, nil
}

func (s *RedisStore) GetClientByCredentials(ctx context.Context, clientID, clientSecret string) (*Client, error) {
	client, err := s.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if !secretsEqual(client.ClientSecret, clientSecret) {
		return nil, errorx.ErrInvalidClient
	}
	return client, nil
}

func (s *RedisStore) UpdateClient(ctx context.Context, client *Client) error {
	exists, err := s.client.Exists(ctx, s.clientKey(client.ClientID)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return errorx.ErrInvalidClient
	}

	client.UpdatedAt = time.Now()
	data, err := json.Marshal(client)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.clientKey(client.ClientID), data, 0).Err()
}

func (s *RedisStore) DeleteClient(ctx context.Context, clientID string) error {
	deleted, err := s.client.Del(ctx, s.clientKey(clientID)).Result()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return errorx.ErrInvalidClient
	}

	// cascade: scan each record family and drop rows owned by the client
	if err := s.deleteMatching(ctx, s.prefix+":grant:*", func(data []byte) (bool, []string) {
		var g Grant
		if json.Unmarshal(data, &g) != nil {
			return false, nil
		}
		return g.ClientID == clientID, nil
	}); err != nil {
		return err
	}
	if err := s.deleteMatching(ctx, s.prefix+":token:*", func(data []byte) (bool, []string) {
		var at AccessToken
		if json.Unmarshal(data, &at) != nil {
			return false, nil
		}
		return at.ClientID == clientID, []string{s.refreshByAccessKey(at.ID)}
	}); err != nil {
		return err
	}
	return s.deleteMatching(ctx, s.prefix+":refresh:*", func(data []byte) (bool, []string) {
		var rt RefreshToken
		if json.Unmarshal(data, &rt) != nil {
			return false, nil
		}
		return rt.ClientID == clientID, nil
	})
}

// deleteMatching scans keys matching pattern and deletes those the match
// function selects, plus any extra keys it names.
func (s *RedisStore) deleteMatching(ctx context.Context, pattern string, match func([]byte) (bool, []string)) error {
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		ok, extra := match(data)
		if !ok {
			continue
		}
		s.client.Del(ctx, key)
		for _, k := range extra {
			s.client.Del(ctx, k)
		}
	}
	return iter.Err()
}

func (s *RedisStore) SaveGrant(ctx context.Context, grant *Grant) error {
	grant.CreatedAt = time.Now()
	data, err := json.Marshal(grant)
	if err != nil {
		return err
	}

	ttl := time.Until(grant.ExpiresAt)
	if ttl <= 0 {
		return errorx.ErrInvalidGrant
	}
	return s.client.Set(ctx, s.grantKey(grant.Code), data, ttl).Err()
}

func (s *RedisStore) ConsumeGrant(ctx context.Context, code, clientID, redirectURI string, now time.Time) (*Grant, error) {
	key := s.grantKey(code)
	var grant Grant

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return errorx.ErrInvalidGrant
		}
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &grant); err != nil {
			return err
		}
		if grant.ClientID != clientID || grant.RedirectURI != redirectURI || !grant.ExpiresAt.After(now) {
			return errorx.ErrInvalidGrant
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)
	if err == redis.TxFailedErr {
		// lost the race against a concurrent exchange
		return nil, errorx.ErrInvalidGrant
	}
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

func (s *RedisStore) SaveAccessToken(ctx context.Context, token *AccessToken) error {
	token.CreatedAt = time.Now()
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}

	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return errorx.ErrInvalidToken
	}
	return s.client.Set(ctx, s.tokenKey(token.Token), data, ttl).Err()
}

func (s *RedisStore) GetAccessToken(ctx context.Context, token, clientID string, now time.Time) (*AccessToken, error) {
	data, err := s.client.Get(ctx, s.tokenKey(token)).Bytes()
	if err == redis.Nil {
		return nil, errorx.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}

	var at AccessToken
	if err := json.Unmarshal(data, &at); err != nil {
		return nil, err
	}
	if at.ClientID != clientID || !at.ExpiresAt.After(now) {
		return nil, errorx.ErrInvalidToken
	}
	return &at, nil
}

func (s *RedisStore) DeleteAccessToken(ctx context.Context, token string) error {
	data, err := s.client.Get(ctx, s.tokenKey(token)).Bytes()
	if err == redis.Nil {
		return errorx.ErrInvalidToken
	}
	if err != nil {
		return err
	}

	var at AccessToken
	if err := json.Unmarshal(data, &at); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.tokenKey(token)).Err(); err != nil {
		return err
	}
	return s.client.Del(ctx, s.refreshByAccessKey(at.ID)).Err()
}

func (s *RedisStore) SaveRefreshToken(ctx context.Context, token *RefreshToken) error {
	token.CreatedAt = time.Now()
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}

	// refresh tokens have no natural expiry; they live until rotated
	if err := s.client.Set(ctx, s.refreshKey(token.Token), data, 0).Err(); err != nil {
		return err
	}
	return s.client.Set(ctx, s.refreshByAccessKey(token.AccessTokenID), token.Token, 0).Err()
}

func (s *RedisStore) RotateRefreshToken(ctx context.Context, token, clientID string) (*RefreshToken, error) {
	key := s.refreshKey(token)
	var rt RefreshToken

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return errorx.ErrInvalidGrant
		}
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &rt); err != nil {
			return err
		}
		if rt.ClientID != clientID || rt.Expired {
			return errorx.ErrInvalidGrant
		}

		expired := rt
		expired.Expired = true
		out, err := json.Marshal(&expired)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		return err
	}, key)
	if err == redis.TxFailedErr {
		return nil, errorx.ErrInvalidGrant
	}
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

func (s *RedisStore) ExpireRefreshTokenByAccessToken(ctx context.Context, accessTokenID string) error {
	token, err := s.client.Get(ctx, s.refreshByAccessKey(accessTokenID)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}

	data, err := s.client.Get(ctx, s.refreshKey(token)).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}

	var rt RefreshToken
	if err := json.Unmarshal(data, &rt); err != nil {
		return err
	}
	rt.Expired = true
	out, err := json.Marshal(&rt)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.refreshKey(token), out, 0).Err()
}
