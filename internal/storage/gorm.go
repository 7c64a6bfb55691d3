package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/arlofn/provider/internal/common/config"
	"github.com/arlofn/provider/internal/common/errorx"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// GormStore implements the Store interface on a relational database.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// NewSQLite creates a SQLite-backed store.
func NewSQLite(cfg *config.DatabaseConfig) (*GormStore, error) {
	dir := filepath.Dir(cfg.DBName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(cfg.DBName), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return NewGormStore(db)
}

// NewMySQL creates a MySQL-backed store.
func NewMySQL(cfg *config.DatabaseConfig) (*GormStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return NewGormStore(db)
}

// NewPostgres creates a PostgreSQL-backed store.
func NewPostgres(cfg *config.DatabaseConfig) (*GormStore, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port, cfg.SSLMode)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return NewGormStore(db)
}

// NewGormStore migrates the schema and wraps an existing gorm connection.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&Client{}, &Grant{}, &AccessToken{}, &RefreshToken{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &GormStore{db: db}, nil
}

// DB exposes the underlying connection so collaborators (the identity
// verifier) can share it.
func (s *GormStore) DB() *gorm.DB { return s.db }

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) CreateClient(ctx context.Context, client *Client) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Client{}).
		Where("client_id = ?", client.ClientID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return errorx.ErrClientAlreadyExists
	}
	return s.db.WithContext(ctx).Create(client).Error
}

func (s *GormStore) GetClient(ctx context.Context, clientID string) (*Client, error) {
	var client Client
	err := s.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errorx.ErrInvalidClient
	}
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func (s *GormStore) GetClientByCredentials(ctx context.Context, clientID, clientSecret string) (*Client, error) {
	client, err := s.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	// secret comparison happens here, not in SQL, so it is constant time
	if !secretsEqual(client.ClientSecret, clientSecret) {
		return nil, errorx.ErrInvalidClient
	}
	return client, nil
}

func (s *GormStore) UpdateClient(ctx context.Context, client *Client) error {
	res := s.db.WithContext(ctx).
		Model(&Client{}).
		Where("client_id = ?", client.ClientID).
		Updates(map[string]any{
			"name":          client.Name,
			"url":           client.URL,
			"redirect_uri":  client.RedirectURI,
			"client_secret": client.ClientSecret,
			"client_type":   client.ClientType,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errorx.ErrInvalidClient
	}
	return nil
}

func (s *GormStore) DeleteClient(ctx context.Context, clientID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("client_id = ?", clientID).Delete(&Client{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errorx.ErrInvalidClient
		}
		// cascade to everything issued under the client
		if err := tx.Where("client_id = ?", clientID).Delete(&Grant{}).Error; err != nil {
			return err
		}
		if err := tx.Where("client_id = ?", clientID).Delete(&AccessToken{}).Error; err != nil {
			return err
		}
		return tx.Where("client_id = ?", clientID).Delete(&RefreshToken{}).Error
	})
}

func (s *GormStore) SaveGrant(ctx context.Context, grant *Grant) error {
	return s.db.WithContext(ctx).Create(grant).Error
}

func (s *GormStore) ConsumeGrant(ctx context.Context, code, clientID, redirectURI string, now time.Time) (*Grant, error) {
	var grant Grant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.
			Where("code = ? AND client_id = ? AND redirect_uri = ? AND expires_at > ?",
				code, clientID, redirectURI, now).
			First(&grant).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorx.ErrInvalidGrant
		}
		if err != nil {
			return err
		}

		res := tx.Where("id = ?", grant.ID).Delete(&Grant{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// a concurrent exchange consumed it first
			return errorx.ErrInvalidGrant
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

func (s *GormStore) SaveAccessToken(ctx context.Context, token *AccessToken) error {
	return s.db.WithContext(ctx).Create(token).Error
}

func (s *GormStore) GetAccessToken(ctx context.Context, token, clientID string, now time.Time) (*AccessToken, error) {
	var at AccessToken
	err := s.db.WithContext(ctx).
		Where("token = ? AND client_id = ? AND expires_at > ?", token, clientID, now).
		First(&at).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errorx.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	return &at, nil
}

func (s *GormStore) DeleteAccessToken(ctx context.Context, token string) error {
	res := s.db.WithContext(ctx).Where("token = ?", token).Delete(&AccessToken{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errorx.ErrInvalidToken
	}
	return nil
}

func (s *GormStore) SaveRefreshToken(ctx context.Context, token *RefreshToken) error {
	return s.db.WithContext(ctx).Create(token).Error
}

func (s *GormStore) RotateRefreshToken(ctx context.Context, token, clientID string) (*RefreshToken, error) {
	var rt RefreshToken
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// guarded update decides the winner under concurrency
		res := tx.Model(&RefreshToken{}).
			Where("token = ? AND client_id = ? AND expired = ?", token, clientID, false).
			Update("expired", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errorx.ErrInvalidGrant
		}
		return tx.Where("token = ? AND client_id = ?", token, clientID).First(&rt).Error
	})
	if err != nil {
		return nil, err
	}
	// report the pre-rotation state
	rt.Expired = false
	return &rt, nil
}

func (s *GormStore) ExpireRefreshTokenByAccessToken(ctx context.Context, accessTokenID string) error {
	return s.db.WithContext(ctx).
		Model(&RefreshToken{}).
		Where("access_token_id = ?", accessTokenID).
		Update("expired", true).Error
}
