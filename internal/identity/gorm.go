package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// GormVerifier verifies end users against a relational users table with
// bcrypt-hashed passwords. It can share the entity store's connection.
type GormVerifier struct {
	db *gorm.DB
}

var _ Verifier = (*GormVerifier)(nil)

// NewGormVerifier migrates the users table and wraps the connection.
func NewGormVerifier(db *gorm.DB) (*GormVerifier, error) {
	if err := db.AutoMigrate(&User{}); err != nil {
		return nil, fmt.Errorf("failed to migrate users table: %w", err)
	}
	return &GormVerifier{db: db}, nil
}

// CreateUser registers a user with a bcrypt-hashed password.
func (v *GormVerifier) CreateUser(ctx context.Context, username, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:       uuid.NewString(),
		Username: username,
		Password: string(hash),
	}
	if err := v.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func (v *GormVerifier) VerifyCredentials(ctx context.Context, username, password string) (*User, error) {
	var user User
	err := v.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, nil
	}
	return &user, nil
}
