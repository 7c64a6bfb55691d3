package identity

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestGormVerifier(t *testing.T) *GormVerifier {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "users.db")), &gorm.Config{})
	require.NoError(t, err)

	v, err := NewGormVerifier(db)
	require.NoError(t, err)
	return v
}

func TestGormVerifier(t *testing.T) {
	v := newTestGormVerifier(t)
	ctx := context.Background()

	created, err := v.CreateUser(ctx, "alice", "wonderland")
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	// the stored value is a hash, never the raw password
	assert.NotEqual(t, "wonderland", created.Password)

	user, err := v.VerifyCredentials(ctx, "alice", "wonderland")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, created.ID, user.ID)

	// wrong password and unknown user are no-match, not errors
	user, err = v.VerifyCredentials(ctx, "alice", "Wonderland")
	assert.NoError(t, err)
	assert.Nil(t, user)

	user, err = v.VerifyCredentials(ctx, "bob", "wonderland")
	assert.NoError(t, err)
	assert.Nil(t, user)
}

func TestStaticVerifier(t *testing.T) {
	v := NewStaticVerifier(map[string]string{"alice": "wonderland"})
	ctx := context.Background()

	user, err := v.VerifyCredentials(ctx, "alice", "wonderland")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "alice", user.Username)

	user, err = v.VerifyCredentials(ctx, "alice", "nope")
	assert.NoError(t, err)
	assert.Nil(t, user)

	user, err = v.VerifyCredentials(ctx, "mallory", "wonderland")
	assert.NoError(t, err)
	assert.Nil(t, user)
}
