package oauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeHas(t *testing.T) {
	assert.True(t, ScopeRead.Has(ScopeRead))
	assert.False(t, ScopeRead.Has(ScopeWrite))
	assert.True(t, ScopeReadWrite.Has(ScopeRead))
	assert.True(t, ScopeReadWrite.Has(ScopeWrite))
	assert.True(t, ScopeReadWrite.Has(ScopeReadWrite))
	assert.False(t, ScopeWrite.Has(ScopeReadWrite))
}

func TestScopeString(t *testing.T) {
	assert.Equal(t, "read", ScopeRead.String())
	assert.Equal(t, "write", ScopeWrite.String())
	assert.Equal(t, "read write", ScopeReadWrite.String())
	assert.Equal(t, "", Scope(0).String())
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope("read write")
	require.NoError(t, err)
	assert.Equal(t, ScopeReadWrite, s)

	s, err = ParseScope("read+write")
	require.NoError(t, err)
	assert.Equal(t, ScopeReadWrite, s)

	s, err = ParseScope("")
	require.NoError(t, err)
	assert.Equal(t, Scope(0), s)

	_, err = ParseScope("read admin")
	assert.Error(t, err)
}
