package token

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_RequiresSecret(t *testing.T) {
	_, err := NewCodec("")
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestCodec_GenerateSecret(t *testing.T) {
	codec, err := NewCodec("test-signing-key")
	require.NoError(t, err)

	now := time.Now()
	secret, err := codec.GenerateSecret("user-1", "prod-1", "tok-1", now)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(secret, TokenPrefix))
	assert.Greater(t, len(secret), len(TokenPrefix)+32)

	// The random suffix makes identical inputs produce different
	// secrets.
	again, err := codec.GenerateSecret("user-1", "prod-1", "tok-1", now)
	require.NoError(t, err)
	assert.NotEqual(t, secret, again)
}

func TestCodec_DifferentKeysDiverge(t *testing.T) {
	a, err := NewCodec("key-a")
	require.NoError(t, err)
	b, err := NewCodec("key-b")
	require.NoError(t, err)

	now := time.Now()
	sa, err := a.GenerateSecret("user-1", "prod-1", "tok-1", now)
	require.NoError(t, err)
	sb, err := b.GenerateSecret("user-1", "prod-1", "tok-1", now)
	require.NoError(t, err)
	assert.NotEqual(t, sa, sb)
}

func TestCodec_Equal(t *testing.T) {
	codec, err := NewCodec("test-signing-key")
	require.NoError(t, err)

	assert.True(t, codec.Equal("dlt_abc", "dlt_abc"))
	assert.False(t, codec.Equal("dlt_abc", "dlt_abd"))
	assert.False(t, codec.Equal("dlt_abc", "dlt_abcd"))
}
