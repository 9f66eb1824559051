package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCipherRoundTrip(t *testing.T) {
	c, err := NewTokenCipher("correct horse battery staple")
	require.NoError(t, err)
	require.NotNil(t, c)

	sealed, err := c.Encrypt("u-access-token")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, "enc:"))
	assert.NotContains(t, sealed, "u-access-token")

	plain, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "u-access-token", plain)

	legacy, err := c.Decrypt("plain-value")
	require.NoError(t, err)
	assert.Equal(t, "plain-value", legacy)
}

func TestTokenCipherDisabled(t *testing.T) {
	c, err := NewTokenCipher("")
	require.NoError(t, err)
	assert.Nil(t, c)

	out, err := c.Encrypt("x")
	require.NoError(t, err)
	assert.Equal(t, "x", out)
}

func TestTokenCipherWrongKey(t *testing.T) {
	a, _ := NewTokenCipher("one")
	b, _ := NewTokenCipher("two")
	sealed, err := a.Encrypt("secret")
	require.NoError(t, err)
	_, err = b.Decrypt(sealed)
	assert.Error(t, err)
}

func TestStateRoundTrip(t *testing.T) {
	secret := []byte("state-secret")
	state, err := SignState(secret, "/tasks?view=board", time.Minute)
	require.NoError(t, err)

	redirect, err := ParseState(secret, state)
	require.NoError(t, err)
	assert.Equal(t, "/tasks?view=board", redirect)

	_, err = ParseState([]byte("other"), state)
	assert.Error(t, err)

	expired, err := SignState(secret, "/tasks", -time.Minute)
	require.NoError(t, err)
	_, err = ParseState(secret, expired)
	assert.Error(t, err)
}

func TestSafeRedirect(t *testing.T) {
	assert.Equal(t, "/graph", SafeRedirect("/graph"))
	assert.Equal(t, DefaultRedirect, SafeRedirect(""))
	assert.Equal(t, DefaultRedirect, SafeRedirect("https://evil.example"))
	assert.Equal(t, DefaultRedirect, SafeRedirect("//evil.example"))
}
