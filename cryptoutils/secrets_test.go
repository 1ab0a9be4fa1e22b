package cryptoutils

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSecret(t *testing.T) {
	secret, hash, err := NewClientSecret()
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(secret)
	require.NoError(t, err)
	assert.Len(t, raw, SecretSize)
	assert.NotContains(t, string(hash), secret)

	assert.NoError(t, VerifySecret(hash, secret))
	assert.ErrorIs(t, VerifySecret(hash, secret+"x"), ErrSecretMismatch)
	assert.ErrorIs(t, VerifySecret([]byte("not a hash"), secret), ErrSecretMismatch)

	other, _, err := NewClientSecret()
	require.NoError(t, err)
	assert.NotEqual(t, secret, other)
}
