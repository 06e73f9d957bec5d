package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapa-ai/zapa/pkg/apperror"
)

const testPassphrase = "test-encryption-key-32-chars-long!!"

func TestCipher_RoundTrip(t *testing.T) {
	c, err := NewCipher(testPassphrase)
	require.NoError(t, err)

	for _, plain := range []string{"sk-abc123", "hola ñandú 🌿", "a", "sk-" + string(make([]byte, 200))} {
		token, err := c.Encrypt(plain)
		require.NoError(t, err)
		require.NotEqual(t, plain, token)

		got, err := c.Decrypt(token)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	}
}

func TestCipher_EncryptIsNonDeterministic(t *testing.T) {
	c, err := NewCipher(testPassphrase)
	require.NoError(t, err)

	a, err := c.Encrypt("same secret")
	require.NoError(t, err)
	b, err := c.Encrypt("same secret")
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "a fresh nonce must be used per encryption")
}

func TestCipher_EmptyRoundTripsToEmpty(t *testing.T) {
	c, err := NewCipher(testPassphrase)
	require.NoError(t, err)

	token, err := c.Encrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", token)

	plain, err := c.Decrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", plain)
}

func TestCipher_DecryptRejectsTamper(t *testing.T) {
	c, err := NewCipher(testPassphrase)
	require.NoError(t, err)

	token, err := c.Encrypt("secret value")
	require.NoError(t, err)

	// Flip one character of the token body.
	tampered := []byte(token)
	if tampered[len(tampered)-5] == 'A' {
		tampered[len(tampered)-5] = 'B'
	} else {
		tampered[len(tampered)-5] = 'A'
	}

	_, err = c.Decrypt(string(tampered))
	require.Error(t, err)
	assert.True(t, apperror.IsInvalidCiphertext(err))
}

func TestCipher_DecryptRejectsWrongKey(t *testing.T) {
	c1, err := NewCipher(testPassphrase)
	require.NoError(t, err)
	c2, err := NewCipher("another-passphrase-32-chars-long!!!")
	require.NoError(t, err)

	token, err := c1.Encrypt("secret value")
	require.NoError(t, err)

	_, err = c2.Decrypt(token)
	require.Error(t, err)
	assert.True(t, apperror.IsInvalidCiphertext(err))
}

func TestCipher_DecryptRejectsGarbage(t *testing.T) {
	c, err := NewCipher(testPassphrase)
	require.NoError(t, err)

	for _, bad := range []string{"not base64 at all!!", "AAAA", "dGluaWVzdA=="} {
		_, err := c.Decrypt(bad)
		require.Error(t, err, "input %q", bad)
		assert.True(t, apperror.IsInvalidCiphertext(err))
	}
}

func TestGenerateKey(t *testing.T) {
	k1, err := GenerateKey()
	require.NoError(t, err)
	k2, err := GenerateKey()
	require.NoError(t, err)

	assert.NotEqual(t, k1, k2)
	assert.GreaterOrEqual(t, len(k1), 32)

	// A generated key must be usable as a passphrase.
	_, err = NewCipher(k1)
	require.NoError(t, err)
}
