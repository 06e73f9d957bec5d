package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/zapa-ai/zapa/pkg/apperror"
)

const (
	keySize    = 32
	iterations = 100_000
)

// Fixed salt keeps ciphertexts portable across processes that share the same
// passphrase. The ciphertext, not the key, is what gets persisted.
var kdfSalt = []byte("zapa_salt_2024")

// Cipher encrypts and decrypts short secrets (user LLM API keys) with
// AES-256-GCM under a key derived from a configured passphrase.
type Cipher struct {
	gcm cipher.AEAD
}

// NewCipher derives a 32-byte key from the passphrase with PBKDF2-SHA256 and
// builds the AEAD. The key material never leaves the returned value.
func NewCipher(passphrase string) (*Cipher, error) {
	key := pbkdf2.Key([]byte(passphrase), kdfSalt, iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Cipher{gcm: gcm}, nil
}

// Encrypt returns a URL-safe base64 token of nonce||ciphertext.
// Empty input round-trips to empty.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any tamper, wrong key or malformed token yields
// an apperror.InvalidCiphertextError.
func (c *Cipher) Decrypt(token string) (string, error) {
	if token == "" {
		return "", nil
	}

	data, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", apperror.InvalidCiphertextError("malformed ciphertext token")
	}

	nonceSize := c.gcm.NonceSize()
	if len(data) < nonceSize {
		return "", apperror.InvalidCiphertextError("ciphertext too short")
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", apperror.InvalidCiphertextError("ciphertext authentication failed")
	}

	return string(plaintext), nil
}

// GenerateKey returns a fresh 32-byte passphrase as URL-safe base64, suitable
// for the ENCRYPTION_KEY setting.
func GenerateKey() (string, error) {
	raw := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}
