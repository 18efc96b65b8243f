package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// EncryptedMarker prefixes every at-rest-encrypted configuration value.
const EncryptedMarker = "ENC:"

var errInvalidCiphertext = errors.New("invalid ciphertext")

// GenerateKey returns a fresh base64-encoded 256-bit key.
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(key), nil
}

// Encrypt seals the plaintext with AES-256-GCM under the given base64 key and
// returns the marker-prefixed wire form: ENC:base64(nonce || ciphertext).
func Encrypt(plaintext, base64Key string) (string, error) {
	gcm, err := newGCM(base64Key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return EncryptedMarker + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. The marker prefix is optional on input.
func Decrypt(value, base64Key string) (string, error) {
	encoded := strings.TrimPrefix(value, EncryptedMarker)

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}

	gcm, err := newGCM(base64Key)
	if err != nil {
		return "", err
	}

	if len(sealed) < gcm.NonceSize() {
		return "", errInvalidCiphertext
	}

	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypting value: %w", err)
	}

	return string(plaintext), nil
}

func newGCM(base64Key string) (cipher.AEAD, error) {
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("decoding encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("initializing cipher: %w", err)
	}

	return cipher.NewGCM(block)
}
