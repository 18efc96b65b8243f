package secrets

import (
	"strings"
	"testing"

	"github.com/sf7293/job-notifier/internal/errval"
	"github.com/stretchr/testify/assert"
)

func mustGenerateKey(t *testing.T) string {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	return key
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := mustGenerateKey(t)

	encrypted, err := Encrypt("SG.super-secret-api-key", key)
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(encrypted, EncryptedMarker))

	decrypted, err := Decrypt(encrypted, key)
	assert.NoError(t, err)
	assert.Equal(t, "SG.super-secret-api-key", decrypted)
}

func TestDecrypt_WrongKey(t *testing.T) {
	key := mustGenerateKey(t)
	otherKey := mustGenerateKey(t)

	encrypted, err := Encrypt("plaintext", key)
	assert.NoError(t, err)

	_, err = Decrypt(encrypted, otherKey)
	assert.Error(t, err)
}

func TestNewResolver_MissingKey(t *testing.T) {
	_, err := NewResolver("", map[string]string{"WEBHOOK_SECRET": "abc"})
	assert.ErrorIs(t, err, errval.ErrMissingEncryptionKey)
}

func TestResolver_PlainValuePassesThrough(t *testing.T) {
	r, err := NewResolver(mustGenerateKey(t), map[string]string{"SENDGRID_FROM_EMAIL": "jobs@example.com"})
	assert.NoError(t, err)
	assert.Equal(t, "jobs@example.com", r.Resolve("SENDGRID_FROM_EMAIL"))
}

func TestResolver_EncryptedValueRoundTrip(t *testing.T) {
	key := mustGenerateKey(t)
	encrypted, err := Encrypt("twilio-auth-token", key)
	assert.NoError(t, err)

	r, err := NewResolver(key, map[string]string{"TWILIO_AUTH_TOKEN": encrypted})
	assert.NoError(t, err)
	assert.Equal(t, "twilio-auth-token", r.Resolve("TWILIO_AUTH_TOKEN"))
}

// A value that fails to decrypt is returned unchanged instead of raising.
func TestResolver_FailOpenOnBadCiphertext(t *testing.T) {
	key := mustGenerateKey(t)
	garbled := EncryptedMarker + "not-really-base64!!!"

	r, err := NewResolver(key, map[string]string{"WEBHOOK_SECRET": garbled})
	assert.NoError(t, err)
	assert.Equal(t, garbled, r.Resolve("WEBHOOK_SECRET"))
}

func TestResolver_FailOpenOnWrongKey(t *testing.T) {
	encrypted, err := Encrypt("secret", mustGenerateKey(t))
	assert.NoError(t, err)

	r, err := NewResolver(mustGenerateKey(t), map[string]string{"WEBHOOK_SECRET": encrypted})
	assert.NoError(t, err)
	assert.Equal(t, encrypted, r.Resolve("WEBHOOK_SECRET"))
}

func TestResolver_UnknownName(t *testing.T) {
	r, err := NewResolver(mustGenerateKey(t), map[string]string{})
	assert.NoError(t, err)
	assert.Equal(t, "", r.Resolve("NO_SUCH_NAME"))
}
