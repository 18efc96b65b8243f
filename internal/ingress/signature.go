package ingress

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignBody computes the hex HMAC-SHA256 of the raw request body under the
// shared webhook secret. The sender puts this value in the signature header.
func SignBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares the provided signature against the expected MAC in
// constant time.
func VerifySignature(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}

	expected := SignBody(body, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
