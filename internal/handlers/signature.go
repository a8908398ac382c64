package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// VerifySignature checks that signature is the hex-encoded HMAC-SHA256 of
// the raw request body under secret. It fails closed: an empty secret or
// empty signature never verifies, and the comparison is constant-time.
// Callers must verify the raw bytes before parsing the body; verifying a
// re-serialized form is not equivalent.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if len(signature) != len(expected) {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(expected))
}
