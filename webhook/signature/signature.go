package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	// SecretPrefix marks generated signing secrets
	SecretPrefix = "whsec_"

	// SecretBytes is the size of generated secrets (256 bits)
	SecretBytes = 32
)

// Header names used on outbound delivery requests
const (
	SignatureHeader = "X-Webhook-Signature"
	EventTypeHeader = "X-Webhook-Event"
	DeliveryHeader  = "X-Webhook-ID"
)

/* Sign computes the lowercase hex HMAC-SHA256 digest of payload under
 * secret. Pure function: equal inputs always produce equal digests,
 * whether callers hold the payload as a string or a byte slice
 */
func Sign(payload, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignString is the string-input convenience form of Sign
func SignString(payload, secret string) string {
	return Sign([]byte(payload), []byte(secret))
}

/* Verify recomputes the signature over the raw payload and compares it
 * against the header-delivered digest in constant time. A malformed hex
 * digest never verifies
 */
func Verify(payload, secret []byte, provided string) bool {
	expected := hmac.New(sha256.New, secret)
	expected.Write(payload)

	decoded, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}

	return hmac.Equal(expected.Sum(nil), decoded)
}

// GenerateSecret creates a new cryptographically secure signing secret
func GenerateSecret() (string, error) {
	raw := make([]byte, SecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return SecretPrefix + base64.StdEncoding.EncodeToString(raw), nil
}
