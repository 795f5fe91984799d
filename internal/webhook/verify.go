package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// VerifySignature checks a GitHub webhook payload against its
// X-Hub-Signature-256 value: HMAC-SHA256 over the raw body with the
// shared secret, compared in constant time.
func VerifySignature(payload []byte, signature, secret string) bool {
	// GitHub sends the signature as "sha256=<hex>".
	if !strings.HasPrefix(signature, "sha256=") {
		return false
	}
	received := strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(received), []byte(expected))
}

// ValidateSignatureHeader rejects requests whose signature header is
// missing or malformed before any HMAC work happens.
func ValidateSignatureHeader(header string) error {
	if header == "" {
		return fmt.Errorf("missing X-Hub-Signature-256 header")
	}
	if !strings.HasPrefix(header, "sha256=") {
		return fmt.Errorf("invalid signature format, expected 'sha256=<hash>'")
	}
	return nil
}
