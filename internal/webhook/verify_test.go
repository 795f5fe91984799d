package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"action":"opened"}`)
	secret := "test-secret"

	tests := []struct {
		name      string
		signature string
		secret    string
		want      bool
	}{
		{"valid", sign(payload, secret), secret, true},
		{"wrong secret", sign(payload, "other"), secret, false},
		{"missing prefix", "deadbeef", secret, false},
		{"empty", "", secret, false},
		{"tampered hex", "sha256=0000000000000000000000000000000000000000000000000000000000000000", secret, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(payload, tt.signature, tt.secret); got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifySignatureTamperedPayload(t *testing.T) {
	secret := "test-secret"
	signature := sign([]byte(`{"action":"opened"}`), secret)

	if VerifySignature([]byte(`{"action":"closed"}`), signature, secret) {
		t.Error("signature over a different payload must not verify")
	}
}

func TestValidateSignatureHeader(t *testing.T) {
	if err := ValidateSignatureHeader(""); err == nil {
		t.Error("missing header should be rejected")
	}
	if err := ValidateSignatureHeader("sha1=abc"); err == nil {
		t.Error("non sha256 scheme should be rejected")
	}
	if err := ValidateSignatureHeader("sha256=abc"); err != nil {
		t.Errorf("well-formed header rejected: %v", err)
	}
}
