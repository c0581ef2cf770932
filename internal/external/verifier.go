package external

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// HMACVerifier checks the platform's webhook signatures. The platform signs
// the raw request body with the shared app secret and sends the digest
// base64-encoded in a request header.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier creates a verifier bound to the shared app secret.
func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

// Verify reports whether signature is a valid base64 HMAC-SHA256 of body.
// The comparison is constant-time.
func (v *HMACVerifier) Verify(body []byte, signature string) bool {
	want, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return hmac.Equal(want, mac.Sum(nil))
}

// Sign produces the base64 HMAC-SHA256 of body, the counterpart of Verify.
// Test code uses it to build valid webhook requests.
func (v *HMACVerifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
