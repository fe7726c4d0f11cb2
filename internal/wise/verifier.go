package wise

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	ErrInvalidSignature = errors.New("wise: invalid signature")
	ErrInvalidPayload   = errors.New("wise: invalid payload")
)

// Verifier checks the HMAC-SHA256 signature Wise attaches to webhook deliveries.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(strings.TrimSpace(secret))}
}

// Verify reports whether signature matches the raw, unparsed request body.
// The signature may be hex or standard base64 encoded.
func (v *Verifier) Verify(body []byte, signature string) bool {
	if len(v.secret) == 0 {
		return false
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}
	got, ok := decodeSignature(signature)
	if !ok {
		return false
	}
	return hmac.Equal(got, v.sign(body))
}

func (v *Verifier) sign(body []byte) []byte {
	mac := hmac.New(sha256.New, v.secret)
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}

// Sign returns the hex signature of body. Used by tests and the load generator.
func (v *Verifier) Sign(body []byte) string {
	return hex.EncodeToString(v.sign(body))
}

func decodeSignature(s string) ([]byte, bool) {
	if len(s) == sha256.Size*2 {
		if b, err := hex.DecodeString(s); err == nil {
			return b, true
		}
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(b) != sha256.Size {
		return nil, false
	}
	return b, true
}
