package mpesa

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw callback body.
const SignatureHeader = "X-Mpesa-Signature"

type Verifier struct {
	Secret []byte
}

func (v *Verifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.Secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the signature in constant time. Callbacks with a bad or
// missing signature are dropped before any state is touched.
func (v *Verifier) Verify(body []byte, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, v.Secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}
