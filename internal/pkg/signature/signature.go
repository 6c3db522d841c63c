package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Prefix is the scheme tag of a webhook signature header value.
const Prefix = "sha256="

// Sign returns the header value for payload: sha256=<hex hmac>.
func Sign(payload []byte, secret string) string {
	return Prefix + hex.EncodeToString(compute(payload, []byte(secret)))
}

// Verify checks a sha256=<hex> header against the HMAC-SHA256 of the raw
// payload. An empty secret or header never verifies.
func Verify(payload []byte, signatureHeader, secret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	if sig == "" || secret == "" {
		return false
	}
	if len(sig) < len(Prefix) || !strings.EqualFold(sig[:len(Prefix)], Prefix) {
		return false
	}

	decodedSig, err := hex.DecodeString(strings.ToLower(sig[len(Prefix):]))
	if err != nil {
		return false
	}
	return hmac.Equal(compute(payload, []byte(secret)), decodedSig)
}

func compute(payload, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return mac.Sum(nil)
}
