package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Sign computes the HMAC-SHA256 signature over "{timestamp}.{payload}"
// using the webhook's secret (spec.md §4.5). The "v1=" prefix reserves
// room for future algorithm rotation without breaking receivers already
// verifying v1 signatures.
func Sign(secret string, timestampMs int64, payload []byte) string {
	signed := fmt.Sprintf("%d.%s", timestampMs, payload)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signed))

	return "v1=" + hex.EncodeToString(mac.Sum(nil))
}
