package anomaly

import (
	"encoding/hex"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"

	"dctwin/internal/domain"
)

// Fingerprint derives the dedupe key stored with a saved anomaly. Saving the
// same content under the same idempotency key yields the same fingerprint.
// ordinal counts earlier anomalies in the batch sharing a's identity key, so
// identical duplicates in one scan stay distinct.
// An empty key disables deduplication.
func Fingerprint(idempotencyKey string, a *domain.Anomaly, ordinal int) string {
	if idempotencyKey == "" {
		return ""
	}

	h, _ := blake2b.New256(nil)
	for _, part := range []string{
		idempotencyKey,
		a.SiteID,
		string(a.Type),
		string(a.Severity),
		a.IdentityKey,
		strings.Join(a.DeviceIDs, ","),
		a.Notes,
		strconv.Itoa(ordinal),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ContentKey hashes arbitrary content, such as a scan file, into an idempotency key
func ContentKey(content []byte) string {
	sum := blake2b.Sum256(content)
	return hex.EncodeToString(sum[:])
}
