// Package checksum computes content digests used for change detection and
// optimistic concurrency on content files.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Matches reports whether expected is the digest of data. An ETag-style quoted
// value is accepted. An empty expected value always matches.
func Matches(data []byte, expected string) bool {
	expected = strings.Trim(strings.TrimSpace(expected), `"`)
	if expected == "" {
		return true
	}
	return strings.EqualFold(expected, Sum(data))
}
