// Package checksum computes the content digests used to detect changed
// documents and to recognise moved subtrees.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Combine digests a set of parts independently of their order. It returns
// the empty string for an empty set. parts is sorted in place.
func Combine(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	sort.Strings(parts)
	return Sum([]byte(strings.Join(parts, "\n")))
}
