// Package hash computes content digests.
//
// Digests identify page bodies in plan output so two plans can be compared
// without printing full storage-format bodies.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
)

// ShortLen is the number of hex characters kept by Short.
const ShortLen = 12

// Sum returns the hex SHA-256 digest of s.
func Sum(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Short truncates a digest for display.
func Short(digest string) string {
	if len(digest) <= ShortLen {
		return digest
	}
	return digest[:ShortLen]
}
