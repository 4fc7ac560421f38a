// Package idgen mints random identifiers from crypto/rand.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

func mustRead(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return b
}

// New returns a UUID-shaped random ID
// (xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx).
func New() string {
	b := mustRead(16)
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}

// WithPrefix returns prefix followed by 24 hex chars. Used for typed
// IDs such as "ct_", "ord_", and "wh_".
func WithPrefix(prefix string) string {
	return prefix + hex.EncodeToString(mustRead(12))
}

// Hex returns a random hex string covering numBytes of entropy.
func Hex(numBytes int) string {
	return hex.EncodeToString(mustRead(numBytes))
}
