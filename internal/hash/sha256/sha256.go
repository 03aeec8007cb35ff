// Package sha256 provides short SHA-256 digests for naming artifacts.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Short returns the first n hex characters of the SHA-256 digest of data.
// n is clamped to the full digest length.
func Short(data []byte, n int) string {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	if n <= 0 || n > len(digest) {
		return digest
	}
	return digest[:n]
}
