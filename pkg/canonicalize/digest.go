package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256 hashes the UTF-8 bytes of a canonical string.
func SHA256(canonical string) [32]byte {
	return sha256.Sum256([]byte(canonical))
}

// SHA256Hex returns the lowercase hex SHA-256 digest of a canonical string.
func SHA256Hex(canonical string) string {
	sum := SHA256(canonical)
	return hex.EncodeToString(sum[:])
}
