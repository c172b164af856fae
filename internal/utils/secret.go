package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
)

var ten = big.NewInt(10)

// GenerateNumericCode generates a cryptographically secure numeric code
// of the given length. Leading zeros are allowed, so the code space is
// the full 10^length.
func GenerateNumericCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid code length %d", length)
	}
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("failed to generate random digit: %w", err)
		}
		buf[i] = '0' + byte(n.Int64())
	}
	return string(buf), nil
}

// HashCode returns the hex-encoded SHA-256 digest of a code. Only the
// digest is ever persisted; there is no reversal path.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// CodeMatches recomputes the digest of a candidate code and compares it
// against the stored digest in constant time. Attempt limiting is the
// caller's responsibility.
func CodeMatches(code, digest string) bool {
	computed := HashCode(code)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1
}
