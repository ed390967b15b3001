// Package content computes content digests and sniffs containers from
// leading bytes. Everything here is pure and never fails beyond reporting
// an unknown format.
package content

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Digest returns the lowercase hex MD5 of b. MD5 is the digest the on-device
// layout keys files by, so it is not interchangeable.
func Digest(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

// DigestString digests the bytes of s.
func DigestString(s string) string {
	return Digest([]byte(s))
}

// DigestFile streams the file at path through the hash.
func DigestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsDigest reports whether s looks like a hex digest produced by Digest.
func IsDigest(s string) bool {
	if len(s) != 2*md5.Size {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}
