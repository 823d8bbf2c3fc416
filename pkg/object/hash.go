package object

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// HashBytes computes the raw SHA-1 hash of data and returns it as a
// lowercase hex-encoded Hash. Used directly only for representing ignored
// paths, which are keyed by the path string rather than blob content.
func HashBytes(data []byte) Hash {
	sum := sha1.Sum(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// HashObject computes the canonical object hash: SHA-1 over the envelope
// "type size\0content", matching Git's own object naming so that objects
// fetched over the wire and objects synthesized locally from a manifest
// hash identically.
func HashObject(objType ObjectType, data []byte) Hash {
	header := fmt.Sprintf("%s %d\x00", objType, len(data))
	h := sha1.New()
	h.Write([]byte(header))
	h.Write(data)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

// HashHex validates that s is a well-formed 40-character lowercase hex
// hash and returns it as a Hash, or an error if malformed.
func HashHex(s string) (Hash, error) {
	if len(s) != 40 {
		return "", fmt.Errorf("corrupt hash: want 40 hex chars, got %d", len(s))
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return "", fmt.Errorf("corrupt hash %q: non-lowercase-hex byte at %d", s, i)
		}
	}
	return Hash(s), nil
}

// HashBinary decodes a 20-byte binary SHA-1 digest into its hex Hash form.
func HashBinary(b []byte) (Hash, error) {
	if len(b) != 20 {
		return "", fmt.Errorf("corrupt hash: want 20 raw bytes, got %d", len(b))
	}
	return Hash(hex.EncodeToString(b)), nil
}

// Binary returns the 20-byte raw form of a Hash. The caller must have
// already validated the hash (e.g. via HashHex).
func (h Hash) Binary() []byte {
	b, _ := hex.DecodeString(string(h))
	return b
}
