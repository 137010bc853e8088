// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme)
// serialization for deterministic hashing and signing of certificates.
package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// JCS returns the RFC 8785 canonical JSON representation of v.
//
// The value is first marshaled with encoding/json (so struct tags are
// respected), then transformed: object keys sorted lexicographically by
// UTF-8 bytes, no insignificant whitespace, no HTML escaping, ES6 number
// formatting.
func JCS(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jcs: pre-marshal failed: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("jcs: transform failed: %w", err)
	}
	return canonical, nil
}

// CanonicalHash returns the SHA-256 hex digest of the canonical JSON
// representation of v.
func CanonicalHash(v interface{}) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes computes the SHA-256 hash of raw bytes and returns a hex string.
func HashBytes(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// JCSString returns the JCS canonical form as a string.
func JCSString(v interface{}) (string, error) {
	data, err := JCS(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// UnsignedBytes canonicalizes a certificate with its signature field
// excluded. The input map is not mutated; signatures cover the canonical
// form of everything except the signature itself.
func UnsignedBytes(cert map[string]interface{}) ([]byte, error) {
	unsigned := make(map[string]interface{}, len(cert))
	for k, v := range cert {
		if k == "signature" {
			continue
		}
		unsigned[k] = v
	}
	return JCS(unsigned)
}
