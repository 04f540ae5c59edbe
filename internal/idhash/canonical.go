package idhash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CanonicalJSON serializes v into a deterministic JSON form: object keys
// sorted lexicographically, no insignificant whitespace, numeric literals
// preserved exactly. Two structurally equal values always produce identical
// bytes, so hashes over the output are reproducible by third parties.
func CanonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	// Round-trip through an untyped document. Decoding with UseNumber keeps
	// numeric literals intact, and encoding/json emits map keys in sorted
	// order, which yields the canonical form.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode for canonicalization: %w", err)
	}

	canon, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}
	return canon, nil
}

// HashCanonical returns the hex SHA-256 of the canonical JSON form of v.
func HashCanonical(v interface{}) (string, error) {
	canon, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// HashBytes returns the hex SHA-256 of raw bytes.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
