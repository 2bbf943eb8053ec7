// Package canonical produces the deterministic JSON serialization that every
// fingerprint, Merkle leaf and snapshot hash in the ledger is computed over.
//
// Object keys are emitted in lexicographic order at every depth, numbers keep
// their original textual form and no HTML escaping is applied, so two values
// with equal content always serialize to identical bytes.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Marshal returns the canonical JSON encoding of v.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal value")
	}

	return Canonicalize(raw)
}

// Canonicalize rewrites an arbitrary JSON document into canonical form.
func Canonicalize(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, errors.Wrap(err, "failed to decode json")
	}
	if dec.More() {
		return nil, errors.New("trailing data after json value")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, errors.Wrap(err, "failed to encode canonical json")
	}

	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// SHA256Hex returns the lowercase hex SHA-256 of b.
func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Fingerprint is SHA256Hex over the canonical encoding of v.
func Fingerprint(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}

	return SHA256Hex(b), nil
}

// NormalizeHash trims whitespace, lowercases and strips an optional 0x or
// sha256: prefix. Every lookup keyed by a transaction or content hash goes
// through this function.
func NormalizeHash(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimPrefix(h, "0x")
	h = strings.TrimPrefix(h, "sha256:")

	return h
}
