package canonical_test

import (
	"testing"

	"github.com/kashguard/go-evidence/internal/evidence/canonical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalSortsKeysAtEveryDepth(t *testing.T) {
	a := map[string]any{"b": 1, "a": map[string]any{"z": true, "y": "<x>"}}
	b := map[string]any{"a": map[string]any{"y": "<x>", "z": true}, "b": 1}

	ca, err := canonical.Marshal(a)
	require.NoError(t, err)
	cb, err := canonical.Marshal(b)
	require.NoError(t, err)

	assert.Equal(t, `{"a":{"y":"<x>","z":true},"b":1}`, string(ca))
	assert.Equal(t, ca, cb)
}

func TestCanonicalizeKeepsNumberText(t *testing.T) {
	out, err := canonical.Canonicalize([]byte(`{"n": 1.50, "big": 12345678901234567890}`))
	require.NoError(t, err)
	assert.Equal(t, `{"big":12345678901234567890,"n":1.50}`, string(out))
}

func TestCanonicalizeRejectsTrailingData(t *testing.T) {
	_, err := canonical.Canonicalize([]byte(`{"a":1} {"b":2}`))
	require.Error(t, err)
}

func TestFingerprintIsStable(t *testing.T) {
	type doc struct {
		B string `json:"b"`
		A int    `json:"a"`
	}

	f1, err := canonical.Fingerprint(doc{B: "x", A: 1})
	require.NoError(t, err)
	f2, err := canonical.Fingerprint(map[string]any{"a": 1, "b": "x"})
	require.NoError(t, err)

	assert.Equal(t, f1, f2)
	assert.Len(t, f1, 64)
}

func TestNormalizeHash(t *testing.T) {
	for _, in := range []string{"0xABCDEF", " abcdef ", "0XAbCdEf", "sha256:ABCDEF"} {
		assert.Equal(t, "abcdef", canonical.NormalizeHash(in), in)
	}
}
