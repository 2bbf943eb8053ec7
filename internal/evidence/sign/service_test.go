package sign_test

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/kashguard/go-evidence/internal/evidence/key"
	"github.com/kashguard/go-evidence/internal/evidence/sign"
	"github.com/kashguard/go-evidence/internal/test"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockResolver struct {
	active string
	keys   map[string]*key.SigningKey
	err    error
}

func (m *mockResolver) ActiveKey(_ context.Context) (*key.SigningKey, error) {
	if m.active == "" {
		return nil, key.ErrNoActiveKey
	}
	return m.keys[m.active], nil
}

func (m *mockResolver) GetKey(_ context.Context, keyID string) (*key.SigningKey, error) {
	if m.err != nil {
		return nil, m.err
	}
	k, ok := m.keys[keyID]
	if !ok {
		return nil, errors.Wrapf(key.ErrKeyNotFound, "%s", keyID)
	}
	return k, nil
}

func newKey(t *testing.T, id string) *key.SigningKey {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return &key.SigningKey{KeyID: id, Status: key.StatusActive, Algorithm: key.AlgorithmEd25519, PublicKey: pub, PrivateKey: priv}
}

func setup(t *testing.T) (*mockResolver, sign.Service) {
	t.Helper()
	r := &mockResolver{active: "k1", keys: map[string]*key.SigningKey{"k1": newKey(t, "k1")}}
	s, err := sign.NewService(r, test.NewClock(t))
	require.NoError(t, err)
	return r, s
}

func signedExport(t *testing.T, s sign.Service) *sign.SignedExport {
	t.Helper()
	out, err := s.SignExport(context.Background(), json.RawMessage(`{"aircraft":"N123","work_orders":[1,2,3]}`))
	require.NoError(t, err)
	return out
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	_, s := setup(t)
	exp := signedExport(t, s)
	assert.Equal(t, "k1", exp.KeyID)
	assert.Len(t, exp.ExportHash, 64)

	res, err := s.Verify(context.Background(), &sign.VerifyRequest{ExportJSON: exp.ExportJSON, Signature: exp.Signature, KeyID: exp.KeyID})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.True(t, res.Content.Valid)
	assert.Equal(t, exp.ExportHash, res.Content.ComputedHash)
	require.NotNil(t, res.Signature)
	assert.True(t, res.Signature.Valid)
	assert.Empty(t, res.Errors)
}

func TestVerifyWithoutSignature(t *testing.T) {
	_, s := setup(t)
	exp := signedExport(t, s)

	res, err := s.Verify(context.Background(), &sign.VerifyRequest{ExportJSON: exp.ExportJSON})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Nil(t, res.Signature)
}

func TestVerifyTamperedHash(t *testing.T) {
	_, s := setup(t)
	exp := signedExport(t, s)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(exp.ExportJSON, &doc))
	doc["export_hash"] = "tampered_hash"
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	res, err := s.Verify(context.Background(), &sign.VerifyRequest{ExportJSON: raw})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.False(t, res.Content.Valid)
	assert.Equal(t, "tampered_hash", res.Content.ExportHash)
	assert.Equal(t, exp.ExportHash, res.Content.ComputedHash)
}

func TestVerifyTamperedContent(t *testing.T) {
	_, s := setup(t)
	exp := signedExport(t, s)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(exp.ExportJSON, &doc))
	doc["aircraft"] = "N999"
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	res, err := s.Verify(context.Background(), &sign.VerifyRequest{ExportJSON: raw, Signature: exp.Signature, KeyID: exp.KeyID})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.False(t, res.Content.Valid)
	// the signature still attests the declared hash
	assert.True(t, res.Signature.Valid)
}

func TestVerifySignatureFailures(t *testing.T) {
	r, s := setup(t)
	exp := signedExport(t, s)
	other := newKey(t, "k2")
	r.keys["k2"] = other

	tests := []struct {
		name string
		sig  string
		kid  string
		code string
	}{
		{"wrong key", exp.Signature, "k2", sign.CodeSignatureInvalid},
		{"bad base64", "!!!", "k1", sign.CodeSignatureInvalid},
		{"bit flip", flip(t, exp.Signature), "k1", sign.CodeSignatureInvalid},
		{"unknown key", exp.Signature, "nope", sign.CodeKeyNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.Verify(context.Background(), &sign.VerifyRequest{ExportJSON: exp.ExportJSON, Signature: tt.sig, KeyID: tt.kid})
			require.NoError(t, err)
			assert.False(t, res.OK)
			assert.True(t, res.Content.Valid)
			assert.False(t, res.Signature.Valid)
			assert.Equal(t, tt.code, res.Signature.Error)
		})
	}
}

func flip(t *testing.T, sig string) string {
	t.Helper()
	b, err := base64.StdEncoding.DecodeString(sig)
	require.NoError(t, err)
	b[0] ^= 0x01
	return base64.StdEncoding.EncodeToString(b)
}

func TestVerifyRevokedKey(t *testing.T) {
	r, s := setup(t)
	exp := signedExport(t, s)

	revokedAt := test.ReferenceTime
	r.keys["k1"].Status = key.StatusRevoked
	r.keys["k1"].RevokedAt = &revokedAt
	r.keys["k1"].RevocationReason = "compromised"

	res, err := s.Verify(context.Background(), &sign.VerifyRequest{ExportJSON: exp.ExportJSON, Signature: exp.Signature, KeyID: "k1"})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, sign.CodeKeyRevoked, res.Signature.Error)
	assert.Equal(t, "compromised", res.Signature.RevocationReason)
	assert.Equal(t, string(key.StatusRevoked), res.Signature.KeyStatus)

	// a forged signature on a revoked key is reported as invalid, not revoked
	res, err = s.Verify(context.Background(), &sign.VerifyRequest{ExportJSON: exp.ExportJSON, Signature: flip(t, exp.Signature), KeyID: "k1"})
	require.NoError(t, err)
	assert.Equal(t, sign.CodeSignatureInvalid, res.Signature.Error)
}

func TestVerifyDigestRevokedRegardlessOfSigningTime(t *testing.T) {
	r, s := setup(t)
	sig, err := s.SignDigest(context.Background(), "abc")
	require.NoError(t, err)

	revokedAt := sig.SignedAt.Add(time.Hour)
	r.keys["k1"].Status = key.StatusRevoked
	r.keys["k1"].RevokedAt = &revokedAt
	r.keys["k1"].RevocationReason = "compromised"

	res := s.VerifyDigest(context.Background(), "k1", "abc", sig.Value)
	assert.False(t, res.Valid)
	assert.Equal(t, sign.CodeKeyRevoked, res.Error)
	assert.Equal(t, "compromised", res.RevocationReason)
}

func TestSignBoundCoversKeyAndTime(t *testing.T) {
	_, s := setup(t)
	sig, err := s.SignBound(context.Background(), "abc")
	require.NoError(t, err)

	bound := sign.BoundDigest("abc", sig.KeyID, sig.SignedAt)
	assert.True(t, s.VerifyDigest(context.Background(), "k1", bound, sig.Value).Valid)

	// the raw digest alone does not verify
	assert.Equal(t, sign.CodeSignatureInvalid, s.VerifyDigest(context.Background(), "k1", "abc", sig.Value).Error)

	backdated := sign.BoundDigest("abc", sig.KeyID, sig.SignedAt.Add(-24*time.Hour))
	assert.Equal(t, sign.CodeSignatureInvalid, s.VerifyDigest(context.Background(), "k1", backdated, sig.Value).Error)
}

func TestVerifyLookupFailure(t *testing.T) {
	r, s := setup(t)
	exp := signedExport(t, s)
	r.err = errors.New("storage unavailable")

	res, err := s.Verify(context.Background(), &sign.VerifyRequest{ExportJSON: exp.ExportJSON, Signature: exp.Signature, KeyID: "k1"})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, sign.CodeKeyLookupFailed, res.Signature.Error)
}

func TestVerifyMalformedInput(t *testing.T) {
	_, s := setup(t)

	_, err := s.Verify(context.Background(), &sign.VerifyRequest{ExportJSON: json.RawMessage(`[1,2]`)})
	assert.ErrorIs(t, err, sign.ErrMalformedExport)

	_, err = s.Verify(context.Background(), &sign.VerifyRequest{ExportJSON: json.RawMessage(`{"a":1}`), Signature: "abc"})
	assert.ErrorIs(t, err, sign.ErrMissingKeyID)
}

func TestSignRequiresActiveKey(t *testing.T) {
	r, s := setup(t)
	r.active = ""

	_, err := s.SignExport(context.Background(), json.RawMessage(`{"a":1}`))
	assert.ErrorIs(t, err, key.ErrNoActiveKey)
}
