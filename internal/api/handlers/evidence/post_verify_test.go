package evidence_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/kashguard/go-evidence/internal/api"
	"github.com/kashguard/go-evidence/internal/api/httperrors"
	"github.com/kashguard/go-evidence/internal/config"
	"github.com/kashguard/go-evidence/internal/evidence/key"
	"github.com/kashguard/go-evidence/internal/evidence/sign"
	"github.com/kashguard/go-evidence/internal/test"
	"github.com/kashguard/go-evidence/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signExport(t *testing.T, s *api.Server) *sign.SignedExport {
	t.Helper()
	ctx := context.Background()

	if _, err := s.KeyService.ActiveKey(ctx); err != nil {
		_, err = s.KeyService.Bootstrap(ctx, "admin")
		require.NoError(t, err)
	}

	exp, err := s.SignService.SignExport(ctx, json.RawMessage(`{"aircraft":"D-ABCD","cards":[{"id":1,"result":"pass"}]}`))
	require.NoError(t, err)
	return exp
}

func verify(t *testing.T, s *api.Server, payload test.GenericPayload) *types.PostVerifyResponse {
	t.Helper()
	res := test.PerformRequest(t, s, http.MethodPost, "/api/v1/evidence/verify", payload, nil)
	require.Equal(t, http.StatusOK, res.Result().StatusCode, res.Body.String())

	var response types.PostVerifyResponse
	test.ParseResponseAndValidate(t, res, &response)
	return &response
}

func TestPostVerifySigned(t *testing.T) {
	test.WithTestServer(t, func(s *api.Server, _ *test.MemoryStore) {
		exp := signExport(t, s)

		response := verify(t, s, test.GenericPayload{
			"export_json": exp.ExportJSON,
			"signature":   exp.Signature,
			"key_id":      exp.KeyID,
		})
		assert.True(t, *response.OK)
		assert.True(t, *response.Content.Valid)
		require.NotNil(t, response.Signature)
		assert.True(t, *response.Signature.Valid)
		assert.Equal(t, exp.KeyID, response.Signature.KeyID)
		assert.Empty(t, response.Errors)
	})
}

func TestPostVerifyUnsigned(t *testing.T) {
	test.WithTestServer(t, func(s *api.Server, _ *test.MemoryStore) {
		exp := signExport(t, s)

		response := verify(t, s, test.GenericPayload{"export_json": exp.ExportJSON})
		assert.True(t, *response.OK)
		assert.Nil(t, response.Signature)
	})
}

func TestPostVerifyTamperedHash(t *testing.T) {
	test.WithTestServer(t, func(s *api.Server, _ *test.MemoryStore) {
		exp := signExport(t, s)

		var doc map[string]any
		require.NoError(t, json.Unmarshal(exp.ExportJSON, &doc))
		doc["export_hash"] = "tampered_hash"

		response := verify(t, s, test.GenericPayload{"export_json": doc})
		assert.False(t, *response.OK)
		assert.False(t, *response.Content.Valid)
		assert.Equal(t, "tampered_hash", response.Content.ExportHash)
		assert.Equal(t, exp.ExportHash, response.Content.ComputedHash)
	})
}

func TestPostVerifyRevokedKey(t *testing.T) {
	test.WithTestServer(t, func(s *api.Server, _ *test.MemoryStore) {
		ctx := context.Background()
		exp := signExport(t, s)

		rotate, err := s.KeyService.CreateRequest(ctx, &key.CreateRequest{Action: key.ActionRotate, InitiatorID: "alice"})
		require.NoError(t, err)
		_, err = s.KeyService.Approve(ctx, rotate.ID, "bob")
		require.NoError(t, err)
		_, err = s.KeyService.Execute(ctx, rotate.ID, "bob")
		require.NoError(t, err)

		revoke, err := s.KeyService.CreateRequest(ctx, &key.CreateRequest{Action: key.ActionRevoke, TargetKeyID: exp.KeyID, Reason: "compromised", InitiatorID: "alice"})
		require.NoError(t, err)
		_, err = s.KeyService.Approve(ctx, revoke.ID, "bob")
		require.NoError(t, err)
		_, err = s.KeyService.Execute(ctx, revoke.ID, "bob")
		require.NoError(t, err)

		response := verify(t, s, test.GenericPayload{
			"export_json": exp.ExportJSON,
			"signature":   exp.Signature,
			"key_id":      exp.KeyID,
		})
		assert.False(t, *response.OK)
		assert.True(t, *response.Content.Valid)
		assert.False(t, *response.Signature.Valid)
		assert.Equal(t, sign.CodeKeyRevoked, response.Signature.Error)
		assert.Equal(t, "compromised", response.Signature.RevocationReason)
		assert.Equal(t, "revoked", response.Signature.KeyStatus)
	})
}

func TestPostVerifyMalformed(t *testing.T) {
	test.WithTestServer(t, func(s *api.Server, _ *test.MemoryStore) {
		tests := []struct {
			name    string
			payload test.GenericPayload
		}{
			{"missing export", test.GenericPayload{}},
			{"array export", test.GenericPayload{"export_json": []int{1, 2}}},
			{"signature without key", test.GenericPayload{"export_json": map[string]any{"a": 1}, "signature": "abc"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				res := test.PerformRequest(t, s, http.MethodPost, "/api/v1/evidence/verify", tt.payload, nil)
				assert.Equal(t, http.StatusBadRequest, res.Result().StatusCode)
			})
		}
	})
}

func TestPostVerifyRateLimited(t *testing.T) {
	cfg := config.DefaultServiceConfigFromEnv()
	cfg.Echo.VerifyRateLimit = 1
	cfg.Echo.VerifyRateBurst = 1

	test.WithTestServerConfigurable(t, cfg, func(s *api.Server, _ *test.MemoryStore) {
		payload := test.GenericPayload{"export_json": map[string]any{"a": 1}}

		res := test.PerformRequest(t, s, http.MethodPost, "/api/v1/evidence/verify", payload, nil)
		require.Equal(t, http.StatusOK, res.Result().StatusCode)

		res = test.PerformRequest(t, s, http.MethodPost, "/api/v1/evidence/verify", payload, nil)
		test.RequireHTTPError(t, res, httperrors.ErrTooManyRequests)
	})
}
