package keys_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/kashguard/go-evidence/internal/api"
	"github.com/kashguard/go-evidence/internal/api/httperrors"
	"github.com/kashguard/go-evidence/internal/test"
	"github.com/kashguard/go-evidence/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bootstrap(t *testing.T, s *api.Server) string {
	t.Helper()
	k, err := s.KeyService.Bootstrap(context.Background(), "admin")
	require.NoError(t, err)
	return k.KeyID
}

func createRequest(t *testing.T, s *api.Server, principal string, payload test.GenericPayload) *types.LifecycleRequestResponse {
	t.Helper()
	res := test.PerformRequest(t, s, http.MethodPost, "/api/v1/keys/requests", payload, test.HeadersWithPrincipal(principal))
	require.Equal(t, http.StatusCreated, res.Result().StatusCode, res.Body.String())

	var response types.LifecycleRequestResponse
	test.ParseResponseAndValidate(t, res, &response)
	return &response
}

func transition(t *testing.T, s *api.Server, id string, verb string, principal string) *http.Response {
	t.Helper()
	res := test.PerformRequest(t, s, http.MethodPost, "/api/v1/keys/requests/"+id+"/"+verb, nil, test.HeadersWithPrincipal(principal))
	return res.Result()
}

func TestRotationFlow(t *testing.T) {
	test.WithTestServer(t, func(s *api.Server, _ *test.MemoryStore) {
		first := bootstrap(t, s)

		r := createRequest(t, s, "alice", test.GenericPayload{"action": "ROTATE"})
		assert.Equal(t, "PENDING", *r.Status)
		assert.Equal(t, "alice", r.InitiatorID)

		assert.Equal(t, http.StatusForbidden, transition(t, s, *r.ID, "approve", "alice").StatusCode)
		assert.Equal(t, http.StatusOK, transition(t, s, *r.ID, "approve", "bob").StatusCode)

		res := test.PerformRequest(t, s, http.MethodPost, "/api/v1/keys/requests/"+*r.ID+"/execute", nil, test.HeadersWithPrincipal("carol"))
		require.Equal(t, http.StatusOK, res.Result().StatusCode, res.Body.String())
		var executed types.LifecycleRequestResponse
		test.ParseResponseAndValidate(t, res, &executed)
		assert.Equal(t, "EXECUTED", *executed.Status)
		assert.NotEmpty(t, executed.ResultKeyID)

		res = test.PerformRequest(t, s, http.MethodGet, "/api/v1/keys", nil, nil)
		require.Equal(t, http.StatusOK, res.Result().StatusCode)
		var keys types.ListKeysResponse
		test.ParseResponseAndValidate(t, res, &keys)
		require.Equal(t, int64(2), keys.Total)

		statuses := map[string]string{}
		for _, k := range keys.Keys {
			statuses[*k.KeyID] = *k.Status
		}
		assert.Equal(t, "archived", statuses[first])
		assert.Equal(t, "active", statuses[executed.ResultKeyID])

		// executing twice is a state conflict
		assert.Equal(t, http.StatusConflict, transition(t, s, *r.ID, "execute", "carol").StatusCode)
	})
}

func TestListRequestsPendingCount(t *testing.T) {
	test.WithTestServer(t, func(s *api.Server, _ *test.MemoryStore) {
		bootstrap(t, s)
		createRequest(t, s, "alice", test.GenericPayload{"action": "ROTATE"})
		rejected := createRequest(t, s, "alice", test.GenericPayload{"action": "ROTATE"})

		res := test.PerformRequest(t, s, http.MethodPost, "/api/v1/keys/requests/"+*rejected.ID+"/reject",
			test.GenericPayload{"reason": "duplicate"}, test.HeadersWithPrincipal("bob"))
		require.Equal(t, http.StatusOK, res.Result().StatusCode, res.Body.String())

		res = test.PerformRequest(t, s, http.MethodGet, "/api/v1/keys/requests", nil, nil)
		require.Equal(t, http.StatusOK, res.Result().StatusCode)
		var list types.ListLifecycleRequestsResponse
		test.ParseResponseAndValidate(t, res, &list)
		assert.Equal(t, int64(1), *list.PendingCount)
		assert.Len(t, list.Requests, 2)

		res = test.PerformRequestWithParams(t, s, http.MethodGet, "/api/v1/keys/requests", nil, nil, map[string]string{"status": "rejected"})
		require.Equal(t, http.StatusOK, res.Result().StatusCode)
		list = types.ListLifecycleRequestsResponse{}
		test.ParseResponseAndValidate(t, res, &list)
		require.Len(t, list.Requests, 1)
		assert.Equal(t, "duplicate", list.Requests[0].RejectionReason)
	})
}

func TestCreateRequestValidation(t *testing.T) {
	test.WithTestServer(t, func(s *api.Server, _ *test.MemoryStore) {
		active := bootstrap(t, s)

		res := test.PerformRequest(t, s, http.MethodPost, "/api/v1/keys/requests", test.GenericPayload{"action": "ROTATE"}, nil)
		test.RequireHTTPError(t, res, httperrors.ErrBadRequestMissingPrincipal)

		tests := []struct {
			name    string
			payload test.GenericPayload
			code    int
		}{
			{"unknown action", test.GenericPayload{"action": "DESTROY"}, http.StatusBadRequest},
			{"revoke without target", test.GenericPayload{"action": "REVOKE", "reason": "x"}, http.StatusBadRequest},
			{"revoke without reason", test.GenericPayload{"action": "REVOKE", "target_key_id": active}, http.StatusBadRequest},
			{"revoke active key", test.GenericPayload{"action": "REVOKE", "target_key_id": active, "reason": "x"}, http.StatusConflict},
			{"revoke unknown key", test.GenericPayload{"action": "REVOKE", "target_key_id": "nope", "reason": "x"}, http.StatusNotFound},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				res := test.PerformRequest(t, s, http.MethodPost, "/api/v1/keys/requests", tt.payload, test.HeadersWithPrincipal("alice"))
				assert.Equal(t, tt.code, res.Result().StatusCode, res.Body.String())
			})
		}
	})
}

func TestUnknownRequest(t *testing.T) {
	test.WithTestServer(t, func(s *api.Server, _ *test.MemoryStore) {
		assert.Equal(t, http.StatusNotFound, transition(t, s, "missing", "approve", "bob").StatusCode)
	})
}
