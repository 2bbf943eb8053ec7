package common_test

import (
	"net/http"
	"testing"

	"github.com/kashguard/go-evidence/internal/api"
	"github.com/kashguard/go-evidence/internal/api/httperrors"
	"github.com/kashguard/go-evidence/internal/test"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetReady(t *testing.T) {
	test.WithTestServer(t, func(s *api.Server, store *test.MemoryStore) {
		res := test.PerformRequest(t, s, http.MethodGet, "/-/ready", nil, nil)
		require.Equal(t, http.StatusOK, res.Result().StatusCode)
		assert.Equal(t, "Ready.", res.Body.String())

		store.FailOn("_health*", errors.New("disk full"))
		res = test.PerformRequest(t, s, http.MethodGet, "/-/ready", nil, nil)
		test.RequireHTTPError(t, res, httperrors.ErrServiceUnavailable)
	})
}

func TestGetMetrics(t *testing.T) {
	test.WithTestServer(t, func(s *api.Server, _ *test.MemoryStore) {
		res := test.PerformRequest(t, s, http.MethodGet, "/-/metrics", nil, nil)
		require.Equal(t, http.StatusOK, res.Result().StatusCode)
		assert.Contains(t, res.Body.String(), "go_goroutines")
	})
}
