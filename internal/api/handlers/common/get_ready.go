package common

import (
	"context"
	"net/http"
	"time"

	"github.com/kashguard/go-evidence/internal/api"
	"github.com/kashguard/go-evidence/internal/api/httperrors"
	"github.com/kashguard/go-evidence/internal/evidence/storage"
	"github.com/kashguard/go-evidence/internal/util"
	"github.com/labstack/echo/v4"
)

const readyProbeTimeout = 5 * time.Second

func GetReadyRoute(s *api.Server) *echo.Route {
	return s.Router.Management.GET("/ready", getReadyHandler(s))
}

// Readiness requires an initialized server and a successful storage round-trip.
func getReadyHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.Ready() {
			return httperrors.ErrServiceUnavailable
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), readyProbeTimeout)
		defer cancel()

		if err := storage.Probe(ctx, s.Store); err != nil {
			util.LogFromContext(ctx).Warn().Err(err).Msg("Storage probe failed")
			return httperrors.ErrServiceUnavailable
		}

		return c.String(http.StatusOK, "Ready.")
	}
}
