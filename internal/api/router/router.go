package router

import (
	"net/http"

	"github.com/kashguard/go-evidence/internal/api"
	"github.com/kashguard/go-evidence/internal/api/handlers"
	"github.com/kashguard/go-evidence/internal/api/httperrors"
	"github.com/kashguard/go-evidence/internal/api/middleware"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// Init builds the echo instance, attaches middleware and registers all routes.
func Init(s *api.Server) {
	s.Echo = echo.New()

	s.Echo.Debug = s.Config.Echo.Debug
	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.HTTPErrorHandler = httperrors.HTTPErrorHandler

	if s.Config.Echo.EnableRecoverMiddleware {
		s.Echo.Use(echoMiddleware.Recover())
	}
	if s.Config.Echo.EnableRequestIDMiddleware {
		s.Echo.Use(echoMiddleware.RequestID())
	}
	if s.Config.Echo.EnableLoggerMiddleware {
		s.Echo.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{Level: s.Config.Logger.RequestLevel}))
	}

	s.Router = &api.Router{
		Routes:         nil,
		Root:           s.Echo.Group(""),
		Management:     s.Echo.Group("/-"),
		APIV1Evidence:  s.Echo.Group("/api/v1/evidence", verifyRateLimiter(s)),
		APIV1Anchoring: s.Echo.Group("/api/v1/anchoring"),
		APIV1Keys:      s.Echo.Group("/api/v1/keys"),
	}

	handlers.AttachAllRoutes(s)
}

// verifyRateLimiter limits verification calls per client IP.
func verifyRateLimiter(s *api.Server) echo.MiddlewareFunc {
	limit := s.Config.Echo.VerifyRateLimit
	burst := s.Config.Echo.VerifyRateBurst
	if limit <= 0 {
		limit = 5
	}
	if burst <= 0 {
		burst = int(limit) * 2
	}

	return echoMiddleware.RateLimiterWithConfig(echoMiddleware.RateLimiterConfig{
		Store: echoMiddleware.NewRateLimiterMemoryStoreWithConfig(echoMiddleware.RateLimiterMemoryStoreConfig{
			Rate:  rate.Limit(limit),
			Burst: burst,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(_ echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "Failed to identify client").SetInternal(err)
		},
		DenyHandler: func(_ echo.Context, _ string, _ error) error {
			return httperrors.ErrTooManyRequests
		},
	})
}
