package common

import (
	"github.com/kashguard/go-evidence/internal/api"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func GetMetricsRoute(s *api.Server) *echo.Route {
	return s.Router.Management.GET("/metrics", getMetricsHandler(s))
}

func getMetricsHandler(s *api.Server) echo.HandlerFunc {
	h := promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{})

	return func(c echo.Context) error {
		if !s.Config.Management.EnableMetrics {
			return echo.ErrNotFound
		}

		h.ServeHTTP(c.Response(), c.Request())
		return nil
	}
}
