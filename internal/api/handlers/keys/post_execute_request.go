package keys

import (
	"net/http"

	"github.com/kashguard/go-evidence/internal/api"
	"github.com/kashguard/go-evidence/internal/util"
	"github.com/labstack/echo/v4"
)

func PostExecuteRequestRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Keys.POST("/requests/:id/execute", postExecuteRequestHandler(s))
}

// A failed execution leaves the request APPROVED so it can be retried
// within its execution window.
func postExecuteRequestHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		executor, err := principal(c)
		if err != nil {
			return err
		}

		r, err := s.KeyService.Execute(ctx, c.Param("id"), executor)
		if err != nil {
			log.Warn().Err(err).Str("request_id", c.Param("id")).Msg("Failed to execute lifecycle request")
			return lifecycleError(err)
		}

		return util.ValidateAndReturn(c, http.StatusOK, toRequestResponse(r))
	}
}
