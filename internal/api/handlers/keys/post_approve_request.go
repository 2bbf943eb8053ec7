package keys

import (
	"net/http"

	"github.com/kashguard/go-evidence/internal/api"
	"github.com/kashguard/go-evidence/internal/util"
	"github.com/labstack/echo/v4"
)

func PostApproveRequestRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Keys.POST("/requests/:id/approve", postApproveRequestHandler(s))
}

func postApproveRequestHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		approver, err := principal(c)
		if err != nil {
			return err
		}

		r, err := s.KeyService.Approve(ctx, c.Param("id"), approver)
		if err != nil {
			log.Debug().Err(err).Str("request_id", c.Param("id")).Msg("Failed to approve lifecycle request")
			return lifecycleError(err)
		}

		return util.ValidateAndReturn(c, http.StatusOK, toRequestResponse(r))
	}
}
