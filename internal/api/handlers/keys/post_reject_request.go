package keys

import (
	"net/http"

	"github.com/go-openapi/swag"
	"github.com/kashguard/go-evidence/internal/api"
	"github.com/kashguard/go-evidence/internal/types"
	"github.com/kashguard/go-evidence/internal/util"
	"github.com/labstack/echo/v4"
)

func PostRejectRequestRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Keys.POST("/requests/:id/reject", postRejectRequestHandler(s))
}

func postRejectRequestHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		approver, err := principal(c)
		if err != nil {
			return err
		}

		var body types.PostRejectLifecycleRequestPayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}

		r, err := s.KeyService.Reject(ctx, c.Param("id"), approver, swag.StringValue(body.Reason))
		if err != nil {
			log.Debug().Err(err).Str("request_id", c.Param("id")).Msg("Failed to reject lifecycle request")
			return lifecycleError(err)
		}

		return util.ValidateAndReturn(c, http.StatusOK, toRequestResponse(r))
	}
}
