package keys

import (
	"net/http"

	"github.com/go-openapi/swag"
	"github.com/kashguard/go-evidence/internal/api"
	"github.com/kashguard/go-evidence/internal/evidence/key"
	"github.com/kashguard/go-evidence/internal/types"
	"github.com/kashguard/go-evidence/internal/util"
	"github.com/labstack/echo/v4"
)

func PostCreateRequestRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Keys.POST("/requests", postCreateRequestHandler(s))
}

func postCreateRequestHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		initiator, err := principal(c)
		if err != nil {
			return err
		}

		var body types.PostCreateLifecycleRequestPayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}

		r, err := s.KeyService.CreateRequest(ctx, &key.CreateRequest{
			Action:      key.Action(swag.StringValue(body.Action)),
			TargetKeyID: swag.StringValue(body.TargetKeyID),
			Reason:      swag.StringValue(body.Reason),
			InitiatorID: initiator,
		})
		if err != nil {
			log.Debug().Err(err).Msg("Failed to create lifecycle request")
			return lifecycleError(err)
		}

		return util.ValidateAndReturn(c, http.StatusCreated, toRequestResponse(r))
	}
}
