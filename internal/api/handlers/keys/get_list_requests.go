package keys

import (
	"net/http"
	"strings"

	"github.com/go-openapi/swag"
	"github.com/kashguard/go-evidence/internal/api"
	"github.com/kashguard/go-evidence/internal/evidence/key"
	"github.com/kashguard/go-evidence/internal/types"
	"github.com/kashguard/go-evidence/internal/util"
	"github.com/labstack/echo/v4"
)

func GetListRequestsRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Keys.GET("/requests", getListRequestsHandler(s))
}

func getListRequestsHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		filter := &key.RequestFilter{Status: key.RequestStatus(strings.ToUpper(c.QueryParam("status")))}

		list, err := s.KeyService.ListRequests(ctx, filter)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list lifecycle requests")
			return lifecycleError(err)
		}

		response := &types.ListLifecycleRequestsResponse{
			Requests:     make([]*types.LifecycleRequestResponse, 0, len(list.Requests)),
			PendingCount: swag.Int64(int64(list.PendingCount)),
		}
		for _, r := range list.Requests {
			response.Requests = append(response.Requests, toRequestResponse(r))
		}

		return util.ValidateAndReturn(c, http.StatusOK, response)
	}
}
