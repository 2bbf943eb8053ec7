package keys

import (
	"net/http"

	"github.com/kashguard/go-evidence/internal/api"
	"github.com/kashguard/go-evidence/internal/api/httperrors"
	"github.com/kashguard/go-evidence/internal/types"
	"github.com/kashguard/go-evidence/internal/util"
	"github.com/labstack/echo/v4"
)

func GetListKeysRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Keys.GET("", getListKeysHandler(s))
}

func getListKeysHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		keys, err := s.KeyService.ListKeys(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list keys")
			return httperrors.NewHTTPError(http.StatusInternalServerError, types.PublicHTTPErrorTypeGeneric, "Failed to list keys")
		}

		response := &types.ListKeysResponse{
			Keys:  make([]*types.GetKeyResponse, 0, len(keys)),
			Total: int64(len(keys)),
		}
		for _, k := range keys {
			response.Keys = append(response.Keys, toKeyResponse(k))
		}

		return util.ValidateAndReturn(c, http.StatusOK, response)
	}
}
