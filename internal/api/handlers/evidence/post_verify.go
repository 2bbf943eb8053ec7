package evidence

import (
	"errors"
	"net/http"

	"github.com/go-openapi/swag"
	"github.com/kashguard/go-evidence/internal/api"
	"github.com/kashguard/go-evidence/internal/api/httperrors"
	"github.com/kashguard/go-evidence/internal/evidence/sign"
	"github.com/kashguard/go-evidence/internal/types"
	"github.com/kashguard/go-evidence/internal/util"
	"github.com/labstack/echo/v4"
)

func PostVerifyRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Evidence.POST("/verify", postVerifyHandler(s))
}

// Any completed check answers 200, including ok=false.
func postVerifyHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		var body types.PostVerifyPayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}

		res, err := s.SignService.Verify(ctx, &sign.VerifyRequest{
			ExportJSON: body.ExportJSON,
			Signature:  swag.StringValue(body.Signature),
			KeyID:      swag.StringValue(body.KeyID),
		})
		if err != nil {
			if errors.Is(err, sign.ErrMalformedExport) || errors.Is(err, sign.ErrMissingKeyID) {
				return httperrors.NewHTTPValidationError(
					http.StatusBadRequest,
					types.PublicHTTPErrorTypeValidation,
					"Invalid verification request",
					[]*types.HTTPValidationErrorDetail{
						{
							Key:   swag.String("export_json"),
							In:    swag.String("body"),
							Error: swag.String(err.Error()),
						},
					},
				)
			}
			log.Error().Err(err).Msg("Failed to verify export")
			return httperrors.NewHTTPError(http.StatusInternalServerError, types.PublicHTTPErrorTypeGeneric, "Failed to verify export")
		}

		response := &types.PostVerifyResponse{
			OK: swag.Bool(res.OK),
			Content: &types.VerifyContent{
				Valid:        swag.Bool(res.Content.Valid),
				ExportHash:   res.Content.ExportHash,
				ComputedHash: res.Content.ComputedHash,
			},
			Errors: res.Errors,
		}
		if res.Signature != nil {
			response.Signature = &types.VerifySignature{
				Valid:            swag.Bool(res.Signature.Valid),
				KeyID:            res.Signature.KeyID,
				Error:            res.Signature.Error,
				RevocationReason: res.Signature.RevocationReason,
				KeyStatus:        res.Signature.KeyStatus,
			}
		}

		return util.ValidateAndReturn(c, http.StatusOK, response)
	}
}
