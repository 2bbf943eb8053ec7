package anchoring

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/swag"
	"github.com/kashguard/go-evidence/internal/api"
	"github.com/kashguard/go-evidence/internal/api/httperrors"
	"github.com/kashguard/go-evidence/internal/evidence/anchor"
	"github.com/kashguard/go-evidence/internal/types"
	"github.com/kashguard/go-evidence/internal/util"
	"github.com/labstack/echo/v4"
)

func GetIssuesRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Anchoring.GET("/issues", getIssuesHandler(s))
}

func queryError(key string, msg string) error {
	return httperrors.NewHTTPValidationError(
		http.StatusBadRequest,
		types.PublicHTTPErrorTypeValidation,
		"Invalid query parameter",
		[]*types.HTTPValidationErrorDetail{
			{
				Key:   swag.String(key),
				In:    swag.String("query"),
				Error: swag.String(msg),
			},
		},
	)
}

func getIssuesHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		var opts anchor.DetectOptions
		if v := c.QueryParam("windowDays"); v != "" {
			days, err := strconv.Atoi(v)
			if err != nil || days < 1 || days > anchor.MaxWindowDays {
				return queryError("windowDays", "must be an integer between 1 and 365")
			}
			opts.WindowDays = days
		}
		if v := c.QueryParam("checkGaps"); v != "" {
			check, err := strconv.ParseBool(v)
			if err != nil {
				return queryError("checkGaps", "must be a boolean")
			}
			opts.CheckGaps = swag.Bool(check)
		}

		report, err := s.Detector.Detect(ctx, opts)
		if err != nil {
			if errors.Is(err, anchor.ErrInvalidWindow) {
				return queryError("windowDays", err.Error())
			}
			log.Error().Err(err).Msg("Failed to detect anchoring issues")
			return httperrors.NewHTTPError(http.StatusInternalServerError, types.PublicHTTPErrorTypeGeneric, "Failed to detect anchoring issues")
		}

		counts := make(map[string]int64, len(report.Counts))
		for k, v := range report.Counts {
			counts[k] = int64(v)
		}
		generatedAt := strfmt.DateTime(report.GeneratedAt)

		response := &types.GetAnchoringIssuesResponse{
			WindowDays:     swag.Int64(int64(report.WindowDays)),
			GeneratedAt:    &generatedAt,
			AnchorsScanned: int64(report.Scanned),
			Issues:         report.Issues,
			Counts:         counts,
		}
		if response.Issues == nil {
			response.Issues = []*anchor.Issue{}
		}

		return util.ValidateAndReturn(c, http.StatusOK, response)
	}
}
