package httperrors

import (
	"errors"
	"net/http"

	"github.com/kashguard/go-evidence/internal/types"
	"github.com/kashguard/go-evidence/internal/util"
	"github.com/labstack/echo/v4"
)

// HTTPErrorHandler renders every error returned by a handler as a typed JSON body.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	log := util.LogFromContext(c.Request().Context())

	var (
		code int
		body interface{}
	)

	var (
		httpErr       *HTTPError
		validationErr *HTTPValidationError
		payloadErr    types.ValidationErrors
		echoErr       *echo.HTTPError
	)

	switch {
	case errors.As(err, &validationErr):
		code, body = int(*validationErr.Code), validationErr
	case errors.As(err, &payloadErr):
		v := NewHTTPValidationError(http.StatusBadRequest, types.PublicHTTPErrorTypeValidation, "Bad Request", payloadErr)
		code, body = http.StatusBadRequest, v
	case errors.As(err, &httpErr):
		code, body = int(*httpErr.Code), httpErr
	case errors.As(err, &echoErr):
		e := NewFromEcho(echoErr)
		code, body = echoErr.Code, e
	default:
		log.Error().Err(err).Msg("Unhandled error in handler")
		code, body = http.StatusInternalServerError, NewHTTPError(http.StatusInternalServerError, types.PublicHTTPErrorTypeGeneric, http.StatusText(http.StatusInternalServerError))
	}

	if code >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", code).Msg("Request failed")
	} else {
		log.Debug().Err(err).Int("status", code).Msg("Request rejected")
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, body)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to write error response")
	}
}
