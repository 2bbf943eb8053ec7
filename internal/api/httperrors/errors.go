package httperrors

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-openapi/swag"
	"github.com/kashguard/go-evidence/internal/types"
	"github.com/labstack/echo/v4"
)

type HTTPError struct {
	types.HTTPError
	Internal       error                  `json:"-"`
	AdditionalData map[string]interface{} `json:"-"`
}

type HTTPValidationError struct {
	types.HTTPValidationError
	Internal       error                  `json:"-"`
	AdditionalData map[string]interface{} `json:"-"`
}

func NewHTTPError(code int, errorType string, title string) *HTTPError {
	return &HTTPError{
		HTTPError: types.HTTPError{
			Code:  swag.Int64(int64(code)),
			Type:  swag.String(errorType),
			Title: swag.String(title),
		},
	}
}

func NewHTTPErrorWithDetail(code int, errorType string, title string, detail string) *HTTPError {
	e := NewHTTPError(code, errorType, title)
	e.Detail = detail
	return e
}

func NewFromEcho(e *echo.HTTPError) *HTTPError {
	return NewHTTPError(e.Code, publicTypeForStatus(e.Code), http.StatusText(e.Code))
}

func (e *HTTPError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "HTTPError %d (%s): %s", swag.Int64Value(e.Code), swag.StringValue(e.Type), swag.StringValue(e.Title))
	if len(e.Detail) > 0 {
		fmt.Fprintf(&b, " - %s", e.Detail)
	}
	if e.Internal != nil {
		fmt.Fprintf(&b, ", %v", e.Internal)
	}

	return b.String()
}

func NewHTTPValidationError(code int, errorType string, title string, validationErrors []*types.HTTPValidationErrorDetail) *HTTPValidationError {
	return &HTTPValidationError{
		HTTPValidationError: types.HTTPValidationError{
			HTTPError: types.HTTPError{
				Code:  swag.Int64(int64(code)),
				Type:  swag.String(errorType),
				Title: swag.String(title),
			},
			ValidationErrors: validationErrors,
		},
	}
}

func (e *HTTPValidationError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "HTTPValidationError %d (%s): %s", swag.Int64Value(e.Code), swag.StringValue(e.Type), swag.StringValue(e.Title))
	for _, v := range e.ValidationErrors {
		fmt.Fprintf(&b, " - %s (%s): %s", swag.StringValue(v.Key), swag.StringValue(v.In), swag.StringValue(v.Error))
	}
	if e.Internal != nil {
		fmt.Fprintf(&b, ", %v", e.Internal)
	}

	return b.String()
}

func publicTypeForStatus(code int) string {
	switch code {
	case http.StatusTooManyRequests:
		return types.PublicHTTPErrorTypeRateLimited
	case http.StatusNotFound:
		return types.PublicHTTPErrorTypeNotFound
	case http.StatusForbidden:
		return types.PublicHTTPErrorTypeForbidden
	case http.StatusConflict:
		return types.PublicHTTPErrorTypeConflict
	default:
		return types.PublicHTTPErrorTypeGeneric
	}
}
