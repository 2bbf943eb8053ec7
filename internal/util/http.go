package util

import (
	"net/http"

	"github.com/go-openapi/strfmt"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// Validatable is implemented by request and response payloads.
type Validatable interface {
	Validate(formats strfmt.Registry) error
}

// BindAndValidateBody binds the JSON body into v and runs its Validate method.
// Binding failures and validation failures both surface as 400.
func BindAndValidateBody(c echo.Context, v Validatable) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Malformed request body").SetInternal(err)
	}

	if err := v.Validate(strfmt.Default); err != nil {
		return err
	}

	return nil
}

// ValidateAndReturn validates a response payload before writing it.
func ValidateAndReturn(c echo.Context, code int, v Validatable) error {
	if err := v.Validate(strfmt.Default); err != nil {
		return errors.Wrap(err, "invalid response payload")
	}

	return c.JSON(code, v)
}
