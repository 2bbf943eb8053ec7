package types

import (
	"strings"

	"github.com/go-openapi/strfmt"
)

// Public error types rendered in HTTPError.Type.
const (
	PublicHTTPErrorTypeGeneric     = "generic"
	PublicHTTPErrorTypeValidation  = "validation"
	PublicHTTPErrorTypeRateLimited = "rate_limited"
	PublicHTTPErrorTypeForbidden   = "forbidden"
	PublicHTTPErrorTypeConflict    = "conflict"
	PublicHTTPErrorTypeNotFound    = "not_found"
)

// HTTPError is the body of every non-2xx response.
type HTTPError struct {
	Code   *int64  `json:"status"`
	Type   *string `json:"type"`
	Title  *string `json:"title"`
	Detail string  `json:"detail,omitempty"`
}

func (m *HTTPError) Validate(_ strfmt.Registry) error {
	return nil
}

type HTTPValidationErrorDetail struct {
	Key   *string `json:"key"`
	In    *string `json:"in"`
	Error *string `json:"error"`
}

type HTTPValidationError struct {
	HTTPError
	ValidationErrors []*HTTPValidationErrorDetail `json:"validationErrors"`
}

// ValidationErrors is returned by payload Validate methods and rendered as 400.
type ValidationErrors []*HTTPValidationErrorDetail

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, d := range v {
		parts = append(parts, deref(d.Key)+": "+deref(d.Error))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v ValidationErrors) orNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

func bodyError(key string, msg string) *HTTPValidationErrorDetail {
	in := "body"
	return &HTTPValidationErrorDetail{Key: &key, In: &in, Error: &msg}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
