package httperrors

import (
	"net/http"

	"github.com/kashguard/go-evidence/internal/types"
)

var (
	ErrBadRequestMalformedBody    = NewHTTPError(http.StatusBadRequest, types.PublicHTTPErrorTypeGeneric, "Malformed request body")
	ErrBadRequestMissingPrincipal = NewHTTPError(http.StatusBadRequest, types.PublicHTTPErrorTypeGeneric, "X-Principal-ID header is required")
	ErrTooManyRequests            = NewHTTPError(http.StatusTooManyRequests, types.PublicHTTPErrorTypeRateLimited, "Too many verification requests")
	ErrServiceUnavailable         = NewHTTPError(http.StatusServiceUnavailable, types.PublicHTTPErrorTypeGeneric, "Storage is not ready")
)
