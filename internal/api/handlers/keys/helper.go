package keys

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/swag"
	"github.com/kashguard/go-evidence/internal/api/httperrors"
	"github.com/kashguard/go-evidence/internal/evidence/key"
	"github.com/kashguard/go-evidence/internal/evidence/policy"
	"github.com/kashguard/go-evidence/internal/types"
	"github.com/labstack/echo/v4"
)

// HeaderPrincipalID names the acting principal of lifecycle operations.
const HeaderPrincipalID = "X-Principal-ID"

func principal(c echo.Context) (string, error) {
	p := strings.TrimSpace(c.Request().Header.Get(HeaderPrincipalID))
	if p == "" {
		return "", httperrors.ErrBadRequestMissingPrincipal
	}
	return p, nil
}

// lifecycleError maps key service errors onto HTTP errors.
func lifecycleError(err error) error {
	switch {
	case errors.Is(err, key.ErrRequestNotFound), errors.Is(err, key.ErrKeyNotFound):
		return httperrors.NewHTTPErrorWithDetail(http.StatusNotFound, types.PublicHTTPErrorTypeNotFound, "Not found", err.Error())
	case errors.Is(err, policy.ErrPolicyDenied), errors.Is(err, key.ErrSelfApproval):
		return httperrors.NewHTTPErrorWithDetail(http.StatusForbidden, types.PublicHTTPErrorTypeForbidden, "Operation not permitted", err.Error())
	case errors.Is(err, key.ErrInvalidRequestState), errors.Is(err, key.ErrRequestExpired),
		errors.Is(err, key.ErrRevokeActiveKey), errors.Is(err, key.ErrKeyAlreadyRevoked),
		errors.Is(err, key.ErrRevocationIrreversible), errors.Is(err, key.ErrNoActiveKey):
		return httperrors.NewHTTPErrorWithDetail(http.StatusConflict, types.PublicHTTPErrorTypeConflict, "Conflicting lifecycle state", err.Error())
	case errors.Is(err, key.ErrInvalidAction), errors.Is(err, key.ErrMissingTarget),
		errors.Is(err, key.ErrMissingReason), errors.Is(err, key.ErrMissingPrincipal):
		return httperrors.NewHTTPErrorWithDetail(http.StatusBadRequest, types.PublicHTTPErrorTypeValidation, "Invalid lifecycle request", err.Error())
	default:
		return httperrors.NewHTTPError(http.StatusInternalServerError, types.PublicHTTPErrorTypeGeneric, "Key lifecycle operation failed")
	}
}

func optionalTime(t *time.Time) *strfmt.DateTime {
	if t == nil {
		return nil
	}
	dt := strfmt.DateTime(*t)
	return &dt
}

func toKeyResponse(k *key.SigningKey) *types.GetKeyResponse {
	r := &types.GetKeyResponse{
		KeyID:            swag.String(k.KeyID),
		Status:           swag.String(string(k.Status)),
		Algorithm:        k.Algorithm,
		PublicKey:        strfmt.Base64(k.PublicKey),
		CreatedAt:        strfmt.DateTime(k.CreatedAt),
		RevocationReason: k.RevocationReason,
	}
	r.ArchivedAt = optionalTime(k.ArchivedAt)
	r.RevokedAt = optionalTime(k.RevokedAt)
	return r
}

func toRequestResponse(r *key.LifecycleRequest) *types.LifecycleRequestResponse {
	return &types.LifecycleRequestResponse{
		ID:              swag.String(r.ID),
		Action:          swag.String(string(r.Action)),
		Status:          swag.String(string(r.Status)),
		TargetKeyID:     r.TargetKeyID,
		Reason:          r.Reason,
		InitiatorID:     r.InitiatorID,
		ApproverID:      r.ApproverID,
		ExecutorID:      r.ExecutorID,
		RejectionReason: r.RejectionReason,
		ResultKeyID:     r.ResultKeyID,
		CreatedAt:       strfmt.DateTime(r.CreatedAt),
		ExpiresAt:       strfmt.DateTime(r.ExpiresAt),
		ApprovedAt:      optionalTime(r.ApprovedAt),
		ExecuteBy:       optionalTime(r.ExecuteBy),
		RejectedAt:      optionalTime(r.RejectedAt),
		ExpiredAt:       optionalTime(r.ExpiredAt),
		ExecutedAt:      optionalTime(r.ExecutedAt),
	}
}
