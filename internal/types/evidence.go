package types

import (
	"bytes"
	"encoding/json"

	"github.com/go-openapi/strfmt"
)

// PostVerifyPayload is the body of POST /api/v1/evidence/verify.
type PostVerifyPayload struct {
	// Required: true
	ExportJSON json.RawMessage `json:"export_json"`

	// base64 ed25519 signature over the declared export_hash
	Signature *string `json:"signature,omitempty"`

	KeyID *string `json:"key_id,omitempty"`
}

func (m *PostVerifyPayload) Validate(_ strfmt.Registry) error {
	var res ValidationErrors

	trimmed := bytes.TrimSpace(m.ExportJSON)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		res = append(res, bodyError("export_json", "export_json is required"))
	case trimmed[0] != '{':
		res = append(res, bodyError("export_json", "export_json must be a JSON object"))
	}

	if m.Signature != nil && *m.Signature != "" && (m.KeyID == nil || *m.KeyID == "") {
		res = append(res, bodyError("key_id", "key_id is required when signature is present"))
	}

	return res.orNil()
}

type VerifyContent struct {
	// Required: true
	Valid *bool `json:"valid"`

	ExportHash   string `json:"export_hash"`
	ComputedHash string `json:"computed_hash"`
}

type VerifySignature struct {
	// Required: true
	Valid *bool `json:"valid"`

	KeyID            string `json:"key_id"`
	Error            string `json:"error,omitempty"`
	RevocationReason string `json:"revocation_reason,omitempty"`
	KeyStatus        string `json:"key_status,omitempty"`
}

type PostVerifyResponse struct {
	// Required: true
	OK *bool `json:"ok"`

	// Required: true
	Content *VerifyContent `json:"content"`

	Signature *VerifySignature `json:"signature,omitempty"`

	Errors []string `json:"errors"`
}

func (m *PostVerifyResponse) Validate(_ strfmt.Registry) error {
	var res ValidationErrors
	if m.OK == nil {
		res = append(res, bodyError("ok", "ok is required"))
	}
	if m.Content == nil || m.Content.Valid == nil {
		res = append(res, bodyError("content", "content.valid is required"))
	}
	if m.Signature != nil && m.Signature.Valid == nil {
		res = append(res, bodyError("signature", "signature.valid is required"))
	}
	return res.orNil()
}
