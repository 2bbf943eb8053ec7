package sign

import (
	"encoding/json"
	"time"
)

// Signature error codes reported in verification results.
const (
	CodeSignatureInvalid = "SIGNATURE_INVALID"
	CodeKeyNotFound      = "KEY_NOT_FOUND"
	CodeKeyRevoked       = "KEY_REVOKED"
	CodeKeyLookupFailed  = "KEY_LOOKUP_FAILED"
)

// ExportHashField is the field of an export document holding its declared hash.
const ExportHashField = "export_hash"

// VerifyRequest carries an exported document and its optional detached signature.
type VerifyRequest struct {
	ExportJSON json.RawMessage
	Signature  string
	KeyID      string
}

type ContentResult struct {
	Valid        bool   `json:"valid"`
	ExportHash   string `json:"export_hash"`
	ComputedHash string `json:"computed_hash"`
}

type SignatureResult struct {
	Valid            bool   `json:"valid"`
	KeyID            string `json:"key_id"`
	Error            string `json:"error,omitempty"`
	RevocationReason string `json:"revocation_reason,omitempty"`
	KeyStatus        string `json:"key_status,omitempty"`
}

// VerifyResult is the outcome of a completed check. Integrity failures are
// reported here, never as errors.
type VerifyResult struct {
	OK        bool             `json:"ok"`
	Content   ContentResult    `json:"content"`
	Signature *SignatureResult `json:"signature,omitempty"`
	Errors    []string         `json:"errors"`
}

// Signature is a detached ed25519 signature over a hex digest.
type Signature struct {
	Value    string    `json:"signature"`
	KeyID    string    `json:"key_id"`
	SignedAt time.Time `json:"signed_at"`
}

// SignedExport is an export document with its hash filled in and signed.
type SignedExport struct {
	ExportJSON json.RawMessage `json:"export_json"`
	ExportHash string          `json:"export_hash"`
	Signature  string          `json:"signature"`
	KeyID      string          `json:"key_id"`
	SignedAt   time.Time       `json:"signed_at"`
}
