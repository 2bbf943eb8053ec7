package sign

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/kashguard/go-evidence/internal/evidence/canonical"
	"github.com/kashguard/go-evidence/internal/evidence/key"
	"github.com/kashguard/go-evidence/internal/metrics"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrMalformedExport = errors.New("export_json must be a JSON object")
	ErrMissingKeyID    = errors.New("key_id is required with a signature")
	ErrInvalidKeyType  = errors.New("key is not an ed25519 signing key")
)

// KeyResolver is the part of key.Service used for signing and verification.
type KeyResolver interface {
	ActiveKey(ctx context.Context) (*key.SigningKey, error)
	GetKey(ctx context.Context, keyID string) (*key.SigningKey, error)
}

// Service signs evidence digests and verifies exported documents.
type Service interface {
	SignExport(ctx context.Context, export json.RawMessage) (*SignedExport, error)
	Verify(ctx context.Context, req *VerifyRequest) (*VerifyResult, error)
	SignDigest(ctx context.Context, digest string) (*Signature, error)
	SignBound(ctx context.Context, digest string) (*Signature, error)
	VerifyDigest(ctx context.Context, keyID string, digest string, signature string) *SignatureResult
}

type service struct {
	keys  KeyResolver
	clock time2.Clock
}

//nolint:ireturn
func NewService(keys KeyResolver, clock time2.Clock) (Service, error) {
	if keys == nil {
		return nil, errors.New("key resolver is required")
	}
	return &service{keys: keys, clock: clock}, nil
}

// ExportHash is the SHA-256 of the canonical export without its export_hash field.
func ExportHash(export map[string]json.RawMessage) (string, error) {
	content := make(map[string]json.RawMessage, len(export))
	for k, v := range export {
		if k == ExportHashField {
			continue
		}
		content[k] = v
	}

	return canonical.Fingerprint(content)
}

func decodeExport(raw json.RawMessage) (map[string]json.RawMessage, error) {
	var export map[string]json.RawMessage
	if len(raw) == 0 {
		return nil, ErrMalformedExport
	}
	if err := json.Unmarshal(raw, &export); err != nil || export == nil {
		return nil, ErrMalformedExport
	}
	return export, nil
}

// BoundDigest ties digest to the key and instant of its signature. Changing
// key_id or signed_at next to a bound signature invalidates it.
func BoundDigest(digest string, keyID string, signedAt time.Time) string {
	return canonical.SHA256Hex([]byte(digest + "\n" + keyID + "\n" + signedAt.UTC().Format(time.RFC3339Nano)))
}

// SignDigest signs the digest string with the active key.
func (s *service) SignDigest(ctx context.Context, digest string) (*Signature, error) {
	return s.sign(ctx, func(string, time.Time) string { return digest })
}

// SignBound signs BoundDigest(digest, active key, now).
func (s *service) SignBound(ctx context.Context, digest string) (*Signature, error) {
	return s.sign(ctx, func(keyID string, at time.Time) string { return BoundDigest(digest, keyID, at) })
}

func (s *service) sign(ctx context.Context, payload func(keyID string, at time.Time) string) (*Signature, error) {
	k, err := s.keys.ActiveKey(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve active key")
	}
	if k.Algorithm != key.AlgorithmEd25519 || len(k.PrivateKey) != ed25519.PrivateKeySize {
		return nil, errors.Wrapf(ErrInvalidKeyType, "%s", k.KeyID)
	}

	now := s.clock.Now().UTC()
	sig := ed25519.Sign(ed25519.PrivateKey(k.PrivateKey), []byte(payload(k.KeyID, now)))

	return &Signature{
		Value:    base64.StdEncoding.EncodeToString(sig),
		KeyID:    k.KeyID,
		SignedAt: now,
	}, nil
}

// SignExport fills in export_hash and signs it.
func (s *service) SignExport(ctx context.Context, raw json.RawMessage) (*SignedExport, error) {
	export, err := decodeExport(raw)
	if err != nil {
		return nil, err
	}

	hash, err := ExportHash(export)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash export")
	}
	hashJSON, _ := json.Marshal(hash)
	export[ExportHashField] = hashJSON

	body, err := canonical.Marshal(export)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode export")
	}

	sig, err := s.SignDigest(ctx, hash)
	if err != nil {
		return nil, err
	}

	return &SignedExport{
		ExportJSON: body,
		ExportHash: hash,
		Signature:  sig.Value,
		KeyID:      sig.KeyID,
		SignedAt:   sig.SignedAt,
	}, nil
}

// Verify recomputes the content hash and, when a signature is supplied, checks
// it cryptographically and against the key's lifecycle status.
func (s *service) Verify(ctx context.Context, req *VerifyRequest) (*VerifyResult, error) {
	export, err := decodeExport(req.ExportJSON)
	if err != nil {
		return nil, err
	}
	if req.Signature != "" && req.KeyID == "" {
		return nil, ErrMissingKeyID
	}

	computed, err := ExportHash(export)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash export")
	}

	var declared string
	if v, ok := export[ExportHashField]; ok {
		if err := json.Unmarshal(v, &declared); err != nil {
			return nil, errors.Wrap(ErrMalformedExport, "export_hash must be a string")
		}
	}

	res := &VerifyResult{
		Content: ContentResult{
			ExportHash:   declared,
			ComputedHash: computed,
			Valid:        declared != "" && canonical.NormalizeHash(declared) == computed,
		},
		Errors: make([]string, 0),
	}
	if !res.Content.Valid {
		if declared == "" {
			res.Errors = append(res.Errors, "export_hash missing")
		} else {
			res.Errors = append(res.Errors, "export_hash does not match content")
		}
	}

	sigOK := true
	if req.Signature != "" {
		res.Signature = s.VerifyDigest(ctx, req.KeyID, canonical.NormalizeHash(declared), req.Signature)
		sigOK = res.Signature.Valid
		if !sigOK {
			res.Errors = append(res.Errors, fmt.Sprintf("signature: %s", res.Signature.Error))
		}
	}

	res.OK = res.Content.Valid && sigOK
	metrics.Verifications.WithLabelValues(verificationOutcome(res)).Inc()

	return res, nil
}

// VerifyDigest checks signature over digest with keyID. A revoked key fails
// with KEY_REVOKED once the signature itself checks out.
func (s *service) VerifyDigest(ctx context.Context, keyID string, digest string, signature string) *SignatureResult {
	res := &SignatureResult{KeyID: keyID}

	k, err := s.keys.GetKey(ctx, keyID)
	if err != nil {
		if errors.Is(err, key.ErrKeyNotFound) {
			res.Error = CodeKeyNotFound
			return res
		}
		log.Warn().Err(err).Str("key_id", keyID).Msg("Failed to resolve signing key")
		res.Error = CodeKeyLookupFailed
		return res
	}
	res.KeyStatus = string(k.Status)

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(k.PublicKey) != ed25519.PublicKeySize ||
		!ed25519.Verify(ed25519.PublicKey(k.PublicKey), []byte(digest), sig) {
		res.Error = CodeSignatureInvalid
		return res
	}

	if k.Status == key.StatusRevoked {
		res.Error = CodeKeyRevoked
		res.RevocationReason = k.RevocationReason
		return res
	}

	res.Valid = true
	return res
}

func verificationOutcome(r *VerifyResult) string {
	switch {
	case r.OK:
		return "ok"
	case !r.Content.Valid:
		return "content_invalid"
	case r.Signature != nil && r.Signature.Error == CodeKeyRevoked:
		return "key_revoked"
	case r.Signature != nil && r.Signature.Error == CodeKeyNotFound:
		return "key_not_found"
	default:
		return "signature_invalid"
	}
}
