package key

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/google/uuid"
	"github.com/kashguard/go-evidence/internal/config"
	"github.com/kashguard/go-evidence/internal/evidence/audit"
	"github.com/kashguard/go-evidence/internal/evidence/policy"
	"github.com/kashguard/go-evidence/internal/evidence/storage"
	"github.com/kashguard/go-evidence/internal/metrics"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrKeyNotFound         = errors.New("key not found")
	ErrNoActiveKey         = errors.New("no active signing key")
	ErrAlreadyBootstrapped = errors.New("signing keys already exist")
	ErrRevokeActiveKey     = errors.New("the active key cannot be revoked, rotate first")
	ErrKeyAlreadyRevoked   = errors.New("key is already revoked")
	ErrRequestNotFound     = errors.New("lifecycle request not found")
	ErrInvalidAction       = errors.New("action must be ROTATE or REVOKE")
	ErrMissingTarget       = errors.New("REVOKE requires target_key_id")
	ErrMissingReason       = errors.New("REVOKE requires a reason")
	ErrMissingPrincipal    = errors.New("principal id is required")
	ErrSelfApproval        = errors.New("approver must differ from initiator")
	ErrInvalidRequestState = errors.New("invalid lifecycle request state")
	ErrRequestExpired      = errors.New("lifecycle request expired")
)

// Service manages signing keys. Rotation and revocation only happen through
// approved lifecycle requests.
type Service interface {
	ActiveKey(ctx context.Context) (*SigningKey, error)
	GetKey(ctx context.Context, keyID string) (*SigningKey, error)
	ListKeys(ctx context.Context) ([]*SigningKey, error)
	Counts(ctx context.Context) (*KeyCounts, error)
	Bootstrap(ctx context.Context, actor string) (*SigningKey, error)

	CreateRequest(ctx context.Context, req *CreateRequest) (*LifecycleRequest, error)
	GetRequest(ctx context.Context, id string) (*LifecycleRequest, error)
	ListRequests(ctx context.Context, filter *RequestFilter) (*RequestList, error)
	Approve(ctx context.Context, id string, approverID string) (*LifecycleRequest, error)
	Reject(ctx context.Context, id string, approverID string, reason string) (*LifecycleRequest, error)
	Execute(ctx context.Context, id string, executorID string) (*LifecycleRequest, error)
}

type service struct {
	store        Store
	policyEngine policy.Engine
	auditLogger  audit.Logger
	cfg          config.Keys
	clock        time2.Clock

	// mu serializes mutations within this process.
	mu sync.Mutex
}

//nolint:ireturn
func NewService(
	store Store,
	policyEngine policy.Engine,
	auditLogger audit.Logger,
	cfg config.Keys,
	clock time2.Clock,
) (Service, error) {
	if cfg.ApprovalTTL <= 0 {
		cfg.ApprovalTTL = 24 * time.Hour
	}
	if cfg.ExecutionTTL <= 0 {
		cfg.ExecutionTTL = time.Hour
	}
	if cfg.ExecutionTTL >= cfg.ApprovalTTL {
		return nil, errors.New("execution window must be shorter than approval window")
	}

	return &service{
		store:        store,
		policyEngine: policyEngine,
		auditLogger:  auditLogger,
		cfg:          cfg,
		clock:        clock,
	}, nil
}

func (s *service) now() time.Time {
	return s.clock.Now().UTC()
}

func (s *service) activeID(ctx context.Context) (string, error) {
	p, err := s.store.GetActivePointer(ctx)
	if err != nil {
		if storage.IsNotFound(err) {
			return "", nil
		}
		return "", errors.Wrap(err, "failed to read active key pointer")
	}
	return p.KeyID, nil
}

// effective derives the reported status from the pointer.
func effective(k *SigningKey, activeID string) *SigningKey {
	out := k.Public()
	switch {
	case k.Status == StatusRevoked:
		out.Status = StatusRevoked
	case k.KeyID == activeID:
		out.Status = StatusActive
	default:
		out.Status = StatusArchived
	}
	return out
}

// ActiveKey returns the active key including its private material.
func (s *service) ActiveKey(ctx context.Context) (*SigningKey, error) {
	id, err := s.activeID(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrNoActiveKey
	}

	k, err := s.store.GetKey(ctx, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, errors.Wrapf(ErrNoActiveKey, "pointer names missing key %s", id)
		}
		return nil, err
	}
	if k.Status == StatusRevoked {
		return nil, errors.Wrapf(ErrNoActiveKey, "pointer names revoked key %s", id)
	}
	k.Status = StatusActive

	return k, nil
}

// GetKey returns the public view of a key with its effective status.
func (s *service) GetKey(ctx context.Context, keyID string) (*SigningKey, error) {
	k, err := s.store.GetKey(ctx, keyID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, errors.Wrapf(ErrKeyNotFound, "%s", keyID)
		}
		return nil, err
	}

	id, err := s.activeID(ctx)
	if err != nil {
		return nil, err
	}

	return effective(k, id), nil
}

func (s *service) ListKeys(ctx context.Context) ([]*SigningKey, error) {
	keys, err := s.store.ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	id, err := s.activeID(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*SigningKey, 0, len(keys))
	for _, k := range keys {
		out = append(out, effective(k, id))
	}

	return out, nil
}

func (s *service) Counts(ctx context.Context) (*KeyCounts, error) {
	keys, err := s.ListKeys(ctx)
	if err != nil {
		return nil, err
	}

	c := &KeyCounts{}
	for _, k := range keys {
		switch k.Status {
		case StatusActive:
			c.Active = k.KeyID
		case StatusArchived:
			c.ArchivedCount++
		case StatusRevoked:
			c.RevokedCount++
		}
	}

	return c, nil
}

// Bootstrap creates the first active key. It refuses once any key exists.
func (s *service) Bootstrap(ctx context.Context, actor string) (*SigningKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.store.ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	if len(keys) > 0 {
		return nil, ErrAlreadyBootstrapped
	}

	k, err := s.generate(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.store.PutActivePointer(ctx, &ActivePointer{KeyID: k.KeyID, UpdatedAt: s.now()}); err != nil {
		return nil, errors.Wrap(err, "failed to write active key pointer")
	}

	s.logEvent(ctx, &audit.AuditEvent{
		EventType: audit.EventKeyCreated,
		UserID:    actor,
		KeyID:     k.KeyID,
		Operation: "bootstrap",
		Result:    audit.ResultSuccess,
	})
	metrics.KeyLifecycleTransitions.WithLabelValues("bootstrap", string(StatusActive)).Inc()

	return k.Public(), nil
}

// generate writes new key material and returns it once durable.
func (s *service) generate(ctx context.Context) (*SigningKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate key")
	}

	k := &SigningKey{
		KeyID:      uuid.New().String(),
		Status:     StatusActive,
		Algorithm:  AlgorithmEd25519,
		PublicKey:  pub,
		PrivateKey: priv,
		CreatedAt:  s.now(),
	}
	if err := s.store.PutKey(ctx, k); err != nil {
		return nil, errors.Wrap(err, "failed to store new key")
	}

	return k, nil
}

// rotate writes the new key, archives the previous one and switches the
// pointer last. Until the pointer is written the previous key stays active.
func (s *service) rotate(ctx context.Context, actor string, requestID string) (*SigningKey, error) {
	prevID, err := s.activeID(ctx)
	if err != nil {
		return nil, err
	}

	k, err := s.generate(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if prevID != "" {
		prev, err := s.store.GetKey(ctx, prevID)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load previous key %s", prevID)
		}
		if prev.Status != StatusRevoked {
			prev.Status = StatusArchived
			prev.ArchivedAt = &now
			if err := s.store.PutKey(ctx, prev); err != nil {
				return nil, errors.Wrapf(err, "failed to archive key %s", prevID)
			}
		}
	}

	if err := s.store.PutActivePointer(ctx, &ActivePointer{KeyID: k.KeyID, UpdatedAt: now}); err != nil {
		return nil, errors.Wrap(err, "failed to switch active key pointer")
	}

	s.logEvent(ctx, &audit.AuditEvent{
		EventType: audit.EventKeyRotated,
		UserID:    actor,
		KeyID:     k.KeyID,
		RequestID: requestID,
		Operation: "rotate",
		Result:    audit.ResultSuccess,
		Details:   map[string]any{"previous_key_id": prevID},
	})
	if prevID != "" {
		s.logEvent(ctx, &audit.AuditEvent{
			EventType: audit.EventKeyArchived,
			UserID:    actor,
			KeyID:     prevID,
			RequestID: requestID,
			Operation: "rotate",
			Result:    audit.ResultSuccess,
		})
	}
	metrics.KeyLifecycleTransitions.WithLabelValues("rotate", string(StatusActive)).Inc()

	return k.Public(), nil
}

func (s *service) revoke(ctx context.Context, keyID string, reason string, actor string, requestID string) (*SigningKey, error) {
	k, err := s.checkRevocable(ctx, keyID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	k.Status = StatusRevoked
	k.RevokedAt = &now
	k.RevocationReason = reason
	if k.ArchivedAt == nil {
		k.ArchivedAt = &now
	}
	if err := s.store.PutKey(ctx, k); err != nil {
		return nil, errors.Wrapf(err, "failed to revoke key %s", keyID)
	}

	s.logEvent(ctx, &audit.AuditEvent{
		EventType: audit.EventKeyRevoked,
		UserID:    actor,
		KeyID:     keyID,
		RequestID: requestID,
		Operation: "revoke",
		Result:    audit.ResultSuccess,
		Details:   map[string]any{"reason": reason},
	})
	metrics.KeyLifecycleTransitions.WithLabelValues("revoke", string(StatusRevoked)).Inc()

	return k.Public(), nil
}

// checkRevocable loads keyID and requires it to be archived.
func (s *service) checkRevocable(ctx context.Context, keyID string) (*SigningKey, error) {
	k, err := s.store.GetKey(ctx, keyID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, errors.Wrapf(ErrKeyNotFound, "%s", keyID)
		}
		return nil, err
	}
	activeID, err := s.activeID(ctx)
	if err != nil {
		return nil, err
	}

	switch effective(k, activeID).Status {
	case StatusActive:
		return nil, ErrRevokeActiveKey
	case StatusRevoked:
		return nil, errors.Wrapf(ErrKeyAlreadyRevoked, "%s", keyID)
	}

	return k, nil
}

// logEvent never fails the transition; the recorder already dead-letters
// storage failures.
func (s *service) logEvent(ctx context.Context, event *audit.AuditEvent) {
	if s.auditLogger == nil {
		return
	}
	if err := s.auditLogger.LogEvent(ctx, event); err != nil {
		log.Error().Err(err).Str("event_type", event.EventType).Msg("Failed to record key lifecycle event")
	}
}
