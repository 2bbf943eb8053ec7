package key

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/kashguard/go-evidence/internal/evidence/audit"
	"github.com/kashguard/go-evidence/internal/evidence/policy"
	"github.com/kashguard/go-evidence/internal/evidence/storage"
	"github.com/kashguard/go-evidence/internal/metrics"
	"github.com/pkg/errors"
)

func (s *service) authorize(ctx context.Context, principal string, action Action, verb string) error {
	if s.policyEngine == nil {
		return nil
	}
	return s.policyEngine.Evaluate(ctx, principal, policy.Action(string(action), verb))
}

func (s *service) CreateRequest(ctx context.Context, in *CreateRequest) (*LifecycleRequest, error) {
	initiator := strings.TrimSpace(in.InitiatorID)
	if initiator == "" {
		return nil, ErrMissingPrincipal
	}

	switch in.Action {
	case ActionRotate:
	case ActionRevoke:
		if in.TargetKeyID == "" {
			return nil, ErrMissingTarget
		}
		if strings.TrimSpace(in.Reason) == "" {
			return nil, ErrMissingReason
		}
	default:
		return nil, errors.Wrapf(ErrInvalidAction, "%q", in.Action)
	}

	if err := s.authorize(ctx, initiator, in.Action, policy.VerbInitiate); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if in.Action == ActionRevoke {
		if _, err := s.checkRevocable(ctx, in.TargetKeyID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	r := &LifecycleRequest{
		ID:          uuid.New().String(),
		Action:      in.Action,
		TargetKeyID: in.TargetKeyID,
		Reason:      in.Reason,
		Status:      RequestPending,
		InitiatorID: initiator,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.ApprovalTTL),
	}
	if err := s.store.PutRequest(ctx, r); err != nil {
		return nil, errors.Wrap(err, "failed to store lifecycle request")
	}

	s.transitioned(ctx, r, audit.EventRequestCreated, initiator)

	return r, nil
}

func (s *service) GetRequest(ctx context.Context, id string) (*LifecycleRequest, error) {
	r, err := s.store.GetRequest(ctx, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, errors.Wrapf(ErrRequestNotFound, "%s", id)
		}
		return nil, err
	}
	return r, nil
}

// ListRequests expires overdue requests before listing them.
func (s *service) ListRequests(ctx context.Context, filter *RequestFilter) (*RequestList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.store.ListRequests(ctx)
	if err != nil {
		return nil, err
	}

	out := &RequestList{Requests: make([]*LifecycleRequest, 0, len(all))}
	for _, r := range all {
		if s.overdue(r) {
			if err := s.expire(ctx, r); err != nil {
				return nil, err
			}
		}
		if r.Status == RequestPending {
			out.PendingCount++
		}
		if filter != nil && filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out.Requests = append(out.Requests, r)
	}

	return out, nil
}

func (s *service) Approve(ctx context.Context, id string, approverID string) (*LifecycleRequest, error) {
	approver := strings.TrimSpace(approverID)
	if approver == "" {
		return nil, ErrMissingPrincipal
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.load(ctx, id, RequestPending)
	if err != nil {
		return nil, err
	}
	if approver == r.InitiatorID {
		return nil, ErrSelfApproval
	}
	if err := s.authorize(ctx, approver, r.Action, policy.VerbApprove); err != nil {
		return nil, err
	}

	now := s.now()
	executeBy := now.Add(s.cfg.ExecutionTTL)
	r.Status = RequestApproved
	r.ApproverID = approver
	r.ApprovedAt = &now
	r.ExecuteBy = &executeBy
	if err := s.store.PutRequest(ctx, r); err != nil {
		return nil, errors.Wrap(err, "failed to store lifecycle request")
	}

	s.transitioned(ctx, r, audit.EventRequestApproved, approver)

	return r, nil
}

func (s *service) Reject(ctx context.Context, id string, approverID string, reason string) (*LifecycleRequest, error) {
	principal := strings.TrimSpace(approverID)
	if principal == "" {
		return nil, ErrMissingPrincipal
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.load(ctx, id, RequestPending)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, principal, r.Action, policy.VerbReject); err != nil {
		return nil, err
	}

	now := s.now()
	r.Status = RequestRejected
	r.ApproverID = principal
	r.RejectedAt = &now
	r.RejectionReason = reason
	if err := s.store.PutRequest(ctx, r); err != nil {
		return nil, errors.Wrap(err, "failed to store lifecycle request")
	}

	s.transitioned(ctx, r, audit.EventRequestRejected, principal)

	return r, nil
}

// Execute performs the approved action. A failed action leaves the request
// APPROVED so it can be retried inside its window.
func (s *service) Execute(ctx context.Context, id string, executorID string) (*LifecycleRequest, error) {
	executor := strings.TrimSpace(executorID)
	if executor == "" {
		return nil, ErrMissingPrincipal
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.load(ctx, id, RequestApproved)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, executor, r.Action, policy.VerbExecute); err != nil {
		return nil, err
	}

	switch r.Action {
	case ActionRotate:
		k, err := s.rotate(ctx, executor, r.ID)
		if err != nil {
			return nil, err
		}
		r.ResultKeyID = k.KeyID
	case ActionRevoke:
		k, err := s.revoke(ctx, r.TargetKeyID, r.Reason, executor, r.ID)
		if err != nil {
			return nil, err
		}
		r.ResultKeyID = k.KeyID
	default:
		return nil, errors.Wrapf(ErrInvalidAction, "%q", r.Action)
	}

	now := s.now()
	r.Status = RequestExecuted
	r.ExecutorID = executor
	r.ExecutedAt = &now
	if err := s.store.PutRequest(ctx, r); err != nil {
		return nil, errors.Wrapf(err, "key action done but request %s not updated", r.ID)
	}

	s.transitioned(ctx, r, audit.EventRequestExecuted, executor)

	return r, nil
}

// load fetches a request, expires it when overdue and checks it is in want.
func (s *service) load(ctx context.Context, id string, want RequestStatus) (*LifecycleRequest, error) {
	r, err := s.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.overdue(r) {
		if err := s.expire(ctx, r); err != nil {
			return nil, err
		}
		return nil, errors.Wrapf(ErrRequestExpired, "%s", id)
	}
	if r.Status != want {
		return nil, errors.Wrapf(ErrInvalidRequestState, "request %s is %s, expected %s", id, r.Status, want)
	}

	return r, nil
}

func (s *service) overdue(r *LifecycleRequest) bool {
	now := s.now()
	switch r.Status {
	case RequestPending:
		return !now.Before(r.ExpiresAt)
	case RequestApproved:
		return r.ExecuteBy != nil && now.After(*r.ExecuteBy)
	default:
		return false
	}
}

func (s *service) expire(ctx context.Context, r *LifecycleRequest) error {
	from := r.Status
	now := s.now()
	r.Status = RequestExpired
	r.ExpiredAt = &now
	if err := s.store.PutRequest(ctx, r); err != nil {
		return errors.Wrapf(err, "failed to expire request %s", r.ID)
	}

	s.transitioned(ctx, r, audit.EventRequestExpired, "system", "expired_from", string(from))

	return nil
}

func (s *service) transitioned(ctx context.Context, r *LifecycleRequest, eventType string, actor string, extra ...string) {
	details := map[string]any{
		"action": string(r.Action),
		"status": string(r.Status),
	}
	if r.TargetKeyID != "" {
		details["target_key_id"] = r.TargetKeyID
	}
	for i := 0; i+1 < len(extra); i += 2 {
		details[extra[i]] = extra[i+1]
	}

	s.logEvent(ctx, &audit.AuditEvent{
		Timestamp: s.now(),
		EventType: eventType,
		UserID:    actor,
		KeyID:     r.ResultKeyID,
		RequestID: r.ID,
		Operation: strings.ToLower(string(r.Action)),
		Result:    audit.ResultSuccess,
		Details:   details,
	})
	metrics.KeyLifecycleTransitions.WithLabelValues(string(r.Action), string(r.Status)).Inc()
}
