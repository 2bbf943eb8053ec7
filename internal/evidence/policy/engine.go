package policy

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/kashguard/go-evidence/internal/evidence/canonical"
	"github.com/pkg/errors"
)

var (
	ErrPolicyDenied  = errors.New("policy denied")
	ErrInvalidPolicy = errors.New("invalid policy")
)

// Engine evaluates the key-management policy.
type Engine interface {
	Evaluate(ctx context.Context, principal string, action string) error
	Policy() *Policy
	// Hash is the SHA-256 of the canonical policy document.
	Hash() string
}

type engine struct {
	policy *Policy
	hash   string
}

// NewEngine validates p and precomputes its hash.
//
//nolint:ireturn
func NewEngine(p *Policy) (Engine, error) {
	if p == nil {
		return nil, errors.Wrap(ErrInvalidPolicy, "policy is nil")
	}
	if p.Version == "" {
		return nil, errors.Wrap(ErrInvalidPolicy, "version is required")
	}
	for i, st := range p.Statements {
		if st.Effect != EffectAllow && st.Effect != EffectDeny {
			return nil, errors.Wrapf(ErrInvalidPolicy, "statement %d: effect %q", i, st.Effect)
		}
		if len(st.Actions) == 0 {
			return nil, errors.Wrapf(ErrInvalidPolicy, "statement %d: no actions", i)
		}
	}

	h, err := canonical.Fingerprint(p)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash policy")
	}

	return &engine{policy: p, hash: h}, nil
}

// DefaultPolicy allows every lifecycle action; dual control itself is enforced
// by the request workflow, not by policy.
func DefaultPolicy() *Policy {
	return &Policy{
		Version:     "1",
		Description: "default key lifecycle policy",
		Statements: []*Statement{
			{Effect: EffectAllow, Actions: []string{"*:*"}},
		},
	}
}

// LoadFile reads a policy document; an empty path yields DefaultPolicy.
func LoadFile(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read policy file %s", path)
	}

	var p Policy
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.Wrapf(ErrInvalidPolicy, "%s: %v", path, err)
	}

	return &p, nil
}

// Evaluate applies deny-overrides: any matching Deny rejects, otherwise at
// least one matching Allow is required.
func (e *engine) Evaluate(_ context.Context, principal string, action string) error {
	allowed := false
	for _, st := range e.policy.Statements {
		if !matchesPrincipal(st.Principals, principal) || !matchesAction(st.Actions, action) {
			continue
		}
		if st.Effect == EffectDeny {
			return errors.Wrapf(ErrPolicyDenied, "%s may not %s", principal, action)
		}
		allowed = true
	}

	if !allowed {
		return errors.Wrapf(ErrPolicyDenied, "no statement allows %s to %s", principal, action)
	}

	return nil
}

func (e *engine) Policy() *Policy {
	return e.policy
}

func (e *engine) Hash() string {
	return e.hash
}

func matchesPrincipal(principals []string, principal string) bool {
	if len(principals) == 0 {
		return true
	}
	for _, p := range principals {
		if p == "*" || p == principal {
			return true
		}
	}

	return false
}

func matchesAction(patterns []string, action string) bool {
	for _, p := range patterns {
		if p == "*" || p == action {
			return true
		}

		pp := strings.SplitN(p, ":", 2)
		ap := strings.SplitN(action, ":", 2)
		if len(pp) != 2 || len(ap) != 2 {
			continue
		}
		if (pp[0] == "*" || pp[0] == ap[0]) && (pp[1] == "*" || pp[1] == ap[1]) {
			return true
		}
	}

	return false
}

// Action builds the action string for a lifecycle verb.
func Action(lifecycleAction string, verb string) string {
	return strings.ToLower(lifecycleAction) + ":" + verb
}
