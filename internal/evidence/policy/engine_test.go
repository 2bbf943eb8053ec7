package policy_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kashguard/go-evidence/internal/evidence/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyAllowsEverything(t *testing.T) {
	e, err := policy.NewEngine(policy.DefaultPolicy())
	require.NoError(t, err)

	assert.NoError(t, e.Evaluate(context.Background(), "alice", policy.Action("ROTATE", policy.VerbApprove)))
	assert.Len(t, e.Hash(), 64)
}

func TestEvaluate(t *testing.T) {
	p := &policy.Policy{
		Version: "2",
		Statements: []*policy.Statement{
			{Effect: policy.EffectAllow, Actions: []string{"*:initiate", "*:reject"}},
			{Effect: policy.EffectAllow, Actions: []string{"*:approve", "*:execute"}, Principals: []string{"security-officer"}},
			{Effect: policy.EffectDeny, Actions: []string{"revoke:execute"}, Principals: []string{"intern"}},
		},
	}
	e, err := policy.NewEngine(p)
	require.NoError(t, err)

	tests := []struct {
		name      string
		principal string
		action    string
		allowed   bool
	}{
		{"anyone may initiate", "mechanic", "rotate:initiate", true},
		{"approval restricted", "mechanic", "rotate:approve", false},
		{"officer may approve", "security-officer", "revoke:approve", true},
		{"deny overrides", "intern", "revoke:execute", false},
		{"unknown action", "security-officer", "rotate:delete", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.Evaluate(context.Background(), tt.principal, tt.action)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, policy.ErrPolicyDenied)
			}
		})
	}
}

func TestHashChangesWithPolicy(t *testing.T) {
	a, err := policy.NewEngine(policy.DefaultPolicy())
	require.NoError(t, err)

	p := policy.DefaultPolicy()
	p.Version = "2"
	b, err := policy.NewEngine(p)
	require.NoError(t, err)

	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestNewEngineRejectsInvalidPolicy(t *testing.T) {
	_, err := policy.NewEngine(&policy.Policy{Version: "1", Statements: []*policy.Statement{{Effect: "Maybe", Actions: []string{"*"}}}})
	assert.ErrorIs(t, err, policy.ErrInvalidPolicy)

	_, err = policy.NewEngine(&policy.Policy{})
	assert.ErrorIs(t, err, policy.ErrInvalidPolicy)
}

func TestLoadFile(t *testing.T) {
	p, err := policy.LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, "1", p.Version)

	path := filepath.Join(t.TempDir(), "policy.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"7","statements":[{"effect":"Allow","actions":["rotate:*"]}]}`), 0o600))
	p, err = policy.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "7", p.Version)
	require.Len(t, p.Statements, 1)

	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o600))
	_, err = policy.LoadFile(path)
	assert.ErrorIs(t, err, policy.ErrInvalidPolicy)
}
