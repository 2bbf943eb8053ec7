package policy

// Statement allows or denies actions to principals.
type Statement struct {
	// Effect is Allow or Deny.
	Effect string `json:"effect"`
	// Actions are "{rotate|revoke}:{initiate|approve|reject|execute}", with "*" wildcards per segment.
	Actions []string `json:"actions"`
	// Principals defaults to everyone when empty.
	Principals []string `json:"principals,omitempty"`
}

// Policy is the key-management policy document. Its version and hash are
// recorded in every audit snapshot.
type Policy struct {
	Version     string       `json:"version"`
	Description string       `json:"description,omitempty"`
	Statements  []*Statement `json:"statements"`
}

const (
	EffectAllow = "Allow"
	EffectDeny  = "Deny"
)

// Verbs of the lifecycle request workflow.
const (
	VerbInitiate = "initiate"
	VerbApprove  = "approve"
	VerbReject   = "reject"
	VerbExecute  = "execute"
)
