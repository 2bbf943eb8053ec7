package anchor_test

import (
	"encoding/json"
	"testing"

	"github.com/kashguard/go-evidence/internal/evidence/anchor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueFingerprintIgnoresDetails(t *testing.T) {
	p := &anchor.Period{From: day(1), To: day(2)}
	a, err := anchor.NewIssue(anchor.SeverityMajor, "anchor a pending", p, "a", &anchor.PendingDetails{AnchorID: "a", AgeHours: 80})
	require.NoError(t, err)
	b, err := anchor.NewIssue(anchor.SeverityMajor, "anchor a pending", p, "a", &anchor.PendingDetails{AnchorID: "a", AgeHours: 90})
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint, b.Fingerprint)
	assert.Len(t, anchor.Dedupe([]*anchor.Issue{a, b}), 1)

	c, err := anchor.NewIssue(anchor.SeverityCritical, "anchor a pending", p, "a", &anchor.PendingDetails{AnchorID: "a"})
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint, c.Fingerprint)
}

func TestIssueJSONRoundTripKeepsTaggedDetails(t *testing.T) {
	iss, err := anchor.NewIssue(anchor.SeverityMajor, "gap", &anchor.Period{From: day(2), To: day(3)}, "a1..a2",
		&anchor.GapDetails{PreviousAnchorID: "a1", NextAnchorID: "a2"})
	require.NoError(t, err)

	b, err := json.Marshal(iss)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"_fingerprint":"`+iss.Fingerprint+`"`)

	var decoded anchor.Issue
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, iss.Fingerprint, decoded.Fingerprint)
	gap, ok := decoded.Details.(*anchor.GapDetails)
	require.True(t, ok)
	assert.Equal(t, "a2", gap.NextAnchorID)
}

func TestIssueUnmarshalRejectsUnknownType(t *testing.T) {
	var iss anchor.Issue
	err := json.Unmarshal([]byte(`{"type":"SOMETHING_ELSE","severity":"major","message":"x"}`), &iss)
	assert.Error(t, err)
}

func TestIssueUnmarshalRecomputesMissingFingerprint(t *testing.T) {
	var iss anchor.Issue
	require.NoError(t, json.Unmarshal([]byte(`{"type":"ANCHOR_FAILED","severity":"critical","message":"anchor a failed","subject":"a"}`), &iss))

	want, err := anchor.ComputeFingerprint(anchor.IssueAnchorFailed, anchor.SeverityCritical, nil, "a", "anchor a failed")
	require.NoError(t, err)
	assert.Equal(t, want, iss.Fingerprint)
}

func TestIssueUnmarshalRejectsMalformedFingerprint(t *testing.T) {
	for _, fp := range []string{"abc", "zz", "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdeg"} {
		var iss anchor.Issue
		err := json.Unmarshal([]byte(`{"type":"ANCHOR_FAILED","severity":"critical","message":"x","_fingerprint":"`+fp+`"}`), &iss)
		assert.ErrorIs(t, err, anchor.ErrInvalidFingerprint, fp)
	}
}

func TestIssueUnmarshalKeepsPrefixedFingerprint(t *testing.T) {
	want, err := anchor.ComputeFingerprint(anchor.IssueAnchorFailed, anchor.SeverityCritical, nil, "", "x")
	require.NoError(t, err)

	var iss anchor.Issue
	require.NoError(t, json.Unmarshal([]byte(`{"type":"ANCHOR_FAILED","severity":"critical","message":"x","_fingerprint":"sha256:`+want+`"}`), &iss))
	assert.Equal(t, want, iss.Fingerprint)
	assert.Equal(t, "iss_"+want[:16], iss.ID)
}

func TestDedupeDropsNilEntries(t *testing.T) {
	iss, err := anchor.NewIssue(anchor.SeverityMajor, "pending", nil, "p", &anchor.PendingDetails{AnchorID: "p"})
	require.NoError(t, err)

	out := anchor.Dedupe([]*anchor.Issue{nil, iss, nil, iss})
	require.Len(t, out, 1)
	assert.Same(t, iss, out[0])
}
