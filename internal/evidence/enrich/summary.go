package enrich

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"path"
	"sort"

	"github.com/kashguard/go-evidence/internal/evidence/anchor"
	"github.com/pkg/errors"
)

const (
	maxGroups           = 5
	maxExamplesPerGroup = 3
	maxIssuesFileSize   = 32 << 20
)

// IssuesFileNames are the archive members searched for anchoring issues, by base name.
var IssuesFileNames = []string{"anchoring_issues.json", "anchoring-issues.json"}

var (
	ErrNoIssuesFile = errors.New("archive has no anchoring issues file")
	ErrNullIssue    = errors.New("issues file contains a null entry")
)

// Example is a short reference to one issue of a group.
type Example struct {
	Fingerprint string         `json:"_fingerprint"`
	Message     string         `json:"message"`
	Subject     string         `json:"subject,omitempty"`
	Period      *anchor.Period `json:"period,omitempty"`
}

// Group is all issues sharing a severity and type.
type Group struct {
	Severity anchor.Severity  `json:"severity"`
	Type     anchor.IssueType `json:"type"`
	Count    int              `json:"count"`
	Examples []Example        `json:"examples"`
}

// Summary is the anchoring field added to an enriched entry.
type Summary struct {
	SourcePackSHA256 string  `json:"source_pack_sha256"`
	IssuesTotal      int     `json:"issues_total"`
	UniqueIssues     int     `json:"unique_issues"`
	GroupsTotal      int     `json:"groups_total"`
	Groups           []Group `json:"groups"`
}

// ExtractIssues finds the issues file inside a zip archive and decodes it. Both
// a bare array and {"issues": [...]} are accepted.
func ExtractIssues(archive []byte) ([]*anchor.Issue, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, errors.Wrap(err, "invalid archive")
	}

	var member *zip.File
	for _, f := range zr.File {
		base := path.Base(f.Name)
		for _, name := range IssuesFileNames {
			if base == name {
				member = f
				break
			}
		}
		if member != nil {
			break
		}
	}
	if member == nil {
		return nil, ErrNoIssuesFile
	}

	rc, err := member.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", member.Name)
	}
	defer rc.Close()

	raw, err := io.ReadAll(io.LimitReader(rc, maxIssuesFileSize))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", member.Name)
	}

	var issues []*anchor.Issue
	if err := json.Unmarshal(raw, &issues); err != nil {
		var wrapped struct {
			Issues []*anchor.Issue `json:"issues"`
		}
		if wErr := json.Unmarshal(raw, &wrapped); wErr != nil {
			return nil, errors.Wrapf(err, "failed to decode %s", member.Name)
		}
		issues = wrapped.Issues
	}
	for i, iss := range issues {
		if iss == nil {
			return nil, errors.Wrapf(ErrNullIssue, "%s[%d]", member.Name, i)
		}
	}

	return issues, nil
}

// Summarize dedupes by fingerprint and keeps the largest groups, most severe first.
func Summarize(packSHA256 string, issues []*anchor.Issue) *Summary {
	unique := anchor.Dedupe(issues)

	type groupKey struct {
		sev anchor.Severity
		typ anchor.IssueType
	}
	byKey := make(map[groupKey]*Group)
	order := make([]groupKey, 0)
	for _, iss := range unique {
		k := groupKey{iss.Severity, iss.Type}
		g, ok := byKey[k]
		if !ok {
			g = &Group{Severity: iss.Severity, Type: iss.Type, Examples: make([]Example, 0, maxExamplesPerGroup)}
			byKey[k] = g
			order = append(order, k)
		}
		g.Count++
		if len(g.Examples) < maxExamplesPerGroup {
			g.Examples = append(g.Examples, Example{
				Fingerprint: iss.Fingerprint,
				Message:     iss.Message,
				Subject:     iss.Subject,
				Period:      iss.Period,
			})
		}
	}

	groups := make([]Group, 0, len(order))
	for _, k := range order {
		groups = append(groups, *byKey[k])
	}
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() < b.Severity.Rank()
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Type < b.Type
	})

	total := len(groups)
	if len(groups) > maxGroups {
		groups = groups[:maxGroups]
	}

	return &Summary{
		SourcePackSHA256: packSHA256,
		IssuesTotal:      len(issues),
		UniqueIssues:     len(unique),
		GroupsTotal:      total,
		Groups:           groups,
	}
}
