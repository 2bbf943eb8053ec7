package types

import (
	"github.com/go-openapi/strfmt"
	"github.com/kashguard/go-evidence/internal/evidence/anchor"
)

type GetAnchoringIssuesResponse struct {
	// Required: true
	WindowDays *int64 `json:"windowDays"`

	// Required: true
	GeneratedAt *strfmt.DateTime `json:"generatedAt"`

	AnchorsScanned int64 `json:"anchorsScanned"`

	// Required: true
	Issues []*anchor.Issue `json:"issues"`

	Counts map[string]int64 `json:"counts,omitempty"`
}

func (m *GetAnchoringIssuesResponse) Validate(_ strfmt.Registry) error {
	var res ValidationErrors
	if m.WindowDays == nil {
		res = append(res, bodyError("windowDays", "windowDays is required"))
	}
	if m.GeneratedAt == nil {
		res = append(res, bodyError("generatedAt", "generatedAt is required"))
	}
	if m.Issues == nil {
		res = append(res, bodyError("issues", "issues is required"))
	}
	return res.orNil()
}
