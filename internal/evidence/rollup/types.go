package rollup

import (
	"time"
)

// Anchor modes.
const (
	AnchorModeNone    = "none"
	AnchorModeRequest = "request"
	AnchorModeCall    = "call"
	AnchorModeBoth    = "both"
)

// Leaf sources, in precedence order.
const (
	LeafFromFingerprint = "fingerprint_sha256"
	LeafFromChangeHash  = "change_hash"
	LeafFromContent     = "content_sha256"
)

// Rollup is the per-day commitment over all ledger namespaces. It carries no
// wall-clock data so rebuilding an unchanged day yields identical bytes.
type Rollup struct {
	Version        int            `json:"version"`
	Date           string         `json:"date"`
	PeriodStart    time.Time      `json:"period_start"`
	PeriodEnd      time.Time      `json:"period_end"`
	Algorithm      string         `json:"algorithm"`
	MerkleRoot     string         `json:"merkle_root"`
	LeafCount      int            `json:"leaf_count"`
	Namespaces     map[string]int `json:"namespaces"`
	ManifestSHA256 string         `json:"manifest_sha256"`
	SkippedCount   int            `json:"skipped_count,omitempty"`
}

// ManifestEntry lists one leaf in tree order.
type ManifestEntry struct {
	Key        string `json:"key"`
	Namespace  string `json:"namespace"`
	Leaf       string `json:"leaf"`
	LeafSource string `json:"leaf_source"`
	Signer     string `json:"signer,omitempty"`
}

type Manifest struct {
	Date        string          `json:"date"`
	Entries     []ManifestEntry `json:"entries"`
	SkippedKeys []string        `json:"skipped_keys,omitempty"`
}

// AnchorRequest is the object an external anchoring process picks up.
type AnchorRequest struct {
	Date           string    `json:"date"`
	MerkleRoot     string    `json:"merkle_root"`
	PeriodStart    time.Time `json:"period_start"`
	PeriodEnd      time.Time `json:"period_end"`
	RollupKey      string    `json:"rollup_key"`
	ManifestSHA256 string    `json:"manifest_sha256"`
	Algorithm      string    `json:"algorithm"`
}

type BuildOptions struct {
	Day    time.Time
	DryRun bool
	// AnchorMode overrides the configured mode when set.
	AnchorMode string
}

type Result struct {
	Date             string   `json:"date"`
	DryRun           bool     `json:"dry_run"`
	Empty            bool     `json:"empty"`
	Rollup           *Rollup  `json:"rollup,omitempty"`
	RollupKey        string   `json:"rollup_key,omitempty"`
	ManifestKey      string   `json:"manifest_key,omitempty"`
	AnchorRequestKey string   `json:"anchor_request_key,omitempty"`
	AnchorID         string   `json:"anchor_id,omitempty"`
	AnchorError      string   `json:"anchor_error,omitempty"`
	SkippedKeys      []string `json:"skipped_keys,omitempty"`
}
