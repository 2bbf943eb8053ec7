package deadletter

import (
	"encoding/json"
	"time"
)

// Item is one line of the dead-letter queue: a ledger write that could not reach the store.
type Item struct {
	Namespace string          `json:"namespace"`
	Key       string          `json:"key,omitempty"`
	Entry     json.RawMessage `json:"entry"`
	Archive   *ArchiveRef     `json:"archive,omitempty"`
	Error     string          `json:"error"`
	FailedAt  time.Time       `json:"failed_at"`
}

// ArchiveRef points at the pack bytes kept next to the queue for a dead-lettered entry.
type ArchiveRef struct {
	Name   string `json:"name,omitempty"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// AlertType classifies queue health.
type AlertType string

const (
	AlertHighVolume AlertType = "high_volume"
	AlertGrowing    AlertType = "growing"
)

type Alert struct {
	Type    AlertType `json:"type"`
	Message string    `json:"message"`
}

// Status summarizes the active queue and its archives.
type Status struct {
	ActiveLines  int     `json:"active_lines"`
	ArchiveCount int     `json:"archive_count"`
	ArchiveBytes int64   `json:"archive_bytes"`
	Alerts       []Alert `json:"alerts"`
}

type RotateResult struct {
	DryRun  bool   `json:"dry_run"`
	Rotated bool   `json:"rotated"`
	Archive string `json:"archive,omitempty"`
	Lines   int    `json:"lines"`
}

type CleanupResult struct {
	DryRun  bool     `json:"dry_run"`
	Deleted []string `json:"deleted"`
	// OverCap lists the subset of Deleted removed to satisfy the size or line caps.
	OverCap     []string `json:"over_cap,omitempty"`
	Kept        int      `json:"kept"`
	KeptBytes   int64    `json:"kept_bytes"`
	KeptLines   int      `json:"kept_lines"`
	PrunedPacks int      `json:"pruned_packs"`
	Errors      []string `json:"errors,omitempty"`
}

type ReplayResult struct {
	DryRun    bool `json:"dry_run"`
	Attempted int  `json:"attempted"`
	Replayed  int  `json:"replayed"`
	Remaining int  `json:"remaining"`
}
