package ledger

import (
	"time"
)

// Entry is the immutable, content-addressed record of one evidence-producing action.
type Entry struct {
	GeneratedAt       time.Time      `json:"generated_at"`
	FingerprintSHA256 string         `json:"fingerprint_sha256,omitempty"`
	Kind              string         `json:"kind"`
	Result            string         `json:"result,omitempty"`
	Actor             string         `json:"actor,omitempty"`
	Subject           string         `json:"subject,omitempty"`
	ChangeHash        string         `json:"change_hash,omitempty"`
	Pack              *Pack          `json:"pack,omitempty"`
	PackObject        *PackObject    `json:"pack_object,omitempty"`
	Signature         *SignatureRef  `json:"signature,omitempty"`
	Details           map[string]any `json:"details,omitempty"`
}

// Pack describes the evidence archive an entry refers to.
type Pack struct {
	Name   string `json:"name,omitempty"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size,omitempty"`
}

// PackObject is where the archive was uploaded.
type PackObject struct {
	Key    string `json:"key"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// SignatureRef names the key that signed the evidence behind an entry.
type SignatureRef struct {
	KeyID    string    `json:"key_id"`
	SignedAt time.Time `json:"signed_at"`
}

// Archive is an optional companion archive uploaded together with an entry.
type Archive struct {
	Name string
	Data []byte
}

// PublishResult reports where an entry landed.
type PublishResult struct {
	Namespace    string `json:"namespace"`
	Key          string `json:"key"`
	Fingerprint  string `json:"fingerprint_sha256"`
	PackKey      string `json:"pack_key,omitempty"`
	IndexUpdated bool   `json:"index_updated"`
	DeadLettered bool   `json:"dead_lettered"`
}

// IndexLine is one line of the advisory per-day index.
type IndexLine struct {
	Key         string    `json:"key"`
	Fingerprint string    `json:"fingerprint_sha256"`
	Kind        string    `json:"kind"`
	GeneratedAt time.Time `json:"generated_at"`
}
