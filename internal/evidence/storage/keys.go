package storage

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// Ledger namespaces holding content-addressed entries.
const (
	NamespaceLedger     = "ledger"
	NamespaceDocLedger  = "doc-ledger"
	NamespaceMailLedger = "mail-ledger"
)

// LedgerNamespaces lists every namespace aggregated by the daily rollup, in a fixed order.
var LedgerNamespaces = []string{NamespaceLedger, NamespaceDocLedger, NamespaceMailLedger}

// Fixed prefixes of the object layout.
const (
	PrefixPacks      = "packs"
	PrefixEnriched   = "ledger-enriched"
	PrefixRollups    = "rollups"
	PrefixAnchors    = "onchain/anchors"
	PrefixReceipts   = "onchain/receipts"
	PrefixRequests   = "onchain/requests"
	KeyReceiptsIndex = "onchain/receipts_manifest.json"
	PrefixKeys       = "keys"
	KeyActivePointer = "keys/active.json"
	PrefixKeyRequest = "keys/requests"
	PrefixSnapshots  = "snapshots"
	PrefixPending    = "pending"
	PrefixHealth     = "_health"

	dailyIndexDir = "_index"
	pendingDir    = "pending"
)

// IsLedgerNamespace reports whether ns is one of LedgerNamespaces.
func IsLedgerNamespace(ns string) bool {
	for _, n := range LedgerNamespaces {
		if n == ns {
			return true
		}
	}

	return false
}

// DayPath renders t (in UTC) as yyyy/mm/dd.
func DayPath(t time.Time) string {
	return t.UTC().Format("2006/01/02")
}

// DayPrefix is the listing prefix for one UTC day of a namespace, including the trailing slash.
func DayPrefix(namespace string, day time.Time) string {
	return namespace + "/" + DayPath(day) + "/"
}

// EntryKey is {namespace}/{yyyy}/{mm}/{dd}/{fingerprint}.json.
func EntryKey(namespace string, generatedAt time.Time, fingerprint string) string {
	return DayPrefix(namespace, generatedAt) + fingerprint + ".json"
}

// DailyIndexKey is the advisory per-day index of a namespace.
func DailyIndexKey(namespace string, day time.Time) string {
	return DayPrefix(namespace, day) + dailyIndexDir + "/index.jsonl"
}

// IsEntryKey reports whether key is a ledger entry directly under a day prefix,
// as opposed to an index, a pending object or anything nested deeper.
func IsEntryKey(key string) bool {
	parts := strings.Split(key, "/")
	if len(parts) != 5 || !IsLedgerNamespace(parts[0]) {
		return false
	}
	name := parts[4]
	if strings.HasPrefix(name, "_") || !strings.HasSuffix(name, ".json") {
		return false
	}

	return parts[3] != pendingDir && parts[3] != dailyIndexDir
}

// PackKey is where an archive is stored by its SHA-256.
func PackKey(packsNamespace string, sha256Hex string) string {
	if packsNamespace == "" {
		packsNamespace = PrefixPacks
	}

	return packsNamespace + "/" + sha256Hex + ".zip"
}

// EnrichedKey maps an entry key into the enriched namespace; the original is never overwritten.
func EnrichedKey(entryKey string) string {
	return PrefixEnriched + "/" + entryKey
}

// RollupKeys returns the rollup and manifest keys for a UTC day.
func RollupKeys(day time.Time) (rollupKey string, manifestKey string) {
	base := PrefixRollups + "/" + DayPath(day)
	return base + "/rollup.json", base + "/manifest.json"
}

// AnchorKey is the stored anchor record.
func AnchorKey(id string) string {
	return PrefixAnchors + "/" + id + ".json"
}

// ReceiptKey locates a receipt by its normalized transaction hash.
func ReceiptKey(normalizedTxHash string) string {
	return PrefixReceipts + "/" + normalizedTxHash + ".json"
}

// AnchorRequestKey is the anchor request written by the rollup builder.
func AnchorRequestKey(day time.Time) string {
	return PrefixRequests + "/" + day.UTC().Format("2006-01-02") + ".json"
}

// KeyMaterialKey holds one signing key record.
func KeyMaterialKey(keyID string) string {
	return PrefixKeys + "/" + keyID + ".json"
}

// KeyRequestKey holds one dual-control lifecycle request.
func KeyRequestKey(id string) string {
	return PrefixKeyRequest + "/" + id + ".json"
}

// SnapshotKey sorts lexicographically in generation order.
func SnapshotKey(generatedAt time.Time, snapshotID string) string {
	return fmt.Sprintf("%s/%s_%s.json", PrefixSnapshots, generatedAt.UTC().Format("20060102T150405.000000000Z"), snapshotID)
}

// Base returns the last element of key without its extension.
func Base(key string) string {
	b := path.Base(key)
	return strings.TrimSuffix(b, path.Ext(b))
}
