// Package kv provides the durable key-value collaborator the entity store
// and stats service persist through. Values are JSON-compatible byte blobs
// stored under string keys.
package kv

// Well-known keys in the durable store.
const (
	// KeySessionState holds the full entity-graph snapshot.
	KeySessionState = "sessionState"

	// KeyHistoricalScores holds the per-day prompt score buckets.
	KeyHistoricalScores = "historicalScores"

	// KeySidebarWidth holds the UI sidebar width hint.
	KeySidebarWidth = "sidebarWidth"

	// TailerOffsetPrefix prefixes per-file read offsets for session tailers.
	TailerOffsetPrefix = "tailerOffset:"
)

// KV is the minimal contract consumed by the core. Get reports ok=false
// when the key has never been written.
type KV interface {
	Get(key string) (value []byte, ok bool, err error)
	Set(key string, value []byte) error
}
