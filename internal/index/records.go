package index

import "time"

// RepositoryRecord is one tracked repository. Created implicitly on the
// first event referencing it or by explicit registration; refreshed on
// every subsequent event; never deleted by the ingestion pipeline.
type RepositoryRecord struct {
	RID          string
	URL          string
	FirstIndexed time.Time
	LastUpdated  time.Time

	// EventCount is populated by ListRepositories for display.
	EventCount int
}

// EventRecord is one distinct event, keyed by its event RID.
// Timestamp is the event's own timestamp as delivered (ISO 8601 text),
// not the ingestion time.
type EventRecord struct {
	EventRID  string
	RepoRID   string
	Kind      string
	Timestamp string
	CommitSHA string // empty when the event carries no commit reference
	Summary   string
	BundleRID string // reference back to the source bundle, may be empty

	// ContentHash is the bundle fingerprint used for redelivery change
	// detection. It is storage-internal: reads expose it only to the
	// deduplication path, never to presentation.
	ContentHash string
}
