package ingest

// Status is the top-level result of one ingestion attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

// Change classifies an event delivery against the stored record.
type Change string

const (
	// ChangeNew - no record exists for the event RID.
	ChangeNew Change = "new"
	// ChangeUpdated - a record exists with a different fingerprint; the
	// stored record is replaced in place.
	ChangeUpdated Change = "updated"
	// ChangeUnchanged - a record exists with the same fingerprint; the
	// delivery is dropped without a write.
	ChangeUnchanged Change = "unchanged"
)

// Outcome is the structured result returned for every ingestion
// attempt. Errors are resolved into an Outcome at the ingestion
// boundary - they are never thrown across it.
type Outcome struct {
	Status  Status  `json:"status"`
	Message string  `json:"message"`
	Details Details `json:"details"`
}

// Details carries the identifiers relevant to the outcome. EventRID is
// always set; the rest depend on how far the pipeline progressed.
type Details struct {
	EventRID  string    `json:"event_rid"`
	RepoRID   string    `json:"repo_rid,omitempty"`
	CommitSHA string    `json:"commit_sha,omitempty"`
	Change    Change    `json:"change,omitempty"`
	Code      ErrorCode `json:"code,omitempty"`
}

// classify compares a stored fingerprint against an incoming one.
// Absent record means new; equal fingerprints mean unchanged (the
// caller must stop - no write, no side effect); different fingerprints
// mean the record is to be replaced.
func classify(stored string, exists bool, fingerprint string) Change {
	switch {
	case !exists:
		return ChangeNew
	case stored == fingerprint:
		return ChangeUnchanged
	default:
		return ChangeUpdated
	}
}
