package ingest

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes ingestion errors.
type ErrorCode string

const (
	// CodeMalformedRID indicates a repository identifier that could not
	// be decoded.
	CodeMalformedRID ErrorCode = "MALFORMED_RID"

	// CodeUnparseableCommitURL indicates a backfill-commit payload whose
	// URL lacks the expected path structure - an upstream contract
	// violation.
	CodeUnparseableCommitURL ErrorCode = "UNPARSEABLE_COMMIT_URL"

	// CodeStorageFailure indicates a failure from the index store.
	CodeStorageFailure ErrorCode = "STORAGE_FAILURE"

	// CodeLockTimeout indicates the per-repository lock could not be
	// acquired within the configured bound.
	CodeLockTimeout ErrorCode = "LOCK_TIMEOUT"

	// CodeFingerprintFailure indicates the payload could not be
	// canonically serialized for fingerprinting.
	CodeFingerprintFailure ErrorCode = "FINGERPRINT_FAILURE"

	// CodeNormalizeFailure indicates an unexpected normalization error
	// that is neither an unrecognized shape nor a bad commit URL.
	CodeNormalizeFailure ErrorCode = "NORMALIZE_FAILURE"
)

// IngestError is a categorized failure inside one ingestion step.
// It never escapes Ingest: the orchestrator resolves it into an error
// Outcome carrying the failing event RID.
type IngestError struct {
	Code     ErrorCode
	EventRID string
	Err      error
}

func (e *IngestError) Error() string {
	if e.EventRID != "" {
		return fmt.Sprintf("%s: %v (event=%s)", e.Code, e.Err, e.EventRID)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// CodeOf extracts the error code, or "" for uncategorized errors.
func CodeOf(err error) ErrorCode {
	var ie *IngestError
	if errors.As(err, &ie) {
		return ie.Code
	}
	return ""
}
