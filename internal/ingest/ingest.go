// Package ingest is the ingestion orchestrator: it normalizes a raw
// event payload, classifies it against the stored fingerprint, and
// writes through to the index store under the repository's lock.
//
// Pipeline per delivery:
//
//	normalize -> (skip fast-path) -> derive RID + lock key ->
//	under per-repo lock: classify -> upsert repository + event atomically
//
// Every failure is resolved into a structured Outcome; nothing escapes
// the Ingest boundary and the lock is released on every exit path.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BlockScience/koi-net-github-processor-node/internal/event"
	"github.com/BlockScience/koi-net-github-processor-node/internal/index"
	"github.com/BlockScience/koi-net-github-processor-node/internal/locks"
	"github.com/BlockScience/koi-net-github-processor-node/internal/rid"
)

// Source tags where a delivery came from.
type Source string

const (
	// SourceLocal - delivered by a sender directly to this node.
	SourceLocal Source = "local"
	// SourceExternal - replayed from a peer during backfill.
	SourceExternal Source = "external"
)

// DefaultLockTimeout bounds how long one ingestion waits for its
// repository lock before giving up with a LOCK_TIMEOUT outcome.
const DefaultLockTimeout = 30 * time.Second

// Ingestor composes the normalizer, deduplicator, lock registry, and
// index store into the single ingestion entry point.
type Ingestor struct {
	store       *index.Store
	locks       *locks.Registry
	logger      *slog.Logger
	lockTimeout time.Duration
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(ing *Ingestor) { ing.logger = logger }
}

// WithLockTimeout overrides the per-repository lock acquisition bound.
func WithLockTimeout(d time.Duration) Option {
	return func(ing *Ingestor) { ing.lockTimeout = d }
}

// New creates an Ingestor backed by the given store and lock registry.
func New(store *index.Store, registry *locks.Registry, opts ...Option) *Ingestor {
	ing := &Ingestor{
		store:       store,
		locks:       registry,
		logger:      slog.Default(),
		lockTimeout: DefaultLockTimeout,
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// Ingest processes one event delivery and reports a structured outcome.
// eventRID is the transport-supplied globally unique event identifier;
// payload is the decoded bundle contents.
//
// Redelivery semantics: an identical payload for a known event RID is
// dropped (skipped/unchanged); a changed payload replaces the stored
// record in place and is reported as an update, not a new event.
func (ing *Ingestor) Ingest(ctx context.Context, eventRID string, payload map[string]any, source Source) Outcome {
	n, err := event.Normalize(payload, "")
	if err != nil {
		return ing.resolveNormalizeError(eventRID, err)
	}

	repo := rid.New(n.Owner, n.Repo)
	fingerprint, err := event.Fingerprint(payload)
	if err != nil {
		return ing.errorOutcome(&IngestError{Code: CodeFingerprintFailure, EventRID: eventRID, Err: err}, repo)
	}

	lockCtx, cancel := context.WithTimeout(ctx, ing.lockTimeout)
	defer cancel()

	var out Outcome
	err = ing.locks.Do(lockCtx, repo.LockKey(), func(ctx context.Context) error {
		var opErr error
		out, opErr = ing.ingestLocked(ctx, eventRID, payload, n, repo, fingerprint)
		return opErr
	})
	if err != nil {
		var timeout *locks.AcquireTimeoutError
		if errors.As(err, &timeout) {
			return ing.errorOutcome(&IngestError{Code: CodeLockTimeout, EventRID: eventRID, Err: err}, repo)
		}
		return ing.errorOutcome(&IngestError{Code: CodeStorageFailure, EventRID: eventRID, Err: err}, repo)
	}

	ing.logger.Info("event ingested",
		"event", eventRID,
		"repo", repo.String(),
		"status", out.Status,
		"change", out.Details.Change,
		"source", source)
	return out
}

// ingestLocked runs the storage half of the pipeline while holding the
// repository lock: classification re-reads the latest committed state,
// and the repository + event writes commit as one transaction.
func (ing *Ingestor) ingestLocked(
	ctx context.Context,
	eventRID string,
	payload map[string]any,
	n event.Normalized,
	repo rid.RID,
	fingerprint string,
) (Outcome, error) {
	stored, exists, err := ing.store.EventFingerprint(ctx, eventRID)
	if err != nil {
		return Outcome{}, err
	}

	change := classify(stored, exists, fingerprint)
	if change == ChangeUnchanged {
		ing.logger.Info("event unchanged, skipping",
			"event", eventRID, "repo", repo.String())
		return Outcome{
			Status:  StatusSkipped,
			Message: "unchanged",
			Details: Details{
				EventRID:  eventRID,
				RepoRID:   repo.String(),
				CommitSHA: n.CommitSHA,
				Change:    ChangeUnchanged,
			},
		}, nil
	}

	rec := index.EventRecord{
		EventRID:    eventRID,
		RepoRID:     repo.String(),
		Kind:        n.Kind,
		Timestamp:   n.CommitTimestamp,
		CommitSHA:   n.CommitSHA,
		Summary:     event.Summarize(n.Kind, repo, n.CommitSHA, payload),
		BundleRID:   eventRID,
		ContentHash: fingerprint,
	}

	if err := ing.store.IngestAtomic(ctx, repo.String(), n.RepoURL, rec); err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Status:  StatusSuccess,
		Message: "event metadata stored",
		Details: Details{
			EventRID:  eventRID,
			RepoRID:   repo.String(),
			CommitSHA: n.CommitSHA,
			Change:    change,
		},
	}, nil
}

// resolveNormalizeError maps normalization failures onto outcomes:
// unrecognized shapes are expected traffic and skip; a commit URL that
// violates the backfill contract is an error.
func (ing *Ingestor) resolveNormalizeError(eventRID string, err error) Outcome {
	if errors.Is(err, event.ErrUnrecognized) {
		ing.logger.Info("skipping unrecognized event shape", "event", eventRID)
		return Outcome{
			Status:  StatusSkipped,
			Message: "unrecognized event shape",
			Details: Details{EventRID: eventRID},
		}
	}

	var urlErr *event.UnparseableCommitURLError
	if errors.As(err, &urlErr) {
		return ing.errorOutcome(&IngestError{Code: CodeUnparseableCommitURL, EventRID: eventRID, Err: err}, rid.RID{})
	}
	return ing.errorOutcome(&IngestError{Code: CodeNormalizeFailure, EventRID: eventRID, Err: fmt.Errorf("normalize: %w", err)}, rid.RID{})
}

// errorOutcome logs a categorized failure and converts it to an error
// Outcome. The raw error text stays in the log; the outcome carries a
// stable message and code.
func (ing *Ingestor) errorOutcome(ierr *IngestError, repo rid.RID) Outcome {
	ing.logger.Error("event ingestion failed",
		"event", ierr.EventRID,
		"code", ierr.Code,
		"err", ierr.Err)

	d := Details{EventRID: ierr.EventRID, Code: ierr.Code}
	if !repo.IsZero() {
		d.RepoRID = repo.String()
	}
	return Outcome{
		Status:  StatusError,
		Message: string(ierr.Code),
		Details: d,
	}
}
