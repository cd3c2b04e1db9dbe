package index

import (
	"context"
	"database/sql"
	"fmt"
)

// UpsertRepository inserts a repository row or, if it already exists,
// refreshes its URL and last_updated timestamp.
func (s *Store) UpsertRepository(ctx context.Context, repoRID, repoURL string) error {
	if err := upsertRepository(ctx, s.db, repoRID, repoURL); err != nil {
		return fmt.Errorf("upsert repository: %w", err)
	}
	return nil
}

// execer covers both *sql.DB and *sql.Tx so single writes and the
// atomic ingestion path share one implementation.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertRepository(ctx context.Context, db execer, repoRID, repoURL string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO repositories (repo_rid, repo_url)
		VALUES (?, ?)
		ON CONFLICT(repo_rid) DO UPDATE SET
			repo_url = excluded.repo_url,
			last_updated = CURRENT_TIMESTAMP
	`, repoRID, repoURL)
	return err
}

// UpsertEvent inserts an event row or fully replaces the existing row
// with the same event RID. At most one stored record per event RID.
func (s *Store) UpsertEvent(ctx context.Context, rec EventRecord) error {
	if err := upsertEvent(ctx, s.db, rec); err != nil {
		return fmt.Errorf("upsert event: %w", err)
	}
	return nil
}

func upsertEvent(ctx context.Context, db execer, rec EventRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO events
		(event_rid, repo_rid, event_type, timestamp, commit_sha, summary, bundle_rid, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_rid) DO UPDATE SET
			repo_rid = excluded.repo_rid,
			event_type = excluded.event_type,
			timestamp = excluded.timestamp,
			commit_sha = excluded.commit_sha,
			summary = excluded.summary,
			bundle_rid = excluded.bundle_rid,
			content_hash = excluded.content_hash
	`,
		rec.EventRID,
		rec.RepoRID,
		rec.Kind,
		rec.Timestamp,
		nullable(rec.CommitSHA),
		rec.Summary,
		nullable(rec.BundleRID),
		rec.ContentHash,
	)
	return err
}

// IngestAtomic performs one ingestion step's writes - repository upsert
// plus event upsert - in a single transaction, so a failure leaves
// neither half applied.
func (s *Store) IngestAtomic(ctx context.Context, repoRID, repoURL string, rec EventRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ingest: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := upsertRepository(ctx, tx, repoRID, repoURL); err != nil {
		return fmt.Errorf("ingest: upsert repository: %w", err)
	}
	if err := upsertEvent(ctx, tx, rec); err != nil {
		return fmt.Errorf("ingest: upsert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ingest: commit: %w", err)
	}
	return nil
}

// EventFingerprint returns the stored content hash for an event RID.
// The second return is false when no record exists.
func (s *Store) EventFingerprint(ctx context.Context, eventRID string) (string, bool, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `
		SELECT content_hash FROM events WHERE event_rid = ?
	`, eventRID).Scan(&hash)
	switch {
	case err == sql.ErrNoRows:
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("read event fingerprint: %w", err)
	}
	return hash, true, nil
}

// PruneOlderThan removes events older than the given number of days,
// by event timestamp. Repository rows are kept: they remain valuable
// even when their events age out. Returns the number of rows removed.
func (s *Store) PruneOlderThan(ctx context.Context, days int) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM events
		WHERE timestamp < datetime('now', '-' || ? || ' days')
	`, days)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune events: rows affected: %w", err)
	}
	return removed, nil
}

// nullable maps "" to NULL for optional text columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
