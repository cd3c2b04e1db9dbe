package index

import (
	"context"
	"database/sql"
	"fmt"
)

// ListRepositories returns all tracked repositories ordered by
// last_updated descending, each with its event count.
//
// Returns an empty slice (not nil) when nothing is tracked.
func (s *Store) ListRepositories(ctx context.Context) ([]RepositoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.repo_rid, r.repo_url, r.first_indexed, r.last_updated,
		       COUNT(e.event_rid)
		FROM repositories r
		LEFT JOIN events e ON e.repo_rid = r.repo_rid
		GROUP BY r.repo_rid
		ORDER BY r.last_updated DESC, r.repo_rid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query repositories: %w", err)
	}
	defer rows.Close()

	repos := []RepositoryRecord{}
	for rows.Next() {
		var rec RepositoryRecord
		if err := rows.Scan(&rec.RID, &rec.URL, &rec.FirstIndexed, &rec.LastUpdated, &rec.EventCount); err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		repos = append(repos, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate repositories: %w", err)
	}

	return repos, nil
}

// ListEvents returns events for a repository ordered by timestamp
// descending, with limit/offset paging.
func (s *Store) ListEvents(ctx context.Context, repoRID string, limit, offset int) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_rid, repo_rid, event_type, timestamp, commit_sha, summary, bundle_rid
		FROM events
		WHERE repo_rid = ?
		ORDER BY timestamp DESC, event_rid ASC
		LIMIT ? OFFSET ?
	`, repoRID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []EventRecord{}
	for rows.Next() {
		rec, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

// GetEvent returns a single event by its RID.
// The second return is false when no record exists.
func (s *Store) GetEvent(ctx context.Context, eventRID string) (EventRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT event_rid, repo_rid, event_type, timestamp, commit_sha, summary, bundle_rid
		FROM events
		WHERE event_rid = ?
	`, eventRID)

	rec, err := scanEvent(row)
	switch {
	case err == sql.ErrNoRows:
		return EventRecord{}, false, nil
	case err != nil:
		return EventRecord{}, false, err
	}
	return rec, true, nil
}

// KindCount is one event-kind bucket in a store summary.
type KindCount struct {
	Kind  string
	Count int
}

// StoreSummary aggregates the store's contents for the summary CLI.
type StoreSummary struct {
	Repositories    int
	Events          int
	ByKind          []KindCount // ordered by count descending
	LatestTimestamp string      // empty when the store has no events
	LatestKind      string
}

// Summary computes totals, per-kind counts, and the most recent event.
func (s *Store) Summary(ctx context.Context) (StoreSummary, error) {
	var sum StoreSummary

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM repositories`).Scan(&sum.Repositories); err != nil {
		return StoreSummary{}, fmt.Errorf("count repositories: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events`).Scan(&sum.Events); err != nil {
		return StoreSummary{}, fmt.Errorf("count events: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_type, COUNT(*) AS n
		FROM events
		GROUP BY event_type
		ORDER BY n DESC, event_type ASC
	`)
	if err != nil {
		return StoreSummary{}, fmt.Errorf("count by kind: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kc KindCount
		if err := rows.Scan(&kc.Kind, &kc.Count); err != nil {
			return StoreSummary{}, fmt.Errorf("scan kind count: %w", err)
		}
		sum.ByKind = append(sum.ByKind, kc)
	}
	if err := rows.Err(); err != nil {
		return StoreSummary{}, fmt.Errorf("iterate kind counts: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT timestamp, event_type
		FROM events
		ORDER BY timestamp DESC
		LIMIT 1
	`).Scan(&sum.LatestTimestamp, &sum.LatestKind)
	if err != nil && err != sql.ErrNoRows {
		return StoreSummary{}, fmt.Errorf("latest event: %w", err)
	}

	return sum, nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (EventRecord, error) {
	var rec EventRecord
	var commitSHA, bundleRID sql.NullString
	err := row.Scan(
		&rec.EventRID,
		&rec.RepoRID,
		&rec.Kind,
		&rec.Timestamp,
		&commitSHA,
		&rec.Summary,
		&bundleRID,
	)
	if err == sql.ErrNoRows {
		return EventRecord{}, err
	}
	if err != nil {
		return EventRecord{}, fmt.Errorf("scan event: %w", err)
	}
	rec.CommitSHA = commitSHA.String
	rec.BundleRID = bundleRID.String
	return rec, nil
}
