package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlockScience/koi-net-github-processor-node/internal/index"
	"github.com/BlockScience/koi-net-github-processor-node/internal/locks"
)

func newTestIngestor(t *testing.T, opts ...Option) (*Ingestor, *index.Store) {
	t.Helper()
	store, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ing := New(store, locks.NewRegistry(), opts...)
	return ing, store
}

func webhookPayload(owner, repo, sha string) map[string]any {
	payload := map[string]any{
		"repository": map[string]any{
			"owner":     map[string]any{"login": owner},
			"name":      repo,
			"clone_url": fmt.Sprintf("https://github.com/%s/%s.git", owner, repo),
		},
	}
	if sha != "" {
		payload["head_commit"] = map[string]any{
			"id":        sha,
			"timestamp": "2024-03-01T12:00:00Z",
			"message":   "commit " + sha,
		}
	}
	return payload
}

func TestIngest_NewEvent(t *testing.T) {
	ing, store := newTestIngestor(t)
	ctx := context.Background()

	out := ing.Ingest(ctx, "orn:github.event:E1", webhookPayload("acme", "widgets", "abc1234"), SourceLocal)

	require.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, ChangeNew, out.Details.Change)
	assert.Equal(t, "orn:github.repo:acme/widgets", out.Details.RepoRID)
	assert.Equal(t, "abc1234", out.Details.CommitSHA)

	events, err := store.ListEvents(ctx, "orn:github.repo:acme/widgets", 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "push", events[0].Kind)
	assert.Equal(t, "Push to acme/widgets: abc1234", events[0].Summary)
	assert.Equal(t, "orn:github.event:E1", events[0].BundleRID)
}

func TestIngest_Idempotent(t *testing.T) {
	ing, store := newTestIngestor(t)
	ctx := context.Background()
	payload := webhookPayload("acme", "widgets", "abc1234")

	first := ing.Ingest(ctx, "orn:github.event:E1", payload, SourceLocal)
	require.Equal(t, StatusSuccess, first.Status)

	second := ing.Ingest(ctx, "orn:github.event:E1", payload, SourceLocal)
	assert.Equal(t, StatusSkipped, second.Status)
	assert.Equal(t, "unchanged", second.Message)
	assert.Equal(t, ChangeUnchanged, second.Details.Change)

	events, err := store.ListEvents(ctx, "orn:github.repo:acme/widgets", 10, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1, "redelivery must not create a second record")
}

func TestIngest_UpdateDetection(t *testing.T) {
	ing, store := newTestIngestor(t)
	ctx := context.Background()

	first := ing.Ingest(ctx, "orn:github.event:E1", webhookPayload("acme", "widgets", "abc1234"), SourceLocal)
	require.Equal(t, StatusSuccess, first.Status)

	second := ing.Ingest(ctx, "orn:github.event:E1", webhookPayload("acme", "widgets", "def5678"), SourceLocal)
	require.Equal(t, StatusSuccess, second.Status)
	assert.Equal(t, ChangeUpdated, second.Details.Change)

	events, err := store.ListEvents(ctx, "orn:github.repo:acme/widgets", 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 1, "update must replace in place")
	assert.Equal(t, "def5678", events[0].CommitSHA)
}

func TestIngest_UnrecognizedSkipsWithoutStorage(t *testing.T) {
	ing, store := newTestIngestor(t)
	ctx := context.Background()

	out := ing.Ingest(ctx, "orn:github.event:E1", map[string]any{"zen": "Keep it simple."}, SourceLocal)

	assert.Equal(t, StatusSkipped, out.Status)
	assert.Equal(t, "unrecognized event shape", out.Message)

	repos, err := store.ListRepositories(ctx)
	require.NoError(t, err)
	assert.Empty(t, repos, "skip path must not touch storage")
}

func TestIngest_UnparseableCommitURL(t *testing.T) {
	ing, store := newTestIngestor(t)
	ctx := context.Background()

	payload := map[string]any{
		"event_source_type": "backfill_commit",
		"payload":           map[string]any{"url": "https://api.example.com/no/structure"},
	}
	out := ing.Ingest(ctx, "orn:github.event:E1", payload, SourceExternal)

	assert.Equal(t, StatusError, out.Status)
	assert.Equal(t, CodeUnparseableCommitURL, out.Details.Code)
	assert.Equal(t, "orn:github.event:E1", out.Details.EventRID)

	repos, err := store.ListRepositories(ctx)
	require.NoError(t, err)
	assert.Empty(t, repos)
}

func TestIngest_BackfillCommit(t *testing.T) {
	ing, store := newTestIngestor(t)
	ctx := context.Background()

	payload := map[string]any{
		"event_source_type": "backfill_commit",
		"payload": map[string]any{
			"url": "https://api.example.com/repos/acme/widgets/commits/abc123",
			"sha": "abc123def",
			"commit": map[string]any{
				"author":  map[string]any{"date": "2024-02-14T08:30:00Z"},
				"message": "initial import",
			},
		},
	}
	out := ing.Ingest(ctx, "orn:github.event:B1", payload, SourceExternal)

	require.Equal(t, StatusSuccess, out.Status)
	events, err := store.ListEvents(ctx, "orn:github.repo:acme/widgets", 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "commit", events[0].Kind)
	assert.Equal(t, "2024-02-14T08:30:00Z", events[0].Timestamp)
}

func TestIngest_SameRepoSerialized(t *testing.T) {
	ing, store := newTestIngestor(t)
	ctx := context.Background()
	payload := webhookPayload("acme", "widgets", "abc1234")

	const deliveries = 8
	outcomes := make([]Outcome, deliveries)

	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = ing.Ingest(ctx, "orn:github.event:E1", payload, SourceLocal)
		}(i)
	}
	wg.Wait()

	// Exactly one delivery wins the write; the rest observe the stored
	// fingerprint under the lock and skip.
	var successes, skips int
	for _, out := range outcomes {
		switch out.Status {
		case StatusSuccess:
			successes++
		case StatusSkipped:
			skips++
		default:
			t.Fatalf("unexpected outcome: %+v", out)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, deliveries-1, skips)

	events, err := store.ListEvents(ctx, "orn:github.repo:acme/widgets", 20, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestIngest_DifferentReposParallel(t *testing.T) {
	store, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer store.Close()

	registry := locks.NewRegistry()
	ing := New(store, registry, WithLockTimeout(2*time.Second))
	ctx := context.Background()

	// Hold widgets' lock; gadgets must still complete.
	release, err := registry.Acquire(ctx, "acme__widgets.git")
	require.NoError(t, err)
	defer release()

	out := ing.Ingest(ctx, "orn:github.event:G1", webhookPayload("acme", "gadgets", "fff0001"), SourceLocal)
	assert.Equal(t, StatusSuccess, out.Status)
}

func TestIngest_LockTimeout(t *testing.T) {
	store, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer store.Close()

	registry := locks.NewRegistry()
	ing := New(store, registry, WithLockTimeout(50*time.Millisecond))
	ctx := context.Background()

	release, err := registry.Acquire(ctx, "acme__widgets.git")
	require.NoError(t, err)
	defer release()

	out := ing.Ingest(ctx, "orn:github.event:E1", webhookPayload("acme", "widgets", "abc1234"), SourceLocal)
	assert.Equal(t, StatusError, out.Status)
	assert.Equal(t, CodeLockTimeout, out.Details.Code)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ChangeNew, classify("", false, "a"))
	assert.Equal(t, ChangeUnchanged, classify("a", true, "a"))
	assert.Equal(t, ChangeUpdated, classify("a", true, "b"))
}
