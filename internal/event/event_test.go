package event

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decode parses JSON the way the ingestion path does (json.Number for
// numeric fidelity).
func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var payload map[string]any
	require.NoError(t, dec.Decode(&payload))
	return payload
}

func TestNormalize_Webhook(t *testing.T) {
	payload := decode(t, `{
		"repository": {
			"owner": {"login": "acme"},
			"name": "widgets",
			"clone_url": "https://github.com/acme/widgets.git"
		},
		"head_commit": {
			"id": "abc1234",
			"timestamp": "2024-03-01T12:00:00Z",
			"message": "fix: handle empty payloads"
		}
	}`)

	n, err := Normalize(payload, "")
	require.NoError(t, err)
	assert.Equal(t, "acme", n.Owner)
	assert.Equal(t, "widgets", n.Repo)
	assert.Equal(t, "https://github.com/acme/widgets.git", n.RepoURL)
	assert.Equal(t, KindPush, n.Kind) // defaults to push
	assert.Equal(t, "abc1234", n.CommitSHA)
	assert.Equal(t, "2024-03-01T12:00:00Z", n.CommitTimestamp)
	assert.Equal(t, "fix: handle empty payloads", n.CommitMessage)
}

func TestNormalize_Webhook_DeclaredKind(t *testing.T) {
	payload := decode(t, `{
		"event_type": "pull_request",
		"repository": {
			"owner": {"login": "acme"},
			"name": "widgets",
			"clone_url": "https://github.com/acme/widgets.git"
		}
	}`)

	n, err := Normalize(payload, "push")
	require.NoError(t, err)
	assert.Equal(t, KindPullRequest, n.Kind)
	assert.Empty(t, n.CommitSHA)
}

func TestNormalize_Webhook_KindHint(t *testing.T) {
	payload := decode(t, `{
		"repository": {
			"owner": {"login": "acme"},
			"name": "widgets",
			"clone_url": ""
		}
	}`)

	n, err := Normalize(payload, "release")
	require.NoError(t, err)
	assert.Equal(t, KindRelease, n.Kind)
}

func TestNormalize_BackfillRepoDetails(t *testing.T) {
	payload := decode(t, `{
		"event_source_type": "backfill_repo_details",
		"payload": {
			"owner": {"login": "acme"},
			"name": "widgets",
			"clone_url": "https://github.com/acme/widgets.git"
		}
	}`)

	n, err := Normalize(payload, "")
	require.NoError(t, err)
	assert.Equal(t, KindRepository, n.Kind)
	assert.Equal(t, "acme", n.Owner)
	assert.Equal(t, "widgets", n.Repo)
	assert.Empty(t, n.CommitSHA)
}

func TestNormalize_BackfillCommit(t *testing.T) {
	payload := decode(t, `{
		"event_source_type": "backfill_commit",
		"payload": {
			"url": "https://api.example.com/repos/acme/widgets/commits/abc123",
			"sha": "abc123def456",
			"commit": {
				"author": {"date": "2024-02-14T08:30:00Z"},
				"message": "initial import"
			}
		}
	}`)

	n, err := Normalize(payload, "")
	require.NoError(t, err)
	assert.Equal(t, KindCommit, n.Kind)
	assert.Equal(t, "acme", n.Owner)
	assert.Equal(t, "widgets", n.Repo)
	assert.Equal(t, "https://github.com/acme/widgets.git", n.RepoURL)
	assert.Equal(t, "abc123def456", n.CommitSHA)
	assert.Equal(t, "2024-02-14T08:30:00Z", n.CommitTimestamp)
	assert.Equal(t, "initial import", n.CommitMessage)
}

func TestNormalize_BackfillCommit_BadURL(t *testing.T) {
	cases := []string{
		"https://api.example.com/commits/abc123",     // no repos segment
		"https://api.example.com/repos/acme",         // too few segments
		"https://api.example.com/repos//widgets",     // empty owner
		"",                                           // missing entirely
	}
	for _, u := range cases {
		payload := map[string]any{
			"event_source_type": "backfill_commit",
			"payload":           map[string]any{"url": u},
		}
		_, err := Normalize(payload, "")
		require.Error(t, err, "url %q", u)
		var perr *UnparseableCommitURLError
		assert.True(t, errors.As(err, &perr), "url %q should be UnparseableCommitURLError", u)
	}
}

func TestNormalize_WebhookWinsOverBackfill(t *testing.T) {
	// A payload satisfying both the webhook and backfill checks must be
	// classified as a webhook: the priority order is fixed.
	payload := decode(t, `{
		"event_source_type": "backfill_repo_details",
		"payload": {
			"owner": {"login": "other"},
			"name": "other",
			"clone_url": "https://github.com/other/other.git"
		},
		"repository": {
			"owner": {"login": "acme"},
			"name": "widgets",
			"clone_url": "https://github.com/acme/widgets.git"
		}
	}`)

	n, err := Normalize(payload, "")
	require.NoError(t, err)
	assert.Equal(t, "acme", n.Owner)
	assert.Equal(t, KindPush, n.Kind)
}

func TestNormalize_Unrecognized(t *testing.T) {
	cases := []map[string]any{
		{},
		{"zen": "Design for failure."},
		{"repository": "not-an-object"},
		{"repository": map[string]any{"name": "widgets"}},                    // no owner
		{"event_source_type": "backfill_commit"},                             // no nested payload
		{"event_source_type": "backfill_unknown", "payload": map[string]any{}}, // unknown backfill kind
	}
	for i, payload := range cases {
		_, err := Normalize(payload, "")
		assert.ErrorIs(t, err, ErrUnrecognized, "case %d", i)
	}
}
