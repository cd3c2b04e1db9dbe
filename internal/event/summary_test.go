package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BlockScience/koi-net-github-processor-node/internal/rid"
)

func TestSummarize(t *testing.T) {
	repo := rid.New("acme", "widgets")

	cases := []struct {
		name    string
		kind    string
		sha     string
		payload map[string]any
		want    string
	}{
		{
			name: "push with commit",
			kind: KindPush,
			sha:  "abc1234def",
			want: "Push to acme/widgets: abc1234",
		},
		{
			name: "push without commit",
			kind: KindPush,
			want: "Push to acme/widgets",
		},
		{
			name:    "pull request",
			kind:    KindPullRequest,
			payload: map[string]any{"action": "opened", "number": json.Number("42")},
			want:    "Pull request #42 opened in acme/widgets",
		},
		{
			name:    "pull request missing details",
			kind:    KindPullRequest,
			payload: map[string]any{},
			want:    "Pull request #unknown updated in acme/widgets",
		},
		{
			name:    "issue",
			kind:    KindIssues,
			payload: map[string]any{"action": "closed", "number": float64(7)},
			want:    "Issue #7 closed in acme/widgets",
		},
		{
			name:    "release",
			kind:    KindRelease,
			payload: map[string]any{"tag_name": "v1.2.0"},
			want:    "Release v1.2.0 created in acme/widgets",
		},
		{
			name: "generic kind",
			kind: "workflow_run",
			want: "Workflow Run event in acme/widgets",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Summarize(tc.kind, repo, tc.sha, tc.payload))
		})
	}
}
