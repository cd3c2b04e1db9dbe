package event

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BlockScience/koi-net-github-processor-node/internal/rid"
)

// Summarize generates the human-readable one-line summary stored with
// an event record. The payload supplies optional detail (PR and issue
// numbers, actions, release tags) when present.
func Summarize(kind string, repo rid.RID, commitSHA string, payload map[string]any) string {
	slug := repo.Slug()

	switch kind {
	case KindPush:
		if commitSHA != "" {
			return fmt.Sprintf("Push to %s: %s", slug, shortSHA(commitSHA))
		}
		return fmt.Sprintf("Push to %s", slug)
	case KindPullRequest:
		action := stringField(payload, "action", "updated")
		number := numberField(payload, "number", "unknown")
		return fmt.Sprintf("Pull request #%s %s in %s", number, action, slug)
	case KindIssues:
		action := stringField(payload, "action", "updated")
		number := numberField(payload, "number", "unknown")
		return fmt.Sprintf("Issue #%s %s in %s", number, action, slug)
	case KindRelease:
		tag := stringField(payload, "tag_name", "unknown")
		return fmt.Sprintf("Release %s created in %s", tag, slug)
	default:
		return fmt.Sprintf("%s event in %s", titleKind(kind), slug)
	}
}

// shortSHA abbreviates a commit SHA for display.
func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

// titleKind turns "repo_details" into "Repo Details".
func titleKind(kind string) string {
	words := strings.Split(kind, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func stringField(payload map[string]any, key, fallback string) string {
	if s, ok := asString(payload[key]); ok && s != "" {
		return s
	}
	return fallback
}

// numberField renders an integer-ish payload field. Webhook JSON
// numbers arrive as json.Number or float64 depending on the decoder.
func numberField(payload map[string]any, key, fallback string) string {
	switch v := payload[key].(type) {
	case json.Number:
		return v.String()
	case float64:
		return fmt.Sprintf("%d", int64(v))
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case string:
		if v != "" {
			return v
		}
	}
	return fallback
}
