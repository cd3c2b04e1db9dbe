// Package event normalizes heterogeneous GitHub event payloads into one
// canonical form and fingerprints them for change detection.
//
// Three payload shapes are recognized, checked in a fixed priority
// order (a loose payload could satisfy more than one check):
//
//  1. Webhook: top-level "repository" object with owner.login, name,
//     clone_url; optional "head_commit" carries the commit reference.
//  2. Repo-details backfill: event_source_type == "backfill_repo_details"
//     with the same repository fields nested under "payload".
//  3. Commit backfill: event_source_type == "backfill_commit"; owner and
//     repo are recovered from the commit API URL.
//
// Anything else is reported as unrecognized and skipped upstream.
package event

import (
	"errors"
	"fmt"
	"strings"
)

// Event kinds produced by normalization. Webhook deliveries keep their
// declared kind (push, pull_request, issues, release, ...); backfill
// shapes map onto fixed kinds.
const (
	KindPush        = "push"
	KindPullRequest = "pull_request"
	KindIssues      = "issues"
	KindRelease     = "release"
	KindRepository  = "repository" // repo-details backfill
	KindCommit      = "commit"     // commit backfill
)

// ErrUnrecognized reports a payload matching none of the known shapes.
// It is an expected occurrence for irrelevant traffic, not a failure:
// callers classify it as a skip, never as an error.
var ErrUnrecognized = errors.New("unrecognized event shape")

// UnparseableCommitURLError reports a backfill-commit payload whose URL
// lacks the expected /repos/{owner}/{repo}/ structure. This indicates
// an upstream contract violation and is reported as an error.
type UnparseableCommitURLError struct {
	URL string
}

func (e *UnparseableCommitURLError) Error() string {
	return fmt.Sprintf("cannot parse owner/repo from commit URL: %q", e.URL)
}

// Normalized is the canonical field set extracted from a payload.
type Normalized struct {
	Owner   string
	Repo    string
	RepoURL string
	Kind    string

	// Commit reference, present only when the payload carries one.
	CommitSHA       string
	CommitTimestamp string
	CommitMessage   string
}

// Normalize classifies a raw payload and extracts the canonical fields.
// kindHint is the delivery's declared event kind, used for webhook
// payloads when the payload itself does not name one.
//
// Pure and side-effect-free; never touches storage.
func Normalize(payload map[string]any, kindHint string) (Normalized, error) {
	if repoObj, ok := asObject(payload["repository"]); ok {
		return normalizeWebhook(payload, repoObj, kindHint)
	}

	sourceType, _ := asString(payload["event_source_type"])
	nested, hasNested := asObject(payload["payload"])
	if sourceType != "" && hasNested {
		switch sourceType {
		case "backfill_repo_details":
			return normalizeRepoDetails(nested)
		case "backfill_commit":
			return normalizeBackfillCommit(nested)
		}
	}

	return Normalized{}, ErrUnrecognized
}

// normalizeWebhook handles the standard webhook shape.
func normalizeWebhook(payload, repoObj map[string]any, kindHint string) (Normalized, error) {
	owner, repoName, cloneURL, err := repositoryFields(repoObj)
	if err != nil {
		return Normalized{}, err
	}

	kind := kindHint
	if declared, ok := asString(payload["event_type"]); ok && declared != "" {
		kind = declared
	}
	if kind == "" {
		kind = KindPush
	}

	n := Normalized{
		Owner:   owner,
		Repo:    repoName,
		RepoURL: cloneURL,
		Kind:    kind,
	}
	if head, ok := asObject(payload["head_commit"]); ok {
		n.CommitSHA, _ = asString(head["id"])
		n.CommitTimestamp, _ = asString(head["timestamp"])
		n.CommitMessage, _ = asString(head["message"])
	}
	return n, nil
}

// normalizeRepoDetails handles the backfill_repo_details shape.
func normalizeRepoDetails(nested map[string]any) (Normalized, error) {
	owner, repoName, cloneURL, err := repositoryFields(nested)
	if err != nil {
		return Normalized{}, err
	}
	return Normalized{
		Owner:   owner,
		Repo:    repoName,
		RepoURL: cloneURL,
		Kind:    KindRepository,
	}, nil
}

// normalizeBackfillCommit handles the backfill_commit shape. The owner
// and repo come from the commit API URL: the segment after "repos" is
// the owner, the one after that the repo.
func normalizeBackfillCommit(nested map[string]any) (Normalized, error) {
	commitURL, _ := asString(nested["url"])
	owner, repoName, err := parseCommitURL(commitURL)
	if err != nil {
		return Normalized{}, err
	}

	n := Normalized{
		Owner:   owner,
		Repo:    repoName,
		RepoURL: fmt.Sprintf("https://github.com/%s/%s.git", owner, repoName),
		Kind:    KindCommit,
	}
	n.CommitSHA, _ = asString(nested["sha"])
	if commit, ok := asObject(nested["commit"]); ok {
		n.CommitMessage, _ = asString(commit["message"])
		if author, ok := asObject(commit["author"]); ok {
			n.CommitTimestamp, _ = asString(author["date"])
		}
	}
	return n, nil
}

// parseCommitURL locates the "repos" path segment and takes the next
// two segments as owner and repo.
func parseCommitURL(commitURL string) (owner, repoName string, err error) {
	parts := strings.Split(commitURL, "/")
	for i, part := range parts {
		if part != "repos" {
			continue
		}
		if i+2 >= len(parts) || parts[i+1] == "" || parts[i+2] == "" {
			return "", "", &UnparseableCommitURLError{URL: commitURL}
		}
		return parts[i+1], parts[i+2], nil
	}
	return "", "", &UnparseableCommitURLError{URL: commitURL}
}

// repositoryFields extracts owner.login, name, and clone_url from a
// repository object. Missing fields make the shape unrecognizable.
func repositoryFields(repoObj map[string]any) (owner, name, cloneURL string, err error) {
	ownerObj, ok := asObject(repoObj["owner"])
	if !ok {
		return "", "", "", ErrUnrecognized
	}
	owner, ok = asString(ownerObj["login"])
	if !ok || owner == "" {
		return "", "", "", ErrUnrecognized
	}
	name, ok = asString(repoObj["name"])
	if !ok || name == "" {
		return "", "", "", ErrUnrecognized
	}
	cloneURL, _ = asString(repoObj["clone_url"])
	return owner, name, cloneURL, nil
}

func asObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}
