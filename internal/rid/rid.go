// Package rid implements the canonical resource identifier (RID) scheme
// for GitHub repositories tracked by the processor node.
//
// A repository RID has the form:
//
//	orn:github.repo:{owner}/{repo}
//
// RIDs are case-sensitive and immutable once minted. The codec is
// lossless: Parse(New(owner, repo)) always recovers the original pair.
package rid

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Prefix is the namespace prefix shared by all repository RIDs.
const Prefix = "orn:github.repo:"

// lockKeySuffix is appended to derived lock keys. It mirrors the bare
// repository directory convention so keys stay recognizable in logs.
const lockKeySuffix = ".git"

// MalformedRIDError reports an identifier string that cannot be decoded.
// It is always reported up to the caller, never silently repaired.
type MalformedRIDError struct {
	Input string
}

func (e *MalformedRIDError) Error() string {
	return fmt.Sprintf("malformed repository RID: %q", e.Input)
}

// RID is a parsed repository identifier. The zero value is invalid;
// construct one with New, Parse, or FromURL.
type RID struct {
	owner string
	name  string
}

// New mints a RID from an owner and repository name.
// It is total for non-empty inputs; no validation failure is possible.
func New(owner, name string) RID {
	return RID{owner: owner, name: name}
}

// Parse decodes a RID string. It fails with *MalformedRIDError if the
// namespace prefix is missing or the remainder does not split into
// exactly two non-empty segments on the first slash.
func Parse(s string) (RID, error) {
	rest, ok := strings.CutPrefix(s, Prefix)
	if !ok {
		return RID{}, &MalformedRIDError{Input: s}
	}
	owner, name, ok := strings.Cut(rest, "/")
	if !ok || owner == "" || name == "" {
		return RID{}, &MalformedRIDError{Input: s}
	}
	return RID{owner: owner, name: name}, nil
}

// FromURL extracts a RID from a github.com URL in any of the usual
// forms (https clone URL with or without a .git suffix, web URL with
// trailing path components).
func FromURL(repoURL string) (RID, error) {
	u, err := url.Parse(repoURL)
	if err != nil {
		return RID{}, fmt.Errorf("parse repository URL %q: %w", repoURL, err)
	}
	if !strings.HasSuffix(u.Host, "github.com") {
		return RID{}, fmt.Errorf("not a GitHub URL: %q", repoURL)
	}

	p := strings.TrimSuffix(strings.TrimRight(u.Path, "/"), ".git")
	var parts []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	if len(parts) < 2 {
		return RID{}, fmt.Errorf("invalid GitHub URL format: %q", repoURL)
	}
	return RID{owner: parts[0], name: parts[1]}, nil
}

// Owner returns the repository owner segment.
func (r RID) Owner() string { return r.owner }

// Name returns the repository name segment.
func (r RID) Name() string { return r.name }

// Slug returns the human-readable "owner/repo" pair.
func (r RID) Slug() string { return r.owner + "/" + r.name }

// String returns the canonical RID string.
func (r RID) String() string { return Prefix + r.owner + "/" + r.name }

// IsZero reports whether the RID is the invalid zero value.
func (r RID) IsZero() bool { return r.owner == "" && r.name == "" }

// LockKey derives the filesystem-safe key used to serialize operations
// on this repository. The slash is replaced with a double underscore
// and a fixed suffix is appended. GitHub owner names cannot contain
// underscores, so the separator cannot be forged by a repo name and two
// distinct RIDs never collide; the same RID always maps to the same key.
//
// The key is passed through path.Clean so that absolute or relative
// spellings of the same key normalize identically before use.
func (r RID) LockKey() string {
	key := r.owner + "__" + r.name + lockKeySuffix
	return path.Clean(key)
}
