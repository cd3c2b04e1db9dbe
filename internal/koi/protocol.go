// Package koi reacts to peer discovery on the event network: it
// proposes a subscription edge to newly seen event producers and
// replays their historical events through the ingestion pipeline.
package koi

import "context"

// KindGitHubEvent is the event kind this node monitors and subscribes to.
const KindGitHubEvent = "GitHubEvent"

// Edge statuses observed via network notifications. Approval is
// observed, never caused, by this subsystem.
const (
	EdgeStatusProposed = "proposed"
	EdgeStatusApproved = "approved"
)

// NodeProfile is a discovered peer's identity and advertised
// capability set.
type NodeProfile struct {
	RID      string
	Provides []string
}

// ProvidesKind reports whether the peer advertises production of the
// given event kind.
func (p NodeProfile) ProvidesKind(kind string) bool {
	for _, k := range p.Provides {
		if k == kind {
			return true
		}
	}
	return false
}

// Bundle is the full content associated with an event RID, as opposed
// to its lightweight manifest.
type Bundle struct {
	EventRID string
	Payload  map[string]any
}

// EdgeUpdate is a subscription-state change notification.
type EdgeUpdate struct {
	SourceRID string
	TargetRID string
	Kind      string
	Status    string
}

// Protocol is the narrow contract this subsystem consumes from the
// peer-to-peer transport. Message delivery, retries, and signing live
// below this interface.
type Protocol interface {
	// FetchEventRIDs returns the peer's full historical list of event
	// identifiers for a kind.
	FetchEventRIDs(ctx context.Context, peerRID, kind string) ([]string, error)

	// FetchBundles returns the bundles for the given event identifiers.
	// Peers may return fewer bundles than asked for.
	FetchBundles(ctx context.Context, peerRID string, eventRIDs []string) ([]Bundle, error)

	// ProposeSubscription proposes an edge from source to target for a
	// kind. Fire-and-forget: approval arrives later as an EdgeUpdate.
	ProposeSubscription(ctx context.Context, sourceRID, targetRID, kind string) error
}
