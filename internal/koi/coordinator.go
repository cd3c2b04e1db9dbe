package koi

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BlockScience/koi-net-github-processor-node/internal/ingest"
)

// Ingestor is the ingestion entry point backfilled bundles are fed
// into, exactly as if they had arrived via live delivery.
type Ingestor interface {
	Ingest(ctx context.Context, eventRID string, payload map[string]any, source ingest.Source) ingest.Outcome
}

// DefaultFetchTimeout bounds each peer fetch so one unresponsive peer
// cannot stall discovery processing for the others.
const DefaultFetchTimeout = 30 * time.Second

// defaultIngestWorkers bounds the backfill fan-out. Per-repository
// locks already serialize same-repo bundles, so a small pool only
// helps distinct repositories.
const defaultIngestWorkers = 4

// Coordinator reacts to peer discovery and edge notifications.
//
// On discovery of a peer that produces the monitored kind it proposes a
// subscription edge and then performs a cold-start catch-up: fetch the
// peer's historical event RIDs, fetch their bundles, and replay each
// through the ingestion pipeline tagged as externally sourced.
//
// The catch-up is best-effort, not transactional: any per-item failure
// is logged and skipped, never propagated upward.
type Coordinator struct {
	selfRID  string
	kind     string
	protocol Protocol
	ingestor Ingestor
	logger   *slog.Logger

	fetchTimeout  time.Duration
	ingestWorkers int

	mu     sync.Mutex
	active map[string]bool // peer RID -> approved subscription observed
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithFetchTimeout overrides the per-fetch time box.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.fetchTimeout = d }
}

// WithIngestWorkers overrides the backfill ingestion concurrency.
func WithIngestWorkers(n int) Option {
	return func(c *Coordinator) { c.ingestWorkers = n }
}

// NewCoordinator creates a Coordinator for the given local node
// identity, monitoring the given event kind.
func NewCoordinator(selfRID, kind string, protocol Protocol, ingestor Ingestor, opts ...Option) *Coordinator {
	c := &Coordinator{
		selfRID:       selfRID,
		kind:          kind,
		protocol:      protocol,
		ingestor:      ingestor,
		logger:        slog.Default(),
		fetchTimeout:  DefaultFetchTimeout,
		ingestWorkers: defaultIngestWorkers,
		active:        make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandlePeerDiscovered processes a newly discovered peer. Peers that do
// not advertise the monitored kind are ignored.
func (c *Coordinator) HandlePeerDiscovered(ctx context.Context, profile NodeProfile) {
	if !profile.ProvidesKind(c.kind) {
		return
	}

	c.logger.Info("event producer discovered, requesting subscription",
		"peer", profile.RID, "kind", c.kind)

	// Fire-and-forget: approval or rejection is observed later via
	// HandleEdgeUpdate, not awaited here.
	if err := c.protocol.ProposeSubscription(ctx, c.selfRID, profile.RID, c.kind); err != nil {
		c.logger.Error("subscription proposal failed",
			"peer", profile.RID, "err", err)
	}

	c.backfill(ctx, profile.RID)
}

// backfill fetches and replays the peer's historical events.
func (c *Coordinator) backfill(ctx context.Context, peerRID string) {
	eventRIDs, err := c.fetchEventRIDs(ctx, peerRID)
	if err != nil {
		c.logger.Error("fetching historical event RIDs failed",
			"peer", peerRID, "err", err)
		return
	}
	if len(eventRIDs) == 0 {
		c.logger.Info("peer has no historical events", "peer", peerRID)
		return
	}

	c.logger.Info("fetching historical bundles",
		"peer", peerRID, "events", len(eventRIDs))

	bundles, err := c.fetchBundles(ctx, peerRID, eventRIDs)
	if err != nil {
		c.logger.Error("fetching historical bundles failed",
			"peer", peerRID, "err", err)
		return
	}

	// Independent attempts: a failed or skipped bundle never
	// short-circuits the rest of the catch-up.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.ingestWorkers)
	for _, bundle := range bundles {
		g.Go(func() error {
			out := c.ingestor.Ingest(gctx, bundle.EventRID, bundle.Payload, ingest.SourceExternal)
			if out.Status == ingest.StatusError {
				c.logger.Error("backfill bundle ingestion failed",
					"peer", peerRID, "event", bundle.EventRID, "message", out.Message)
			}
			return nil
		})
	}
	g.Wait() // workers never return errors; failures are logged above
}

func (c *Coordinator) fetchEventRIDs(ctx context.Context, peerRID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()
	return c.protocol.FetchEventRIDs(ctx, peerRID, c.kind)
}

func (c *Coordinator) fetchBundles(ctx context.Context, peerRID string, eventRIDs []string) ([]Bundle, error) {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()
	return c.protocol.FetchBundles(ctx, peerRID, eventRIDs)
}

// HandleEdgeUpdate processes a subscription-state notification. When a
// peer approves this node's own proposal, the subscription is recorded
// as active; nothing else is required of this subsystem.
//
// Backfill is deliberately not re-triggered on approval: discovery-time
// catch-up already ran, and discovery only acts on peers whose
// capability advertisement already includes the monitored kind.
func (c *Coordinator) HandleEdgeUpdate(_ context.Context, update EdgeUpdate) {
	if update.TargetRID != c.selfRID || update.Status != EdgeStatusApproved {
		return
	}

	c.mu.Lock()
	c.active[update.SourceRID] = true
	c.mu.Unlock()

	c.logger.Info("subscription approved by peer",
		"peer", update.SourceRID, "kind", update.Kind)
}

// SubscriptionActive reports whether an approved subscription from the
// given peer has been observed.
func (c *Coordinator) SubscriptionActive(peerRID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active[peerRID]
}
