// Package server exposes the processor node's HTTP surface: a small
// read API over the index store and the network endpoint that receives
// event broadcasts.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/BlockScience/koi-net-github-processor-node/internal/index"
	"github.com/BlockScience/koi-net-github-processor-node/internal/ingest"
	"github.com/BlockScience/koi-net-github-processor-node/internal/rid"
)

// Ingestor is the ingestion entry point broadcasts are fed into.
type Ingestor interface {
	Ingest(ctx context.Context, eventRID string, payload map[string]any, source ingest.Source) ingest.Outcome
}

// Server wires the HTTP handlers to the store and the ingestor.
type Server struct {
	nodeName string
	dbPath   string
	store    *index.Store
	ingestor Ingestor
	logger   *slog.Logger
}

// New creates a Server.
func New(nodeName, dbPath string, store *index.Store, ingestor Ingestor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		nodeName: nodeName,
		dbPath:   dbPath,
		store:    store,
		ingestor: ingestor,
		logger:   logger,
	}
}

// Handler returns the routed http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/processor/github/status", s.handleStatus)
	mux.HandleFunc("GET /api/processor/github/repositories", s.handleListRepositories)
	mux.HandleFunc("GET /api/processor/github/repositories/{owner}/{repo}/events", s.handleListEvents)
	mux.HandleFunc("POST /koi-net/events/broadcast", s.handleBroadcast)
	return mux
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	s.logger.Info("http server listening", "addr", addr)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// statusResponse is the general status envelope.
type statusResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status:  "active",
		Message: "GitHub processor node is running",
		Details: map[string]any{
			"node_name": s.nodeName,
			"db_path":   s.dbPath,
		},
	})
}

// repositoryInfo is the wire form of a repository record.
type repositoryInfo struct {
	RepoRID      string    `json:"repo_rid"`
	RepoURL      string    `json:"repo_url"`
	FirstIndexed time.Time `json:"first_indexed"`
	LastUpdated  time.Time `json:"last_updated"`
	EventCount   int       `json:"event_count"`
}

func (s *Server) handleListRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := s.store.ListRepositories(r.Context())
	if err != nil {
		s.serverError(w, "listing repositories failed", err)
		return
	}

	out := make([]repositoryInfo, 0, len(repos))
	for _, rec := range repos {
		out = append(out, repositoryInfo{
			RepoRID:      rec.RID,
			RepoURL:      rec.URL,
			FirstIndexed: rec.FirstIndexed,
			LastUpdated:  rec.LastUpdated,
			EventCount:   rec.EventCount,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// eventInfo is the wire form of an event record.
type eventInfo struct {
	EventRID  string `json:"event_rid"`
	EventType string `json:"event_type"`
	Timestamp string `json:"timestamp"`
	CommitSHA string `json:"commit_sha,omitempty"`
	Summary   string `json:"summary"`
	BundleRID string `json:"bundle_rid,omitempty"`
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	repo := rid.New(r.PathValue("owner"), r.PathValue("repo"))
	limit := queryInt(r, "limit", 50, 1, 100)
	offset := queryInt(r, "offset", 0, 0, 1<<30)

	events, err := s.store.ListEvents(r.Context(), repo.String(), limit, offset)
	if err != nil {
		s.serverError(w, "listing events failed", err)
		return
	}

	out := make([]eventInfo, 0, len(events))
	for _, rec := range events {
		out = append(out, eventInfo{
			EventRID:  rec.EventRID,
			EventType: rec.Kind,
			Timestamp: rec.Timestamp,
			CommitSHA: rec.CommitSHA,
			Summary:   rec.Summary,
			BundleRID: rec.BundleRID,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// broadcastRequest is the network delivery envelope: one or more
// events, each an identifier plus its bundle contents.
type broadcastRequest struct {
	Events []broadcastEvent `json:"events"`
}

type broadcastEvent struct {
	RID      string          `json:"rid"`
	Contents json.RawMessage `json:"contents"`
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{
			Status:  "error",
			Message: "invalid request body",
		})
		return
	}

	s.logger.Info("received event broadcast", "events", len(req.Events))

	outcomes := make([]ingest.Outcome, 0, len(req.Events))
	for _, ev := range req.Events {
		payload, err := decodePayload(ev.Contents)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, statusResponse{
				Status:  "error",
				Message: "invalid event contents",
				Details: map[string]any{"rid": ev.RID},
			})
			return
		}

		eventRID := ev.RID
		if eventRID == "" {
			// Sender did not mint an identifier; assign a time-sortable one.
			eventRID = "orn:github.event:" + uuid.Must(uuid.NewV7()).String()
		}

		outcomes = append(outcomes, s.ingestor.Ingest(r.Context(), eventRID, payload, ingest.SourceLocal))
	}

	writeJSON(w, http.StatusOK, map[string]any{"outcomes": outcomes})
}

// decodePayload parses bundle contents with json.Number so numeric
// fields keep their source text for fingerprinting.
func decodePayload(raw json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *Server) serverError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, "err", err)
	writeJSON(w, http.StatusInternalServerError, statusResponse{
		Status:  "error",
		Message: msg,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, name string, def, min, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || n > max {
		return def
	}
	return n
}
