package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/rm2thaddeus/devgraph/internal/cache"
	apperrors "github.com/rm2thaddeus/devgraph/internal/errors"
	"github.com/rm2thaddeus/devgraph/internal/query"
)

// maxRecentLimit caps how much history one /ingest/recent call may pull
const maxRecentLimit = 1000

// handleIngestBootstrap runs the full pipeline synchronously and
// answers with the per-stage breakdown. A failed stage comes back as a
// structured "failed" result, never an opaque 500.
func (s *Server) handleIngestBootstrap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := s.ingestContext(r)
	defer cancel()

	result, err := s.ingestor.Bootstrap(ctx, "api")
	if err != nil {
		WriteError(w, err)
		return
	}

	s.invalidateCaches(r.Context())
	WriteJSON(w, result, http.StatusOK)
}

// handleIngestRecent ingests the N most recent commits
func (s *Server) handleIngestRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit, err := queryParamInt(r, "limit", s.cfg.Ingest.RecentLimit)
	if err != nil {
		WriteError(w, err)
		return
	}
	if limit <= 0 {
		limit = s.cfg.Ingest.RecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	ctx, cancel := s.ingestContext(r)
	defer cancel()

	result, err := s.ingestor.IngestRecent(ctx, limit, "api")
	if err != nil {
		WriteError(w, err)
		return
	}

	s.invalidateCaches(r.Context())
	WriteJSON(w, result, http.StatusOK)
}

// ingestContext bounds a pipeline run with the configured ingestion
// timeout on top of the request context
func (s *Server) ingestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.cfg.Ingest.Timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), s.cfg.Ingest.Timeout)
}

// invalidateCaches drops cached query responses after ingestion writes.
// Cache trouble is logged, never surfaced; the worst case is a stale
// window for one TTL.
func (s *Server) invalidateCaches(ctx context.Context) {
	if s.redis == nil {
		return
	}

	prefixes := []string{
		cache.SubgraphKeyPrefix,
		cache.BucketsKeyPrefix,
		cache.SprintSubgraphKeyPrefix,
	}
	for _, prefix := range prefixes {
		if _, err := s.redis.InvalidatePrefix(ctx, prefix); err != nil {
			s.logger.Warn("cache invalidation failed", "prefix", prefix, "error", err)
		}
	}
}

// handleSubgraph answers GET /graph/subgraph with one keyset page
func (s *Server) handleSubgraph(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	params := r.URL.Query()
	from, err := parseTimestamp(params.Get("from_timestamp"), "from_timestamp")
	if err != nil {
		WriteError(w, err)
		return
	}
	to, err := parseTimestamp(params.Get("to_timestamp"), "to_timestamp")
	if err != nil {
		WriteError(w, err)
		return
	}
	limit, err := queryParamInt(r, "limit", 0)
	if err != nil {
		WriteError(w, err)
		return
	}

	resp, err := s.queries.Subgraph(r.Context(), query.SubgraphRequest{
		From:          from,
		To:            to,
		Types:         csvParam(r, "types"),
		Limit:         limit,
		Cursor:        params.Get("cursor"),
		IncludeCounts: queryParamBool(r, "include_counts"),
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, resp, http.StatusOK)
}

// handleBuckets answers GET /commits/buckets with the density histogram
func (s *Server) handleBuckets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	params := r.URL.Query()
	from, err := parseTimestamp(params.Get("from"), "from")
	if err != nil {
		WriteError(w, err)
		return
	}
	to, err := parseTimestamp(params.Get("to"), "to")
	if err != nil {
		WriteError(w, err)
		return
	}

	resp, err := s.queries.Buckets(r.Context(), params.Get("granularity"), from, to)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, resp, http.StatusOK)
}

// handleSprints answers GET /sprints
func (s *Server) handleSprints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp, err := s.queries.Sprints(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, resp, http.StatusOK)
}

// handleSprintRoutes dispatches GET /sprints/{number}/subgraph
func (s *Server) handleSprintRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/sprints/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "subgraph" {
		http.NotFound(w, r)
		return
	}

	number, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		WriteError(w, apperrors.ValidationErrorf("sprint number must be an integer, got %q", parts[0]))
		return
	}

	resp, err := s.queries.SprintSubgraph(r.Context(), number)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, resp, http.StatusOK)
}

// handleDataQuality answers GET /analytics/data-quality
func (s *Server) handleDataQuality(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	report, err := s.analytics.DataQuality(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, report, http.StatusOK)
}
