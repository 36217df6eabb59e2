package api

import "net/http"

// registerRoutes registers all API routes
func (s *Server) registerRoutes() {
	// Liveness and backend connectivity
	s.router.HandleFunc("/health", s.handleHealth)

	// Ingestion triggers, rate limited and single-run
	s.router.HandleFunc("/ingest/bootstrap", s.rateLimited(s.handleIngestBootstrap))
	s.router.HandleFunc("/ingest/recent", s.rateLimited(s.handleIngestRecent))

	// Windowed reads
	s.router.HandleFunc("/graph/subgraph", s.handleSubgraph)
	s.router.HandleFunc("/commits/buckets", s.handleBuckets)
	s.router.HandleFunc("/sprints", s.handleSprints)
	s.router.HandleFunc("/sprints/", s.handleSprintRoutes) // GET /sprints/{number}/subgraph

	// Graph audit
	s.router.HandleFunc("/analytics/data-quality", s.handleDataQuality)

	// Root endpoint
	s.router.HandleFunc("/", s.handleRoot)
}

// handleRoot lists the API surface
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	// Only handle exact root path
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"name":    "Developer Graph API",
		"version": s.version,
		"endpoints": []string{
			"GET /health - Liveness and backend connectivity",
			"POST /ingest/bootstrap - Run the full ingestion pipeline",
			"POST /ingest/recent?limit=N - Ingest the N most recent commits",
			"GET /graph/subgraph?from_timestamp&to_timestamp&types&limit&cursor&include_counts - Windowed subgraph page",
			"GET /commits/buckets?granularity=day|week&from&to - Commit density histogram",
			"GET /sprints - Sprint list with windows and commit counts",
			"GET /sprints/{number}/subgraph - One sprint's commits and files",
			"GET /analytics/data-quality - Graph audit report",
		},
	}

	WriteJSON(w, response, http.StatusOK)
}
