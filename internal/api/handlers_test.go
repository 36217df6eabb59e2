package api

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	apperrors "github.com/rm2thaddeus/devgraph/internal/errors"
	"github.com/rm2thaddeus/devgraph/internal/ingest"
	"github.com/rm2thaddeus/devgraph/internal/models"
	"github.com/rm2thaddeus/devgraph/internal/query"
)

// subgraphBackend answers the commit page with the given rows and the
// expansion and count queries with nothing
func subgraphBackend(pageRows []map[string]any) *fakeBackend {
	return &fakeBackend{rows: func(q string, params map[string]any) []map[string]any {
		switch {
		case strings.Contains(q, "count(DISTINCT c)"):
			return []map[string]any{{"commits": int64(1), "files": int64(0), "edges": int64(0)}}
		case strings.Contains(q, "TOUCHED"):
			return nil
		case strings.Contains(q, "IMPLEMENTS"):
			return nil
		default:
			return pageRows
		}
	}}
}

func commitPageRow(hash string, ts int64) map[string]any {
	return map[string]any{
		"uid":           "commit:" + hash,
		"hash":          hash,
		"message":       "change " + hash,
		"author":        "Dev",
		"author_email":  "dev@example.com",
		"timestamp":     ts,
		"additions":     int64(1),
		"deletions":     int64(0),
		"files_changed": int64(1),
	}
}

func TestIngestBootstrap(t *testing.T) {
	ing := &stubIngestor{result: &ingest.PipelineResult{
		RunID:  "run-7",
		Status: models.RunStatusCompleted,
		Stages: []models.StageResult{
			{Stage: "schema", Status: models.StageStatusOK},
			{Stage: "extract", Status: models.StageStatusOK, Processed: 12},
		},
		Commits: 12,
	}}
	srv := newTestServer(testConfig(), &fakeBackend{}, ing, nil)

	rec := doRequest(srv, http.MethodPost, "/ingest/bootstrap")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ing.bootstraps != 1 {
		t.Fatalf("expected one bootstrap call, got %d", ing.bootstraps)
	}

	var body ingest.PipelineResult
	decodeJSON(t, rec, &body)
	if body.RunID != "run-7" {
		t.Errorf("expected run id run-7, got %q", body.RunID)
	}
	if len(body.Stages) != 2 {
		t.Errorf("expected 2 stages, got %d", len(body.Stages))
	}
	if body.Commits != 12 {
		t.Errorf("expected 12 commits, got %d", body.Commits)
	}
}

func TestIngestBootstrapStageFailureStays200(t *testing.T) {
	ing := &stubIngestor{result: &ingest.PipelineResult{
		RunID:  "run-8",
		Status: models.RunStatusFailed,
		Stages: []models.StageResult{
			{Stage: "schema", Status: models.StageStatusOK},
			{Stage: "extract", Status: models.StageStatusFailed, Error: "not a git repository"},
		},
	}}
	srv := newTestServer(testConfig(), &fakeBackend{}, ing, nil)

	rec := doRequest(srv, http.MethodPost, "/ingest/bootstrap")
	if rec.Code != http.StatusOK {
		t.Fatalf("a stage failure must stay a structured 200, got %d", rec.Code)
	}

	var body ingest.PipelineResult
	decodeJSON(t, rec, &body)
	if body.Status != models.RunStatusFailed {
		t.Errorf("expected failed status, got %q", body.Status)
	}
	failed := body.Stages[len(body.Stages)-1]
	if failed.Stage != "extract" || failed.Error != "not a git repository" {
		t.Errorf("failed stage not reported: %+v", failed)
	}
}

func TestIngestBootstrapInfrastructureError(t *testing.T) {
	ing := &stubIngestor{err: apperrors.DatabaseError(errors.New("dial tcp: connection refused"), "store unreachable")}
	srv := newTestServer(testConfig(), &fakeBackend{}, ing, nil)

	rec := doRequest(srv, http.MethodPost, "/ingest/bootstrap")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	var body ErrorResponse
	decodeJSON(t, rec, &body)
	if body.Code != "DATABASE" {
		t.Errorf("expected DATABASE code, got %q", body.Code)
	}
}

func TestIngestRecentLimit(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"default", "/ingest/recent", 50},
		{"explicit", "/ingest/recent?limit=10", 10},
		{"capped", "/ingest/recent?limit=99999", 1000},
		{"non-positive falls back", "/ingest/recent?limit=-3", 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ing := &stubIngestor{}
			srv := newTestServer(testConfig(), &fakeBackend{}, ing, nil)

			rec := doRequest(srv, http.MethodPost, tt.target)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
			if got := ing.lastRecentLimit(); got != tt.want {
				t.Errorf("expected limit %d, got %d", tt.want, got)
			}
		})
	}
}

func TestIngestRecentRejectsMalformedLimit(t *testing.T) {
	ing := &stubIngestor{}
	srv := newTestServer(testConfig(), &fakeBackend{}, ing, nil)

	rec := doRequest(srv, http.MethodPost, "/ingest/recent?limit=ten")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := ing.lastRecentLimit(); got != -1 {
		t.Errorf("no run should have been triggered, got limit %d", got)
	}
}

func TestIngestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(testConfig(), &fakeBackend{}, &stubIngestor{}, nil)

	for _, target := range []string{"/ingest/bootstrap", "/ingest/recent"} {
		rec := doRequest(srv, http.MethodGet, target)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("GET %s: expected 405, got %d", target, rec.Code)
		}
	}
}

func TestSubgraphEndpoint(t *testing.T) {
	backend := subgraphBackend([]map[string]any{commitPageRow("a1", 1704100000)})
	srv := newTestServer(testConfig(), backend, nil, nil)

	rec := doRequest(srv, http.MethodGet,
		"/graph/subgraph?from_timestamp=2024-01-01T00:00:00Z&to_timestamp=1704153600&include_counts=true")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// RFC 3339 and unix-seconds forms are interchangeable
	pageParams := backend.params[0]
	if pageParams["from"] != int64(1704067200) {
		t.Errorf("from_timestamp not parsed from RFC 3339: %v", pageParams["from"])
	}
	if pageParams["to"] != int64(1704153600) {
		t.Errorf("to_timestamp not parsed from unix seconds: %v", pageParams["to"])
	}

	var body query.SubgraphResponse
	decodeJSON(t, rec, &body)
	if len(body.Nodes) != 1 || body.Nodes[0].UID != "commit:a1" {
		t.Errorf("expected the commit node, got %+v", body.Nodes)
	}
	if body.Pagination.Limit != query.DefaultLimit {
		t.Errorf("expected default limit, got %d", body.Pagination.Limit)
	}
	if body.Totals == nil || body.Totals.Commits != 1 {
		t.Errorf("expected totals with include_counts=true, got %+v", body.Totals)
	}
	if body.Window.FromISO != "2024-01-01T00:00:00Z" {
		t.Errorf("unexpected window rendering %q", body.Window.FromISO)
	}
}

func TestSubgraphMissingWindowRejected(t *testing.T) {
	srv := newTestServer(testConfig(), &fakeBackend{}, nil, nil)

	rec := doRequest(srv, http.MethodGet, "/graph/subgraph")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var body ErrorResponse
	decodeJSON(t, rec, &body)
	if body.Code != "VALIDATION" {
		t.Errorf("expected VALIDATION code, got %q", body.Code)
	}
}

func TestSubgraphRejectsUnknownType(t *testing.T) {
	srv := newTestServer(testConfig(), &fakeBackend{}, nil, nil)

	rec := doRequest(srv, http.MethodGet,
		"/graph/subgraph?from_timestamp=0&to_timestamp=100&types=Banana")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown type, got %d", rec.Code)
	}
}

func TestSubgraphRejectsMalformedCursor(t *testing.T) {
	srv := newTestServer(testConfig(), &fakeBackend{}, nil, nil)

	rec := doRequest(srv, http.MethodGet,
		"/graph/subgraph?from_timestamp=0&to_timestamp=100&cursor=%21%21%21")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed cursor, got %d", rec.Code)
	}
}

func TestBucketsEndpoint(t *testing.T) {
	backend := &fakeBackend{rows: func(q string, params map[string]any) []map[string]any {
		return []map[string]any{
			{"bucket_start": int64(86400), "commit_count": int64(2), "additions": int64(30), "deletions": int64(4)},
		}
	}}
	srv := newTestServer(testConfig(), backend, nil, nil)

	rec := doRequest(srv, http.MethodGet, "/commits/buckets?granularity=day&from=0&to=200000")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body query.BucketsResponse
	decodeJSON(t, rec, &body)
	if body.Granularity != query.GranularityDay {
		t.Errorf("expected day granularity, got %q", body.Granularity)
	}
	if len(body.Buckets) != 1 || body.Buckets[0].CommitCount != 2 {
		t.Errorf("unexpected buckets %+v", body.Buckets)
	}
	if body.Buckets[0].BucketISO != "1970-01-02T00:00:00Z" {
		t.Errorf("unexpected bucket rendering %q", body.Buckets[0].BucketISO)
	}
}

func TestBucketsRejectsUnknownGranularity(t *testing.T) {
	srv := newTestServer(testConfig(), &fakeBackend{}, nil, nil)

	rec := doRequest(srv, http.MethodGet, "/commits/buckets?granularity=month&from=0&to=100")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestSprintsEndpoint(t *testing.T) {
	backend := &fakeBackend{rows: func(q string, params map[string]any) []map[string]any {
		return []map[string]any{
			{
				"number": int64(1), "name": "Foundation",
				"start_date": int64(1735689600), "end_date": int64(1738368000),
				"end_inferred": false, "commit_count": int64(4),
			},
		}
	}}
	srv := newTestServer(testConfig(), backend, nil, nil)

	rec := doRequest(srv, http.MethodGet, "/sprints")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body query.SprintListResponse
	decodeJSON(t, rec, &body)
	if len(body.Sprints) != 1 || body.Sprints[0].Name != "Foundation" {
		t.Errorf("unexpected sprints %+v", body.Sprints)
	}
}

func TestSprintSubgraphEndpoint(t *testing.T) {
	backend := &fakeBackend{rows: func(q string, params map[string]any) []map[string]any {
		if _, ok := params["number"]; !ok {
			return nil
		}
		return []map[string]any{
			{
				"number": int64(3), "name": "Query Layer",
				"start_date": int64(100), "end_date": int64(200), "end_inferred": false,
				"commit_uid": "commit:a1", "hash": "a1", "message": "m", "author": "Dev",
				"timestamp": int64(150),
				"file_uid":  "file:a.py", "path": "a.py", "language": "Python",
				"is_code": true, "is_doc": false,
				"change_type": "modified", "additions": int64(1), "deletions": int64(0),
			},
		}
	}}
	srv := newTestServer(testConfig(), backend, nil, nil)

	rec := doRequest(srv, http.MethodGet, "/sprints/3/subgraph")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body query.SprintSubgraphResponse
	decodeJSON(t, rec, &body)
	if body.Sprint.Number != 3 {
		t.Errorf("expected sprint 3, got %d", body.Sprint.Number)
	}
	if len(body.Nodes) != 2 {
		t.Errorf("expected commit and file nodes, got %+v", body.Nodes)
	}
}

func TestSprintSubgraphNotFound(t *testing.T) {
	srv := newTestServer(testConfig(), &fakeBackend{}, nil, nil)

	rec := doRequest(srv, http.MethodGet, "/sprints/99/subgraph")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a missing sprint, got %d", rec.Code)
	}

	var body ErrorResponse
	decodeJSON(t, rec, &body)
	if body.Code != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND code, got %q", body.Code)
	}
}

func TestSprintSubgraphRejectsNonNumeric(t *testing.T) {
	srv := newTestServer(testConfig(), &fakeBackend{}, nil, nil)

	rec := doRequest(srv, http.MethodGet, "/sprints/abc/subgraph")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestSprintSubgraphUnknownSubpath(t *testing.T) {
	srv := newTestServer(testConfig(), &fakeBackend{}, nil, nil)

	rec := doRequest(srv, http.MethodGet, "/sprints/3/commits")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestDataQualityEndpoint(t *testing.T) {
	srv := newTestServer(testConfig(), &fakeBackend{}, nil, nil)

	rec := doRequest(srv, http.MethodGet, "/analytics/data-quality")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected json content type, got %q", ct)
	}

	var body map[string]any
	decodeJSON(t, rec, &body)
	if healthy, ok := body["healthy"].(bool); !ok || !healthy {
		t.Errorf("an empty graph should audit healthy, got %v", body["healthy"])
	}
}
