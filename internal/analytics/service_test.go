package analytics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/rm2thaddeus/devgraph/internal/graph"
	"github.com/rm2thaddeus/devgraph/internal/models"
)

type fakeBackend struct {
	rows    []map[string]any
	readErr error
	batches [][]graph.QueryWithParams
}

func (f *fakeBackend) CreateNode(ctx context.Context, node graph.GraphNode) error { return nil }
func (f *fakeBackend) CreateNodes(ctx context.Context, nodes []graph.GraphNode) (int, error) {
	return len(nodes), nil
}
func (f *fakeBackend) CreateEdge(ctx context.Context, edge graph.GraphEdge) error { return nil }
func (f *fakeBackend) CreateEdges(ctx context.Context, edges []graph.GraphEdge) (int, error) {
	return len(edges), nil
}
func (f *fakeBackend) ExecuteBatchWithParams(ctx context.Context, queries []graph.QueryWithParams) error {
	f.batches = append(f.batches, queries)
	return nil
}
func (f *fakeBackend) ReadRows(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.rows, nil
}
func (f *fakeBackend) SetupSchema(ctx context.Context) error { return nil }
func (f *fakeBackend) Close(ctx context.Context) error       { return nil }

type fakeStore struct {
	mu      sync.Mutex
	reports []models.QualityReport
	saveErr error
}

func (f *fakeStore) SaveIngestRun(ctx context.Context, run *models.IngestRun) error { return nil }
func (f *fakeStore) GetIngestRun(ctx context.Context, id string) (*models.IngestRun, error) {
	return nil, nil
}
func (f *fakeStore) ListIngestRuns(ctx context.Context, limit int) ([]*models.IngestRun, error) {
	return nil, nil
}
func (f *fakeStore) SaveQualityReport(ctx context.Context, report *models.QualityReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.reports = append(f.reports, *report)
	return nil
}
func (f *fakeStore) ListQualityReports(ctx context.Context, limit int) ([]*models.QualityReport, error) {
	return nil, nil
}
func (f *fakeStore) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func metricRow(metric, label string, value int64) map[string]any {
	return map[string]any{"metric": metric, "label": label, "value": value}
}

func TestDataQualityAssembly(t *testing.T) {
	backend := &fakeBackend{
		rows: []map[string]any{
			metricRow("nodes_by_label", "GitCommit", 100),
			metricRow("nodes_by_label", "File", 40),
			metricRow("nodes_by_label", "Requirement", 7),
			metricRow("edges_by_type", "TOUCHED", 250),
			metricRow("edges_by_type", "IMPLEMENTS", 12),
			metricRow("null_stamp_nodes", "total", 3),
			metricRow("missing_edge_timestamps", "total", 1),
			metricRow("orphaned_files", "total", 2),
			metricRow("invalid_requirements", "total", 0),
			metricRow("unmapped_commits", "total", 25),
		},
	}
	store := &fakeStore{}
	svc := NewService(backend, store, testLogger())

	report, err := svc.DataQuality(context.Background())
	if err != nil {
		t.Fatalf("DataQuality failed: %v", err)
	}

	if report.TotalNodes != 147 {
		t.Errorf("total nodes = %d, want 147", report.TotalNodes)
	}
	if report.TotalEdges != 262 {
		t.Errorf("total edges = %d, want 262", report.TotalEdges)
	}
	if report.NodesByLabel["GitCommit"] != 100 || report.EdgesByType["TOUCHED"] != 250 {
		t.Errorf("breakdowns wrong: %v / %v", report.NodesByLabel, report.EdgesByType)
	}
	if report.NullStampNodes != 3 || report.MissingEdgeTimestamps != 1 ||
		report.OrphanedFiles != 2 || report.UnmappedCommits != 25 {
		t.Errorf("defect counts wrong: %+v", report)
	}
	if report.Healthy {
		t.Error("report with defects must not be healthy")
	}
	if report.GeneratedAt == "" {
		t.Error("generated_at missing")
	}

	if len(store.reports) != 1 {
		t.Fatalf("expected 1 persisted report, got %d", len(store.reports))
	}
	row := store.reports[0]
	if row.TotalNodes != 147 || row.NullStampNodes != 3 || row.MissingTimestamps != 1 {
		t.Errorf("persisted row = %+v", row)
	}
	if row.ID == "" {
		t.Error("persisted row has no id")
	}
}

func TestDataQualityHealthy(t *testing.T) {
	backend := &fakeBackend{
		rows: []map[string]any{
			metricRow("nodes_by_label", "GitCommit", 10),
			metricRow("edges_by_type", "TOUCHED", 20),
			metricRow("null_stamp_nodes", "total", 0),
			metricRow("missing_edge_timestamps", "total", 0),
			metricRow("orphaned_files", "total", 0),
			metricRow("invalid_requirements", "total", 0),
			metricRow("unmapped_commits", "total", 10),
		},
	}
	svc := NewService(backend, nil, testLogger())

	report, err := svc.DataQuality(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// Unmapped commits are informational (sprints may simply not be
	// configured); they do not flip health
	if !report.Healthy {
		t.Error("zero-defect report must be healthy")
	}
}

func TestDataQualityLedgerFailureIsNotFatal(t *testing.T) {
	backend := &fakeBackend{
		rows: []map[string]any{metricRow("nodes_by_label", "GitCommit", 1)},
	}
	store := &fakeStore{saveErr: errors.New("disk full")}
	svc := NewService(backend, store, testLogger())

	if _, err := svc.DataQuality(context.Background()); err != nil {
		t.Fatalf("ledger failure must not fail the audit: %v", err)
	}
}

func TestDataQualityReadFailure(t *testing.T) {
	backend := &fakeBackend{readErr: errors.New("ServiceUnavailable")}
	svc := NewService(backend, nil, testLogger())

	if _, err := svc.DataQuality(context.Background()); err == nil {
		t.Fatal("store failures must surface")
	}
}

func TestDataQualityEmptyGraph(t *testing.T) {
	svc := NewService(&fakeBackend{}, nil, testLogger())

	report, err := svc.DataQuality(context.Background())
	if err != nil {
		t.Fatalf("empty graph must audit cleanly: %v", err)
	}
	if report.TotalNodes != 0 || report.TotalEdges != 0 || !report.Healthy {
		t.Errorf("empty graph report = %+v", report)
	}
}
