package derive

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/rm2thaddeus/devgraph/internal/graph"
	"github.com/rm2thaddeus/devgraph/internal/models"
)

// fakeBackend serves canned commit rows and records everything the
// deriver writes
type fakeBackend struct {
	rows    []map[string]any
	readErr error
	nodes   []graph.GraphNode
	edges   []graph.GraphEdge
}

func (f *fakeBackend) CreateNode(ctx context.Context, node graph.GraphNode) error {
	f.nodes = append(f.nodes, node)
	return nil
}

func (f *fakeBackend) CreateNodes(ctx context.Context, nodes []graph.GraphNode) (int, error) {
	f.nodes = append(f.nodes, nodes...)
	return len(nodes), nil
}

func (f *fakeBackend) CreateEdge(ctx context.Context, edge graph.GraphEdge) error {
	f.edges = append(f.edges, edge)
	return nil
}

func (f *fakeBackend) CreateEdges(ctx context.Context, edges []graph.GraphEdge) (int, error) {
	f.edges = append(f.edges, edges...)
	return len(edges), nil
}

func (f *fakeBackend) ExecuteBatchWithParams(ctx context.Context, queries []graph.QueryWithParams) error {
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

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func commitRow(hash, message string, timestamp int64, files ...string) map[string]any {
	raw := make([]any, len(files))
	for i, f := range files {
		raw[i] = f
	}
	return map[string]any{
		"hash":      hash,
		"message":   message,
		"author":    "dev@example.com",
		"timestamp": timestamp,
		"files":     raw,
	}
}

func TestDeriverRun(t *testing.T) {
	backend := &fakeBackend{rows: []map[string]any{
		commitRow("a1", "Implements FR-42: caching layer", 100, "src/cache.py", "vendor/dep/x.js"),
		commitRow("b2", "FR-7 evolves from FR-42", 200),
	}}

	result, err := NewDeriver(backend, testLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.CommitsScanned != 2 || result.CommitsMatched != 2 {
		t.Errorf("expected 2 scanned / 2 matched, got %d / %d", result.CommitsScanned, result.CommitsMatched)
	}
	if result.Requirements != 2 {
		t.Errorf("expected 2 requirement nodes, got %d", result.Requirements)
	}
	if result.ExcludedFiles != 1 {
		t.Errorf("expected 1 excluded file, got %d", result.ExcludedFiles)
	}

	byID := make(map[string]map[string]any)
	for _, node := range backend.nodes {
		if node.Label != models.LabelRequirement {
			t.Fatalf("unexpected node label %s", node.Label)
		}
		byID[node.Properties["id"].(string)] = node.Properties
	}

	fr42, ok := byID["FR-42"]
	if !ok {
		t.Fatal("FR-42 node not written")
	}
	if fr42["title"] != "caching layer" {
		t.Errorf("expected title from first sighting, got %q", fr42["title"])
	}
	if fr42["created_at"] != int64(100) {
		t.Errorf("expected created_at from first sighting, got %v", fr42["created_at"])
	}
	if missing := models.MissingStamps(fr42); len(missing) != 0 {
		t.Errorf("FR-42 missing identity stamps: %v", missing)
	}
	if _, ok := byID["FR-7"]; !ok {
		t.Error("FR-7 node not written")
	}

	var implements, evolves []graph.GraphEdge
	for _, edge := range backend.edges {
		switch edge.Label {
		case models.RelImplements:
			implements = append(implements, edge)
		case models.RelEvolvesFrom:
			evolves = append(evolves, edge)
		default:
			t.Errorf("unexpected edge type %s", edge.Label)
		}
	}

	if len(implements) != 1 {
		t.Fatalf("expected 1 IMPLEMENTS edge (vendor path excluded), got %d", len(implements))
	}
	impl := implements[0]
	if impl.From != "requirement:FR-42" || impl.To != "file:src/cache.py" {
		t.Errorf("IMPLEMENTS %s -> %s, want requirement:FR-42 -> file:src/cache.py", impl.From, impl.To)
	}
	if impl.Properties["confidence"] != ConfidenceExplicit {
		t.Errorf("expected confidence %.1f, got %v", ConfidenceExplicit, impl.Properties["confidence"])
	}
	if impl.Properties["commit"] != "a1" || impl.Properties["timestamp"] != int64(100) {
		t.Errorf("IMPLEMENTS provenance wrong: %v", impl.Properties)
	}

	if len(evolves) != 1 {
		t.Fatalf("expected 1 EVOLVES_FROM edge, got %d", len(evolves))
	}
	if evolves[0].From != "requirement:FR-7" || evolves[0].To != "requirement:FR-42" {
		t.Errorf("EVOLVES_FROM %s -> %s, want requirement:FR-7 -> requirement:FR-42",
			evolves[0].From, evolves[0].To)
	}
}

func TestDeriverConfidenceUpgrade(t *testing.T) {
	backend := &fakeBackend{rows: []map[string]any{
		commitRow("a1", "notes on FR-5", 100, "src/api.py"),
		commitRow("b2", "Closes FR-5", 200, "src/api.py"),
	}}

	_, err := NewDeriver(backend, testLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(backend.edges) != 1 {
		t.Fatalf("expected repeated mention to collapse into 1 edge, got %d", len(backend.edges))
	}
	edge := backend.edges[0]
	if edge.Properties["confidence"] != ConfidenceExplicit {
		t.Errorf("expected explicit confidence to win, got %v", edge.Properties["confidence"])
	}
	if edge.Properties["commit"] != "b2" {
		t.Errorf("expected provenance from the explicit commit, got %v", edge.Properties["commit"])
	}
}

func TestDeriverDeprecation(t *testing.T) {
	backend := &fakeBackend{rows: []map[string]any{
		commitRow("c3", "FR-2 deprecated by FR-9: replaced by windowed API", 300),
	}}

	_, err := NewDeriver(backend, testLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var found bool
	for _, edge := range backend.edges {
		if edge.Label != models.RelDeprecatedBy {
			continue
		}
		found = true
		if edge.From != "requirement:FR-2" || edge.To != "requirement:FR-9" {
			t.Errorf("DEPRECATED_BY %s -> %s, want requirement:FR-2 -> requirement:FR-9", edge.From, edge.To)
		}
		if edge.Properties["reason"] == "" {
			t.Error("expected a deprecation reason")
		}
	}
	if !found {
		t.Fatal("DEPRECATED_BY edge not written")
	}
}

func TestDeriverNoMatches(t *testing.T) {
	backend := &fakeBackend{rows: []map[string]any{
		commitRow("a1", "fix typo in readme", 100, "README.md"),
	}}

	result, err := NewDeriver(backend, testLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.CommitsMatched != 0 || len(backend.nodes) != 0 || len(backend.edges) != 0 {
		t.Errorf("expected no output for unrelated commits, got %+v", result)
	}
}

func TestDeriverReadFailure(t *testing.T) {
	backend := &fakeBackend{readErr: errors.New("connection refused")}

	_, err := NewDeriver(backend, testLogger()).Run(context.Background())
	if err == nil {
		t.Fatal("expected scan failure to surface")
	}
}
