package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rm2thaddeus/devgraph/internal/gitlog"
	"github.com/rm2thaddeus/devgraph/internal/graph"
	"github.com/rm2thaddeus/devgraph/internal/models"
)

// fakeBackend records writes and can inject failures for the first N
// CreateNodes calls
type fakeBackend struct {
	mu          sync.Mutex
	nodes       []graph.GraphNode
	edges       []graph.GraphEdge
	nodeCalls   int
	failNodes   int
	failWith    error
	schemaCalls int
	schemaErr   error
	rows        []map[string]any
}

func (f *fakeBackend) CreateNode(ctx context.Context, node graph.GraphNode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes = append(f.nodes, node)
	return nil
}

func (f *fakeBackend) CreateNodes(ctx context.Context, nodes []graph.GraphNode) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodeCalls++
	if f.failNodes > 0 {
		f.failNodes--
		return 0, f.failWith
	}
	f.nodes = append(f.nodes, nodes...)
	return len(nodes), nil
}

func (f *fakeBackend) CreateEdge(ctx context.Context, edge graph.GraphEdge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edges = append(f.edges, edge)
	return nil
}

func (f *fakeBackend) CreateEdges(ctx context.Context, edges []graph.GraphEdge) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edges = append(f.edges, edges...)
	return len(edges), nil
}

func (f *fakeBackend) ExecuteBatchWithParams(ctx context.Context, queries []graph.QueryWithParams) error {
	return nil
}

func (f *fakeBackend) ReadRows(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	return f.rows, nil
}

func (f *fakeBackend) SetupSchema(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schemaCalls++
	return f.schemaErr
}

func (f *fakeBackend) Close(ctx context.Context) error { return nil }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func fixtureCommits() []gitlog.Commit {
	return []gitlog.Commit{
		{
			Hash:      "aaa111",
			Author:    "Dev One",
			Email:     "dev@example.com",
			Timestamp: time.Unix(1700000000, 0).UTC(),
			Message:   "Initial commit",
			Files: []gitlog.FileChange{
				{Path: "src/main.py", ChangeType: models.ChangeAdded, Additions: 10},
				{Path: "README.md", ChangeType: models.ChangeAdded, Additions: 3},
			},
		},
		{
			Hash:      "bbb222",
			Author:    "Dev One",
			Email:     "dev@example.com",
			Timestamp: time.Unix(1700000100, 0).UTC(),
			Message:   "Rename main",
			Files: []gitlog.FileChange{
				{Path: "src/app.py", ChangeType: models.ChangeRenamed, RenamedFrom: "src/main.py", Additions: 1},
			},
		},
	}
}

func TestIngestCommits(t *testing.T) {
	backend := &fakeBackend{}
	engine := NewEngine(backend, DefaultEngineConfig(), quietLogger())

	stats, err := engine.IngestCommits(context.Background(), fixtureCommits())
	if err != nil {
		t.Fatalf("IngestCommits failed: %v", err)
	}

	if stats.Commits != 2 {
		t.Errorf("expected 2 commits, got %d", stats.Commits)
	}
	if stats.Files != 3 {
		t.Errorf("expected 3 distinct files, got %d", stats.Files)
	}
	if stats.Edges != 3 {
		t.Errorf("expected 3 TOUCHED edges, got %d", stats.Edges)
	}

	var commitNodes, fileNodes int
	for _, node := range backend.nodes {
		if missing := models.MissingStamps(node.Properties); len(missing) != 0 {
			t.Errorf("%s node missing identity stamps %v: %v", node.Label, missing, node.Properties)
		}
		switch node.Label {
		case models.LabelCommit:
			commitNodes++
			if node.Properties["timestamp"] == nil {
				t.Error("commit node missing timestamp")
			}
		case models.LabelFile:
			fileNodes++
		}
	}
	if commitNodes != 2 || fileNodes != 3 {
		t.Errorf("expected 2 commit / 3 file payloads, got %d / %d", commitNodes, fileNodes)
	}

	var rename *graph.GraphEdge
	for i, edge := range backend.edges {
		if edge.Label != models.RelTouched {
			t.Errorf("unexpected edge type %s", edge.Label)
			continue
		}
		if edge.Properties["renamed_from"] == "src/main.py" {
			rename = &backend.edges[i]
		}
	}
	if rename == nil {
		t.Fatal("renamed TOUCHED edge not written")
	}
	if rename.From != "commit:bbb222" || rename.To != "file:src/app.py" {
		t.Errorf("rename edge endpoints wrong: %s -> %s", rename.From, rename.To)
	}
	if rename.Properties["change_type"] != models.ChangeRenamed {
		t.Errorf("rename edge change_type = %v", rename.Properties["change_type"])
	}
	if rename.Properties["timestamp"] != int64(1700000100) {
		t.Errorf("rename edge timestamp = %v", rename.Properties["timestamp"])
	}
}

func TestIngestCommitsClassifiesFiles(t *testing.T) {
	backend := &fakeBackend{}
	engine := NewEngine(backend, DefaultEngineConfig(), quietLogger())

	if _, err := engine.IngestCommits(context.Background(), fixtureCommits()); err != nil {
		t.Fatalf("IngestCommits failed: %v", err)
	}

	for _, node := range backend.nodes {
		if node.Label != models.LabelFile {
			continue
		}
		switch node.Properties["path"] {
		case "src/main.py", "src/app.py":
			if node.Properties["is_code"] != true || node.Properties["is_doc"] != false {
				t.Errorf("python file misclassified: %v", node.Properties)
			}
			if node.Properties["language"] != "Python" {
				t.Errorf("language = %v", node.Properties["language"])
			}
		case "README.md":
			if node.Properties["is_code"] != false || node.Properties["is_doc"] != true {
				t.Errorf("markdown file misclassified: %v", node.Properties)
			}
		}
	}
}

func TestIngestCommitsEmpty(t *testing.T) {
	backend := &fakeBackend{}
	engine := NewEngine(backend, DefaultEngineConfig(), quietLogger())

	stats, err := engine.IngestCommits(context.Background(), nil)
	if err != nil {
		t.Fatalf("IngestCommits failed: %v", err)
	}
	if stats.Commits != 0 || backend.nodeCalls != 0 {
		t.Errorf("expected no writes for empty input")
	}
}

func TestIngestCommitsRetriesTransient(t *testing.T) {
	backend := &fakeBackend{
		failNodes: 2,
		failWith:  errors.New("dial tcp: connection refused"),
	}
	engine := NewEngine(backend, EngineConfig{Workers: 1, BatchSize: 10, MaxRetries: 3}, quietLogger())
	engine.backoff = time.Millisecond

	stats, err := engine.IngestCommits(context.Background(), fixtureCommits())
	if err != nil {
		t.Fatalf("expected retries to recover, got %v", err)
	}
	if stats.Commits != 2 {
		t.Errorf("expected 2 commits after retry, got %d", stats.Commits)
	}
	if backend.nodeCalls != 3 {
		t.Errorf("expected 3 attempts (2 failures + success), got %d", backend.nodeCalls)
	}
}

func TestIngestCommitsExhaustsRetries(t *testing.T) {
	backend := &fakeBackend{
		failNodes: 10,
		failWith:  errors.New("dial tcp: connection refused"),
	}
	engine := NewEngine(backend, EngineConfig{Workers: 1, BatchSize: 10, MaxRetries: 3}, quietLogger())
	engine.backoff = time.Millisecond

	_, err := engine.IngestCommits(context.Background(), fixtureCommits())
	if err == nil {
		t.Fatal("expected failure after exhausting retries")
	}
	if backend.nodeCalls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", backend.nodeCalls)
	}
}

func TestIngestCommitsPermanentErrorDoesNotRetry(t *testing.T) {
	backend := &fakeBackend{
		failNodes: 10,
		failWith:  errors.New("SyntaxError: invalid input"),
	}
	engine := NewEngine(backend, EngineConfig{Workers: 1, BatchSize: 10, MaxRetries: 3}, quietLogger())
	engine.backoff = time.Millisecond

	_, err := engine.IngestCommits(context.Background(), fixtureCommits())
	if err == nil {
		t.Fatal("expected permanent error to surface")
	}
	if backend.nodeCalls != 1 {
		t.Errorf("permanent errors must not retry, got %d attempts", backend.nodeCalls)
	}
}

func TestPartitionCommits(t *testing.T) {
	commits := make([]gitlog.Commit, 10)
	partitions := partitionCommits(commits, 4)

	if len(partitions) != 4 {
		t.Fatalf("expected 4 partitions, got %d", len(partitions))
	}
	total := 0
	for _, part := range partitions {
		total += len(part)
	}
	if total != 10 {
		t.Errorf("partitions cover %d commits, want 10", total)
	}

	if got := partitionCommits(commits[:2], 4); len(got) != 2 {
		t.Errorf("expected one partition per commit when workers exceed commits, got %d", len(got))
	}
	if got := partitionCommits(nil, 4); len(got) != 0 {
		t.Errorf("expected no partitions for no commits, got %d", len(got))
	}
}

func TestTransientStoreError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("Neo.TransientError.Transaction.DeadlockDetected"), true},
		{errors.New("ServiceUnavailable: no routing servers"), true},
		{errors.New("read tcp: i/o timeout"), true},
		{errors.New("SyntaxError in query"), false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := transientStoreError(tc.err); got != tc.want {
			t.Errorf("transientStoreError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestWriteRenameChains(t *testing.T) {
	backend := &fakeBackend{}

	stats, err := WriteRenameChains(context.Background(), backend, nil, fixtureCommits(), quietLogger())
	if err != nil {
		t.Fatalf("WriteRenameChains failed: %v", err)
	}
	if stats.Renames != 1 || stats.Edges != 1 {
		t.Errorf("expected 1 rename / 1 edge, got %d / %d", stats.Renames, stats.Edges)
	}

	if len(backend.edges) != 1 {
		t.Fatalf("expected 1 REFACTORED_TO edge, got %d", len(backend.edges))
	}
	edge := backend.edges[0]
	if edge.Label != models.RelRefactoredTo {
		t.Errorf("edge label = %s", edge.Label)
	}
	if edge.From != "file:src/main.py" || edge.To != "file:src/app.py" {
		t.Errorf("rename chain direction wrong: %s -> %s", edge.From, edge.To)
	}
	if edge.Properties["commit"] != "bbb222" || edge.Properties["timestamp"] != int64(1700000100) {
		t.Errorf("rename chain provenance wrong: %v", edge.Properties)
	}

	// The old path's node is ensured so the edge can match it
	foundOld := false
	for _, node := range backend.nodes {
		if node.Label == models.LabelFile && node.Properties["path"] == "src/main.py" {
			foundOld = true
			if _, has := node.Properties["last_modified_at"]; has {
				t.Error("old path payload must not claim a modification time")
			}
		}
	}
	if !foundOld {
		t.Error("old path node not ensured")
	}
}
