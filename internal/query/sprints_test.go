package query

import (
	"context"
	"errors"
	"testing"

	"github.com/rm2thaddeus/devgraph/internal/models"
)

func TestSprintsList(t *testing.T) {
	backend := &fakeBackend{
		sprints: []map[string]any{
			{
				"number": int64(1), "name": "Foundation",
				"start_date": int64(1735689600), "end_date": int64(1738368000),
				"end_inferred": false, "commit_count": int64(12),
			},
			{
				"number": int64(2), "name": "Graph",
				"start_date": int64(1738368000), "end_date": int64(1740787200),
				"end_inferred": true, "commit_count": int64(0),
			},
		},
	}
	svc := testService(backend)

	resp, err := svc.Sprints(context.Background())
	if err != nil {
		t.Fatalf("Sprints failed: %v", err)
	}
	if len(resp.Sprints) != 2 {
		t.Fatalf("expected 2 sprints, got %d", len(resp.Sprints))
	}

	first := resp.Sprints[0]
	if first.Number != 1 || first.Name != "Foundation" || first.CommitCount != 12 {
		t.Errorf("first sprint = %+v", first)
	}
	if first.Window.FromISO != "2025-01-01T00:00:00Z" {
		t.Errorf("window ISO = %s", first.Window.FromISO)
	}
	if !resp.Sprints[1].EndInferred {
		t.Error("inferred end flag lost")
	}
}

func TestSprintSubgraphAssembly(t *testing.T) {
	// Denormalized rows: sprint 3 with two commits, the first touching
	// two files
	meta := map[string]any{
		"number": int64(3), "name": "Queries",
		"start_date": int64(1000), "end_date": int64(2000), "end_inferred": false,
	}
	row := func(extra map[string]any) map[string]any {
		merged := map[string]any{}
		for k, v := range meta {
			merged[k] = v
		}
		for k, v := range extra {
			merged[k] = v
		}
		return merged
	}

	backend := &fakeBackend{
		sprints: []map[string]any{
			row(map[string]any{
				"commit_uid": "commit:a1", "hash": "a1", "message": "one",
				"author": "Dev", "timestamp": int64(1100),
				"file_uid": "file:a.py", "path": "a.py", "language": "Python",
				"is_code": true, "is_doc": false,
				"change_type": "added", "additions": int64(5), "deletions": int64(0),
			}),
			row(map[string]any{
				"commit_uid": "commit:a1", "hash": "a1", "message": "one",
				"author": "Dev", "timestamp": int64(1100),
				"file_uid": "file:b.py", "path": "b.py", "language": "Python",
				"is_code": true, "is_doc": false,
				"change_type": "added", "additions": int64(2), "deletions": int64(0),
			}),
			row(map[string]any{
				"commit_uid": "commit:b2", "hash": "b2", "message": "two",
				"author": "Dev", "timestamp": int64(1200),
				"file_uid": "file:a.py", "path": "a.py", "language": "Python",
				"is_code": true, "is_doc": false,
				"change_type": "modified", "additions": int64(1), "deletions": int64(1),
			}),
		},
	}
	svc := testService(backend)

	resp, err := svc.SprintSubgraph(context.Background(), 3)
	if err != nil {
		t.Fatalf("SprintSubgraph failed: %v", err)
	}

	if resp.Sprint.Number != 3 || resp.Sprint.Name != "Queries" {
		t.Errorf("sprint meta = %+v", resp.Sprint)
	}
	if resp.Sprint.CommitCount != 2 {
		t.Errorf("commit count = %d, want 2", resp.Sprint.CommitCount)
	}

	labels := map[string]int{}
	for _, node := range resp.Nodes {
		labels[node.Label]++
	}
	// 2 commits + 2 distinct files (a.py deduped)
	if labels[models.LabelCommit] != 2 || labels[models.LabelFile] != 2 {
		t.Errorf("node labels = %v", labels)
	}

	var includes, touched int
	for _, edge := range resp.Edges {
		switch edge.Type {
		case models.RelIncludes:
			includes++
			if edge.From != "sprint:3" {
				t.Errorf("INCLUDES must originate at the sprint, got %s", edge.From)
			}
		case models.RelTouched:
			touched++
		}
	}
	if includes != 2 || touched != 3 {
		t.Errorf("edges: %d INCLUDES / %d TOUCHED, want 2 / 3", includes, touched)
	}
}

func TestSprintSubgraphNotFound(t *testing.T) {
	svc := testService(&fakeBackend{})

	_, err := svc.SprintSubgraph(context.Background(), 99)
	if err == nil {
		t.Fatal("missing sprint must error")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSprintSubgraphNoCommits(t *testing.T) {
	backend := &fakeBackend{
		sprints: []map[string]any{
			{
				"number": int64(4), "name": "Empty",
				"start_date": int64(1000), "end_date": int64(2000),
				"end_inferred": true,
			},
		},
	}
	svc := testService(backend)

	resp, err := svc.SprintSubgraph(context.Background(), 4)
	if err != nil {
		t.Fatalf("sprint without commits must still resolve: %v", err)
	}
	if len(resp.Nodes) != 0 || len(resp.Edges) != 0 {
		t.Errorf("expected empty graph, got %d nodes / %d edges", len(resp.Nodes), len(resp.Edges))
	}
	if resp.Sprint.CommitCount != 0 {
		t.Errorf("commit count = %d", resp.Sprint.CommitCount)
	}
}
