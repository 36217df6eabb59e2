package query

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rm2thaddeus/devgraph/internal/cache"
	apperrors "github.com/rm2thaddeus/devgraph/internal/errors"
	"github.com/rm2thaddeus/devgraph/internal/models"
)

// SprintSummary is one sprint with its resolved window and how many
// commits it claimed
type SprintSummary struct {
	Number      int64  `json:"number"`
	Name        string `json:"name"`
	Window      Window `json:"window"`
	EndInferred bool   `json:"end_inferred"`
	CommitCount int64  `json:"commit_count"`
}

// SprintListResponse lists every mapped sprint in number order
type SprintListResponse struct {
	Sprints []SprintSummary `json:"sprints"`
}

// SprintSubgraphResponse is the hierarchical subgraph of one sprint:
// the sprint, its commits, and the files those commits touched.
type SprintSubgraphResponse struct {
	Sprint SprintSummary `json:"sprint"`
	Nodes  []Node        `json:"nodes"`
	Edges  []Edge        `json:"relationships"`
}

const sprintListQuery = `
	MATCH (s:Sprint)
	OPTIONAL MATCH (s)-[:INCLUDES]->(c:GitCommit)
	RETURN s.number AS number, s.name AS name,
	       s.start_date AS start_date, s.end_date AS end_date,
	       s.end_inferred AS end_inferred, count(c) AS commit_count
	ORDER BY number ASC`

// sprintSubgraphQuery walks sprint -> commits -> files in one round
// trip. Rows arrive denormalized; the service reassembles them.
const sprintSubgraphQuery = `
	MATCH (s:Sprint {number: $number})
	OPTIONAL MATCH (s)-[:INCLUDES]->(c:GitCommit)
	OPTIONAL MATCH (c)-[t:TOUCHED]->(f:File)
	RETURN s.number AS number, s.name AS name,
	       s.start_date AS start_date, s.end_date AS end_date,
	       s.end_inferred AS end_inferred,
	       c.uid AS commit_uid, c.hash AS hash, c.message AS message,
	       c.author AS author, c.timestamp AS timestamp,
	       f.uid AS file_uid, f.path AS path, f.language AS language,
	       f.is_code AS is_code, f.is_doc AS is_doc,
	       t.change_type AS change_type, t.additions AS additions,
	       t.deletions AS deletions
	ORDER BY timestamp ASC, hash ASC, path ASC`

// Sprints lists every sprint in the graph with window and commit count
func (s *Service) Sprints(ctx context.Context) (*SprintListResponse, error) {
	rows, err := s.backend.ReadRows(ctx, sprintListQuery, nil)
	if err != nil {
		return nil, apperrors.DatabaseError(err, "listing sprints")
	}

	resp := &SprintListResponse{Sprints: []SprintSummary{}}
	for _, row := range rows {
		resp.Sprints = append(resp.Sprints, sprintSummary(row))
	}
	return resp, nil
}

// SprintSubgraph returns one sprint's commits and touched files.
// Returns ErrNotFound when no sprint carries the number.
func (s *Service) SprintSubgraph(ctx context.Context, number int64) (*SprintSubgraphResponse, error) {
	key := cache.SprintSubgraphKey(int(number))
	var cached SprintSubgraphResponse
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	rows, err := s.backend.ReadRows(ctx, sprintSubgraphQuery, map[string]any{"number": number})
	if err != nil {
		return nil, apperrors.DatabaseError(err, "querying sprint subgraph")
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sprint %d: %w", number, ErrNotFound)
	}

	resp := &SprintSubgraphResponse{
		Sprint: sprintSummary(rows[0]),
		Nodes:  []Node{},
		Edges:  []Edge{},
	}
	sprintUID := models.UID(models.LabelSprint, strconv.FormatInt(number, 10))

	seenCommits := make(map[string]bool)
	seenFiles := make(map[string]bool)
	for _, row := range rows {
		commitUID := stringValue(row, "commit_uid")
		if commitUID == "" {
			continue
		}
		if !seenCommits[commitUID] {
			seenCommits[commitUID] = true
			resp.Nodes = append(resp.Nodes, Node{
				UID:        commitUID,
				Label:      models.LabelCommit,
				Properties: rowProps(row, "hash", "message", "author", "timestamp"),
			})
			resp.Edges = append(resp.Edges, Edge{
				Type:       models.RelIncludes,
				From:       sprintUID,
				To:         commitUID,
				Properties: map[string]any{},
			})
		}

		fileUID := stringValue(row, "file_uid")
		if fileUID == "" {
			continue
		}
		if !seenFiles[fileUID] {
			seenFiles[fileUID] = true
			resp.Nodes = append(resp.Nodes, Node{
				UID:        fileUID,
				Label:      models.LabelFile,
				Properties: rowProps(row, "path", "language", "is_code", "is_doc"),
			})
		}
		resp.Edges = append(resp.Edges, Edge{
			Type:       models.RelTouched,
			From:       commitUID,
			To:         fileUID,
			Properties: rowProps(row, "change_type", "additions", "deletions"),
		})
	}
	resp.Sprint.CommitCount = int64(len(seenCommits))

	s.cachePut(ctx, key, resp)
	return resp, nil
}

func sprintSummary(row map[string]any) SprintSummary {
	return SprintSummary{
		Number:      intValue(row, "number"),
		Name:        stringValue(row, "name"),
		Window:      NewWindow(intValue(row, "start_date"), intValue(row, "end_date")),
		EndInferred: boolValue(row, "end_inferred"),
		CommitCount: intValue(row, "commit_count"),
	}
}
