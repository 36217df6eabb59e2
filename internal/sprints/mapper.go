package sprints

import (
	"context"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/rm2thaddeus/devgraph/internal/errors"
	"github.com/rm2thaddeus/devgraph/internal/graph"
	"github.com/rm2thaddeus/devgraph/internal/models"
)

// includesQuery links one sprint to every commit inside its window.
// Half-open interval so back-to-back sprints never double-claim the
// boundary commit.
const includesQuery = `
	MATCH (s:Sprint {number: $number})
	MATCH (c:GitCommit)
	WHERE c.timestamp >= $start AND c.timestamp < $end
	MERGE (s)-[:INCLUDES]->(c)`

// includesCountQuery reads back how many commits each sprint claimed
const includesCountQuery = `
	MATCH (s:Sprint)-[r:INCLUDES]->(:GitCommit)
	RETURN s.number AS number, count(r) AS commits`

// Mapper writes Sprint nodes and their INCLUDES edges into the graph
type Mapper struct {
	backend graph.Backend
	logger  *logrus.Logger
}

// Result summarizes one mapping pass
type Result struct {
	SprintsMapped    int             `json:"sprints_mapped"`
	CommitsLinked    int64           `json:"commits_linked"`
	CommitsPerSprint map[int64]int64 `json:"commits_per_sprint,omitempty"`
	Skipped          []Skipped       `json:"skipped,omitempty"`
}

// NewMapper creates a sprint mapper backed by the graph
func NewMapper(backend graph.Backend, logger *logrus.Logger) *Mapper {
	if logger == nil {
		logger = logrus.New()
	}
	return &Mapper{backend: backend, logger: logger}
}

// MapFromFile loads definitions, resolves windows against now, and maps
// the resolved sprints. Skipped definitions are logged and reported in
// the result, never dropped silently.
func (m *Mapper) MapFromFile(ctx context.Context, path string, now time.Time) (*Result, error) {
	defs, err := LoadDefinitions(path)
	if err != nil {
		return nil, err
	}

	resolved, skipped := ResolveWindows(defs, now)
	for _, skip := range skipped {
		m.logger.WithFields(logrus.Fields{
			"sprint": skip.Number,
			"name":   skip.Name,
			"reason": skip.Reason,
		}).Warn("Skipping sprint definition")
	}

	result, err := m.Map(ctx, resolved)
	if err != nil {
		return nil, err
	}
	result.Skipped = skipped
	return result, nil
}

// Map upserts Sprint nodes and recomputes their INCLUDES edges in one
// write transaction. Re-running with the same definitions is a no-op.
func (m *Mapper) Map(ctx context.Context, sprintList []Sprint) (*Result, error) {
	result := &Result{CommitsPerSprint: make(map[int64]int64)}
	if len(sprintList) == 0 {
		return result, nil
	}

	nodes := make([]graph.GraphNode, 0, len(sprintList))
	queries := make([]graph.QueryWithParams, 0, len(sprintList))
	for _, sprint := range sprintList {
		uid := models.UID(models.LabelSprint, strconv.FormatInt(sprint.Number, 10))
		props := models.StampProperties(map[string]any{
			"number":       sprint.Number,
			"name":         sprint.Name,
			"start_date":   sprint.Start.Unix(),
			"end_date":     sprint.End.Unix(),
			"end_inferred": sprint.EndInferred,
		}, uid, false, false)
		if missing := models.MissingStamps(props); len(missing) > 0 {
			return nil, apperrors.GuardrailErrorf("sprint %d is missing identity stamps %v", sprint.Number, missing)
		}
		nodes = append(nodes, graph.GraphNode{Label: models.LabelSprint, Properties: props})

		queries = append(queries, graph.QueryWithParams{
			Query: includesQuery,
			Params: map[string]any{
				"number": sprint.Number,
				"start":  sprint.Start.Unix(),
				"end":    sprint.End.Unix(),
			},
		})
	}

	written, err := m.backend.CreateNodes(ctx, nodes)
	if err != nil {
		return nil, apperrors.DatabaseError(err, "writing sprint nodes")
	}
	result.SprintsMapped = written

	if err := m.backend.ExecuteBatchWithParams(ctx, queries); err != nil {
		return nil, apperrors.DatabaseError(err, "linking commits to sprints")
	}

	rows, err := m.backend.ReadRows(ctx, includesCountQuery, nil)
	if err != nil {
		return nil, apperrors.DatabaseError(err, "counting sprint commits")
	}
	for _, row := range rows {
		number, _ := row["number"].(int64)
		commits, _ := row["commits"].(int64)
		result.CommitsPerSprint[number] = commits
		result.CommitsLinked += commits
	}

	m.logger.WithFields(logrus.Fields{
		"sprints": result.SprintsMapped,
		"commits": result.CommitsLinked,
	}).Info("Sprint mapping complete")

	return result, nil
}
