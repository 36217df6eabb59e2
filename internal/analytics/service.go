package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/rm2thaddeus/devgraph/internal/errors"
	"github.com/rm2thaddeus/devgraph/internal/graph"
	"github.com/rm2thaddeus/devgraph/internal/models"
	"github.com/rm2thaddeus/devgraph/internal/storage"
)

// Service answers data-quality questions about the graph and repairs
// the defects it can.
type Service struct {
	backend graph.Backend
	store   storage.Store
	logger  *slog.Logger
}

// NewService wires the analytics service. store may be nil, which
// disables report persistence.
func NewService(backend graph.Backend, store storage.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		backend: backend,
		store:   store,
		logger:  logger.With("component", "analytics"),
	}
}

// Report is the data-quality audit of the whole graph
type Report struct {
	TotalNodes            int64            `json:"total_nodes"`
	TotalEdges            int64            `json:"total_edges"`
	NodesByLabel          map[string]int64 `json:"nodes_by_label"`
	EdgesByType           map[string]int64 `json:"edges_by_type"`
	NullStampNodes        int64            `json:"null_stamp_nodes"`
	MissingEdgeTimestamps int64            `json:"missing_edge_timestamps"`
	OrphanedFiles         int64            `json:"orphaned_files"`
	InvalidRequirements   int64            `json:"invalid_requirements"`
	UnmappedCommits       int64            `json:"unmapped_commits"`
	Healthy               bool             `json:"healthy"`
	GeneratedAt           string           `json:"generated_at"`
}

// temporalEdgeTypes are the relationship types that must carry a commit
// timestamp. INCLUDES and PART_OF are structural and exempt.
var temporalEdgeTypes = []string{
	models.RelTouched,
	models.RelImplements,
	models.RelEvolvesFrom,
	models.RelRefactoredTo,
	models.RelDeprecatedBy,
	models.RelMentions,
}

// dataQualityQuery gathers every audit metric in one round trip. Each
// UNION ALL branch reports (metric, label, value); the assembly below
// fans the rows back out. One statement instead of a dashboard's worth
// of separate counts.
const dataQualityQuery = `
	MATCH (n)
	RETURN 'nodes_by_label' AS metric, labels(n)[0] AS label, count(n) AS value
	UNION ALL
	MATCH ()-[r]->()
	RETURN 'edges_by_type' AS metric, type(r) AS label, count(r) AS value
	UNION ALL
	MATCH (n)
	WHERE (n:GitCommit OR n:File)
	  AND (n.uid IS NULL OR n.is_code IS NULL OR n.is_doc IS NULL)
	RETURN 'null_stamp_nodes' AS metric, 'total' AS label, count(n) AS value
	UNION ALL
	MATCH ()-[r]->()
	WHERE type(r) IN $temporal AND r.timestamp IS NULL
	RETURN 'missing_edge_timestamps' AS metric, 'total' AS label, count(r) AS value
	UNION ALL
	MATCH (f:File)
	WHERE NOT ()-[:TOUCHED]->(f)
	RETURN 'orphaned_files' AS metric, 'total' AS label, count(f) AS value
	UNION ALL
	MATCH (q:Requirement)
	WHERE q.id IS NULL OR NOT q.id =~ '(FR|NFR)-[0-9]+'
	RETURN 'invalid_requirements' AS metric, 'total' AS label, count(q) AS value
	UNION ALL
	MATCH (c:GitCommit)
	WHERE NOT (:Sprint)-[:INCLUDES]->(c)
	RETURN 'unmapped_commits' AS metric, 'total' AS label, count(c) AS value`

// DataQuality audits the graph in a single consolidated query and
// persists the result to the quality_reports ledger. Ledger trouble is
// logged, never fatal to the audit itself.
func (s *Service) DataQuality(ctx context.Context) (*Report, error) {
	rows, err := s.backend.ReadRows(ctx, dataQualityQuery, map[string]any{
		"temporal": temporalEdgeTypes,
	})
	if err != nil {
		return nil, apperrors.DatabaseError(err, "running data quality audit")
	}

	report := &Report{
		NodesByLabel: map[string]int64{},
		EdgesByType:  map[string]int64{},
		GeneratedAt:  time.Now().UTC().Format(time.RFC3339),
	}

	for _, row := range rows {
		metric, _ := row["metric"].(string)
		label, _ := row["label"].(string)
		value := intValue(row, "value")

		switch metric {
		case "nodes_by_label":
			report.NodesByLabel[label] = value
			report.TotalNodes += value
		case "edges_by_type":
			report.EdgesByType[label] = value
			report.TotalEdges += value
		case "null_stamp_nodes":
			report.NullStampNodes = value
		case "missing_edge_timestamps":
			report.MissingEdgeTimestamps = value
		case "orphaned_files":
			report.OrphanedFiles = value
		case "invalid_requirements":
			report.InvalidRequirements = value
		case "unmapped_commits":
			report.UnmappedCommits = value
		}
	}

	report.Healthy = report.NullStampNodes == 0 &&
		report.MissingEdgeTimestamps == 0 &&
		report.OrphanedFiles == 0 &&
		report.InvalidRequirements == 0

	s.persistReport(ctx, report)

	s.logger.Info("data quality audit complete",
		"total_nodes", report.TotalNodes,
		"total_edges", report.TotalEdges,
		"null_stamps", report.NullStampNodes,
		"healthy", report.Healthy)

	return report, nil
}

func (s *Service) persistReport(ctx context.Context, report *Report) {
	if s.store == nil {
		return
	}
	row := &models.QualityReport{
		ID:                  uuid.NewString(),
		TotalNodes:          report.TotalNodes,
		TotalEdges:          report.TotalEdges,
		NullStampNodes:      report.NullStampNodes,
		MissingTimestamps:   report.MissingEdgeTimestamps,
		OrphanedFiles:       report.OrphanedFiles,
		InvalidRequirements: report.InvalidRequirements,
		UnmappedCommits:     report.UnmappedCommits,
		CreatedAt:           time.Now().UTC(),
	}
	if err := s.store.SaveQualityReport(ctx, row); err != nil {
		s.logger.Warn("could not persist quality report", "error", err)
	}
}

func intValue(row map[string]any, key string) int64 {
	switch v := row[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func stringValue(row map[string]any, key string) string {
	if v, ok := row[key].(string); ok {
		return v
	}
	return ""
}
