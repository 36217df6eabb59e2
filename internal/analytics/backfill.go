package analytics

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	apperrors "github.com/rm2thaddeus/devgraph/internal/errors"
	"github.com/rm2thaddeus/devgraph/internal/gitlog"
	"github.com/rm2thaddeus/devgraph/internal/graph"
	"github.com/rm2thaddeus/devgraph/internal/models"
)

// backfillBatchSize is how many repairs ship per UNWIND statement
const backfillBatchSize = 200

// nullStampScanQuery finds nodes missing any identity stamp, along with
// the natural keys needed to recompute them
const nullStampScanQuery = `
	MATCH (n)
	WHERE (n:GitCommit OR n:File OR n:Requirement OR n:Sprint OR n:Document OR n:Chunk)
	  AND (n.uid IS NULL OR n.is_code IS NULL OR n.is_doc IS NULL)
	RETURN labels(n)[0] AS label, n.hash AS hash, n.path AS path,
	       n.id AS id, n.number AS number, n.uid AS uid`

// BackfillResult summarizes one repair pass
type BackfillResult struct {
	Scanned  int `json:"scanned"`
	Repaired int `json:"repaired"`
	Skipped  int `json:"skipped"`
}

// driverAccess is satisfied by the Neo4j backend. When available, the
// backfill streams its scan instead of loading every defective node
// eagerly.
type driverAccess interface {
	Driver() neo4j.DriverWithContext
	Database() string
}

// repair is one node's recomputed identity stamps, keyed by the label's
// natural key
type repair struct {
	label  string
	params map[string]any
}

// BackfillStamps recomputes uid/is_code/is_doc for legacy nodes written
// before the stamping guardrail existed. Repairs ship in batched UNWIND
// updates; nodes whose natural key is also missing cannot be repaired
// and are counted as skipped.
func (s *Service) BackfillStamps(ctx context.Context) (*BackfillResult, error) {
	result := &BackfillResult{}
	var pending []repair

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := s.writeRepairs(ctx, pending); err != nil {
			return err
		}
		result.Repaired += len(pending)
		pending = pending[:0]
		return nil
	}

	handle := func(row map[string]any) error {
		result.Scanned++
		r, ok := repairFor(row)
		if !ok {
			result.Skipped++
			return nil
		}
		pending = append(pending, r)
		if len(pending) >= backfillBatchSize {
			return flush()
		}
		return nil
	}

	if da, ok := s.backend.(driverAccess); ok {
		iter, err := graph.ExecuteQueryLazy(ctx, da.Driver(), nullStampScanQuery, nil,
			da.Database(), graph.DefaultFetchSize)
		if err != nil {
			return nil, apperrors.DatabaseError(err, "scanning for null stamps")
		}
		for iter.Next() {
			if err := handle(iter.Record().AsMap()); err != nil {
				iter.Close(ctx)
				return nil, err
			}
		}
		if err := iter.Err(); err != nil {
			iter.Close(ctx)
			return nil, apperrors.DatabaseError(err, "streaming null stamp scan")
		}
		if _, err := iter.Close(ctx); err != nil {
			return nil, apperrors.DatabaseError(err, "closing null stamp scan")
		}
	} else {
		rows, err := s.backend.ReadRows(ctx, nullStampScanQuery, nil)
		if err != nil {
			return nil, apperrors.DatabaseError(err, "scanning for null stamps")
		}
		for _, row := range rows {
			if err := handle(row); err != nil {
				return nil, err
			}
		}
	}

	if err := flush(); err != nil {
		return nil, err
	}

	s.logger.Info("stamp backfill complete",
		"scanned", result.Scanned,
		"repaired", result.Repaired,
		"skipped", result.Skipped)
	return result, nil
}

// repairFor recomputes a node's identity stamps from its natural key.
// Returns false when the key itself is missing.
func repairFor(row map[string]any) (repair, bool) {
	label := stringValue(row, "label")

	switch label {
	case models.LabelCommit:
		hash := stringValue(row, "hash")
		if hash == "" {
			return repair{}, false
		}
		return stampRepair(label, hash, models.UID(models.LabelCommit, hash), false, false), true

	case models.LabelFile:
		path := stringValue(row, "path")
		if path == "" {
			return repair{}, false
		}
		return stampRepair(label, path, models.UID(models.LabelFile, path),
			gitlog.IsCodeFile(path), gitlog.IsDocFile(path)), true

	case models.LabelDocument:
		path := stringValue(row, "path")
		if path == "" {
			return repair{}, false
		}
		return stampRepair(label, path, models.UID(models.LabelDocument, path), false, true), true

	case models.LabelChunk:
		// Chunks are keyed on uid itself; if that is gone, the node is
		// unrecoverable
		uid := stringValue(row, "uid")
		if uid == "" {
			return repair{}, false
		}
		return stampRepair(label, uid, uid, false, true), true

	case models.LabelRequirement:
		id := stringValue(row, "id")
		if id == "" {
			return repair{}, false
		}
		return stampRepair(label, id, models.UID(models.LabelRequirement, id), false, false), true

	case models.LabelSprint:
		number, ok := row["number"].(int64)
		if !ok {
			return repair{}, false
		}
		return repair{
			label: label,
			params: map[string]any{
				"key": number, "uid": models.UID(models.LabelSprint, fmt.Sprintf("%d", number)),
				"is_code": false, "is_doc": false,
			},
		}, true
	}

	return repair{}, false
}

func stampRepair(label, key, uid string, isCode, isDoc bool) repair {
	return repair{
		label: label,
		params: map[string]any{
			"key": key, "uid": uid, "is_code": isCode, "is_doc": isDoc,
		},
	}
}

// writeRepairs groups pending repairs by label and ships one UNWIND
// statement per label in a single transaction
func (s *Service) writeRepairs(ctx context.Context, pending []repair) error {
	byLabel := make(map[string][]map[string]any)
	for _, r := range pending {
		byLabel[r.label] = append(byLabel[r.label], r.params)
	}

	queries := make([]graph.QueryWithParams, 0, len(byLabel))
	for label, rows := range byLabel {
		queries = append(queries, graph.QueryWithParams{
			Query:  repairQuery(label),
			Params: map[string]any{"rows": rows},
		})
	}

	if err := s.backend.ExecuteBatchWithParams(ctx, queries); err != nil {
		return apperrors.DatabaseError(err, "writing stamp repairs")
	}
	return nil
}

// repairQuery builds the UNWIND repair statement for one label. Labels
// come from the models allowlist, never from input.
func repairQuery(label string) string {
	return fmt.Sprintf(`UNWIND $rows AS row
	MATCH (n:%s {%s: row.key})
	SET n.uid = row.uid, n.is_code = row.is_code, n.is_doc = row.is_doc`,
		label, graph.UniqueKeyForLabel(label))
}
