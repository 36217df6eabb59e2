package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/rm2thaddeus/devgraph/internal/logging"
)

// BatchWriter handles bulk upserts with the UNWIND pattern.
//
// Instead of one MERGE per node it sends:
//
//	UNWIND $nodes AS node
//	MERGE (n:GitCommit {hash: node.hash})
//	SET n += node
//
// which cuts round trips and lets Neo4j optimize execution. Re-running
// the same batch is a no-op apart from refreshed properties, so the
// whole ingestion pipeline stays idempotent.
type BatchWriter struct {
	driver   neo4j.DriverWithContext
	database string
	config   BatchConfig
}

// NewBatchWriter creates a batch operation handler
func NewBatchWriter(driver neo4j.DriverWithContext, database string, config BatchConfig) *BatchWriter {
	return &BatchWriter{
		driver:   driver,
		database: database,
		config:   config,
	}
}

// MergeNodes upserts nodes of one label in configured batch sizes.
// Returns the number of nodes written.
func (b *BatchWriter) MergeNodes(ctx context.Context, label string, nodes []GraphNode) (int, error) {
	if len(nodes) == 0 {
		return 0, nil
	}
	if !isValidIdentifier(label) {
		return 0, fmt.Errorf("invalid node label: %s", label)
	}

	uniqueKey := UniqueKeyForLabel(label)

	rows := make([]map[string]any, len(nodes))
	for i, node := range nodes {
		if _, ok := node.Properties[uniqueKey]; !ok {
			return 0, fmt.Errorf("%s node %d is missing its unique key %q", label, i, uniqueKey)
		}
		rows[i] = node.Properties
	}

	query := fmt.Sprintf(`
		UNWIND $nodes AS node
		MERGE (n:%s {%s: node.%s})
		SET n += node
		RETURN count(n) as created
	`, label, uniqueKey, uniqueKey)

	total := 0
	batchSize := b.config.SizeForLabel(label)
	for i := 0; i < len(rows); i += batchSize {
		end := i + batchSize
		if end > len(rows) {
			end = len(rows)
		}

		_, err := neo4j.ExecuteQuery(ctx, b.driver, query,
			map[string]any{"nodes": rows[i:end]},
			neo4j.EagerResultTransformer,
			neo4j.ExecuteQueryWithDatabase(b.database))
		if err != nil {
			return total, fmt.Errorf("batch %s creation failed (batch %d-%d): %w", label, i, end, err)
		}
		total += end - i
	}
	return total, nil
}

// MergeEdges upserts edges grouped by relationship type. Returns the
// number of edges the database reports merged.
func (b *BatchWriter) MergeEdges(ctx context.Context, edges []GraphEdge) (int, error) {
	if len(edges) == 0 {
		return 0, nil
	}

	edgesByType := make(map[string][]GraphEdge)
	for _, edge := range edges {
		edgesByType[edge.Label] = append(edgesByType[edge.Label], edge)
	}

	total := 0
	for edgeType, edgeList := range edgesByType {
		merged, err := b.mergeEdgesOfType(ctx, edgeType, edgeList)
		if err != nil {
			return total, err
		}
		total += merged
	}
	return total, nil
}

// mergeEdgesOfType processes one relationship type in batches. Cypher
// cannot parameterize labels, so node matching goes through a WHERE
// clause on labels() and a dynamic property lookup.
func (b *BatchWriter) mergeEdgesOfType(ctx context.Context, edgeType string, edges []GraphEdge) (int, error) {
	if !isValidIdentifier(edgeType) {
		return 0, fmt.Errorf("invalid edge label: %s", edgeType)
	}

	query := fmt.Sprintf(`
		UNWIND $edges AS edge
		MATCH (from)
		WHERE edge.from_label IN labels(from) AND from[edge.from_key] = edge.from_id
		MATCH (to)
		WHERE edge.to_label IN labels(to) AND to[edge.to_key] = edge.to_id
		MERGE (from)-[r:%s]->(to)
		SET r += edge.props
		RETURN count(r) as created
	`, sanitizeLabel(edgeType))

	total := 0
	batchSize := b.config.EdgeBatchSize
	for i := 0; i < len(edges); i += batchSize {
		end := i + batchSize
		if end > len(edges) {
			end = len(edges)
		}
		batch := edges[i:end]

		rows := make([]map[string]any, len(batch))
		for j, edge := range batch {
			from, err := ParseNodeRef(edge.From)
			if err != nil {
				return total, fmt.Errorf("edge %s[%d]: %w", edgeType, i+j, err)
			}
			to, err := ParseNodeRef(edge.To)
			if err != nil {
				return total, fmt.Errorf("edge %s[%d]: %w", edgeType, i+j, err)
			}

			props := edge.Properties
			if props == nil {
				props = map[string]any{}
			}
			rows[j] = map[string]any{
				"from_label": from.Label,
				"from_key":   from.Key,
				"from_id":    from.ID,
				"to_label":   to.Label,
				"to_key":     to.Key,
				"to_id":      to.ID,
				"props":      props,
			}
		}

		result, err := neo4j.ExecuteQuery(ctx, b.driver, query,
			map[string]any{"edges": rows},
			neo4j.EagerResultTransformer,
			neo4j.ExecuteQueryWithDatabase(b.database))
		if err != nil {
			return total, fmt.Errorf("batch edge creation failed for %s (batch %d-%d): %w", edgeType, i, end, err)
		}

		if len(result.Records) > 0 {
			if created, ok := result.Records[0].Get("created"); ok {
				count, _ := created.(int64)
				total += int(count)
				if count < int64(len(batch)) {
					logging.Warn("Some edges matched no nodes",
						"edge_type", edgeType,
						"merged", count,
						"expected", len(batch))
				}
			}
		}
	}
	return total, nil
}

// sanitizeLabel strips anything outside [a-zA-Z0-9_]. Labels are already
// validated by isValidIdentifier, this is the second line.
func sanitizeLabel(label string) string {
	var result strings.Builder
	for _, r := range label {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			result.WriteRune(r)
		}
	}
	return result.String()
}
