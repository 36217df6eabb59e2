package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/rm2thaddeus/devgraph/internal/logging"
)

// Neo4jBackend implements Backend against Neo4j using the v5 driver's
// ExecuteQuery API for one-shot queries and explicit sessions for
// multi-query transactions.
type Neo4jBackend struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jBackend connects to Neo4j and verifies connectivity before
// returning, so a bad URI or credentials fail at startup rather than on
// the first batch.
func NewNeo4jBackend(ctx context.Context, uri, username, password, database string) (*Neo4jBackend, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to Neo4j: %w", err)
	}

	if database == "" {
		database = "neo4j"
	}

	return &Neo4jBackend{driver: driver, database: database}, nil
}

// Driver exposes the underlying driver for lazy iteration helpers
func (n *Neo4jBackend) Driver() neo4j.DriverWithContext {
	return n.driver
}

// Database returns the configured database name
func (n *Neo4jBackend) Database() string {
	return n.database
}

// CreateNode upserts a single node using an idempotent MERGE keyed by
// the label's unique property.
func (n *Neo4jBackend) CreateNode(ctx context.Context, node GraphNode) error {
	builder := NewCypherBuilder()
	uniqueKey := UniqueKeyForLabel(node.Label)
	uniqueValue, ok := node.Properties[uniqueKey]
	if !ok {
		return fmt.Errorf("node %s is missing its unique key %q", node.Label, uniqueKey)
	}

	cypher, err := builder.BuildMergeNode(node.Label, uniqueKey, uniqueValue, node.Properties)
	if err != nil {
		return fmt.Errorf("failed to build node query: %w", err)
	}

	_, err = neo4j.ExecuteQuery(ctx, n.driver, cypher,
		builder.Params(),
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(n.database))
	if err != nil {
		return fmt.Errorf("failed to create %s node: %w", node.Label, err)
	}
	return nil
}

// CreateNodes upserts nodes grouped by label through the UNWIND batch
// writer. Returns the total number of nodes written.
func (n *Neo4jBackend) CreateNodes(ctx context.Context, nodes []GraphNode) (int, error) {
	if len(nodes) == 0 {
		return 0, nil
	}

	writer := NewBatchWriter(n.driver, n.database, DefaultBatchConfig())

	nodesByLabel := make(map[string][]GraphNode)
	for _, node := range nodes {
		nodesByLabel[node.Label] = append(nodesByLabel[node.Label], node)
	}

	total := 0
	for label, labelNodes := range nodesByLabel {
		written, err := writer.MergeNodes(ctx, label, labelNodes)
		if err != nil {
			return total, fmt.Errorf("failed to create %s nodes: %w", label, err)
		}
		total += written
	}
	return total, nil
}

// CreateEdge upserts a single edge between two node references
func (n *Neo4jBackend) CreateEdge(ctx context.Context, edge GraphEdge) error {
	from, err := ParseNodeRef(edge.From)
	if err != nil {
		return err
	}
	to, err := ParseNodeRef(edge.To)
	if err != nil {
		return err
	}

	builder := NewCypherBuilder()
	cypher, err := builder.BuildMergeEdge(from, to, edge.Label, edge.Properties)
	if err != nil {
		return fmt.Errorf("failed to build edge query: %w", err)
	}

	result, err := neo4j.ExecuteQuery(ctx, n.driver, cypher,
		builder.Params(),
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(n.database))
	if err != nil {
		return fmt.Errorf("failed to create edge %s: from=%s to=%s: %w", edge.Label, edge.From, edge.To, err)
	}

	if len(result.Records) > 0 {
		if merged, ok := result.Records[0].Get("merged"); ok {
			if count, isInt := merged.(int64); isInt && count == 0 {
				return fmt.Errorf("edge %s matched no nodes: from=%s to=%s", edge.Label, edge.From, edge.To)
			}
		}
	}
	return nil
}

// CreateEdges upserts edges grouped by relationship type through the
// UNWIND batch writer. Returns the total number of edges merged.
func (n *Neo4jBackend) CreateEdges(ctx context.Context, edges []GraphEdge) (int, error) {
	if len(edges) == 0 {
		return 0, nil
	}
	writer := NewBatchWriter(n.driver, n.database, DefaultBatchConfig())
	return writer.MergeEdges(ctx, edges)
}

// ExecuteBatchWithParams runs parameterized queries in a single write
// transaction. Used where several statements must commit or fail
// together.
func (n *Neo4jBackend) ExecuteBatchWithParams(ctx context.Context, queries []QueryWithParams) error {
	session := n.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: n.database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		for i, q := range queries {
			if _, err := tx.Run(ctx, q.Query, q.Params); err != nil {
				return nil, fmt.Errorf("batch command %d failed: %w", i, err)
			}
		}
		return nil, nil
	})
	return err
}

// ReadRows executes a read query routed to replicas and returns each
// record as a map. Queries should RETURN scalar columns so callers
// never need driver types.
func (n *Neo4jBackend) ReadRows(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	result, err := neo4j.ExecuteQuery(ctx, n.driver, query,
		params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(n.database),
		neo4j.ExecuteQueryWithReadersRouting())
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	rows := make([]map[string]any, len(result.Records))
	for i, record := range result.Records {
		rows[i] = record.AsMap()
	}
	return rows, nil
}

// Close closes the Neo4j driver connection
func (n *Neo4jBackend) Close(ctx context.Context) error {
	logging.Debug("Closing Neo4j connection")
	return n.driver.Close(ctx)
}
