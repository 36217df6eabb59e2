package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/rm2thaddeus/devgraph/internal/logging"
)

// schemaStatements declare the uniqueness constraints and indexes the
// pipeline relies on. Uniqueness constraints back the MERGE keys;
// timestamp indexes back the windowed queries. Each statement must run
// on its own since Neo4j forbids mixing schema commands in one
// transaction.
var schemaStatements = []string{
	"CREATE CONSTRAINT commit_hash_unique IF NOT EXISTS FOR (c:GitCommit) REQUIRE c.hash IS UNIQUE",
	"CREATE CONSTRAINT file_path_unique IF NOT EXISTS FOR (f:File) REQUIRE f.path IS UNIQUE",
	"CREATE CONSTRAINT requirement_id_unique IF NOT EXISTS FOR (r:Requirement) REQUIRE r.id IS UNIQUE",
	"CREATE CONSTRAINT sprint_number_unique IF NOT EXISTS FOR (s:Sprint) REQUIRE s.number IS UNIQUE",
	"CREATE CONSTRAINT document_path_unique IF NOT EXISTS FOR (d:Document) REQUIRE d.path IS UNIQUE",
	"CREATE CONSTRAINT chunk_uid_unique IF NOT EXISTS FOR (c:Chunk) REQUIRE c.uid IS UNIQUE",
	"CREATE INDEX commit_timestamp_index IF NOT EXISTS FOR (c:GitCommit) ON (c.timestamp)",
	"CREATE INDEX document_timestamp_index IF NOT EXISTS FOR (d:Document) ON (d.timestamp)",
	"CREATE INDEX file_uid_index IF NOT EXISTS FOR (f:File) ON (f.uid)",
}

// SetupSchema creates all constraints and indexes. Safe to run on every
// startup thanks to IF NOT EXISTS.
func (n *Neo4jBackend) SetupSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		_, err := neo4j.ExecuteQuery(ctx, n.driver, stmt, nil,
			neo4j.EagerResultTransformer,
			neo4j.ExecuteQueryWithDatabase(n.database))
		if err != nil {
			return fmt.Errorf("schema statement failed: %s: %w", stmt, err)
		}
	}
	logging.Info("Graph schema ready", "statements", len(schemaStatements))
	return nil
}
