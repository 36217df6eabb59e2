package graph

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rm2thaddeus/devgraph/internal/models"
)

// Backend defines the graph database operations the pipeline depends on.
// The concrete implementation targets Neo4j; tests substitute a
// recording fake.
type Backend interface {
	// CreateNode upserts a single node keyed by its label's unique key
	CreateNode(ctx context.Context, node GraphNode) error

	// CreateNodes upserts nodes in batches, returns the number written
	CreateNodes(ctx context.Context, nodes []GraphNode) (int, error)

	// CreateEdge upserts a single edge between node references
	CreateEdge(ctx context.Context, edge GraphEdge) error

	// CreateEdges upserts edges in batches, returns the number merged
	CreateEdges(ctx context.Context, edges []GraphEdge) (int, error)

	// ExecuteBatchWithParams runs parameterized queries in one transaction
	ExecuteBatchWithParams(ctx context.Context, queries []QueryWithParams) error

	// ReadRows runs a read query and returns each record as a map
	ReadRows(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)

	// SetupSchema creates constraints and indexes, idempotently
	SetupSchema(ctx context.Context) error

	// Close releases the underlying connection
	Close(ctx context.Context) error
}

// GraphNode represents a node to upsert. Properties must already carry
// the identity stamps (uid, is_code, is_doc); the ingestion engine
// rejects payloads that do not.
type GraphNode struct {
	Label      string
	Properties map[string]any
}

// GraphEdge represents an edge between two node references.
// References use the uid scheme: "commit:<hash>", "file:<path>",
// "requirement:FR-42", "sprint:3", "document:<path>", "chunk:<uid>".
type GraphEdge struct {
	Label      string
	From       string
	To         string
	Properties map[string]any
}

// QueryWithParams pairs a Cypher query with its parameters
type QueryWithParams struct {
	Query  string
	Params map[string]any
}

// NodeRef is a parsed node reference ready for Cypher matching.
// ID carries the natively typed key value (int64 for sprint numbers,
// string for everything else) so property comparisons match.
type NodeRef struct {
	Label string
	Key   string
	ID    any
}

// ParseNodeRef resolves a node reference like "commit:abc123" into the
// label, unique key, and typed id used to match the node. Unknown
// prefixes are an error so malformed edges fail loudly instead of
// silently matching nothing.
func ParseNodeRef(ref string) (NodeRef, error) {
	parts := strings.SplitN(ref, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return NodeRef{}, fmt.Errorf("invalid node reference %q (expected <prefix>:<key>)", ref)
	}

	label := models.LabelForRef(parts[0])
	if label == "" {
		return NodeRef{}, fmt.Errorf("unknown node reference prefix %q in %q", parts[0], ref)
	}

	key := UniqueKeyForLabel(label)

	var id any = parts[1]
	if label == models.LabelSprint {
		number, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return NodeRef{}, fmt.Errorf("sprint reference %q must carry a number: %w", ref, err)
		}
		id = number
	}
	if key == "uid" {
		// Labels keyed on uid store the prefixed reference itself
		id = ref
	}

	return NodeRef{Label: label, Key: key, ID: id}, nil
}

// uniqueKeys maps each node label to the property MERGE matches on
var uniqueKeys = map[string]string{
	models.LabelCommit:      "hash",
	models.LabelFile:        "path",
	models.LabelRequirement: "id",
	models.LabelSprint:      "number",
	models.LabelDocument:    "path",
	models.LabelChunk:       "uid",
}

// UniqueKeyForLabel returns the unique identifier field for a node label
func UniqueKeyForLabel(label string) string {
	if key, ok := uniqueKeys[label]; ok {
		return key
	}
	return "uid"
}
