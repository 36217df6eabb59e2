package graph

import (
	"fmt"
	"regexp"
	"strings"
)

// CypherBuilder builds parameterized Cypher queries. Every value goes
// through a parameter; identifiers (labels, property keys) are
// validated against a strict pattern so callers can never smuggle
// Cypher through a node payload.
type CypherBuilder struct {
	params  map[string]any
	counter int
}

// NewCypherBuilder creates a query builder
func NewCypherBuilder() *CypherBuilder {
	return &CypherBuilder{
		params: make(map[string]any),
	}
}

// AddParam registers a value and returns its placeholder
func (b *CypherBuilder) AddParam(value any) string {
	name := fmt.Sprintf("p%d", b.counter)
	b.counter++
	b.params[name] = value
	return "$" + name
}

// Params returns all parameters accumulated so far
func (b *CypherBuilder) Params() map[string]any {
	return b.params
}

// BuildMergeNode creates an idempotent MERGE for a single node keyed by
// uniqueKey. All property values become parameters.
func (b *CypherBuilder) BuildMergeNode(label, uniqueKey string, uniqueValue any, properties map[string]any) (string, error) {
	if !isValidIdentifier(label) {
		return "", fmt.Errorf("invalid node label: %s (must be alphanumeric + underscore)", label)
	}
	if !isValidIdentifier(uniqueKey) {
		return "", fmt.Errorf("invalid unique key: %s (must be alphanumeric + underscore)", uniqueKey)
	}

	uniqueParam := b.AddParam(uniqueValue)

	setClauses := make([]string, 0, len(properties))
	for key, value := range properties {
		if !isValidIdentifier(key) {
			return "", fmt.Errorf("invalid property key: %s (must be alphanumeric + underscore)", key)
		}
		setClauses = append(setClauses, fmt.Sprintf("n.%s = %s", key, b.AddParam(value)))
	}

	query := fmt.Sprintf("MERGE (n:%s {%s: %s})", label, uniqueKey, uniqueParam)
	if len(setClauses) > 0 {
		query += " SET " + strings.Join(setClauses, ", ")
	}
	return query + " RETURN n.uid as uid", nil
}

// BuildMergeEdge creates an idempotent MERGE for a single edge between
// two matched nodes.
func (b *CypherBuilder) BuildMergeEdge(from, to NodeRef, edgeLabel string, properties map[string]any) (string, error) {
	for _, ident := range []string{from.Label, from.Key, to.Label, to.Key, edgeLabel} {
		if !isValidIdentifier(ident) {
			return "", fmt.Errorf("invalid identifier: %s", ident)
		}
	}

	fromParam := b.AddParam(from.ID)
	toParam := b.AddParam(to.ID)

	var propsClause string
	if len(properties) > 0 {
		clauses := make([]string, 0, len(properties))
		for key, value := range properties {
			if !isValidIdentifier(key) {
				return "", fmt.Errorf("invalid edge property key: %s", key)
			}
			clauses = append(clauses, fmt.Sprintf("r.%s = %s", key, b.AddParam(value)))
		}
		propsClause = " SET " + strings.Join(clauses, ", ")
	}

	return fmt.Sprintf(
		"MATCH (from:%s {%s: %s}) MATCH (to:%s {%s: %s}) MERGE (from)-[r:%s]->(to)%s RETURN count(r) as merged",
		from.Label, from.Key, fromParam,
		to.Label, to.Key, toParam,
		edgeLabel,
		propsClause,
	), nil
}

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// isValidIdentifier reports whether s is safe to splice into a query as
// a label or property key
func isValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}
