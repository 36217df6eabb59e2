package derive

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	apperrors "github.com/rm2thaddeus/devgraph/internal/errors"
	"github.com/rm2thaddeus/devgraph/internal/graph"
	"github.com/rm2thaddeus/devgraph/internal/models"
)

// commitScanQuery reads every ingested commit together with the code
// files it touched. Ordered ascending by time so the first commit that
// mentions a requirement defines its created_at.
const commitScanQuery = `
	MATCH (c:GitCommit)
	OPTIONAL MATCH (c)-[:TOUCHED]->(f:File)
	WHERE f.is_code = true
	RETURN c.hash AS hash,
	       c.message AS message,
	       c.author AS author,
	       c.timestamp AS timestamp,
	       collect(f.path) AS files
	ORDER BY c.timestamp ASC, c.hash ASC`

// Deriver mines requirement relationships out of commit messages that
// are already in the graph. It runs standalone (devgraph derive) or as
// a bootstrap stage; both paths read the graph, never git.
type Deriver struct {
	backend graph.Backend
	logger  *logrus.Logger
}

// Result summarizes one derivation pass
type Result struct {
	CommitsScanned  int `json:"commits_scanned"`
	CommitsMatched  int `json:"commits_matched"`
	Requirements    int `json:"requirements"`
	ImplementsEdges int `json:"implements_edges"`
	EvolvesEdges    int `json:"evolves_edges"`
	DeprecatedEdges int `json:"deprecated_edges"`
	ExcludedFiles   int `json:"excluded_files"`
}

// NewDeriver creates a relationship deriver backed by the graph
func NewDeriver(backend graph.Backend, logger *logrus.Logger) *Deriver {
	if logger == nil {
		logger = logrus.New()
	}
	return &Deriver{backend: backend, logger: logger}
}

// Run scans all commit messages in the graph and upserts Requirement
// nodes plus IMPLEMENTS, EVOLVES_FROM, and DEPRECATED_BY edges.
// Re-running is idempotent: nodes and edges MERGE on their keys.
func (d *Deriver) Run(ctx context.Context) (*Result, error) {
	rows, err := d.backend.ReadRows(ctx, commitScanQuery, nil)
	if err != nil {
		return nil, apperrors.DatabaseError(err, "scanning commit messages")
	}

	requirements := make(map[string]map[string]any)
	implements := make(map[string]graph.GraphEdge)
	var evolves, deprecated []graph.GraphEdge
	result := &Result{CommitsScanned: len(rows)}

	for _, row := range rows {
		hash := stringValue(row, "hash")
		message := stringValue(row, "message")
		if hash == "" || message == "" {
			continue
		}
		author := stringValue(row, "author")
		timestamp := intValue(row, "timestamp")

		facts := ScanMessage(message)
		if len(facts.Implements) == 0 && len(facts.Evolves) == 0 && len(facts.Deprecated) == 0 {
			continue
		}
		result.CommitsMatched++

		files := codeFiles(row["files"], result)

		for id, confidence := range facts.Implements {
			d.touchRequirement(requirements, id, message, author, timestamp)
			for _, filePath := range files {
				key := id.String() + "|" + filePath
				existing, seen := implements[key]
				if seen && existing.Properties["confidence"].(float64) >= confidence {
					continue
				}
				implements[key] = graph.GraphEdge{
					Label: models.RelImplements,
					From:  models.UID(models.LabelRequirement, id.String()),
					To:    models.UID(models.LabelFile, filePath),
					Properties: map[string]any{
						"commit":     hash,
						"timestamp":  timestamp,
						"confidence": confidence,
						"source":     "commit_message",
					},
				}
			}
		}

		for _, pair := range facts.Evolves {
			d.touchRequirement(requirements, pair.From, message, author, timestamp)
			d.touchRequirement(requirements, pair.To, "", author, timestamp)
			evolves = append(evolves, graph.GraphEdge{
				Label: models.RelEvolvesFrom,
				From:  models.UID(models.LabelRequirement, pair.From.String()),
				To:    models.UID(models.LabelRequirement, pair.To.String()),
				Properties: map[string]any{
					"commit":     hash,
					"timestamp":  timestamp,
					"confidence": ConfidenceExplicit,
				},
			})
		}

		for _, pair := range facts.Deprecated {
			d.touchRequirement(requirements, pair.From, "", author, timestamp)
			d.touchRequirement(requirements, pair.To, message, author, timestamp)
			deprecated = append(deprecated, graph.GraphEdge{
				Label: models.RelDeprecatedBy,
				From:  models.UID(models.LabelRequirement, pair.From.String()),
				To:    models.UID(models.LabelRequirement, pair.To.String()),
				Properties: map[string]any{
					"commit":    hash,
					"timestamp": timestamp,
					"reason":    Title(message, pair.To),
				},
			})
		}
	}

	nodes, err := requirementNodes(requirements)
	if err != nil {
		return nil, err
	}

	if len(nodes) > 0 {
		created, err := d.backend.CreateNodes(ctx, nodes)
		if err != nil {
			return nil, apperrors.DatabaseError(err, "writing requirement nodes")
		}
		result.Requirements = created
	}

	edges := make([]graph.GraphEdge, 0, len(implements)+len(evolves)+len(deprecated))
	edges = append(edges, sortedEdges(implements)...)
	result.ImplementsEdges = len(implements)
	edges = append(edges, evolves...)
	result.EvolvesEdges = len(evolves)
	edges = append(edges, deprecated...)
	result.DeprecatedEdges = len(deprecated)

	if len(edges) > 0 {
		if _, err := d.backend.CreateEdges(ctx, edges); err != nil {
			return nil, apperrors.DatabaseError(err, "writing derived edges")
		}
	}

	d.logger.WithFields(logrus.Fields{
		"commits_scanned": result.CommitsScanned,
		"commits_matched": result.CommitsMatched,
		"requirements":    result.Requirements,
		"implements":      result.ImplementsEdges,
		"evolves":         result.EvolvesEdges,
		"deprecated":      result.DeprecatedEdges,
		"excluded_files":  result.ExcludedFiles,
	}).Info("Derivation pass complete")

	return result, nil
}

// touchRequirement records a requirement sighting. Commits arrive in
// ascending time order, so the first sighting wins for created_at,
// author, and title; later sightings only fill a still-empty title.
func (d *Deriver) touchRequirement(requirements map[string]map[string]any, id RequirementID, message, author string, timestamp int64) {
	props, exists := requirements[id.String()]
	if !exists {
		props = map[string]any{
			"id":         id.String(),
			"kind":       id.Kind(),
			"title":      "",
			"author":     author,
			"created_at": timestamp,
			"source":     "commit_message",
		}
		requirements[id.String()] = props
	}
	if props["title"] == "" && message != "" {
		if title := Title(message, id); title != "" {
			props["title"] = title
		}
	}
}

// requirementNodes stamps and validates the collected requirements.
// A missing stamp here is a programming error, and it fails the run
// rather than writing a hole into the graph.
func requirementNodes(requirements map[string]map[string]any) ([]graph.GraphNode, error) {
	ids := make([]string, 0, len(requirements))
	for id := range requirements {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	nodes := make([]graph.GraphNode, 0, len(ids))
	for _, id := range ids {
		props := models.StampProperties(requirements[id], models.UID(models.LabelRequirement, id), false, false)
		// Empty optional fields are dropped so MERGE never blanks values
		// another pass already filled
		for _, key := range []string{"title", "author"} {
			if props[key] == "" {
				delete(props, key)
			}
		}
		if missing := models.MissingStamps(props); len(missing) > 0 {
			return nil, apperrors.GuardrailErrorf("requirement %s is missing identity stamps %v", id, missing)
		}
		nodes = append(nodes, graph.GraphNode{Label: models.LabelRequirement, Properties: props})
	}
	return nodes, nil
}

// codeFiles filters a collected file list down to derivable paths,
// dropping vendored and cached trees
func codeFiles(value any, result *Result) []string {
	raw, ok := value.([]any)
	if !ok {
		return nil
	}
	files := make([]string, 0, len(raw))
	for _, item := range raw {
		filePath, ok := item.(string)
		if !ok || filePath == "" {
			continue
		}
		if ExcludedPath(filePath) {
			result.ExcludedFiles++
			continue
		}
		files = append(files, filePath)
	}
	sort.Strings(files)
	return files
}

// sortedEdges returns map values in deterministic key order so batch
// writes (and tests) are stable
func sortedEdges(edges map[string]graph.GraphEdge) []graph.GraphEdge {
	keys := make([]string, 0, len(edges))
	for key := range edges {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]graph.GraphEdge, 0, len(keys))
	for _, key := range keys {
		out = append(out, edges[key])
	}
	return out
}

func stringValue(row map[string]any, key string) string {
	if v, ok := row[key].(string); ok {
		return v
	}
	return ""
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
