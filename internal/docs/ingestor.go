package docs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rm2thaddeus/devgraph/internal/derive"
	apperrors "github.com/rm2thaddeus/devgraph/internal/errors"
	"github.com/rm2thaddeus/devgraph/internal/graph"
	"github.com/rm2thaddeus/devgraph/internal/models"
)

// gitStamper supplies the commit hash and time that stamp a document.
// Satisfied by gitlog.HistoryTracker; documents are never stamped from
// filesystem mtimes or front-matter dates.
type gitStamper interface {
	LastCommit(ctx context.Context, filePath string) (string, time.Time, error)
}

// Ingestor discovers markdown documents, chunks them by heading, and
// writes Document/Chunk nodes plus PART_OF and MENTIONS edges.
type Ingestor struct {
	repoPath string
	roots    []string
	stamper  gitStamper
	backend  graph.Backend
	logger   *logrus.Logger
}

// Result summarizes one documentation pass
type Result struct {
	Documents    int `json:"documents"`
	Chunks       int `json:"chunks"`
	Mentions     int `json:"mentions"`
	Requirements int `json:"requirements"`
	Skipped      int `json:"skipped"`
}

// NewIngestor creates a document ingestor. Roots are repo-relative
// directories to scan; empty means the whole repository.
func NewIngestor(repoPath string, roots []string, stamper gitStamper, backend graph.Backend, logger *logrus.Logger) *Ingestor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Ingestor{
		repoPath: repoPath,
		roots:    roots,
		stamper:  stamper,
		backend:  backend,
		logger:   logger,
	}
}

// Run walks the doc roots and upserts every markdown document found.
// Files without git history are skipped with a warning: an untracked
// document has no sanctioned time source.
func (i *Ingestor) Run(ctx context.Context) (*Result, error) {
	result := &Result{}

	var nodes []graph.GraphNode
	var edges []graph.GraphEdge
	requirements := make(map[string]graph.GraphNode)

	for relPath := range WalkMarkdown(i.repoPath, i.roots) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		docNodes, docEdges, err := i.processDocument(ctx, relPath, requirements, result)
		if err != nil {
			i.logger.WithFields(logrus.Fields{
				"document": relPath,
				"error":    err.Error(),
			}).Warn("Skipping document")
			result.Skipped++
			continue
		}
		nodes = append(nodes, docNodes...)
		edges = append(edges, docEdges...)
	}

	for _, node := range requirements {
		nodes = append(nodes, node)
	}
	result.Requirements = len(requirements)

	if len(nodes) > 0 {
		if _, err := i.backend.CreateNodes(ctx, nodes); err != nil {
			return nil, apperrors.DatabaseError(err, "writing document nodes")
		}
	}
	if len(edges) > 0 {
		if _, err := i.backend.CreateEdges(ctx, edges); err != nil {
			return nil, apperrors.DatabaseError(err, "writing document edges")
		}
	}

	i.logger.WithFields(logrus.Fields{
		"documents": result.Documents,
		"chunks":    result.Chunks,
		"mentions":  result.Mentions,
		"skipped":   result.Skipped,
	}).Info("Document ingestion complete")

	return result, nil
}

// processDocument builds the nodes and edges for one markdown file
func (i *Ingestor) processDocument(ctx context.Context, relPath string, requirements map[string]graph.GraphNode, result *Result) ([]graph.GraphNode, []graph.GraphEdge, error) {
	commitHash, commitTime, err := i.stamper.LastCommit(ctx, relPath)
	if err != nil {
		return nil, nil, fmt.Errorf("no git history: %w", err)
	}
	timestamp := commitTime.Unix()

	content, err := os.ReadFile(filepath.Join(i.repoPath, filepath.FromSlash(relPath)))
	if err != nil {
		return nil, nil, fmt.Errorf("reading document: %w", err)
	}

	sections := ChunkMarkdown(string(content))

	docUID := models.UID(models.LabelDocument, relPath)
	docProps := models.StampProperties(map[string]any{
		"path":                 relPath,
		"title":                documentTitle(relPath, sections),
		"last_modified_commit": commitHash,
		"last_modified_at":     timestamp,
		"chunks":               len(sections),
	}, docUID, false, true)
	if missing := models.MissingStamps(docProps); len(missing) > 0 {
		return nil, nil, apperrors.GuardrailErrorf("document %s is missing identity stamps %v", relPath, missing)
	}

	nodes := []graph.GraphNode{{Label: models.LabelDocument, Properties: docProps}}
	var edges []graph.GraphEdge
	result.Documents++

	for _, section := range sections {
		chunkKey := fmt.Sprintf("%s#%s#%d", relPath, Slug(section.Heading), section.Ordinal)
		chunkUID := models.UID(models.LabelChunk, chunkKey)

		chunkProps := models.StampProperties(map[string]any{
			"heading": section.Heading,
			"ordinal": section.Ordinal,
			"text":    Excerpt(section.Text),
			"length":  len(section.Text),
		}, chunkUID, false, true)
		if missing := models.MissingStamps(chunkProps); len(missing) > 0 {
			return nil, nil, apperrors.GuardrailErrorf("chunk %s is missing identity stamps %v", chunkKey, missing)
		}
		nodes = append(nodes, graph.GraphNode{Label: models.LabelChunk, Properties: chunkProps})
		result.Chunks++

		edges = append(edges, graph.GraphEdge{
			Label:      models.RelPartOf,
			From:       chunkUID,
			To:         docUID,
			Properties: map[string]any{"ordinal": section.Ordinal},
		})

		for _, id := range derive.ExtractRequirementIDs(section.Text + "\n" + section.Heading) {
			i.mintRequirement(requirements, id, commitHash, timestamp)
			edges = append(edges, graph.GraphEdge{
				Label: models.RelMentions,
				From:  chunkUID,
				To:    models.UID(models.LabelRequirement, id.String()),
				Properties: map[string]any{
					"commit":     commitHash,
					"timestamp":  timestamp,
					"confidence": derive.ConfidenceDocChunk,
				},
			})
			result.Mentions++
		}
	}

	return nodes, edges, nil
}

// mintRequirement ensures a mentioned requirement exists in the graph.
// created_at comes from the mentioning document's commit; a later
// derivation pass over commit messages refines it when the requirement
// shows up there too.
func (i *Ingestor) mintRequirement(requirements map[string]graph.GraphNode, id derive.RequirementID, commitHash string, timestamp int64) {
	if _, exists := requirements[id.String()]; exists {
		return
	}
	props := models.StampProperties(map[string]any{
		"id":         id.String(),
		"kind":       id.Kind(),
		"created_at": timestamp,
		"source":     "doc_chunk",
	}, models.UID(models.LabelRequirement, id.String()), false, false)
	requirements[id.String()] = graph.GraphNode{Label: models.LabelRequirement, Properties: props}
}

// documentTitle prefers the first heading, falling back to the filename
func documentTitle(relPath string, sections []Section) string {
	for _, section := range sections {
		if section.Heading != "" {
			return section.Heading
		}
	}
	return filepath.Base(relPath)
}
