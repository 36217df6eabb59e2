package ingest

import (
	"context"

	"github.com/sirupsen/logrus"

	apperrors "github.com/rm2thaddeus/devgraph/internal/errors"
	"github.com/rm2thaddeus/devgraph/internal/gitlog"
	"github.com/rm2thaddeus/devgraph/internal/graph"
	"github.com/rm2thaddeus/devgraph/internal/identity"
	"github.com/rm2thaddeus/devgraph/internal/models"
)

// RenameStats counts what the rename stage wrote
type RenameStats struct {
	Renames int `json:"renames"`
	Edges   int `json:"edges"`
}

// WriteRenameChains links renamed files with REFACTORED_TO edges so a
// file's identity survives path changes. Each edge is stamped with the
// commit that performed the rename. When a resolver is supplied, the
// full --follow chain of every rename target is refreshed in the bbolt
// cache and recorded on the new File node as historical_paths.
func WriteRenameChains(ctx context.Context, backend graph.Backend, resolver *identity.Resolver, commits []gitlog.Commit, logger *logrus.Logger) (RenameStats, error) {
	if logger == nil {
		logger = logrus.New()
	}

	stats := RenameStats{}
	var edges []graph.GraphEdge
	var chainNodes []graph.GraphNode
	seen := make(map[string]bool)

	for _, commit := range commits {
		timestamp := commit.Timestamp.Unix()
		for _, change := range commit.Files {
			if change.ChangeType != models.ChangeRenamed || change.RenamedFrom == "" {
				continue
			}
			stats.Renames++

			key := change.RenamedFrom + "|" + change.Path
			if seen[key] {
				continue
			}
			seen[key] = true

			// The old path may predate the ingested range; make sure its
			// node exists before the edge tries to match it
			oldNode, err := fileNodeFor(change.RenamedFrom, commit.Hash, timestamp)
			if err != nil {
				return stats, err
			}
			delete(oldNode.Properties, "last_modified_commit")
			delete(oldNode.Properties, "last_modified_at")
			chainNodes = append(chainNodes, oldNode)

			edges = append(edges, graph.GraphEdge{
				Label: models.RelRefactoredTo,
				From:  models.UID(models.LabelFile, change.RenamedFrom),
				To:    models.UID(models.LabelFile, change.Path),
				Properties: map[string]any{
					"commit":    commit.Hash,
					"timestamp": timestamp,
				},
			})

			if resolver != nil {
				if err := resolver.Invalidate(change.Path); err != nil {
					logger.WithFields(logrus.Fields{
						"path":  change.Path,
						"error": err.Error(),
					}).Warn("Could not invalidate rename cache entry")
				}
				if chain, err := resolver.HistoricalPaths(ctx, change.Path); err == nil && len(chain) > 1 {
					chainNodes = append(chainNodes, graph.GraphNode{
						Label: models.LabelFile,
						Properties: models.StampProperties(map[string]any{
							"path":             change.Path,
							"historical_paths": chain,
						}, models.UID(models.LabelFile, change.Path),
							gitlog.IsCodeFile(change.Path), gitlog.IsDocFile(change.Path)),
					})
				}
			}
		}
	}

	if len(chainNodes) > 0 {
		if _, err := backend.CreateNodes(ctx, chainNodes); err != nil {
			return stats, apperrors.DatabaseError(err, "writing rename chain nodes")
		}
	}
	if len(edges) > 0 {
		written, err := backend.CreateEdges(ctx, edges)
		if err != nil {
			return stats, apperrors.DatabaseError(err, "writing rename chain edges")
		}
		stats.Edges = written
	}

	if stats.Renames > 0 {
		logger.WithFields(logrus.Fields{
			"renames": stats.Renames,
			"edges":   stats.Edges,
		}).Info("Rename chains written")
	}

	return stats, nil
}
