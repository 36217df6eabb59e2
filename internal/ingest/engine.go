package ingest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/rm2thaddeus/devgraph/internal/errors"
	"github.com/rm2thaddeus/devgraph/internal/gitlog"
	"github.com/rm2thaddeus/devgraph/internal/graph"
	"github.com/rm2thaddeus/devgraph/internal/models"
)

// EngineConfig tunes the commit ingestion engine
type EngineConfig struct {
	// Workers is the number of concurrent partition writers
	Workers int
	// BatchSize is how many commits each write transaction covers
	BatchSize int
	// MaxRetries bounds batch-level retries on transient store errors
	MaxRetries int
}

// DefaultEngineConfig returns the default tuning
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{Workers: 4, BatchSize: 200, MaxRetries: 3}
}

// Stats counts what one engine run wrote
type Stats struct {
	Commits int `json:"commits"`
	Files   int `json:"files"`
	Edges   int `json:"edges"`
}

// Engine idempotently merges extracted commits into the graph. Work is
// partitioned into disjoint contiguous commit ranges so concurrent
// workers rarely contend on the same file keys; MERGE semantics keep
// the occasional overlap safe.
type Engine struct {
	backend graph.Backend
	cfg     EngineConfig
	logger  *logrus.Logger
	backoff time.Duration
}

// NewEngine creates an ingestion engine
func NewEngine(backend graph.Backend, cfg EngineConfig, logger *logrus.Logger) *Engine {
	def := DefaultEngineConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{backend: backend, cfg: cfg, logger: logger, backoff: 500 * time.Millisecond}
}

// IngestCommits upserts GitCommit and File nodes plus TOUCHED edges for
// every extracted commit. Re-running over an ingested range changes
// nothing: all writes MERGE on hash/path.
func (e *Engine) IngestCommits(ctx context.Context, commits []gitlog.Commit) (Stats, error) {
	stats := Stats{Files: countDistinctFiles(commits)}
	if len(commits) == 0 {
		return stats, nil
	}

	partitions := partitionCommits(commits, e.cfg.Workers)

	e.logger.WithFields(logrus.Fields{
		"commits":    len(commits),
		"partitions": len(partitions),
		"batch_size": e.cfg.BatchSize,
	}).Info("Ingesting commit history")

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex

	for _, part := range partitions {
		part := part
		g.Go(func() error {
			written, edges, err := e.ingestPartition(gctx, part)
			mu.Lock()
			stats.Commits += written
			stats.Edges += edges
			mu.Unlock()
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}

// ingestPartition writes one contiguous commit range in batches
func (e *Engine) ingestPartition(ctx context.Context, commits []gitlog.Commit) (int, int, error) {
	commitsDone := 0
	edgesDone := 0

	for start := 0; start < len(commits); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(commits) {
			end = len(commits)
		}
		batch := commits[start:end]

		nodes, edges, err := buildPayloads(batch)
		if err != nil {
			return commitsDone, edgesDone, err
		}

		err = e.writeWithRetry(ctx, func() error {
			if _, err := e.backend.CreateNodes(ctx, nodes); err != nil {
				return err
			}
			_, err := e.backend.CreateEdges(ctx, edges)
			return err
		})
		if err != nil {
			return commitsDone, edgesDone, err
		}

		commitsDone += len(batch)
		edgesDone += len(edges)
	}

	return commitsDone, edgesDone, nil
}

// writeWithRetry retries one batch write on transient store errors with
// exponential backoff. Guardrail and other permanent errors abort
// immediately.
func (e *Engine) writeWithRetry(ctx context.Context, write func() error) error {
	backoff := e.backoff

	var err error
	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		err = write()
		if err == nil {
			return nil
		}
		if !transientStoreError(err) {
			return err
		}
		if attempt == e.cfg.MaxRetries {
			break
		}

		e.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"backoff": backoff.String(),
			"error":   err.Error(),
		}).Warn("Transient store error, retrying batch")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return apperrors.DatabaseErrorf(err, "batch write failed after %d attempts", e.cfg.MaxRetries)
}

// transientStoreError classifies store failures worth a batch retry.
// Wrapped driver errors are matched on message since the driver's types
// do not survive wrapping.
func transientStoreError(err error) bool {
	if err == nil {
		return false
	}
	if apperrors.IsTransient(err) {
		return true
	}

	msg := err.Error()
	for _, marker := range []string{
		"Neo.TransientError",
		"ServiceUnavailable",
		"SessionExpired",
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"EOF",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// buildPayloads turns a commit batch into stamped node and edge
// payloads. A payload that would carry null identity stamps fails the
// whole batch with a guardrail error before anything is written.
func buildPayloads(batch []gitlog.Commit) ([]graph.GraphNode, []graph.GraphEdge, error) {
	nodes := make([]graph.GraphNode, 0, len(batch)*3)
	edges := make([]graph.GraphEdge, 0, len(batch)*2)

	for _, commit := range batch {
		timestamp := commit.Timestamp.Unix()
		commitUID := models.UID(models.LabelCommit, commit.Hash)

		commitProps := models.StampProperties(map[string]any{
			"hash":          commit.Hash,
			"message":       commit.Message,
			"author":        commit.Author,
			"author_email":  commit.Email,
			"timestamp":     timestamp,
			"additions":     commit.TotalAdditions(),
			"deletions":     commit.TotalDeletions(),
			"files_changed": len(commit.Files),
		}, commitUID, false, false)
		if missing := models.MissingStamps(commitProps); len(missing) > 0 {
			return nil, nil, apperrors.GuardrailErrorf("commit %s is missing identity stamps %v", commit.Hash, missing)
		}
		nodes = append(nodes, graph.GraphNode{Label: models.LabelCommit, Properties: commitProps})

		for _, change := range commit.Files {
			fileNode, err := fileNodeFor(change.Path, commit.Hash, timestamp)
			if err != nil {
				return nil, nil, err
			}
			nodes = append(nodes, fileNode)

			edgeProps := map[string]any{
				"change_type": change.ChangeType,
				"additions":   change.Additions,
				"deletions":   change.Deletions,
				"commit":      commit.Hash,
				"timestamp":   timestamp,
			}
			if change.RenamedFrom != "" {
				edgeProps["renamed_from"] = change.RenamedFrom
			}
			edges = append(edges, graph.GraphEdge{
				Label:      models.RelTouched,
				From:       commitUID,
				To:         models.UID(models.LabelFile, change.Path),
				Properties: edgeProps,
			})
		}
	}

	return nodes, edges, nil
}

// fileNodeFor builds a stamped File payload for one touched path
func fileNodeFor(path, commitHash string, timestamp int64) (graph.GraphNode, error) {
	props := models.StampProperties(map[string]any{
		"path":                 path,
		"extension":            gitlog.Extension(path),
		"language":             gitlog.DetectLanguage(path),
		"last_modified_commit": commitHash,
		"last_modified_at":     timestamp,
	}, models.UID(models.LabelFile, path), gitlog.IsCodeFile(path), gitlog.IsDocFile(path))
	if missing := models.MissingStamps(props); len(missing) > 0 {
		return graph.GraphNode{}, apperrors.GuardrailErrorf("file %s is missing identity stamps %v", path, missing)
	}
	return graph.GraphNode{Label: models.LabelFile, Properties: props}, nil
}

// partitionCommits splits commits into up to n contiguous ranges of
// near-equal size
func partitionCommits(commits []gitlog.Commit, n int) [][]gitlog.Commit {
	if n < 1 {
		n = 1
	}
	if n > len(commits) {
		n = len(commits)
	}

	partitions := make([][]gitlog.Commit, 0, n)
	size := (len(commits) + n - 1) / n
	for start := 0; start < len(commits); start += size {
		end := start + size
		if end > len(commits) {
			end = len(commits)
		}
		partitions = append(partitions, commits[start:end])
	}
	return partitions
}

// countDistinctFiles counts unique paths across a commit set
func countDistinctFiles(commits []gitlog.Commit) int {
	paths := make(map[string]bool)
	for _, commit := range commits {
		for _, change := range commit.Files {
			paths[change.Path] = true
		}
	}
	return len(paths)
}
