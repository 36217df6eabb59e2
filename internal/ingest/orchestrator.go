package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rm2thaddeus/devgraph/internal/config"
	"github.com/rm2thaddeus/devgraph/internal/derive"
	"github.com/rm2thaddeus/devgraph/internal/docs"
	"github.com/rm2thaddeus/devgraph/internal/gitlog"
	"github.com/rm2thaddeus/devgraph/internal/graph"
	"github.com/rm2thaddeus/devgraph/internal/identity"
	"github.com/rm2thaddeus/devgraph/internal/models"
	"github.com/rm2thaddeus/devgraph/internal/sprints"
	"github.com/rm2thaddeus/devgraph/internal/storage"
)

// Stage names reported by the pipeline
const (
	StageSchema    = "schema"
	StageExtract   = "extract"
	StageCommits   = "commits"
	StageRenames   = "renames"
	StageDocuments = "documents"
	StageDerive    = "derive"
	StageSprints   = "sprints"
)

// PipelineResult is the structured outcome of one ingestion run. A
// failed stage shows up in Stages with its error; the caller never gets
// an opaque failure.
type PipelineResult struct {
	RunID      string               `json:"run_id"`
	Status     string               `json:"status"`
	Stages     []models.StageResult `json:"stages"`
	Commits    int                  `json:"commits"`
	Files      int                  `json:"files"`
	Edges      int                  `json:"edges"`
	DurationMS int64                `json:"duration_ms"`
}

// Orchestrator runs the ingestion pipeline stage by stage and records
// every run in the relational ledger.
type Orchestrator struct {
	cfg      *config.Config
	repoPath string
	backend  graph.Backend
	store    storage.Store
	resolver *identity.Resolver
	engine   *Engine
	logger   *logrus.Logger
}

// NewOrchestrator wires the pipeline. repoPath must already be a local
// working copy (remote URLs are resolved by the caller); store and
// resolver may be nil, disabling the ledger and the rename cache.
func NewOrchestrator(cfg *config.Config, repoPath string, backend graph.Backend, store storage.Store, resolver *identity.Resolver, logger *logrus.Logger) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
	}
	engine := NewEngine(backend, EngineConfig{
		Workers:    cfg.Ingest.Workers,
		BatchSize:  cfg.Ingest.BatchSize,
		MaxRetries: cfg.Ingest.MaxRetries,
	}, logger)

	return &Orchestrator{
		cfg:      cfg,
		repoPath: repoPath,
		backend:  backend,
		store:    store,
		resolver: resolver,
		engine:   engine,
		logger:   logger,
	}
}

// Bootstrap runs the full pipeline: schema, history extraction,
// commit/file ingestion, rename chains, documents, derived
// relationships, sprint mapping. A stage failure halts the stages after
// it and marks the run failed; the result still reports every stage
// that ran.
func (o *Orchestrator) Bootstrap(ctx context.Context, trigger string) (*PipelineResult, error) {
	return o.run(ctx, trigger, 0, true)
}

// IngestRecent extracts and merges only the N most recent commits, then
// refreshes rename chains and derived relationships. Documents and
// sprints are full-repository concerns and only run during bootstrap.
func (o *Orchestrator) IngestRecent(ctx context.Context, limit int, trigger string) (*PipelineResult, error) {
	if limit <= 0 {
		limit = o.cfg.Ingest.RecentLimit
	}
	return o.run(ctx, trigger, limit, false)
}

func (o *Orchestrator) run(ctx context.Context, trigger string, maxCount int, full bool) (*PipelineResult, error) {
	started := time.Now()
	result := &PipelineResult{
		RunID:  uuid.NewString(),
		Status: models.RunStatusRunning,
	}

	run := &models.IngestRun{
		ID:        result.RunID,
		Repo:      o.repoPath,
		Branch:    o.cfg.Repo.Branch,
		Trigger:   trigger,
		Status:    models.RunStatusRunning,
		StartedAt: started,
	}
	o.saveRun(ctx, run)

	log := o.logger.WithFields(logrus.Fields{
		"run_id":  result.RunID,
		"trigger": trigger,
		"full":    full,
	})
	log.Info("Ingestion run started")

	commits := o.runStages(ctx, result, maxCount, full)

	result.DurationMS = time.Since(started).Milliseconds()
	if result.Status == models.RunStatusRunning {
		result.Status = models.RunStatusCompleted
	}

	finished := time.Now()
	run.Status = result.Status
	run.Commits = result.Commits
	run.Files = result.Files
	run.Edges = result.Edges
	run.Error = firstStageError(result.Stages)
	run.FinishedAt = &finished
	o.saveRun(ctx, run)

	log.WithFields(logrus.Fields{
		"status":      result.Status,
		"commits":     result.Commits,
		"files":       result.Files,
		"edges":       result.Edges,
		"duration_ms": result.DurationMS,
		"extracted":   len(commits),
	}).Info("Ingestion run finished")

	return result, nil
}

// runStages executes the pipeline stages in order, stopping after the
// first failure. Returns the extracted commits for reporting.
func (o *Orchestrator) runStages(ctx context.Context, result *PipelineResult, maxCount int, full bool) []gitlog.Commit {
	if !o.stage(result, StageSchema, func() (int, int, error) {
		return 0, 0, o.backend.SetupSchema(ctx)
	}) {
		return nil
	}

	var commits []gitlog.Commit
	if !o.stage(result, StageExtract, func() (int, int, error) {
		extractor := gitlog.NewExtractor(o.repoPath, nil)
		var err error
		commits, err = extractor.Extract(ctx, gitlog.ExtractOptions{MaxCount: maxCount})
		return len(commits), 0, err
	}) {
		return commits
	}

	if !o.stage(result, StageCommits, func() (int, int, error) {
		stats, err := o.engine.IngestCommits(ctx, commits)
		result.Commits = stats.Commits
		result.Files = stats.Files
		result.Edges = stats.Edges
		return len(commits), stats.Commits + stats.Files + stats.Edges, err
	}) {
		return commits
	}

	if !o.stage(result, StageRenames, func() (int, int, error) {
		stats, err := WriteRenameChains(ctx, o.backend, o.resolver, commits, o.logger)
		result.Edges += stats.Edges
		return stats.Renames, stats.Edges, err
	}) {
		return commits
	}

	if full {
		if !o.stage(result, StageDocuments, func() (int, int, error) {
			tracker := gitlog.NewHistoryTracker(o.repoPath)
			ingestor := docs.NewIngestor(o.repoPath, o.cfg.Docs.Roots, tracker, o.backend, o.logger)
			docResult, err := ingestor.Run(ctx)
			if err != nil {
				return 0, 0, err
			}
			return docResult.Documents, docResult.Chunks + docResult.Mentions, nil
		}) {
			return commits
		}
	}

	if !o.stage(result, StageDerive, func() (int, int, error) {
		deriveResult, err := derive.NewDeriver(o.backend, o.logger).Run(ctx)
		if err != nil {
			return 0, 0, err
		}
		created := deriveResult.Requirements + deriveResult.ImplementsEdges +
			deriveResult.EvolvesEdges + deriveResult.DeprecatedEdges
		return deriveResult.CommitsScanned, created, nil
	}) {
		return commits
	}

	if full {
		if o.cfg.Sprints.DefinitionsPath == "" {
			result.Stages = append(result.Stages, models.StageResult{
				Stage:  StageSprints,
				Status: models.StageStatusSkipped,
			})
			return commits
		}
		o.stage(result, StageSprints, func() (int, int, error) {
			mapper := sprints.NewMapper(o.backend, o.logger)
			mapResult, err := mapper.MapFromFile(ctx, o.cfg.Sprints.DefinitionsPath, time.Now())
			if err != nil {
				return 0, 0, err
			}
			return mapResult.SprintsMapped + len(mapResult.Skipped), int(mapResult.CommitsLinked), nil
		})
	}

	return commits
}

// stage runs one pipeline stage and records its outcome. Returns false
// when the stage failed and the pipeline must halt.
func (o *Orchestrator) stage(result *PipelineResult, name string, fn func() (int, int, error)) bool {
	started := time.Now()
	processed, created, err := fn()

	stageResult := models.StageResult{
		Stage:     name,
		Status:    models.StageStatusOK,
		Processed: processed,
		Created:   created,
	}
	if err != nil {
		stageResult.Status = models.StageStatusFailed
		stageResult.Error = err.Error()
		result.Status = models.RunStatusFailed
	}
	result.Stages = append(result.Stages, stageResult)

	o.logger.WithFields(logrus.Fields{
		"stage":       name,
		"status":      stageResult.Status,
		"processed":   processed,
		"created":     created,
		"duration_ms": time.Since(started).Milliseconds(),
	}).Info("Pipeline stage finished")

	return err == nil
}

// saveRun persists a ledger row. Ledger trouble is logged, never fatal
// to the ingestion itself.
func (o *Orchestrator) saveRun(ctx context.Context, run *models.IngestRun) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveIngestRun(ctx, run); err != nil {
		o.logger.WithFields(logrus.Fields{
			"run_id": run.ID,
			"error":  err.Error(),
		}).Warn("Could not persist ingest run")
	}
}

func firstStageError(stages []models.StageResult) string {
	for _, stage := range stages {
		if stage.Status == models.StageStatusFailed && stage.Error != "" {
			return stage.Stage + ": " + stage.Error
		}
	}
	return ""
}
