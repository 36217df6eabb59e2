package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/rm2thaddeus/devgraph/internal/models"
)

// SQLiteStore implements the run ledger on SQLite for single-node and
// local development use
type SQLiteStore struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewSQLiteStore opens (or creates) a SQLite ledger at path
func NewSQLiteStore(path string, logger *logrus.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("connect to sqlite: %w", err)
	}

	// WAL mode lets the API read run history while an ingestion writes
	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	store := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ingest_runs (
		id TEXT PRIMARY KEY,
		repo TEXT NOT NULL,
		branch TEXT,
		trigger_source TEXT,
		status TEXT NOT NULL,
		commits INTEGER DEFAULT 0,
		files INTEGER DEFAULT 0,
		edges INTEGER DEFAULT 0,
		error_message TEXT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS quality_reports (
		id TEXT PRIMARY KEY,
		total_nodes INTEGER DEFAULT 0,
		total_edges INTEGER DEFAULT 0,
		null_stamp_nodes INTEGER DEFAULT 0,
		missing_timestamps INTEGER DEFAULT 0,
		orphaned_files INTEGER DEFAULT 0,
		invalid_requirements INTEGER DEFAULT 0,
		unmapped_commits INTEGER DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ingest_runs_started ON ingest_runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_quality_reports_created ON quality_reports(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveIngestRun(ctx context.Context, run *models.IngestRun) error {
	query := `
		INSERT OR REPLACE INTO ingest_runs
		(id, repo, branch, trigger_source, status,
		 commits, files, edges, error_message, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.Repo, run.Branch, run.Trigger, run.Status,
		run.Commits, run.Files, run.Edges, run.Error,
		run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("save ingest run: %w", err)
	}

	return nil
}

func (s *SQLiteStore) GetIngestRun(ctx context.Context, id string) (*models.IngestRun, error) {
	var run models.IngestRun
	query := `SELECT * FROM ingest_runs WHERE id = ?`

	err := s.db.GetContext(ctx, &run, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get ingest run: %w", err)
	}

	return &run, nil
}

func (s *SQLiteStore) ListIngestRuns(ctx context.Context, limit int) ([]*models.IngestRun, error) {
	var runs []*models.IngestRun
	query := `SELECT * FROM ingest_runs ORDER BY started_at DESC LIMIT ?`

	err := s.db.SelectContext(ctx, &runs, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list ingest runs: %w", err)
	}

	return runs, nil
}

func (s *SQLiteStore) SaveQualityReport(ctx context.Context, report *models.QualityReport) error {
	query := `
		INSERT OR IGNORE INTO quality_reports
		(id, total_nodes, total_edges, null_stamp_nodes, missing_timestamps,
		 orphaned_files, invalid_requirements, unmapped_commits, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		report.ID, report.TotalNodes, report.TotalEdges,
		report.NullStampNodes, report.MissingTimestamps,
		report.OrphanedFiles, report.InvalidRequirements,
		report.UnmappedCommits, report.CreatedAt)
	if err != nil {
		return fmt.Errorf("save quality report: %w", err)
	}

	return nil
}

func (s *SQLiteStore) ListQualityReports(ctx context.Context, limit int) ([]*models.QualityReport, error) {
	var reports []*models.QualityReport
	query := `SELECT * FROM quality_reports ORDER BY created_at DESC LIMIT ?`

	err := s.db.SelectContext(ctx, &reports, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list quality reports: %w", err)
	}

	return reports, nil
}
