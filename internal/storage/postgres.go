package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/rm2thaddeus/devgraph/internal/models"
)

// PostgresStore implements the run ledger on PostgreSQL
type PostgresStore struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPostgresStore connects to PostgreSQL and ensures the ledger tables
// exist
func NewPostgresStore(dsn string, logger *logrus.Logger) (*PostgresStore, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &PostgresStore{
		db:     db,
		logger: logger,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ingest_runs (
		id UUID PRIMARY KEY,
		repo TEXT NOT NULL,
		branch TEXT,
		trigger_source TEXT,
		status TEXT NOT NULL,
		commits INTEGER DEFAULT 0,
		files INTEGER DEFAULT 0,
		edges INTEGER DEFAULT 0,
		error_message TEXT,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS quality_reports (
		id UUID PRIMARY KEY,
		total_nodes BIGINT DEFAULT 0,
		total_edges BIGINT DEFAULT 0,
		null_stamp_nodes BIGINT DEFAULT 0,
		missing_timestamps BIGINT DEFAULT 0,
		orphaned_files BIGINT DEFAULT 0,
		invalid_requirements BIGINT DEFAULT 0,
		unmapped_commits BIGINT DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ingest_runs_started ON ingest_runs(started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_quality_reports_created ON quality_reports(created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// SaveIngestRun upserts a run row. The same row is written at run start
// (status running) and again at completion, so conflicts update in
// place.
func (s *PostgresStore) SaveIngestRun(ctx context.Context, run *models.IngestRun) error {
	query := `
		INSERT INTO ingest_runs (id, repo, branch, trigger_source, status,
			commits, files, edges, error_message, started_at, finished_at)
		VALUES (:id, :repo, :branch, :trigger_source, :status,
			:commits, :files, :edges, :error_message, :started_at, :finished_at)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			commits = EXCLUDED.commits,
			files = EXCLUDED.files,
			edges = EXCLUDED.edges,
			error_message = EXCLUDED.error_message,
			finished_at = EXCLUDED.finished_at
	`

	_, err := s.db.NamedExecContext(ctx, query, run)
	if err != nil {
		return fmt.Errorf("save ingest run: %w", err)
	}

	return nil
}

func (s *PostgresStore) GetIngestRun(ctx context.Context, id string) (*models.IngestRun, error) {
	var run models.IngestRun
	query := `SELECT * FROM ingest_runs WHERE id = $1`

	err := s.db.GetContext(ctx, &run, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get ingest run: %w", err)
	}

	return &run, nil
}

func (s *PostgresStore) ListIngestRuns(ctx context.Context, limit int) ([]*models.IngestRun, error) {
	var runs []*models.IngestRun
	query := `SELECT * FROM ingest_runs ORDER BY started_at DESC LIMIT $1`

	err := s.db.SelectContext(ctx, &runs, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list ingest runs: %w", err)
	}

	return runs, nil
}

// SaveQualityReport inserts an audit report row. Reports are immutable;
// a rerun produces a new row rather than rewriting history.
func (s *PostgresStore) SaveQualityReport(ctx context.Context, report *models.QualityReport) error {
	query := `
		INSERT INTO quality_reports (id, total_nodes, total_edges,
			null_stamp_nodes, missing_timestamps, orphaned_files,
			invalid_requirements, unmapped_commits, created_at)
		VALUES (:id, :total_nodes, :total_edges,
			:null_stamp_nodes, :missing_timestamps, :orphaned_files,
			:invalid_requirements, :unmapped_commits, :created_at)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := s.db.NamedExecContext(ctx, query, report)
	if err != nil {
		return fmt.Errorf("save quality report: %w", err)
	}

	return nil
}

func (s *PostgresStore) ListQualityReports(ctx context.Context, limit int) ([]*models.QualityReport, error) {
	var reports []*models.QualityReport
	query := `SELECT * FROM quality_reports ORDER BY created_at DESC LIMIT $1`

	err := s.db.SelectContext(ctx, &reports, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list quality reports: %w", err)
	}

	return reports, nil
}
