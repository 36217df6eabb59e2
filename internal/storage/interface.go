package storage

import (
	"context"
	"errors"

	"github.com/rm2thaddeus/devgraph/internal/models"
)

// Common errors
var (
	ErrNotFound = errors.New("not found")
)

// Store is the relational run ledger. Every ingestion run and every
// data-quality audit writes a row here so operators can answer "what
// ran, when, and did it work" without querying the graph.
type Store interface {
	// Ingest run operations
	SaveIngestRun(ctx context.Context, run *models.IngestRun) error
	GetIngestRun(ctx context.Context, id string) (*models.IngestRun, error)
	ListIngestRuns(ctx context.Context, limit int) ([]*models.IngestRun, error)

	// Quality report operations
	SaveQualityReport(ctx context.Context, report *models.QualityReport) error
	ListQualityReports(ctx context.Context, limit int) ([]*models.QualityReport, error)

	// Close connection
	Close() error
}
