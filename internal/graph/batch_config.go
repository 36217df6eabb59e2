package graph

import "github.com/rm2thaddeus/devgraph/internal/models"

// BatchConfig defines batch sizes per node type.
//
// Commit nodes carry more properties than File nodes, so they go in
// smaller batches; edges carry almost nothing and go in large ones.
type BatchConfig struct {
	CommitBatchSize      int
	FileBatchSize        int
	RequirementBatchSize int
	SprintBatchSize      int
	DocumentBatchSize    int
	ChunkBatchSize       int
	EdgeBatchSize        int
}

// DefaultBatchConfig returns batch sizes tuned for medium repositories
// (a few thousand commits)
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		CommitBatchSize:      500,
		FileBatchSize:        1000,
		RequirementBatchSize: 500,
		SprintBatchSize:      100,
		DocumentBatchSize:    500,
		ChunkBatchSize:       1000,
		EdgeBatchSize:        5000,
	}
}

// SmallBatchConfig reduces memory pressure for small repositories or
// constrained Neo4j instances
func SmallBatchConfig() BatchConfig {
	return BatchConfig{
		CommitBatchSize:      100,
		FileBatchSize:        200,
		RequirementBatchSize: 100,
		SprintBatchSize:      50,
		DocumentBatchSize:    100,
		ChunkBatchSize:       200,
		EdgeBatchSize:        1000,
	}
}

// SizeForLabel returns the batch size for a node label
func (bc BatchConfig) SizeForLabel(label string) int {
	switch label {
	case models.LabelCommit:
		return bc.CommitBatchSize
	case models.LabelFile:
		return bc.FileBatchSize
	case models.LabelRequirement:
		return bc.RequirementBatchSize
	case models.LabelSprint:
		return bc.SprintBatchSize
	case models.LabelDocument:
		return bc.DocumentBatchSize
	case models.LabelChunk:
		return bc.ChunkBatchSize
	default:
		return 500
	}
}
