package models

import (
	"fmt"
	"time"
)

// Node labels in the developer graph
const (
	LabelCommit      = "GitCommit"
	LabelFile        = "File"
	LabelRequirement = "Requirement"
	LabelSprint      = "Sprint"
	LabelDocument    = "Document"
	LabelChunk       = "Chunk"
)

// Relationship types
const (
	RelTouched      = "TOUCHED"
	RelImplements   = "IMPLEMENTS"
	RelEvolvesFrom  = "EVOLVES_FROM"
	RelRefactoredTo = "REFACTORED_TO"
	RelDeprecatedBy = "DEPRECATED_BY"
	RelIncludes     = "INCLUDES"
	RelMentions     = "MENTIONS"
	RelPartOf       = "PART_OF"
)

// File change types carried on TOUCHED edges
const (
	ChangeAdded    = "added"
	ChangeModified = "modified"
	ChangeDeleted  = "deleted"
	ChangeRenamed  = "renamed"
)

// Ingest run statuses recorded in the ledger
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Stage statuses reported by the ingestion pipeline
const (
	StageStatusOK      = "ok"
	StageStatusFailed  = "failed"
	StageStatusSkipped = "skipped"
)

// refPrefixes maps node-reference prefixes to graph labels.
// References look like "commit:abc123" or "file:src/app.py" and double
// as the uid stamped onto every node.
var refPrefixes = map[string]string{
	"commit":      LabelCommit,
	"file":        LabelFile,
	"requirement": LabelRequirement,
	"sprint":      LabelSprint,
	"document":    LabelDocument,
	"chunk":       LabelChunk,
}

// uidPrefixes is the inverse of refPrefixes
var uidPrefixes = map[string]string{
	LabelCommit:      "commit",
	LabelFile:        "file",
	LabelRequirement: "requirement",
	LabelSprint:      "sprint",
	LabelDocument:    "document",
	LabelChunk:       "chunk",
}

// UID builds the identity stamp for a node: "<prefix>:<key>".
// The same string is used as the node reference on edges, so a stamped
// node is always addressable.
func UID(label, key string) string {
	prefix, ok := uidPrefixes[label]
	if !ok {
		prefix = "node"
	}
	return fmt.Sprintf("%s:%s", prefix, key)
}

// LabelForRef resolves a node reference prefix back to its label.
// Returns "" when the prefix is unknown.
func LabelForRef(prefix string) string {
	return refPrefixes[prefix]
}

// StampProperties fills the identity fields every graph node must carry.
// Every writer calls this before handing a payload to the graph backend;
// the ingestion engine re-validates afterwards and fails the batch if any
// stamp is missing.
func StampProperties(props map[string]any, uid string, isCode, isDoc bool) map[string]any {
	if props == nil {
		props = make(map[string]any)
	}
	props["uid"] = uid
	props["is_code"] = isCode
	props["is_doc"] = isDoc
	return props
}

// MissingStamps reports which identity fields are absent or null on a
// node payload. An empty result means the payload passes the guardrail.
func MissingStamps(props map[string]any) []string {
	var missing []string
	for _, key := range []string{"uid", "is_code", "is_doc"} {
		v, ok := props[key]
		if !ok || v == nil {
			missing = append(missing, key)
			continue
		}
		if s, isString := v.(string); isString && s == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// IngestRun is one row in the ingest_runs ledger table
type IngestRun struct {
	ID         string     `json:"id" db:"id"`
	Repo       string     `json:"repo" db:"repo"`
	Branch     string     `json:"branch" db:"branch"`
	Trigger    string     `json:"trigger" db:"trigger_source"`
	Status     string     `json:"status" db:"status"`
	Commits    int        `json:"commits" db:"commits"`
	Files      int        `json:"files" db:"files"`
	Edges      int        `json:"edges" db:"edges"`
	Error      string     `json:"error,omitempty" db:"error_message"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// QualityReport is one row in the quality_reports ledger table
type QualityReport struct {
	ID                  string    `json:"id" db:"id"`
	TotalNodes          int64     `json:"total_nodes" db:"total_nodes"`
	TotalEdges          int64     `json:"total_edges" db:"total_edges"`
	NullStampNodes      int64     `json:"null_stamp_nodes" db:"null_stamp_nodes"`
	MissingTimestamps   int64     `json:"missing_timestamps" db:"missing_timestamps"`
	OrphanedFiles       int64     `json:"orphaned_files" db:"orphaned_files"`
	InvalidRequirements int64     `json:"invalid_requirements" db:"invalid_requirements"`
	UnmappedCommits     int64     `json:"unmapped_commits" db:"unmapped_commits"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
}

// StageResult is the per-stage outcome reported by ingestion endpoints.
// Ingestion failures surface as a failed stage in an otherwise structured
// response, never as an opaque 500.
type StageResult struct {
	Stage     string `json:"stage"`
	Status    string `json:"status"`
	Processed int    `json:"processed"`
	Created   int    `json:"created"`
	Error     string `json:"error,omitempty"`
}
