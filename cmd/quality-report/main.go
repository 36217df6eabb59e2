package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/rm2thaddeus/devgraph/internal/analytics"
	"github.com/rm2thaddeus/devgraph/internal/graph"
)

// Standalone audit runner for cron jobs and CI. Reads the graph,
// writes one quality_reports row, and prints ledger statistics so a
// scheduled run leaves a readable trail in the job log.
func main() {
	ctx := context.Background()

	log.Println("=== Developer Graph Quality Report ===")
	log.Println("")

	// Get database URL
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	// Connect to PostgreSQL
	log.Println("Connecting to PostgreSQL...")
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("✅ Connected to PostgreSQL")

	// Connect to Neo4j
	log.Println("Connecting to Neo4j...")
	backend, err := graph.NewNeo4jBackend(
		ctx,
		getEnvOrDefault("NEO4J_URI", "bolt://localhost:7687"),
		getEnvOrDefault("NEO4J_USERNAME", "neo4j"),
		os.Getenv("NEO4J_PASSWORD"),
		getEnvOrDefault("NEO4J_DATABASE", "neo4j"),
	)
	if err != nil {
		log.Fatalf("Failed to connect to Neo4j: %v", err)
	}
	defer backend.Close(ctx)
	log.Println("✅ Connected to Neo4j")
	log.Println("")

	service := analytics.NewService(backend, nil, nil)

	// Step 1: optional stamp backfill
	if os.Getenv("BACKFILL_STAMPS") == "true" {
		log.Println("Step 1: Backfilling identity stamps...")
		backfill, err := service.BackfillStamps(ctx)
		if err != nil {
			log.Fatalf("❌ Backfill failed: %v", err)
		}
		log.Printf("✅ Repaired %d of %d defective nodes\n", backfill.Repaired, backfill.Scanned)
	} else {
		log.Println("Step 1: Skipping stamp backfill (set BACKFILL_STAMPS=true to enable)")
	}
	log.Println("")

	// Step 2: consolidated audit
	log.Println("Step 2: Running data-quality audit...")
	report, err := service.DataQuality(ctx)
	if err != nil {
		log.Fatalf("❌ Audit failed: %v", err)
	}
	log.Printf("✅ Audited %d nodes, %d edges\n", report.TotalNodes, report.TotalEdges)
	log.Println("")

	// Step 3: persist findings
	log.Println("Step 3: Writing report to ledger...")
	reportID := uuid.NewString()
	_, err = db.ExecContext(ctx, `
		INSERT INTO quality_reports (id, total_nodes, total_edges,
			null_stamp_nodes, missing_timestamps, orphaned_files,
			invalid_requirements, unmapped_commits, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		reportID, report.TotalNodes, report.TotalEdges,
		report.NullStampNodes, report.MissingEdgeTimestamps, report.OrphanedFiles,
		report.InvalidRequirements, report.UnmappedCommits, time.Now().UTC(),
	)
	if err != nil {
		log.Fatalf("❌ Failed to write report: %v", err)
	}
	log.Printf("✅ Report %s saved\n", reportID)
	log.Println("")

	// Show findings
	log.Println("=== Findings ===")
	log.Printf("Null identity stamps:      %d", report.NullStampNodes)
	log.Printf("Edges missing timestamps:  %d", report.MissingEdgeTimestamps)
	log.Printf("Orphaned files:            %d", report.OrphanedFiles)
	log.Printf("Invalid requirement IDs:   %d", report.InvalidRequirements)
	log.Printf("Commits outside sprints:   %d", report.UnmappedCommits)
	log.Println("")

	// Show ingest run history from the ledger
	log.Println("=== Ingest Run History ===")
	rows, err := db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM ingest_runs GROUP BY status ORDER BY status`)
	if err != nil {
		log.Fatalf("❌ Failed to read run history: %v", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			log.Fatalf("❌ Failed to scan run history: %v", err)
		}
		log.Printf("%-12s %d runs", status, count)
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("❌ Run history iteration failed: %v", err)
	}
	log.Println("")

	// Show recent failures
	failures, err := db.QueryContext(ctx, `
		SELECT id, started_at, error_message FROM ingest_runs
		WHERE status = 'failed' ORDER BY started_at DESC LIMIT 5`)
	if err != nil {
		log.Fatalf("❌ Failed to read recent failures: %v", err)
	}
	defer failures.Close()

	failureCount := 0
	for failures.Next() {
		if failureCount == 0 {
			log.Println("=== Recent Failures ===")
		}
		failureCount++
		var id string
		var startedAt time.Time
		var errMsg sql.NullString
		if err := failures.Scan(&id, &startedAt, &errMsg); err != nil {
			log.Fatalf("❌ Failed to scan failure row: %v", err)
		}
		log.Printf("%d. %s at %s: %s", failureCount, id, startedAt.Format(time.RFC3339), errMsg.String)
	}
	if err := failures.Err(); err != nil {
		log.Fatalf("❌ Failure iteration failed: %v", err)
	}
	if failureCount > 0 {
		log.Println("")
	}

	if report.Healthy {
		log.Println("=== Quality Report: HEALTHY ===")
	} else {
		log.Println("=== Quality Report: FINDINGS PRESENT ===")
		log.Println("Review the findings above; rerun with BACKFILL_STAMPS=true to repair stamps")
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
