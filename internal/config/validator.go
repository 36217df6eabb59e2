package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationContext specifies which configuration a command requires
type ValidationContext string

const (
	// ValidationContextServe - API server needs graph store and server config
	ValidationContextServe ValidationContext = "serve"
	// ValidationContextIngest - ingestion needs a repo source and graph store
	ValidationContextIngest ValidationContext = "ingest"
	// ValidationContextQuality - quality audit needs graph store and ledger
	ValidationContextQuality ValidationContext = "quality"
	// ValidationContextAll - validate everything
	ValidationContextAll ValidationContext = "all"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err))
	}
	return sb.String()
}

// Validate checks the configuration for the given command context
func Validate(cfg *Config, ctx ValidationContext) *ValidationResult {
	result := &ValidationResult{Valid: true}

	switch ctx {
	case ValidationContextServe:
		validateNeo4j(cfg, result)
		validateServer(cfg, result)
	case ValidationContextIngest:
		validateRepo(cfg, result)
		validateNeo4j(cfg, result)
		validateIngest(cfg, result)
	case ValidationContextQuality:
		validateNeo4j(cfg, result)
		validateLedger(cfg, result)
	case ValidationContextAll:
		validateRepo(cfg, result)
		validateNeo4j(cfg, result)
		validateLedger(cfg, result)
		validateServer(cfg, result)
		validateIngest(cfg, result)
	}

	return result
}

func validateRepo(cfg *Config, result *ValidationResult) {
	if cfg.Repo.Path == "" && cfg.Repo.URL == "" {
		result.AddError("either repo.path or repo.url must be set (REPO_PATH / REPO_URL)")
		return
	}
	if cfg.Repo.URL != "" {
		if _, err := url.Parse(cfg.Repo.URL); err != nil {
			result.AddError("repo.url is not a valid URL: %s", cfg.Repo.URL)
		}
		if cfg.Repo.Branch == "" && cfg.GitHub.Token == "" {
			result.AddWarning("no branch configured; default branch resolution requires GITHUB_TOKEN for private repos")
		}
	}
}

func validateNeo4j(cfg *Config, result *ValidationResult) {
	if cfg.Neo4j.URI == "" {
		result.AddError("neo4j.uri is required (NEO4J_URI)")
	} else if !strings.HasPrefix(cfg.Neo4j.URI, "bolt://") &&
		!strings.HasPrefix(cfg.Neo4j.URI, "neo4j://") &&
		!strings.HasPrefix(cfg.Neo4j.URI, "bolt+s://") &&
		!strings.HasPrefix(cfg.Neo4j.URI, "neo4j+s://") {
		result.AddError("neo4j.uri must use a bolt:// or neo4j:// scheme, got %s", cfg.Neo4j.URI)
	}
	if cfg.Neo4j.Username == "" {
		result.AddError("neo4j.username is required (NEO4J_USERNAME)")
	}
	if cfg.Neo4j.Password == "" {
		result.AddError("neo4j.password is required (NEO4J_PASSWORD)")
	}
}

func validateLedger(cfg *Config, result *ValidationResult) {
	switch cfg.Ledger.Driver {
	case "postgres":
		if cfg.Ledger.PostgresDSN == "" {
			result.AddError("ledger.postgres_dsn is required when ledger.driver=postgres (POSTGRES_DSN)")
		}
	case "sqlite":
		if cfg.Ledger.SQLitePath == "" {
			result.AddError("ledger.sqlite_path is required when ledger.driver=sqlite (SQLITE_PATH)")
		}
	default:
		result.AddError("ledger.driver must be postgres or sqlite, got %q", cfg.Ledger.Driver)
	}
}

func validateServer(cfg *Config, result *ValidationResult) {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		result.AddError("server.port must be 1-65535, got %d", cfg.Server.Port)
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		result.AddWarning("no CORS origins configured; browser clients will be blocked")
	}
}

func validateIngest(cfg *Config, result *ValidationResult) {
	if cfg.Ingest.Workers <= 0 {
		result.AddError("ingest.workers must be positive, got %d", cfg.Ingest.Workers)
	}
	if cfg.Ingest.BatchSize <= 0 {
		result.AddError("ingest.batch_size must be positive, got %d", cfg.Ingest.BatchSize)
	}
}
