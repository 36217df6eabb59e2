package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration settings
type Config struct {
	// Repository under analysis
	Repo RepoConfig `yaml:"repo"`

	// Graph store connection
	Neo4j Neo4jConfig `yaml:"neo4j"`

	// Relational run ledger
	Ledger LedgerConfig `yaml:"ledger"`

	// Query response cache
	Redis RedisConfig `yaml:"redis"`

	// HTTP API server
	Server ServerConfig `yaml:"server"`

	// Ingestion pipeline tuning
	Ingest IngestConfig `yaml:"ingest"`

	// Sprint definitions
	Sprints SprintsConfig `yaml:"sprints"`

	// Documentation ingestion
	Docs DocsConfig `yaml:"docs"`

	// GitHub API access (optional, remote repos only)
	GitHub GitHubConfig `yaml:"github"`
}

// RepoConfig identifies the repository to ingest. Either Path (local
// working copy) or URL+Branch (cloned into CacheDir) must be set.
type RepoConfig struct {
	Path     string `yaml:"path"`
	URL      string `yaml:"url"`
	Branch   string `yaml:"branch"`
	CacheDir string `yaml:"cache_dir"`
}

type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type LedgerConfig struct {
	Driver      string `yaml:"driver"` // "postgres", "sqlite"
	PostgresDSN string `yaml:"postgres_dsn"`
	SQLitePath  string `yaml:"sqlite_path"`
}

type RedisConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // response cache TTL
}

type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	CORSOrigins    []string      `yaml:"cors_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	IngestRate     float64       `yaml:"ingest_rate"`  // ingest triggers per second
	IngestBurst    int           `yaml:"ingest_burst"` // burst allowance
}

type IngestConfig struct {
	Workers     int           `yaml:"workers"`
	BatchSize   int           `yaml:"batch_size"`
	MaxRetries  int           `yaml:"max_retries"`
	Timeout     time.Duration `yaml:"timeout"`
	RecentLimit int           `yaml:"recent_limit"` // default for /ingest/recent
}

type SprintsConfig struct {
	DefinitionsPath string `yaml:"definitions_path"`
}

type DocsConfig struct {
	Roots []string `yaml:"roots"` // directories scanned for markdown
}

type GitHubConfig struct {
	Token string `yaml:"token"`
}

// Default returns default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Repo: RepoConfig{
			Path:     ".",
			Branch:   "main",
			CacheDir: filepath.Join(homeDir, ".devgraph", "repos"),
		},
		Neo4j: Neo4jConfig{
			URI:      "bolt://localhost:7687",
			Username: "neo4j",
			Database: "neo4j",
		},
		Ledger: LedgerConfig{
			Driver:     "sqlite",
			SQLitePath: filepath.Join(homeDir, ".devgraph", "ledger.db"),
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
			TTL:  60 * time.Second,
		},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			CORSOrigins:    []string{"http://localhost:3000"},
			RequestTimeout: 30 * time.Second,
			IngestRate:     0.2, // one trigger every 5s
			IngestBurst:    2,
		},
		Ingest: IngestConfig{
			Workers:     4,
			BatchSize:   200,
			MaxRetries:  3,
			Timeout:     10 * time.Minute,
			RecentLimit: 50,
		},
		Sprints: SprintsConfig{
			DefinitionsPath: "sprints.yaml",
		},
		Docs: DocsConfig{
			Roots: []string{"docs"},
		},
	}
}

// Load loads configuration from file, environment, and defaults
func Load(path string) (*Config, error) {
	// Load .env files first so env overrides see them
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("repo", cfg.Repo)
	v.SetDefault("neo4j", cfg.Neo4j)
	v.SetDefault("ledger", cfg.Ledger)
	v.SetDefault("redis", cfg.Redis)
	v.SetDefault("server", cfg.Server)
	v.SetDefault("ingest", cfg.Ingest)
	v.SetDefault("sprints", cfg.Sprints)
	v.SetDefault("docs", cfg.Docs)

	v.SetEnvPrefix("DEVGRAPH")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".devgraph")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".devgraph"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file is fine, defaults + env cover it
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence
func loadEnvFiles() {
	envFiles := []string{
		".env.local", // Local overrides (highest precedence)
		".env",       // Main environment file
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".devgraph", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(cfg *Config) {
	// Repository
	if path := os.Getenv("REPO_PATH"); path != "" {
		cfg.Repo.Path = expandPath(path)
	}
	if url := os.Getenv("REPO_URL"); url != "" {
		cfg.Repo.URL = url
	}
	if branch := os.Getenv("REPO_BRANCH"); branch != "" {
		cfg.Repo.Branch = branch
	}
	if dir := os.Getenv("REPO_CACHE_DIR"); dir != "" {
		cfg.Repo.CacheDir = expandPath(dir)
	}

	// Neo4j
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		cfg.Neo4j.URI = uri
	}
	if user := os.Getenv("NEO4J_USERNAME"); user != "" {
		cfg.Neo4j.Username = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		cfg.Neo4j.Password = pass
	}
	if db := os.Getenv("NEO4J_DATABASE"); db != "" {
		cfg.Neo4j.Database = db
	}

	// Ledger
	if driver := os.Getenv("LEDGER_DRIVER"); driver != "" {
		cfg.Ledger.Driver = driver
	}
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		cfg.Ledger.PostgresDSN = dsn
	} else if dsn := postgresDSNFromParts(); dsn != "" && cfg.Ledger.PostgresDSN == "" {
		cfg.Ledger.PostgresDSN = dsn
	}
	if path := os.Getenv("SQLITE_PATH"); path != "" {
		cfg.Ledger.SQLitePath = expandPath(path)
	}

	// Redis
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.Redis.Host = host
	}
	if port := os.Getenv("REDIS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Redis.Port = p
		}
	}
	if pass := os.Getenv("REDIS_PASSWORD"); pass != "" {
		cfg.Redis.Password = pass
	}
	if ttl := os.Getenv("CACHE_TTL_SECONDS"); ttl != "" {
		if seconds, err := strconv.Atoi(ttl); err == nil {
			cfg.Redis.TTL = time.Duration(seconds) * time.Second
		}
	}

	// Server
	if host := os.Getenv("API_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("API_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		parts := strings.Split(origins, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.Server.CORSOrigins = parts
	}
	if timeout := os.Getenv("REQUEST_TIMEOUT_SECONDS"); timeout != "" {
		if seconds, err := strconv.Atoi(timeout); err == nil {
			cfg.Server.RequestTimeout = time.Duration(seconds) * time.Second
		}
	}

	// Ingestion
	if workers := os.Getenv("INGEST_WORKERS"); workers != "" {
		if w, err := strconv.Atoi(workers); err == nil && w > 0 {
			cfg.Ingest.Workers = w
		}
	}
	if batch := os.Getenv("INGEST_BATCH_SIZE"); batch != "" {
		if b, err := strconv.Atoi(batch); err == nil && b > 0 {
			cfg.Ingest.BatchSize = b
		}
	}
	if retries := os.Getenv("INGEST_MAX_RETRIES"); retries != "" {
		if r, err := strconv.Atoi(retries); err == nil && r >= 0 {
			cfg.Ingest.MaxRetries = r
		}
	}
	if timeout := os.Getenv("INGEST_TIMEOUT_MINUTES"); timeout != "" {
		if minutes, err := strconv.Atoi(timeout); err == nil {
			cfg.Ingest.Timeout = time.Duration(minutes) * time.Minute
		}
	}

	// Sprints and docs
	if path := os.Getenv("SPRINTS_FILE"); path != "" {
		cfg.Sprints.DefinitionsPath = expandPath(path)
	}
	if roots := os.Getenv("DOC_ROOTS"); roots != "" {
		parts := strings.Split(roots, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.Docs.Roots = parts
	}

	// GitHub
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		cfg.GitHub.Token = token
	}
}

// postgresDSNFromParts assembles a DSN from the docker-compose style
// POSTGRES_* variables when no explicit DSN is provided
func postgresDSNFromParts() string {
	host := os.Getenv("POSTGRES_HOST")
	db := os.Getenv("POSTGRES_DB")
	user := os.Getenv("POSTGRES_USER")
	if host == "" || db == "" || user == "" {
		return ""
	}
	port := GetString("POSTGRES_PORT", "5432")
	pass := os.Getenv("POSTGRES_PASSWORD")
	sslmode := GetString("POSTGRES_SSLMODE", "disable")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, pass, host, port, db, sslmode)
}

// expandPath expands ~ to the home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// RepoSource returns the configured repo location, preferring a local path
func (c *Config) RepoSource() string {
	if c.Repo.Path != "" && c.Repo.Path != "." {
		return c.Repo.Path
	}
	if c.Repo.URL != "" {
		return c.Repo.URL
	}
	return c.Repo.Path
}

// ServerAddr returns the host:port the API server binds to
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// RedisAddr returns the host:port of the Redis instance
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("repo", c.Repo)
	v.Set("neo4j", c.Neo4j)
	v.Set("ledger", c.Ledger)
	v.Set("redis", c.Redis)
	v.Set("server", c.Server)
	v.Set("ingest", c.Ingest)
	v.Set("sprints", c.Sprints)
	v.Set("docs", c.Docs)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
