package gitsource

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rm2thaddeus/devgraph/internal/logging"
)

// Source resolves the repository the pipeline reads history from. A
// configured local path wins; otherwise the remote URL is cloned into
// the cache directory and reused across runs.
type Source struct {
	localPath string
	url       string
	branch    string
	cacheDir  string
}

func NewSource(localPath, url, branch, cacheDir string) *Source {
	return &Source{
		localPath: localPath,
		url:       url,
		branch:    branch,
		cacheDir:  cacheDir,
	}
}

// EnsureLocal returns a path to a git working tree for the configured
// repository, cloning it first when only a URL is configured.
func (s *Source) EnsureLocal(ctx context.Context) (string, error) {
	if s.localPath != "" {
		if !isValidGitRepo(s.localPath) {
			return "", fmt.Errorf("%s is not a git repository", s.localPath)
		}
		return s.localPath, nil
	}

	if s.url == "" {
		return "", fmt.Errorf("no repository configured: set a local path or a clone URL")
	}
	return s.clone(ctx)
}

// clone fetches the full history. The temporal graph is built from
// commit timestamps, so a shallow clone is never enough here.
func (s *Source) clone(ctx context.Context) (string, error) {
	key := s.url
	if s.branch != "" {
		key += "#" + s.branch
	}
	repoPath := filepath.Join(s.cacheDir, CacheKey(key))

	if _, err := os.Stat(repoPath); err == nil {
		if isValidGitRepo(repoPath) {
			if err := s.refresh(ctx, repoPath); err != nil {
				logging.Warn("Could not refresh cached clone, using as-is", "path", repoPath, "error", err)
			}
			return repoPath, nil
		}
		os.RemoveAll(repoPath)
	}

	if err := os.MkdirAll(filepath.Dir(repoPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}

	args := []string{"clone", "--single-branch"}
	if s.branch != "" {
		args = append(args, "--branch", s.branch)
	}
	args = append(args, s.url, repoPath)

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git clone failed: %w, output: %s", err, string(output))
	}

	logging.Info("Cloned repository", "url", s.url, "path", repoPath)
	return repoPath, nil
}

// refresh fast-forwards a cached clone so incremental ingestion sees
// commits pushed since the last run.
func (s *Source) refresh(ctx context.Context, repoPath string) error {
	cmd := exec.CommandContext(ctx, "git", "-C", repoPath, "pull", "--ff-only")
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git pull failed: %w, output: %s", err, string(output))
	}
	return nil
}

// Name returns a short identifier for ledger rows: org/repo for GitHub
// URLs, the directory base name for local paths.
func (s *Source) Name() string {
	if s.url != "" {
		if org, repo, err := ParseRepoURL(s.url); err == nil {
			return org + "/" + repo
		}
		return s.url
	}
	return filepath.Base(s.localPath)
}

// CacheKey creates a stable short hash for cache file names derived
// from a repository URL or local path
func CacheKey(url string) string {
	url = strings.TrimSuffix(url, ".git")
	url = strings.TrimSuffix(url, "/")

	h := sha256.New()
	h.Write([]byte(url))
	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}

// isValidGitRepo checks if directory is a valid git repository
func isValidGitRepo(path string) bool {
	gitDir := filepath.Join(path, ".git")
	info, err := os.Stat(gitDir)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// ParseRepoURL extracts org/repo from a GitHub URL.
// Supports:
// - https://github.com/org/repo
// - git@github.com:org/repo.git
// - org/repo (shorthand)
func ParseRepoURL(url string) (org string, repo string, err error) {
	url = strings.TrimSpace(url)

	if strings.HasPrefix(url, "git@github.com:") {
		url = strings.TrimPrefix(url, "git@github.com:")
	}
	if strings.HasPrefix(url, "https://github.com/") {
		url = strings.TrimPrefix(url, "https://github.com/")
	}
	url = strings.TrimSuffix(url, ".git")

	parts := strings.Split(url, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository format: %s (expected org/repo)", url)
	}
	return parts[0], parts[1], nil
}

// BuildGitHubURL converts org/repo to a full GitHub URL
func BuildGitHubURL(org, repo string) string {
	return fmt.Sprintf("https://github.com/%s/%s", org, repo)
}
