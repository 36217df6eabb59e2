package gitlog

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// HistoryTracker resolves a file's historical paths across renames using
// git log --follow. Rename chains and document timestamps both depend on
// this surviving path changes.
type HistoryTracker struct {
	repoPath string
}

// NewHistoryTracker creates a tracker for the given repository path
func NewHistoryTracker(repoPath string) *HistoryTracker {
	return &HistoryTracker{repoPath: repoPath}
}

// FileHistory returns every path a file has lived at, newest first,
// deduplicated. Returns an error when the file has no git history.
func (ht *HistoryTracker) FileHistory(ctx context.Context, filePath string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "log", "--follow", "--name-only", "--pretty=format:", "--", filePath)
	cmd.Dir = ht.repoPath

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("git log --follow failed for %s: %w (stderr: %s)",
				filePath, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("git log --follow failed for %s: %w", filePath, err)
	}

	lines := strings.Split(string(output), "\n")
	seen := make(map[string]bool)
	var paths []string

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" && !seen[line] {
			seen[line] = true
			paths = append(paths, line)
		}
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("no history found for %s (file may not exist or have no commits)", filePath)
	}

	return paths, nil
}

// LastCommit returns the hash and timestamp of the newest commit that
// touched the file, following renames. This is the only sanctioned time
// source for document nodes.
func (ht *HistoryTracker) LastCommit(ctx context.Context, filePath string) (hash string, ts time.Time, err error) {
	cmd := exec.CommandContext(ctx, "git", "log", "--follow", "-1",
		"--date=iso-strict", "--pretty=format:%H|%ad", "--", filePath)
	cmd.Dir = ht.repoPath

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", time.Time{}, fmt.Errorf("git log -1 failed for %s: %w (stderr: %s)",
				filePath, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", time.Time{}, fmt.Errorf("git log -1 failed for %s: %w", filePath, err)
	}

	line := strings.TrimSpace(string(output))
	parts := strings.SplitN(line, "|", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", time.Time{}, fmt.Errorf("no commits found for %s", filePath)
	}

	ts, err = time.Parse(time.RFC3339, parts[1])
	if err != nil {
		return "", time.Time{}, fmt.Errorf("unparseable commit date for %s: %w", filePath, err)
	}

	return parts[0], ts, nil
}

// FileHistoryBatch resolves histories for multiple files. Files without
// history are skipped rather than failing the batch.
func (ht *HistoryTracker) FileHistoryBatch(ctx context.Context, filePaths []string) (map[string][]string, error) {
	result := make(map[string][]string)

	for _, filePath := range filePaths {
		paths, err := ht.FileHistory(ctx, filePath)
		if err != nil {
			continue
		}
		result[filePath] = paths
	}

	if len(result) == 0 && len(filePaths) > 0 {
		return nil, fmt.Errorf("no file histories could be retrieved for %d files", len(filePaths))
	}

	return result, nil
}
