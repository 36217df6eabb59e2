package gitlog

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rm2thaddeus/devgraph/internal/models"
)

// Extractor walks a repository's commit log via the git CLI.
// Two passes over the log are combined: --numstat supplies line counts
// and --name-status supplies change types and rename pairs.
type Extractor struct {
	repoPath string
	logger   *slog.Logger
}

// NewExtractor creates an extractor rooted at repoPath
func NewExtractor(repoPath string, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{repoPath: repoPath, logger: logger}
}

// RepoPath returns the repository root this extractor reads from
func (e *Extractor) RepoPath() string {
	return e.repoPath
}

// headerPattern anchors commit header lines to a full 40-hex hash so a
// numstat path containing "|" can never be mistaken for a header
var headerPattern = regexp.MustCompile(`^[0-9a-f]{40}\|`)

// hashPattern matches a bare commit hash line in --name-status output
var hashPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// Extract walks the commit log oldest-first and returns structured
// records. Commits with unparseable metadata are logged and skipped; a
// failed git invocation is fatal.
func (e *Extractor) Extract(ctx context.Context, opts ExtractOptions) ([]Commit, error) {
	commits, err := e.logNumstat(ctx, opts)
	if err != nil {
		return nil, err
	}

	statuses, err := e.logNameStatus(ctx, opts)
	if err != nil {
		return nil, err
	}

	applyChangeTypes(commits, statuses)
	return commits, nil
}

// logNumstat runs the header+numstat pass
func (e *Extractor) logNumstat(ctx context.Context, opts ExtractOptions) ([]Commit, error) {
	args := []string{"log", "--reverse", "-M",
		"--numstat",
		"--date=iso-strict",
		"--pretty=format:%H|%an|%ae|%ad|%P|%s"}
	args = appendRangeArgs(args, opts)

	output, err := e.runGit(ctx, args)
	if err != nil {
		return nil, err
	}

	return e.parseNumstatOutput(output)
}

// parseNumstatOutput parses interleaved header and numstat lines into
// commit records
func (e *Extractor) parseNumstatOutput(output string) ([]Commit, error) {
	var commits []Commit
	var current *Commit
	skipping := false

	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		// Blank line separates commits
		if line == "" {
			if current != nil {
				commits = append(commits, *current)
				current = nil
			}
			skipping = false
			continue
		}

		if headerPattern.MatchString(line) {
			if current != nil {
				commits = append(commits, *current)
				current = nil
			}
			skipping = false

			parts := strings.SplitN(line, "|", 6)
			if len(parts) != 6 {
				e.logger.Warn("skipping malformed commit header", "line", line)
				skipping = true
				continue
			}

			timestamp, err := time.Parse(time.RFC3339, parts[3])
			if err != nil {
				// A commit without a git-derived timestamp must never
				// enter the graph, so the whole record is dropped.
				e.logger.Warn("skipping commit with unparseable timestamp",
					"hash", parts[0], "date", parts[3], "error", err)
				skipping = true
				continue
			}

			current = &Commit{
				Hash:      parts[0],
				Author:    parts[1],
				Email:     parts[2],
				Timestamp: timestamp,
				Message:   parts[5],
				Parents:   strings.Fields(parts[4]),
				Files:     []FileChange{},
			}
			continue
		}

		if skipping {
			continue
		}

		// Numstat line: additions<TAB>deletions<TAB>path
		if current != nil {
			fields := strings.SplitN(line, "\t", 3)
			if len(fields) != 3 {
				continue
			}

			// Binary files report "-" in both count columns
			additions, _ := strconv.Atoi(fields[0])
			deletions, _ := strconv.Atoi(fields[1])

			change := FileChange{
				Path:      fields[2],
				Additions: additions,
				Deletions: deletions,
			}

			if strings.Contains(fields[2], " => ") {
				from, to := parseRenamePath(fields[2])
				change.Path = to
				change.RenamedFrom = from
				change.ChangeType = models.ChangeRenamed
			}

			current.Files = append(current.Files, change)
		}
	}

	if current != nil {
		commits = append(commits, *current)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning git log output: %w", err)
	}

	return commits, nil
}

// statusEntry is one file's change type within a commit
type statusEntry struct {
	changeType  string
	renamedFrom string
}

// logNameStatus runs the --name-status pass and returns change types
// keyed by commit hash then path
func (e *Extractor) logNameStatus(ctx context.Context, opts ExtractOptions) (map[string]map[string]statusEntry, error) {
	args := []string{"log", "--reverse", "-M",
		"--name-status",
		"--pretty=format:%H"}
	args = appendRangeArgs(args, opts)

	output, err := e.runGit(ctx, args)
	if err != nil {
		return nil, err
	}

	statuses := make(map[string]map[string]statusEntry)
	var currentHash string

	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		if hashPattern.MatchString(line) {
			currentHash = line
			if statuses[currentHash] == nil {
				statuses[currentHash] = make(map[string]statusEntry)
			}
			continue
		}

		if currentHash == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			continue
		}

		switch fields[0][0] {
		case 'A':
			statuses[currentHash][fields[1]] = statusEntry{changeType: models.ChangeAdded}
		case 'D':
			statuses[currentHash][fields[1]] = statusEntry{changeType: models.ChangeDeleted}
		case 'R':
			if len(fields) == 3 {
				statuses[currentHash][fields[2]] = statusEntry{
					changeType:  models.ChangeRenamed,
					renamedFrom: fields[1],
				}
			}
		case 'C':
			// Copies introduce a new path
			if len(fields) == 3 {
				statuses[currentHash][fields[2]] = statusEntry{changeType: models.ChangeAdded}
			}
		default:
			// M, T, and anything exotic count as modifications
			statuses[currentHash][fields[1]] = statusEntry{changeType: models.ChangeModified}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning git name-status output: %w", err)
	}

	return statuses, nil
}

// applyChangeTypes merges the name-status pass into the numstat records
func applyChangeTypes(commits []Commit, statuses map[string]map[string]statusEntry) {
	for i := range commits {
		commit := &commits[i]
		perPath := statuses[commit.Hash]

		for j := range commit.Files {
			change := &commit.Files[j]
			if entry, ok := perPath[change.Path]; ok {
				change.ChangeType = entry.changeType
				if entry.renamedFrom != "" {
					change.RenamedFrom = entry.renamedFrom
				}
				continue
			}
			if change.ChangeType == "" {
				change.ChangeType = models.ChangeModified
			}
		}
	}
}

// appendRangeArgs applies MaxCount/Since limits. Git limits commits
// before --reverse is applied, so MaxCount selects the newest N while
// output order stays oldest-first.
func appendRangeArgs(args []string, opts ExtractOptions) []string {
	if opts.MaxCount > 0 {
		args = append(args, fmt.Sprintf("--max-count=%d", opts.MaxCount))
	}
	if !opts.Since.IsZero() {
		args = append(args, "--since="+opts.Since.Format(time.RFC3339))
	}
	return args
}

// runGit executes a git subcommand in the repo and returns stdout
func (e *Extractor) runGit(ctx context.Context, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = e.repoPath

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s failed: %w (stderr: %s)",
				args[0], err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s failed: %w", args[0], err)
	}

	return string(output), nil
}

// parseRenamePath expands git's rename notation into (from, to) paths.
// Handles both "old.py => new.py" and the brace form
// "src/{core => engine}/query.py".
func parseRenamePath(p string) (from, to string) {
	if i := strings.Index(p, "{"); i >= 0 {
		if j := strings.Index(p, "}"); j > i {
			inner := p[i+1 : j]
			parts := strings.SplitN(inner, " => ", 2)
			if len(parts) == 2 {
				prefix := p[:i]
				suffix := p[j+1:]
				from = path.Clean(prefix + parts[0] + suffix)
				to = path.Clean(prefix + parts[1] + suffix)
				return from, to
			}
		}
	}

	parts := strings.SplitN(p, " => ", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", p
}
