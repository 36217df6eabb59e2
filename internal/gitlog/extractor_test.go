package gitlog

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/rm2thaddeus/devgraph/internal/models"
)

// initTestRepo creates a throwaway git repository. Tests are skipped
// when git is not installed.
func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	if err := exec.Command("git", "init", dir).Run(); err != nil {
		t.Skip("git not available")
	}
	runGitCmd(t, dir, "config", "user.email", "dev@example.com")
	runGitCmd(t, dir, "config", "user.name", "Dev One")
	return dir
}

func runGitCmd(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
}

// commitAt creates a commit with a fixed author and committer date so
// assertions on extracted timestamps are deterministic
func commitAt(t *testing.T, dir, message, date string) {
	t.Helper()
	cmd := exec.Command("git", "commit", "-m", message)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_DATE="+date,
		"GIT_COMMITTER_DATE="+date,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git commit failed: %v\n%s", err, out)
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	full := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestExtractBasicHistory(t *testing.T) {
	dir := initTestRepo(t)

	writeFile(t, dir, "main.py", "print('v1')\n")
	runGitCmd(t, dir, "add", "main.py")
	commitAt(t, dir, "Initial commit", "2025-01-01T10:00:00+00:00")

	writeFile(t, dir, "main.py", "print('v1')\nprint('v2')\n")
	writeFile(t, dir, "util.py", "x = 1\n")
	runGitCmd(t, dir, "add", ".")
	commitAt(t, dir, "Add util module", "2025-01-02T10:00:00+00:00")

	extractor := NewExtractor(dir, nil)
	commits, err := extractor.Extract(context.Background(), ExtractOptions{})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if len(commits) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(commits))
	}

	// Oldest first
	first, second := commits[0], commits[1]
	if first.Message != "Initial commit" {
		t.Errorf("first commit message = %q", first.Message)
	}
	if second.Message != "Add util module" {
		t.Errorf("second commit message = %q", second.Message)
	}
	if !first.Timestamp.Before(second.Timestamp) {
		t.Error("commits should be ordered oldest first")
	}

	wantFirst := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	if !first.Timestamp.Equal(wantFirst) {
		t.Errorf("first commit timestamp = %v, want %v (must derive from git)", first.Timestamp, wantFirst)
	}

	if first.Author != "Dev One" || first.Email != "dev@example.com" {
		t.Errorf("author = %q <%q>", first.Author, first.Email)
	}
	if len(first.Hash) != 40 {
		t.Errorf("hash should be 40 hex chars, got %q", first.Hash)
	}

	// First commit has one added file
	if len(first.Files) != 1 {
		t.Fatalf("first commit files = %d, want 1", len(first.Files))
	}
	if first.Files[0].Path != "main.py" || first.Files[0].ChangeType != models.ChangeAdded {
		t.Errorf("first change = %+v", first.Files[0])
	}
	if first.Files[0].Additions != 1 {
		t.Errorf("first change additions = %d, want 1", first.Files[0].Additions)
	}

	// Second commit: main.py modified, util.py added
	changes := map[string]FileChange{}
	for _, fc := range second.Files {
		changes[fc.Path] = fc
	}
	if changes["main.py"].ChangeType != models.ChangeModified {
		t.Errorf("main.py change type = %s, want modified", changes["main.py"].ChangeType)
	}
	if changes["util.py"].ChangeType != models.ChangeAdded {
		t.Errorf("util.py change type = %s, want added", changes["util.py"].ChangeType)
	}

	// Parent linkage
	if len(first.Parents) != 0 {
		t.Errorf("root commit should have no parents, got %v", first.Parents)
	}
	if len(second.Parents) != 1 || second.Parents[0] != first.Hash {
		t.Errorf("second commit parents = %v, want [%s]", second.Parents, first.Hash)
	}
}

func TestExtractRename(t *testing.T) {
	dir := initTestRepo(t)

	writeFile(t, dir, "a.py", "def handler():\n    return 42\n")
	runGitCmd(t, dir, "add", "a.py")
	commitAt(t, dir, "Add handler", "2025-02-01T09:00:00+00:00")

	runGitCmd(t, dir, "mv", "a.py", "b.py")
	commitAt(t, dir, "Rename a to b", "2025-02-02T09:00:00+00:00")

	writeFile(t, dir, "b.py", "def handler():\n    return 43\n")
	runGitCmd(t, dir, "add", "b.py")
	commitAt(t, dir, "Tweak return value", "2025-02-03T09:00:00+00:00")

	extractor := NewExtractor(dir, nil)
	commits, err := extractor.Extract(context.Background(), ExtractOptions{})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(commits) != 3 {
		t.Fatalf("expected 3 commits, got %d", len(commits))
	}

	renameCommit := commits[1]
	if len(renameCommit.Files) != 1 {
		t.Fatalf("rename commit files = %d, want 1", len(renameCommit.Files))
	}
	change := renameCommit.Files[0]
	if change.ChangeType != models.ChangeRenamed {
		t.Errorf("change type = %s, want renamed", change.ChangeType)
	}
	if change.Path != "b.py" {
		t.Errorf("path = %s, want b.py", change.Path)
	}
	if change.RenamedFrom != "a.py" {
		t.Errorf("renamed_from = %s, want a.py", change.RenamedFrom)
	}
}

func TestExtractDelete(t *testing.T) {
	dir := initTestRepo(t)

	writeFile(t, dir, "tmp.py", "pass\n")
	runGitCmd(t, dir, "add", "tmp.py")
	commitAt(t, dir, "Add tmp", "2025-03-01T08:00:00+00:00")

	runGitCmd(t, dir, "rm", "tmp.py")
	commitAt(t, dir, "Remove tmp", "2025-03-02T08:00:00+00:00")

	extractor := NewExtractor(dir, nil)
	commits, err := extractor.Extract(context.Background(), ExtractOptions{})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	deleteCommit := commits[1]
	if len(deleteCommit.Files) != 1 {
		t.Fatalf("delete commit files = %d, want 1", len(deleteCommit.Files))
	}
	if deleteCommit.Files[0].ChangeType != models.ChangeDeleted {
		t.Errorf("change type = %s, want deleted", deleteCommit.Files[0].ChangeType)
	}
}

func TestExtractBinaryFile(t *testing.T) {
	dir := initTestRepo(t)

	if err := os.WriteFile(filepath.Join(dir, "blob.bin"), []byte{0x00, 0x01, 0xFF, 0xFE, 0x00}, 0644); err != nil {
		t.Fatal(err)
	}
	runGitCmd(t, dir, "add", "blob.bin")
	commitAt(t, dir, "Add binary blob", "2025-03-05T08:00:00+00:00")

	extractor := NewExtractor(dir, nil)
	commits, err := extractor.Extract(context.Background(), ExtractOptions{})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if len(commits) != 1 || len(commits[0].Files) != 1 {
		t.Fatalf("unexpected extraction shape: %+v", commits)
	}
	change := commits[0].Files[0]
	if change.Additions != 0 || change.Deletions != 0 {
		t.Errorf("binary files should record zero counts, got +%d -%d", change.Additions, change.Deletions)
	}
	if change.ChangeType != models.ChangeAdded {
		t.Errorf("binary change type = %s, want added", change.ChangeType)
	}
}

func TestExtractMaxCount(t *testing.T) {
	dir := initTestRepo(t)

	for i, date := range []string{
		"2025-04-01T10:00:00+00:00",
		"2025-04-02T10:00:00+00:00",
		"2025-04-03T10:00:00+00:00",
	} {
		writeFile(t, dir, "f.py", string(rune('a'+i))+"\n")
		runGitCmd(t, dir, "add", "f.py")
		commitAt(t, dir, "commit "+string(rune('1'+i)), date)
	}

	extractor := NewExtractor(dir, nil)
	commits, err := extractor.Extract(context.Background(), ExtractOptions{MaxCount: 2})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if len(commits) != 2 {
		t.Fatalf("expected 2 commits with MaxCount=2, got %d", len(commits))
	}
	// The two newest commits, still oldest-first
	if commits[0].Message != "commit 2" || commits[1].Message != "commit 3" {
		t.Errorf("got messages %q, %q; want commit 2, commit 3", commits[0].Message, commits[1].Message)
	}
}

func TestExtractMessageWithPipes(t *testing.T) {
	dir := initTestRepo(t)

	writeFile(t, dir, "p.py", "pass\n")
	runGitCmd(t, dir, "add", "p.py")
	commitAt(t, dir, "Implements FR-1 | pipeline | stage", "2025-05-01T10:00:00+00:00")

	extractor := NewExtractor(dir, nil)
	commits, err := extractor.Extract(context.Background(), ExtractOptions{})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(commits) != 1 {
		t.Fatalf("expected 1 commit, got %d", len(commits))
	}
	if commits[0].Message != "Implements FR-1 | pipeline | stage" {
		t.Errorf("pipe characters in message were mangled: %q", commits[0].Message)
	}
}

func TestExtractFailsOutsideRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	extractor := NewExtractor(t.TempDir(), nil)
	if _, err := extractor.Extract(context.Background(), ExtractOptions{}); err == nil {
		t.Error("extracting outside a git repo should fail")
	}
}

func TestParseRenamePath(t *testing.T) {
	cases := []struct {
		in       string
		wantFrom string
		wantTo   string
	}{
		{"a.py => b.py", "a.py", "b.py"},
		{"src/{core => engine}/query.py", "src/core/query.py", "src/engine/query.py"},
		{"src/{ => core}/app.py", "src/app.py", "src/core/app.py"},
		{"{old => new}/f.py", "old/f.py", "new/f.py"},
	}

	for _, tc := range cases {
		from, to := parseRenamePath(tc.in)
		if from != tc.wantFrom || to != tc.wantTo {
			t.Errorf("parseRenamePath(%q) = (%q, %q), want (%q, %q)",
				tc.in, from, to, tc.wantFrom, tc.wantTo)
		}
	}
}

func TestFileHistoryAcrossRename(t *testing.T) {
	dir := initTestRepo(t)

	writeFile(t, dir, "a.py", "def f():\n    return 1\n")
	runGitCmd(t, dir, "add", "a.py")
	commitAt(t, dir, "Add a", "2025-06-01T10:00:00+00:00")

	runGitCmd(t, dir, "mv", "a.py", "b.py")
	commitAt(t, dir, "Rename to b", "2025-06-02T10:00:00+00:00")

	tracker := NewHistoryTracker(dir)
	paths, err := tracker.FileHistory(context.Background(), "b.py")
	if err != nil {
		t.Fatalf("FileHistory() error = %v", err)
	}

	if len(paths) != 2 {
		t.Fatalf("expected 2 historical paths, got %v", paths)
	}
	if paths[0] != "b.py" || paths[1] != "a.py" {
		t.Errorf("paths = %v, want [b.py a.py]", paths)
	}
}

func TestLastCommitUsesGitTime(t *testing.T) {
	dir := initTestRepo(t)

	writeFile(t, dir, "doc.md", "# Title\n")
	runGitCmd(t, dir, "add", "doc.md")
	commitAt(t, dir, "Add doc", "2025-06-10T12:00:00+00:00")

	// Touch the file on disk without committing; the mtime must not leak
	// into the reported timestamp
	writeFile(t, dir, "doc.md", "# Title\nchanged on disk\n")

	tracker := NewHistoryTracker(dir)
	hash, ts, err := tracker.LastCommit(context.Background(), "doc.md")
	if err != nil {
		t.Fatalf("LastCommit() error = %v", err)
	}

	if len(hash) != 40 {
		t.Errorf("hash = %q", hash)
	}
	want := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Errorf("timestamp = %v, want %v (git time, not mtime)", ts, want)
	}
}
