package docs

import (
	"os"
	"path/filepath"
	"strings"
)

// skipDirs are directories the markdown walk never descends into
var skipDirs = map[string]bool{
	".git":          true,
	"node_modules":  true,
	"vendor":        true,
	"venv":          true,
	".venv":         true,
	"env":           true,
	"__pycache__":   true,
	".next":         true,
	"dist":          true,
	"build":         true,
	"out":           true,
	"target":        true,
	".cache":        true,
	"coverage":      true,
	".pytest_cache": true,
	".tox":          true,
	".idea":         true,
	".vscode":       true,
}

// WalkMarkdown walks the given roots inside a repository and yields
// repo-relative markdown paths on a channel. Empty roots means the whole
// repository. Unreadable subtrees are skipped, not fatal; the channel is
// always closed.
func WalkMarkdown(repoPath string, roots []string) <-chan string {
	files := make(chan string, 100)

	if len(roots) == 0 {
		roots = []string{"."}
	}

	go func() {
		defer close(files)

		for _, root := range roots {
			base := filepath.Join(repoPath, filepath.FromSlash(root))

			filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
				if err != nil {
					if d != nil && d.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}

				if d.IsDir() {
					if skipDirs[d.Name()] {
						return filepath.SkipDir
					}
					return nil
				}

				if !isMarkdown(path) {
					return nil
				}

				rel, err := filepath.Rel(repoPath, path)
				if err != nil {
					return nil
				}
				files <- filepath.ToSlash(rel)
				return nil
			})
		}
	}()

	return files
}

// isMarkdown reports whether the path looks like a markdown document
func isMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}
