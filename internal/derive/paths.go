package derive

import (
	"path"
	"strings"
)

// excludedDirs are dependency, cache, and build trees whose files never
// participate in derived relationships
var excludedDirs = map[string]bool{
	"node_modules":  true,
	"vendor":        true,
	".venv":         true,
	"venv":          true,
	"env":           true,
	"__pycache__":   true,
	".git":          true,
	".idea":         true,
	".vscode":       true,
	"dist":          true,
	"build":         true,
	"target":        true,
	".next":         true,
	".cache":        true,
	"site-packages": true,
	".tox":          true,
	".mypy_cache":   true,
	".pytest_cache": true,
}

// ExcludedPath reports whether a repo-relative file path sits inside an
// excluded tree. Comparison is by whole path segment: "vendor/x.go" and
// "pkg/vendor/x.go" are excluded, "myvendor/x.go" is not.
func ExcludedPath(filePath string) bool {
	cleaned := path.Clean(strings.ReplaceAll(filePath, "\\", "/"))
	for _, segment := range strings.Split(cleaned, "/") {
		if excludedDirs[segment] {
			return true
		}
	}
	return false
}
