package gitlog

import (
	"path/filepath"
	"strings"
)

var languageMap = map[string]string{
	".go":    "Go",
	".py":    "Python",
	".js":    "JavaScript",
	".jsx":   "JavaScript",
	".ts":    "TypeScript",
	".tsx":   "TypeScript",
	".java":  "Java",
	".c":     "C",
	".cpp":   "C++",
	".cc":    "C++",
	".cxx":   "C++",
	".h":     "C/C++",
	".hpp":   "C++",
	".cs":    "C#",
	".rb":    "Ruby",
	".php":   "PHP",
	".rs":    "Rust",
	".swift": "Swift",
	".kt":    "Kotlin",
	".scala": "Scala",
	".sh":    "Shell",
	".bash":  "Shell",
	".sql":   "SQL",
	".r":     "R",
	".pl":    "Perl",
	".lua":   "Lua",
	".dart":  "Dart",
	".ex":    "Elixir",
	".exs":   "Elixir",
	".clj":   "Clojure",
	".hs":    "Haskell",
	".cu":    "CUDA",
	".vue":   "Vue",
	".css":   "CSS",
	".scss":  "SCSS",
	".html":  "HTML",
	".yaml":  "YAML",
	".yml":   "YAML",
	".json":  "JSON",
	".toml":  "TOML",
}

// docExtensions mark files ingested as Documents rather than code
var docExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".rst":      true,
	".adoc":     true,
	".txt":      true,
}

// Extension returns the lowercased file extension without the dot,
// empty for extensionless paths
func Extension(filePath string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filePath)), ".")
}

// DetectLanguage returns the programming language for a file path based
// on its extension
func DetectLanguage(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))

	if lang, ok := languageMap[ext]; ok {
		return lang
	}
	if docExtensions[ext] {
		return "Markdown"
	}

	if ext != "" {
		return strings.TrimPrefix(ext, ".")
	}
	return "unknown"
}

// IsCodeFile reports whether the path should be stamped is_code
func IsCodeFile(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	_, ok := languageMap[ext]
	return ok
}

// IsDocFile reports whether the path should be stamped is_doc
func IsDocFile(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	return docExtensions[ext]
}
