package gitlog

import "time"

// Commit is one commit extracted from the git log, in the order git
// reported it. Timestamp always comes from the commit itself; nothing in
// this package reads filesystem times.
type Commit struct {
	Hash      string       `json:"hash"`
	Author    string       `json:"author"`
	Email     string       `json:"author_email"`
	Timestamp time.Time    `json:"timestamp"`
	Message   string       `json:"message"`
	Parents   []string     `json:"parents,omitempty"`
	Files     []FileChange `json:"files,omitempty"`
}

// FileChange is one file touched by a commit
type FileChange struct {
	Path        string `json:"path"`
	ChangeType  string `json:"change_type"` // added, modified, deleted, renamed
	Additions   int    `json:"additions"`
	Deletions   int    `json:"deletions"`
	RenamedFrom string `json:"renamed_from,omitempty"`
}

// Additions sums added lines across all file changes
func (c *Commit) TotalAdditions() int {
	total := 0
	for _, f := range c.Files {
		total += f.Additions
	}
	return total
}

// TotalDeletions sums deleted lines across all file changes
func (c *Commit) TotalDeletions() int {
	total := 0
	for _, f := range c.Files {
		total += f.Deletions
	}
	return total
}

// ExtractOptions narrows the commit walk
type ExtractOptions struct {
	// MaxCount limits extraction to the N most recent commits (0 = all).
	// Commits still arrive oldest-first.
	MaxCount int
	// Since drops commits older than the given time (zero = no limit)
	Since time.Time
}
