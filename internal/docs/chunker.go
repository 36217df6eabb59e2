package docs

import (
	"strings"
	"unicode"
)

// excerptLimit bounds how much section text a Chunk node stores. Length
// always reports the full section size.
const excerptLimit = 1000

// Section is one heading-delimited slice of a markdown document
type Section struct {
	Heading string
	Level   int
	Ordinal int
	Text    string
}

// ChunkMarkdown splits a document into sections at ATX headings.
// Content before the first heading becomes a preamble section. Heading
// markers inside fenced code blocks do not open sections.
func ChunkMarkdown(content string) []Section {
	lines := strings.Split(content, "\n")

	var sections []Section
	var current *Section
	var body strings.Builder
	inFence := false

	flush := func() {
		if current == nil {
			return
		}
		current.Text = strings.TrimSpace(body.String())
		body.Reset()
		if current.Heading != "" || current.Text != "" {
			current.Ordinal = len(sections)
			sections = append(sections, *current)
		}
		current = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
		}

		if heading, level, ok := parseHeading(line); ok && !inFence {
			flush()
			current = &Section{Heading: heading, Level: level}
			continue
		}

		if current == nil {
			current = &Section{}
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()

	return sections
}

// parseHeading recognizes ATX headings: one to six '#' followed by a
// space and the title
func parseHeading(line string) (string, int, bool) {
	trimmed := strings.TrimSpace(line)
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level == len(trimmed) {
		return "", 0, false
	}
	if trimmed[level] != ' ' && trimmed[level] != '\t' {
		return "", 0, false
	}
	heading := strings.TrimSpace(trimmed[level:])
	heading = strings.TrimRight(heading, "#")
	return strings.TrimSpace(heading), level, heading != ""
}

// Slug normalizes a heading into the identifier segment of a chunk uid.
// Lowercase, alphanumerics kept, everything else collapsed to single
// hyphens. Empty headings (the preamble) slug to "preamble".
func Slug(heading string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(heading) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "preamble"
	}
	return slug
}

// Excerpt truncates section text for storage, cutting on a rune boundary
func Excerpt(text string) string {
	if len(text) <= excerptLimit {
		return text
	}
	runes := []rune(text)
	if len(runes) <= excerptLimit {
		return text
	}
	return string(runes[:excerptLimit])
}
