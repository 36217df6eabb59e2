package derive

import (
	"regexp"
	"strings"
)

// RequirementID is a validated requirement identifier. Values are only
// constructed through ParseRequirementID, so holding one proves the
// string matched the grammar.
type RequirementID struct {
	value string
}

// String returns the canonical uppercase form, e.g. "FR-42"
func (r RequirementID) String() string {
	return r.value
}

// Kind returns "FR" or "NFR"
func (r RequirementID) Kind() string {
	return strings.SplitN(r.value, "-", 2)[0]
}

// idGrammar is the full-match grammar for requirement IDs. Anchored on
// both ends: candidates that merely contain an ID, or look vaguely like
// one ("REQ-AND"), never pass.
var idGrammar = regexp.MustCompile(`^(FR|NFR)-\d+$`)

// idCandidate finds word-bounded candidate tokens inside free text
var idCandidate = regexp.MustCompile(`\b(?:FR|NFR)-\d+\b`)

// ParseRequirementID validates a candidate string against the strict
// grammar. The boolean follows the comma-ok convention; callers must
// never mint a Requirement node from a string that did not pass here.
func ParseRequirementID(s string) (RequirementID, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !idGrammar.MatchString(s) {
		return RequirementID{}, false
	}
	return RequirementID{value: s}, true
}

// ExtractRequirementIDs returns every validated requirement ID in text,
// deduplicated, in order of first appearance. Extraction is a pure
// function of its input.
func ExtractRequirementIDs(text string) []RequirementID {
	seen := make(map[string]bool)
	var ids []RequirementID

	for _, candidate := range idCandidate.FindAllString(strings.ToUpper(text), -1) {
		id, ok := ParseRequirementID(candidate)
		if !ok {
			continue
		}
		if seen[id.String()] {
			continue
		}
		seen[id.String()] = true
		ids = append(ids, id)
	}
	return ids
}

// Commit-message verb patterns. Each pattern captures the ID list or
// pair it applies to; captured candidates are still re-validated by
// ParseRequirementID before any node or edge is built.
var (
	// "Implements FR-42", "closes NFR-3: ...", "fixes FR-1, FR-2 and FR-3"
	implementsPattern = regexp.MustCompile(
		`(?i)\b(?:implement(?:s|ed)?|close[sd]?|fix(?:es|ed)?|address(?:es|ed)?|resolve[sd]?)\b[:\s]+((?:(?:FR|NFR)-\d+)(?:(?:\s*,\s*|\s+and\s+)(?:FR|NFR)-\d+)*)`)

	// "FR-7 evolves from FR-2", "NFR-4 supersedes NFR-1"
	evolvesPattern = regexp.MustCompile(
		`(?i)\b((?:FR|NFR)-\d+)\s+(?:evolves\s+from|supersedes)\s+((?:FR|NFR)-\d+)`)

	// "FR-9 deprecates FR-2"
	deprecatesPattern = regexp.MustCompile(
		`(?i)\b((?:FR|NFR)-\d+)\s+deprecates\s+((?:FR|NFR)-\d+)`)

	// "FR-2 deprecated by FR-9"
	deprecatedByPattern = regexp.MustCompile(
		`(?i)\b((?:FR|NFR)-\d+)\s+(?:is\s+)?deprecated\s+by\s+((?:FR|NFR)-\d+)`)
)

// Confidence tiers for derived edges
const (
	ConfidenceExplicit = 0.9 // verb + ID in a commit message
	ConfidenceBareID   = 0.6 // ID mentioned without a verb
	ConfidenceDocChunk = 0.5 // ID mentioned in a document chunk
)

// MessageFacts is everything the deriver reads out of one commit
// message
type MessageFacts struct {
	// Implements maps each implemented requirement to its confidence
	// tier. Verb-attributed IDs score ConfidenceExplicit, remaining bare
	// mentions ConfidenceBareID.
	Implements map[RequirementID]float64

	// Evolves holds newer→older pairs ("FR-7 evolves from FR-2")
	Evolves []RequirementPair

	// Deprecated holds deprecated→deprecator pairs
	Deprecated []RequirementPair
}

// RequirementPair is an ordered pair of validated requirement IDs
type RequirementPair struct {
	From RequirementID
	To   RequirementID
}

// ScanMessage extracts requirement facts from one commit message.
// Pure function: no I/O, no graph access, deterministic.
func ScanMessage(message string) MessageFacts {
	facts := MessageFacts{Implements: make(map[RequirementID]float64)}

	// Explicit verb matches first
	for _, match := range implementsPattern.FindAllStringSubmatch(message, -1) {
		for _, id := range ExtractRequirementIDs(match[1]) {
			facts.Implements[id] = ConfidenceExplicit
		}
	}

	for _, match := range evolvesPattern.FindAllStringSubmatch(message, -1) {
		from, okFrom := ParseRequirementID(match[1])
		to, okTo := ParseRequirementID(match[2])
		if okFrom && okTo && from != to {
			facts.Evolves = append(facts.Evolves, RequirementPair{From: from, To: to})
		}
	}

	for _, match := range deprecatesPattern.FindAllStringSubmatch(message, -1) {
		deprecator, okFrom := ParseRequirementID(match[1])
		deprecated, okTo := ParseRequirementID(match[2])
		if okFrom && okTo && deprecator != deprecated {
			facts.Deprecated = append(facts.Deprecated, RequirementPair{From: deprecated, To: deprecator})
		}
	}
	for _, match := range deprecatedByPattern.FindAllStringSubmatch(message, -1) {
		deprecated, okFrom := ParseRequirementID(match[1])
		deprecator, okTo := ParseRequirementID(match[2])
		if okFrom && okTo && deprecator != deprecated {
			facts.Deprecated = append(facts.Deprecated, RequirementPair{From: deprecated, To: deprecator})
		}
	}

	// Bare mentions: anything left over scores the lower tier
	for _, id := range ExtractRequirementIDs(message) {
		if _, claimed := facts.Implements[id]; !claimed {
			facts.Implements[id] = ConfidenceBareID
		}
	}

	// IDs that appear only as the target of an evolution or deprecation
	// are references, not implementations
	for _, pair := range facts.Evolves {
		if facts.Implements[pair.To] == ConfidenceBareID {
			delete(facts.Implements, pair.To)
		}
	}
	for _, pair := range facts.Deprecated {
		if facts.Implements[pair.From] == ConfidenceBareID {
			delete(facts.Implements, pair.From)
		}
	}

	return facts
}

// Title derives a requirement title from a commit subject: the text
// after the ID reference, trimmed of separators. Returns "" when the
// message carries nothing usable.
func Title(message string, id RequirementID) string {
	subject := message
	if i := strings.IndexByte(subject, '\n'); i >= 0 {
		subject = subject[:i]
	}

	idx := strings.Index(strings.ToUpper(subject), id.String())
	if idx < 0 || idx+len(id.String()) > len(subject) {
		return strings.TrimSpace(subject)
	}

	rest := subject[idx+len(id.String()):]
	rest = strings.TrimLeft(rest, " \t:-–")
	return strings.TrimSpace(rest)
}
