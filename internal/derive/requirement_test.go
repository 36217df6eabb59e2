package derive

import (
	"testing"
)

func TestParseRequirementID(t *testing.T) {
	cases := []struct {
		input string
		want  string
		ok    bool
	}{
		{"FR-42", "FR-42", true},
		{"NFR-3", "NFR-3", true},
		{"fr-42", "FR-42", true},
		{"  FR-7  ", "FR-7", true},
		{"REQ-AND", "", false},
		{"FR-", "", false},
		{"FR42", "", false},
		{"FR-1a", "", false},
		{"XFR-1", "", false},
		{"FR-1-2", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		id, ok := ParseRequirementID(tc.input)
		if ok != tc.ok {
			t.Errorf("ParseRequirementID(%q) ok = %v, want %v", tc.input, ok, tc.ok)
			continue
		}
		if ok && id.String() != tc.want {
			t.Errorf("ParseRequirementID(%q) = %q, want %q", tc.input, id.String(), tc.want)
		}
	}
}

func TestExtractRequirementIDs(t *testing.T) {
	ids := ExtractRequirementIDs("Implements FR-42 and fixes NFR-3; see also FR-42 and REQ-AND")

	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d: %v", len(ids), ids)
	}
	if ids[0].String() != "FR-42" || ids[1].String() != "NFR-3" {
		t.Errorf("expected [FR-42 NFR-3], got [%s %s]", ids[0], ids[1])
	}
}

func TestExtractRequirementIDs_NoMatches(t *testing.T) {
	for _, text := range []string{"", "fix typo", "FRAND-1", "FR_42", "the FR team"} {
		if ids := ExtractRequirementIDs(text); len(ids) != 0 {
			t.Errorf("ExtractRequirementIDs(%q) = %v, want none", text, ids)
		}
	}
}

func TestScanMessage_ExplicitVerb(t *testing.T) {
	facts := ScanMessage("Implements FR-42: add windowed queries")

	id, _ := ParseRequirementID("FR-42")
	if got := facts.Implements[id]; got != ConfidenceExplicit {
		t.Errorf("expected confidence %.1f for verb match, got %.1f", ConfidenceExplicit, got)
	}
}

func TestScanMessage_VerbWithIDList(t *testing.T) {
	facts := ScanMessage("closes FR-1, FR-2 and NFR-3")

	if len(facts.Implements) != 3 {
		t.Fatalf("expected 3 implemented ids, got %d: %v", len(facts.Implements), facts.Implements)
	}
	for _, raw := range []string{"FR-1", "FR-2", "NFR-3"} {
		id, _ := ParseRequirementID(raw)
		if facts.Implements[id] != ConfidenceExplicit {
			t.Errorf("%s: expected confidence %.1f, got %.1f", raw, ConfidenceExplicit, facts.Implements[id])
		}
	}
}

func TestScanMessage_BareID(t *testing.T) {
	facts := ScanMessage("work related to FR-7 continues")

	id, _ := ParseRequirementID("FR-7")
	if got := facts.Implements[id]; got != ConfidenceBareID {
		t.Errorf("expected confidence %.1f for bare mention, got %.1f", ConfidenceBareID, got)
	}
}

func TestScanMessage_Evolves(t *testing.T) {
	for _, message := range []string{
		"FR-7 evolves from FR-2",
		"FR-7 supersedes FR-2",
	} {
		facts := ScanMessage(message)
		if len(facts.Evolves) != 1 {
			t.Fatalf("%q: expected 1 evolution pair, got %d", message, len(facts.Evolves))
		}
		pair := facts.Evolves[0]
		if pair.From.String() != "FR-7" || pair.To.String() != "FR-2" {
			t.Errorf("%q: expected FR-7 -> FR-2, got %s -> %s", message, pair.From, pair.To)
		}

		// The older requirement is a reference, not an implementation
		old, _ := ParseRequirementID("FR-2")
		if _, implemented := facts.Implements[old]; implemented {
			t.Errorf("%q: evolution target FR-2 should not be marked implemented", message)
		}
	}
}

func TestScanMessage_Deprecated(t *testing.T) {
	cases := []struct {
		message    string
		deprecated string
		deprecator string
	}{
		{"FR-9 deprecates FR-2", "FR-2", "FR-9"},
		{"FR-2 deprecated by FR-9", "FR-2", "FR-9"},
		{"FR-2 is deprecated by FR-9", "FR-2", "FR-9"},
	}

	for _, tc := range cases {
		facts := ScanMessage(tc.message)
		if len(facts.Deprecated) != 1 {
			t.Fatalf("%q: expected 1 deprecation pair, got %d", tc.message, len(facts.Deprecated))
		}
		pair := facts.Deprecated[0]
		if pair.From.String() != tc.deprecated || pair.To.String() != tc.deprecator {
			t.Errorf("%q: expected %s -> %s, got %s -> %s",
				tc.message, tc.deprecated, tc.deprecator, pair.From, pair.To)
		}
	}
}

func TestScanMessage_SelfReferenceIgnored(t *testing.T) {
	facts := ScanMessage("FR-1 evolves from FR-1")
	if len(facts.Evolves) != 0 {
		t.Errorf("self-referencing evolution should be dropped, got %v", facts.Evolves)
	}
}

func TestTitle(t *testing.T) {
	cases := []struct {
		message string
		id      string
		want    string
	}{
		{"Implements FR-42: add windowed queries", "FR-42", "add windowed queries"},
		{"FR-7 - sprint rollups\n\nlong body here", "FR-7", "sprint rollups"},
		{"fix pagination cursor", "FR-1", "fix pagination cursor"},
	}

	for _, tc := range cases {
		id, _ := ParseRequirementID(tc.id)
		if got := Title(tc.message, id); got != tc.want {
			t.Errorf("Title(%q, %s) = %q, want %q", tc.message, tc.id, got, tc.want)
		}
	}
}

func TestExcludedPath(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"node_modules/react/index.js", true},
		{"frontend/node_modules/react/index.js", true},
		{"vendor/github.com/pkg/errors/errors.go", true},
		{"src/__pycache__/mod.pyc", true},
		{"dist/bundle.js", true},
		{"myvendor/tool.go", false},
		{"src/app/main.py", false},
		{"builder/compose.go", false},
		{"docs/build-guide.md", false},
	}

	for _, tc := range cases {
		if got := ExcludedPath(tc.path); got != tc.want {
			t.Errorf("ExcludedPath(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}
