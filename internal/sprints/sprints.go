package sprints

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/rm2thaddeus/devgraph/internal/errors"
)

// Definition is one sprint as written in the definitions file. Start is
// required; End may be omitted and is then inferred.
type Definition struct {
	Number int64  `yaml:"number"`
	Name   string `yaml:"name"`
	Start  string `yaml:"start"`
	End    string `yaml:"end,omitempty"`
}

type definitionsFile struct {
	Sprints []Definition `yaml:"sprints"`
}

// Sprint is a definition with a fully resolved time window
type Sprint struct {
	Number      int64
	Name        string
	Start       time.Time
	End         time.Time
	EndInferred bool
}

// Skipped records a definition that could not be resolved and why.
// Skips are always surfaced to the caller; a sprint never disappears
// silently.
type Skipped struct {
	Number int64  `json:"number"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// LoadDefinitions reads sprint definitions from a YAML file
func LoadDefinitions(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.FileSystemErrorf(err, "reading sprint definitions %s", path)
	}

	var file definitionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, apperrors.ParseErrorf("parsing sprint definitions %s: %v", path, err)
	}
	return file.Sprints, nil
}

// ResolveWindows turns definitions into sprints with concrete windows.
//
// Windows are half-open [start, end). A missing end is inferred as the
// next sprint's start, or now for the last sprint, and flagged with
// EndInferred. Definitions without a usable window are returned in the
// skip list with the reason.
func ResolveWindows(defs []Definition, now time.Time) ([]Sprint, []Skipped) {
	ordered := make([]Definition, len(defs))
	copy(ordered, defs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Number < ordered[j].Number })

	var resolved []Sprint
	var skipped []Skipped
	seen := make(map[int64]bool)

	starts := make([]time.Time, len(ordered))
	startOK := make([]bool, len(ordered))
	for i, def := range ordered {
		if def.Start == "" {
			continue
		}
		start, err := parseDate(def.Start)
		if err != nil {
			continue
		}
		starts[i] = start
		startOK[i] = true
	}

	for i, def := range ordered {
		if seen[def.Number] {
			skipped = append(skipped, Skipped{def.Number, def.Name, "duplicate sprint number"})
			continue
		}
		seen[def.Number] = true

		if def.Start == "" {
			skipped = append(skipped, Skipped{def.Number, def.Name, "missing start date"})
			continue
		}
		if !startOK[i] {
			skipped = append(skipped, Skipped{def.Number, def.Name,
				fmt.Sprintf("unparseable start date %q", def.Start)})
			continue
		}
		start := starts[i]

		var end time.Time
		endInferred := false
		if def.End != "" {
			parsed, err := parseDate(def.End)
			if err != nil {
				skipped = append(skipped, Skipped{def.Number, def.Name,
					fmt.Sprintf("unparseable end date %q", def.End)})
				continue
			}
			end = parsed
		} else {
			end = nextStart(starts, startOK, i, now)
			endInferred = true
		}

		if !end.After(start) {
			skipped = append(skipped, Skipped{def.Number, def.Name,
				fmt.Sprintf("window is empty (start %s, end %s)",
					start.Format("2006-01-02"), end.Format("2006-01-02"))})
			continue
		}

		resolved = append(resolved, Sprint{
			Number:      def.Number,
			Name:        def.Name,
			Start:       start,
			End:         end,
			EndInferred: endInferred,
		})
	}

	return resolved, skipped
}

// nextStart finds the first later definition with a parseable start, or
// falls back to now
func nextStart(starts []time.Time, startOK []bool, from int, now time.Time) time.Time {
	for j := from + 1; j < len(starts); j++ {
		if startOK[j] {
			return starts[j]
		}
	}
	return now
}

// parseDate accepts date-only and full RFC 3339 timestamps. Date-only
// values resolve to midnight UTC.
func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
