package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/rm2thaddeus/devgraph/internal/errors"
)

// parseTimestamp accepts unix seconds or RFC 3339 and returns epoch
// seconds. Timeline UIs send ISO strings, scripts send raw integers.
func parseTimestamp(value, name string) (int64, error) {
	if value == "" {
		return 0, apperrors.ValidationErrorf("missing required parameter %q", name)
	}

	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		return secs, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.Unix(), nil
	}

	return 0, apperrors.ValidationErrorf("parameter %q must be unix seconds or RFC 3339, got %q", name, value)
}

// queryParamInt extracts an integer query parameter with a default.
// A malformed value is a validation error, not a silent default.
func queryParamInt(r *http.Request, name string, defaultVal int) (int, error) {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal, nil
	}

	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, apperrors.ValidationErrorf("parameter %q must be an integer, got %q", name, val)
	}
	return i, nil
}

// queryParamBool extracts a boolean query parameter
func queryParamBool(r *http.Request, name string) bool {
	val := r.URL.Query().Get(name)
	return val == "true" || val == "1" || val == "yes"
}

// csvParam splits a comma-separated parameter into trimmed values
func csvParam(r *http.Request, name string) []string {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
