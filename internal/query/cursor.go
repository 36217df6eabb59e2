package query

import (
	"encoding/base64"
	"encoding/json"

	apperrors "github.com/rm2thaddeus/devgraph/internal/errors"
)

// Cursor carries keyset pagination state: the sort key of the last row
// on the previous page. Offset pagination rescans everything before the
// offset on every request, which degrades linearly with window size;
// seeking past a (timestamp, hash) key stays flat.
type Cursor struct {
	LastTimestamp  int64  `json:"last_timestamp"`
	LastCommitHash string `json:"last_commit_hash"`
}

// EncodeCursor serializes a cursor to a URL-safe opaque token
func EncodeCursor(c Cursor) string {
	payload, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(payload)
}

// DecodeCursor parses a cursor token. An empty token is the first page
// and decodes to nil. Malformed tokens are a validation error, never a
// silent reset to page one.
func DecodeCursor(raw string) (*Cursor, error) {
	if raw == "" {
		return nil, nil
	}

	payload, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil, apperrors.ValidationErrorf("malformed cursor: %v", err)
	}

	var c Cursor
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, apperrors.ValidationErrorf("malformed cursor payload: %v", err)
	}
	if c.LastCommitHash == "" {
		return nil, apperrors.ValidationErrorf("cursor is missing the last commit hash")
	}
	return &c, nil
}
