package query

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/rm2thaddeus/devgraph/internal/cache"
	apperrors "github.com/rm2thaddeus/devgraph/internal/errors"
	"github.com/rm2thaddeus/devgraph/internal/graph"
	"github.com/rm2thaddeus/devgraph/internal/models"
)

// Pagination limits. Callers asking for more than MaxLimit get MaxLimit;
// the cap protects the store, not the client.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// responseCache is the slice of the Redis client the read path uses.
// A nil cache disables caching; cache trouble degrades to a miss.
type responseCache interface {
	Get(ctx context.Context, key string, target interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
}

// Service answers windowed read queries against the temporal graph.
// Reads never block ingestion; they rely on the store's snapshot
// isolation.
type Service struct {
	backend graph.Backend
	cache   responseCache
	logger  *slog.Logger
}

// NewService wires the query service. redis may be nil, which disables
// response caching entirely.
func NewService(backend graph.Backend, redis *cache.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		backend: backend,
		logger:  logger.With("component", "query"),
	}
	if redis != nil {
		s.cache = redis
	}
	return s
}

// Window is a half-open-agnostic inclusive time range [from, to] in
// epoch seconds, with RFC 3339 renderings for API consumers.
type Window struct {
	From    int64  `json:"from_timestamp"`
	To      int64  `json:"to_timestamp"`
	FromISO string `json:"from_iso"`
	ToISO   string `json:"to_iso"`
}

// NewWindow builds a window from epoch-second bounds
func NewWindow(from, to int64) Window {
	return Window{
		From:    from,
		To:      to,
		FromISO: time.Unix(from, 0).UTC().Format(time.RFC3339),
		ToISO:   time.Unix(to, 0).UTC().Format(time.RFC3339),
	}
}

// Node is one graph node in a query response
type Node struct {
	UID        string         `json:"uid"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties"`
}

// Edge is one relationship in a query response. From and To are node
// uids present in the same response.
type Edge struct {
	Type       string         `json:"type"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	Properties map[string]any `json:"properties"`
}

// Pagination reports page state. NextCursor is null on the final page.
type Pagination struct {
	Limit      int     `json:"limit"`
	Returned   int     `json:"returned"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

// WindowTotals carries the aggregate counts for the whole window, only
// computed when the caller asks for them.
type WindowTotals struct {
	Commits int64 `json:"commits"`
	Files   int64 `json:"files"`
	Edges   int64 `json:"edges"`
}

// SubgraphRequest is a normalized windowed subgraph query
type SubgraphRequest struct {
	From          int64
	To            int64
	Types         []string
	Limit         int
	Cursor        string
	IncludeCounts bool
}

// SubgraphResponse is the windowed subgraph page
type SubgraphResponse struct {
	Window     Window        `json:"window"`
	Nodes      []Node        `json:"nodes"`
	Edges      []Edge        `json:"relationships"`
	Pagination Pagination    `json:"pagination"`
	Totals     *WindowTotals `json:"totals,omitempty"`
}

// subgraphPageQuery pages commits by the (timestamp, hash) keyset.
// LIMIT is always limit+1 so the service can tell whether another page
// exists without a count query.
const subgraphPageQuery = `
	MATCH (c:GitCommit)
	WHERE c.timestamp >= $from AND c.timestamp <= $to
	RETURN c.uid AS uid, c.hash AS hash, c.message AS message,
	       c.author AS author, c.author_email AS author_email,
	       c.timestamp AS timestamp, c.additions AS additions,
	       c.deletions AS deletions, c.files_changed AS files_changed
	ORDER BY c.timestamp ASC, c.hash ASC
	LIMIT $limit`

// subgraphPageAfterQuery is the same page query seeking past a cursor.
// Strictly-greater comparison on the composite key guarantees pages
// never overlap and never skip rows with equal timestamps.
const subgraphPageAfterQuery = `
	MATCH (c:GitCommit)
	WHERE c.timestamp >= $from AND c.timestamp <= $to
	  AND (c.timestamp > $last_ts OR (c.timestamp = $last_ts AND c.hash > $last_hash))
	RETURN c.uid AS uid, c.hash AS hash, c.message AS message,
	       c.author AS author, c.author_email AS author_email,
	       c.timestamp AS timestamp, c.additions AS additions,
	       c.deletions AS deletions, c.files_changed AS files_changed
	ORDER BY c.timestamp ASC, c.hash ASC
	LIMIT $limit`

const touchedFilesQuery = `
	MATCH (c:GitCommit)-[t:TOUCHED]->(f:File)
	WHERE c.hash IN $hashes
	RETURN c.hash AS hash, c.uid AS commit_uid,
	       f.uid AS file_uid, f.path AS path, f.extension AS extension,
	       f.language AS language, f.is_code AS is_code, f.is_doc AS is_doc,
	       t.change_type AS change_type, t.additions AS additions,
	       t.deletions AS deletions, t.timestamp AS timestamp,
	       t.renamed_from AS renamed_from
	ORDER BY c.hash ASC, f.path ASC`

// implementedRequirementsQuery finds requirements whose IMPLEMENTS
// evidence comes from the page's commits. The edge carries the commit
// hash as provenance, which ties the derived relationship back into the
// time window.
const implementedRequirementsQuery = `
	MATCH (q:Requirement)-[r:IMPLEMENTS]->(f:File)
	WHERE r.commit IN $hashes
	RETURN q.uid AS req_uid, q.id AS id, q.kind AS kind, q.title AS title,
	       q.created_at AS created_at, f.uid AS file_uid,
	       r.commit AS commit, r.timestamp AS timestamp,
	       r.confidence AS confidence
	ORDER BY id ASC, file_uid ASC`

const windowCountsQuery = `
	MATCH (c:GitCommit)
	WHERE c.timestamp >= $from AND c.timestamp <= $to
	OPTIONAL MATCH (c)-[t:TOUCHED]->(f:File)
	RETURN count(DISTINCT c) AS commits, count(DISTINCT f) AS files,
	       count(t) AS edges`

// subgraphLabels are the node types the windowed subgraph can return
var subgraphLabels = map[string]bool{
	models.LabelCommit:      true,
	models.LabelFile:        true,
	models.LabelRequirement: true,
}

// Subgraph returns one page of the temporal subgraph intersecting
// [From, To]. Commits drive pagination; files and requirements hang off
// the page's commits. An empty window yields a well-formed empty
// response, never an error.
func (s *Service) Subgraph(ctx context.Context, req SubgraphRequest) (*SubgraphResponse, error) {
	limit := normalizeLimit(req.Limit)
	types, typeList, err := normalizeTypes(req.Types)
	if err != nil {
		return nil, err
	}
	cursor, err := DecodeCursor(req.Cursor)
	if err != nil {
		return nil, err
	}

	key := cache.SubgraphKey(req.From, req.To, typeList, limit, req.Cursor, req.IncludeCounts)
	var cached SubgraphResponse
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	resp := &SubgraphResponse{
		Window:     NewWindow(req.From, req.To),
		Nodes:      []Node{},
		Edges:      []Edge{},
		Pagination: Pagination{Limit: limit},
	}

	if req.From > req.To {
		return resp, nil
	}

	pageQuery := subgraphPageQuery
	params := map[string]any{
		"from":  req.From,
		"to":    req.To,
		"limit": limit + 1,
	}
	if cursor != nil {
		pageQuery = subgraphPageAfterQuery
		params["last_ts"] = cursor.LastTimestamp
		params["last_hash"] = cursor.LastCommitHash
	}

	rows, err := s.backend.ReadRows(ctx, pageQuery, params)
	if err != nil {
		return nil, apperrors.DatabaseError(err, "querying subgraph window")
	}

	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next := EncodeCursor(Cursor{
			LastTimestamp:  intValue(last, "timestamp"),
			LastCommitHash: stringValue(last, "hash"),
		})
		resp.Pagination.HasMore = true
		resp.Pagination.NextCursor = &next
	}
	resp.Pagination.Returned = len(rows)

	includeCommits := types[models.LabelCommit] || len(types) == 0
	includeFiles := types[models.LabelFile] || len(types) == 0
	includeRequirements := types[models.LabelRequirement] || len(types) == 0

	hashes := make([]string, 0, len(rows))
	for _, row := range rows {
		hashes = append(hashes, stringValue(row, "hash"))
		if includeCommits {
			resp.Nodes = append(resp.Nodes, commitNode(row))
		}
	}

	if len(hashes) > 0 && includeFiles {
		if err := s.expandFiles(ctx, resp, hashes, includeCommits); err != nil {
			return nil, err
		}
	}
	if len(hashes) > 0 && includeRequirements {
		if err := s.expandRequirements(ctx, resp, hashes, includeFiles); err != nil {
			return nil, err
		}
	}

	if req.IncludeCounts {
		totals, err := s.windowTotals(ctx, req.From, req.To)
		if err != nil {
			return nil, err
		}
		resp.Totals = totals
	}

	s.cachePut(ctx, key, resp)
	return resp, nil
}

// expandFiles attaches the files touched by the page's commits, and the
// TOUCHED edges when commit nodes are part of the response
func (s *Service) expandFiles(ctx context.Context, resp *SubgraphResponse, hashes []string, withEdges bool) error {
	rows, err := s.backend.ReadRows(ctx, touchedFilesQuery, map[string]any{"hashes": hashes})
	if err != nil {
		return apperrors.DatabaseError(err, "expanding touched files")
	}

	seen := make(map[string]bool)
	for _, row := range rows {
		fileUID := stringValue(row, "file_uid")
		if fileUID == "" {
			continue
		}
		if !seen[fileUID] {
			seen[fileUID] = true
			resp.Nodes = append(resp.Nodes, fileNode(row))
		}
		if withEdges {
			resp.Edges = append(resp.Edges, touchedEdge(row))
		}
	}
	return nil
}

// expandRequirements attaches requirements implemented by the page's
// commits, and the IMPLEMENTS edges when file nodes are also included
func (s *Service) expandRequirements(ctx context.Context, resp *SubgraphResponse, hashes []string, withEdges bool) error {
	rows, err := s.backend.ReadRows(ctx, implementedRequirementsQuery, map[string]any{"hashes": hashes})
	if err != nil {
		return apperrors.DatabaseError(err, "expanding implemented requirements")
	}

	seen := make(map[string]bool)
	for _, row := range rows {
		reqUID := stringValue(row, "req_uid")
		if reqUID == "" {
			continue
		}
		if !seen[reqUID] {
			seen[reqUID] = true
			resp.Nodes = append(resp.Nodes, requirementNode(row))
		}
		if withEdges {
			resp.Edges = append(resp.Edges, implementsEdge(row))
		}
	}
	return nil
}

func (s *Service) windowTotals(ctx context.Context, from, to int64) (*WindowTotals, error) {
	rows, err := s.backend.ReadRows(ctx, windowCountsQuery, map[string]any{"from": from, "to": to})
	if err != nil {
		return nil, apperrors.DatabaseError(err, "counting window totals")
	}
	if len(rows) == 0 {
		return &WindowTotals{}, nil
	}
	return &WindowTotals{
		Commits: intValue(rows[0], "commits"),
		Files:   intValue(rows[0], "files"),
		Edges:   intValue(rows[0], "edges"),
	}, nil
}

func (s *Service) cacheGet(ctx context.Context, key string, target any) bool {
	if s.cache == nil {
		return false
	}
	hit, err := s.cache.Get(ctx, key, target)
	if err != nil {
		s.logger.Warn("cache read failed, treating as miss", "key", key, "error", err)
		return false
	}
	return hit
}

func (s *Service) cachePut(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value); err != nil {
		s.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// normalizeTypes validates the type filter against the labels the
// subgraph can return. An empty filter selects everything; an unknown
// label is a validation error rather than a silently empty result.
// The sorted slice feeds the cache key.
func normalizeTypes(types []string) (map[string]bool, []string, error) {
	selected := make(map[string]bool, len(types))
	for _, t := range types {
		if t == "" {
			continue
		}
		if !subgraphLabels[t] {
			allowed := make([]string, 0, len(subgraphLabels))
			for label := range subgraphLabels {
				allowed = append(allowed, label)
			}
			sort.Strings(allowed)
			return nil, nil, apperrors.ValidationErrorf("unknown node type %q (allowed: %v)", t, allowed)
		}
		selected[t] = true
	}

	list := make([]string, 0, len(selected))
	for t := range selected {
		list = append(list, t)
	}
	sort.Strings(list)
	return selected, list, nil
}

func commitNode(row map[string]any) Node {
	return Node{
		UID:        stringValue(row, "uid"),
		Label:      models.LabelCommit,
		Properties: rowProps(row, "hash", "message", "author", "author_email", "timestamp", "additions", "deletions", "files_changed"),
	}
}

func fileNode(row map[string]any) Node {
	return Node{
		UID:        stringValue(row, "file_uid"),
		Label:      models.LabelFile,
		Properties: rowProps(row, "path", "extension", "language", "is_code", "is_doc"),
	}
}

func requirementNode(row map[string]any) Node {
	return Node{
		UID:        stringValue(row, "req_uid"),
		Label:      models.LabelRequirement,
		Properties: rowProps(row, "id", "kind", "title", "created_at"),
	}
}

func touchedEdge(row map[string]any) Edge {
	return Edge{
		Type:       models.RelTouched,
		From:       stringValue(row, "commit_uid"),
		To:         stringValue(row, "file_uid"),
		Properties: rowProps(row, "change_type", "additions", "deletions", "timestamp", "renamed_from"),
	}
}

func implementsEdge(row map[string]any) Edge {
	return Edge{
		Type:       models.RelImplements,
		From:       stringValue(row, "req_uid"),
		To:         stringValue(row, "file_uid"),
		Properties: rowProps(row, "commit", "timestamp", "confidence"),
	}
}

// rowProps copies the named columns into a property map, dropping nulls
// so responses stay clean
func rowProps(row map[string]any, keys ...string) map[string]any {
	props := make(map[string]any, len(keys))
	for _, key := range keys {
		if v, ok := row[key]; ok && v != nil {
			props[key] = v
		}
	}
	return props
}

func stringValue(row map[string]any, key string) string {
	if v, ok := row[key].(string); ok {
		return v
	}
	return ""
}

func intValue(row map[string]any, key string) int64 {
	switch v := row[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func boolValue(row map[string]any, key string) bool {
	if v, ok := row[key].(bool); ok {
		return v
	}
	return false
}
