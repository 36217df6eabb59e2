package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/rm2thaddeus/devgraph/internal/gitlog"
)

const bucketName = "file_renames"

// Resolver answers "what paths has this file lived at" with a bbolt
// cache in front of git log --follow. Rename-chain construction and
// document timestamping both ask this question for every file; without
// the cache a re-ingestion re-runs --follow once per file.
type Resolver struct {
	cacheDB *bolt.DB
	tracker *gitlog.HistoryTracker
}

// Open creates a resolver backed by a bbolt file at cachePath
func Open(cachePath string, tracker *gitlog.HistoryTracker) (*Resolver, error) {
	if err := os.MkdirAll(filepath.Dir(cachePath), 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := bolt.Open(cachePath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open identity cache: %w", err)
	}

	return &Resolver{cacheDB: db, tracker: tracker}, nil
}

// Close closes the underlying bbolt file
func (r *Resolver) Close() error {
	return r.cacheDB.Close()
}

// HistoricalPaths returns every path a file has lived at, newest first.
// Results are cached by current path; a cache entry is trusted until
// Invalidate is called (new commits can extend a chain).
func (r *Resolver) HistoricalPaths(ctx context.Context, currentPath string) ([]string, error) {
	if cached, err := r.getCached(currentPath); err == nil {
		return cached, nil
	}

	paths, err := r.tracker.FileHistory(ctx, currentPath)
	if err != nil {
		return nil, err
	}

	if err := r.setCached(currentPath, paths); err != nil {
		// A failed cache write only costs a future --follow
		return paths, nil
	}
	return paths, nil
}

// Invalidate drops the cached chain for one path
func (r *Resolver) Invalidate(path string) error {
	return r.cacheDB.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(path))
	})
}

// InvalidateAll drops every cached chain. Called when a new ingestion
// run observes renames, since any chain may have grown.
func (r *Resolver) InvalidateAll() error {
	return r.cacheDB.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(bucketName)) == nil {
			return nil
		}
		return tx.DeleteBucket([]byte(bucketName))
	})
}

// getCached retrieves cached paths from bbolt
func (r *Resolver) getCached(filePath string) ([]string, error) {
	var result []string
	err := r.cacheDB.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket == nil {
			return bolt.ErrBucketNotFound
		}
		data := bucket.Get([]byte(filePath))
		if data == nil {
			return bolt.ErrBucketNotFound
		}
		return json.Unmarshal(data, &result)
	})
	return result, err
}

// setCached stores paths in the bbolt cache
func (r *Resolver) setCached(filePath string, paths []string) error {
	return r.cacheDB.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		if err != nil {
			return err
		}
		data, err := json.Marshal(paths)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(filePath), data)
	})
}
