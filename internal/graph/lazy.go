package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// LazyQueryIterator streams query results instead of loading them all
// eagerly. The stamp backfill and quality scans walk every node in the
// graph, which would not fit in memory as an EagerResult on large
// repositories.
//
//	iter, err := ExecuteQueryLazy(ctx, driver, query, params, db, 500)
//	if err != nil { return err }
//	defer iter.Close(ctx)
//	for iter.Next() {
//	    record := iter.Record()
//	}
//	if err := iter.Err(); err != nil { return err }
type LazyQueryIterator struct {
	result  neo4j.ResultWithContext
	session neo4j.SessionWithContext
	ctx     context.Context
}

// Next advances to the next record
func (l *LazyQueryIterator) Next() bool {
	return l.result.Next(l.ctx)
}

// Record returns the current record. Call Next first.
func (l *LazyQueryIterator) Record() *neo4j.Record {
	return l.result.Record()
}

// Collect reads up to limit remaining records into a slice
func (l *LazyQueryIterator) Collect(limit int) ([]*neo4j.Record, error) {
	records := make([]*neo4j.Record, 0, limit)
	for len(records) < limit && l.Next() {
		records = append(records, l.result.Record())
	}
	if err := l.result.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Err returns any error that occurred during iteration
func (l *LazyQueryIterator) Err() error {
	return l.result.Err()
}

// Close consumes remaining results and releases the session. Always
// defer this after creating an iterator.
func (l *LazyQueryIterator) Close(ctx context.Context) (neo4j.ResultSummary, error) {
	defer l.session.Close(ctx)
	return l.result.Consume(ctx)
}

// ExecuteQueryLazy runs a read query and returns a streaming iterator.
// fetchSize controls how many records the driver buffers at once.
func ExecuteQueryLazy(
	ctx context.Context,
	driver neo4j.DriverWithContext,
	query string,
	params map[string]any,
	database string,
	fetchSize int,
) (*LazyQueryIterator, error) {
	session := driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: database,
		AccessMode:   neo4j.AccessModeRead,
		FetchSize:    fetchSize,
	})

	result, err := session.Run(ctx, query, params)
	if err != nil {
		session.Close(ctx)
		return nil, fmt.Errorf("lazy query failed: %w", err)
	}

	return &LazyQueryIterator{
		result:  result,
		session: session,
		ctx:     ctx,
	}, nil
}

// DefaultFetchSize is a reasonable buffer for full-graph scans
const DefaultFetchSize = 500
