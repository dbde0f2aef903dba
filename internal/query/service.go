// Package query provides read-back queries over exported histogram Parquet
// files. It uses an in-memory DuckDB database and its read_parquet table
// function, so exported files can be inspected without loading them fully.
package query

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/datehist/internal/export"
	"github.com/xtxerr/datehist/internal/logging"
)

// Service provides query capabilities over exported histogram files.
type Service struct {
	db    *sql.DB
	stats Stats
}

// Stats holds query statistics.
type Stats struct {
	QueriesExecuted int64
	RowsReturned    int64
	Errors          int64
}

// RangeQuery defines parameters for querying buckets in a time range.
// Zero StartMillis/EndMillis leave that side unbounded.
type RangeQuery struct {
	Path        string
	StartMillis int64
	EndMillis   int64
	Limit       int
}

// New creates a new query service backed by an in-memory DuckDB database.
// memoryLimit bounds DuckDB memory usage; empty means DuckDB's default.
func New(memoryLimit string) (*Service, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	if memoryLimit != "" {
		if _, err := db.Exec(fmt.Sprintf("SET memory_limit='%s'", memoryLimit)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set memory limit: %w", err)
		}
	}

	logging.Component("query").Debug("query service ready", "memory_limit", memoryLimit)
	return &Service{db: db}, nil
}

// Close closes the query service.
func (s *Service) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// QueryRange returns the buckets of an exported histogram whose start falls
// in [StartMillis, EndMillis), ordered ascending.
func (s *Service) QueryRange(ctx context.Context, q RangeQuery) ([]export.BucketRow, error) {
	query := `
		SELECT
			bucket_start, bucket_end,
			rough_millis, multiplier,
			count, sum, min, max, avg,
			p50, p90, p95, p99,
			first_ts, last_ts
		FROM read_parquet($1)
		WHERE ($2 = 0 OR bucket_start >= $2)
		  AND ($3 = 0 OR bucket_start < $3)
		ORDER BY bucket_start
	`

	rows, err := s.db.QueryContext(ctx, query, q.Path, q.StartMillis, q.EndMillis)
	if err != nil {
		s.stats.Errors++
		return nil, fmt.Errorf("query parquet: %w", err)
	}
	defer rows.Close()

	results, err := scanBuckets(rows)
	if err != nil {
		s.stats.Errors++
		return nil, err
	}

	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}

	s.stats.QueriesExecuted++
	s.stats.RowsReturned += int64(len(results))
	return results, nil
}

// Totals returns the bucket count and summed observation count of an
// exported histogram.
func (s *Service) Totals(ctx context.Context, path string) (buckets, observations int64, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT count(*), coalesce(sum(count), 0) FROM read_parquet($1)`, path)
	if err := row.Scan(&buckets, &observations); err != nil {
		s.stats.Errors++
		return 0, 0, fmt.Errorf("scan totals: %w", err)
	}
	s.stats.QueriesExecuted++
	return buckets, observations, nil
}

// Stats returns a snapshot of query statistics.
func (s *Service) Stats() Stats {
	return s.stats
}

// scanBuckets scans rows into a BucketRow slice.
func scanBuckets(rows *sql.Rows) ([]export.BucketRow, error) {
	var results []export.BucketRow

	for rows.Next() {
		var r export.BucketRow
		var p50, p90, p95, p99 sql.NullFloat64

		err := rows.Scan(
			&r.BucketStart, &r.BucketEnd,
			&r.RoughMillis, &r.Multiplier,
			&r.Count, &r.Sum, &r.Min, &r.Max, &r.Avg,
			&p50, &p90, &p95, &p99,
			&r.FirstTs, &r.LastTs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		if p50.Valid {
			r.P50, r.P90, r.P95, r.P99 = p50.Float64, p90.Float64, p95.Float64, p99.Float64
		}

		results = append(results, r)
	}

	return results, rows.Err()
}
