package query

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/xtxerr/datehist/internal/aggregate"
	"github.com/xtxerr/datehist/internal/export"
	"github.com/xtxerr/datehist/internal/histogram"
)

// exportHistogram writes a small metric histogram to a temp Parquet file and
// returns its path along with the finalized result.
func exportHistogram(t *testing.T) (string, histogram.Result[*aggregate.Stats]) {
	t.Helper()

	c, err := histogram.New(histogram.Config{TargetBuckets: 5}, aggregate.Combine)
	if err != nil {
		t.Fatalf("histogram.New: %v", err)
	}
	for i := 0; i < 60; i++ {
		ts := int64(i) * 1000 // one observation per second for a minute
		c.Insert(ts, aggregate.Of(float64(i), ts, true))
	}
	res := c.Finalize()

	path := filepath.Join(t.TempDir(), "histogram.parquet")
	if err := export.WriteStats(path, res, export.DefaultOptions()); err != nil {
		t.Fatalf("WriteStats: %v", err)
	}
	return path, res
}

func TestQueryRange_AllBuckets(t *testing.T) {
	path, res := exportHistogram(t)

	s, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	rows, err := s.QueryRange(context.Background(), RangeQuery{Path: path})
	if err != nil {
		t.Fatalf("QueryRange: %v", err)
	}
	if len(rows) != len(res.Buckets) {
		t.Fatalf("rows = %d, want %d", len(rows), len(res.Buckets))
	}

	var total int64
	for i, row := range rows {
		if row.BucketStart != res.Buckets[i].Start {
			t.Errorf("row %d start = %d, want %d", i, row.BucketStart, res.Buckets[i].Start)
		}
		if i > 0 && row.BucketStart <= rows[i-1].BucketStart {
			t.Errorf("row %d not ordered: %d after %d", i, row.BucketStart, rows[i-1].BucketStart)
		}
		total += row.Count
	}
	if total != 60 {
		t.Errorf("total count = %d, want 60", total)
	}

	stats := s.Stats()
	if stats.QueriesExecuted != 1 || stats.RowsReturned != int64(len(rows)) {
		t.Errorf("stats = %+v, want 1 query, %d rows", stats, len(rows))
	}
}

func TestQueryRange_TimeFilter(t *testing.T) {
	path, res := exportHistogram(t)
	if len(res.Buckets) < 2 {
		t.Skip("need at least two buckets")
	}

	s, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	// Exclude the first bucket by starting at the second bucket's start.
	from := res.Buckets[1].Start
	rows, err := s.QueryRange(context.Background(), RangeQuery{Path: path, StartMillis: from})
	if err != nil {
		t.Fatalf("QueryRange: %v", err)
	}
	if len(rows) != len(res.Buckets)-1 {
		t.Fatalf("rows = %d, want %d", len(rows), len(res.Buckets)-1)
	}
	if rows[0].BucketStart != from {
		t.Errorf("first row start = %d, want %d", rows[0].BucketStart, from)
	}
}

func TestQueryRange_Limit(t *testing.T) {
	path, res := exportHistogram(t)
	if len(res.Buckets) < 2 {
		t.Skip("need at least two buckets")
	}

	s, err := New("64MB")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	rows, err := s.QueryRange(context.Background(), RangeQuery{Path: path, Limit: 1})
	if err != nil {
		t.Fatalf("QueryRange: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].BucketStart != res.Buckets[0].Start {
		t.Errorf("limited query returned %d, want earliest bucket %d",
			rows[0].BucketStart, res.Buckets[0].Start)
	}
}

func TestQueryRange_Percentiles(t *testing.T) {
	path, _ := exportHistogram(t)

	s, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	rows, err := s.QueryRange(context.Background(), RangeQuery{Path: path})
	if err != nil {
		t.Fatalf("QueryRange: %v", err)
	}
	for i, row := range rows {
		if row.P50 < row.Min || row.P50 > row.Max {
			t.Errorf("row %d p50 %f outside [%f, %f]", i, row.P50, row.Min, row.Max)
		}
		if row.P99 < row.P50 {
			t.Errorf("row %d p99 %f below p50 %f", i, row.P99, row.P50)
		}
	}
}

func TestTotals(t *testing.T) {
	path, res := exportHistogram(t)

	s, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	buckets, observations, err := s.Totals(context.Background(), path)
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if buckets != int64(len(res.Buckets)) {
		t.Errorf("buckets = %d, want %d", buckets, len(res.Buckets))
	}
	if observations != 60 {
		t.Errorf("observations = %d, want 60", observations)
	}
}

func TestQueryRange_MissingFile(t *testing.T) {
	s, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	_, err = s.QueryRange(context.Background(), RangeQuery{
		Path: filepath.Join(t.TempDir(), "absent.parquet"),
	})
	if err == nil {
		t.Error("expected error for missing file")
	}
	if s.Stats().Errors != 1 {
		t.Errorf("error count = %d, want 1", s.Stats().Errors)
	}
}
