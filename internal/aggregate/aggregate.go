// Package aggregate provides the mergeable per-bucket value used when a
// histogram carries metric samples instead of plain counts. It maintains
// running statistics with optional DDSketch percentile state.
package aggregate

import (
	"math"

	"github.com/DataDog/sketches-go/ddsketch"
)

// DefaultAccuracy is the DDSketch relative accuracy used by New.
const DefaultAccuracy = 0.01

// Stats holds running statistics for one bucket. Merge is associative, so
// Stats can serve as the bucket value of an adaptive histogram: folds and
// partition merges may combine values in any grouping.
//
// Stats is not safe for concurrent use; a histogram pass is single-threaded
// and each partition owns its own values.
type Stats struct {
	count   int64
	sum     float64
	min     float64
	max     float64
	firstTs int64
	lastTs  int64

	// DDSketch for percentiles (nil if disabled)
	sketch *ddsketch.DDSketch
}

// New creates an empty Stats. With percentiles enabled, values are also fed
// into a DDSketch at DefaultAccuracy.
func New(enablePercentile bool) *Stats {
	s := &Stats{
		min: math.MaxFloat64,
		max: -math.MaxFloat64,
	}
	if enablePercentile {
		if sk, err := ddsketch.NewDefaultDDSketch(DefaultAccuracy); err == nil {
			s.sketch = sk
		}
	}
	return s
}

// NewWithAccuracy creates an empty Stats with percentile state at a custom
// relative accuracy.
func NewWithAccuracy(accuracy float64) *Stats {
	s := &Stats{
		min: math.MaxFloat64,
		max: -math.MaxFloat64,
	}
	if sk, err := ddsketch.NewDefaultDDSketch(accuracy); err == nil {
		s.sketch = sk
	}
	return s
}

// Of creates a Stats holding a single observation. Convenient as the value
// passed to Controller.Insert.
func Of(value float64, tsMillis int64, enablePercentile bool) *Stats {
	s := New(enablePercentile)
	s.Add(value, tsMillis)
	return s
}

// Add records a value observed at the given timestamp.
func (s *Stats) Add(value float64, tsMillis int64) {
	if s.count == 0 {
		s.firstTs = tsMillis
		s.lastTs = tsMillis
	} else {
		if tsMillis < s.firstTs {
			s.firstTs = tsMillis
		}
		if tsMillis > s.lastTs {
			s.lastTs = tsMillis
		}
	}

	s.count++
	s.sum += value
	if value < s.min {
		s.min = value
	}
	if value > s.max {
		s.max = value
	}

	if s.sketch != nil {
		s.sketch.Add(value)
	}
}

// Merge folds other into s and returns s. Merging is associative and
// commutative.
func (s *Stats) Merge(other *Stats) *Stats {
	if other == nil || other.count == 0 {
		return s
	}
	if s.count == 0 {
		s.firstTs = other.firstTs
		s.lastTs = other.lastTs
	} else {
		if other.firstTs < s.firstTs {
			s.firstTs = other.firstTs
		}
		if other.lastTs > s.lastTs {
			s.lastTs = other.lastTs
		}
	}

	s.count += other.count
	s.sum += other.sum
	if other.min < s.min {
		s.min = other.min
	}
	if other.max > s.max {
		s.max = other.max
	}

	if s.sketch != nil && other.sketch != nil {
		s.sketch.MergeWith(other.sketch)
	}
	return s
}

// Combine adapts Merge to the histogram's combine signature.
func Combine(a, b *Stats) *Stats {
	return a.Merge(b)
}

// Count returns the number of observations.
func (s *Stats) Count() int64 {
	return s.count
}

// IsEmpty returns true if no values have been added.
func (s *Stats) IsEmpty() bool {
	return s.count == 0
}

// Result is an immutable snapshot of a Stats.
type Result struct {
	Count int64
	Sum   float64
	Min   float64
	Max   float64
	Avg   float64

	// Percentiles (nil if not enabled or no data)
	P50 *float64
	P90 *float64
	P95 *float64
	P99 *float64

	// Timestamps of actual observations
	FirstTs int64
	LastTs  int64
}

// HasPercentiles returns true if percentile data is available.
func (r *Result) HasPercentiles() bool {
	return r.P50 != nil
}

// Result returns the aggregation snapshot, computing percentiles when the
// sketch is enabled and non-empty.
func (s *Stats) Result() Result {
	r := Result{
		Count:   s.count,
		Sum:     s.sum,
		FirstTs: s.firstTs,
		LastTs:  s.lastTs,
	}
	if s.count > 0 {
		r.Avg = s.sum / float64(s.count)
		r.Min = s.min
		r.Max = s.max
	}

	if s.sketch != nil && s.count > 0 {
		p50, _ := s.sketch.GetValueAtQuantile(0.50)
		p90, _ := s.sketch.GetValueAtQuantile(0.90)
		p95, _ := s.sketch.GetValueAtQuantile(0.95)
		p99, _ := s.sketch.GetValueAtQuantile(0.99)
		r.P50, r.P90, r.P95, r.P99 = &p50, &p90, &p95, &p99
	}

	return r
}
