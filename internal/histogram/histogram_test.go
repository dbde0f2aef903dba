package histogram

import (
	"math/rand"
	"testing"
	"time"

	"github.com/xtxerr/datehist/internal/errors"
	"github.com/xtxerr/datehist/internal/rounding"
)

func newCounter(t *testing.T, target int) *Controller[int64] {
	t.Helper()
	c, err := NewCounter(Config{TargetBuckets: target})
	if err != nil {
		t.Fatalf("NewCounter: %v", err)
	}
	return c
}

func TestConfig_Validation(t *testing.T) {
	cases := []struct {
		target int
		ok     bool
	}{
		{0, false},
		{-1, false},
		{1, true},
		{10, true},
		{10000, true},
		{10001, false},
	}

	for _, c := range cases {
		_, err := NewCounter(Config{TargetBuckets: c.target})
		if c.ok && err != nil {
			t.Errorf("target %d: unexpected error %v", c.target, err)
		}
		if !c.ok {
			if err == nil {
				t.Errorf("target %d: expected error", c.target)
			} else if !errors.IsConfiguration(err) {
				t.Errorf("target %d: expected configuration error, got %v", c.target, err)
			}
		}
	}
}

func TestController_SecondsCollapseToFiveSecondBuckets(t *testing.T) {
	c := newCounter(t, 3)

	// Distinct seconds 0..3: the fourth exceeds the bound and escalates the
	// rounding to 5-second buckets, collapsing everything into [0,5000).
	for s := int64(0); s < 4; s++ {
		c.Insert(s*1000, 1)
	}

	if got := c.State(); got != (rounding.State{Level: 0, Mult: 1}) {
		t.Errorf("state = %+v, want second x5", got)
	}
	if c.Size() != 1 {
		t.Errorf("size = %d, want 1", c.Size())
	}

	c.Insert(4000, 1)
	if c.Size() != 1 {
		t.Errorf("size after second 4 = %d, want 1", c.Size())
	}

	res := c.Finalize()
	if len(res.Buckets) != 1 || res.Buckets[0].Start != 0 {
		t.Fatalf("buckets = %+v, want single bucket at 0", res.Buckets)
	}
	if res.Buckets[0].Value != 5 {
		t.Errorf("count = %d, want 5", res.Buckets[0].Value)
	}
	if res.RoughMillis != 1000 || res.Multiplier != 5 {
		t.Errorf("final rounding = %dms x%d, want 1000ms x5", res.RoughMillis, res.Multiplier)
	}
}

func TestController_NoFurtherEscalationWithinBound(t *testing.T) {
	c := newCounter(t, 3)

	for s := int64(0); s <= 4; s++ {
		c.Insert(s*1000, 1)
	}
	c.Insert(10_000, 1)
	c.Insert(20_000, 1)

	if got := c.State(); got != (rounding.State{Level: 0, Mult: 1}) {
		t.Errorf("state = %+v, want second x5", got)
	}

	res := c.Finalize()
	want := []int64{0, 10_000, 20_000}
	if len(res.Buckets) != len(want) {
		t.Fatalf("buckets = %+v, want starts %v", res.Buckets, want)
	}
	for i, w := range want {
		if res.Buckets[i].Start != w {
			t.Errorf("bucket %d start = %d, want %d", i, res.Buckets[i].Start, w)
		}
	}
}

func TestController_OverflowAtCoarsestRounding(t *testing.T) {
	c := newCounter(t, 1)

	// 250 distinct years. No rounding coarser than 100-year buckets exists,
	// so the bound is allowed to overflow once the coarsest state is reached.
	for year := 1800; year < 2050; year++ {
		ts := time.Date(year, time.June, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
		c.Insert(ts, 1)

		if c.Size() > 1 && c.State() != c.Config().Hierarchy.Coarsest() {
			t.Fatalf("bound exceeded at non-coarsest state %+v", c.State())
		}
	}

	if c.State() != c.Config().Hierarchy.Coarsest() {
		t.Errorf("state = %+v, want coarsest", c.State())
	}

	res := c.Finalize()
	// 1800..2049 spans the 100-year grid cells 1800, 1900, 2000.
	if len(res.Buckets) != 3 {
		t.Fatalf("buckets = %d, want 3 century cells", len(res.Buckets))
	}
	var total int64
	for _, b := range res.Buckets {
		total += b.Value
	}
	if total != 250 {
		t.Errorf("total count = %d, want 250", total)
	}
}

func TestController_TimezoneKeepsLocalDayTogether(t *testing.T) {
	// UTC+2. 23:50 and 06:00 local time on the same local day must end up in
	// the same day bucket once escalation reaches day granularity.
	cfg := Config{TargetBuckets: 1, TimezoneOffset: 2 * time.Hour}
	c, err := NewCounter(cfg)
	if err != nil {
		t.Fatalf("NewCounter: %v", err)
	}

	early := time.Date(2024, 6, 10, 4, 0, 0, 0, time.UTC).UnixMilli()  // 06:00 local
	late := time.Date(2024, 6, 10, 21, 50, 0, 0, time.UTC).UnixMilli() // 23:50 local

	c.Insert(early, 1)
	c.Insert(late, 1)

	res := c.Finalize()
	if len(res.Buckets) != 1 {
		t.Fatalf("buckets = %+v, want one local-day bucket", res.Buckets)
	}

	// Local midnight June 10 at UTC+2 is 22:00 UTC June 9.
	want := time.Date(2024, 6, 9, 22, 0, 0, 0, time.UTC).UnixMilli()
	if res.Buckets[0].Start != want {
		t.Errorf("bucket start = %d, want %d (local midnight)", res.Buckets[0].Start, want)
	}
	if got := c.Config().Hierarchy.Level(res.State.Level).Unit; got != rounding.UnitDay {
		t.Errorf("final unit = %v, want day", got)
	}
}

func TestController_BoundInvariant(t *testing.T) {
	const target = 7
	c := newCounter(t, target)
	coarsest := c.Config().Hierarchy.Coarsest()

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 5000; i++ {
		// Adversarial spread: milliseconds to centuries.
		ts := rng.Int63n(int64(1) << uint(20+rng.Intn(23)))
		c.Insert(ts, 1)

		if c.Size() > target && c.State() != coarsest {
			t.Fatalf("after insert %d: size %d > target at state %+v", i, c.Size(), c.State())
		}
	}
}

func TestController_MonotonicEscalation(t *testing.T) {
	c := newCounter(t, 3)
	prev := c.State()

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		c.Insert(rng.Int63n(400*365*24*3600*1000), 1)

		s := c.State()
		if s.Before(prev) {
			t.Fatalf("state de-escalated: %+v -> %+v", prev, s)
		}
		prev = s
	}
}

func TestController_InsertAfterFinalizePanics(t *testing.T) {
	c := newCounter(t, 3)
	c.Insert(0, 1)
	c.Finalize()

	defer func() {
		if recover() == nil {
			t.Error("expected panic on Insert after Finalize")
		}
	}()
	c.Insert(1000, 1)
}

func TestController_EmptyFinalize(t *testing.T) {
	c := newCounter(t, 3)
	res := c.Finalize()

	if len(res.Buckets) != 0 {
		t.Errorf("buckets = %+v, want none", res.Buckets)
	}
	if res.State != (rounding.State{}) {
		t.Errorf("state = %+v, want finest", res.State)
	}
	if res.RoughMillis != 1000 || res.Multiplier != 1 {
		t.Errorf("rounding = %dms x%d, want 1000ms x1", res.RoughMillis, res.Multiplier)
	}
}

func TestMerge_Incompatible(t *testing.T) {
	a, _ := NewCounter(Config{TargetBuckets: 3})
	b, _ := NewCounter(Config{TargetBuckets: 4})

	_, err := Merge(a.Finalize(), b.Finalize(), func(x, y int64) int64 { return x + y })
	if !errors.Is(err, errors.ErrMergeIncompatible) {
		t.Errorf("expected ErrMergeIncompatible, got %v", err)
	}

	c, _ := NewCounter(Config{TargetBuckets: 3})
	d, _ := NewCounter(Config{TargetBuckets: 3, TimezoneOffset: time.Hour})
	_, err = Merge(c.Finalize(), d.Finalize(), func(x, y int64) int64 { return x + y })
	if !errors.Is(err, errors.ErrMergeIncompatible) {
		t.Errorf("expected ErrMergeIncompatible for offset mismatch, got %v", err)
	}
}

func TestMerge_AdoptsCoarserState(t *testing.T) {
	cfg := Config{TargetBuckets: 3}
	sum := func(x, y int64) int64 { return x + y }

	// Partition A escalated to 5-second buckets; B stayed at 1 second.
	a, _ := NewCounter(cfg)
	for s := int64(0); s < 5; s++ {
		a.Insert(s*1000, 1)
	}
	b, _ := NewCounter(cfg)
	b.Insert(1000, 1)
	b.Insert(2000, 1)

	ra, rb := a.Finalize(), b.Finalize()
	if !rb.State.Before(ra.State) {
		t.Fatalf("precondition: A (%+v) should be coarser than B (%+v)", ra.State, rb.State)
	}

	merged, err := Merge(ra, rb, sum)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if merged.State != ra.State {
		t.Errorf("merged state = %+v, want %+v", merged.State, ra.State)
	}
	if len(merged.Buckets) != 1 || merged.Buckets[0].Value != 7 {
		t.Errorf("merged buckets = %+v, want one bucket of 7", merged.Buckets)
	}
}

func TestMerge_Associative(t *testing.T) {
	cfg := Config{TargetBuckets: 4}
	sum := func(x, y int64) int64 { return x + y }

	mkPartition := func(seed int64, n int) Result[int64] {
		c, err := NewCounter(cfg)
		if err != nil {
			t.Fatalf("NewCounter: %v", err)
		}
		rng := rand.New(rand.NewSource(seed))
		for i := 0; i < n; i++ {
			c.Insert(rng.Int63n(6*3600*1000), 1) // six hours of data
		}
		return c.Finalize()
	}

	pa := mkPartition(1, 300)
	pb := mkPartition(2, 300)
	pc := mkPartition(3, 300)

	ab, err := Merge(pa, pb, sum)
	if err != nil {
		t.Fatalf("Merge(a,b): %v", err)
	}
	left, err := Merge(ab, pc, sum)
	if err != nil {
		t.Fatalf("Merge(ab,c): %v", err)
	}

	bc, err := Merge(pb, pc, sum)
	if err != nil {
		t.Fatalf("Merge(b,c): %v", err)
	}
	right, err := Merge(pa, bc, sum)
	if err != nil {
		t.Fatalf("Merge(a,bc): %v", err)
	}

	if left.State != right.State {
		t.Fatalf("states differ: %+v vs %+v", left.State, right.State)
	}
	if len(left.Buckets) != len(right.Buckets) {
		t.Fatalf("bucket counts differ: %d vs %d", len(left.Buckets), len(right.Buckets))
	}
	for i := range left.Buckets {
		if left.Buckets[i] != right.Buckets[i] {
			t.Errorf("bucket %d differs: %+v vs %+v", i, left.Buckets[i], right.Buckets[i])
		}
	}
}

func TestMerge_Commutative(t *testing.T) {
	cfg := Config{TargetBuckets: 5}
	sum := func(x, y int64) int64 { return x + y }

	mk := func(seed int64) Result[int64] {
		c, _ := NewCounter(cfg)
		rng := rand.New(rand.NewSource(seed))
		for i := 0; i < 200; i++ {
			c.Insert(rng.Int63n(90*24*3600*1000), 1)
		}
		return c.Finalize()
	}

	pa, pb := mk(11), mk(12)

	ab, err := Merge(pa, pb, sum)
	if err != nil {
		t.Fatalf("Merge(a,b): %v", err)
	}
	ba, err := Merge(pb, pa, sum)
	if err != nil {
		t.Fatalf("Merge(b,a): %v", err)
	}

	if ab.State != ba.State || len(ab.Buckets) != len(ba.Buckets) {
		t.Fatalf("merge not commutative: %+v vs %+v", ab, ba)
	}
	for i := range ab.Buckets {
		if ab.Buckets[i] != ba.Buckets[i] {
			t.Errorf("bucket %d differs: %+v vs %+v", i, ab.Buckets[i], ba.Buckets[i])
		}
	}
}

func TestMerge_RespectsBoundAfterFold(t *testing.T) {
	cfg := Config{TargetBuckets: 3}
	sum := func(x, y int64) int64 { return x + y }
	coarsest := rounding.DefaultHierarchy().Coarsest()

	// Two partitions each within bound, together exceeding it.
	a, _ := NewCounter(cfg)
	for s := int64(0); s < 3; s++ {
		a.Insert(s*1000, 1)
	}
	b, _ := NewCounter(cfg)
	for s := int64(10); s < 13; s++ {
		b.Insert(s*1000, 1)
	}

	merged, err := Merge(a.Finalize(), b.Finalize(), sum)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(merged.Buckets) > cfg.TargetBuckets && merged.State != coarsest {
		t.Errorf("merged size %d exceeds target at state %+v", len(merged.Buckets), merged.State)
	}
}

func TestAccumulator_FoldMergesCollisions(t *testing.T) {
	acc := NewAccumulator(func(a, b int64) int64 { return a + b })
	acc.Insert(0, 1)
	acc.Insert(1000, 2)
	acc.Insert(2000, 3)
	acc.Insert(7000, 4)

	folded := acc.Fold(func(key int64) int64 { return key / 5000 * 5000 })

	if folded.Size() != 2 {
		t.Fatalf("folded size = %d, want 2", folded.Size())
	}
	buckets := folded.Sorted()
	if buckets[0].Start != 0 || buckets[0].Value != 6 {
		t.Errorf("bucket 0 = %+v, want {0 6}", buckets[0])
	}
	if buckets[1].Start != 5000 || buckets[1].Value != 4 {
		t.Errorf("bucket 1 = %+v, want {5000 4}", buckets[1])
	}

	// Source untouched.
	if acc.Size() != 4 {
		t.Errorf("source accumulator mutated: size %d", acc.Size())
	}
}

func BenchmarkController_Insert(b *testing.B) {
	c, _ := NewCounter(Config{TargetBuckets: 50})
	rng := rand.New(rand.NewSource(1))
	stamps := make([]int64, 8192)
	for i := range stamps {
		stamps[i] = rng.Int63n(30 * 24 * 3600 * 1000)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Insert(stamps[i%len(stamps)], 1)
	}
}
