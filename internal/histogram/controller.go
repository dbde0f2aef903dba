// Package histogram implements an adaptive time-bucket histogram: a one-pass
// accumulator that assigns timestamps to calendar-aware buckets and coarsens
// its rounding granularity in place whenever the live bucket count would
// exceed a configured target. Already-consumed input is never re-scanned;
// existing buckets are folded into the coarser grid instead.
//
// Each pass owns one Controller. Controllers are not safe for concurrent
// use: run one per goroutine or partition and combine the finalized results
// with Merge.
package histogram

import (
	"fmt"
	"time"

	"github.com/xtxerr/datehist/config"
	"github.com/xtxerr/datehist/internal/errors"
	"github.com/xtxerr/datehist/internal/rounding"
)

// Config is the immutable histogram configuration, validated once at
// construction. Ingestion and finalize never fail under a valid Config.
type Config struct {
	// TargetBuckets bounds live bucket cardinality. Must be in
	// (0, config.BucketLimit]. The bound may still be exceeded once the
	// coarsest rounding is reached; no coarser granularity exists.
	TargetBuckets int

	// TimezoneOffset is the fixed offset used for calendar alignment.
	TimezoneOffset time.Duration

	// Hierarchy is the rounding table. Nil selects the default six-level
	// table.
	Hierarchy *rounding.Hierarchy
}

func (c Config) withDefaults() Config {
	if c.Hierarchy == nil {
		c.Hierarchy = rounding.DefaultHierarchy()
	}
	return c
}

func (c Config) validate() error {
	if c.TargetBuckets <= 0 || c.TargetBuckets > config.BucketLimit {
		return errors.Wrapf(errors.ErrInvalidTarget,
			"target_buckets %d not in (0, %d]", c.TargetBuckets, config.BucketLimit)
	}
	return nil
}

// Equal reports whether two configurations may be merged: same target, same
// timezone offset, same hierarchy table.
func (c Config) Equal(o Config) bool {
	return c.TargetBuckets == o.TargetBuckets &&
		c.TimezoneOffset == o.TimezoneOffset &&
		c.Hierarchy.Equal(o.Hierarchy)
}

// Controller drives one histogram pass: insertion, escalation and finalize.
type Controller[V any] struct {
	cfg       Config
	combine   CombineFunc[V]
	roundings []rounding.Rounding
	state     rounding.State
	acc       *Accumulator[V]
	finalized bool
}

// New creates a Controller. Configuration errors (invalid target, malformed
// hierarchy) surface here and never during ingestion.
func New[V any](cfg Config, combine CombineFunc[V]) (*Controller[V], error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Controller[V]{
		cfg:       cfg,
		combine:   combine,
		roundings: cfg.Hierarchy.Bind(cfg.TimezoneOffset),
		acc:       NewAccumulator(combine),
	}, nil
}

// NewCounter creates a Controller that counts timestamps per bucket.
func NewCounter(cfg Config) (*Controller[int64], error) {
	return New(cfg, func(a, b int64) int64 { return a + b })
}

// Config returns the controller's configuration.
func (c *Controller[V]) Config() Config {
	return c.cfg
}

// State returns the current (level, multiplier) position.
func (c *Controller[V]) State() rounding.State {
	return c.state
}

// Size returns the current live bucket count.
func (c *Controller[V]) Size() int {
	return c.acc.Size()
}

// round computes the bucket key for ts under the given state.
func (c *Controller[V]) round(ts int64, s rounding.State) int64 {
	return c.roundings[s.Level].Floor(ts, c.cfg.Hierarchy.Multiplier(s))
}

// Insert assigns ts to a bucket under the current state and merges v into
// it, escalating the rounding granularity if the bucket count now exceeds
// the target. Any int64 timestamp is accepted.
func (c *Controller[V]) Insert(ts int64, v V) {
	if c.finalized {
		panic("histogram: Insert after Finalize")
	}
	c.acc.Insert(c.round(ts, c.state), v)
	if c.acc.Size() > c.cfg.TargetBuckets {
		c.rebucket()
	}
}

// rebucket escalates one position at a time, folding the accumulator under
// each new state, until the bound holds or the coarsest position is reached.
// A single step may not suffice when the time range spans many orders of
// magnitude. At the coarsest position the overflow is accepted: no coarser
// calendar granularity exists.
func (c *Controller[V]) rebucket() {
	for c.acc.Size() > c.cfg.TargetBuckets {
		next, ok := c.cfg.Hierarchy.NextPosition(c.state)
		if !ok {
			return
		}
		folded := c.acc.Fold(func(key int64) int64 { return c.round(key, next) })
		c.state, c.acc = next, folded
	}
}

// Result is a finalized histogram: the ordered bucket sequence plus the
// final rounding reached by the pass. RoughMillis*Multiplier approximates
// the bucket width; exact widths for month/year buckets require recomputing
// via the calendar unit.
type Result[V any] struct {
	Config      Config
	State       rounding.State
	RoughMillis int64
	Multiplier  int
	Buckets     []Bucket[V]
}

// ApproxWidthMillis returns the approximate bucket width of the final
// rounding.
func (r Result[V]) ApproxWidthMillis() int64 {
	return r.RoughMillis * int64(r.Multiplier)
}

// Finalize ends the pass and returns the ordered bucket sequence. The
// controller becomes read-only; further Insert calls panic.
func (c *Controller[V]) Finalize() Result[V] {
	c.finalized = true
	return Result[V]{
		Config:      c.cfg,
		State:       c.state,
		RoughMillis: c.cfg.Hierarchy.RoughMillis(c.state),
		Multiplier:  c.cfg.Hierarchy.Multiplier(c.state),
		Buckets:     c.acc.Sorted(),
	}
}

// Merge combines two finalized partitions produced independently under the
// same configuration: it adopts the coarser of the two states, folds both
// bucket sets under it, then re-runs the escalation loop until the bound
// holds again. Merge is associative and commutative for a fixed
// configuration, so tree-shaped and sequential merge topologies agree.
func Merge[V any](a, b Result[V], combine CombineFunc[V]) (Result[V], error) {
	if !a.Config.Equal(b.Config) {
		return Result[V]{}, fmt.Errorf("targets %d/%d: %w",
			a.Config.TargetBuckets, b.Config.TargetBuckets, errors.ErrMergeIncompatible)
	}

	c, err := New(a.Config, combine)
	if err != nil {
		return Result[V]{}, err
	}
	c.state = rounding.Coarser(a.State, b.State)

	for _, bk := range a.Buckets {
		c.acc.Insert(c.round(bk.Start, c.state), bk.Value)
	}
	for _, bk := range b.Buckets {
		c.acc.Insert(c.round(bk.Start, c.state), bk.Value)
	}
	c.rebucket()

	return c.Finalize(), nil
}
