// Package pipeline runs one histogram pass per data partition concurrently
// and combines the finalized partitions. Controllers share no mutable state;
// cross-partition combination happens only through histogram.Merge, so any
// merge topology yields the same output.
package pipeline

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/datehist/internal/histogram"
	"github.com/xtxerr/datehist/internal/logging"
)

// ctxCheckInterval is how many inserts pass between context checks inside a
// partition loop.
const ctxCheckInterval = 4096

// Sample pairs a timestamp with its bucket value.
type Sample[V any] struct {
	Ts    int64
	Value V
}

// Run splits samples into contiguous shards, aggregates each shard with its
// own Controller on its own goroutine, and tree-merges the finalized
// results. partitions <= 0 selects GOMAXPROCS.
func Run[V any](ctx context.Context, cfg histogram.Config, combine histogram.CombineFunc[V], samples []Sample[V], partitions int) (histogram.Result[V], error) {
	if partitions <= 0 {
		partitions = runtime.GOMAXPROCS(0)
	}
	if partitions > len(samples) {
		partitions = len(samples)
	}
	if partitions <= 1 {
		return runOne(ctx, cfg, combine, samples)
	}

	log := logging.Component("pipeline")
	log.Debug("starting partitioned pass", "samples", len(samples), "partitions", partitions)

	results := make([]histogram.Result[V], partitions)
	g, ctx := errgroup.WithContext(ctx)

	chunk := (len(samples) + partitions - 1) / partitions
	for p := 0; p < partitions; p++ {
		p := p
		lo := p * chunk
		hi := min(lo+chunk, len(samples))
		g.Go(func() error {
			res, err := runOne(ctx, cfg, combine, samples[lo:hi])
			if err != nil {
				return err
			}
			results[p] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return histogram.Result[V]{}, err
	}

	return mergeAll(results, combine)
}

// Count runs a counting pass over raw timestamps.
func Count(ctx context.Context, cfg histogram.Config, timestamps []int64, partitions int) (histogram.Result[int64], error) {
	samples := make([]Sample[int64], len(timestamps))
	for i, ts := range timestamps {
		samples[i] = Sample[int64]{Ts: ts, Value: 1}
	}
	return Run(ctx, cfg, func(a, b int64) int64 { return a + b }, samples, partitions)
}

// runOne is a single-partition pass. The context is checked periodically so
// the surrounding executor can abandon long passes.
func runOne[V any](ctx context.Context, cfg histogram.Config, combine histogram.CombineFunc[V], samples []Sample[V]) (histogram.Result[V], error) {
	c, err := histogram.New(cfg, combine)
	if err != nil {
		return histogram.Result[V]{}, err
	}
	for i, s := range samples {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return histogram.Result[V]{}, err
			}
		}
		c.Insert(s.Ts, s.Value)
	}
	return c.Finalize(), nil
}

// mergeAll folds the partition results pairwise, tree-style.
func mergeAll[V any](results []histogram.Result[V], combine histogram.CombineFunc[V]) (histogram.Result[V], error) {
	for len(results) > 1 {
		next := results[:0]
		for i := 0; i < len(results); i += 2 {
			if i+1 == len(results) {
				next = append(next, results[i])
				continue
			}
			merged, err := histogram.Merge(results[i], results[i+1], combine)
			if err != nil {
				return histogram.Result[V]{}, err
			}
			next = append(next, merged)
		}
		results = next
	}
	return results[0], nil
}
