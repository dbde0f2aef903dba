package histogram

import "sort"

// CombineFunc merges two bucket values. It must be associative: folding and
// partition merging rely on combining values in whatever order escalation
// happens to visit them.
type CombineFunc[V any] func(a, b V) V

// Bucket is one output bucket: its inclusive start in epoch milliseconds and
// the accumulated value.
type Bucket[V any] struct {
	Start int64
	Value V
}

// Accumulator is a mapping of bucket start to accumulated value. Keys are
// held in a map during ingestion; ordered access goes through Sorted.
type Accumulator[V any] struct {
	buckets map[int64]V
	combine CombineFunc[V]
}

// NewAccumulator creates an empty accumulator with the given merge operation.
func NewAccumulator[V any](combine CombineFunc[V]) *Accumulator[V] {
	return &Accumulator[V]{
		buckets: make(map[int64]V),
		combine: combine,
	}
}

// Insert adds a value under the given bucket key, combining with the
// existing value if the key is already present.
func (a *Accumulator[V]) Insert(key int64, v V) {
	if old, ok := a.buckets[key]; ok {
		a.buckets[key] = a.combine(old, v)
	} else {
		a.buckets[key] = v
	}
}

// Size returns the number of distinct bucket keys.
func (a *Accumulator[V]) Size() int {
	return len(a.buckets)
}

// Fold produces a new accumulator by recomputing every existing key through
// round and merging collisions. The receiver is left untouched; the caller
// swaps in the result together with the escalated state. O(Size).
func (a *Accumulator[V]) Fold(round func(int64) int64) *Accumulator[V] {
	folded := NewAccumulator(a.combine)
	for key, v := range a.buckets {
		folded.Insert(round(key), v)
	}
	return folded
}

// Sorted returns the buckets in ascending key order.
func (a *Accumulator[V]) Sorted() []Bucket[V] {
	out := make([]Bucket[V], 0, len(a.buckets))
	for key, v := range a.buckets {
		out = append(out, Bucket[V]{Start: key, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
