// Package rounding implements timezone-aware calendar rounding of millisecond
// timestamps, and the fixed hierarchy of rounding granularities used by the
// adaptive histogram.
//
// A Rounding is an immutable value capturing a calendar unit and a fixed
// timezone offset. Its Floor method is pure: the same timestamp always maps
// to the same bucket start for a given unit, multiplier and offset. That
// purity is what makes bucket folding and partition merging deterministic.
package rounding

import "time"

// Rounding maps a timestamp to the start of its containing calendar-unit
// interval, optionally coarsened by an inner-interval multiplier.
type Rounding struct {
	unit         Unit
	loc          *time.Location
	offsetMillis int64
}

// New creates a Rounding for the given unit and fixed timezone offset.
func New(unit Unit, offset time.Duration) Rounding {
	secs := int(offset / time.Second)
	loc := time.UTC
	if secs != 0 {
		loc = time.FixedZone("fixed", secs)
	}
	return Rounding{
		unit:         unit,
		loc:          loc,
		offsetMillis: offset.Milliseconds(),
	}
}

// Unit returns the calendar unit of this rounding.
func (r Rounding) Unit() Unit {
	return r.unit
}

// OffsetMillis returns the fixed timezone offset in milliseconds.
func (r Rounding) OffsetMillis() int64 {
	return r.offsetMillis
}

// Floor returns the bucket start (inclusive) for ts, in epoch milliseconds.
//
// Grid anchors are fixed so that keys are stable across folds and partition
// merges:
//   - second/minute/hour/day: the multiplier grid is epoch-aligned in local
//     time, i.e. a 5-second grid has boundaries where
//     (ts+offset) mod 5000 == 0.
//   - month: multiples of the multiplier counted from January, so a 3-month
//     grid yields calendar quarters.
//   - year: multiples of the multiplier counted from year 0, so a 100-year
//     grid yields ...,1900,2000,...
func (r Rounding) Floor(ts int64, multiplier int) int64 {
	if multiplier < 1 {
		multiplier = 1
	}

	if width, ok := r.unit.FixedMillis(); ok {
		width *= int64(multiplier)
		local := ts + r.offsetMillis
		return floorDiv(local, width)*width - r.offsetMillis
	}

	t := time.UnixMilli(ts).In(r.loc)
	switch r.unit {
	case UnitMonth:
		month := (int(t.Month())-1)/multiplier*multiplier + 1
		return time.Date(t.Year(), time.Month(month), 1, 0, 0, 0, 0, r.loc).UnixMilli()
	case UnitYear:
		year := int(floorDiv(int64(t.Year()), int64(multiplier))) * multiplier
		return time.Date(year, time.January, 1, 0, 0, 0, 0, r.loc).UnixMilli()
	default:
		return ts
	}
}

// Next returns the start of the bucket following the one that begins at
// start. Useful for computing exclusive bucket ends and for gap-filling:
// month and year buckets have no fixed width, so the end must be derived
// from the calendar rather than an approximate duration.
func (r Rounding) Next(start int64, multiplier int) int64 {
	if multiplier < 1 {
		multiplier = 1
	}

	if width, ok := r.unit.FixedMillis(); ok {
		return start + width*int64(multiplier)
	}

	t := time.UnixMilli(start).In(r.loc)
	switch r.unit {
	case UnitMonth:
		return t.AddDate(0, multiplier, 0).UnixMilli()
	case UnitYear:
		return t.AddDate(multiplier, 0, 0).UnixMilli()
	default:
		return start
	}
}

// floorDiv divides a by b rounding toward negative infinity, so pre-epoch
// timestamps floor to the bucket below rather than toward zero.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
