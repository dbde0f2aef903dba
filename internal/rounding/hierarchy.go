package rounding

import (
	"time"

	"github.com/xtxerr/datehist/internal/errors"
)

// Level is one rounding granularity: a calendar unit, its approximate width
// in milliseconds, and the ascending inner-interval multipliers available at
// that unit. RoughMillis is used only for comparisons and display, never for
// calendar arithmetic.
type Level struct {
	Unit        Unit
	RoughMillis int64
	Intervals   []int
}

// MaxInterval returns the largest inner-interval multiplier of this level.
func (l Level) MaxInterval() int {
	return l.Intervals[len(l.Intervals)-1]
}

// Hierarchy is the ordered, immutable table of rounding levels, finest to
// coarsest. It is built once and shared read-only by every histogram pass.
type Hierarchy struct {
	levels []Level
}

// DefaultHierarchy returns the standard six-level table. The coarse levels
// are built eagerly even though most passes never reach them; the table is
// small and bounded.
func DefaultHierarchy() *Hierarchy {
	return &Hierarchy{levels: []Level{
		{Unit: UnitSecond, RoughMillis: 1000, Intervals: []int{1, 5, 10, 30}},
		{Unit: UnitMinute, RoughMillis: 60 * 1000, Intervals: []int{1, 5, 10, 30}},
		{Unit: UnitHour, RoughMillis: 60 * 60 * 1000, Intervals: []int{1, 3, 12}},
		{Unit: UnitDay, RoughMillis: 24 * 60 * 60 * 1000, Intervals: []int{1, 7}},
		{Unit: UnitMonth, RoughMillis: 30 * 24 * 60 * 60 * 1000, Intervals: []int{1, 3}},
		{Unit: UnitYear, RoughMillis: 365 * 24 * 60 * 60 * 1000, Intervals: []int{1, 5, 10, 20, 50, 100}},
	}}
}

// NewHierarchy builds a hierarchy from the given levels after validating
// them: rough durations must strictly increase across levels, and each
// level's intervals must be non-empty, start at 1 and strictly increase.
func NewHierarchy(levels []Level) (*Hierarchy, error) {
	h := &Hierarchy{levels: levels}
	if err := h.validate(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Hierarchy) validate() error {
	if len(h.levels) == 0 {
		return errors.NewValidation("hierarchy", "no rounding levels")
	}

	var errs []error
	prev := int64(0)
	for _, lv := range h.levels {
		if lv.RoughMillis <= prev {
			errs = append(errs, errors.NewInvalidValue("rough duration", lv.RoughMillis,
				"must strictly increase across levels"))
		}
		prev = lv.RoughMillis

		if len(lv.Intervals) == 0 {
			errs = append(errs, errors.NewValidation("intervals", "empty at level "+lv.Unit.String()))
			continue
		}
		if lv.Intervals[0] != 1 {
			errs = append(errs, errors.NewInvalidValue("intervals", lv.Intervals[0],
				"first multiplier must be 1"))
		}
		for j := 1; j < len(lv.Intervals); j++ {
			if lv.Intervals[j] <= lv.Intervals[j-1] {
				errs = append(errs, errors.NewInvalidValue("intervals", lv.Intervals[j],
					"must strictly increase within level "+lv.Unit.String()))
			}
		}
	}

	if len(errs) > 0 {
		return errors.Wrap(errors.Join(errs...), errors.ErrInvalidHierarchy.Error())
	}
	return nil
}

// Levels returns the number of rounding levels.
func (h *Hierarchy) Levels() int {
	return len(h.levels)
}

// Level returns the level at the given index.
func (h *Hierarchy) Level(i int) Level {
	return h.levels[i]
}

// MultiplierCount returns the number of inner intervals at a level.
func (h *Hierarchy) MultiplierCount(level int) int {
	return len(h.levels[level].Intervals)
}

// Equal reports whether two hierarchies describe the same table. Partitions
// may only be merged when their hierarchies are equal.
func (h *Hierarchy) Equal(o *Hierarchy) bool {
	if h == o {
		return true
	}
	if o == nil || len(h.levels) != len(o.levels) {
		return false
	}
	for i, lv := range h.levels {
		ov := o.levels[i]
		if lv.Unit != ov.Unit || lv.RoughMillis != ov.RoughMillis || len(lv.Intervals) != len(ov.Intervals) {
			return false
		}
		for j, m := range lv.Intervals {
			if m != ov.Intervals[j] {
				return false
			}
		}
	}
	return true
}

// Bind creates one Rounding value per level for the given fixed timezone
// offset. Each level owns its rounding value; nothing is shared or mutable.
func (h *Hierarchy) Bind(offset time.Duration) []Rounding {
	rs := make([]Rounding, len(h.levels))
	for i, lv := range h.levels {
		rs[i] = New(lv.Unit, offset)
	}
	return rs
}

// State is a position in the hierarchy's flattened (level, multiplier)
// sequence. Over the lifetime of one pass it only ever advances.
type State struct {
	Level int
	Mult  int
}

// Multiplier returns the inner-interval multiplier at the given state.
func (h *Hierarchy) Multiplier(s State) int {
	return h.levels[s.Level].Intervals[s.Mult]
}

// RoughMillis returns the approximate duration of one unit at the state's
// level. Combined with Multiplier it gives an approximate bucket width;
// exact widths for month/year buckets require the calendar, not this value.
func (h *Hierarchy) RoughMillis(s State) int64 {
	return h.levels[s.Level].RoughMillis
}

// NextPosition advances to the next (level, multiplier) pair: multipliers
// within a level are exhausted before moving to the next level. The second
// return value is false when the state is already coarsest, signalling that
// no further escalation exists.
func (h *Hierarchy) NextPosition(s State) (State, bool) {
	if s.Mult+1 < len(h.levels[s.Level].Intervals) {
		return State{Level: s.Level, Mult: s.Mult + 1}, true
	}
	if s.Level+1 < len(h.levels) {
		return State{Level: s.Level + 1, Mult: 0}, true
	}
	return s, false
}

// Coarsest returns the last (level, multiplier) position.
func (h *Hierarchy) Coarsest() State {
	last := len(h.levels) - 1
	return State{Level: last, Mult: len(h.levels[last].Intervals) - 1}
}

// Before reports whether s precedes o in the flattened sequence.
func (s State) Before(o State) bool {
	if s.Level != o.Level {
		return s.Level < o.Level
	}
	return s.Mult < o.Mult
}

// Coarser returns the later of the two positions.
func Coarser(a, b State) State {
	if a.Before(b) {
		return b
	}
	return a
}
