package rounding

import "fmt"

// Unit represents a calendar unit used as rounding granularity.
type Unit int

const (
	// UnitSecond rounds to second boundaries.
	UnitSecond Unit = iota

	// UnitMinute rounds to minute boundaries.
	UnitMinute

	// UnitHour rounds to hour boundaries.
	UnitHour

	// UnitDay rounds to local calendar day boundaries.
	UnitDay

	// UnitMonth rounds to local calendar month boundaries.
	UnitMonth

	// UnitYear rounds to local calendar year boundaries.
	UnitYear
)

// String returns the string representation of the unit.
func (u Unit) String() string {
	switch u {
	case UnitSecond:
		return "second"
	case UnitMinute:
		return "minute"
	case UnitHour:
		return "hour"
	case UnitDay:
		return "day"
	case UnitMonth:
		return "month"
	case UnitYear:
		return "year"
	default:
		return fmt.Sprintf("unknown(%d)", u)
	}
}

// FixedMillis returns the exact width of one unit in milliseconds and true
// for fixed-width units. Month and year have no fixed width under a fixed
// offset zone and return false; they require calendar arithmetic.
func (u Unit) FixedMillis() (int64, bool) {
	switch u {
	case UnitSecond:
		return 1000, true
	case UnitMinute:
		return 60 * 1000, true
	case UnitHour:
		return 60 * 60 * 1000, true
	case UnitDay:
		return 24 * 60 * 60 * 1000, true
	default:
		return 0, false
	}
}

// ParseUnit parses a string into a Unit.
func ParseUnit(s string) (Unit, error) {
	switch s {
	case "second":
		return UnitSecond, nil
	case "minute":
		return UnitMinute, nil
	case "hour":
		return UnitHour, nil
	case "day":
		return UnitDay, nil
	case "month":
		return UnitMonth, nil
	case "year":
		return UnitYear, nil
	default:
		return UnitSecond, fmt.Errorf("unknown unit: %s", s)
	}
}

// AllUnits returns all calendar units in ascending order of granularity.
func AllUnits() []Unit {
	return []Unit{UnitSecond, UnitMinute, UnitHour, UnitDay, UnitMonth, UnitYear}
}
