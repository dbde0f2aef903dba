// Package wire encodes histogram configuration and finalized count
// partitions for transmission to a merge coordinator.
//
// All integers use protobuf varint encoding (signed values zigzag-encoded);
// sequences are length-prefixed. A decoded configuration is re-validated:
// entries with empty or non-ascending inner intervals, non-increasing rough
// durations or an out-of-range target are rejected.
package wire

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/xtxerr/datehist/config"
	"github.com/xtxerr/datehist/internal/errors"
	"github.com/xtxerr/datehist/internal/histogram"
	"github.com/xtxerr/datehist/internal/rounding"
)

// Format version, bumped on incompatible layout changes.
const version = 1

// maxLevels bounds decoded hierarchy sizes so a corrupt length prefix cannot
// drive allocation.
const maxLevels = 64

// decoder consumes varints from a buffer with positional error reporting.
type decoder struct {
	data []byte
	off  int
}

func (d *decoder) uvarint(what string) (uint64, error) {
	v, n := protowire.ConsumeVarint(d.data[d.off:])
	if n < 0 {
		return 0, errors.Wrapf(errors.ErrShortBuffer, "%s at offset %d", what, d.off)
	}
	d.off += n
	return v, nil
}

func (d *decoder) varint(what string) (int64, error) {
	v, err := d.uvarint(what)
	if err != nil {
		return 0, err
	}
	return protowire.DecodeZigZag(v), nil
}

func (d *decoder) remaining() int {
	return len(d.data) - d.off
}

// =============================================================================
// Configuration
// =============================================================================

// AppendConfig appends the wire form of cfg to buf:
// version, target, timezone offset millis (zigzag), level count, then per
// level the ordered triple (unit, rough duration millis, length-prefixed
// inner intervals).
func AppendConfig(buf []byte, cfg histogram.Config) []byte {
	h := cfg.Hierarchy
	if h == nil {
		h = rounding.DefaultHierarchy()
	}

	buf = protowire.AppendVarint(buf, version)
	buf = protowire.AppendVarint(buf, uint64(cfg.TargetBuckets))
	buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(cfg.TimezoneOffset.Milliseconds()))
	buf = protowire.AppendVarint(buf, uint64(h.Levels()))
	for i := 0; i < h.Levels(); i++ {
		lv := h.Level(i)
		buf = protowire.AppendVarint(buf, uint64(lv.Unit))
		buf = protowire.AppendVarint(buf, uint64(lv.RoughMillis))
		buf = protowire.AppendVarint(buf, uint64(len(lv.Intervals)))
		for _, m := range lv.Intervals {
			buf = protowire.AppendVarint(buf, uint64(m))
		}
	}
	return buf
}

// EncodeConfig returns the wire form of cfg.
func EncodeConfig(cfg histogram.Config) []byte {
	return AppendConfig(nil, cfg)
}

// DecodeConfig parses and validates a configuration. The returned config is
// accepted by histogram.New without further errors.
func DecodeConfig(data []byte) (histogram.Config, error) {
	d := &decoder{data: data}
	cfg, err := decodeConfig(d)
	if err != nil {
		return histogram.Config{}, err
	}
	if d.remaining() != 0 {
		return histogram.Config{}, errors.Wrapf(errors.ErrMalformedWire,
			"%d trailing bytes", d.remaining())
	}
	return cfg, nil
}

func decodeConfig(d *decoder) (histogram.Config, error) {
	var zero histogram.Config

	v, err := d.uvarint("version")
	if err != nil {
		return zero, err
	}
	if v != version {
		return zero, errors.Wrapf(errors.ErrMalformedWire, "unsupported version %d", v)
	}

	target, err := d.uvarint("target")
	if err != nil {
		return zero, err
	}
	if target == 0 || target > config.BucketLimit {
		return zero, errors.Wrapf(errors.ErrMalformedWire,
			"target %d not in (0, %d]", target, config.BucketLimit)
	}

	offsetMillis, err := d.varint("timezone offset")
	if err != nil {
		return zero, err
	}

	levelCount, err := d.uvarint("level count")
	if err != nil {
		return zero, err
	}
	if levelCount == 0 || levelCount > maxLevels {
		return zero, errors.Wrapf(errors.ErrMalformedWire, "level count %d", levelCount)
	}

	levels := make([]rounding.Level, 0, levelCount)
	for i := uint64(0); i < levelCount; i++ {
		unit, err := d.uvarint("unit")
		if err != nil {
			return zero, err
		}
		if unit > uint64(rounding.UnitYear) {
			return zero, errors.Wrapf(errors.ErrMalformedWire, "level %d: unknown unit %d", i, unit)
		}

		rough, err := d.uvarint("rough duration")
		if err != nil {
			return zero, err
		}

		count, err := d.uvarint("interval count")
		if err != nil {
			return zero, err
		}
		if count == 0 || count > maxLevels {
			return zero, errors.Wrapf(errors.ErrMalformedWire, "level %d: interval count %d", i, count)
		}
		intervals := make([]int, count)
		for j := range intervals {
			m, err := d.uvarint("interval")
			if err != nil {
				return zero, err
			}
			intervals[j] = int(m)
		}

		levels = append(levels, rounding.Level{
			Unit:        rounding.Unit(unit),
			RoughMillis: int64(rough),
			Intervals:   intervals,
		})
	}

	// NewHierarchy enforces ascending rough durations and intervals strictly
	// ascending from 1.
	h, err := rounding.NewHierarchy(levels)
	if err != nil {
		return zero, fmt.Errorf("%w: %w", errors.ErrMalformedWire, err)
	}

	return histogram.Config{
		TargetBuckets:  int(target),
		TimezoneOffset: time.Duration(offsetMillis) * time.Millisecond,
		Hierarchy:      h,
	}, nil
}

// =============================================================================
// Finalized count partitions
// =============================================================================

// AppendPartition appends the wire form of a finalized count partition:
// its configuration, the final (level, multiplier) position, and the
// length-prefixed ordered bucket list as (start zigzag, count) pairs.
func AppendPartition(buf []byte, res histogram.Result[int64]) []byte {
	buf = AppendConfig(buf, res.Config)
	buf = protowire.AppendVarint(buf, uint64(res.State.Level))
	buf = protowire.AppendVarint(buf, uint64(res.State.Mult))
	buf = protowire.AppendVarint(buf, uint64(len(res.Buckets)))
	for _, b := range res.Buckets {
		buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(b.Start))
		buf = protowire.AppendVarint(buf, uint64(b.Value))
	}
	return buf
}

// EncodePartition returns the wire form of a finalized count partition.
func EncodePartition(res histogram.Result[int64]) []byte {
	return AppendPartition(nil, res)
}

// DecodePartition parses and validates a finalized count partition.
func DecodePartition(data []byte) (histogram.Result[int64], error) {
	var zero histogram.Result[int64]

	d := &decoder{data: data}
	cfg, err := decodeConfig(d)
	if err != nil {
		return zero, err
	}
	h := cfg.Hierarchy

	level, err := d.uvarint("state level")
	if err != nil {
		return zero, err
	}
	mult, err := d.uvarint("state multiplier")
	if err != nil {
		return zero, err
	}
	if level >= uint64(h.Levels()) || mult >= uint64(h.MultiplierCount(int(level))) {
		return zero, errors.Wrapf(errors.ErrMalformedWire, "state (%d,%d) out of range", level, mult)
	}
	state := rounding.State{Level: int(level), Mult: int(mult)}

	count, err := d.uvarint("bucket count")
	if err != nil {
		return zero, err
	}

	buckets := make([]histogram.Bucket[int64], 0, min(count, 4096))
	prev := int64(0)
	for i := uint64(0); i < count; i++ {
		start, err := d.varint("bucket start")
		if err != nil {
			return zero, err
		}
		if i > 0 && start <= prev {
			return zero, errors.Wrapf(errors.ErrMalformedWire,
				"bucket starts not strictly ascending at index %d", i)
		}
		prev = start

		n, err := d.uvarint("bucket value")
		if err != nil {
			return zero, err
		}
		buckets = append(buckets, histogram.Bucket[int64]{Start: start, Value: int64(n)})
	}
	if d.remaining() != 0 {
		return zero, errors.Wrapf(errors.ErrMalformedWire, "%d trailing bytes", d.remaining())
	}

	return histogram.Result[int64]{
		Config:      cfg,
		State:       state,
		RoughMillis: h.RoughMillis(state),
		Multiplier:  h.Multiplier(state),
		Buckets:     buckets,
	}, nil
}
