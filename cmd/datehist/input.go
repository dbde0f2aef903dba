package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// observation is one parsed input line: a timestamp and an optional value.
type observation struct {
	Ts       int64
	Value    float64
	HasValue bool
}

// readObservationFile reads observations from path, or stdin when path is
// "-".
func readObservationFile(path string) ([]observation, error) {
	if path == "-" {
		return readObservations(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readObservations(f)
}

// readObservations parses one observation per line: a timestamp, optionally
// followed by a numeric value. Blank lines and lines starting with # are
// skipped.
func readObservations(r io.Reader) ([]observation, error) {
	var obs []observation

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.Fields(text)
		if len(fields) > 2 {
			return nil, fmt.Errorf("line %d: expected 'timestamp [value]', got %d fields", line, len(fields))
		}

		ts, err := parseTimestamp(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		o := observation{Ts: ts}
		if len(fields) == 2 {
			v, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: parse value %q: %w", line, fields[1], err)
			}
			o.Value = v
			o.HasValue = true
		}
		obs = append(obs, o)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return obs, nil
}

// parseTimestamp accepts epoch milliseconds or an RFC3339 instant.
func parseTimestamp(s string) (int64, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("parse timestamp %q: not epoch millis or RFC3339", s)
	}
	return t.UnixMilli(), nil
}

// anyValues reports whether at least one observation carries a value.
func anyValues(obs []observation) bool {
	for _, o := range obs {
		if o.HasValue {
			return true
		}
	}
	return false
}
