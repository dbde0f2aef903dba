package main

import (
	"strings"
	"testing"
	"time"
)

func TestReadObservations(t *testing.T) {
	in := `
# comment
1000
2000 3.5

3000 -1.25
`
	obs, err := readObservations(strings.NewReader(in))
	if err != nil {
		t.Fatalf("readObservations: %v", err)
	}
	if len(obs) != 3 {
		t.Fatalf("observations = %d, want 3", len(obs))
	}
	if obs[0].HasValue {
		t.Error("bare timestamp should have no value")
	}
	if !obs[1].HasValue || obs[1].Value != 3.5 {
		t.Errorf("obs[1] = %+v, want value 3.5", obs[1])
	}
	if obs[2].Ts != 3000 || obs[2].Value != -1.25 {
		t.Errorf("obs[2] = %+v", obs[2])
	}
}

func TestReadObservations_Errors(t *testing.T) {
	cases := []string{
		"1000 2.5 extra",
		"notatime",
		"1000 notanumber",
	}
	for _, in := range cases {
		if _, err := readObservations(strings.NewReader(in)); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	if ms, err := parseTimestamp("1718000000000"); err != nil || ms != 1718000000000 {
		t.Errorf("millis parse = %d, %v", ms, err)
	}

	want := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC).UnixMilli()
	if ms, err := parseTimestamp("2024-06-10T12:00:00Z"); err != nil || ms != want {
		t.Errorf("RFC3339 parse = %d, %v, want %d", ms, err, want)
	}

	if _, err := parseTimestamp("yesterday"); err == nil {
		t.Error("expected error for unparseable timestamp")
	}
}

func TestAnyValues(t *testing.T) {
	if anyValues([]observation{{Ts: 1}, {Ts: 2}}) {
		t.Error("no values expected")
	}
	if !anyValues([]observation{{Ts: 1}, {Ts: 2, Value: 1, HasValue: true}}) {
		t.Error("value expected")
	}
}
