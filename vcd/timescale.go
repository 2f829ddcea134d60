package vcd

import (
	"fmt"
	"strconv"
	"strings"
)

// Timescale is the duration of one time unit in the dump, e.g. 1ns or 10ps.
type Timescale struct {
	Magnitude int
	Unit      string
}

// DefaultTimescale is the timescale used when none is configured.
var DefaultTimescale = Timescale{Magnitude: 1, Unit: "ps"}

var timescaleUnits = []string{"s", "ms", "us", "ns", "ps", "fs"}

// ParseTimescale parses strings such as "1ns", "10 ps" or "100us".
func ParseTimescale(s string) (Timescale, error) {
	trimmed := strings.TrimSpace(s)

	digits := 0
	for digits < len(trimmed) && trimmed[digits] >= '0' && trimmed[digits] <= '9' {
		digits++
	}

	if digits == 0 {
		return Timescale{}, fmt.Errorf("timescale %q: missing magnitude", s)
	}

	magnitude, err := strconv.Atoi(trimmed[:digits])
	if err != nil {
		return Timescale{}, fmt.Errorf("timescale %q: %w", s, err)
	}

	ts := Timescale{
		Magnitude: magnitude,
		Unit:      strings.TrimSpace(trimmed[digits:]),
	}

	return ts, ts.Validate()
}

// Validate checks that the magnitude is 1, 10 or 100 and the unit is known.
func (t Timescale) Validate() error {
	switch t.Magnitude {
	case 1, 10, 100:
	default:
		return fmt.Errorf("timescale magnitude must be 1, 10 or 100, got %d",
			t.Magnitude)
	}

	for _, u := range timescaleUnits {
		if t.Unit == u {
			return nil
		}
	}

	return fmt.Errorf("unknown timescale unit %q", t.Unit)
}

func (t Timescale) String() string {
	return strconv.Itoa(t.Magnitude) + t.Unit
}
