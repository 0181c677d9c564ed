// Package cftime converts between CF-convention numeric time values
// ("<unit> since <reference>") and time.Time, and parses ISO-8601 durations.
package cftime

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/vk/dataprep/internal/dataset"
)

// Units is a parsed CF time units string.
type Units struct {
	Step  time.Duration
	Epoch time.Time
}

var unitSteps = map[string]time.Duration{
	"nanoseconds":  time.Nanosecond,
	"microseconds": time.Microsecond,
	"milliseconds": time.Millisecond,
	"seconds":      time.Second,
	"second":       time.Second,
	"secs":         time.Second,
	"s":            time.Second,
	"minutes":      time.Minute,
	"minute":       time.Minute,
	"mins":         time.Minute,
	"hours":        time.Hour,
	"hour":         time.Hour,
	"hrs":          time.Hour,
	"h":            time.Hour,
	"days":         24 * time.Hour,
	"day":          24 * time.Hour,
	"d":            24 * time.Hour,
}

// IsTimeUnits reports whether s looks like a CF time units string.
func IsTimeUnits(s string) bool {
	_, err := ParseUnits(s)
	return err == nil
}

// ParseUnits parses strings such as "hours since 1990-09-01 00:00:00".
func ParseUnits(s string) (Units, error) {
	unit, ref, ok := strings.Cut(strings.TrimSpace(s), " since ")
	if !ok {
		return Units{}, fmt.Errorf("%q is not a CF time units string", s)
	}
	step, ok := unitSteps[strings.ToLower(strings.TrimSpace(unit))]
	if !ok {
		return Units{}, fmt.Errorf("unsupported time unit %q", unit)
	}
	ref = strings.TrimSpace(ref)
	ref = strings.TrimSuffix(ref, " UTC")
	ref = strings.TrimSuffix(ref, " +00:00")
	epoch, err := dataset.ParseTime(ref)
	if err != nil {
		return Units{}, fmt.Errorf("time units %q: %w", s, err)
	}
	return Units{Step: step, Epoch: epoch}, nil
}

// Decode converts numeric offsets into times, rounded to the millisecond.
func (u Units) Decode(vals []float64) []time.Time {
	out := make([]time.Time, len(vals))
	for i, v := range vals {
		whole, frac := math.Modf(v)
		d := time.Duration(whole) * u.Step
		d += time.Duration(math.Round(frac * float64(u.Step)))
		out[i] = u.Epoch.Add(d).Round(time.Millisecond)
	}
	return out
}

// Encode converts times into numeric offsets.
func (u Units) Encode(ts []time.Time) []float64 {
	out := make([]float64, len(ts))
	for i, t := range ts {
		out[i] = float64(t.Sub(u.Epoch)) / float64(u.Step)
	}
	return out
}

// String renders the units in CF form.
func (u Units) String() string {
	name := "seconds"
	switch u.Step {
	case time.Nanosecond:
		name = "nanoseconds"
	case time.Microsecond:
		name = "microseconds"
	case time.Millisecond:
		name = "milliseconds"
	case time.Minute:
		name = "minutes"
	case time.Hour:
		name = "hours"
	case 24 * time.Hour:
		name = "days"
	}
	return name + " since " + u.Epoch.Format("2006-01-02 15:04:05")
}

// Epoch is seconds since the Unix epoch.
var Epoch = Units{Step: time.Second, Epoch: time.Unix(0, 0).UTC()}

var isoDuration = regexp.MustCompile(`^P(?:(\d+(?:\.\d+)?)W)?(?:(\d+(?:\.\d+)?)D)?(?:T(?:(\d+(?:\.\d+)?)H)?(?:(\d+(?:\.\d+)?)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// ParseDuration parses ISO-8601 durations made of weeks, days, hours,
// minutes and seconds, e.g. "PT3H" or "P1DT12H". Years and months have no
// fixed length and are rejected.
func ParseDuration(s string) (time.Duration, error) {
	m := isoDuration.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(s)))
	if m == nil || s == "P" || strings.HasSuffix(s, "T") {
		return 0, fmt.Errorf("%q is not an ISO-8601 duration", s)
	}
	units := []time.Duration{7 * 24 * time.Hour, 24 * time.Hour, time.Hour, time.Minute, time.Second}
	var total time.Duration
	var found bool
	for i, part := range m[1:] {
		if part == "" {
			continue
		}
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not an ISO-8601 duration", s)
		}
		total += time.Duration(f * float64(units[i]))
		found = true
	}
	if !found {
		return 0, fmt.Errorf("%q is not an ISO-8601 duration", s)
	}
	return total, nil
}
