// Package event describes the abstract daily events a toggle is built from
// and resolves them to a concrete UTC timestamp for a given day.
package event

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Daylight is the minimal view of a day's sun events an Event needs to
// resolve a Sunrise or Sunset spec. It keeps this package independent of
// the daylight package's concrete implementation, the same separation the
// teacher draws between internal/scheduling.Trigger and the sunrise library
// it calls.
type Daylight struct {
	TwilightMorning time.Time
	Sunrise         time.Time
	Sunset          time.Time
	TwilightEvening time.Time
}

// DaylightSource resolves the sun events for a calendar day at a location.
type DaylightSource interface {
	Resolve(day time.Time, latitude, longitude float64) (Daylight, error)
}

// Event is a daily event specification. Resolve computes the single
// concrete UTC timestamp that event occurs at on day D.
type Event interface {
	// Resolve returns the UTC instant this event occurs at on the calendar
	// day containing d (d's own time-of-day is ignored; only its date
	// matters). rng supplies the randomness for Fuzzy and the sunrise/sunset
	// jitter; it is owned by the caller (the supervisor) so tests can drive
	// it deterministically.
	Resolve(d time.Time, dev DaylightSource, latitude, longitude float64, rng *rand.Rand) (time.Time, error)
	fmt.Stringer
}

// clockTime is an hour:minute pair within a single day, 0 <= Hour < 24 and
// 0 <= Minute < 60.
type clockTime struct {
	Hour   int
	Minute int
}

func (c clockTime) valid() bool {
	return c.Hour >= 0 && c.Hour < 24 && c.Minute >= 0 && c.Minute < 60
}

func (c clockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// at returns the UTC instant of d's calendar date at clock time c in the
// installation's local time zone (spec.md §4.1: "converted to UTC via the
// local zone"). d's own time-of-day and location are ignored; only its
// year/month/day feed the result.
func (c clockTime) at(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour, c.Minute, 0, 0, time.Local).UTC()
}

// Fixed fires once each calendar day at local time Hour:Minute:00.
type Fixed struct {
	Hour   int
	Minute int
}

// NewFixed validates hour and minute and returns a Fixed event.
func NewFixed(hour, minute int) (Fixed, error) {
	c := clockTime{Hour: hour, Minute: minute}
	if !c.valid() {
		return Fixed{}, fmt.Errorf("event: fixed time %d:%d out of range", hour, minute)
	}
	return Fixed{Hour: hour, Minute: minute}, nil
}

func (f Fixed) String() string {
	return fmt.Sprintf("Fixed(%s)", clockTime{f.Hour, f.Minute})
}

// Resolve implements Event.
func (f Fixed) Resolve(d time.Time, _ DaylightSource, _, _ float64, _ *rand.Rand) (time.Time, error) {
	c := clockTime{f.Hour, f.Minute}
	return c.at(d), nil
}

// Fuzzy fires once each calendar day at a random whole second uniformly
// drawn from [start, end), redrawn independently each materialization.
type Fuzzy struct {
	Start clockTime
	End   clockTime
}

// NewFuzzy validates that start is strictly before end on the same day.
func NewFuzzy(startHour, startMinute, endHour, endMinute int) (Fuzzy, error) {
	start := clockTime{startHour, startMinute}
	end := clockTime{endHour, endMinute}
	if !start.valid() || !end.valid() {
		return Fuzzy{}, fmt.Errorf("event: fuzzy window %s-%s out of range", start, end)
	}
	if !(start.Hour < end.Hour || (start.Hour == end.Hour && start.Minute < end.Minute)) {
		return Fuzzy{}, fmt.Errorf("event: fuzzy window start %s must be strictly before end %s", start, end)
	}
	return Fuzzy{Start: start, End: end}, nil
}

func (f Fuzzy) String() string {
	return fmt.Sprintf("Fuzzy(%s..%s)", f.Start, f.End)
}

// Resolve implements Event.
func (f Fuzzy) Resolve(d time.Time, _ DaylightSource, _, _ float64, rng *rand.Rand) (time.Time, error) {
	a := f.Start.at(d)
	b := f.End.at(d)
	span := b.Sub(a)
	if span <= 0 {
		return time.Time{}, fmt.Errorf("event: fuzzy window %s-%s is empty", f.Start, f.End)
	}
	offset := time.Duration(rng.Int64N(int64(span/time.Second))) * time.Second
	return a.Add(offset), nil
}

// Sunrise fires at the midpoint between civil dawn and sunrise, plus a
// uniform jitter in [-Delta, +Delta] minutes.
type Sunrise struct {
	Delta uint16 // minutes
}

func (s Sunrise) String() string { return fmt.Sprintf("Sunrise(±%dm)", s.Delta) }

// Resolve implements Event.
func (s Sunrise) Resolve(d time.Time, dev DaylightSource, lat, lon float64, rng *rand.Rand) (time.Time, error) {
	dl, err := dev.Resolve(d, lat, lon)
	if err != nil {
		return time.Time{}, fmt.Errorf("event: resolving sunrise: %w", err)
	}
	base := midpoint(dl.TwilightMorning, dl.Sunrise)
	return jitter(base, s.Delta, rng), nil
}

// Sunset fires at the midpoint between sunset and civil dusk, plus a
// uniform jitter in [-Delta, +Delta] minutes.
type Sunset struct {
	Delta uint16 // minutes
}

func (s Sunset) String() string { return fmt.Sprintf("Sunset(±%dm)", s.Delta) }

// Resolve implements Event.
func (s Sunset) Resolve(d time.Time, dev DaylightSource, lat, lon float64, rng *rand.Rand) (time.Time, error) {
	dl, err := dev.Resolve(d, lat, lon)
	if err != nil {
		return time.Time{}, fmt.Errorf("event: resolving sunset: %w", err)
	}
	base := midpoint(dl.Sunset, dl.TwilightEvening)
	return jitter(base, s.Delta, rng), nil
}

func midpoint(a, b time.Time) time.Time {
	return a.Add(b.Sub(a) / 2)
}

// jitter adds a uniform random offset in [-delta, +delta] minutes to base.
func jitter(base time.Time, delta uint16, rng *rand.Rand) time.Time {
	if delta == 0 {
		return base
	}
	spanSeconds := int64(delta) * 60
	// uniform in [-spanSeconds, +spanSeconds]
	offset := rng.Int64N(2*spanSeconds+1) - spanSeconds
	return base.Add(time.Duration(offset) * time.Second)
}
