package event

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFixed(t *testing.T) {
	tests := []struct {
		name    string
		hour    int
		minute  int
		wantErr bool
	}{
		{name: "midnight", hour: 0, minute: 0},
		{name: "end of day", hour: 23, minute: 59},
		{name: "hour too large", hour: 24, minute: 0, wantErr: true},
		{name: "negative hour", hour: -1, minute: 0, wantErr: true},
		{name: "minute too large", hour: 10, minute: 60, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFixed(tt.hour, tt.minute)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFixed_Resolve(t *testing.T) {
	f, err := NewFixed(20, 0)
	require.NoError(t, err)

	day := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	ts, err := f.Resolve(day, nil, 0, 0, nil)
	require.NoError(t, err)

	// at() only promises the *local* wall clock reads 2024-06-01 20:00; the
	// UTC calendar date can roll to the 31st or the 2nd depending on the
	// test host's zone offset, so assert against the local representation
	// rather than ts's own (UTC) Year/Month/Day.
	local := ts.Local()
	assert.Equal(t, 2024, local.Year())
	assert.Equal(t, time.June, local.Month())
	assert.Equal(t, 1, local.Day())
	assert.Equal(t, 20, local.Hour())
	assert.Equal(t, 0, local.Minute())
}

func TestNewFuzzy(t *testing.T) {
	_, err := NewFuzzy(10, 0, 10, 0)
	assert.Error(t, err, "equal start/end must be rejected")

	_, err = NewFuzzy(10, 30, 10, 0)
	assert.Error(t, err, "start after end must be rejected")

	_, err = NewFuzzy(10, 0, 10, 30)
	assert.NoError(t, err)
}

func TestFuzzy_Resolve_WithinWindow(t *testing.T) {
	f, err := NewFuzzy(10, 0, 10, 10)
	require.NoError(t, err)

	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 50; i++ {
		ts, err := f.Resolve(day, nil, 0, 0, rng)
		require.NoError(t, err)

		lower := f.Start.at(day)
		upper := f.End.at(day)
		assert.True(t, !ts.Before(lower) && ts.Before(upper), "resolved time must fall in [start, end)")
	}
}

type fakeDaylight struct {
	d Daylight
}

func (f fakeDaylight) Resolve(time.Time, float64, float64) (Daylight, error) {
	return f.d, nil
}

func TestSunrise_Resolve_Midpoint(t *testing.T) {
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	dev := fakeDaylight{d: Daylight{
		TwilightMorning: day.Add(5 * time.Hour),
		Sunrise:         day.Add(5*time.Hour + 30*time.Minute),
	}}

	s := Sunrise{Delta: 0}
	ts, err := s.Resolve(day, dev, 0, 0, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)
	assert.Equal(t, day.Add(5*time.Hour+15*time.Minute), ts)
}

func TestSunset_Resolve_JitterBounded(t *testing.T) {
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	dev := fakeDaylight{d: Daylight{
		Sunset:          day.Add(20 * time.Hour),
		TwilightEvening: day.Add(20*time.Hour + 30*time.Minute),
	}}

	s := Sunset{Delta: 10}
	base := day.Add(20*time.Hour + 15*time.Minute)
	rng := rand.New(rand.NewPCG(7, 9))

	for i := 0; i < 50; i++ {
		ts, err := s.Resolve(day, dev, 0, 0, rng)
		require.NoError(t, err)
		diff := ts.Sub(base)
		assert.True(t, diff >= -10*time.Minute && diff <= 10*time.Minute)
	}
}
