// Package daylight resolves civil twilight, sunrise and sunset for a given
// calendar day and location. It is the only component in this system that
// reaches outside pure scheduling math into astronomy.
package daylight

import (
	"fmt"
	"time"

	"github.com/sj14/astral/pkg/astral"

	"github.com/hwio/circlekeeper/event"
)

// Resolver computes daylight windows via the astral solar-position package.
// The zero value is ready to use.
type Resolver struct{}

// New returns a ready-to-use Resolver.
func New() *Resolver {
	return &Resolver{}
}

// Resolve returns the twilight/sunrise/sunset window for day d (only its
// calendar date is used) at latitude/longitude. All returned times are UTC.
//
// At latitudes/seasons where the sun stays above or below the civil
// twilight horizon all day (polar day/night), astral returns an error for
// the event that cannot occur; Resolve falls back to the corresponding
// sunrise/sunset instant, the same fallback birdnet-go uses for its own
// high-latitude installs, rather than failing the whole day's schedule.
func (r *Resolver) Resolve(d time.Time, latitude, longitude float64) (event.Daylight, error) {
	observer := astral.Observer{Latitude: latitude, Longitude: longitude}

	sunriseTime, err := astral.Sunrise(observer, d)
	if err != nil {
		return event.Daylight{}, fmt.Errorf("daylight: sunrise on %s at (%.4f, %.4f): %w", d.Format("2006-01-02"), latitude, longitude, err)
	}

	sunsetTime, err := astral.Sunset(observer, d)
	if err != nil {
		return event.Daylight{}, fmt.Errorf("daylight: sunset on %s at (%.4f, %.4f): %w", d.Format("2006-01-02"), latitude, longitude, err)
	}

	dawn, err := astral.Dawn(observer, d, astral.DepressionCivil)
	if err != nil {
		dawn = sunriseTime
	}

	dusk, err := astral.Dusk(observer, d, astral.DepressionCivil)
	if err != nil {
		dusk = sunsetTime
	}

	return event.Daylight{
		TwilightMorning: dawn.UTC(),
		Sunrise:         sunriseTime.UTC(),
		Sunset:          sunsetTime.UTC(),
		TwilightEvening: dusk.UTC(),
	}, nil
}
