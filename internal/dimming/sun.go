package dimming

import (
	"time"

	"github.com/nathan-osman/go-sunrise"
	"go.uber.org/zap"
)

// Phase labels whether the overlay should run at day or night brightness.
type Phase string

const (
	PhaseDay   Phase = "day"
	PhaseNight Phase = "night"
)

// Calculator tracks the local sun schedule and reports which phase a moment
// falls in. Night runs from dusk to the following dawn, with civil twilight
// approximated as 30 minutes either side of the horizon.
type Calculator struct {
	latitude  float64
	longitude float64
	logger    *zap.Logger

	// Cached sun times (recomputed every 6 hours)
	sunrise    time.Time
	sunset     time.Time
	dawn       time.Time
	dusk       time.Time
	lastUpdate time.Time
}

// NewCalculator creates a sun calculator for the given coordinates.
func NewCalculator(latitude, longitude float64, logger *zap.Logger) *Calculator {
	return &Calculator{
		latitude:  latitude,
		longitude: longitude,
		logger:    logger,
	}
}

// UpdateSunTimes recomputes the sun times for the date of the given moment.
func (c *Calculator) UpdateSunTimes(now time.Time) {
	rise, set := sunrise.SunriseSunset(
		c.latitude, c.longitude,
		now.Year(), now.Month(), now.Day(),
	)

	c.sunrise = rise
	c.sunset = set
	c.dawn = rise.Add(-30 * time.Minute)
	c.dusk = set.Add(30 * time.Minute)
	c.lastUpdate = now

	c.logger.Info("Sun times updated",
		zap.Time("sunrise", c.sunrise),
		zap.Time("sunset", c.sunset),
		zap.Time("dawn", c.dawn),
		zap.Time("dusk", c.dusk))
}

// Current returns the phase the given moment falls in, refreshing the
// cached sun times when they are stale.
func (c *Calculator) Current(now time.Time) Phase {
	if c.lastUpdate.IsZero() || now.Sub(c.lastUpdate) > 6*time.Hour {
		c.UpdateSunTimes(now)
	}

	if now.Before(c.dawn) || now.After(c.dusk) {
		return PhaseNight
	}
	return PhaseDay
}
