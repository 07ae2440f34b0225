package tado

import (
	"fmt"
	"math"
	"time"
)

const (
	MinTemperature  = 5.0
	MaxTemperature  = 25.0
	TemperatureStep = 0.5

	// FallbackTemperature is used when turning a room on without a known target.
	FallbackTemperature = 21.0

	MinOffset = -9.9
	MaxOffset = 9.9

	DefaultTimerMinutes = 30
	MinTimerMinutes     = 1
	MaxTimerMinutes     = 1440

	dateLayout = "2006-01-02"
)

func ValidateTemperature(v float64) error {
	if math.IsNaN(v) || v < MinTemperature || v > MaxTemperature {
		return fmt.Errorf("%w: %.1f not in [%.1f, %.1f]", ErrTemperatureOutOfRange, v, MinTemperature, MaxTemperature)
	}
	return nil
}

// RoundTemperature snaps v to the nearest supported step.
func RoundTemperature(v float64) float64 {
	return math.Round(v/TemperatureStep) * TemperatureStep
}

func ValidateOffset(v float64) error {
	if math.IsNaN(v) || v < MinOffset || v > MaxOffset {
		return fmt.Errorf("%w: %.1f not in [%.1f, %.1f]", ErrOffsetOutOfRange, v, MinOffset, MaxOffset)
	}
	return nil
}

func ValidateTimerMinutes(m int) error {
	if m < MinTimerMinutes || m > MaxTimerMinutes {
		return fmt.Errorf("%w: %d minutes not in [%d, %d]", ErrInvalidDuration, m, MinTimerMinutes, MaxTimerMinutes)
	}
	return nil
}

// ValidateDate accepts an empty string (meaning today) or YYYY-MM-DD.
func ValidateDate(s string) error {
	if s == "" {
		return nil
	}
	if _, err := time.Parse(dateLayout, s); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return nil
}

func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}
