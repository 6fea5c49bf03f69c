package motion

import (
	"fmt"
	"math"
)

// ValidationError is returned when a caller passes a value outside of the
// accepted domain. Values are never clamped silently.
type ValidationError struct {
	Field string
	Value float64
	Min   float64
	Max   float64
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s must be between %g and %g, got %g", e.Field, e.Min, e.Max, e.Value)
}

// Converter maps motor steps to a percentage of the actuated height.
type Converter struct {
	StepsPerMM       float64
	ActuatedHeightMM float64
}

// NewConverter returns a Converter after checking the calibration constants.
func NewConverter(stepsPerMM, actuatedHeightMM float64) (Converter, error) {
	if !(stepsPerMM > 0) {
		return Converter{}, fmt.Errorf("steps per mm must be > 0, got %g", stepsPerMM)
	}
	if !(actuatedHeightMM > 0) {
		return Converter{}, fmt.Errorf("actuated height must be > 0, got %g", actuatedHeightMM)
	}
	return Converter{StepsPerMM: stepsPerMM, ActuatedHeightMM: actuatedHeightMM}, nil
}

func (c Converter) span() float64 {
	return c.ActuatedHeightMM * c.StepsPerMM
}

// TotalSteps is the number of steps covering the full actuated height.
func (c Converter) TotalSteps() int64 {
	return int64(math.Round(c.span()))
}

// StepsToPercent converts a step count to a percentage of travel. The result
// is not rounded; callers exposing whole percentages round it themselves.
func (c Converter) StepsToPercent(steps int64) float64 {
	span := c.span()
	if span <= 0 {
		return 0
	}
	return float64(steps) * 100 / span
}

// PercentToSteps converts a percentage of travel to the nearest step count.
func (c Converter) PercentToSteps(percent float64) (int64, error) {
	if math.IsNaN(percent) || percent < 0 || percent > 100 {
		return 0, &ValidationError{Field: "percent", Value: percent, Min: 0, Max: 100}
	}
	return int64(math.Round(percent / 100 * c.span())), nil
}
