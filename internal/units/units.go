// Package units provides speed unit names and conversions. Fix speeds arrive
// in meters per second; sessions and track points store km/h.
package units

import "strings"

// Unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// KmhPerMPS is the m/s to km/h factor.
const KmhPerMPS = 3.6

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// MPSToKmh converts meters per second to kilometers per hour.
func MPSToKmh(speedMPS float64) float64 {
	return speedMPS * KmhPerMPS
}

// ConvertKmh converts a speed stored in km/h to the target units. Unknown
// units leave the value in km/h.
func ConvertKmh(speedKmh float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedKmh * 0.621371
	case MPS:
		return speedKmh / KmhPerMPS
	default:
		return speedKmh
	}
}
