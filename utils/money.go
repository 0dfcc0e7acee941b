// Package utils provides utility functions for the application.
package utils

import "math"

// RoundHalfUp rounds x to the nearest integer, ties away from zero upward.
// Used for commission amounts so 0.5 of a minor unit always rounds up.
func RoundHalfUp(x float64) int64 {
	return int64(math.Floor(x + 0.5))
}

// PercentCommission computes a percentage commission over a value expressed
// in currency minor units, rounded half-up to the minor unit.
func PercentCommission(valueMinor int64, ratePercent float64) int64 {
	return RoundHalfUp(float64(valueMinor) * ratePercent / 100.0)
}
