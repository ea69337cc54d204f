// Package commission computes barber earnings from service revenue.
package commission

import "math"

// Amount returns the barber's cut of a service total at the given
// percentage rate, rounded half-up to 2 decimals. Rates outside 0-100
// are clamped rather than rejected; the storage layer constrains what
// gets persisted.
func Amount(total, ratePercent float64) float64 {
	if ratePercent < 0 {
		ratePercent = 0
	}
	if ratePercent > 100 {
		ratePercent = 100
	}
	return round2(total * ratePercent / 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
