package utils

import "math"

// RoundPercent converts a similarity in [0,1] to a percentage rounded to one decimal.
func RoundPercent(sim float64) float64 {
	return math.Round(sim*1000) / 10
}

// Sigmoid returns 1/(1+exp(-x)), clamped to avoid overflow for extreme inputs.
func Sigmoid(x float32) float32 {
	if x > 50 {
		x = 50
	} else if x < -50 {
		x = -50
	}
	return 1 / (1 + float32(math.Exp(float64(-x))))
}
