// Package numeric holds the small scalar helpers shared by the control code.
package numeric

// Clamp coerces value into [min, max].
func Clamp(value, min, max float64) float64 {
	if value > max {
		return max
	}
	if value < min {
		return min
	}
	return value
}

// ClampSymmetric coerces value into [-limit, limit].
func ClampSymmetric(value, limit float64) float64 {
	return Clamp(value, -limit, limit)
}
