package session

import "math"

// DefaultPrecision is the number of decimal places kept for every normalized coordinate.
const DefaultPrecision = 4

// Round rounds v to prec decimal places.
func Round(v float64, prec int) float64 {
	if prec < 0 {
		return v
	}
	scale := math.Pow(10, float64(prec))
	return math.Round(v*scale) / scale
}

// Clamp01 limits v to [0,1].
func Clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// NormalizeCoord rounds and clamps an already-normalized coordinate.
func NormalizeCoord(v float64, prec int) float64 {
	return Clamp01(Round(v, prec))
}

// Normalize converts a pixel position on a canvas of size w x h into
// normalized [0,1] coordinates. ok is false when the result is not a number,
// which happens for a zero-sized canvas or NaN input.
func Normalize(xPx, yPx, w, h float64, prec int) (xn, yn float64, ok bool) {
	if w <= 0 || h <= 0 {
		return 0, 0, false
	}
	xn = NormalizeCoord(xPx/w, prec)
	yn = NormalizeCoord(yPx/h, prec)
	if math.IsNaN(xn) || math.IsNaN(yn) {
		return 0, 0, false
	}
	return xn, yn, true
}

// Dist is the Euclidean distance in normalized space.
func Dist(x1, y1, x2, y2 float64) float64 {
	return math.Hypot(x1-x2, y1-y2)
}
