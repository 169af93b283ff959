package utils

import "math"

// NormalizeL2 scales x in place to unit L2 norm. A zero vector is left
// untouched since it has no direction to preserve.
func NormalizeL2(x []float32) {
	var squared float64
	for _, v := range x {
		squared += float64(v) * float64(v)
	}
	if squared == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(squared))
	for i := range x {
		x[i] *= inv
	}
}
