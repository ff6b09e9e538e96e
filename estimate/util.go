package estimate

import "math"

// hypot32 is a float32 euclidean length helper.
func hypot32(x, y float32) float32 {
	return float32(math.Hypot(float64(x), float64(y)))
}

// clamp32 restricts v to the range [lo, hi].
func clamp32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// median returns the median of the values, averaging the middle pair for
// even counts.  The input slice is reordered.
func median(vals []float32) float32 {
	n := len(vals)
	if n == 0 {
		return 0
	}

	// insertion sort, cells are few
	for i := 1; i < n; i++ {
		for j := i; j > 0 && vals[j] < vals[j-1]; j-- {
			vals[j], vals[j-1] = vals[j-1], vals[j]
		}
	}

	if n%2 == 1 {
		return vals[n/2]
	}

	return (vals[n/2-1] + vals[n/2]) / 2
}
