package analysis

import "math"

// SettlingTime is the first time after which values stay within band of
// their final value. ok is false when the signal never settles before the
// last sample.
func SettlingTime(times, values []float64, band float64) (float64, bool) {
	n := len(values)
	if n == 0 || len(times) != n {
		return 0, false
	}
	final := values[n-1]
	for i := n - 1; i >= 0; i-- {
		if math.Abs(values[i]-final) > band {
			if i+1 == n-1 {
				return times[n-1], false
			}
			return times[i+1], true
		}
	}
	return times[0], true
}

// Range returns the min and max of values[from:].
func Range(values []float64, from int) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	if from < 0 {
		from = 0
	}
	for _, v := range values[min(from, len(values)):] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
