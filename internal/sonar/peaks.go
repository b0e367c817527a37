package sonar

// FindPeaks returns the indices of strict local maxima in x that are greater
// than minHeight. A strict maximum is greater than both neighbours, so the
// first and last samples are never reported and plateaus yield no peak.
// Indices are returned in ascending order.
func FindPeaks(x []float64, minHeight float64) []int {
	var peaks []int
	for i := 1; i < len(x)-1; i++ {
		v := x[i]
		if v > minHeight && v > x[i-1] && v > x[i+1] {
			peaks = append(peaks, i)
		}
	}
	return peaks
}
