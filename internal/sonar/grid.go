package sonar

import "math"

// Default scan grid sizes.
const (
	DefaultHorizontalDirections = 36
	DefaultVerticalAngles       = 9
)

// Elevation limits of the default vertical sweep.
const (
	MinElevation = -math.Pi / 4
	MaxElevation = math.Pi / 4
)

// AngleGrid holds the look angles of a scan. Horizontal angles are azimuths
// in [0, 2π); vertical angles are elevations in [-π/4, π/4].
type AngleGrid struct {
	Horizontal []float64 `json:"horizontal"`
	Vertical   []float64 `json:"vertical"`
}

// NewAngleGrid spaces horizontal directions evenly over [0, 2π) and vertical
// angles evenly over [-π/4, π/4], both ends included.
func NewAngleGrid(horizontal, vertical int) (AngleGrid, error) {
	if horizontal < 1 {
		return AngleGrid{}, invalidf("horizontal direction count must be >= 1, got %d", horizontal)
	}
	if vertical < 1 {
		return AngleGrid{}, invalidf("vertical angle count must be >= 1, got %d", vertical)
	}

	h := make([]float64, horizontal)
	step := 2 * math.Pi / float64(horizontal)
	for i := range h {
		h[i] = float64(i) * step
	}
	return AngleGrid{
		Horizontal: h,
		Vertical:   linspace(MinElevation, MaxElevation, vertical),
	}, nil
}

// Len is the number of angle pairs visited by a scan.
func (g AngleGrid) Len() int {
	return len(g.Horizontal) * len(g.Vertical)
}

// Pair returns the angles of the i-th pair in traversal order: vertical
// angles form the outer loop, horizontal angles the inner loop.
func (g AngleGrid) Pair(i int) (azimuth, elevation float64) {
	n := len(g.Horizontal)
	return g.Horizontal[i%n], g.Vertical[i/n]
}

// Validate rejects empty grids.
func (g AngleGrid) Validate() error {
	if len(g.Horizontal) == 0 || len(g.Vertical) == 0 {
		return invalidf("angle grid needs at least one horizontal and one vertical angle")
	}
	return nil
}

// linspace returns n evenly spaced values over [start, stop]. A single value
// is start.
func linspace(start, stop float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	out[n-1] = stop
	return out
}
