package transducer

import (
	"math"

	"github.com/banshee-data/echomap/internal/sonar"
)

// Room is an axis-aligned box around the probe head. Distances are meters
// from the head, which sits centred in X and Y.
type Room struct {
	Width   float64 `json:"width"`   // along X
	Depth   float64 `json:"depth"`   // along Y
	Floor   float64 `json:"floor"`   // below the head
	Ceiling float64 `json:"ceiling"` // above the head
	Gain    float64 `json:"gain"`
}

// DefaultRoom is a 6 x 4 m room with the head 1.2 m off the floor.
func DefaultRoom() Room {
	return Room{Width: 6, Depth: 4, Floor: 1.2, Ceiling: 1.5, Gain: 0.8}
}

// Distance is how far the head sees along (azimuth, elevation) before
// hitting a surface.
func (r Room) Distance(azimuth, elevation float64) float64 {
	x, y, z := sonar.SphericalToCartesian(1, azimuth, elevation)
	d := math.Inf(1)
	hit := func(component, bound float64) {
		if component > 1e-12 {
			d = math.Min(d, bound/component)
		}
	}
	hit(x, r.Width/2)
	hit(-x, r.Width/2)
	hit(y, r.Depth/2)
	hit(-y, r.Depth/2)
	hit(z, r.Ceiling)
	hit(-z, r.Floor)
	return d
}

// Reflectors places one reflector where each look direction of grid meets
// the room. Beams are narrowed below the grid spacing so every probe hears
// only its own wall patch.
func (r Room) Reflectors(grid sonar.AngleGrid) []Reflector {
	beam := DefaultBeamwidth
	if n := len(grid.Horizontal); n > 1 {
		beam = math.Min(beam, 0.9*2*math.Pi/float64(n))
	}
	if n := len(grid.Vertical); n > 1 {
		beam = math.Min(beam, 0.9*(grid.Vertical[1]-grid.Vertical[0]))
	}

	out := make([]Reflector, 0, grid.Len())
	for i := 0; i < grid.Len(); i++ {
		az, el := grid.Pair(i)
		out = append(out, Reflector{
			Azimuth:   az,
			Elevation: el,
			Range:     r.Distance(az, el),
			Gain:      r.Gain,
			Beamwidth: beam,
		})
	}
	return out
}
