package sonar

import "math"

// SphericalToCartesian converts a range and look angles in radians to
// cartesian coordinates. Azimuth is measured in the horizontal plane from
// +X towards +Y; elevation is measured up from that plane.
func SphericalToCartesian(r, azimuth, elevation float64) (x, y, z float64) {
	cosElevation := math.Cos(elevation)
	x = r * cosElevation * math.Cos(azimuth)
	y = r * cosElevation * math.Sin(azimuth)
	z = r * math.Sin(elevation)
	return
}

// Project maps each range seen at (azimuth, elevation) to a point, keeping
// the order of ranges.
func Project(ranges []float64, azimuth, elevation float64) []Point3D {
	out := make([]Point3D, len(ranges))
	for i, r := range ranges {
		out[i].X, out[i].Y, out[i].Z = SphericalToCartesian(r, azimuth, elevation)
	}
	return out
}

// ProjectSamples flattens the points of every sample in order.
func ProjectSamples(samples []ScanSample) []Point3D {
	n := 0
	for _, s := range samples {
		n += len(s.Ranges)
	}
	out := make([]Point3D, 0, n)
	for _, s := range samples {
		out = append(out, Project(s.Ranges, s.Azimuth, s.Elevation)...)
	}
	return out
}

// Norm is the distance of p from the origin.
func (p Point3D) Norm() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}
