// Package sonar implements the acoustic ranging pipeline: chirp synthesis,
// matched-filter ranging, the angular scan loop, spherical projection and the
// scan session that ties them together.
//
// Hardware and presentation are kept behind small interfaces. A [Transducer]
// plays a probe and returns one channel of captured samples; a
// [PointCloudSink] receives the finished point cloud. Implementations live in
// the transducer, sonardb and visualiser packages.
//
// The data flow for one session is:
//
//	ChirpParameters -> Signal (once, at construction)
//	for each (v, h) in AngleGrid:   Transducer.PlayAndRecord -> Ranger.EstimateRanges
//	ScanSample list -> Project -> []Point3D -> PointCloudSink
package sonar
