package sonar

import (
	"context"
	"time"
)

// Signal is an immutable probe waveform. The zero value is an empty signal.
type Signal struct {
	samples    []float64
	sampleRate int
}

// NewSignal copies samples into a Signal tagged with sampleRate.
func NewSignal(samples []float64, sampleRate int) Signal {
	cp := make([]float64, len(samples))
	copy(cp, samples)
	return Signal{samples: cp, sampleRate: sampleRate}
}

// Len returns the number of samples.
func (s Signal) Len() int { return len(s.samples) }

// SampleRate returns the rate the signal was generated at, in Hz.
func (s Signal) SampleRate() int { return s.sampleRate }

// At returns sample i.
func (s Signal) At(i int) float64 { return s.samples[i] }

// Samples returns a copy of the waveform.
func (s Signal) Samples() []float64 {
	cp := make([]float64, len(s.samples))
	copy(cp, s.samples)
	return cp
}

// Recording is one channel captured in response to a played Signal. Its
// length is chosen by the transducer.
type Recording []float64

// Point3D is a cartesian point in meters.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// ScanSample is the ranging result for one angle pair.
type ScanSample struct {
	Index     int       `json:"index"`     // traversal position; continues across a session's Collect calls
	Azimuth   float64   `json:"azimuth"`   // horizontal angle, radians
	Elevation float64   `json:"elevation"` // vertical angle, radians
	Ranges    []float64 `json:"ranges"`    // meters, ascending lag order
	Recording Recording `json:"-"`         // only kept when Options.KeepRecordings is set
}

// Transducer plays a probe and captures the response from a co-located
// receiver at the probe's sample rate. A call is atomic from the scanner's
// point of view.
type Transducer interface {
	PlayAndRecord(ctx context.Context, sig Signal) (Recording, error)
}

// TransducerFunc adapts a function to the Transducer interface.
type TransducerFunc func(ctx context.Context, sig Signal) (Recording, error)

// PlayAndRecord calls f.
func (f TransducerFunc) PlayAndRecord(ctx context.Context, sig Signal) (Recording, error) {
	return f(ctx, sig)
}

// Positioner steers the probe head before each probe. Scans without a
// positioner only label samples with their angles.
type Positioner interface {
	PointAt(ctx context.Context, azimuth, elevation float64) error
}

// PointCloud is what a session hands to its sink. Points is flattened from
// Samples: for each sample in order, one point per range in order.
type PointCloud struct {
	SessionID  string
	Options    Options // settings the scan ran with
	StartedAt  time.Time
	FinishedAt time.Time
	Samples    []ScanSample
	Points     []Point3D
}

// AnnotatedPoint pairs a point with the range and angles it came from.
type AnnotatedPoint struct {
	Point3D
	Range     float64
	Azimuth   float64
	Elevation float64
}

// Annotated walks Samples alongside Points.
func (c PointCloud) Annotated() []AnnotatedPoint {
	out := make([]AnnotatedPoint, 0, len(c.Points))
	i := 0
	for _, s := range c.Samples {
		for _, r := range s.Ranges {
			if i >= len(c.Points) {
				return out
			}
			out = append(out, AnnotatedPoint{Point3D: c.Points[i], Range: r, Azimuth: s.Azimuth, Elevation: s.Elevation})
			i++
		}
	}
	return out
}

// PointCloudSink accepts a finished point cloud for rendering or storage.
type PointCloudSink interface {
	Consume(ctx context.Context, cloud PointCloud) error
}

// SinkFunc adapts a function to the PointCloudSink interface.
type SinkFunc func(ctx context.Context, cloud PointCloud) error

// Consume calls f.
func (f SinkFunc) Consume(ctx context.Context, cloud PointCloud) error {
	return f(ctx, cloud)
}
