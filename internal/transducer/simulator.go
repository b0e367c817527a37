package transducer

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/banshee-data/echomap/internal/sonar"
)

// DefaultBeamwidth is the full cone angle of a simulated probe, one step of
// the default 36-direction sweep.
const DefaultBeamwidth = 2 * math.Pi / 36

// Reflector is a point target seen by the simulator.
type Reflector struct {
	Azimuth   float64 `json:"azimuth"`   // radians
	Elevation float64 `json:"elevation"` // radians
	Range     float64 `json:"range"`     // meters
	Gain      float64 `json:"gain"`      // echo amplitude relative to the probe; 0 means 1
	Beamwidth float64 `json:"beamwidth"` // full cone angle the echo is heard in; 0 means DefaultBeamwidth
}

// Simulator synthesises recordings for a set of reflectors. It implements
// sonar.Positioner: the look direction set by PointAt decides which
// reflectors answer the next probe.
type Simulator struct {
	SampleRate     int     // used when the probe carries no rate
	SpeedOfSound   float64 // 0 means sonar.DefaultSpeedOfSound
	Reflectors     []Reflector
	NoiseAmplitude float64 // standard deviation of additive gaussian noise
	Seed           int64
	Tail           int // silent samples after the farthest echo

	mu        sync.Mutex
	azimuth   float64
	elevation float64
	rng       *rand.Rand
}

// PointAt sets the look direction.
func (s *Simulator) PointAt(_ context.Context, azimuth, elevation float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.azimuth, s.elevation = azimuth, elevation
	return nil
}

// PlayAndRecord returns the probe delayed by the round trip to every
// reflector inside the beam, scaled by its gain, plus noise. All recordings
// of a simulator have the same length.
func (s *Simulator) PlayAndRecord(ctx context.Context, sig sonar.Signal) (sonar.Recording, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rate := sig.SampleRate()
	if rate <= 0 {
		rate = s.SampleRate
	}
	if rate <= 0 {
		rate = sonar.DefaultSampleRate
	}
	speed := s.SpeedOfSound
	if speed <= 0 {
		speed = sonar.DefaultSpeedOfSound
	}

	maxDelay := 0
	for _, r := range s.Reflectors {
		maxDelay = max(maxDelay, roundTrip(r.Range, rate, speed))
	}
	rec := make(sonar.Recording, maxDelay+sig.Len()+max(s.Tail, 0))

	for _, r := range s.Reflectors {
		if !s.inBeam(r) {
			continue
		}
		gain := r.Gain
		if gain == 0 {
			gain = 1
		}
		delay := roundTrip(r.Range, rate, speed)
		for i := 0; i < sig.Len(); i++ {
			rec[delay+i] += gain * sig.At(i)
		}
	}

	if s.NoiseAmplitude > 0 {
		if s.rng == nil {
			s.rng = rand.New(rand.NewSource(s.Seed))
		}
		for i := range rec {
			rec[i] += s.NoiseAmplitude * s.rng.NormFloat64()
		}
	}
	return rec, nil
}

func (s *Simulator) inBeam(r Reflector) bool {
	width := r.Beamwidth
	if width <= 0 {
		width = DefaultBeamwidth
	}
	return angleBetween(s.azimuth, s.elevation, r.Azimuth, r.Elevation) <= width/2
}

// roundTrip is the echo delay in samples for a target at distance d.
func roundTrip(d float64, rate int, speed float64) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(2 * d / speed * float64(rate)))
}

// angleBetween is the great-circle angle between two look directions.
func angleBetween(az1, el1, az2, el2 float64) float64 {
	x1, y1, z1 := sonar.SphericalToCartesian(1, az1, el1)
	x2, y2, z2 := sonar.SphericalToCartesian(1, az2, el2)
	dot := x1*x2 + y1*y2 + z1*z2
	return math.Acos(math.Max(-1, math.Min(1, dot)))
}
