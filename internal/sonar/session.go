package sonar

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/echomap/internal/monitoring"
	"github.com/banshee-data/echomap/internal/timeutil"
)

// Options configures a Session. The zero value is not usable; start from
// DefaultOptions.
type Options struct {
	Chirp                ChirpParameters   `json:"chirp"`
	HorizontalDirections int               `json:"horizontal_directions"`
	VerticalAngles       int               `json:"vertical_angles"`
	SpeedOfSound         float64           `json:"speed_of_sound"`
	PeakHeightFraction   float64           `json:"peak_height_fraction"`
	Correlation          CorrelationMethod `json:"correlation"`
	MinRange             float64           `json:"min_range"`
	MaxRange             float64           `json:"max_range"`
	FaultPolicy          FaultPolicy       `json:"fault_policy"`
	Retry                RetryPolicy       `json:"retry"`
	SettleTime           time.Duration     `json:"settle_time"`
	KeepRecordings       bool              `json:"keep_recordings"`
}

// DefaultOptions returns the stock configuration: a 0.5 s 20 kHz tone at
// 44.1 kHz over a 36x9 grid.
func DefaultOptions() Options {
	return Options{
		Chirp:                DefaultChirpParameters(),
		HorizontalDirections: DefaultHorizontalDirections,
		VerticalAngles:       DefaultVerticalAngles,
		SpeedOfSound:         DefaultSpeedOfSound,
		PeakHeightFraction:   DefaultPeakHeightFraction,
	}
}

// SessionOption customises a Session at construction.
type SessionOption func(*Session)

// WithClock sets the clock used for timestamps and settle waits.
func WithClock(c timeutil.Clock) SessionOption {
	return func(s *Session) { s.clock = c }
}

// WithPositioner steers a pan/tilt mount before each probe.
func WithPositioner(p Positioner) SessionOption {
	return func(s *Session) { s.positioner = p }
}

// WithProgress registers a callback invoked after each completed sample.
func WithProgress(f func(ScanSample)) SessionOption {
	return func(s *Session) { s.progress = f }
}

// WithID overrides the generated session ID.
func WithID(id string) SessionOption {
	return func(s *Session) { s.id = id }
}

// Session owns one scan: the reference signal and angle grid, fixed at
// construction, and the samples and points gathered by Collect.
//
// A Session is not safe for concurrent use.
type Session struct {
	id         string
	opts       Options
	signal     Signal
	grid       AngleGrid
	ranger     *Ranger
	clock      timeutil.Clock
	positioner Positioner
	progress   func(ScanSample)

	samples    []ScanSample
	points     []Point3D
	faults     []*HardwareFaultError
	startedAt  time.Time
	finishedAt time.Time
}

// NewSession validates opts, generates the reference signal and builds the
// angle grid. Invalid parameters are reported here, not at scan time.
func NewSession(opts Options, sopts ...SessionOption) (*Session, error) {
	signal, err := GenerateChirp(opts.Chirp)
	if err != nil {
		return nil, err
	}
	grid, err := NewAngleGrid(opts.HorizontalDirections, opts.VerticalAngles)
	if err != nil {
		return nil, err
	}
	ranger := &Ranger{
		SpeedOfSound:       opts.SpeedOfSound,
		PeakHeightFraction: opts.PeakHeightFraction,
		Method:             opts.Correlation,
		MinRange:           opts.MinRange,
		MaxRange:           opts.MaxRange,
	}
	if err := ranger.Validate(); err != nil {
		return nil, err
	}
	if opts.Retry.Attempts < 0 || opts.Retry.Interval < 0 {
		return nil, invalidf("retry policy must be non-negative, got %+v", opts.Retry)
	}
	if opts.SettleTime < 0 {
		return nil, invalidf("settle time must be non-negative, got %s", opts.SettleTime)
	}

	s := &Session{
		id:     uuid.NewString(),
		opts:   opts,
		signal: signal,
		grid:   grid,
		ranger: ranger,
		clock:  timeutil.RealClock{},
	}
	for _, o := range sopts {
		o(s)
	}
	return s, nil
}

func (s *Session) ID() string { return s.id }
func (s *Session) Options() Options { return s.opts }
func (s *Session) Signal() Signal { return s.signal }
func (s *Session) Grid() AngleGrid { return s.grid }
func (s *Session) StartedAt() time.Time { return s.startedAt }
func (s *Session) FinishedAt() time.Time { return s.finishedAt }
func (s *Session) SampleRate() int { return s.opts.Chirp.SampleRate }

// Samples returns the collected samples in traversal order.
func (s *Session) Samples() []ScanSample {
	out := make([]ScanSample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Points returns the projected points, flattened in sample order.
func (s *Session) Points() []Point3D {
	out := make([]Point3D, len(s.points))
	copy(out, s.points)
	return out
}

// Faults returns the hardware faults seen so far, including skipped ones.
func (s *Session) Faults() []*HardwareFaultError {
	out := make([]*HardwareFaultError, len(s.faults))
	copy(out, s.faults)
	return out
}

// Recordings returns the raw recordings kept alongside each sample. It is
// empty unless KeepRecordings is set.
func (s *Session) Recordings() []Recording {
	if !s.opts.KeepRecordings {
		return nil
	}
	out := make([]Recording, 0, len(s.samples))
	for _, sample := range s.samples {
		out = append(out, sample.Recording)
	}
	return out
}

// Reset discards samples, points, recordings and faults together.
func (s *Session) Reset() {
	s.samples = nil
	s.points = nil
	s.faults = nil
	s.startedAt = time.Time{}
	s.finishedAt = time.Time{}
}

// scanner numbers samples from base, one past the last index held, so that
// repeated Collect calls continue the session's traversal order.
func (s *Session) scanner(base int) *Scanner {
	var progress func(ScanSample)
	if s.progress != nil {
		progress = func(sample ScanSample) {
			sample.Index += base
			s.progress(sample)
		}
	}
	return &Scanner{
		Ranger:         s.ranger,
		Positioner:     s.positioner,
		FaultPolicy:    s.opts.FaultPolicy,
		Retry:          s.opts.Retry,
		SettleTime:     s.opts.SettleTime,
		KeepRecordings: s.opts.KeepRecordings,
		Clock:          s.clock,
		OnSample:       progress,
		OnFault:        func(f *HardwareFaultError) { s.faults = append(s.faults, f) },
	}
}

// Collect scans the whole grid with t and appends the results. Samples
// completed before an error are kept.
func (s *Session) Collect(ctx context.Context, t Transducer) error {
	return s.collect(ctx, func(sc *Scanner) ([]ScanSample, error) {
		return sc.Scan(ctx, s.grid, t, s.signal, s.SampleRate())
	})
}

// CollectParallel is Collect over several independent transducers.
func (s *Session) CollectParallel(ctx context.Context, transducers []Transducer) error {
	return s.collect(ctx, func(sc *Scanner) ([]ScanSample, error) {
		return sc.ScanParallel(ctx, s.grid, transducers, s.signal, s.SampleRate())
	})
}

func (s *Session) collect(ctx context.Context, scan func(*Scanner) ([]ScanSample, error)) error {
	if s.startedAt.IsZero() {
		s.startedAt = s.clock.Now()
	}
	monitoring.Logf("session %s: scanning %d angle pairs", s.id, s.grid.Len())

	base := 0
	if n := len(s.samples); n > 0 {
		base = s.samples[n-1].Index + 1
	}
	samples, err := scan(s.scanner(base))
	for i := range samples {
		samples[i].Index += base
	}
	s.samples = append(s.samples, samples...)
	s.points = ProjectSamples(s.samples)
	s.finishedAt = s.clock.Now()

	if err != nil {
		monitoring.Logf("session %s: scan stopped after %d sample(s): %v", s.id, len(samples), err)
		return err
	}
	monitoring.Logf("session %s: collected %d sample(s), %d point(s), %d fault(s) in %s",
		s.id, len(samples), len(s.points), len(s.faults), s.finishedAt.Sub(s.startedAt))
	return nil
}

// Cloud packages the session for a sink. It fails with ErrNoData when no
// points have been collected.
func (s *Session) Cloud() (PointCloud, error) {
	if len(s.points) == 0 {
		return PointCloud{}, ErrNoData
	}
	return PointCloud{
		SessionID:  s.id,
		Options:    s.opts,
		StartedAt:  s.startedAt,
		FinishedAt: s.finishedAt,
		Samples:    s.Samples(),
		Points:     s.Points(),
	}, nil
}

// Render hands the collected points to sink.
func (s *Session) Render(ctx context.Context, sink PointCloudSink) error {
	cloud, err := s.Cloud()
	if err != nil {
		return err
	}
	if err := sink.Consume(ctx, cloud); err != nil {
		return fmt.Errorf("sink: %w", err)
	}
	return nil
}

// Run collects a full scan with t and hands the points to sink.
func (s *Session) Run(ctx context.Context, t Transducer, sink PointCloudSink) error {
	if err := s.Collect(ctx, t); err != nil {
		return err
	}
	return s.Render(ctx, sink)
}
