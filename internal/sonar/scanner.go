package sonar

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/echomap/internal/monitoring"
	"github.com/banshee-data/echomap/internal/timeutil"
)

// FaultPolicy decides what a scan does when a probe fails.
type FaultPolicy int

const (
	// FaultAbort stops the scan at the first hardware fault.
	FaultAbort FaultPolicy = iota
	// FaultSkip records the fault, leaves the angle pair out and continues.
	FaultSkip
)

func (p FaultPolicy) String() string {
	if p == FaultSkip {
		return "skip"
	}
	return "abort"
}

// ParseFaultPolicy accepts "abort" or "skip". Empty means abort.
func ParseFaultPolicy(s string) (FaultPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "abort":
		return FaultAbort, nil
	case "skip":
		return FaultSkip, nil
	default:
		return FaultAbort, invalidf("unknown fault policy %q", s)
	}
}

// MarshalText encodes the policy by name.
func (p FaultPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a policy name.
func (p *FaultPolicy) UnmarshalText(b []byte) error {
	v, err := ParseFaultPolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// RetryPolicy retries a failed probe with exponential backoff before the
// fault policy applies. Zero attempts disables retrying.
type RetryPolicy struct {
	Attempts int           `json:"attempts"`
	Interval time.Duration `json:"interval"` // first backoff interval
}

// Scanner drives the angular sweep. Probes run strictly one after another on
// a transducer: a single acoustic channel cannot carry overlapping chirps.
type Scanner struct {
	Ranger         *Ranger
	Positioner     Positioner // optional; falls back to the transducer if it implements Positioner
	FaultPolicy    FaultPolicy
	Retry          RetryPolicy
	SettleTime     time.Duration // wait before each probe
	KeepRecordings bool
	Clock          timeutil.Clock

	// OnSample is called after each completed sample.
	OnSample func(ScanSample)
	// OnFault is called for every fault, including ones skipped under FaultSkip.
	OnFault func(*HardwareFaultError)

	mu    sync.Mutex // serialises callbacks from parallel workers
	aimMu sync.Mutex // held from PointAt to end of recording on a shared Positioner
}

// NewScanner returns an abort-on-fault scanner using r.
func NewScanner(r *Ranger) *Scanner {
	return &Scanner{Ranger: r, Clock: timeutil.RealClock{}}
}

// Scan visits every angle pair of grid in traversal order (vertical outer,
// horizontal inner), probing with t and ranging against reference.
//
// On an aborting fault or cancellation the samples completed so far are
// returned together with the error.
func (s *Scanner) Scan(ctx context.Context, grid AngleGrid, t Transducer, reference Signal, sampleRate int) ([]ScanSample, error) {
	if err := s.check(grid, reference); err != nil {
		return nil, err
	}

	samples := make([]ScanSample, 0, grid.Len())
	for i := 0; i < grid.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return samples, err
		}
		sample, err := s.probe(ctx, i, grid, t, reference, sampleRate)
		if err != nil {
			var fault *HardwareFaultError
			if errors.As(err, &fault) {
				s.fault(fault)
				if s.FaultPolicy == FaultSkip {
					continue
				}
			}
			return samples, err
		}
		samples = append(samples, sample)
		s.completed(sample)
	}
	return samples, nil
}

// ScanParallel spreads the angle pairs over several independent
// transducers, one worker each, and restores traversal order before
// returning. Under FaultAbort the first fault cancels the other workers.
func (s *Scanner) ScanParallel(ctx context.Context, grid AngleGrid, transducers []Transducer, reference Signal, sampleRate int) ([]ScanSample, error) {
	if len(transducers) == 0 {
		return nil, invalidf("no transducers")
	}
	if len(transducers) == 1 {
		return s.Scan(ctx, grid, transducers[0], reference, sampleRate)
	}
	if err := s.check(grid, reference); err != nil {
		return nil, err
	}

	n := grid.Len()
	results := make([]*ScanSample, n)
	next := make(chan int)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(next)
		for i := 0; i < n; i++ {
			select {
			case next <- i:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})
	for _, t := range transducers {
		g.Go(func() error {
			for i := range next {
				sample, err := s.probe(gctx, i, grid, t, reference, sampleRate)
				if err != nil {
					var fault *HardwareFaultError
					if errors.As(err, &fault) {
						s.fault(fault)
						if s.FaultPolicy == FaultSkip {
							continue
						}
					}
					return err
				}
				results[i] = &sample
				s.completed(sample)
			}
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	samples := make([]ScanSample, 0, n)
	for _, r := range results {
		if r != nil {
			samples = append(samples, *r)
		}
	}
	return samples, err
}

func (s *Scanner) check(grid AngleGrid, reference Signal) error {
	if s.Ranger == nil {
		return invalidf("scanner has no ranger")
	}
	if err := grid.Validate(); err != nil {
		return err
	}
	if reference.Len() == 0 {
		return ErrEmptyInput
	}
	return nil
}

// probe runs one angle pair: point, settle, play/record, range.
func (s *Scanner) probe(ctx context.Context, i int, grid AngleGrid, t Transducer, reference Signal, sampleRate int) (ScanSample, error) {
	h, v := grid.Pair(i)
	faultAt := func(err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &HardwareFaultError{Index: i, Azimuth: h, Elevation: v, Err: err}
	}

	rec, err := s.aimAndRecord(ctx, h, v, t, reference)
	if err != nil {
		return ScanSample{}, faultAt(err)
	}

	ranges, err := s.Ranger.EstimateRanges(rec, reference, sampleRate)
	if err != nil {
		return ScanSample{}, err
	}

	sample := ScanSample{Index: i, Azimuth: h, Elevation: v, Ranges: ranges}
	if s.KeepRecordings {
		sample.Recording = rec
	}
	monitoring.Logf("Collected data for h_angle=%.4f, v_angle=%.4f: %d range(s)", h, v, len(ranges))
	return sample, nil
}

// aimAndRecord points the mount at (h, v), settles and records. A
// Scanner-wide Positioner is shared by every ScanParallel worker, so the
// mount stays locked until the recording for this pair is captured.
func (s *Scanner) aimAndRecord(ctx context.Context, h, v float64, t Transducer, reference Signal) (Recording, error) {
	pos := s.Positioner
	if pos != nil {
		s.aimMu.Lock()
		defer s.aimMu.Unlock()
	} else {
		pos, _ = t.(Positioner)
	}
	if pos != nil {
		if err := pos.PointAt(ctx, h, v); err != nil {
			return nil, err
		}
	}

	if s.SettleTime > 0 {
		if err := s.clock().Wait(ctx, s.SettleTime); err != nil {
			return nil, err
		}
	}

	return s.playAndRecord(ctx, t, reference)
}

func (s *Scanner) playAndRecord(ctx context.Context, t Transducer, reference Signal) (Recording, error) {
	if s.Retry.Attempts <= 0 {
		return t.PlayAndRecord(ctx, reference)
	}

	b := backoff.NewExponentialBackOff()
	if s.Retry.Interval > 0 {
		b.InitialInterval = s.Retry.Interval
	}
	b.MaxElapsedTime = 0

	var rec Recording
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		r, err := t.PlayAndRecord(ctx, reference)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			if attempt <= s.Retry.Attempts {
				monitoring.Logf("probe attempt %d failed, retrying: %v", attempt, err)
			}
			return err
		}
		rec = r
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.Retry.Attempts)), ctx))
	return rec, err
}

func (s *Scanner) clock() timeutil.Clock {
	if s.Clock == nil {
		return timeutil.RealClock{}
	}
	return s.Clock
}

func (s *Scanner) fault(f *HardwareFaultError) {
	monitoring.Logf("%v (policy=%s)", f, s.FaultPolicy)
	if s.OnFault == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OnFault(f)
}

func (s *Scanner) completed(sample ScanSample) {
	if s.OnSample == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OnSample(sample)
}
