package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/banshee-data/echomap/internal/api"
	"github.com/banshee-data/echomap/internal/config"
	"github.com/banshee-data/echomap/internal/monitoring"
	"github.com/banshee-data/echomap/internal/sonar"
	"github.com/banshee-data/echomap/internal/sonardb"
	"github.com/banshee-data/echomap/internal/transducer"
	"github.com/banshee-data/echomap/internal/visualiser"
)

// Transducer sources.
const (
	sourceSim    = "sim"
	sourceSerial = "serial"
	sourceReplay = "replay"
)

type cliOptions struct {
	ConfigPath string
	DBPath     string
	Source     string
	Port       string
	Baud       int
	Steerable  bool
	ReplayID   string
	Channels   int
	SimNoise   float64
	HTMLPath   string
	PNGDir     string
	ASCPath    string
	Listen     string

	// ready, if set, receives the API address once it is listening.
	ready func(addr string)
}

func (o cliOptions) validate() error {
	switch o.Source {
	case sourceSim:
		if o.Channels < 1 {
			return fmt.Errorf("-channels must be at least 1, got %d", o.Channels)
		}
	case sourceSerial:
		if o.Port == "" {
			return errors.New("-port is required with -transducer serial")
		}
	case sourceReplay:
		if o.ReplayID == "" {
			return errors.New("-replay is required with -transducer replay")
		}
		if o.DBPath == "" {
			return errors.New("-db is required with -transducer replay")
		}
	default:
		return fmt.Errorf("unknown transducer %q (want sim, serial or replay)", o.Source)
	}
	if o.Listen != "" && o.DBPath == "" {
		return errors.New("-listen needs -db")
	}
	return nil
}

// loadOptions reads the scan settings from the config file, or from the
// environment alone when no file is given.
func loadOptions(path string) (sonar.Options, error) {
	var (
		cfg *config.SonarConfig
		err error
	)
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return sonar.Options{}, err
	}
	return cfg.SessionOptions(), nil
}

// run performs one scan and hands the result to every configured sink. With
// Listen set it then serves the API until ctx is done.
func run(ctx context.Context, o cliOptions) error {
	if err := o.validate(); err != nil {
		return err
	}
	opts, err := loadOptions(o.ConfigPath)
	if err != nil {
		return err
	}

	var db *sonardb.DB
	if o.DBPath != "" {
		if db, err = sonardb.Open(o.DBPath); err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
	}

	if o.Source == sourceReplay {
		if opts, err = replayOptions(ctx, db, o.ReplayID, opts); err != nil {
			return err
		}
	}

	session, err := sonar.NewSession(opts, sonar.WithProgress(func(s sonar.ScanSample) {
		monitoring.Logf("pair %d: %d echo(es)", s.Index, len(s.Ranges))
	}))
	if err != nil {
		return err
	}

	transducers, closer, err := openTransducers(ctx, o, db, session)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closer.Close(); cerr != nil {
			monitoring.Logf("close transducer: %v", cerr)
		}
	}()

	if len(transducers) > 1 {
		err = session.CollectParallel(ctx, transducers)
	} else {
		err = session.Collect(ctx, transducers[0])
	}
	if err != nil {
		return fmt.Errorf("scan %s: %w", session.ID(), err)
	}
	for _, f := range session.Faults() {
		monitoring.Logf("skipped: %v", f)
	}

	if err := session.Render(ctx, buildSinks(o, db)); err != nil {
		return err
	}
	monitoring.Logf("Session %s: %d points from %d directions", session.ID(), len(session.Points()), len(session.Samples()))

	if o.Listen == "" {
		return nil
	}
	handler, err := api.NewServer(db).Handler()
	if err != nil {
		return err
	}
	return serve(ctx, o.Listen, handler, o.ready)
}

// replayOptions reuses the stored session's probe and grid, which the
// recordings were captured with, and keeps the ranging settings of opts.
func replayOptions(ctx context.Context, db *sonardb.DB, id string, opts sonar.Options) (sonar.Options, error) {
	stored, err := db.GetSession(ctx, id)
	if err != nil {
		return opts, fmt.Errorf("replay %s: %w", id, err)
	}
	opts.Chirp = stored.Options.Chirp
	opts.HorizontalDirections = stored.Options.HorizontalDirections
	opts.VerticalAngles = stored.Options.VerticalAngles
	if want := opts.HorizontalDirections * opts.VerticalAngles; stored.SampleCount != want {
		return opts, fmt.Errorf("replay %s: session has %d of %d angle pairs", id, stored.SampleCount, want)
	}
	return opts, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openTransducers builds the transducers for o.Source. Only serial heads
// hold resources, released by the returned closer.
func openTransducers(ctx context.Context, o cliOptions, db *sonardb.DB, session *sonar.Session) ([]sonar.Transducer, io.Closer, error) {
	opts := session.Options()
	switch o.Source {
	case sourceSerial:
		head, err := transducer.OpenSerial(ctx, transducer.SerialConfig{
			Path:         o.Port,
			Options:      transducer.PortOptions{BaudRate: o.Baud},
			ReadTimeout:  2 * time.Second,
			OpenAttempts: 3,
			OpenInterval: 500 * time.Millisecond,
			Steerable:    o.Steerable,
		})
		if err != nil {
			return nil, nil, err
		}
		return []sonar.Transducer{head}, head, nil

	case sourceReplay:
		recs, err := db.LoadRecordings(ctx, o.ReplayID)
		if err != nil {
			return nil, nil, fmt.Errorf("replay %s: %w", o.ReplayID, err)
		}
		if len(recs) == 0 {
			return nil, nil, fmt.Errorf("replay %s: no recordings stored, scan with keep_recordings", o.ReplayID)
		}
		return []sonar.Transducer{transducer.NewReplay(recs)}, nopCloser{}, nil

	default:
		reflectors := transducer.DefaultRoom().Reflectors(session.Grid())
		out := make([]sonar.Transducer, o.Channels)
		for i := range out {
			out[i] = &transducer.Simulator{
				SampleRate:     opts.Chirp.SampleRate,
				SpeedOfSound:   opts.SpeedOfSound,
				Reflectors:     reflectors,
				NoiseAmplitude: o.SimNoise,
				Seed:           int64(i + 1),
				Tail:           opts.Chirp.NumSamples(),
			}
		}
		return out, nopCloser{}, nil
	}
}

// buildSinks fans out to the database and every requested export.
func buildSinks(o cliOptions, db *sonardb.DB) visualiser.MultiSink {
	var sinks visualiser.MultiSink
	if db != nil {
		sinks = append(sinks, db)
	}
	if o.HTMLPath != "" {
		sinks = append(sinks, &visualiser.HTMLSink{Path: o.HTMLPath})
	}
	if o.PNGDir != "" {
		sinks = append(sinks, &visualiser.PlotSink{Dir: o.PNGDir})
	}
	if o.ASCPath != "" {
		sinks = append(sinks, &visualiser.ASCSink{Path: o.ASCPath})
	}
	return sinks
}

// serve runs handler on addr until ctx is done, then shuts down.
func serve(ctx context.Context, addr string, handler http.Handler, ready func(string)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	server := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	monitoring.Logf("Serving API on http://%s", ln.Addr())
	if ready != nil {
		ready(ln.Addr().String())
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	monitoring.Logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}
	return <-errc
}
