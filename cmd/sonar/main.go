// Command sonar runs one acoustic scan, stores it and renders the point
// cloud, then optionally serves the session API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/echomap/internal/monitoring"
	"github.com/banshee-data/echomap/internal/transducer"
	"github.com/banshee-data/echomap/internal/version"
)

var (
	configPath  = flag.String("config", "", "Scanner config file (.json, .yaml, .yml or .toml); SONAR_* variables override it")
	dbPath      = flag.String("db", "sonar.db", "SQLite database for sessions (empty disables storage)")
	source      = flag.String("transducer", "sim", "Transducer to scan with: sim, serial or replay")
	port        = flag.String("port", "/dev/ttyUSB0", "Serial port of the probe head (with -transducer serial)")
	baud        = flag.Int("baud", transducer.DefaultBaudRate, "Serial baud rate")
	steerable   = flag.Bool("steerable", false, "The probe head has a pan/tilt mount that accepts AIM commands")
	replayID    = flag.String("replay", "", "Stored session whose recordings are re-ranged (with -transducer replay)")
	channels    = flag.Int("channels", 1, "Simulated transducers scanning in parallel (with -transducer sim)")
	simNoise    = flag.Float64("sim-noise", 0.01, "Noise amplitude of the simulator")
	htmlOut     = flag.String("html", "", "Write the 3D chart to this HTML file")
	pngDir      = flag.String("png-dir", "", "Write top and side PNG projections into this directory")
	ascOut      = flag.String("asc", "", "Export the points to this CloudCompare ASC file")
	listen      = flag.String("listen", "", "Serve the session API on this address after scanning, e.g. :8080")
	logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn or error")
	logJSON     = flag.Bool("log-json", false, "Log as JSON")
	showVersion = flag.Bool("version", false, "Print the version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	logger, err := monitoring.NewLogger(*logLevel, *logJSON)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	monitoring.UseZap(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flagOptions()); err != nil {
		monitoring.Logf("sonar: %v", err)
		stop()
		_ = logger.Sync()
		os.Exit(1)
	}
}

// flagOptions collects the parsed command-line flags.
func flagOptions() cliOptions {
	return cliOptions{
		ConfigPath: *configPath,
		DBPath:     *dbPath,
		Source:     *source,
		Port:       *port,
		Baud:       *baud,
		Steerable:  *steerable,
		ReplayID:   *replayID,
		Channels:   *channels,
		SimNoise:   *simNoise,
		HTMLPath:   *htmlOut,
		PNGDir:     *pngDir,
		ASCPath:    *ascOut,
		Listen:     *listen,
	}
}
