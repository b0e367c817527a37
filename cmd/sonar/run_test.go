package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/echomap/internal/monitoring"
	"github.com/banshee-data/echomap/internal/sonardb"
	"github.com/banshee-data/echomap/internal/transducer"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

const smallScan = `{
  "sample_rate": 8000,
  "chirp_duration": 0.02,
  "start_freq": 500,
  "end_freq": 3000,
  "horizontal_directions": 4,
  "vertical_angles": 2,
  "peak_height_fraction": 0.5,
  "keep_recordings": true
}`

func writeFile(t *testing.T, path, body string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func simOptions(t *testing.T, dir string) cliOptions {
	t.Helper()
	return cliOptions{
		ConfigPath: writeFile(t, filepath.Join(dir, "scan.json"), smallScan),
		DBPath:     filepath.Join(dir, "sonar.db"),
		Source:     sourceSim,
		Channels:   1,
	}
}

func listSessions(t *testing.T, path string) []sonardb.SessionSummary {
	t.Helper()
	db, err := sonardb.Open(path)
	require.NoError(t, err)
	defer db.Close()
	sessions, err := db.ListSessions(context.Background(), 0)
	require.NoError(t, err)
	return sessions
}

func TestRun_SimulatorToAllSinks(t *testing.T) {
	dir := t.TempDir()
	o := simOptions(t, dir)
	o.Channels = 2
	o.HTMLPath = filepath.Join(dir, "out", "scan.html")
	o.PNGDir = filepath.Join(dir, "png")
	o.ASCPath = filepath.Join(dir, "scan.asc")

	require.NoError(t, run(context.Background(), o))

	for _, p := range []string{o.HTMLPath, o.ASCPath} {
		info, err := os.Stat(p)
		require.NoError(t, err, p)
		assert.NotZero(t, info.Size(), p)
	}
	pngs, err := filepath.Glob(filepath.Join(o.PNGDir, "*.png"))
	require.NoError(t, err)
	assert.Len(t, pngs, 2)

	sessions := listSessions(t, o.DBPath)
	require.Len(t, sessions, 1)
	assert.Equal(t, 8, sessions[0].SampleCount)
	assert.NotZero(t, sessions[0].PointCount)
	assert.True(t, sessions[0].Options.KeepRecordings)
}

func TestRun_ReplayStoredSession(t *testing.T) {
	dir := t.TempDir()
	o := simOptions(t, dir)
	require.NoError(t, run(context.Background(), o))
	first := listSessions(t, o.DBPath)
	require.Len(t, first, 1)

	replay := o
	replay.Source = sourceReplay
	replay.ReplayID = first[0].ID
	replay.ConfigPath = writeFile(t, filepath.Join(dir, "rerange.json"), `{"peak_height_fraction": 0.5, "max_range": 50}`)
	require.NoError(t, run(context.Background(), replay))

	sessions := listSessions(t, o.DBPath)
	require.Len(t, sessions, 2)
	var rerun sonardb.SessionSummary
	for _, s := range sessions {
		if s.ID != first[0].ID {
			rerun = s
		}
	}
	// Probe and grid come from the stored session, ranging from the new config.
	assert.Equal(t, first[0].Options.Chirp, rerun.Options.Chirp)
	assert.Equal(t, 50.0, rerun.Options.MaxRange)
	assert.Equal(t, first[0].PointCount, rerun.PointCount)
}

func TestRun_ReplayUnknownSession(t *testing.T) {
	dir := t.TempDir()
	o := simOptions(t, dir)
	o.Source = sourceReplay
	o.ReplayID = "nope"

	err := run(context.Background(), o)
	assert.ErrorIs(t, err, sonardb.ErrNotFound)
}

func TestRun_ListenServesAPI(t *testing.T) {
	dir := t.TempDir()
	o := simOptions(t, dir)
	o.Listen = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var status int
	o.ready = func(addr string) {
		defer cancel()
		resp, err := http.Get("http://" + addr + "/api/sessions")
		if err != nil {
			return
		}
		status = resp.StatusCode
		resp.Body.Close()
	}

	require.NoError(t, run(ctx, o))
	assert.Equal(t, http.StatusOK, status)
}

func TestRun_BadConfig(t *testing.T) {
	dir := t.TempDir()
	o := simOptions(t, dir)
	o.ConfigPath = writeFile(t, filepath.Join(dir, "bad.json"), `{"vertical_angles": -2}`)
	assert.Error(t, run(context.Background(), o))
}

func TestServe_AddressInUse(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	addrc := make(chan string, 1)
	go func() {
		errc <- serve(ctx, "127.0.0.1:0", http.NotFoundHandler(), func(addr string) { addrc <- addr })
	}()
	addr := <-addrc

	err := serve(context.Background(), addr, http.NotFoundHandler(), nil)
	assert.Error(t, err)

	cancel()
	assert.NoError(t, <-errc)
}

func TestCLIOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    cliOptions
		wantErr bool
	}{
		{"sim", cliOptions{Source: sourceSim, Channels: 1}, false},
		{"sim no channels", cliOptions{Source: sourceSim}, true},
		{"serial", cliOptions{Source: sourceSerial, Port: "/dev/ttyUSB0"}, false},
		{"serial no port", cliOptions{Source: sourceSerial}, true},
		{"replay", cliOptions{Source: sourceReplay, ReplayID: "x", DBPath: "a.db"}, false},
		{"replay no id", cliOptions{Source: sourceReplay, DBPath: "a.db"}, true},
		{"replay no db", cliOptions{Source: sourceReplay, ReplayID: "x"}, true},
		{"listen no db", cliOptions{Source: sourceSim, Channels: 1, Listen: ":0"}, true},
		{"unknown", cliOptions{Source: "sonar"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuildSinks(t *testing.T) {
	assert.Empty(t, buildSinks(cliOptions{}, nil))
	sinks := buildSinks(cliOptions{HTMLPath: "a.html", PNGDir: "p", ASCPath: "a.asc"}, nil)
	assert.Len(t, sinks, 3)
}

func TestFlagDefaults(t *testing.T) {
	o := flagOptions()
	assert.Equal(t, sourceSim, o.Source)
	assert.Equal(t, transducer.DefaultBaudRate, o.Baud)
	assert.Equal(t, 1, o.Channels)
	assert.Equal(t, "sonar.db", o.DBPath)
	assert.Empty(t, o.Listen)
	assert.NoError(t, o.validate())
}
