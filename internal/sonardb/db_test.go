package sonardb

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/echomap/internal/monitoring"
	"github.com/banshee-data/echomap/internal/sonar"
)

func init() {
	monitoring.SetLogger(nil)
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "sonar.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testCloud(id string, started time.Time) sonar.PointCloud {
	samples := []sonar.ScanSample{
		{Index: 0, Azimuth: 0, Elevation: -math.Pi / 4, Ranges: []float64{1.5, 3.43}, Recording: sonar.Recording{0, 0.25, -1}},
		{Index: 1, Azimuth: math.Pi, Elevation: -math.Pi / 4, Ranges: []float64{}, Recording: sonar.Recording{0.5}},
		{Index: 3, Azimuth: math.Pi, Elevation: math.Pi / 4, Ranges: []float64{2}, Recording: sonar.Recording{2, 2}},
	}
	opts := sonar.DefaultOptions()
	opts.HorizontalDirections = 2
	opts.VerticalAngles = 2
	opts.FaultPolicy = sonar.FaultSkip
	opts.KeepRecordings = true
	return sonar.PointCloud{
		SessionID:  id,
		Options:    opts,
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
		Samples:    samples,
		Points:     sonar.ProjectSamples(samples),
	}
}

func TestOpen_MigratesToLatest(t *testing.T) {
	db := openTestDB(t)
	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// Reopening an up-to-date database is a no-op.
	require.NoError(t, db.MigrateUp())
}

func TestOpen_Pragmas(t *testing.T) {
	db := openTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout, foreignKeys int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.MigrateDown())
	version, _, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	var n int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'recordings'`).Scan(&n)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSaveAndLoadCloud(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	started := time.Date(2026, 5, 4, 3, 2, 1, 123456789, time.UTC)
	want := testCloud("scan-a", started)

	require.NoError(t, db.Consume(ctx, want))

	got, err := db.LoadCloud(ctx, "scan-a")
	require.NoError(t, err)
	assert.Equal(t, want.SessionID, got.SessionID)
	assert.True(t, want.StartedAt.Equal(got.StartedAt))
	assert.True(t, want.FinishedAt.Equal(got.FinishedAt))
	assert.Equal(t, want.Options, got.Options)
	if diff := cmp.Diff(want.Points, got.Points); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, got.Samples, 3)
	for i, s := range got.Samples {
		assert.Equal(t, want.Samples[i].Index, s.Index)
		assert.Equal(t, want.Samples[i].Azimuth, s.Azimuth)
		assert.Equal(t, want.Samples[i].Elevation, s.Elevation)
		assert.Equal(t, want.Samples[i].Ranges, s.Ranges)
		assert.Nil(t, s.Recording)
	}

	recs, err := db.LoadRecordings(ctx, "scan-a")
	require.NoError(t, err)
	assert.Equal(t, []sonar.Recording{{0, 0.25, -1}, {0.5}, {2, 2}}, recs)
}

func TestSaveCloud_Replaces(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	cloud := testCloud("scan-a", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, db.SaveCloud(ctx, cloud))

	cloud.Samples = cloud.Samples[:1]
	cloud.Points = sonar.ProjectSamples(cloud.Samples)
	require.NoError(t, db.SaveCloud(ctx, cloud))

	summary, err := db.GetSession(ctx, "scan-a")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SampleCount)
	assert.Equal(t, 2, summary.PointCount)

	recs, err := db.LoadRecordings(ctx, "scan-a")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestConsume_RejectsEmpty(t *testing.T) {
	db := openTestDB(t)
	err := db.Consume(context.Background(), sonar.PointCloud{SessionID: "empty"})
	assert.ErrorIs(t, err, sonar.ErrNoData)

	_, err = db.GetSession(context.Background(), "empty")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, db.SaveCloud(context.Background(), sonar.PointCloud{}))
}

func TestListSessions(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, db.SaveCloud(ctx, testCloud("first", base)))
	require.NoError(t, db.SaveCloud(ctx, testCloud("third", base.Add(2*time.Hour))))
	require.NoError(t, db.SaveCloud(ctx, testCloud("second", base.Add(500*time.Millisecond))))

	sessions, err := db.ListSessions(ctx, 0)
	require.NoError(t, err)
	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
	}
	assert.Equal(t, []string{"third", "second", "first"}, ids)
	assert.Equal(t, 3, sessions[0].SampleCount)
	assert.Equal(t, 3, sessions[0].PointCount)
	assert.Equal(t, sonar.DefaultSampleRate, sessions[0].SampleRate)

	sessions, err = db.ListSessions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "third", sessions[0].ID)
}

func TestListSessions_Empty(t *testing.T) {
	db := openTestDB(t)
	sessions, err := db.ListSessions(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, sessions)
	assert.Empty(t, sessions)
}

func TestDeleteSession_Cascades(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveCloud(ctx, testCloud("gone", time.Now())))
	require.NoError(t, db.DeleteSession(ctx, "gone"))

	for _, table := range []string{"scan_samples", "points", "recordings"} {
		var n int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
		assert.Zero(t, n, table)
	}
	assert.True(t, errors.Is(db.DeleteSession(ctx, "gone"), ErrNotFound))
	_, err := db.LoadCloud(ctx, "gone")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.LoadRecordings(ctx, "gone")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	opts := sonar.DefaultOptions()
	opts.Chirp = sonar.ChirpParameters{SampleRate: 1000, Duration: 0.01, StartFreq: 100, EndFreq: 100}
	opts.HorizontalDirections = 3
	opts.VerticalAngles = 1
	s, err := sonar.NewSession(opts)
	require.NoError(t, err)

	echo := sonar.TransducerFunc(func(_ context.Context, sig sonar.Signal) (sonar.Recording, error) {
		rec := make(sonar.Recording, 50)
		copy(rec[20:], sig.Samples())
		return rec, nil
	})
	require.NoError(t, s.Run(ctx, echo, db))

	cloud, err := db.LoadCloud(ctx, s.ID())
	require.NoError(t, err)
	assert.Len(t, cloud.Points, 3)
	for _, p := range cloud.Points {
		assert.InDelta(t, 3.43, p.Norm(), 1e-9)
	}
	recs, err := db.LoadRecordings(ctx, s.ID())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSessionRoundTrip_RepeatedCollect(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	opts := sonar.DefaultOptions()
	opts.Chirp = sonar.ChirpParameters{SampleRate: 1000, Duration: 0.01, StartFreq: 100, EndFreq: 100}
	opts.HorizontalDirections = 2
	opts.VerticalAngles = 1
	s, err := sonar.NewSession(opts)
	require.NoError(t, err)

	echo := sonar.TransducerFunc(func(_ context.Context, sig sonar.Signal) (sonar.Recording, error) {
		rec := make(sonar.Recording, 50)
		copy(rec[20:], sig.Samples())
		return rec, nil
	})
	require.NoError(t, s.Collect(ctx, echo))
	require.NoError(t, s.Collect(ctx, echo))
	require.NoError(t, s.Render(ctx, db))

	summary, err := db.GetSession(ctx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, 4, summary.SampleCount)
	assert.Equal(t, 4, summary.PointCount)

	cloud, err := db.LoadCloud(ctx, s.ID())
	require.NoError(t, err)
	require.Len(t, cloud.Samples, 4)
	for i, sample := range cloud.Samples {
		assert.Equal(t, i, sample.Index)
		assert.Len(t, sample.Ranges, 1)
	}
}

func TestRecordingCodec(t *testing.T) {
	rec := sonar.Recording{0, -1.5, math.SmallestNonzeroFloat64, math.MaxFloat64}
	got, err := decodeRecording(encodeRecording(rec))
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = decodeRecording([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestAttachAdminRoutes(t *testing.T) {
	db := openTestDB(t)
	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/debug/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "tailsql")

	resp, err = http.Get(ts.URL + "/debug/backup")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/gzip", resp.Header.Get("Content-Type"))
}
