// Package sonardb stores scan sessions in SQLite: session metadata, the
// per-angle samples, the projected points and, when kept, the raw
// recordings.
package sonardb

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/echomap/internal/monitoring"
	"github.com/banshee-data/echomap/internal/sonar"
)

// ErrNotFound is returned for an unknown session ID.
var ErrNotFound = errors.New("sonardb: session not found")

// pragmas are applied to every pooled connection.
const pragmas = "_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)" +
	"&_pragma=synchronous(NORMAL)&_pragma=temp_store(MEMORY)"

type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema.
func Open(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenDB opens the database without touching the schema.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", fmt.Sprintf("file:%s?%s", path, pragmas))
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &DB{DB: sqlDB, path: path}, nil
}

// Path is the file the database was opened from.
func (db *DB) Path() string { return db.path }

// SessionSummary describes one stored session.
type SessionSummary struct {
	ID          string        `json:"id"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	SampleRate  int           `json:"sample_rate"`
	SampleCount int           `json:"sample_count"`
	PointCount  int           `json:"point_count"`
	Options     sonar.Options `json:"options"`
}

// Consume stores cloud, replacing any earlier copy of the same session. It
// lets the database act as a sonar.PointCloudSink.
func (db *DB) Consume(ctx context.Context, cloud sonar.PointCloud) error {
	if len(cloud.Points) == 0 {
		return sonar.ErrNoData
	}
	return db.SaveCloud(ctx, cloud)
}

// SaveCloud stores cloud in a single transaction. Recordings carried by the
// samples are stored too.
func (db *DB) SaveCloud(ctx context.Context, cloud sonar.PointCloud) error {
	if cloud.SessionID == "" {
		return errors.New("sonardb: session ID is required")
	}
	optsJSON, err := json.Marshal(cloud.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, cloud.SessionID); err != nil {
		return fmt.Errorf("replace session: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (session_id, started_at, finished_at, sample_rate, options_json, sample_count, point_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cloud.SessionID, formatTime(cloud.StartedAt), formatTime(cloud.FinishedAt),
		cloud.Options.Chirp.SampleRate, string(optsJSON), len(cloud.Samples), len(cloud.Points),
	); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	sampleStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO scan_samples (session_id, sample_index, azimuth, elevation, range_count) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer sampleStmt.Close()
	pointStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO points (session_id, point_index, sample_index, range_m, x, y, z) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer pointStmt.Close()
	recStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO recordings (session_id, sample_index, sample_count, samples) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer recStmt.Close()

	for _, s := range cloud.Samples {
		if _, err := sampleStmt.ExecContext(ctx, cloud.SessionID, s.Index, s.Azimuth, s.Elevation, len(s.Ranges)); err != nil {
			return fmt.Errorf("insert sample %d: %w", s.Index, err)
		}
		if s.Recording != nil {
			if _, err := recStmt.ExecContext(ctx, cloud.SessionID, s.Index, len(s.Recording), encodeRecording(s.Recording)); err != nil {
				return fmt.Errorf("insert recording %d: %w", s.Index, err)
			}
		}
	}
	i := 0
	for _, s := range cloud.Samples {
		for _, r := range s.Ranges {
			if i >= len(cloud.Points) {
				break
			}
			p := cloud.Points[i]
			if _, err := pointStmt.ExecContext(ctx, cloud.SessionID, i, s.Index, r, p.X, p.Y, p.Z); err != nil {
				return fmt.Errorf("insert point %d: %w", i, err)
			}
			i++
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	monitoring.Logf("stored session %s: %d samples, %d points", cloud.SessionID, len(cloud.Samples), len(cloud.Points))
	return nil
}

const summaryColumns = `session_id, started_at, finished_at, sample_rate, options_json, sample_count, point_count`

func scanSummary(row interface{ Scan(...any) error }) (SessionSummary, error) {
	var (
		s                 SessionSummary
		started, finished string
		optsJSON          string
	)
	if err := row.Scan(&s.ID, &started, &finished, &s.SampleRate, &optsJSON, &s.SampleCount, &s.PointCount); err != nil {
		return s, err
	}
	var err error
	if s.StartedAt, err = parseTime(started); err != nil {
		return s, err
	}
	if s.FinishedAt, err = parseTime(finished); err != nil {
		return s, err
	}
	if err := json.Unmarshal([]byte(optsJSON), &s.Options); err != nil {
		return s, fmt.Errorf("decode options of %s: %w", s.ID, err)
	}
	return s, nil
}

// ListSessions returns up to limit sessions, newest first. A limit <= 0
// returns all of them.
func (db *DB) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx,
		`SELECT `+summaryColumns+` FROM sessions ORDER BY started_at DESC, session_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []SessionSummary{}
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// GetSession returns the summary of one session.
func (db *DB) GetSession(ctx context.Context, id string) (SessionSummary, error) {
	s, err := scanSummary(db.QueryRowContext(ctx, `SELECT `+summaryColumns+` FROM sessions WHERE session_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNotFound
	}
	return s, err
}

// LoadCloud rebuilds a stored session's point cloud, without recordings.
func (db *DB) LoadCloud(ctx context.Context, id string) (sonar.PointCloud, error) {
	summary, err := db.GetSession(ctx, id)
	if err != nil {
		return sonar.PointCloud{}, err
	}
	cloud := sonar.PointCloud{
		SessionID:  summary.ID,
		Options:    summary.Options,
		StartedAt:  summary.StartedAt,
		FinishedAt: summary.FinishedAt,
		Samples:    make([]sonar.ScanSample, 0, summary.SampleCount),
		Points:     make([]sonar.Point3D, 0, summary.PointCount),
	}

	rows, err := db.QueryContext(ctx,
		`SELECT sample_index, azimuth, elevation FROM scan_samples WHERE session_id = ? ORDER BY sample_index`, id)
	if err != nil {
		return cloud, err
	}
	byIndex := map[int]int{}
	for rows.Next() {
		var s sonar.ScanSample
		if err := rows.Scan(&s.Index, &s.Azimuth, &s.Elevation); err != nil {
			rows.Close()
			return cloud, err
		}
		s.Ranges = []float64{}
		byIndex[s.Index] = len(cloud.Samples)
		cloud.Samples = append(cloud.Samples, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return cloud, err
	}

	rows, err = db.QueryContext(ctx,
		`SELECT sample_index, range_m, x, y, z FROM points WHERE session_id = ? ORDER BY point_index`, id)
	if err != nil {
		return cloud, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			idx int
			r   float64
			p   sonar.Point3D
		)
		if err := rows.Scan(&idx, &r, &p.X, &p.Y, &p.Z); err != nil {
			return cloud, err
		}
		if j, ok := byIndex[idx]; ok {
			cloud.Samples[j].Ranges = append(cloud.Samples[j].Ranges, r)
		}
		cloud.Points = append(cloud.Points, p)
	}
	return cloud, rows.Err()
}

// LoadRecordings returns a session's raw recordings in traversal order. It
// is empty when the session was not stored with recordings.
func (db *DB) LoadRecordings(ctx context.Context, id string) ([]sonar.Recording, error) {
	if _, err := db.GetSession(ctx, id); err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT sample_count, samples FROM recordings WHERE session_id = ? ORDER BY sample_index`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []sonar.Recording
	for rows.Next() {
		var (
			n    int
			blob []byte
		)
		if err := rows.Scan(&n, &blob); err != nil {
			return nil, err
		}
		rec, err := decodeRecording(blob)
		if err != nil {
			return nil, err
		}
		if len(rec) != n {
			return nil, fmt.Errorf("recording length %d does not match stored count %d", len(rec), n)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// DeleteSession removes a session and everything stored with it.
func (db *DB) DeleteSession(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// timeLayout is RFC 3339 with fixed-width nanoseconds so stored times sort
// as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// encodeRecording packs samples as little-endian float64.
func encodeRecording(rec sonar.Recording) []byte {
	buf := make([]byte, 8*len(rec))
	for i, v := range rec {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

func decodeRecording(buf []byte) (sonar.Recording, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("recording blob of %d bytes is not a whole number of samples", len(buf))
	}
	rec := make(sonar.Recording, len(buf)/8)
	for i := range rec {
		rec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return rec, nil
}
