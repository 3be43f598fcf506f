// ABOUTME: SQLite storage implementation for recordings, pauses and points
// ABOUTME: Provides local transactional persistence using pure Go SQLite driver

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/harper/triplog/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements TripStore with a local SQLite database.
// Timestamps are stored as INTEGER unix nanoseconds.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *log.Logger
}

// Compile-time check that SQLiteStore implements TripStore.
var _ TripStore = (*SQLiteStore)(nil)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewSQLiteStore opens (and creates if needed) a SQLite database at path.
func NewSQLiteStore(path string, logger *log.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil { //nolint:gosec // 0750 is appropriate for user data directory
		return nil, fmt.Errorf("create directory: %w", err)
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteStore{db: db, path: path, logger: logger.WithPrefix("sqlite")}

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// migrate creates or updates the database schema.
func (s *SQLiteStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS recordings (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			start_ns INTEGER,
			duration_ns INTEGER,
			total_distance REAL NOT NULL DEFAULT 0,
			max_speed REAL NOT NULL DEFAULT 0,
			average_speed REAL NOT NULL DEFAULT 0,
			created_at_ns INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS pauses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			recording_id TEXT NOT NULL REFERENCES recordings(id) ON DELETE CASCADE,
			start_ns INTEGER,
			duration_ns INTEGER
		);

		CREATE TABLE IF NOT EXISTS points (
			id TEXT PRIMARY KEY,
			recording_id TEXT NOT NULL REFERENCES recordings(id) ON DELETE CASCADE,
			recorded_at_ns INTEGER NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			altitude REAL NOT NULL DEFAULT 0,
			horizontal_accuracy REAL NOT NULL,
			speed REAL NOT NULL,
			heading REAL,
			segment_id INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_pauses_recording_id ON pauses(recording_id);
		CREATE INDEX IF NOT EXISTS idx_points_recording_time ON points(recording_id, recorded_at_ns);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRecording inserts a new recording with its total time segment and pauses.
func (s *SQLiteStore) CreateRecording(ctx context.Context, rec *models.Recording) error {
	return s.inTx(ctx, "create recording", func(tx *sql.Tx) error {
		return insertRecording(ctx, tx, rec)
	})
}

// GetRecording retrieves a recording, its pauses and its point count.
func (s *SQLiteStore) GetRecording(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	rec, err := loadRecording(ctx, s.db, id)
	if err != nil {
		return nil, wrapStore("get recording", err)
	}
	return rec, nil
}

// ListRecordings returns all recordings, newest first.
func (s *SQLiteStore) ListRecordings(ctx context.Context) ([]*models.Recording, error) {
	recs, err := loadAllRecordings(ctx, s.db)
	if err != nil {
		return nil, wrapStore("list recordings", err)
	}
	return recs, nil
}

// DeleteRecording removes a recording (pauses and points cascade delete automatically).
func (s *SQLiteStore) DeleteRecording(ctx context.Context, id uuid.UUID) error {
	return s.inTx(ctx, "delete recording", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM recordings WHERE id = ?", id.String())
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("recording %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

// OpenPause appends an open pause starting at now. It fails with
// ErrInvariantViolation if the latest pause is still open or the recording
// is already finished.
func (s *SQLiteStore) OpenPause(ctx context.Context, id uuid.UUID, now time.Time) error {
	return s.inTx(ctx, "open pause", func(tx *sql.Tx) error {
		rec, err := loadRecording(ctx, tx, id)
		if err != nil {
			return err
		}
		if rec.IsFinished() {
			return fmt.Errorf("%w: recording %s is finished", ErrInvariantViolation, id)
		}
		_, latest, found, err := latestPauseRow(ctx, tx, id)
		if err != nil {
			return err
		}
		if found && latest.IsOpen() {
			return fmt.Errorf("%w: recording %s already has an open pause", ErrInvariantViolation, id)
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO pauses (recording_id, start_ns, duration_ns) VALUES (?, ?, NULL)",
			id.String(), now.UnixNano(),
		)
		return err
	})
}

// ClosePause closes the most recent pause. Closing when no pause is open is
// a logged no-op.
func (s *SQLiteStore) ClosePause(ctx context.Context, id uuid.UUID, now time.Time) error {
	return s.inTx(ctx, "close pause", func(tx *sql.Tx) error {
		if _, err := loadRecording(ctx, tx, id); err != nil {
			return err
		}
		return s.closeLatestPause(ctx, tx, id, now)
	})
}

func (s *SQLiteStore) closeLatestPause(ctx context.Context, q queryer, id uuid.UUID, now time.Time) error {
	pauseID, latest, found, err := latestPauseRow(ctx, q, id)
	if err != nil {
		return err
	}
	if !found || !latest.IsOpen() {
		s.logger.Warn("no open pause to close", "recording", id)
		return nil
	}
	if !latest.Close(now) {
		s.logger.Error("closed pause without start time", "recording", id)
	}
	_, err = q.ExecContext(ctx,
		"UPDATE pauses SET start_ns = ?, duration_ns = ? WHERE id = ?",
		latest.StartTime.UnixNano(), int64(*latest.Duration), pauseID,
	)
	return err
}

// FinishRecording closes the total time segment and any open pause, then
// computes the average speed over the active duration. Finishing a finished
// recording fails with ErrInvariantViolation.
func (s *SQLiteStore) FinishRecording(ctx context.Context, id uuid.UUID, now time.Time) (*models.Recording, error) {
	var finished *models.Recording
	err := s.inTx(ctx, "finish recording", func(tx *sql.Tx) error {
		rec, err := loadRecording(ctx, tx, id)
		if err != nil {
			return err
		}
		if rec.IsFinished() {
			return fmt.Errorf("%w: recording %s is already finished", ErrInvariantViolation, id)
		}
		if err := s.closeLatestPauseIfOpen(ctx, tx, rec, now); err != nil {
			return err
		}
		rec, err = loadRecording(ctx, tx, id)
		if err != nil {
			return err
		}
		finishTotals(s.logger, rec, now)
		_, err = tx.ExecContext(ctx,
			"UPDATE recordings SET start_ns = ?, duration_ns = ?, average_speed = ? WHERE id = ?",
			rec.TotalTimeSegment.StartTime.UnixNano(), int64(*rec.TotalTimeSegment.Duration),
			rec.AverageSpeed, id.String(),
		)
		finished = rec
		return err
	})
	if err != nil {
		return nil, err
	}
	return finished, nil
}

func (s *SQLiteStore) closeLatestPauseIfOpen(ctx context.Context, q queryer, rec *models.Recording, now time.Time) error {
	if latest, ok := rec.LatestPause(); !ok || !latest.IsOpen() {
		return nil
	}
	return s.closeLatestPause(ctx, q, rec.ID, now)
}

// finishTotals closes the total segment and sets the average speed.
func finishTotals(logger *log.Logger, rec *models.Recording, now time.Time) {
	if !rec.TotalTimeSegment.Close(now) {
		logger.Error("finished recording without start time; using degraded segment", "recording", rec.ID)
	}
	refreshAverageSpeed(rec)
}

// refreshAverageSpeed recomputes the average speed of a finished recording
// over its active duration. Points delivered late after the finish move it.
func refreshAverageSpeed(rec *models.Recording) {
	end, ok := rec.TotalTimeSegment.EndTime()
	if !ok {
		return
	}
	if active := rec.ActiveDuration(end); active > 0 {
		rec.AverageSpeed = rec.TotalDistance / active.Seconds()
	}
}

// Points returns all points of a recording ordered by timestamp.
func (s *SQLiteStore) Points(ctx context.Context, recordingID uuid.UUID) ([]*models.Point, error) {
	rows, err := s.db.QueryContext(ctx,
		pointColumns+" FROM points WHERE recording_id = ? ORDER BY recorded_at_ns, id",
		recordingID.String(),
	)
	if err != nil {
		return nil, wrapStore("query points", err)
	}
	defer func() { _ = rows.Close() }()

	points, err := scanPoints(rows)
	if err != nil {
		return nil, wrapStore("query points", err)
	}
	return points, nil
}

// LatestPoint returns the point with the greatest timestamp.
func (s *SQLiteStore) LatestPoint(ctx context.Context, recordingID uuid.UUID) (*models.Point, error) {
	row := s.db.QueryRowContext(ctx,
		pointColumns+" FROM points WHERE recording_id = ? ORDER BY recorded_at_ns DESC, id DESC LIMIT 1",
		recordingID.String(),
	)
	p, err := scanPoint(row)
	return p, wrapStore("latest point", err)
}

// LatestPointBefore returns the latest point strictly before t.
func (s *SQLiteStore) LatestPointBefore(ctx context.Context, recordingID uuid.UUID, t time.Time) (*models.Point, error) {
	p, err := latestPointBefore(ctx, s.db, recordingID, t)
	return p, wrapStore("latest point before", err)
}

func latestPointBefore(ctx context.Context, q queryer, recordingID uuid.UUID, t time.Time) (*models.Point, error) {
	row := q.QueryRowContext(ctx,
		pointColumns+" FROM points WHERE recording_id = ? AND recorded_at_ns < ? ORDER BY recorded_at_ns DESC, id DESC LIMIT 1",
		recordingID.String(), t.UnixNano(),
	)
	return scanPoint(row)
}

// Begin opens a point batch backed by a SQL transaction.
func (s *SQLiteStore) Begin(ctx context.Context) (PointBatch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &StoreError{Op: "begin batch", Err: err}
	}
	return &sqliteBatch{ctx: ctx, tx: tx}, nil
}

type sqliteBatch struct {
	ctx context.Context
	tx  *sql.Tx
}

func (b *sqliteBatch) LatestPointBefore(recordingID uuid.UUID, t time.Time) (*models.Point, error) {
	p, err := latestPointBefore(b.ctx, b.tx, recordingID, t)
	return p, wrapStore("latest point before", err)
}

// AppendPoint inserts a point and updates the recording's distance and max speed.
func (b *sqliteBatch) AppendPoint(recordingID uuid.UUID, fix models.Fix, heading *models.Heading, distance float64, segmentID int) (*models.Point, error) {
	res, err := b.tx.ExecContext(b.ctx,
		"UPDATE recordings SET total_distance = total_distance + ?, max_speed = MAX(max_speed, ?) WHERE id = ?",
		distance, fix.Speed, recordingID.String(),
	)
	if err != nil {
		return nil, &StoreError{Op: "append point", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("recording %s: %w", recordingID, ErrNotFound)
	}

	rec, err := loadRecording(b.ctx, b.tx, recordingID)
	if err != nil {
		return nil, wrapStore("append point", err)
	}
	if rec.IsFinished() {
		refreshAverageSpeed(rec)
		if _, err := b.tx.ExecContext(b.ctx,
			"UPDATE recordings SET average_speed = ? WHERE id = ?",
			rec.AverageSpeed, recordingID.String(),
		); err != nil {
			return nil, &StoreError{Op: "append point", Err: err}
		}
	}

	p := models.NewPoint(recordingID, fix, heading, segmentID)
	if err := insertPoint(b.ctx, b.tx, p); err != nil {
		return nil, &StoreError{Op: "append point", Err: err}
	}
	return p, nil
}

func (b *sqliteBatch) Commit() error {
	if err := b.tx.Commit(); err != nil {
		return &StoreError{Op: "commit batch", Err: err}
	}
	return nil
}

func (b *sqliteBatch) Rollback() error {
	if err := b.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return &StoreError{Op: "rollback batch", Err: err}
	}
	return nil
}

// ImportRecording inserts a recording with its pauses and points verbatim,
// preserving totals and point IDs.
func (s *SQLiteStore) ImportRecording(ctx context.Context, rec *models.Recording, points []*models.Point) error {
	return s.inTx(ctx, "import recording", func(tx *sql.Tx) error {
		if err := insertRecording(ctx, tx, rec); err != nil {
			return err
		}
		for _, p := range points {
			if err := insertPoint(ctx, tx, p); err != nil {
				return fmt.Errorf("insert point %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

// CheckConsistency scans the whole store in one read transaction.
func (s *SQLiteStore) CheckConsistency(ctx context.Context) ([]Violation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &StoreError{Op: "check consistency", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	scan := &storeScan{
		points:       make(map[uuid.UUID][]*models.Point),
		orphanPauses: make(map[uuid.UUID]int),
	}
	if scan.recordings, err = loadAllRecordings(ctx, tx); err != nil {
		return nil, wrapStore("check consistency", err)
	}

	rows, err := tx.QueryContext(ctx, pointColumns+" FROM points ORDER BY recording_id, recorded_at_ns, id")
	if err != nil {
		return nil, &StoreError{Op: "check consistency", Err: err}
	}
	all, err := scanPoints(rows)
	_ = rows.Close()
	if err != nil {
		return nil, wrapStore("check consistency", err)
	}
	known := make(map[uuid.UUID]bool, len(scan.recordings))
	for _, rec := range scan.recordings {
		known[rec.ID] = true
	}
	for _, p := range all {
		if known[p.RecordingID] {
			scan.points[p.RecordingID] = append(scan.points[p.RecordingID], p)
		} else {
			scan.orphanPoints = append(scan.orphanPoints, p)
		}
	}

	orphanRows, err := tx.QueryContext(ctx,
		"SELECT recording_id, COUNT(*) FROM pauses WHERE recording_id NOT IN (SELECT id FROM recordings) GROUP BY recording_id",
	)
	if err != nil {
		return nil, &StoreError{Op: "check consistency", Err: err}
	}
	defer func() { _ = orphanRows.Close() }()
	for orphanRows.Next() {
		var idStr string
		var n int
		if err := orphanRows.Scan(&idStr, &n); err != nil {
			return nil, &StoreError{Op: "check consistency", Err: err}
		}
		id, _ := uuid.Parse(idStr)
		scan.orphanPauses[id] = n
	}
	if err := orphanRows.Err(); err != nil {
		return nil, &StoreError{Op: "check consistency", Err: err}
	}

	return scan.violations(), nil
}

// inTx runs fn in a transaction, committing on success.
func (s *SQLiteStore) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StoreError{Op: op, Err: err}
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return wrapStore(op, err)
	}
	if err := tx.Commit(); err != nil {
		return &StoreError{Op: op, Err: err}
	}
	return nil
}

func insertRecording(ctx context.Context, q queryer, rec *models.Recording) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO recordings (id, name, start_ns, duration_ns, total_distance, max_speed, average_speed, created_at_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.Name,
		nullTime(rec.TotalTimeSegment.StartTime), nullDuration(rec.TotalTimeSegment.Duration),
		rec.TotalDistance, rec.MaxSpeed, rec.AverageSpeed, rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert recording: %w", err)
	}
	for _, p := range rec.Pauses {
		_, err := q.ExecContext(ctx,
			"INSERT INTO pauses (recording_id, start_ns, duration_ns) VALUES (?, ?, ?)",
			rec.ID.String(), nullTime(p.StartTime), nullDuration(p.Duration),
		)
		if err != nil {
			return fmt.Errorf("insert pause: %w", err)
		}
	}
	return nil
}

func insertPoint(ctx context.Context, q queryer, p *models.Point) error {
	var heading sql.NullFloat64
	if p.Heading != nil {
		heading = sql.NullFloat64{Float64: *p.Heading, Valid: true}
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO points (id, recording_id, recorded_at_ns, latitude, longitude, altitude,
		 horizontal_accuracy, speed, heading, segment_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.RecordingID.String(), p.Timestamp.UnixNano(), p.Latitude, p.Longitude,
		p.Altitude, p.HorizontalAccuracy, p.Speed, heading, p.SegmentID,
	)
	return err
}

const recordingColumns = `SELECT id, name, start_ns, duration_ns, total_distance, max_speed, average_speed, created_at_ns,
	(SELECT COUNT(*) FROM points WHERE points.recording_id = recordings.id)`

const pointColumns = `SELECT id, recording_id, recorded_at_ns, latitude, longitude, altitude,
	horizontal_accuracy, speed, heading, segment_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecording(row rowScanner) (*models.Recording, error) {
	var idStr string
	var start, duration sql.NullInt64
	var createdNs int64
	var rec models.Recording
	err := row.Scan(&idStr, &rec.Name, &start, &duration, &rec.TotalDistance,
		&rec.MaxSpeed, &rec.AverageSpeed, &createdNs, &rec.PointCount)
	if err != nil {
		return nil, err
	}
	rec.ID, _ = uuid.Parse(idStr)
	rec.CreatedAt = fromNanos(createdNs)
	rec.TotalTimeSegment = segmentFromNulls(start, duration)
	return &rec, nil
}

func loadRecording(ctx context.Context, q queryer, id uuid.UUID) (*models.Recording, error) {
	row := q.QueryRowContext(ctx, recordingColumns+" FROM recordings WHERE id = ?", id.String())
	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("recording %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan recording: %w", err)
	}
	pauses, err := loadPauses(ctx, q, "WHERE recording_id = ?", id.String())
	if err != nil {
		return nil, err
	}
	rec.Pauses = pauses[rec.ID]
	return rec, nil
}

func loadAllRecordings(ctx context.Context, q queryer) ([]*models.Recording, error) {
	rows, err := q.QueryContext(ctx, recordingColumns+" FROM recordings ORDER BY created_at_ns DESC")
	if err != nil {
		return nil, fmt.Errorf("query recordings: %w", err)
	}
	var recs []*models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	pauses, err := loadPauses(ctx, q, "")
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		rec.Pauses = pauses[rec.ID]
	}
	return recs, nil
}

// loadPauses returns pauses grouped by recording, each group ordered by start.
func loadPauses(ctx context.Context, q queryer, where string, args ...any) (map[uuid.UUID][]models.TimeSegment, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT recording_id, start_ns, duration_ns FROM pauses "+where+" ORDER BY recording_id, start_ns, id",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query pauses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[uuid.UUID][]models.TimeSegment)
	for rows.Next() {
		var idStr string
		var start, duration sql.NullInt64
		if err := rows.Scan(&idStr, &start, &duration); err != nil {
			return nil, fmt.Errorf("scan pause: %w", err)
		}
		id, _ := uuid.Parse(idStr)
		out[id] = append(out[id], segmentFromNulls(start, duration))
	}
	return out, rows.Err()
}

// latestPauseRow returns the row ID and segment of the pause with the latest start.
func latestPauseRow(ctx context.Context, q queryer, id uuid.UUID) (int64, models.TimeSegment, bool, error) {
	var pauseID int64
	var start, duration sql.NullInt64
	err := q.QueryRowContext(ctx,
		"SELECT id, start_ns, duration_ns FROM pauses WHERE recording_id = ? ORDER BY start_ns DESC, id DESC LIMIT 1",
		id.String(),
	).Scan(&pauseID, &start, &duration)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, models.TimeSegment{}, false, nil
	}
	if err != nil {
		return 0, models.TimeSegment{}, false, fmt.Errorf("query latest pause: %w", err)
	}
	return pauseID, segmentFromNulls(start, duration), true, nil
}

func scanPoint(row *sql.Row) (*models.Point, error) {
	p, err := scanPointRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan point: %w", err)
	}
	return p, nil
}

func scanPoints(rows *sql.Rows) ([]*models.Point, error) {
	var points []*models.Point
	for rows.Next() {
		p, err := scanPointRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func scanPointRow(row rowScanner) (*models.Point, error) {
	var recIDStr string
	var ns int64
	var heading sql.NullFloat64
	var p models.Point
	err := row.Scan(&p.ID, &recIDStr, &ns, &p.Latitude, &p.Longitude, &p.Altitude,
		&p.HorizontalAccuracy, &p.Speed, &heading, &p.SegmentID)
	if err != nil {
		return nil, err
	}
	p.RecordingID, _ = uuid.Parse(recIDStr)
	p.Timestamp = fromNanos(ns)
	if heading.Valid {
		h := heading.Float64
		p.Heading = &h
	}
	return &p, nil
}

func segmentFromNulls(start, duration sql.NullInt64) models.TimeSegment {
	var seg models.TimeSegment
	if start.Valid {
		t := fromNanos(start.Int64)
		seg.StartTime = &t
	}
	if duration.Valid {
		d := time.Duration(duration.Int64)
		seg.Duration = &d
	}
	return seg
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func nullDuration(d *time.Duration) sql.NullInt64 {
	if d == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*d), Valid: true}
}

func fromNanos(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}
