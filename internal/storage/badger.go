// ABOUTME: Badger key-value storage implementation for recordings and points
// ABOUTME: Stores recordings as JSON documents and points under time-ordered keys

package storage

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
	"github.com/harper/triplog/internal/models"
)

const (
	recordingPrefix = "rec:"
	pointPrefix     = "pt:"
)

// BadgerStore implements TripStore on an embedded Badger database.
//
// Keys:
//
//	rec:<recording uuid>                       JSON recording with pauses
//	pt:<recording uuid>:<sortable ts>:<ulid>   JSON point
type BadgerStore struct {
	db     *badger.DB
	logger *log.Logger
}

// Compile-time check that BadgerStore implements TripStore.
var _ TripStore = (*BadgerStore)(nil)

// NewBadgerStore opens a Badger database in dir. An empty dir opens an
// in-memory database.
func NewBadgerStore(dir string, logger *log.Logger) (*BadgerStore, error) {
	logger = logger.WithPrefix("badger")
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{logger})
	if dir == "" {
		opts = opts.WithInMemory(true)
	} else if err := os.MkdirAll(dir, 0750); err != nil { //nolint:gosec // 0750 is appropriate for user data directory
		return nil, fmt.Errorf("create directory: %w", err)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func recordingKey(id uuid.UUID) []byte {
	return []byte(recordingPrefix + id.String())
}

func pointsPrefix(id uuid.UUID) []byte {
	return []byte(pointPrefix + id.String() + ":")
}

// sortableTime encodes t so that byte order matches time order, including
// times before the epoch.
func sortableTime(t time.Time) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(t.UnixNano())^(1<<63))
	return hex.EncodeToString(buf[:])
}

func pointKey(p *models.Point) []byte {
	return []byte(pointPrefix + p.RecordingID.String() + ":" + sortableTime(p.Timestamp) + ":" + p.ID)
}

func getRecording(txn *badger.Txn, id uuid.UUID) (*models.Recording, error) {
	item, err := txn.Get(recordingKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("recording %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var rec models.Recording
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, fmt.Errorf("decode recording %s: %w", id, err)
	}
	return &rec, nil
}

func putRecording(txn *badger.Txn, rec *models.Recording) error {
	rec.SortPauses()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode recording: %w", err)
	}
	return txn.Set(recordingKey(rec.ID), data)
}

func putPoint(txn *badger.Txn, p *models.Point) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode point: %w", err)
	}
	return txn.Set(pointKey(p), data)
}

func decodePoint(item *badger.Item) (*models.Point, error) {
	var p models.Point
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &p)
	}); err != nil {
		return nil, fmt.Errorf("decode point %s: %w", item.Key(), err)
	}
	return &p, nil
}

// update runs fn in a read-write transaction.
func (s *BadgerStore) update(op string, fn func(txn *badger.Txn) error) error {
	return wrapStore(op, s.db.Update(fn))
}

// view runs fn in a read-only transaction.
func (s *BadgerStore) view(op string, fn func(txn *badger.Txn) error) error {
	return wrapStore(op, s.db.View(fn))
}

// CreateRecording stores a new recording document.
func (s *BadgerStore) CreateRecording(_ context.Context, rec *models.Recording) error {
	return s.update("create recording", func(txn *badger.Txn) error {
		return putRecording(txn, rec)
	})
}

// GetRecording retrieves a recording document.
func (s *BadgerStore) GetRecording(_ context.Context, id uuid.UUID) (*models.Recording, error) {
	var rec *models.Recording
	err := s.view("get recording", func(txn *badger.Txn) error {
		var err error
		rec, err = getRecording(txn, id)
		return err
	})
	return rec, err
}

// ListRecordings returns all recordings, newest first.
func (s *BadgerStore) ListRecordings(_ context.Context) ([]*models.Recording, error) {
	var recs []*models.Recording
	err := s.view("list recordings", func(txn *badger.Txn) error {
		var err error
		recs, err = allRecordings(txn)
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
	return recs, nil
}

func allRecordings(txn *badger.Txn) ([]*models.Recording, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(recordingPrefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	var recs []*models.Recording
	for it.Rewind(); it.Valid(); it.Next() {
		var rec models.Recording
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return nil, fmt.Errorf("decode recording %s: %w", it.Item().Key(), err)
		}
		recs = append(recs, &rec)
	}
	return recs, nil
}

// DeleteRecording removes a recording and all of its points.
func (s *BadgerStore) DeleteRecording(_ context.Context, id uuid.UUID) error {
	return s.update("delete recording", func(txn *badger.Txn) error {
		if _, err := getRecording(txn, id); err != nil {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = pointsPrefix(id)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return txn.Delete(recordingKey(id))
	})
}

// OpenPause appends an open pause starting at now.
func (s *BadgerStore) OpenPause(_ context.Context, id uuid.UUID, now time.Time) error {
	return s.update("open pause", func(txn *badger.Txn) error {
		rec, err := getRecording(txn, id)
		if err != nil {
			return err
		}
		if rec.IsFinished() {
			return fmt.Errorf("%w: recording %s is finished", ErrInvariantViolation, id)
		}
		if latest, ok := rec.LatestPause(); ok && latest.IsOpen() {
			return fmt.Errorf("%w: recording %s already has an open pause", ErrInvariantViolation, id)
		}
		rec.Pauses = append(rec.Pauses, models.NewOpenSegment(now))
		return putRecording(txn, rec)
	})
}

// ClosePause closes the most recent pause. Closing when no pause is open is
// a logged no-op.
func (s *BadgerStore) ClosePause(_ context.Context, id uuid.UUID, now time.Time) error {
	return s.update("close pause", func(txn *badger.Txn) error {
		rec, err := getRecording(txn, id)
		if err != nil {
			return err
		}
		latest, ok := rec.LatestPause()
		if !ok || !latest.IsOpen() {
			s.logger.Warn("no open pause to close", "recording", id)
			return nil
		}
		if !latest.Close(now) {
			s.logger.Error("closed pause without start time", "recording", id)
		}
		return putRecording(txn, rec)
	})
}

// FinishRecording closes the total time segment and any open pause, then
// computes the average speed over the active duration.
func (s *BadgerStore) FinishRecording(_ context.Context, id uuid.UUID, now time.Time) (*models.Recording, error) {
	var finished *models.Recording
	err := s.update("finish recording", func(txn *badger.Txn) error {
		rec, err := getRecording(txn, id)
		if err != nil {
			return err
		}
		if rec.IsFinished() {
			return fmt.Errorf("%w: recording %s is already finished", ErrInvariantViolation, id)
		}
		if latest, ok := rec.LatestPause(); ok && latest.IsOpen() {
			if !latest.Close(now) {
				s.logger.Error("closed pause without start time", "recording", id)
			}
		}
		finishTotals(s.logger, rec, now)
		finished = rec
		return putRecording(txn, rec)
	})
	if err != nil {
		return nil, err
	}
	return finished, nil
}

// Points returns all points of a recording ordered by timestamp.
func (s *BadgerStore) Points(_ context.Context, recordingID uuid.UUID) ([]*models.Point, error) {
	var points []*models.Point
	err := s.view("query points", func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = pointsPrefix(recordingID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			p, err := decodePoint(it.Item())
			if err != nil {
				return err
			}
			points = append(points, p)
		}
		return nil
	})
	return points, err
}

// LatestPoint returns the point with the greatest timestamp.
func (s *BadgerStore) LatestPoint(_ context.Context, recordingID uuid.UUID) (*models.Point, error) {
	var p *models.Point
	err := s.view("latest point", func(txn *badger.Txn) error {
		var err error
		// 0xff sorts after every hex digit
		p, err = seekLatest(txn, recordingID, string(pointsPrefix(recordingID))+"\xff")
		return err
	})
	return p, err
}

// LatestPointBefore returns the latest point strictly before t.
func (s *BadgerStore) LatestPointBefore(_ context.Context, recordingID uuid.UUID, t time.Time) (*models.Point, error) {
	var p *models.Point
	err := s.view("latest point before", func(txn *badger.Txn) error {
		var err error
		p, err = latestPointBeforeTxn(txn, recordingID, t)
		return err
	})
	return p, err
}

func latestPointBeforeTxn(txn *badger.Txn, recordingID uuid.UUID, t time.Time) (*models.Point, error) {
	// Keys at exactly t carry a ":<ulid>" suffix and sort after the seek key.
	return seekLatest(txn, recordingID, string(pointsPrefix(recordingID))+sortableTime(t))
}

// seekLatest returns the last point of the recording whose key sorts at or
// before seek.
func seekLatest(txn *badger.Txn, recordingID uuid.UUID, seek string) (*models.Point, error) {
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	opts.PrefetchValues = false
	prefix := pointsPrefix(recordingID)
	it := txn.NewIterator(opts)
	defer it.Close()

	it.Seek([]byte(seek))
	if !it.ValidForPrefix(prefix) {
		return nil, ErrNotFound
	}
	return decodePoint(it.Item())
}

// Begin opens a point batch backed by a Badger read-write transaction.
func (s *BadgerStore) Begin(_ context.Context) (PointBatch, error) {
	return &badgerBatch{txn: s.db.NewTransaction(true)}, nil
}

type badgerBatch struct {
	txn *badger.Txn
}

func (b *badgerBatch) LatestPointBefore(recordingID uuid.UUID, t time.Time) (*models.Point, error) {
	p, err := latestPointBeforeTxn(b.txn, recordingID, t)
	return p, wrapStore("latest point before", err)
}

// AppendPoint stores a point and updates the recording's totals.
func (b *badgerBatch) AppendPoint(recordingID uuid.UUID, fix models.Fix, heading *models.Heading, distance float64, segmentID int) (*models.Point, error) {
	rec, err := getRecording(b.txn, recordingID)
	if err != nil {
		return nil, wrapStore("append point", err)
	}
	rec.TotalDistance += distance
	if fix.Speed > rec.MaxSpeed {
		rec.MaxSpeed = fix.Speed
	}
	rec.PointCount++
	if rec.IsFinished() {
		refreshAverageSpeed(rec)
	}

	p := models.NewPoint(recordingID, fix, heading, segmentID)
	if err := putPoint(b.txn, p); err != nil {
		return nil, &StoreError{Op: "append point", Err: err}
	}
	if err := putRecording(b.txn, rec); err != nil {
		return nil, &StoreError{Op: "append point", Err: err}
	}
	return p, nil
}

func (b *badgerBatch) Commit() error {
	if err := b.txn.Commit(); err != nil {
		return &StoreError{Op: "commit batch", Err: err}
	}
	return nil
}

func (b *badgerBatch) Rollback() error {
	b.txn.Discard()
	return nil
}

// ImportRecording stores a recording and its points verbatim. The point
// count is taken from the points given.
func (s *BadgerStore) ImportRecording(_ context.Context, rec *models.Recording, points []*models.Point) error {
	return s.update("import recording", func(txn *badger.Txn) error {
		copied := *rec
		copied.PointCount = len(points)
		if err := putRecording(txn, &copied); err != nil {
			return err
		}
		for _, p := range points {
			if err := putPoint(txn, p); err != nil {
				return err
			}
		}
		return nil
	})
}

// CheckConsistency scans the whole store in one read transaction. Pauses are
// embedded in their recording so they cannot be orphaned here.
func (s *BadgerStore) CheckConsistency(_ context.Context) ([]Violation, error) {
	scan := &storeScan{points: make(map[uuid.UUID][]*models.Point)}
	err := s.view("check consistency", func(txn *badger.Txn) error {
		var err error
		if scan.recordings, err = allRecordings(txn); err != nil {
			return err
		}
		known := make(map[uuid.UUID]bool, len(scan.recordings))
		for _, rec := range scan.recordings {
			known[rec.ID] = true
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(pointPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			p, err := decodePoint(it.Item())
			if err != nil {
				return err
			}
			if known[p.RecordingID] {
				scan.points[p.RecordingID] = append(scan.points[p.RecordingID], p)
			} else {
				scan.orphanPoints = append(scan.orphanPoints, p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return scan.violations(), nil
}

// badgerLogger routes Badger's internal logging through the charm logger.
type badgerLogger struct {
	l *log.Logger
}

func (b badgerLogger) Errorf(format string, args ...interface{}) {
	b.l.Errorf(strings.TrimSpace(format), args...)
}

func (b badgerLogger) Warningf(format string, args ...interface{}) {
	b.l.Warnf(strings.TrimSpace(format), args...)
}

func (b badgerLogger) Infof(format string, args ...interface{}) {
	b.l.Debugf(strings.TrimSpace(format), args...)
}

func (b badgerLogger) Debugf(format string, args ...interface{}) {
	b.l.Debugf(strings.TrimSpace(format), args...)
}
