// ABOUTME: Test doubles for the recorder capability ports
// ABOUTME: Fake clock, call-recording provider and a store wrapper with injectable failures

package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/harper/triplog/internal/geo"
	"github.com/harper/triplog/internal/models"
	"github.com/harper/triplog/internal/status"
	"github.com/harper/triplog/internal/storage"
)

var t0 = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

const baseLat, baseLng = 41.8781, -87.6298

var errDiskFull = errors.New("disk full")

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fakeProvider struct {
	mu     sync.Mutex
	calls  []string
	auth   AuthorizationStatus
	events chan ProviderEvent
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{auth: AuthWhenInUse, events: make(chan ProviderEvent, 16)}
}

func (p *fakeProvider) record(format string, args ...any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
	return nil
}

func (p *fakeProvider) takeCalls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	calls := p.calls
	p.calls = nil
	return calls
}

func (p *fakeProvider) StartTracking(a Accuracy) error      { return p.record("start %s", a) }
func (p *fakeProvider) StopTracking() error                 { return p.record("stop") }
func (p *fakeProvider) SetDesiredAccuracy(a Accuracy) error { return p.record("accuracy %s", a) }
func (p *fakeProvider) SetDistanceFilter(m float64) error   { return p.record("distance-filter %g", m) }
func (p *fakeProvider) SetHeadingUpdates(on bool) error     { return p.record("heading %t", on) }
func (p *fakeProvider) SetBackgroundUpdates(on bool) error  { return p.record("background %t", on) }
func (p *fakeProvider) SetDeferredUpdates(on bool) error    { return p.record("deferred %t", on) }
func (p *fakeProvider) RequestAuthorization(always bool) error {
	return p.record("authorize always=%t", always)
}
func (p *fakeProvider) SetSignificantChangeMonitoring(on bool) error {
	return p.record("significant %t", on)
}

func (p *fakeProvider) AuthorizationStatus() AuthorizationStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.auth
}

func (p *fakeProvider) Events() <-chan ProviderEvent { return p.events }

// flakyStore wraps a real store and fails selected operations on demand.
type flakyStore struct {
	storage.TripStore
	failCreate bool
	failBegin  bool
	failAppend bool
	failCommit bool
	begins     int
}

func (s *flakyStore) CreateRecording(ctx context.Context, rec *models.Recording) error {
	if s.failCreate {
		return &storage.StoreError{Op: "create recording", Err: errDiskFull}
	}
	return s.TripStore.CreateRecording(ctx, rec)
}

func (s *flakyStore) Begin(ctx context.Context) (storage.PointBatch, error) {
	if s.failBegin {
		return nil, &storage.StoreError{Op: "begin batch", Err: errDiskFull}
	}
	s.begins++
	batch, err := s.TripStore.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &flakyBatch{PointBatch: batch, store: s}, nil
}

type flakyBatch struct {
	storage.PointBatch
	store *flakyStore
}

func (b *flakyBatch) AppendPoint(recordingID uuid.UUID, fix models.Fix, heading *models.Heading, distance float64, segmentID int) (*models.Point, error) {
	if b.store.failAppend {
		return nil, &storage.StoreError{Op: "append point", Err: errDiskFull}
	}
	return b.PointBatch.AppendPoint(recordingID, fix, heading, distance, segmentID)
}

func (b *flakyBatch) Commit() error {
	if b.store.failCommit {
		_ = b.PointBatch.Rollback()
		return &storage.StoreError{Op: "commit batch", Err: errDiskFull}
	}
	return b.PointBatch.Commit()
}

// harness holds a controller's collaborators so a test can relaunch it
// against the same store and history.
type harness struct {
	ctx      context.Context
	store    *flakyStore
	history  *status.History
	histPath string
	provider *fakeProvider
	clock    *fakeClock
	settings Settings
	opts     Options
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newBackendHarness(t, "sqlite")
}

// harnessBackends lists the stores the controller tests that exercise point
// batches run against.
var harnessBackends = []string{"sqlite", "badger"}

func newBackendHarness(t *testing.T, backend string) *harness {
	t.Helper()
	dir := t.TempDir()
	var store storage.TripStore
	var err error
	switch backend {
	case "sqlite":
		store, err = storage.NewSQLiteStore(filepath.Join(dir, "trips.db"), testLogger())
	case "badger":
		store, err = storage.NewBadgerStore(filepath.Join(dir, "badger"), testLogger())
	default:
		t.Fatalf("unknown backend %q", backend)
	}
	if err != nil {
		t.Fatalf("failed to create %s store: %v", backend, err)
	}
	t.Cleanup(func() { _ = store.Close() })

	h := &harness{
		ctx:      context.Background(),
		store:    &flakyStore{TripStore: store},
		histPath: filepath.Join(dir, "history.jsonl"),
		provider: newFakeProvider(),
		clock:    &fakeClock{now: t0},
		settings: DefaultSettings(),
	}
	h.history = h.openHistory(t)
	return h
}

func (h *harness) openHistory(t *testing.T) *status.History {
	t.Helper()
	hist, err := status.OpenHistory(h.histPath, testLogger())
	if err != nil {
		t.Fatalf("failed to open history: %v", err)
	}
	t.Cleanup(func() { _ = hist.Close() })
	return hist
}

func (h *harness) controller(t *testing.T) *Controller {
	t.Helper()
	c, err := New(h.ctx, Deps{
		Store:    h.store,
		History:  h.history,
		Provider: h.provider,
		Clock:    h.clock,
		Settings: StaticSettings(h.settings),
		Logger:   testLogger(),
	}, h.opts)
	if err != nil {
		t.Fatalf("failed to create controller: %v", err)
	}
	return c
}

// relaunch simulates a process restart: the history is reloaded from disk.
func (h *harness) relaunch(t *testing.T) *Controller {
	t.Helper()
	_ = h.history.Close()
	h.history = h.openHistory(t)
	return h.controller(t)
}

func (h *harness) recording(t *testing.T, id uuid.UUID) *models.Recording {
	t.Helper()
	rec, err := h.store.GetRecording(h.ctx, id)
	if err != nil {
		t.Fatalf("failed to get recording: %v", err)
	}
	return rec
}

func (h *harness) points(t *testing.T, id uuid.UUID) []*models.Point {
	t.Helper()
	points, err := h.store.Points(h.ctx, id)
	if err != nil {
		t.Fatalf("failed to list points: %v", err)
	}
	return points
}

// fixNorth builds an accurate fix meters north of the base position.
func fixNorth(ts time.Time, meters float64) models.Fix {
	return models.Fix{
		Timestamp:          ts,
		Latitude:           geo.OffsetNorth(baseLat, meters),
		Longitude:          baseLng,
		HorizontalAccuracy: 5,
		Speed:              3,
	}
}

func mustCommand(t *testing.T, c *Controller, cmd Command) {
	t.Helper()
	if err := c.Command(context.Background(), cmd); err != nil {
		t.Fatalf("%s failed: %v", cmd, err)
	}
}

func currentRecordingID(t *testing.T, c *Controller) uuid.UUID {
	t.Helper()
	id, ok := c.Status().RecordingRef()
	if !ok {
		t.Fatalf("expected a recording, status is %s", c.Status())
	}
	return id
}
