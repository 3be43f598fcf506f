// ABOUTME: Session controller owning the live recording status
// ABOUTME: Serializes commands and provider events, drives the trip store and the provider

package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/harper/triplog/internal/models"
	"github.com/harper/triplog/internal/status"
	"github.com/harper/triplog/internal/storage"
)

// Command is a user command accepted by the controller.
type Command string

const (
	CommandStart  Command = "start"
	CommandPause  Command = "pause"
	CommandResume Command = "resume"
	CommandStop   Command = "stop"
)

// ParseCommand validates a command name.
func ParseCommand(s string) (Command, error) {
	switch c := Command(s); c {
	case CommandStart, CommandPause, CommandResume, CommandStop:
		return c, nil
	default:
		return "", fmt.Errorf("unknown command %q", s)
	}
}

// DefaultFailedCapacity bounds the failed fix list when Options leaves it unset.
const DefaultFailedCapacity = 1000

// Deps are the collaborators of a Controller.
type Deps struct {
	Store    storage.TripStore
	History  *status.History
	Provider LocationProvider
	Clock    Clock
	Settings SettingsSource
	Logger   *log.Logger
}

// Options tune a Controller.
type Options struct {
	FailedCapacity int
}

// Controller is the single writer for the recording status and the trip
// store. Every exported method is serialized on one mutex, so store
// transactions never overlap.
type Controller struct {
	store    storage.TripStore
	history  *status.History
	provider LocationProvider
	clock    Clock
	settings SettingsSource
	logger   *log.Logger
	opts     Options

	mu              sync.Mutex
	status          status.Status
	current         Settings
	backgrounded    bool
	locationClients int
	headingClients  int
	tracking        TrackingConfig
	canRecord       bool
	heading         *models.Heading
	latestFixAt     time.Time
	failed          []FailedFix
	dataLoss        int

	statusFeed    *Feed[status.Status]
	fixFeed       *Feed[*models.Fix]
	errorFeed     *Feed[ProviderError]
	canRecordFeed *Feed[bool]
}

// New creates a controller and restores the status recorded last in the
// history. A restored status whose recording is gone or finished is replaced
// by Stopped.
func New(ctx context.Context, deps Deps, opts Options) (*Controller, error) {
	if deps.Store == nil || deps.History == nil || deps.Provider == nil {
		return nil, errors.New("recorder: store, history and provider are required")
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Settings == nil {
		deps.Settings = StaticSettings(DefaultSettings())
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	if opts.FailedCapacity <= 0 {
		opts.FailedCapacity = DefaultFailedCapacity
	}

	c := &Controller{
		store:         deps.Store,
		history:       deps.History,
		provider:      deps.Provider,
		clock:         deps.Clock,
		settings:      deps.Settings,
		logger:        deps.Logger.WithPrefix("recorder"),
		opts:          opts,
		current:       deps.Settings.Settings(),
		statusFeed:    NewFeed[status.Status](true),
		fixFeed:       NewFeed[*models.Fix](true),
		errorFeed:     NewFeed[ProviderError](false),
		canRecordFeed: NewFeed[bool](true),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.status = c.restoreStatus(ctx)
	c.canRecord = c.provider.AuthorizationStatus().CanRecord()
	c.statusFeed.Publish(c.status)
	c.canRecordFeed.Publish(c.canRecord)
	c.fixFeed.Publish(nil)
	c.refreshTrackingLocked()
	return c, nil
}

func (c *Controller) restoreStatus(ctx context.Context) status.Status {
	last, ok := c.history.Last()
	if !ok {
		return status.Stopped()
	}
	id, ok := last.Status.RecordingRef()
	if !ok {
		return last.Status
	}

	rec, err := c.store.GetRecording(ctx, id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.logger.Error("restored status references a missing recording; stopping", "recording", id)
	case err != nil:
		c.logger.Error("cannot load restored recording; stopping", "recording", id, "err", err)
	case rec.IsFinished():
		c.logger.Error("restored status references a finished recording; stopping", "recording", id)
	default:
		c.logger.Info("restored recording status", "status", last.Status)
		return last.Status
	}

	c.appendHistoryLocked(c.clock.Now(), status.Stopped())
	return status.Stopped()
}

// Status returns the live status.
func (c *Controller) Status() status.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// CanRecord reports whether the current authorization allows recording.
func (c *Controller) CanRecord() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canRecord
}

// ObserveStatus subscribes to status changes, starting with the current status.
func (c *Controller) ObserveStatus() *Subscription[status.Status] {
	return c.statusFeed.Subscribe()
}

// ObserveCurrentFix subscribes to the latest valid fix, or nil when the
// position is unknown.
func (c *Controller) ObserveCurrentFix() *Subscription[*models.Fix] {
	return c.fixFeed.Subscribe()
}

// ObserveProviderErrors subscribes to location provider errors.
func (c *Controller) ObserveProviderErrors() *Subscription[ProviderError] {
	return c.errorFeed.Subscribe()
}

// ObserveCanRecord subscribes to changes of the recording permission.
func (c *Controller) ObserveCanRecord() *Subscription[bool] {
	return c.canRecordFeed.Subscribe()
}

// CurrentFix returns the latest valid fix, if any.
func (c *Controller) CurrentFix() *models.Fix {
	fix, _ := c.fixFeed.Latest()
	return fix
}

// Start begins a recording with a name derived from the start time.
func (c *Controller) Start(ctx context.Context) error {
	return c.StartWithName(ctx, "")
}

// StartWithName begins a recording with the given name.
func (c *Controller) StartWithName(ctx context.Context, name string) error {
	if name != "" {
		if err := models.ValidateName(name); err != nil {
			return &SessionError{Command: CommandStart, Err: err}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.canRecord {
		return &SessionError{Command: CommandStart, Err: ErrCannotRecord}
	}
	return c.transitionLocked(ctx, CommandStart, status.Event{Kind: status.EventStart, NewRecordingID: uuid.New()}, name)
}

// Pause pauses the current recording.
func (c *Controller) Pause(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitionLocked(ctx, CommandPause, status.Event{Kind: status.EventPause}, "")
}

// Resume resumes a paused recording in a new point segment.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitionLocked(ctx, CommandResume, status.Event{Kind: status.EventResume}, "")
}

// Stop finishes the current recording.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitionLocked(ctx, CommandStop, status.Event{Kind: status.EventStop}, "")
}

// Command runs cmd.
func (c *Controller) Command(ctx context.Context, cmd Command) error {
	switch cmd {
	case CommandStart:
		return c.Start(ctx)
	case CommandPause:
		return c.Pause(ctx)
	case CommandResume:
		return c.Resume(ctx)
	case CommandStop:
		return c.Stop(ctx)
	default:
		return &SessionError{Command: cmd, Err: fmt.Errorf("unknown command %q", cmd)}
	}
}

// transitionLocked applies ev. The history entry is written before the
// store effects; if an effect fails the previous status is appended again
// and the live status is left unchanged.
func (c *Controller) transitionLocked(ctx context.Context, cmd Command, ev status.Event, name string) error {
	from := c.status
	next, effects, err := status.Transition(from, ev)
	if err != nil {
		if errors.Is(err, status.ErrIllegalTransition) {
			err = fmt.Errorf("%w: %w", storage.ErrInvariantViolation, err)
		}
		return &SessionError{Command: cmd, Err: err}
	}

	now := c.clock.Now()
	c.appendHistoryLocked(now, next)

	for _, eff := range effects {
		if err := c.runEffect(ctx, eff, now, name); err != nil {
			c.logger.Error("status transition failed; reverting", "command", cmd, "from", from, "to", next, "err", err)
			c.appendHistoryLocked(now, from)
			return &SessionError{Command: cmd, Err: err}
		}
	}

	c.logger.Debug("status changed", "command", cmd, "from", from, "to", next)
	c.status = next
	c.statusFeed.Publish(next)
	c.refreshTrackingLocked()
	return nil
}

func (c *Controller) runEffect(ctx context.Context, eff status.Effect, now time.Time, name string) error {
	switch eff.Kind {
	case status.EffectCreateRecording:
		return c.store.CreateRecording(ctx, models.NewRecordingWithID(eff.RecordingID, name, now))
	case status.EffectOpenPause:
		return c.store.OpenPause(ctx, eff.RecordingID, now)
	case status.EffectClosePause:
		return c.store.ClosePause(ctx, eff.RecordingID, now)
	case status.EffectFinishRecording:
		rec, err := c.store.FinishRecording(ctx, eff.RecordingID, now)
		if err != nil {
			return err
		}
		c.logger.Info("recording finished", "recording", rec.ID, "points", rec.PointCount, "distance", rec.TotalDistance)
		return nil
	default:
		return fmt.Errorf("unknown effect %q", eff.Kind)
	}
}

// appendHistoryLocked persists a history entry. Failures are logged only;
// the history is a recovery aid.
func (c *Controller) appendHistoryLocked(at time.Time, s status.Status) {
	if err := c.history.Append(status.Entry{Timestamp: at, Status: s}); err != nil {
		c.logger.Error("failed to persist status history", "status", s, "err", err)
	}
}

// systemPauseLocked pauses a running recording on behalf of the system.
func (c *Controller) systemPauseLocked(ctx context.Context, reason string) {
	if !c.status.IsRecording() {
		return
	}
	c.logger.Info("pausing recording", "reason", reason)
	if err := c.transitionLocked(ctx, CommandPause, status.Event{Kind: status.EventSystemPause}, ""); err != nil {
		c.logger.Error("system pause failed", "reason", reason, "err", err)
	}
}

// HandleAuthorization reacts to a change of location permission. Losing
// permission while recording pauses the recording.
func (c *Controller) HandleAuthorization(ctx context.Context, auth AuthorizationStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	canRecord := auth.CanRecord()
	if canRecord != c.canRecord {
		c.canRecord = canRecord
		c.canRecordFeed.Publish(canRecord)
	}
	if !canRecord && c.status.IsRecording() {
		c.publishErrorLocked(ProviderError{Kind: KindPermissionDenied, Err: fmt.Errorf("authorization %s", auth)})
		c.systemPauseLocked(ctx, "location permission revoked")
	}
	c.refreshTrackingLocked()
}

// HandleProviderPaused reacts to the provider suspending updates. The
// recording stays paused until an explicit resume.
func (c *Controller) HandleProviderPaused(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.publishErrorLocked(ProviderError{Kind: KindUpdatesPaused})
	c.systemPauseLocked(ctx, "location updates paused by provider")
}

// HandleProviderError surfaces a provider failure and clears the current fix.
func (c *Controller) HandleProviderError(pe ProviderError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishErrorLocked(pe)
}

func (c *Controller) publishErrorLocked(pe ProviderError) {
	c.logger.Warn("location provider error", "kind", pe.Kind, "err", pe.Err)
	c.fixFeed.Publish(nil)
	c.errorFeed.Publish(pe)
}

// HandleHeading records the latest compass heading. Invalid readings clear it.
func (c *Controller) HandleHeading(h models.Heading) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h.Accuracy < 0 {
		c.heading = nil
		return
	}
	c.heading = &h
}

// SetBackgrounded records whether the host application is in the background.
func (c *Controller) SetBackgrounded(bg bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backgrounded = bg
	c.refreshTrackingLocked()
}

// UpdateSettings applies new settings.
func (c *Controller) UpdateSettings(s Settings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = s
	c.refreshTrackingLocked()
}

// RetainLocationTracking registers a client that needs location updates.
func (c *Controller) RetainLocationTracking() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locationClients++
	c.refreshTrackingLocked()
}

// ReleaseLocationTracking unregisters a location client.
func (c *Controller) ReleaseLocationTracking() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locationClients == 0 {
		c.logger.Error("location tracking released more times than retained")
		return
	}
	c.locationClients--
	c.refreshTrackingLocked()
}

// RetainHeadingTracking registers a client that needs heading updates.
func (c *Controller) RetainHeadingTracking() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headingClients++
	c.refreshTrackingLocked()
}

// ReleaseHeadingTracking unregisters a heading client.
func (c *Controller) ReleaseHeadingTracking() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.headingClients == 0 {
		c.logger.Error("heading tracking released more times than retained")
		return
	}
	c.headingClients--
	c.refreshTrackingLocked()
}

// Tracking returns the provider configuration last applied.
func (c *Controller) Tracking() TrackingConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracking
}

func (c *Controller) refreshTrackingLocked() {
	next := DesiredTracking(TrackingInputs{
		Status:          c.status,
		Settings:        c.current,
		Backgrounded:    c.backgrounded,
		LocationClients: c.locationClients,
		HeadingClients:  c.headingClients,
	})
	if next == c.tracking {
		return
	}
	applyTracking(c.provider, c.logger, c.tracking, next)
	c.tracking = next
}

// CurrentRecording loads the recording referenced by the live status, or
// returns nil when stopped.
func (c *Controller) CurrentRecording(ctx context.Context) (*models.Recording, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentRecordingLocked(ctx)
}

func (c *Controller) currentRecordingLocked(ctx context.Context) (*models.Recording, error) {
	id, ok := c.status.RecordingRef()
	if !ok {
		return nil, nil
	}
	rec, err := c.store.GetRecording(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load current recording: %w", err)
	}
	return rec, nil
}

// CurrentRecordingSnapshot summarizes the recording referenced by the live
// status, or returns nil when stopped.
func (c *Controller) CurrentRecordingSnapshot(ctx context.Context) (*models.RecordingSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.currentRecordingLocked(ctx)
	if rec == nil || err != nil {
		return nil, err
	}
	snap := rec.Snapshot()
	return &snap, nil
}

// Recordings lists every stored recording, newest first.
func (c *Controller) Recordings(ctx context.Context) ([]*models.Recording, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.ListRecordings(ctx)
}

// Now reads the controller's clock.
func (c *Controller) Now() time.Time {
	return c.clock.Now()
}

// CheckConsistency audits the store and cross-checks it against the status
// history and the live status.
func (c *Controller) CheckConsistency(ctx context.Context) ([]storage.Violation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	violations, err := c.store.CheckConsistency(ctx)
	if err != nil {
		return nil, err
	}

	recs, err := c.store.ListRecordings(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[uuid.UUID]bool, len(recs))
	for _, rec := range recs {
		known[rec.ID] = true
	}

	for _, id := range c.history.RecordingRefs() {
		if !known[id] {
			violations = append(violations, storage.Violation{
				Kind:        storage.KindOrphanHistoryRef,
				RecordingID: id,
				Detail:      "status history references a recording that does not exist",
			})
		}
	}

	live, _ := c.status.RecordingRef()
	for _, rec := range recs {
		if rec.TotalTimeSegment.IsOpen() && rec.ID != live {
			violations = append(violations, storage.Violation{
				Kind:        storage.KindUntrackedOpenRecording,
				RecordingID: rec.ID,
				Detail:      "recording is unfinished but the live status does not reference it",
			})
		}
	}
	return violations, nil
}

// Run pumps provider events and settings changes into the controller until
// ctx is done or the provider closes its event channel. Fix batches queued
// behind a slow commit are merged into one commit.
func (c *Controller) Run(ctx context.Context) error {
	events := c.provider.Events()
	changes := c.settings.Changes()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Kind == ProviderFixes {
				c.drainFixes(ctx, ev, events)
				continue
			}
			c.HandleEvent(ctx, ev)
		case s, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			c.UpdateSettings(s)
		}
	}
}

func (c *Controller) drainFixes(ctx context.Context, first ProviderEvent, events <-chan ProviderEvent) {
	fixes := append([]models.Fix(nil), first.Fixes...)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				c.HandleFixes(ctx, fixes)
				return
			}
			if ev.Kind == ProviderFixes {
				fixes = append(fixes, ev.Fixes...)
				continue
			}
			c.HandleFixes(ctx, fixes)
			c.HandleEvent(ctx, ev)
			return
		default:
			c.HandleFixes(ctx, fixes)
			return
		}
	}
}

// HandleEvent dispatches a single provider event.
func (c *Controller) HandleEvent(ctx context.Context, ev ProviderEvent) {
	switch ev.Kind {
	case ProviderFixes:
		c.HandleFixes(ctx, ev.Fixes)
	case ProviderHeading:
		c.HandleHeading(ev.Heading)
	case ProviderAuthorization:
		c.HandleAuthorization(ctx, ev.Authorization)
	case ProviderPaused:
		c.HandleProviderPaused(ctx)
	case ProviderFailed:
		pe := ProviderError{Kind: KindUnknown}
		if ev.Err != nil {
			pe = *ev.Err
		}
		c.HandleProviderError(pe)
	default:
		c.logger.Warn("ignoring unknown provider event", "kind", ev.Kind)
	}
}
