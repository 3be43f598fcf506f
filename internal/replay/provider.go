// ABOUTME: Channel-backed location provider fed programmatically
// ABOUTME: Records every tracking call so replays and tests can inspect provider configuration

package replay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/harper/triplog/internal/models"
	"github.com/harper/triplog/internal/recorder"
)

// ErrClosed is returned when delivering to a closed provider.
var ErrClosed = errors.New("provider closed")

// Call is one configuration call made on the provider.
type Call struct {
	Method string `json:"method"`
	Arg    string `json:"arg,omitempty"`
}

func (c Call) String() string {
	if c.Arg == "" {
		return c.Method
	}
	return c.Method + " " + c.Arg
}

// Provider implements recorder.LocationProvider without hardware. Events
// are queued on a buffered channel consumed by Controller.Run.
type Provider struct {
	// sendMu keeps Close from closing the channel under a pending Send.
	sendMu sync.RWMutex

	mu       sync.Mutex
	auth     recorder.AuthorizationStatus
	events   chan recorder.ProviderEvent
	calls    []Call
	tracking bool
	accuracy recorder.Accuracy
	closed   bool
}

// NewProvider creates a provider reporting auth and queueing up to buffer events.
func NewProvider(auth recorder.AuthorizationStatus, buffer int) *Provider {
	return &Provider{
		auth:   auth,
		events: make(chan recorder.ProviderEvent, buffer),
	}
}

func (p *Provider) record(method string, arg any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := Call{Method: method}
	if arg != nil {
		c.Arg = fmt.Sprint(arg)
	}
	p.calls = append(p.calls, c)
	return nil
}

func (p *Provider) StartTracking(accuracy recorder.Accuracy) error {
	p.mu.Lock()
	p.tracking = true
	p.accuracy = accuracy
	p.mu.Unlock()
	return p.record("start-tracking", accuracy)
}

func (p *Provider) StopTracking() error {
	p.mu.Lock()
	p.tracking = false
	p.mu.Unlock()
	return p.record("stop-tracking", nil)
}

func (p *Provider) SetDesiredAccuracy(accuracy recorder.Accuracy) error {
	p.mu.Lock()
	p.accuracy = accuracy
	p.mu.Unlock()
	return p.record("desired-accuracy", accuracy)
}

func (p *Provider) SetDistanceFilter(meters float64) error {
	return p.record("distance-filter", meters)
}

func (p *Provider) SetHeadingUpdates(on bool) error {
	return p.record("heading-updates", on)
}

func (p *Provider) SetSignificantChangeMonitoring(on bool) error {
	return p.record("significant-changes", on)
}

func (p *Provider) SetBackgroundUpdates(on bool) error {
	return p.record("background-updates", on)
}

func (p *Provider) SetDeferredUpdates(on bool) error {
	return p.record("deferred-updates", on)
}

func (p *Provider) RequestAuthorization(always bool) error {
	if always {
		return p.record("request-authorization", "always")
	}
	return p.record("request-authorization", "when-in-use")
}

func (p *Provider) AuthorizationStatus() recorder.AuthorizationStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.auth
}

func (p *Provider) Events() <-chan recorder.ProviderEvent {
	return p.events
}

// Calls returns every configuration call so far.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// Tracking reports whether location updates are on and at which accuracy.
func (p *Provider) Tracking() (bool, recorder.Accuracy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tracking, p.accuracy
}

// Send queues ev, blocking while the buffer is full.
func (p *Provider) Send(ctx context.Context, ev recorder.ProviderEvent) error {
	p.sendMu.RLock()
	defer p.sendMu.RUnlock()

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}

	select {
	case p.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliver queues a batch of fixes.
func (p *Provider) Deliver(ctx context.Context, fixes ...models.Fix) error {
	return p.Send(ctx, recorder.ProviderEvent{Kind: recorder.ProviderFixes, Fixes: fixes})
}

// DeliverHeading queues a compass reading.
func (p *Provider) DeliverHeading(ctx context.Context, h models.Heading) error {
	return p.Send(ctx, recorder.ProviderEvent{Kind: recorder.ProviderHeading, Heading: h})
}

// SetAuthorization changes the reported authorization and queues the change.
func (p *Provider) SetAuthorization(ctx context.Context, auth recorder.AuthorizationStatus) error {
	p.setAuthorization(auth)
	return p.Send(ctx, recorder.ProviderEvent{Kind: recorder.ProviderAuthorization, Authorization: auth})
}

func (p *Provider) setAuthorization(auth recorder.AuthorizationStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.auth = auth
}

// PauseUpdates queues a provider-initiated pause.
func (p *Provider) PauseUpdates(ctx context.Context) error {
	return p.Send(ctx, recorder.ProviderEvent{Kind: recorder.ProviderPaused})
}

// Fail queues a provider error.
func (p *Provider) Fail(ctx context.Context, kind recorder.ProviderErrorKind, err error) error {
	return p.Send(ctx, recorder.ProviderEvent{
		Kind: recorder.ProviderFailed,
		Err:  &recorder.ProviderError{Kind: kind, Err: err},
	})
}

// Close closes the event channel, which ends Controller.Run.
func (p *Provider) Close() {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.events)
}
