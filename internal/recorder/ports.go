// ABOUTME: Capability interfaces the session controller consumes
// ABOUTME: Location provider, clock and settings source plus their event types

package recorder

import (
	"time"

	"github.com/harper/triplog/internal/models"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Accuracy is the desired fix accuracy requested from the provider.
type Accuracy string

const (
	AccuracyBest      Accuracy = "best"
	AccuracyTenMeters Accuracy = "ten-meters"
)

// AuthorizationStatus mirrors the platform's location permission states.
type AuthorizationStatus string

const (
	AuthNotDetermined AuthorizationStatus = "not-determined"
	AuthRestricted    AuthorizationStatus = "restricted"
	AuthDenied        AuthorizationStatus = "denied"
	AuthWhenInUse     AuthorizationStatus = "when-in-use"
	AuthAlways        AuthorizationStatus = "always"
)

// CanRecord reports whether a recording may run under this authorization.
// Not-determined counts because asking happens when tracking starts.
func (a AuthorizationStatus) CanRecord() bool {
	switch a {
	case AuthNotDetermined, AuthWhenInUse, AuthAlways:
		return true
	default:
		return false
	}
}

// ProviderEventKind tags a ProviderEvent.
type ProviderEventKind string

const (
	ProviderFixes         ProviderEventKind = "fixes"
	ProviderHeading       ProviderEventKind = "heading"
	ProviderAuthorization ProviderEventKind = "authorization"
	ProviderPaused        ProviderEventKind = "paused"
	ProviderFailed        ProviderEventKind = "error"
)

// ProviderEvent is a callback from the location provider. Only the field
// matching Kind is set.
type ProviderEvent struct {
	Kind          ProviderEventKind
	Fixes         []models.Fix
	Heading       models.Heading
	Authorization AuthorizationStatus
	Err           *ProviderError
}

// LocationProvider is the platform location service.
type LocationProvider interface {
	StartTracking(accuracy Accuracy) error
	StopTracking() error
	SetDesiredAccuracy(accuracy Accuracy) error
	SetDistanceFilter(meters float64) error
	SetHeadingUpdates(on bool) error
	SetSignificantChangeMonitoring(on bool) error
	SetBackgroundUpdates(on bool) error
	SetDeferredUpdates(on bool) error
	RequestAuthorization(always bool) error
	AuthorizationStatus() AuthorizationStatus
	Events() <-chan ProviderEvent
}

// Settings are the user preferences the recorder depends on.
type Settings struct {
	MinimumDistance float64 `json:"minimum_distance" yaml:"minimum_distance"`
	BestAccuracy    bool    `json:"best_accuracy" yaml:"best_accuracy"`
}

// DefaultMinimumDistance is the default distance filter in meters.
const DefaultMinimumDistance = 5.0

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{MinimumDistance: DefaultMinimumDistance}
}

// SettingsSource supplies settings and notifies of changes.
type SettingsSource interface {
	Settings() Settings
	Changes() <-chan Settings
}

// StaticSettings is a SettingsSource that never changes.
type StaticSettings Settings

func (s StaticSettings) Settings() Settings        { return Settings(s) }
func (s StaticSettings) Changes() <-chan Settings { return nil }
