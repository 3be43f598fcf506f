// ABOUTME: Location provider configuration derived from recorder state
// ABOUTME: Computes the desired configuration and applies only what changed

package recorder

import (
	"github.com/charmbracelet/log"
	"github.com/harper/triplog/internal/status"
)

// TrackingInputs is everything the provider configuration depends on.
type TrackingInputs struct {
	Status          status.Status
	Settings        Settings
	Backgrounded    bool
	LocationClients int
	HeadingClients  int
}

// TrackingConfig is the desired location provider configuration.
type TrackingConfig struct {
	LocationUpdates     bool
	Accuracy            Accuracy
	DistanceFilter      float64
	HeadingUpdates      bool
	SignificantChanges  bool
	BackgroundUpdates   bool
	DeferredUpdates     bool
	AlwaysAuthorization bool
}

// DesiredTracking derives the provider configuration from the recorder state.
func DesiredTracking(in TrackingInputs) TrackingConfig {
	recording := in.Status.IsRecording()
	locationClients := in.LocationClients > 0

	cfg := TrackingConfig{
		LocationUpdates:     recording || (locationClients && !in.Backgrounded),
		Accuracy:            AccuracyTenMeters,
		DistanceFilter:      in.Settings.MinimumDistance,
		HeadingUpdates:      in.HeadingClients > 0 && !in.Backgrounded,
		SignificantChanges:  recording,
		BackgroundUpdates:   recording,
		DeferredUpdates:     recording && in.Backgrounded,
		AlwaysAuthorization: recording,
	}
	if recording && in.Settings.BestAccuracy {
		cfg.Accuracy = AccuracyBest
	}
	if locationClients {
		cfg.DistanceFilter = 0
	}
	return cfg
}

// applyTracking issues provider calls for every field that differs between
// prev and next. Provider failures are logged; the configuration is still
// considered applied.
func applyTracking(p LocationProvider, logger *log.Logger, prev, next TrackingConfig) {
	warn := func(call string, err error) {
		if err != nil {
			logger.Warn("location provider call failed", "call", call, "err", err)
		}
	}

	if next.LocationUpdates && (!prev.LocationUpdates || next.AlwaysAuthorization != prev.AlwaysAuthorization) {
		if p.AuthorizationStatus() != AuthAlways {
			warn("request authorization", p.RequestAuthorization(next.AlwaysAuthorization))
		}
	}
	if next.DistanceFilter != prev.DistanceFilter {
		warn("set distance filter", p.SetDistanceFilter(next.DistanceFilter))
	}
	if next.Accuracy != prev.Accuracy && prev.LocationUpdates && next.LocationUpdates {
		warn("set desired accuracy", p.SetDesiredAccuracy(next.Accuracy))
	}
	if next.SignificantChanges != prev.SignificantChanges {
		warn("significant change monitoring", p.SetSignificantChangeMonitoring(next.SignificantChanges))
	}
	if next.LocationUpdates != prev.LocationUpdates {
		if next.LocationUpdates {
			warn("start tracking", p.StartTracking(next.Accuracy))
		} else {
			warn("stop tracking", p.StopTracking())
		}
	}
	if next.HeadingUpdates != prev.HeadingUpdates {
		warn("heading updates", p.SetHeadingUpdates(next.HeadingUpdates))
	}
	if next.BackgroundUpdates != prev.BackgroundUpdates {
		warn("background updates", p.SetBackgroundUpdates(next.BackgroundUpdates))
	}
	if next.DeferredUpdates != prev.DeferredUpdates {
		warn("deferred updates", p.SetDeferredUpdates(next.DeferredUpdates))
	}
}
